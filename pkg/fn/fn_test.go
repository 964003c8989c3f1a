package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultBasics(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("Ok result misreports state")
	}
	v, err := ok.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("Unwrap = %v, %v", v, err)
	}

	boom := errors.New("boom")
	bad := Err[int](boom)
	if bad.IsOk() {
		t.Fatal("Err result misreports state")
	}
	if bad.UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr did not fall back")
	}

	if r := FromPair(1, error(nil)); r.IsErr() {
		t.Fatal("FromPair(nil error) must be ok")
	}
	if r := FromPair(0, boom); r.IsOk() {
		t.Fatal("FromPair(err) must be err")
	}
}

func TestThenShortCircuits(t *testing.T) {
	parse := func(_ context.Context, s string) Result[int] {
		return FromPair(strconv.Atoi(s))
	}
	double := func(_ context.Context, n int) Result[int] {
		return Ok(n * 2)
	}

	combined := Then(Stage[string, int](parse), Stage[int, int](double))
	if v, _ := combined(context.Background(), "21").Unwrap(); v != 42 {
		t.Errorf("Then = %d", v)
	}
	if r := combined(context.Background(), "nope"); !r.IsErr() {
		t.Error("expected parse error to short-circuit")
	}
}

func TestTracedPreservesResult(t *testing.T) {
	stage := Traced("test.stage", func(_ context.Context, n int) Result[int] {
		if n < 0 {
			return Errf[int]("negative input %d", n)
		}
		return Ok(n + 1)
	})

	if v, _ := stage(context.Background(), 1).Unwrap(); v != 2 {
		t.Errorf("traced ok = %d", v)
	}
	if r := stage(context.Background(), -1); !r.IsErr() {
		t.Error("traced stage swallowed the error")
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond},
		func(context.Context) Result[string] {
			if calls.Add(1) < 3 {
				return Errf[string]("try again")
			}
			return Ok("done")
		})
	if v, _ := r.Unwrap(); v != "done" {
		t.Errorf("retry result = %q", v)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestRetryExhausts(t *testing.T) {
	var calls atomic.Int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond},
		func(context.Context) Result[int] {
			calls.Add(1)
			return Errf[int]("always fails")
		})
	if r.IsOk() {
		t.Fatal("expected exhausted retry to fail")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Minute},
		func(context.Context) Result[int] { return Errf[int]("fail") })
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestSliceHelpers(t *testing.T) {
	nums := []int{1, 2, 3, 4, 5}

	squares := Map(nums, func(n int) int { return n * n })
	if squares[4] != 25 {
		t.Errorf("Map = %v", squares)
	}

	even := Filter(nums, func(n int) bool { return n%2 == 0 })
	if len(even) != 2 {
		t.Errorf("Filter = %v", even)
	}

	chunks := Chunk(nums, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Errorf("Chunk = %v", chunks)
	}
	if Chunk(nums, 0) != nil {
		t.Error("Chunk with n<=0 must be nil")
	}

	uniq := Unique([]string{"a", "b", "a", "c", "b"})
	if len(uniq) != 3 || uniq[0] != "a" || uniq[2] != "c" {
		t.Errorf("Unique = %v", uniq)
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	out := ParMap(items, 8, func(n int) int { return n * 10 })
	for i, v := range out {
		if v != i*10 {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}

	if got := ParMap([]int{}, 4, func(n int) int { return n }); len(got) != 0 {
		t.Errorf("empty input = %v", got)
	}
}

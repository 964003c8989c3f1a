package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rti/askwikidata/engine/semantic"
	"github.com/rti/askwikidata/pkg/tei"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeSearcher struct {
	hits []semantic.Hit
	err  error
}

func (f fakeSearcher) ANN(context.Context, []float32, int, float32) ([]semantic.Hit, error) {
	return f.hits, f.err
}

// lengthReranker scores candidates by text length.
type lengthReranker struct{}

func (lengthReranker) Rerank(_ context.Context, _ string, texts []string) ([]tei.Score, error) {
	out := make([]tei.Score, len(texts))
	for i, t := range texts {
		out[i] = tei.Score{Index: i, Score: float64(len(t))}
	}
	return out, nil
}

type fakeGenerator struct {
	lastContext string
	answer      string
	err         error
}

func (f *fakeGenerator) Generate(_ context.Context, _, contextText string) (string, error) {
	f.lastContext = contextText
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func candidates() []semantic.Hit {
	return []semantic.Hit{
		{EntityID: "Q64", Text: "Berlin head of government Kai Wegner.", Distance: 0.1},
		{EntityID: "Q64", Text: "Berlin is a city.", Distance: 0.2},
		{EntityID: "Q84", Text: "London.", Distance: 0.3},
	}
}

func TestRetrieveTopKAndOrdering(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{},
		Options{RetrievalK: 16, ContextK: 2}, nil)

	got, err := r.Retrieve(context.Background(), "who governs berlin?")
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Hits) != 2 {
		t.Fatalf("hits = %d, want min(3, 2) = 2", len(got.Hits))
	}
	// Scores non-increasing, best first.
	if got.Hits[0].Score < got.Hits[1].Score {
		t.Error("hits are not sorted by descending score")
	}
	if got.Hits[0].Text != "Berlin head of government Kai Wegner." {
		t.Errorf("best hit = %q", got.Hits[0].Text)
	}
}

func TestContextPutsBestLast(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{},
		Options{ContextK: 2}, nil)

	got, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(got.Context, "\n")
	if lines[len(lines)-1] != "Berlin head of government Kai Wegner." {
		t.Errorf("best chunk is not last in context:\n%s", got.Context)
	}
}

func TestContextBestFirst(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{},
		Options{ContextK: 2, BestFirst: true}, nil)

	got, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got.Context, "Berlin head of government Kai Wegner.") {
		t.Errorf("best chunk is not first in context:\n%s", got.Context)
	}
}

func TestSourcesAreDistinctURLs(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{},
		Options{ContextK: 3}, nil)

	got, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://www.wikidata.org/wiki/Q64",
		"https://www.wikidata.org/wiki/Q84",
	}
	if len(got.Sources) != len(want) {
		t.Fatalf("sources = %v", got.Sources)
	}
	for i := range want {
		if got.Sources[i] != want[i] {
			t.Errorf("source %d = %q, want %q", i, got.Sources[i], want[i])
		}
	}
}

func TestRetrieveEmptyRecall(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, fakeSearcher{}, lengthReranker{}, Options{}, nil)
	got, err := r.Retrieve(context.Background(), "capital of hawaii?")
	if err != nil {
		t.Fatal(err)
	}
	if got.Context != "" || len(got.Hits) != 0 {
		t.Errorf("expected empty retrieval, got %+v", got)
	}
}

func TestAskWithoutContextSkipsModel(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	svc := NewService(
		NewRetriever(fakeEmbedder{}, fakeSearcher{}, lengthReranker{}, Options{}, nil),
		gen, nil)

	ans, err := svc.Ask(context.Background(), "what is the capital of hawaii?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != NoAnswer {
		t.Errorf("answer = %q", ans.Text)
	}
	if gen.lastContext != "" {
		t.Error("generator was consulted despite empty retrieval")
	}
}

func TestAskPassesContextAndSources(t *testing.T) {
	gen := &fakeGenerator{answer: "Kai Wegner."}
	svc := NewService(
		NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{}, Options{ContextK: 2}, nil),
		gen, nil)

	ans, err := svc.Ask(context.Background(), "Who is the current mayor of Berlin?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "Kai Wegner." {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) == 0 || ans.Sources[0] != "https://www.wikidata.org/wiki/Q64" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if !strings.Contains(gen.lastContext, "Kai Wegner") {
		t.Errorf("generator context = %q", gen.lastContext)
	}
}

func TestErrorsPropagate(t *testing.T) {
	embedErr := errors.New("embedder down")
	r := NewRetriever(fakeEmbedder{err: embedErr}, fakeSearcher{}, lengthReranker{}, Options{}, nil)
	if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, embedErr) {
		t.Errorf("expected embed error, got %v", err)
	}

	annErr := errors.New("store down")
	r = NewRetriever(fakeEmbedder{}, fakeSearcher{err: annErr}, lengthReranker{}, Options{}, nil)
	if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, annErr) {
		t.Errorf("expected ann error, got %v", err)
	}

	genErr := errors.New("llm down")
	svc := NewService(
		NewRetriever(fakeEmbedder{}, fakeSearcher{hits: candidates()}, lengthReranker{}, Options{}, nil),
		&fakeGenerator{err: genErr}, nil)
	if _, err := svc.Ask(context.Background(), "q"); !errors.Is(err, genErr) {
		t.Errorf("expected generate error, got %v", err)
	}
}

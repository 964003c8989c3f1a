package labels

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rti/askwikidata/engine/wikidata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dumpFile(t *testing.T, lines ...string) *wikidata.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.json")
	all := append([]string{"["}, lines...)
	all = append(all, "]")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(all, "\n")+"\n"), 0o644))
	return wikidata.NewReader(path, wikidata.ReaderOptions{Workers: 2})
}

func entityLine(id, label, desc string) string {
	return `{"id":"` + id + `","type":"item",` +
		`"labels":{"en":{"language":"en","value":"` + label + `"}},` +
		`"descriptions":{"en":{"language":"en","value":"` + desc + `"}}},`
}

func TestBuildAndLookup(t *testing.T) {
	s := openTestStore(t)
	r := dumpFile(t,
		entityLine("Q64", "Berlin", "capital of Germany"),
		`{"id":"P6","type":"property","labels":{"en":{"language":"en","value":"head of government"}},"descriptions":{"en":{"language":"en","value":"head of the executive"}}},`,
		`{"id":"Q99","type":"item","labels":{"de":{"language":"de","value":"nur deutsch"}}}`,
	)

	stats, err := s.Build(context.Background(), r, BuildOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Indexed)
	assert.EqualValues(t, 1, stats.NoLanguage)

	label, ok := s.Label("Q64")
	require.True(t, ok)
	assert.Equal(t, "Berlin", label)

	desc, ok := s.Description("Q64")
	require.True(t, ok)
	assert.Equal(t, "capital of Germany", desc)

	label, ok = s.Label("P6")
	require.True(t, ok)
	assert.Equal(t, "head of government", label)

	_, ok = s.Label("Q99")
	assert.False(t, ok, "entity without english terms must not be indexed")

	_, ok = s.Label("Q404")
	assert.False(t, ok)
}

func TestBuildDropsOverCapRecords(t *testing.T) {
	s := openTestStore(t)
	longLabel := strings.Repeat("x", 200)
	r := dumpFile(t,
		entityLine("Q1", longLabel, "short"),
		entityLine("Q2", "short", "fine"),
	)

	stats, err := s.Build(context.Background(), r, BuildOptions{LabelCap: 128, DescCap: 1024})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.OverCap)
	assert.EqualValues(t, 1, stats.Indexed)

	_, ok := s.Label("Q1")
	assert.False(t, ok)
}

func TestBuildSkipsMalformedLines(t *testing.T) {
	s := openTestStore(t)
	r := dumpFile(t,
		`{broken,`,
		entityLine("Q2", "ok", "fine"),
	)
	stats, err := s.Build(context.Background(), r, BuildOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ParseErrors)
	assert.EqualValues(t, 1, stats.Indexed)
}

func TestBuildSmallBatches(t *testing.T) {
	s := openTestStore(t)
	r := dumpFile(t,
		entityLine("Q1", "one", "first"),
		entityLine("Q2", "two", "second"),
		entityLine("Q3", "three", "third"),
	)
	stats, err := s.Build(context.Background(), r, BuildOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Indexed)
	for _, id := range []string{"Q1", "Q2", "Q3"} {
		_, ok := s.Label(id)
		assert.True(t, ok, id)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

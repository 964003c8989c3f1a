// Package rag orchestrates the query path: embed the question, recall
// candidate chunks by approximate nearest neighbor, rerank with a
// cross-encoder, assemble a context window, and ask the language model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rti/askwikidata/engine/semantic"
	"github.com/rti/askwikidata/pkg/fn"
	"github.com/rti/askwikidata/pkg/llm"
	"github.com/rti/askwikidata/pkg/tei"
)

// SourceURLTemplate renders an entity id into its public page.
const SourceURLTemplate = "https://www.wikidata.org/wiki/%s"

// Embedder embeds a query string.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers ANN queries. Satisfied by semantic.Store.
type Searcher interface {
	ANN(ctx context.Context, embedding []float32, k int, threshold float32) ([]semantic.Hit, error)
}

// Reranker scores (query, candidate) pairs. Satisfied by tei.Client.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]tei.Score, error)
}

// Options tunes retrieval.
type Options struct {
	// RetrievalK is the ANN recall size. Defaults to 64.
	RetrievalK int
	// ContextK is how many reranked chunks enter the context window.
	// Defaults to 7.
	ContextK int
	// Threshold drops ANN hits at or beyond this distance; 0 disables.
	Threshold float32
	// BestFirst places the highest-scoring chunks at the start of the
	// context window. By default (false) they go at the end, which
	// measurably helps downstream answers.
	BestFirst bool
}

func (o *Options) defaults() {
	if o.RetrievalK <= 0 {
		o.RetrievalK = 64
	}
	if o.ContextK <= 0 {
		o.ContextK = 7
	}
}

// ScoredHit is an ANN hit with its cross-encoder score.
type ScoredHit struct {
	semantic.Hit
	Score float64
}

// Retrieved is the assembled context for one query.
type Retrieved struct {
	// Context is the newline-joined chunk texts in window order.
	Context string
	// Sources are the distinct source URLs of the context chunks, in
	// rank order.
	Sources []string
	// Hits are the reranked chunks, best first.
	Hits []ScoredHit
}

// Retriever runs the recall and rerank stages.
type Retriever struct {
	embed  Embedder
	store  Searcher
	rerank Reranker
	opts   Options
	logger *slog.Logger
}

// NewRetriever wires a Retriever.
func NewRetriever(embed Embedder, store Searcher, rerank Reranker, opts Options, logger *slog.Logger) *Retriever {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, store: store, rerank: rerank, opts: opts, logger: logger}
}

// Retrieve embeds the query, recalls candidates, reranks them and builds
// the context window. An empty Retrieved (no error) means nothing
// relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Retrieved, error) {
	vector, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	hits, err := r.store.ANN(ctx, vector, r.opts.RetrievalK, r.opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("rag: ann recall: %w", err)
	}
	r.logger.Info("rag: recall done", "candidates", len(hits))
	if len(hits) == 0 {
		return &Retrieved{}, nil
	}

	texts := fn.Map(hits, func(h semantic.Hit) string { return h.Text })
	scores, err := r.rerank.Rerank(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rag: rerank: %w", err)
	}

	ranked := make([]ScoredHit, 0, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(hits) {
			continue
		}
		ranked = append(ranked, ScoredHit{Hit: hits[s.Index], Score: s.Score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > r.opts.ContextK {
		ranked = ranked[:r.opts.ContextK]
	}

	return &Retrieved{
		Context: r.assembleContext(ranked),
		Sources: sources(ranked),
		Hits:    ranked,
	}, nil
}

// assembleContext joins chunk texts with newlines. By default the best
// chunks go last, closest to the question in the prompt.
func (r *Retriever) assembleContext(ranked []ScoredHit) string {
	texts := fn.Map(ranked, func(h ScoredHit) string { return h.Text })
	if !r.opts.BestFirst {
		for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
			texts[i], texts[j] = texts[j], texts[i]
		}
	}
	joined := strings.Join(texts, "\n")
	return strings.ReplaceAll(joined, "\n\n", "\n")
}

// sources derives the distinct source URLs in rank order.
func sources(ranked []ScoredHit) []string {
	urls := fn.Map(ranked, func(h ScoredHit) string {
		return fmt.Sprintf(SourceURLTemplate, h.EntityID)
	})
	return fn.Unique(urls)
}

// Answer is the response of the full pipeline.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// NoAnswer is returned without consulting the model when retrieval finds
// nothing.
const NoAnswer = "I do not know the answer."

// Service combines retrieval with generation.
type Service struct {
	retriever *Retriever
	generate  llm.Generator
	logger    *slog.Logger
}

// NewService wires a Service.
func NewService(retriever *Retriever, generate llm.Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{retriever: retriever, generate: generate, logger: logger}
}

// Ask answers a question from the knowledge base. When retrieval comes
// back empty the model is not consulted.
func (s *Service) Ask(ctx context.Context, query string) (*Answer, error) {
	retrieved, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if retrieved.Context == "" {
		s.logger.Info("rag: no context found", "query_len", len(query))
		return &Answer{Text: NoAnswer}, nil
	}

	text, err := s.generate.Generate(ctx, query, retrieved.Context)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}
	return &Answer{Text: text, Sources: retrieved.Sources}, nil
}

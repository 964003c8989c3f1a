// Package ingest runs the bulk ingestion pipeline: stream the dump,
// textify each entity, embed sentences in batches, and persist chunks.
// Three workers connected by two bounded queues keep the embedder and the
// vector store busy at the same time while bounding memory:
//
//	[reader] --embed queue--> [embedder] --insert queue--> [inserter]
//
// Backpressure is the queues' blocking send; shutdown is the close of
// each queue after the previous stage drains.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rti/askwikidata/engine/graph"
	"github.com/rti/askwikidata/engine/semantic"
	"github.com/rti/askwikidata/engine/textify"
	"github.com/rti/askwikidata/engine/wikidata"
	"github.com/rti/askwikidata/pkg/fn"
	"github.com/rti/askwikidata/pkg/metrics"
	"github.com/rti/askwikidata/pkg/natsutil"
	"github.com/rti/askwikidata/pkg/resilience"
)

// NATS subjects. Both are optional: without a connection the pipeline
// logs instead of publishing.
const (
	// DLQSubject receives items the pipeline gave up on.
	DLQSubject = "askwikidata.ingest.dlq"
	// ProgressSubject receives periodic progress events.
	ProgressSubject = "askwikidata.ingest.progress"
)

// Embedder encodes batches of sentences into fixed-width vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Sentencer renders an entity's claims into sentences.
type Sentencer interface {
	Sentences(e *wikidata.Entity) []textify.Sentence
}

// GraphSink persists claim triples. Optional.
type GraphSink interface {
	SaveTriples(ctx context.Context, triples []graph.Triple) error
}

// Deps are the pipeline collaborators. Reader, Textifier, Embedder and
// Store are required; the rest are optional.
type Deps struct {
	Reader    *wikidata.Reader
	Textifier Sentencer
	Embedder  Embedder
	Store     semantic.Store

	// Graph and Lookup enable the claim-graph sink. Failures there are
	// logged, never fatal.
	Graph  GraphSink
	Lookup graph.LabelLookup

	// NC enables DLQ and progress events.
	NC *nats.Conn

	Metrics *metrics.Registry
	Logger  *slog.Logger

	// Breaker protects the embedder. A default breaker is created when
	// nil.
	Breaker *resilience.Breaker
}

// Options tunes queue capacities and batching. Steady-state memory is
// roughly EmbedQueueSize sentences plus (InsertQueueSize+2) embedded
// batches.
type Options struct {
	// Dims is the embedding width the store is initialized with.
	Dims int
	// EmbedQueueSize bounds the sentence queue. Defaults to 1024.
	EmbedQueueSize int
	// InsertQueueSize bounds the embedded-batch queue. Defaults to 1.
	InsertQueueSize int
	// EmbedBatchSize is how many sentences go into one embedder call.
	// Defaults to 256.
	EmbedBatchSize int
	// ProgressEvery is how many entities pass between progress events.
	// Defaults to 10000.
	ProgressEvery int64
}

func (o *Options) defaults() error {
	if o.Dims <= 0 {
		return fmt.Errorf("ingest: Options.Dims must be positive, got %d", o.Dims)
	}
	if o.EmbedQueueSize <= 0 {
		o.EmbedQueueSize = 1024
	}
	if o.InsertQueueSize <= 0 {
		o.InsertQueueSize = 1
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 256
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 10000
	}
	return nil
}

// Stats summarizes one pipeline run.
type Stats struct {
	Entities    int64 `json:"entities"`
	Sentences   int64 `json:"sentences"`
	Batches     int64 `json:"batches"`
	Chunks      int64 `json:"chunks"`
	ParseErrors int64 `json:"parse_errors"`
	FailedItems int64 `json:"failed_items"`
}

// progressEvent is published on ProgressSubject.
type progressEvent struct {
	Entities  int64 `json:"entities"`
	Sentences int64 `json:"sentences"`
	Chunks    int64 `json:"chunks"`
}

// dlqItem is published on DLQSubject for lines or batches the pipeline
// gave up on.
type dlqItem struct {
	Kind  string   `json:"kind"` // "line" or "batch"
	Line  string   `json:"line,omitempty"`
	IDs   []string `json:"ids,omitempty"`
	Error string   `json:"error"`
}

type sentence struct {
	id   string
	text string
}

type embedded struct {
	ids     []string
	texts   []string
	vectors [][]float32
}

// Run executes the pipeline until the dump is exhausted or a fatal error
// occurs. Per-item failures (malformed lines, failed batches) never kill
// the run; store dimension conflicts and read errors do.
func Run(ctx context.Context, deps Deps, opts Options) (Stats, error) {
	if err := opts.defaults(); err != nil {
		return Stats{}, err
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Breaker == nil {
		deps.Breaker = resilience.NewBreaker(resilience.BreakerOpts{})
	}
	met := deps.Metrics
	if met == nil {
		met = metrics.New()
	}

	mEntities := met.Counter("askwikidata_ingest_entities_total", "Entities read from the dump")
	mSentences := met.Counter("askwikidata_ingest_sentences_total", "Sentences produced by the textifier")
	mChunks := met.Counter("askwikidata_ingest_chunks_total", "Chunks persisted")
	mParseErrs := met.Counter(metrics.WithLabels("askwikidata_ingest_errors_total", "stage", "parse"), "Errors by stage")
	mEmbedErrs := met.Counter(metrics.WithLabels("askwikidata_ingest_errors_total", "stage", "embed"), "Errors by stage")
	mInsertErrs := met.Counter(metrics.WithLabels("askwikidata_ingest_errors_total", "stage", "insert"), "Errors by stage")
	mEmbedQueue := met.Gauge("askwikidata_ingest_embed_queue_depth", "Sentences waiting to embed")
	mEmbedDur := met.Histogram("askwikidata_ingest_embed_seconds", "Embedder call latency", nil)
	mInsertDur := met.Histogram("askwikidata_ingest_insert_seconds", "Store insert latency", nil)

	if err := deps.Store.Init(ctx, opts.Dims); err != nil {
		return Stats{}, fmt.Errorf("ingest: init store: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stats    Stats
		statsMu  sync.Mutex
		fatalErr error
		fatal    sync.Once
	)
	fail := func(err error) {
		fatal.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	embedCh := make(chan sentence, opts.EmbedQueueSize)
	insertCh := make(chan embedded, opts.InsertQueueSize)

	publishDLQ := func(ctx context.Context, item dlqItem) {
		if deps.NC == nil {
			return
		}
		if err := natsutil.Publish(ctx, deps.NC, DLQSubject, item); err != nil {
			log.Warn("ingest: dlq publish failed", "error", err)
		}
	}

	var wg sync.WaitGroup

	// Reader: dump -> sentences.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(embedCh)

		for line, err := range deps.Reader.Entities(ctx) {
			if err != nil {
				var pe *wikidata.ParseError
				if errors.As(err, &pe) {
					statsMu.Lock()
					stats.ParseErrors++
					statsMu.Unlock()
					mParseErrs.Inc()
					log.Warn("ingest: skipping malformed line", "line", pe.Number, "error", pe.Err)
					publishDLQ(ctx, dlqItem{Kind: "line", Line: pe.Raw, Error: pe.Err.Error()})
					continue
				}
				if !errors.Is(err, context.Canceled) {
					fail(err)
				}
				return
			}

			statsMu.Lock()
			stats.Entities++
			entities := stats.Entities
			statsMu.Unlock()
			mEntities.Inc()

			sentences := deps.Textifier.Sentences(line.Entity)
			if deps.Graph != nil && deps.Lookup != nil {
				if triples := graph.TriplesFrom(line.Entity, deps.Lookup); len(triples) > 0 {
					if err := deps.Graph.SaveTriples(ctx, triples); err != nil {
						log.Warn("ingest: graph sink failed", "entity", line.Entity.ID, "error", err)
					}
				}
			}

			for _, s := range sentences {
				select {
				case embedCh <- sentence{id: s.EntityID, text: s.Text}:
					statsMu.Lock()
					stats.Sentences++
					statsMu.Unlock()
					mSentences.Inc()
					mEmbedQueue.Set(int64(len(embedCh)))
				case <-ctx.Done():
					return
				}
			}

			if entities%opts.ProgressEvery == 0 {
				statsMu.Lock()
				ev := progressEvent{Entities: stats.Entities, Sentences: stats.Sentences, Chunks: stats.Chunks}
				statsMu.Unlock()
				log.Info("ingest: progress", "entities", ev.Entities, "sentences", ev.Sentences, "chunks", ev.Chunks)
				if deps.NC != nil {
					if err := natsutil.Publish(ctx, deps.NC, ProgressSubject, ev); err != nil {
						log.Warn("ingest: progress publish failed", "error", err)
					}
				}
			}
		}
	}()

	// Embedder: sentences -> embedded batches.
	embedStage := resilience.BreakerStage(deps.Breaker,
		fn.RetryStage(fn.TransientRetry, fn.Traced("ingest.embed",
			func(ctx context.Context, texts []string) fn.Result[[][]float32] {
				start := time.Now()
				vectors, err := deps.Embedder.EmbedDocuments(ctx, texts, len(texts))
				mEmbedDur.Since(start)
				return fn.FromPair(vectors, err)
			})))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(insertCh)

		var ids []string
		var texts []string

		flush := func() bool {
			if len(texts) == 0 {
				return true
			}
			batchIDs, batchTexts := ids, texts
			ids, texts = nil, nil

			vectors, err := embedStage(ctx, batchTexts).Unwrap()
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				statsMu.Lock()
				stats.FailedItems += int64(len(batchTexts))
				statsMu.Unlock()
				mEmbedErrs.Inc()
				log.Error("ingest: embed batch failed", "size", len(batchTexts), "error", err)
				publishDLQ(ctx, dlqItem{Kind: "batch", IDs: batchIDs, Error: err.Error()})
				return true
			}

			select {
			case insertCh <- embedded{ids: batchIDs, texts: batchTexts, vectors: vectors}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for s := range embedCh {
			mEmbedQueue.Set(int64(len(embedCh)))
			ids = append(ids, s.id)
			texts = append(texts, s.text)
			if len(texts) >= opts.EmbedBatchSize {
				if !flush() {
					return
				}
			}
		}
		// End of stream: flush the partial batch.
		flush()
	}()

	// Inserter: embedded batches -> store.
	insertStage := fn.RetryStage(fn.TransientRetry, fn.Traced("ingest.insert",
		func(ctx context.Context, b embedded) fn.Result[int] {
			chunks := make([]semantic.Chunk, len(b.ids))
			for i := range b.ids {
				chunks[i] = semantic.Chunk{EntityID: b.ids[i], Text: b.texts[i], Embedding: b.vectors[i]}
			}
			start := time.Now()
			err := deps.Store.InsertMany(ctx, chunks)
			mInsertDur.Since(start)
			if err != nil {
				return fn.Err[int](err)
			}
			return fn.Ok(len(chunks))
		}))

	wg.Add(1)
	go func() {
		defer wg.Done()

		for b := range insertCh {
			n, err := insertStage(ctx, b).Unwrap()
			if err != nil {
				if errors.Is(err, semantic.ErrDims) {
					fail(err)
					return
				}
				if ctx.Err() != nil {
					return
				}
				statsMu.Lock()
				stats.FailedItems += int64(len(b.ids))
				statsMu.Unlock()
				mInsertErrs.Inc()
				log.Error("ingest: insert batch failed", "size", len(b.ids), "error", err)
				publishDLQ(ctx, dlqItem{Kind: "batch", IDs: b.ids, Error: err.Error()})
				continue
			}
			statsMu.Lock()
			stats.Batches++
			stats.Chunks += int64(n)
			statsMu.Unlock()
			mChunks.Add(int64(n))
		}
	}()

	wg.Wait()

	if fatalErr != nil {
		return stats, fatalErr
	}
	log.Info("ingest: done",
		"entities", stats.Entities, "sentences", stats.Sentences,
		"chunks", stats.Chunks, "parse_errors", stats.ParseErrors,
		"failed_items", stats.FailedItems)
	return stats, nil
}

// Command askwikidata ingests a Wikidata JSON dump into a vector store
// and answers natural-language questions over it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rti/askwikidata/engine/labels"
	"github.com/rti/askwikidata/engine/semantic"
	"github.com/rti/askwikidata/engine/wikidata"
	"github.com/rti/askwikidata/pkg/llm"
	"github.com/rti/askwikidata/pkg/tei"
)

var (
	configPath string
	cfg        Config
)

var rootCmd = &cobra.Command{
	Use:   "askwikidata",
	Short: "Question answering over a Wikidata dump",
	Long: `askwikidata — semantic question answering over a Wikidata JSON dump.

Typical flow:
  askwikidata build-labels wikidata.json   # one-pass label index
  askwikidata ingest wikidata.json         # textify, embed, store
  askwikidata ask "Who is the mayor of Berlin?"
  askwikidata repl`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "askwikidata.yaml", "config file path")
	rootCmd.AddCommand(buildLabelsCmd, ingestCmd, askCmd, replCmd)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// openStore picks the configured vector store engine.
func openStore() (semantic.Store, error) {
	switch cfg.Store.Engine {
	case "qdrant", "":
		return semantic.NewQdrant(cfg.Store.QdrantAddr, cfg.Store.Collection)
	case "pgvector":
		dsn := os.Getenv(cfg.Store.PgDSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("%s is not set", cfg.Store.PgDSNEnv)
		}
		return semantic.NewPg(dsn)
	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Store.Engine)
	}
}

// openLabels opens the label index read-only collaborators rely on.
func openLabels() (*labels.Store, error) {
	return labels.Open(labels.Options{Dir: cfg.Labels.Dir})
}

// newEmbedClient connects and warms up the embedding server.
func newEmbedClient(ctx context.Context) (*tei.Client, error) {
	return tei.NewClient(ctx, cfg.Embedding.URL, tei.Options{
		QueryPrefix:   cfg.Embedding.QueryPrefix,
		RatePerSecond: cfg.Embedding.RatePerSec,
	})
}

// newRerankClient connects to the reranker server.
func newRerankClient(ctx context.Context) (*tei.Client, error) {
	return tei.NewClient(ctx, cfg.Reranker.URL, tei.Options{})
}

// newGenerator builds the LLM adapter.
func newGenerator() (llm.Generator, error) {
	return llm.NewClient(llm.ClientOptions{
		URL:          cfg.LLM.URL,
		Family:       llm.Family(cfg.LLM.Family),
		APIKeyEnv:    cfg.LLM.APIKeyEnv,
		MaxNewTokens: cfg.LLM.MaxNewTokens,
	})
}

// newDumpReader builds a Reader with the configured chunking.
func newDumpReader(path string) *wikidata.Reader {
	return wikidata.NewReader(path, wikidata.ReaderOptions{
		ChunkBytes: cfg.Pipeline.ChunkBytes,
		Workers:    cfg.Pipeline.DecodeWorkers,
	})
}

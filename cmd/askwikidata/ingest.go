package main

import (
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/rti/askwikidata/engine/graph"
	"github.com/rti/askwikidata/engine/ingest"
	"github.com/rti/askwikidata/engine/textify"
	"github.com/rti/askwikidata/pkg/metrics"
)

var embedBatchSize int

func init() {
	ingestCmd.Flags().IntVar(&embedBatchSize, "batch", 0, "embed batch size (overrides config)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dump>",
	Short: "Run the full ingestion pipeline into the vector store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := slog.Default()

		labelStore, err := openLabels()
		if err != nil {
			return err
		}
		defer labelStore.Close()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		embedder, err := newEmbedClient(ctx)
		if err != nil {
			return err
		}
		log.Info("embedder ready", "dims", embedder.Dims())

		met := metrics.New()
		if cfg.Metrics.Port > 0 {
			met.ServeAsync(cfg.Metrics.Port)
		}

		deps := ingest.Deps{
			Reader:    newDumpReader(args[0]),
			Textifier: textify.New(labelStore, textify.DefaultConfig()),
			Embedder:  embedder,
			Store:     store,
			Metrics:   met,
			Logger:    log,
		}

		if cfg.Graph.URI != "" {
			driver, err := neo4j.NewDriverWithContext(cfg.Graph.URI,
				neo4j.BasicAuth(cfg.Graph.User, os.Getenv(cfg.Graph.PasswordEnv), ""))
			if err != nil {
				return err
			}
			defer driver.Close(ctx)
			if err := driver.VerifyConnectivity(ctx); err != nil {
				return err
			}
			deps.Graph = graph.New(driver)
			deps.Lookup = labelStore
			log.Info("graph sink enabled", "uri", cfg.Graph.URI)
		}

		if cfg.NATS.URL != "" {
			nc, err := nats.Connect(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer nc.Close()
			deps.NC = nc
			log.Info("event bus connected", "url", cfg.NATS.URL)
		}

		batch := cfg.Embedding.BatchSize
		if embedBatchSize > 0 {
			batch = embedBatchSize
		}

		stats, err := ingest.Run(ctx, deps, ingest.Options{
			Dims:            embedder.Dims(),
			EmbedQueueSize:  cfg.Pipeline.EmbedQueueSize,
			InsertQueueSize: cfg.Pipeline.InsertQueueSize,
			EmbedBatchSize:  batch,
			ProgressEvery:   cfg.Pipeline.ProgressEvery,
		})
		if err != nil {
			return err
		}
		log.Info("ingest finished",
			"entities", stats.Entities,
			"chunks", stats.Chunks,
			"parse_errors", stats.ParseErrors,
			"failed_items", stats.FailedItems)
		return nil
	},
}

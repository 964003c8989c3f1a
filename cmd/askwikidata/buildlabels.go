package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rti/askwikidata/engine/labels"
)

var buildLabelsCmd = &cobra.Command{
	Use:   "build-labels <dump>",
	Short: "Build the label/description index from a dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := slog.Default()

		store, err := labels.Open(labels.Options{Dir: cfg.Labels.Dir})
		if err != nil {
			return err
		}
		defer store.Close()

		reader := newDumpReader(args[0])
		stats, err := store.Build(cmd.Context(), reader, labels.BuildOptions{})
		if err != nil {
			return err
		}
		log.Info("label index built",
			"indexed", stats.Indexed,
			"no_language", stats.NoLanguage,
			"over_cap", stats.OverCap,
			"parse_errors", stats.ParseErrors)
		return nil
	},
}

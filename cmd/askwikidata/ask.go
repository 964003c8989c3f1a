package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rti/askwikidata/engine/rag"
)

var showHits bool

func init() {
	askCmd.Flags().BoolVar(&showHits, "show-hits", false, "print reranked chunks with distances")
	replCmd.Flags().BoolVar(&showHits, "show-hits", false, "print reranked chunks with distances")
}

// ragHandles bundles the query-path collaborators.
type ragHandles struct {
	svc       *rag.Service
	retriever *rag.Retriever
	// nearest ignores the distance threshold; used to show the closest
	// chunks when a thresholded retrieval comes back empty.
	nearest *rag.Retriever
	close   func()
}

// newRAGService wires the full query path from the config.
func newRAGService(ctx context.Context) (*ragHandles, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedClient(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	reranker, err := newRerankClient(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	generator, err := newGenerator()
	if err != nil {
		store.Close()
		return nil, err
	}

	retriever := rag.NewRetriever(embedder, store, reranker, rag.Options{
		RetrievalK: cfg.Retrieval.K,
		ContextK:   cfg.Retrieval.ContextK,
		Threshold:  cfg.Retrieval.Threshold,
		BestFirst:  cfg.Retrieval.BestFirst,
	}, nil)
	nearest := rag.NewRetriever(embedder, store, reranker, rag.Options{
		RetrievalK: cfg.Retrieval.K,
		ContextK:   5,
	}, nil)

	return &ragHandles{
		svc:       rag.NewService(retriever, generator, nil),
		retriever: retriever,
		nearest:   nearest,
		close:     func() { store.Close() },
	}, nil
}

func answerOne(ctx context.Context, h *ragHandles, query string) error {
	if showHits {
		retrieved, err := h.retriever.Retrieve(ctx, query)
		if err != nil {
			return err
		}
		if len(retrieved.Hits) == 0 && cfg.Retrieval.Threshold > 0 {
			fmt.Println("no results under threshold, showing nearest:")
			if retrieved, err = h.nearest.Retrieve(ctx, query); err != nil {
				return err
			}
		}
		for _, hit := range retrieved.Hits {
			fmt.Printf("  %6.3f  %s\n", hit.Distance, hit.Text)
		}
	}

	answer, err := h.svc.Ask(ctx, query)
	if err != nil {
		return err
	}
	fmt.Println(answer.Text)
	for _, src := range answer.Sources {
		fmt.Println("  " + src)
	}
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask \"<query>\"",
	Short: "Answer one question against the ingested knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newRAGService(cmd.Context())
		if err != nil {
			return err
		}
		defer h.close()
		return answerOne(cmd.Context(), h, args[0])
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive question loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := newRAGService(ctx)
		if err != nil {
			return err
		}
		defer h.close()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("\nAskWikidata >> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}
			if query == "exit" || query == "quit" {
				return nil
			}
			if err := answerOne(ctx, h, query); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
	},
}

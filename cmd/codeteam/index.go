package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/WhitenWhiten/CodeTeam/config"
	"github.com/WhitenWhiten/CodeTeam/retrieval"
)

func newIndexCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		indexPath string
		query     string
	)

	cmd := &cobra.Command{
		Use:   "index <corpus.json>",
		Short: "Load a reference corpus into the retrieval index",
		Long: `Indexes a JSON array of {"full_name", "description", "readme"} entries into
the SQLite full-text index used to enrich planning prompts. Loading an
unchanged corpus is a no-op. Use --query to try a search afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if indexPath == "" {
				indexPath = cfg.RAG.IndexPath
			}

			return indexCorpus(cmd.Context(), cmd.OutOrStdout(), indexPath, args[0], query, cfg.RAG.TopK)
		},
	}

	cmd.Flags().StringVar(&indexPath, "index", "", "Index database path (defaults to rag.index_path)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Query the index after loading")

	return cmd
}

func indexCorpus(ctx context.Context, out io.Writer, indexPath, corpus, query string, topK int) error {
	idx, err := retrieval.Open(indexPath, func(o *retrieval.Options) {
		if topK > 0 {
			o.TopK = topK
		}
	})
	if err != nil {
		return err
	}
	defer idx.Close()

	n, err := idx.LoadCorpusFile(ctx, corpus)
	if err != nil {
		return err
	}

	total, err := idx.Count(ctx)
	if err != nil {
		return err
	}

	if n == 0 {
		fmt.Fprintf(out, "corpus unchanged, %d documents indexed in %s\n", total, indexPath)
	} else {
		fmt.Fprintf(out, "indexed %d documents into %s\n", n, indexPath)
	}

	if query == "" {
		return nil
	}

	for i, d := range idx.Query(ctx, query) {
		fmt.Fprintf(out, "[%d] %s\n", i+1, d.Source)
	}

	return nil
}

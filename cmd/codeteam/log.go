package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WhitenWhiten/CodeTeam/engine"
	"github.com/WhitenWhiten/CodeTeam/repository"
)

func newLogCmd() *cobra.Command {
	var audit bool

	cmd := &cobra.Command{
		Use:   "log <repository>",
		Short: "Print the commit history of a generated repository",
		Long: `Prints the commits of a repository created by "codeteam run" with the sqlite
or git history backend. With --audit only per-file commits are shown,
together with the rationale and interface changes of each.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLog(cmd.Context(), cmd.OutOrStdout(), args[0], audit)
		},
	}

	cmd.Flags().BoolVar(&audit, "audit", false, "Show the audit trail instead of the raw history")

	return cmd
}

// openHistory finds the persisted history of root.
func openHistory(ctx context.Context, root string) (repository.History, error) {
	if _, err := os.Stat(engine.HistoryDBPath(root)); err == nil {
		return repository.OpenSQLiteHistory(engine.HistoryDBPath(root))
	}

	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		return repository.NewGitHistory(ctx, root)
	}

	return nil, errors.New("no persisted history found; runs using the memory backend keep none")
}

func printLog(ctx context.Context, out io.Writer, root string, audit bool) error {
	h, err := openHistory(ctx, root)
	if err != nil {
		return fmt.Errorf("%s: %w", root, err)
	}
	defer h.Close()

	commits, err := h.List(ctx)
	if err != nil {
		return err
	}

	if !audit {
		for _, c := range commits {
			fmt.Fprintf(out, "%s %s %-8s +%d -%d %s\n",
				shortID(c.ID), c.Time.Format("2006-01-02 15:04:05"), orDash(c.Agent),
				c.LinesAdded, c.LinesRemoved, strings.Join(c.Paths, ","))
		}

		return nil
	}

	trail, err := repository.AuditTrail(commits)
	if err != nil {
		return err
	}

	for _, e := range trail {
		r := e.Record
		fmt.Fprintf(out, "%s %s [%s]\n", e.Agent, e.Path, r.ChangeType)
		fmt.Fprintf(out, "    %s\n", r.Rationale)

		for _, fn := range r.FunctionsAdded {
			fmt.Fprintf(out, "    + %s\n", fn.Signature)
		}

		for _, fn := range r.FunctionsModified {
			fmt.Fprintf(out, "    ~ %s\n", fn.Signature)
		}

		for _, fn := range r.FunctionsRemoved {
			fmt.Fprintf(out, "    - %s\n", fn.Signature)
		}

		if len(r.RelatedFilesBriefUsed) > 0 {
			fmt.Fprintf(out, "    briefs: %s\n", strings.Join(r.RelatedFilesBriefUsed, ", "))
		}
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

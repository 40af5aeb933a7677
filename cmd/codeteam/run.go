package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	codeteam "github.com/WhitenWhiten/CodeTeam"
	"github.com/WhitenWhiten/CodeTeam/config"
	"github.com/WhitenWhiten/CodeTeam/engine"
)

var errRunFailed = errors.New("tests did not pass")

type runFlags struct {
	provider  string
	mode      string
	history   string
	workspace string
	maxRounds int
}

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Generate a repository for a question",
		Long: `Runs the full pipeline: plan, select, init_repo, init_tests, implement,
converge and shutdown. The question defaults to the one in the configuration.
The command exits non-zero when a stage fails or the final tests do not pass.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			f.apply(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd.OutOrStdout(), cfg, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: mock, openai, anthropic or ollama")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Scheduling mode: threaded or cooperative")
	cmd.Flags().StringVar(&f.history, "history", "", "Commit history backend: memory, sqlite or git")
	cmd.Flags().StringVar(&f.workspace, "workspace", "", "Directory run repositories are created under")
	cmd.Flags().IntVar(&f.maxRounds, "max-rounds", 0, "Maximum number of fix rounds")

	return cmd
}

func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.provider != "" {
		cfg.LLM.Provider = f.provider
	}

	if f.mode != "" {
		cfg.Mode = f.mode
	}

	if f.history != "" {
		cfg.History = f.history
	}

	if f.workspace != "" {
		cfg.Workspace = f.workspace
	}

	if cmd.Flags().Changed("max-rounds") {
		cfg.MaxRounds = f.maxRounds
	}
}

func run(ctx context.Context, out io.Writer, cfg *config.Config, question string, optFns ...func(o *codeteam.Options)) error {
	team, err := codeteam.New(ctx, cfg, optFns...)
	if err != nil {
		return err
	}
	defer team.Close()

	res, err := team.Run(ctx, question)
	if res != nil {
		printResult(out, res)
	}

	if err != nil {
		return err
	}

	if !res.Success() {
		return errRunFailed
	}

	return nil
}

func printResult(out io.Writer, res *engine.Result) {
	fmt.Fprintf(out, "run:        %s\n", res.RunID)

	if res.Plan != nil {
		fmt.Fprintf(out, "plan:       %s (%s, %d candidates)\n", res.Plan.ID, res.Plan.TechStack.Language, res.Candidates)
	}

	if res.RepoRoot != "" {
		fmt.Fprintf(out, "repository: %s\n", res.RepoRoot)
	}

	fmt.Fprintf(out, "commits:    %d\n", res.Commits)

	if res.Outcome != nil {
		fmt.Fprintf(out, "rounds:     %d (%s)\n", res.Outcome.Rounds, res.Outcome.Reason)
		fmt.Fprintf(out, "tests:      %s\n", passFail(res.Outcome.Final.Success))

		for _, f := range res.Outcome.Final.Failures {
			fmt.Fprintf(out, "  - %s: %s\n", orUnknown(f.FilePath), f.Message)
		}
	}

	if res.FailedTasks > 0 {
		fmt.Fprintf(out, "failed tasks: %d\n", res.FailedTasks)
	}

	fmt.Fprintf(out, "duration:   %s\n", res.Duration.Round(time.Millisecond))
}

func passFail(ok bool) string {
	if ok {
		return "passed"
	}

	return "failed"
}

func orUnknown(s string) string {
	if s == "" {
		return "(unattributed)"
	}

	return s
}

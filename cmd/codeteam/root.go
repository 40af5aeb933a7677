package main

import (
	"github.com/spf13/cobra"

	"github.com/WhitenWhiten/CodeTeam/config"
)

// newRootCmd represents the base command when called without any subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "codeteam",
		Short: "Multi-agent code generation with test-driven convergence",
		Long: `codeteam plans a small repository from a question, implements it with
parallel developer agents, writes tests with a QA agent and repairs the code
until the tests pass or the round budget is spent.

Available commands:
  run     - Generate a repository for a question
  log     - Print the commit history and audit trail of a generated repository
  index   - Load a reference corpus into the retrieval index`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML configuration file (defaults apply when omitted)")

	load := func() (*config.Config, error) { return config.Load(cfgFile) }

	root.AddCommand(newRunCmd(load))
	root.AddCommand(newLogCmd())
	root.AddCommand(newIndexCmd(load))

	return root
}

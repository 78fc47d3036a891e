package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for collabgen
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collabgen",
		Short: "Staged collaboration report generator",
		Long: `Collabgen generates collaboration reports for a pair of companies by
running three generation stages in sequence: research, product strategy
and marketing strategy.

Each stage builds on the output of the previous one. Calls to the
generation service are retried with backoff and guarded by a circuit
breaker, and a run always yields a report with per-stage status even when
later stages fail.`,
		Version: Version,
		// main prints the error; avoid duplicate help and error text
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: .collabgen/config.yaml)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files")
	flags.String("model", "", "Model used for generation")
	flags.String("storage-driver", "", "Report storage driver: sqlite or file")
	flags.String("storage-path", "", "Report database file or directory")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewStageCommand())
	cmd.AddCommand(NewReviewCommand())
	cmd.AddCommand(NewBatchCommand())
	cmd.AddCommand(NewReportsCommand())
	cmd.AddCommand(NewHealthCommand())

	return cmd
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/collabgen/internal/display"
	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/pipeline"
)

// ErrPipelineFailed is returned when no stage of a run completed.
var ErrPipelineFailed = errors.New("pipeline failed")

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <company> <partner> <domain>",
		Short: "Generate a collaboration report",
		Long: `Run the research, product and marketing stages for a company pair and
save the combined report.

A stage runs only when the previous one completed. The report is saved
even when later stages fail; the exit status is non-zero only when no
stage completed.

Examples:
  collabgen run "Acme Corp" "Globex" AI
  collabgen run Acme Globex Robotics --output report.md
  collabgen run Acme Globex XR --json`,
		Args: cobra.ExactArgs(3),
		RunE: runCommand,
	}

	cmd.Flags().StringP("output", "o", "", "Also write the combined report to this file")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().Bool("quiet", false, "Do not print live stage progress")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	req := models.Request{CompanyName: args[0], PartnerCompany: args[1], Domain: args[2]}.Normalize()

	quiet, _ := cmd.Flags().GetBool("quiet")
	var progress *pipeline.ProgressReporter
	if !quiet {
		progress = pipeline.NewProgressReporter()
	}

	a, err := newApp(cmd, appOptions{generation: true, storage: true, progress: progress})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := req.Validate(a.cfg.AllowedDomains); err != nil {
		return err
	}

	streamed := make(chan struct{})
	if progress != nil {
		go func() {
			display.StreamEvents(cmd.ErrOrStderr(), progress.Subscribe())
			close(streamed)
		}()
	} else {
		close(streamed)
	}

	result := a.orch.Run(cmd.Context(), req)
	if progress != nil {
		progress.Close()
	}
	<-streamed

	return printResult(cmd, result)
}

func printResult(cmd *cobra.Command, result *models.PipelineResult) error {
	out := cmd.OutOrStdout()

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, []byte(result.CombinedArtifact), 0644); err != nil {
			return fmt.Errorf("failed to write report to %s: %w", path, err)
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		display.NewPrinter(out).Result(result)
	}

	if result.Status == models.StatusFailed {
		return fmt.Errorf("%w: report %s", ErrPipelineFailed, result.ID)
	}
	return nil
}

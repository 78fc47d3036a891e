package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/collabgen/internal/display"
	"github.com/harrison/collabgen/internal/storage"
)

// NewReviewCommand creates the review command
func NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review [file]",
		Short: "Score content with the quality gate",
		Long: `Ask the generation service to score content and approve it or request
revisions. Content is read from a file or, with --report, from a stored
report.

Examples:
  collabgen review draft.md --content-type "product strategy"
  collabgen review --report 3f2b...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReview,
	}

	cmd.Flags().String("content-type", "report", "Content type label sent with the content")
	cmd.Flags().String("report", "", "Review the stored report with this ID")

	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	reportID, _ := cmd.Flags().GetString("report")
	contentType, _ := cmd.Flags().GetString("content-type")
	if (reportID == "") == (len(args) == 0) {
		return fmt.Errorf("provide either a file or --report")
	}

	a, err := newApp(cmd, appOptions{generation: true, storage: reportID != ""})
	if err != nil {
		return err
	}
	defer a.Close()

	var content string
	if reportID != "" {
		content, err = storage.Markdown(cmd.Context(), a.store, reportID)
		if err != nil {
			return fmt.Errorf("failed to load report %s: %w", reportID, err)
		}
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		content = string(data)
	}

	review, err := a.orch.Review(cmd.Context(), content, contentType)
	if err != nil {
		return err
	}
	display.NewPrinter(cmd.OutOrStdout()).Review(review)
	return nil
}

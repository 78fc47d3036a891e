package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/collabgen/internal/config"
	"github.com/harrison/collabgen/internal/display"
	"github.com/harrison/collabgen/internal/markdown"
	"github.com/harrison/collabgen/internal/storage"
)

// NewReportsCommand creates the reports command group
func NewReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse and manage saved reports",
	}

	cmd.AddCommand(newReportsListCommand())
	cmd.AddCommand(newReportsShowCommand())
	cmd.AddCommand(newReportsDownloadCommand())
	cmd.AddCommand(newReportsDeleteCommand())
	cmd.AddCommand(newReportsWatchCommand())

	return cmd
}

func newReportsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var opts storage.ListOptions
			opts.Page, _ = cmd.Flags().GetInt("page")
			opts.Limit, _ = cmd.Flags().GetInt("limit")
			opts.Sort, _ = cmd.Flags().GetString("sort")
			opts.Order, _ = cmd.Flags().GetString("order")

			page, err := a.store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			display.NewPrinter(cmd.OutOrStdout()).ReportList(page)
			return nil
		},
	}

	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("limit", storage.DefaultLimit, "Reports per page (max 100)")
	cmd.Flags().String("sort", storage.SortCreatedAt, "Sort by created_at or company_name")
	cmd.Flags().String("order", storage.OrderDesc, "Sort order: asc or desc")
	cmd.Flags().Bool("json", false, "Print the page as JSON")

	return cmd
}

func newReportsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved report's status and sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return reportError(args[0], err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			display.NewPrinter(cmd.OutOrStdout()).Report(report)
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Print the full report as JSON")

	return cmd
}

func newReportsDownloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Write a saved report as Markdown or HTML",
		Long: `Write the combined report to stdout or a file.

Examples:
  collabgen reports download <id> > report.md
  collabgen reports download <id> --format html --output report.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format != "md" && format != "html" {
				return fmt.Errorf("invalid format %q, must be md or html", format)
			}

			a, err := newApp(cmd, appOptions{storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return reportError(args[0], err)
			}

			data := []byte(report.Content)
			if format == "html" {
				title := fmt.Sprintf("Collaboration Report: %s & %s", report.CompanyName, report.PartnerCompany)
				html, err := markdown.ToHTMLDocument(title, report.Content)
				if err != nil {
					return fmt.Errorf("failed to render report: %w", err)
				}
				data = []byte(html)
			}

			if path, _ := cmd.Flags().GetString("output"); path != "" {
				if err := os.WriteFile(path, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().String("format", "md", "Output format: md or html")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	return cmd
}

func newReportsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
				return reportError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
			return nil
		},
	}
}

func newReportsWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print reports as they are saved or deleted",
		Long: `Follow the report directory and print one line per change, including
changes made by other collabgen processes. Requires the file storage
driver. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			fs, ok := a.store.(*storage.FileStore)
			if !ok {
				return fmt.Errorf("reports watch requires the %s storage driver", config.DriverFile)
			}
			events, err := fs.Watch(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s\n", a.cfg.Storage.Path)
			for ev := range events {
				if ev.Summary == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Op, ev.ID)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s & %s (%s)\n", ev.Op, ev.ID,
					ev.Summary.CompanyName, ev.Summary.PartnerCompany, ev.Summary.Status)
			}
			return nil
		},
	}
}

func reportError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("report %s not found", id)
	}
	if errors.Is(err, storage.ErrInvalidID) {
		return fmt.Errorf("invalid report id %q", id)
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

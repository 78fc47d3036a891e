package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harrison/collabgen/internal/display"
	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/resilience"
)

// NewBatchCommand creates the batch command
func NewBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <requests.yaml>",
		Short: "Generate reports for many company pairs",
		Long: `Run one pipeline per request listed in a YAML file. Runs share the
circuit breaker and execute concurrently up to max_concurrency. Each run
gets the full pipeline timeout, and the breaker state is printed after the
summary.

The file is a list of requests:

  - company_name: Acme
    partner_company: Globex
    domain: AI
  - company_name: Initech
    partner_company: Hooli
    domain: Finance

Every request is validated before any run starts.`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}

	cmd.Flags().Int("max-concurrency", 0, "Maximum concurrent pipelines (default: config max_concurrency)")

	return cmd
}

// loadBatchFile parses and validates a YAML list of requests.
func loadBatchFile(path string, allowedDomains []string) ([]models.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var reqs []models.Request
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("batch file %s lists no requests", path)
	}

	for i := range reqs {
		reqs[i] = reqs[i].Normalize()
		if err := reqs[i].Validate(allowedDomains); err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
	}
	return reqs, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{generation: true, storage: true})
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := loadBatchFile(args[0], a.cfg.AllowedDomains)
	if err != nil {
		return err
	}

	a.log.LogInfo(fmt.Sprintf("running %d pipelines with concurrency %d", len(reqs), a.cfg.MaxConcurrency))
	results := a.orch.RunBatch(cmd.Context(), reqs, a.cfg.MaxConcurrency)

	printer := display.NewPrinter(cmd.OutOrStdout())
	counts := map[models.OverallStatus]int{}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "\n[%d/%d] %s & %s (%s)\n", i+1, len(results),
			reqs[i].CompanyName, reqs[i].PartnerCompany, reqs[i].Domain)
		printer.Result(r)
		counts[r.Status]++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nBatch: %d completed, %d partial, %d failed\n",
		counts[models.StatusCompleted], counts[models.StatusPartial], counts[models.StatusFailed])

	state := a.executor.Breaker().State()
	printer.Health("circuit breaker", !state.Open, breakerDetail(state))

	if counts[models.StatusFailed] == len(results) {
		return fmt.Errorf("%w: every run in the batch failed", ErrPipelineFailed)
	}
	return nil
}

func breakerDetail(s resilience.BreakerState) string {
	switch {
	case s.Open:
		return fmt.Sprintf("open since %s (%d consecutive failures)", s.OpenedAt.Format("15:04:05"), s.ConsecutiveFailures)
	case s.Probing:
		return "half-open"
	}
	return fmt.Sprintf("closed (%d/%d failures)", s.ConsecutiveFailures, s.Threshold)
}


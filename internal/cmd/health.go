package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harrison/collabgen/internal/display"
)

// ErrUnhealthy is returned when a dependency check fails.
var ErrUnhealthy = errors.New("one or more health checks failed")

// NewHealthCommand creates the health command
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the generation service and report store",
		Long: `Probe the generation service and the report store concurrently.

The probe bypasses the circuit breaker and never changes its state. Breaker
state is per process, so it is reported at the end of a batch instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{generation: true, storage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			return runHealth(cmd, a)
		},
	}

	return cmd
}

func runHealth(cmd *cobra.Command, a *app) error {
	var probeErr error
	storeOK := false

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		probeErr = a.executor.Probe(ctx)
		return nil
	})
	g.Go(func() error {
		storeOK = a.store.HealthCheck(ctx)
		return nil
	})
	_ = g.Wait()

	p := display.NewPrinter(cmd.OutOrStdout())
	p.Health("generation service", probeErr == nil, errDetail(probeErr))
	p.Health("report store", storeOK, a.cfg.Storage.Driver+" "+a.cfg.Storage.Path)

	if probeErr != nil || !storeOK {
		return ErrUnhealthy
	}
	return nil
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

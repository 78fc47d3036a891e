// Package display renders pipeline results, reports and live progress for
// the terminal.
//
// Output goes to an io.Writer. Color is used only when the writer is a
// terminal and color has not been disabled globally:
//
//	p := display.NewPrinter(os.Stdout)
//	p.Result(result)
//
// Live progress is streamed from a pipeline.ProgressReporter:
//
//	go display.StreamEvents(os.Stderr, progress.Subscribe())
package display

package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/stage"
	"github.com/harrison/collabgen/internal/storage"
)

// ColorEnabled reports whether w is a terminal that should get colors.
func ColorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes human-readable renderings to a writer.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a Printer that colors output only on terminals.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: ColorEnabled(w)}
}

func (p *Printer) paint(s string, attrs ...color.Attribute) string {
	if !p.color {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func (p *Printer) statusBadge(s models.OverallStatus) string {
	label := strings.ToUpper(string(s))
	switch s {
	case models.StatusCompleted:
		return p.paint(label, color.FgGreen, color.Bold)
	case models.StatusPartial:
		return p.paint(label, color.FgYellow, color.Bold)
	default:
		return p.paint(label, color.FgRed, color.Bold)
	}
}

func (p *Printer) stateMark(s models.StageState) string {
	switch s {
	case models.StateCompleted:
		return p.paint("✓", color.FgGreen)
	case models.StateSkipped:
		return p.paint("○", color.FgHiBlack)
	default:
		return p.paint("✗", color.FgRed)
	}
}

func (p *Printer) stages(stages []models.StageStatus) {
	for _, s := range stages {
		line := fmt.Sprintf("  %s %-10s %s", p.stateMark(s.State), s.Name, s.State)
		switch {
		case s.IsCompleted():
			line += fmt.Sprintf(" (%d chars)", len(s.Output))
		case s.Error != "":
			line += ": " + s.Error
		}
		fmt.Fprintln(p.w, line)
	}
}

// Result prints the outcome of a pipeline run.
func (p *Printer) Result(r *models.PipelineResult) {
	fmt.Fprintf(p.w, "Report %s: %s (%d/%d stages)\n",
		r.ID, p.statusBadge(r.Status), r.CompletedCount(), len(r.Stages))
	p.stages(r.Stages)
	fmt.Fprintf(p.w, "Tokens: %d  Duration: %s\n", r.TokensConsumed, r.Elapsed.Round(time.Millisecond))
}

// Report prints a stored report's metadata and section statuses.
func (p *Printer) Report(r *models.Report) {
	fmt.Fprintf(p.w, "%s\n", p.paint(fmt.Sprintf("%s & %s", r.CompanyName, r.PartnerCompany), color.Bold))
	fmt.Fprintf(p.w, "ID:       %s\n", r.ID)
	fmt.Fprintf(p.w, "Domain:   %s\n", r.Domain)
	fmt.Fprintf(p.w, "Status:   %s\n", p.statusBadge(r.Status))
	fmt.Fprintf(p.w, "Created:  %s\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(p.w, "Duration: %dms  Tokens: %d\n", r.ExecutionMs, r.TokensUsed)
	fmt.Fprintln(p.w, "Sections:")
	p.stages(r.Sections)
}

// ReportList prints one page of report summaries as a table.
func (p *Printer) ReportList(page *storage.ReportPage) {
	if len(page.Reports) == 0 {
		fmt.Fprintln(p.w, "No reports found")
		return
	}

	companyW, partnerW := len("COMPANY"), len("PARTNER")
	for _, r := range page.Reports {
		companyW = max(companyW, len(r.CompanyName))
		partnerW = max(partnerW, len(r.PartnerCompany))
	}

	row := fmt.Sprintf("%%-36s  %%-%ds  %%-%ds  %%-13s  %%-9s  %%s\n", companyW, partnerW)
	fmt.Fprintf(p.w, row, "ID", "COMPANY", "PARTNER", "DOMAIN", "STATUS", "CREATED")
	for _, r := range page.Reports {
		fmt.Fprintf(p.w, row, r.ID, r.CompanyName, r.PartnerCompany, r.Domain, r.Status,
			r.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(p.w, "Page %d of %d (%d reports)\n", page.Page, max(page.TotalPages(), 1), page.Total)
}

// Review prints a quality-gate verdict followed by the full evaluation.
func (p *Printer) Review(r *stage.Review) {
	verdict := p.paint("NEEDS REVISION", color.FgYellow, color.Bold)
	if r.Approved {
		verdict = p.paint("APPROVED", color.FgGreen, color.Bold)
	}
	fmt.Fprintf(p.w, "Verdict: %s  Score: %d/10\n\n", verdict, r.Score)
	fmt.Fprintln(p.w, r.Evaluation)
}

// Health prints one line per health probe.
func (p *Printer) Health(name string, ok bool, detail string) {
	mark := p.paint("✓", color.FgGreen)
	if !ok {
		mark = p.paint("✗", color.FgRed)
	}
	line := fmt.Sprintf("%s %s", mark, name)
	if detail != "" {
		line += ": " + detail
	}
	fmt.Fprintln(p.w, line)
}

package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/pipeline"
	"github.com/harrison/collabgen/internal/stage"
	"github.com/harrison/collabgen/internal/storage"
)

func partialResult() *models.PipelineResult {
	r := models.NewPipelineResult("run-1", time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	r.SetStage(models.Completed(models.StageResearch, "research"))
	r.SetStage(models.Failed(models.StageProduct, "stage timed out"))
	r.SetStage(models.Skipped(models.StageMarketing, "product stage did not complete"))
	r.Status = models.StatusPartial
	r.TokensConsumed = 450
	r.Elapsed = 1234 * time.Millisecond
	return r
}

func TestColorEnabled_NonTerminal(t *testing.T) {
	if ColorEnabled(&bytes.Buffer{}) {
		t.Error("a buffer is never a terminal")
	}
}

func TestPrinter_Result(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Result(partialResult())
	out := buf.String()

	for _, want := range []string{
		"Report run-1: PARTIAL (1/3 stages)",
		"✓ research   completed (8 chars)",
		"✗ product    failed: stage timed out",
		"○ marketing  skipped: product stage did not complete",
		"Tokens: 450  Duration: 1.234s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output must not contain ANSI codes")
	}
}

func TestPrinter_Report(t *testing.T) {
	result := partialResult()
	report := models.NewReport(result, models.Request{CompanyName: "Acme", PartnerCompany: "Globex", Domain: "AI"})

	var buf bytes.Buffer
	NewPrinter(&buf).Report(report)
	out := buf.String()

	for _, want := range []string{"Acme & Globex", "ID:       run-1", "Domain:   AI", "Status:   PARTIAL", "Created:  2026-05-01 09:00:00 UTC", "Tokens: 450"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_ReportList(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.ReportList(&storage.ReportPage{Page: 1, Limit: 20})
	if !strings.Contains(buf.String(), "No reports found") {
		t.Errorf("empty page output = %q", buf.String())
	}

	buf.Reset()
	p.ReportList(&storage.ReportPage{
		Page: 1, Limit: 1, Total: 2,
		Reports: []models.ReportSummary{{
			ID: "abc", CompanyName: "Acme", PartnerCompany: "Globex", Domain: "AI",
			Status: models.StatusCompleted, CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		}},
	})
	out := buf.String()
	for _, want := range []string{"ID", "COMPANY", "Acme", "Globex", "completed", "2026-05-01 09:30", "Page 1 of 2 (2 reports)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_Review(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Review(stage.ParseReview("Overall score: 8/10\nAPPROVED"))
	if !strings.Contains(buf.String(), "Verdict: APPROVED  Score: 8/10") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrinter_Health(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Health("llm", true, "")
	p.Health("storage", false, "unreachable")

	want := "✓ llm\n✗ storage: unreachable\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestStreamEvents(t *testing.T) {
	events := make(chan pipeline.Event, 2)
	events <- pipeline.Event{Kind: pipeline.EventStageStarted, Stage: models.StageResearch}
	events <- pipeline.Event{Kind: pipeline.EventRunFinished, RunID: "r", Status: models.StatusCompleted}
	close(events)

	var buf bytes.Buffer
	StreamEvents(&buf, events)

	want := "  ● research...\n■ run r finished: completed\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWarning_Display(t *testing.T) {
	var buf bytes.Buffer
	WarnMissingAPIKey("OPENAI_API_KEY").Display(&buf)
	out := buf.String()

	for _, want := range []string{"⚠️  Warning: API key not set", "    OPENAI_API_KEY is empty", "    Suggestion:\n    export OPENAI_API_KEY=<key>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

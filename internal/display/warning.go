package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string // Main warning title
	Message    string // Detailed explanation (optional)
	Suggestion string // Action to take (optional)
}

// Display shows a formatted warning, in yellow on terminals
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	if !ColorEnabled(out) {
		fmt.Fprint(out, b.String())
		return
	}
	c := color.New(color.FgYellow)
	c.EnableColor()
	fmt.Fprint(out, c.Sprint(b.String()))
}

// WarnMissingAPIKey is shown when the configured key variable is empty.
func WarnMissingAPIKey(envVar string) Warning {
	return Warning{
		Title:      "API key not set",
		Message:    fmt.Sprintf("%s is empty; every call to the generation service will fail", envVar),
		Suggestion: fmt.Sprintf("export %s=<key> or set llm.api_key_env in the config", envVar),
	}
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/harrison/collabgen/internal/models"
)

const sectionSeparator = "\n\n---\n\n"

var sectionTitles = map[models.StageName]string{
	models.StageResearch:  "Part 1: Research Analysis",
	models.StageProduct:   "Part 2: Product Strategy",
	models.StageMarketing: "Part 3: Marketing Strategy",
}

// BuildArtifact assembles the combined report: a header block followed by
// the output of every completed stage in pipeline order. Stages that did
// not complete contribute nothing.
func BuildArtifact(result *models.PipelineResult, req models.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Collaboration Report: %s & %s\n\n", req.CompanyName, req.PartnerCompany)
	fmt.Fprintf(&sb, "**Domain**: %s  \n", req.Domain)
	fmt.Fprintf(&sb, "**Report ID**: %s  \n", result.ID)
	fmt.Fprintf(&sb, "**Generated**: %s\n\n", result.CreatedAt.UTC().Format("2006-01-02 15:04:05")+" UTC")
	sb.WriteString("---\n\n")

	var sections []string
	for _, name := range models.PipelineStages {
		s, ok := result.Stage(name)
		if !ok || !s.IsCompleted() {
			continue
		}
		sections = append(sections, fmt.Sprintf("# %s\n\n%s", sectionTitles[name], s.Output))
	}
	sb.WriteString(strings.Join(sections, sectionSeparator))
	return sb.String()
}

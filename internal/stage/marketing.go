package stage

import (
	"fmt"

	"github.com/harrison/collabgen/internal/models"
)

// Marketing builds a go-to-market plan from the research and product reports.
type Marketing struct{}

var _ Stage = Marketing{}

var marketingCheck = heuristic{
	minLength:   4000,
	keywords:    []string{"marketing", "audience", "channel", "content", "strategy", "launch"},
	minKeywords: 4,
}

func (Marketing) Name() models.StageName { return models.StageMarketing }

func (Marketing) SystemPreamble() string {
	return `You are a go-to-market strategist. Build a marketing plan that follows
directly from the research and product strategy you are given: audiences,
positioning, channels, content, launch sequencing, budget and measurement.

Be concrete about segments, messages and timelines. Write Markdown,
at least 1200 words.`
}

func (Marketing) BuildInput(in Input) string {
	return fmt.Sprintf(`# Marketing Strategy Request

Create a go-to-market strategy for the %[2]s collaboration led by %[1]s.

## Research Insights
%[3]s

---

## Product Strategy
%[4]s

---

## Required Sections
1. Executive summary
2. Target audience segments and buyer personas
3. Positioning statement, key messages and competitive positioning
4. Launch plan and channel strategy (digital, partner, events, direct sales)
5. Content pillars and thought leadership
6. Sales enablement
7. Regional considerations
8. Budget framework
9. Timeline and milestones
10. KPIs and measurement

## Output Format
Clean Markdown with headers, tables for budget and timeline, and bullet points.`,
		in.CompanyName, in.Domain, in.Research, in.Product)
}

func (Marketing) ValidateOutput(text string) bool {
	return marketingCheck.check(text)
}

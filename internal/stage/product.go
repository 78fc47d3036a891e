package stage

import (
	"fmt"

	"github.com/harrison/collabgen/internal/models"
)

// Product turns the research report into product ideas and specifications.
type Product struct{}

var _ Stage = Product{}

var productCheck = heuristic{
	minLength:   4000,
	keywords:    []string{"product", "feature", "usp", "specification", "priority"},
	minKeywords: 3,
}

func (Product) Name() models.StageName { return models.StageProduct }

func (Product) SystemPreamble() string {
	return `You are a product strategist. Turn research findings into concrete,
prioritized product concepts that address market gaps, use both companies'
strengths, are feasible within 12-18 months and have a clear revenue path.

For each concept give a unique selling proposition, a feature specification
with priorities, and the fit with the research evidence. Write Markdown,
at least 1200 words.`
}

func (Product) BuildInput(in Input) string {
	return fmt.Sprintf(`# Product Ideation Request

Using the research below, propose collaboration products in the %[2]s domain
for %[1]s.

## Research Report
%[3]s

---

## Deliverables
1. Three to five product concepts, each with a one-line pitch and target user
2. A unique selling proposition per concept
3. Feature specifications split into must-have, should-have and later
4. Technical feasibility and dependencies
5. A prioritization matrix (impact vs effort) and a recommended first product
6. Revenue model and success metrics

## Output Format
Clean Markdown with headers, tables where useful, and explicit priorities.`,
		in.CompanyName, in.Domain, in.Research)
}

func (Product) ValidateOutput(text string) bool {
	return productCheck.check(text)
}

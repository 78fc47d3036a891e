package stage

import (
	"fmt"

	"github.com/harrison/collabgen/internal/models"
)

// Research analyzes both companies and their collaboration opportunities.
type Research struct{}

var _ Stage = Research{}

var researchCheck = heuristic{
	minLength:   5000,
	keywords:    []string{"company", "market", "technology", "opportunity", "recommendation"},
	minKeywords: 3,
}

func (Research) Name() models.StageName { return models.StageResearch }

func (Research) SystemPreamble() string {
	return `You are a business research analyst and technology strategist.
Report on two companies from two angles: their present operations (portfolio,
pricing, partnerships, financials, technology) and their future in the given
domain (roadmaps, R&D, emerging trends, joint opportunities).

Write well-structured Markdown. Be specific: cite figures and examples, give
at least three data points per section, and keep recommendations actionable
for product and marketing teams. Aim for at least 1500 words.`
}

func (Research) BuildInput(in Input) string {
	return fmt.Sprintf(`# Research Analysis Request

## Companies
- **Primary Company**: %[1]s
- **Partner Company**: %[2]s
- **Industry Domain**: %[3]s

## Part 1: Current Business Analysis
Profile %[1]s and %[2]s: overview, product and service portfolio, market
position, key financials, technology capabilities and recent developments.
Then describe their current relationship: existing partnerships, competitive
dynamics, complementary capabilities and shared markets.

## Part 2: Future Technology Strategy
Cover %[3]s industry trends (emerging technologies, market size and growth,
key players, regulation), concrete collaboration opportunities, and strategic
recommendations for 0-12 months, 1-3 years and 3-5 years including risks.

## Output Format
Clean Markdown with headers and bullet points; include statistics wherever possible.`,
		in.CompanyName, in.PartnerCompany, in.Domain)
}

func (Research) ValidateOutput(text string) bool {
	return researchCheck.check(text)
}

package stage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/collabgen/internal/models"
)

// QualityGate asks the service to score generated content and approve or
// reject it. It runs on demand and never gates the sequential pipeline.
type QualityGate struct{}

var _ Stage = QualityGate{}

// Approval markers looked for in an evaluation.
const (
	markerApproved      = "approved"
	markerNeedsRevision = "needs revision"
)

// scorePatterns are tried in order against the lowercased evaluation.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`overall.*?score[:\s]+(\d+)`),
	regexp.MustCompile(`(\d+)/10`),
	regexp.MustCompile(`score[:\s]+(\d+)`),
}

func (QualityGate) Name() models.StageName { return models.StageQuality }

func (QualityGate) SystemPreamble() string {
	return `You are a quality assurance analyst reviewing generated business content.
Judge completeness, data quality, actionability, structure, plausibility of
claims and depth (at least three data points per section).

Give a quality score from 1 to 10 and list concrete issues. Content scoring 7
or more passes. If it passes, write "APPROVED". Otherwise write
"NEEDS REVISION" followed by specific improvement suggestions.`
}

func (QualityGate) BuildInput(in Input) string {
	contentType := in.ContentType
	if contentType == "" {
		contentType = "report"
	}
	return fmt.Sprintf(`# Quality Validation Request

## Content Type
%s

## Content to Evaluate
%s

---

## Evaluation
Score each of completeness, data quality, actionability and structure from 1 to 10,
then finish with:

#### Overall Quality Score: X/10
#### Decision: APPROVED or NEEDS REVISION
#### Issues Found
#### Improvement Suggestions
#### Summary`, contentType, in.Content)
}

// ValidateOutput requires a decision marker in the evaluation.
func (QualityGate) ValidateOutput(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, markerApproved) || strings.Contains(lower, markerNeedsRevision)
}

// IsApproved reports whether evaluation approves the content: an approval
// marker is present and no rejection marker is.
func IsApproved(evaluation string) bool {
	lower := strings.ToLower(evaluation)
	return strings.Contains(lower, markerApproved) && !strings.Contains(lower, markerNeedsRevision)
}

// ExtractScore returns the first score found in evaluation, or 0.
func ExtractScore(evaluation string) int {
	lower := strings.ToLower(evaluation)
	for _, re := range scorePatterns {
		m := re.FindStringSubmatch(lower)
		if len(m) < 2 {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// Review is the parsed outcome of a quality-gate run.
type Review struct {
	Evaluation string
	Approved   bool
	Score      int
}

// ParseReview builds a Review from a quality-gate evaluation.
func ParseReview(evaluation string) *Review {
	return &Review{
		Evaluation: evaluation,
		Approved:   IsApproved(evaluation),
		Score:      ExtractScore(evaluation),
	}
}

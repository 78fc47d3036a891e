package stage

import (
	"fmt"
	"strings"

	"github.com/harrison/collabgen/internal/markdown"
	"github.com/harrison/collabgen/internal/models"
)

// MinReportLength is the shortest prior report a single-stage run accepts.
const MinReportLength = 100

// MaxReportLength caps any report passed between stages.
const MaxReportLength = 1 << 20

// minHeadings is the structure every generated report is expected to have.
const minHeadings = 2

// heuristic is a keyword-and-length check over generated Markdown.
type heuristic struct {
	minLength   int
	keywords    []string
	minKeywords int
}

func (h heuristic) check(text string) bool {
	if len(text) < h.minLength {
		return false
	}
	lower := strings.ToLower(text)
	found := 0
	for _, k := range h.keywords {
		if strings.Contains(lower, k) {
			found++
		}
	}
	if found < h.minKeywords {
		return false
	}
	return markdown.CountHeadings(text) >= minHeadings
}

// CheckInput verifies that in carries what stage name needs before a
// standalone invocation.
func CheckInput(name models.StageName, in Input) error {
	switch name {
	case models.StageResearch:
		if in.PartnerCompany == "" {
			return &models.ValidationError{Field: "partner_company", Message: "must not be empty"}
		}
	case models.StageProduct:
		if err := checkReport("research_report", in.Research); err != nil {
			return err
		}
	case models.StageMarketing:
		if err := checkReport("research_report", in.Research); err != nil {
			return err
		}
		if err := checkReport("product_report", in.Product); err != nil {
			return err
		}
	case models.StageQuality:
		if strings.TrimSpace(in.Content) == "" {
			return &models.ValidationError{Field: "content", Message: "must not be empty"}
		}
		if len(in.Content) > MaxReportLength {
			return &models.ValidationError{Field: "content", Message: fmt.Sprintf("exceeds %d characters", MaxReportLength)}
		}
		return nil
	}
	if in.CompanyName == "" {
		return &models.ValidationError{Field: "company_name", Message: "must not be empty"}
	}
	if in.Domain == "" {
		return &models.ValidationError{Field: "domain", Message: "must not be empty"}
	}
	return nil
}

func checkReport(field, report string) error {
	if len(report) < MinReportLength {
		return &models.ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", MinReportLength)}
	}
	if len(report) > MaxReportLength {
		return &models.ValidationError{Field: field, Message: fmt.Sprintf("exceeds %d characters", MaxReportLength)}
	}
	return nil
}

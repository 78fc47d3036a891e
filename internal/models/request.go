package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// MaxNameLength is the longest accepted company name.
const MaxNameLength = 100

var companyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-\.&']+$`)

// Request holds the parameters of one pipeline run.
type Request struct {
	CompanyName    string `json:"company_name" yaml:"company_name"`
	PartnerCompany string `json:"partner_company" yaml:"partner_company"`
	Domain         string `json:"domain" yaml:"domain"`
}

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Normalize trims surrounding whitespace from every field.
func (r Request) Normalize() Request {
	return Request{
		CompanyName:    strings.TrimSpace(r.CompanyName),
		PartnerCompany: strings.TrimSpace(r.PartnerCompany),
		Domain:         strings.TrimSpace(r.Domain),
	}
}

// Validate checks names and the domain whitelist. An empty allowed list
// accepts any non-empty domain.
func (r Request) Validate(allowedDomains []string) error {
	n := r.Normalize()
	if err := validateCompanyName("company_name", n.CompanyName); err != nil {
		return err
	}
	if err := validateCompanyName("partner_company", n.PartnerCompany); err != nil {
		return err
	}
	if n.Domain == "" {
		return &ValidationError{Field: "domain", Message: "must not be empty"}
	}
	if len(allowedDomains) > 0 && !slices.Contains(allowedDomains, n.Domain) {
		return &ValidationError{
			Field:   "domain",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowedDomains, ", ")),
		}
	}
	return nil
}

func validateCompanyName(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if len(v) > MaxNameLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if !companyNamePattern.MatchString(v) {
		return &ValidationError{
			Field:   field,
			Message: "must contain only alphanumeric characters, spaces, hyphens, dots, ampersands, and apostrophes",
		}
	}
	return nil
}

// Report is the persisted form of a pipeline run.
type Report struct {
	ID             string        `json:"report_id"`
	CompanyName    string        `json:"company_name"`
	PartnerCompany string        `json:"partner_company"`
	Domain         string        `json:"domain"`
	Status         OverallStatus `json:"status"`
	Content        string        `json:"content"`
	Sections       []StageStatus `json:"sections"`
	CreatedAt      time.Time     `json:"created_at"`
	ExecutionMs    int64         `json:"execution_time_ms"`
	TokensUsed     int64         `json:"tokens_used"`
}

// NewReport combines a finalized result with the request that produced it.
func NewReport(result *PipelineResult, req Request) *Report {
	return &Report{
		ID:             result.ID,
		CompanyName:    req.CompanyName,
		PartnerCompany: req.PartnerCompany,
		Domain:         req.Domain,
		Status:         result.Status,
		Content:        result.CombinedArtifact,
		Sections:       append([]StageStatus(nil), result.Stages...),
		CreatedAt:      result.CreatedAt,
		ExecutionMs:    result.ElapsedMs(),
		TokensUsed:     result.TokensConsumed,
	}
}

// Summary drops the content of a report for listings.
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		ID:             r.ID,
		CompanyName:    r.CompanyName,
		PartnerCompany: r.PartnerCompany,
		Domain:         r.Domain,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		ExecutionMs:    r.ExecutionMs,
	}
}

// ReportSummary is one row of a report listing.
type ReportSummary struct {
	ID             string        `json:"report_id"`
	CompanyName    string        `json:"company_name"`
	PartnerCompany string        `json:"partner_company"`
	Domain         string        `json:"domain"`
	Status         OverallStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ExecutionMs    int64         `json:"execution_time_ms"`
}

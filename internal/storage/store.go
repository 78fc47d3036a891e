// Package storage persists finalized pipeline results as reports.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/harrison/collabgen/internal/models"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("report not found")

// ErrInvalidID is returned for ids that are not UUIDs.
var ErrInvalidID = errors.New("invalid report id")

// StorageError wraps a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the report persistence collaborator.
type Store interface {
	Save(ctx context.Context, result *models.PipelineResult, req models.Request) (string, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, opts ListOptions) (*ReportPage, error)
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) bool
	Close() error
}

// Sort keys and orders accepted by List.
const (
	SortCreatedAt   = "created_at"
	SortCompanyName = "company_name"
	OrderAsc        = "asc"
	OrderDesc       = "desc"

	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions selects one page of reports.
type ListOptions struct {
	Page  int
	Limit int
	Sort  string
	Order string
}

// Normalize fills defaults and rejects out-of-range values.
func (o ListOptions) Normalize() (ListOptions, error) {
	if o.Page == 0 {
		o.Page = 1
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Sort == "" {
		o.Sort = SortCreatedAt
	}
	if o.Order == "" {
		o.Order = OrderDesc
	}

	if o.Page < 1 {
		return o, &models.ValidationError{Field: "page", Message: "must be at least 1"}
	}
	if o.Limit < 1 || o.Limit > MaxLimit {
		return o, &models.ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if o.Sort != SortCreatedAt && o.Sort != SortCompanyName {
		return o, &models.ValidationError{Field: "sort", Message: "must be created_at or company_name"}
	}
	if o.Order != OrderAsc && o.Order != OrderDesc {
		return o, &models.ValidationError{Field: "order", Message: "must be asc or desc"}
	}
	return o, nil
}

func (o ListOptions) offset() int {
	return (o.Page - 1) * o.Limit
}

// ReportPage is one page of a listing.
type ReportPage struct {
	Reports []models.ReportSummary `json:"reports"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
}

// TotalPages returns the number of pages at the page's limit.
func (p *ReportPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasMore reports whether a later page exists.
func (p *ReportPage) HasMore() bool {
	return p.Page < p.TotalPages()
}

// Markdown returns the combined artifact of report id.
func Markdown(ctx context.Context, s Store, id string) (string, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Content, nil
}

// validateID rejects anything that is not a UUID before it reaches a
// query or a file path.
func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

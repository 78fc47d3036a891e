package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/collabgen/internal/models"
)

// FileStore keeps each report as <id>.json next to a readable <id>.md copy
// of its combined artifact. A lock file serializes writers across processes.
type FileStore struct {
	dir      string
	lockPath string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("create report directory: %w", err)}
	}
	return &FileStore{
		dir:      dir,
		lockPath: filepath.Join(dir, ".reports.lock"),
	}, nil
}

func (s *FileStore) jsonPath(id string) string { return filepath.Join(s.dir, id+".json") }
func (s *FileStore) mdPath(id string) string   { return filepath.Join(s.dir, id+".md") }

// newLock opens a fresh lock handle per call; flock locks taken through
// separate descriptors also exclude goroutines of the same process.
func (s *FileStore) newLock() *dirLock { return newDirLock(s.lockPath) }

// Save writes both files under the exclusive lock. The JSON record is
// written last so a listed report always has its Markdown copy.
func (s *FileStore) Save(ctx context.Context, result *models.PipelineResult, req models.Request) (string, error) {
	if err := validateID(result.ID); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	report := models.NewReport(result, req)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", &StorageError{Op: "save", Err: fmt.Errorf("marshal report: %w", err)}
	}

	lock := s.newLock()
	if err := lock.lock(ctx); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	defer lock.unlock()

	if err := atomicWrite(s.mdPath(report.ID), []byte(report.Content)); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	if err := atomicWrite(s.jsonPath(report.ID), data); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	return report.ID, nil
}

// Get reads one report under a shared lock.
func (s *FileStore) Get(ctx context.Context, id string) (*models.Report, error) {
	if err := validateID(id); err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	lock := s.newLock()
	if err := lock.rlock(ctx); err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	defer lock.unlock()

	return s.read(s.jsonPath(id))
}

func (s *FileStore) read(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &StorageError{Op: "get", Err: fmt.Errorf("decode %s: %w", filepath.Base(path), err)}
	}
	return &r, nil
}

// List decodes every record and pages the sorted summaries in memory.
func (s *FileStore) List(ctx context.Context, opts ListOptions) (*ReportPage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	lock := s.newLock()
	if err := lock.rlock(ctx); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer lock.unlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	summaries := make([]models.ReportSummary, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		r, err := s.read(p)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		summaries = append(summaries, r.Summary())
	}

	sortSummaries(summaries, opts.Sort, opts.Order)

	page := &ReportPage{Page: opts.Page, Limit: opts.Limit, Total: len(summaries), Reports: []models.ReportSummary{}}
	start := opts.offset()
	if start < len(summaries) {
		end := min(start+opts.Limit, len(summaries))
		page.Reports = summaries[start:end]
	}
	return page, nil
}

func sortSummaries(rs []models.ReportSummary, key, order string) {
	less := func(a, b models.ReportSummary) int {
		var c int
		switch key {
		case SortCompanyName:
			c = strings.Compare(a.CompanyName, b.CompanyName)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if order == OrderDesc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	}
	sort.SliceStable(rs, func(i, j int) bool { return less(rs[i], rs[j]) < 0 })
}

// Delete removes both files of a report.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	lock := s.newLock()
	if err := lock.lock(ctx); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	defer lock.unlock()

	err := os.Remove(s.jsonPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if err := os.Remove(s.mdPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// HealthCheck reports whether the directory is present and writable.
func (s *FileStore) HealthCheck(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	f, err := os.CreateTemp(s.dir, ".health-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	return os.Remove(name) == nil
}

// Close is a no-op; the lock is held only for the duration of a call.
func (s *FileStore) Close() error {
	return nil
}

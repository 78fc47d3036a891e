package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/collabgen/internal/models"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// migration is one versioned schema change.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial reports table",
		SQL: `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    company_name TEXT NOT NULL,
    partner_company TEXT NOT NULL,
    domain TEXT NOT NULL,
    status TEXT NOT NULL,
    content TEXT NOT NULL,
    sections TEXT NOT NULL,
    created_at TEXT NOT NULL,
    execution_time_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "Add token accounting and company index",
		SQL: `
ALTER TABLE reports ADD COLUMN tokens_used INTEGER DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_reports_company_name ON reports(company_name);
`,
	},
}

// SQLiteStore keeps reports in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations. ":memory:" opens a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StorageError{Op: "open", Err: fmt.Errorf("create database directory: %w", err)}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, &StorageError{Op: "open", Err: fmt.Errorf("set %s: %w", pragma, err)}
		}
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.applyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: err}
	}
	return s, nil
}

// execWithRetry executes a statement, retrying with exponential backoff
// while the database is locked by another connection.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// applyMigrations runs every migration not yet recorded in schema_version
// inside one transaction.
func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate versions: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.Version, time.Now().UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, &StorageError{Op: "schema version", Err: err}
	}
	return int(v.Int64), nil
}

// Save upserts the report for result.
func (s *SQLiteStore) Save(ctx context.Context, result *models.PipelineResult, req models.Request) (string, error) {
	if err := validateID(result.ID); err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	report := models.NewReport(result, req)

	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return "", &StorageError{Op: "save", Err: fmt.Errorf("marshal sections: %w", err)}
	}

	query := `INSERT INTO reports
		(id, company_name, partner_company, domain, status, content, sections, created_at, execution_time_ms, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			content = excluded.content,
			sections = excluded.sections,
			execution_time_ms = excluded.execution_time_ms,
			tokens_used = excluded.tokens_used`

	_, err = s.db.ExecContext(ctx, query,
		report.ID,
		report.CompanyName,
		report.PartnerCompany,
		report.Domain,
		string(report.Status),
		report.Content,
		string(sections),
		report.CreatedAt.UTC().Format(timeLayout),
		report.ExecutionMs,
		report.TokensUsed,
	)
	if err != nil {
		return "", &StorageError{Op: "save", Err: err}
	}
	return report.ID, nil
}

// Get loads one report.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Report, error) {
	if err := validateID(id); err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}

	query := `SELECT id, company_name, partner_company, domain, status, content, sections,
		created_at, execution_time_ms, tokens_used
		FROM reports WHERE id = ?`

	var (
		r         models.Report
		status    string
		sections  string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.CompanyName, &r.PartnerCompany, &r.Domain, &status, &r.Content,
		&sections, &createdAt, &r.ExecutionMs, &r.TokensUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}

	r.Status = models.OverallStatus(status)
	if err := json.Unmarshal([]byte(sections), &r.Sections); err != nil {
		return nil, &StorageError{Op: "get", Err: fmt.Errorf("unmarshal sections: %w", err)}
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, &StorageError{Op: "get", Err: fmt.Errorf("parse created_at: %w", err)}
	}
	return &r, nil
}

// List returns one page of report summaries.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) (*ReportPage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	page := &ReportPage{Page: opts.Page, Limit: opts.Limit, Reports: []models.ReportSummary{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&page.Total); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	// Sort and order come from a closed set checked by Normalize.
	query := fmt.Sprintf(`SELECT id, company_name, partner_company, domain, status, created_at, execution_time_ms
		FROM reports ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`, opts.Sort, strings.ToUpper(opts.Order))

	rows, err := s.db.QueryContext(ctx, query, opts.Limit, opts.offset())
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         models.ReportSummary
			status    string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.CompanyName, &r.PartnerCompany, &r.Domain, &status, &createdAt, &r.ExecutionMs); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		r.Status = models.OverallStatus(status)
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, &StorageError{Op: "list", Err: fmt.Errorf("parse created_at: %w", err)}
		}
		page.Reports = append(page.Reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return page, nil
}

// Delete removes one report.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck reports whether the database answers a trivial query.
func (s *SQLiteStore) HealthCheck(ctx context.Context) bool {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one) == nil && one == 1
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Package ledger records every routed request and its attributed cost in
// SQLite so operators can see where money is spent.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one finished route.
type Entry struct {
	ID         string
	Intent     string
	Path       string
	Skill      string
	ApprovalID string
	Engine     string
	Cost       float64
	Degraded   bool
	Error      string
	StartedAt  time.Time
	Duration   time.Duration
}

// PathStats aggregates the entries of one route path.
type PathStats struct {
	Path         string  `json:"path"`
	Requests     int     `json:"requests"`
	Cost         float64 `json:"cost"`
	Errors       int     `json:"errors"`
	Degraded     int     `json:"degraded"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

type Summary struct {
	Since     time.Time   `json:"since"`
	Requests  int         `json:"requests"`
	TotalCost float64     `json:"total_cost"`
	Paths     []PathStats `json:"paths"`
}

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	slog.Info("Ledger initialized", "path", path)
	return &Ledger{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.Debug("Applied ledger migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (l *Ledger) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO routes (id, intent, path, skill, approval_id, engine, cost, degraded, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Intent, e.Path, e.Skill, e.ApprovalID, e.Engine, e.Cost, boolInt(e.Degraded), e.Error,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return wardenErrors.Internal(fmt.Sprintf("record route %s: %v", e.ID, err))
	}
	return nil
}

// Summary aggregates every entry started at or after since. A zero since
// covers the whole ledger.
func (l *Ledger) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT path, COUNT(*), COALESCE(SUM(cost), 0),
		       COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(degraded), 0), COALESCE(AVG(duration_ms), 0)
		FROM routes
		WHERE started_at >= ?
		GROUP BY path
		ORDER BY path`, from)
	if err != nil {
		return Summary{}, wardenErrors.Internal(fmt.Sprintf("summarize ledger: %v", err))
	}
	defer rows.Close()

	s := Summary{Since: since, Paths: []PathStats{}}
	for rows.Next() {
		var p PathStats
		if err := rows.Scan(&p.Path, &p.Requests, &p.Cost, &p.Errors, &p.Degraded, &p.AvgLatencyMS); err != nil {
			return Summary{}, wardenErrors.Internal(fmt.Sprintf("scan ledger row: %v", err))
		}
		s.Requests += p.Requests
		s.TotalCost += p.Cost
		s.Paths = append(s.Paths, p)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, wardenErrors.Internal(fmt.Sprintf("read ledger: %v", err))
	}
	return s, nil
}

func (l *Ledger) Health(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return wardenErrors.Internal(fmt.Sprintf("ledger unreachable: %v", err))
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

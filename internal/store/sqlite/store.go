package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"foobar_factory/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	seed INTEGER NOT NULL,
	min_robots INTEGER NOT NULL,
	max_robots INTEGER NOT NULL,
	switch_penalty REAL NOT NULL,
	ticks INTEGER NOT NULL DEFAULT 0,
	robots INTEGER NOT NULL DEFAULT 0,
	economy TEXT NOT NULL DEFAULT '{}',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	tick INTEGER NOT NULL,
	time REAL NOT NULL,
	slot INTEGER NOT NULL,
	robots INTEGER NOT NULL,
	economy TEXT NOT NULL,
	task TEXT NOT NULL DEFAULT '',
	tasks TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_reports_run ON run_reports(run_id, id);
CREATE INDEX IF NOT EXISTS idx_run_reports_kind ON run_reports(run_id, kind, id);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	econ, err := json.Marshal(run.Economy)
	if err != nil {
		return fmt.Errorf("encode run economy: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs(
			id, status, seed, min_robots, max_robots, switch_penalty,
			ticks, robots, economy, last_error, created_at, updated_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Seed, run.MinRobots, run.MaxRobots, run.SwitchPenalty,
		run.Ticks, run.Robots, string(econ), run.LastError,
		run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run. lastError is empty on success.
func (s *Store) FinishRun(ctx context.Context, runID string, status domain.RunStatus, lastError string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, time.Now().UTC().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %w", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, seed, min_robots, max_robots, switch_penalty,
			ticks, robots, economy, last_error, created_at, updated_at
		FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return domain.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, status, seed, min_robots, max_robots, switch_penalty,
			ticks, robots, economy, last_error, created_at, updated_at
		FROM runs ORDER BY created_at DESC, id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

// AppendReport stores r against the run. Tick reports also refresh the
// run's progress columns.
func (s *Store) AppendReport(ctx context.Context, runID string, r domain.Report) error {
	econ, err := json.Marshal(r.Economy)
	if err != nil {
		return fmt.Errorf("encode report economy: %w", err)
	}
	var task, tasks []byte
	if r.Task != nil {
		if task, err = json.Marshal(r.Task); err != nil {
			return fmt.Errorf("encode report task: %w", err)
		}
	}
	if len(r.Tasks) > 0 {
		if tasks, err = json.Marshal(r.Tasks); err != nil {
			return fmt.Errorf("encode report tasks: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx append report: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO run_reports(run_id, kind, tick, time, slot, robots, economy, task, tasks, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(r.Kind), r.Tick, r.Economy.Time, r.Slot, r.Robots,
		string(econ), string(task), string(tasks), now,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	// every report carries the latest economy; keep the run row in step
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE runs SET ticks = ?, robots = ?, economy = ?, updated_at = ? WHERE id = ?`,
		r.Tick, r.Robots, string(econ), now, runID,
	); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append report: %w", err)
	}
	return nil
}

// ListRunReports returns the run's reports in emission order, optionally
// restricted to the given kinds. limit keeps the most recent ones.
func (s *Store) ListRunReports(ctx context.Context, runID string, kinds []domain.ReportKind, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, run_id, kind, tick, slot, robots, economy, task, tasks
		FROM run_reports WHERE run_id = ?`
	args := []any{runID}
	if len(kinds) > 0 {
		marks := make([]string, 0, len(kinds))
		for _, k := range kinds {
			marks = append(marks, "?")
			args = append(args, string(k))
		}
		query += " AND kind IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run reports: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunReport, 0, limit)
	for rows.Next() {
		var item domain.RunReport
		var kind, econ, task, tasks string
		if err := rows.Scan(
			&item.Seq, &item.RunID, &kind, &item.Report.Tick, &item.Report.Slot,
			&item.Report.Robots, &econ, &task, &tasks,
		); err != nil {
			return nil, fmt.Errorf("scan run report: %w", err)
		}
		item.Report.Kind = domain.ReportKind(kind)
		if err := json.Unmarshal([]byte(econ), &item.Report.Economy); err != nil {
			return nil, fmt.Errorf("decode report economy: %w", err)
		}
		if task != "" {
			var t domain.Task
			if err := json.Unmarshal([]byte(task), &t); err != nil {
				return nil, fmt.Errorf("decode report task: %w", err)
			}
			item.Report.Task = &t
		}
		if tasks != "" {
			if err := json.Unmarshal([]byte(tasks), &item.Report.Tasks); err != nil {
				return nil, fmt.Errorf("decode report tasks: %w", err)
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run reports: %w", err)
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (s *Store) CountRunReports(ctx context.Context, runID string, kind domain.ReportKind) (int, error) {
	var n int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM run_reports WHERE run_id = ? AND kind = ?`,
		runID, string(kind),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count run reports: %w", err)
	}
	return n, nil
}

// RunSink binds the store to one run so it can receive line reports.
type RunSink struct {
	store *Store
	runID string
}

func (s *Store) RunSink(runID string) *RunSink {
	return &RunSink{store: s, runID: runID}
}

func (s *RunSink) Emit(ctx context.Context, r domain.Report) error {
	return s.store.AppendReport(ctx, s.runID, r)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var status, econ string
	var created, updated int64
	if err := row.Scan(
		&run.ID, &status, &run.Seed, &run.MinRobots, &run.MaxRobots, &run.SwitchPenalty,
		&run.Ticks, &run.Robots, &econ, &run.LastError, &created, &updated,
	); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(econ), &run.Economy); err != nil {
		return domain.Run{}, fmt.Errorf("decode run economy: %w", err)
	}
	run.CreatedAt = unixMilliToTime(created)
	run.UpdatedAt = unixMilliToTime(updated)
	return run, nil
}

func unixMilliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

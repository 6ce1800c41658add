package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	address         TEXT NOT NULL,
	method          TEXT NOT NULL DEFAULT '',
	headers         TEXT,
	body            TEXT NOT NULL DEFAULT '',
	expected_status INTEGER NOT NULL DEFAULT 0,
	expected_text   TEXT NOT NULL DEFAULT '',
	interval_ms     INTEGER NOT NULL,
	timeout_ms      INTEGER NOT NULL,
	retries         INTEGER NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS check_outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id   TEXT NOT NULL,
	checked_at  TEXT NOT NULL,
	success     INTEGER NOT NULL,
	latency_ms  REAL NOT NULL,
	status_code INTEGER,
	error       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_outcomes_target_time ON check_outcomes (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	target_id   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	error       TEXT NOT NULL DEFAULT '',
	resolved    INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_incidents_target ON incidents (target_id, started_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_incidents_one_open ON incidents (target_id) WHERE resolved = 0;
`

var (
	_ repo.TargetSource  = (*Store)(nil)
	_ repo.HistoryStore  = (*Store)(nil)
	_ repo.IncidentStore = (*Store)(nil)
	_ repo.Pruner        = (*Store)(nil)
)

// Store implements the engine's stores on a single SQLite file.
type Store struct {
	db *sql.DB
}

// New opens the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- configuration ----

// Add upserts a target; used for seeding from the config file.
func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	var headers sql.NullString
	if len(t.Headers) > 0 {
		b, err := json.Marshal(t.Headers)
		if err != nil {
			return fmt.Errorf("encode headers: %w", err)
		}
		headers = sql.NullString{String: string(b), Valid: true}
	}
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO targets (id, name, kind, address, method, headers, body, expected_status,
                     expected_text, interval_ms, timeout_ms, retries, active, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name, kind=excluded.kind, address=excluded.address, method=excluded.method,
  headers=excluded.headers, body=excluded.body, expected_status=excluded.expected_status,
  expected_text=excluded.expected_text, interval_ms=excluded.interval_ms,
  timeout_ms=excluded.timeout_ms, retries=excluded.retries, active=excluded.active,
  updated_at=excluded.updated_at`,
		string(t.ID), t.Name, string(t.Kind), t.Address, t.Method, headers, t.Body, t.ExpectedStatus,
		t.ExpectedText, t.Interval.Milliseconds(), t.Timeout.Milliseconds(), t.Retries, t.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// SetActive pauses or resumes a target.
func (s *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(time.Now()), string(id))
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- TargetSource ----

const targetCols = `id, name, kind, address, method, headers, body, expected_status,
	expected_text, interval_ms, timeout_ms, retries, active, created_at, updated_at`

func (s *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetCols+` FROM targets WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LoadTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, string(id))
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load target: %w", err)
	}
	return &t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (domain.Target, error) {
	var (
		t                  domain.Target
		id, kind           string
		headers            sql.NullString
		intervalMS, timeMS int64
		created, updated   string
	)
	err := row.Scan(&id, &t.Name, &kind, &t.Address, &t.Method, &headers, &t.Body, &t.ExpectedStatus,
		&t.ExpectedText, &intervalMS, &timeMS, &t.Retries, &t.Active, &created, &updated)
	if err != nil {
		return t, err
	}
	t.ID = domain.TargetID(id)
	t.Kind = domain.Kind(kind)
	t.Interval = time.Duration(intervalMS) * time.Millisecond
	t.Timeout = time.Duration(timeMS) * time.Millisecond
	t.CreatedAt, _ = parseTime(created)
	t.UpdatedAt, _ = parseTime(updated)
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &t.Headers); err != nil {
			return t, fmt.Errorf("decode headers: %w", err)
		}
	}
	return t, nil
}

// ---- HistoryStore ----

func (s *Store) Record(ctx context.Context, o domain.CheckOutcome) error {
	var status sql.NullInt64
	if o.StatusCode != 0 {
		status = sql.NullInt64{Int64: int64(o.StatusCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_outcomes (target_id, checked_at, success, latency_ms, status_code, error, body, attempts)
		 VALUES (?,?,?,?,?,?,?,?)`,
		string(o.TargetID), formatTime(o.CheckedAt), o.Success, o.LatencyMS, status, o.Error, o.Body, o.Attempts)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

const outcomeCols = `target_id, checked_at, success, latency_ms, status_code, error, body, attempts`

func (s *Store) LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outcomeCols+` FROM check_outcomes WHERE target_id = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		string(id))
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last outcome: %w", err)
	}
	return &o, nil
}

func (s *Store) History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error) {
	q := `SELECT ` + outcomeCols + ` FROM check_outcomes WHERE target_id = ?`
	args := []any{string(id)}
	if !from.IsZero() {
		q += ` AND checked_at >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		q += ` AND checked_at < ?`
		args = append(args, formatTime(to))
	}
	q += ` ORDER BY checked_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOutcome(row scanner) (domain.CheckOutcome, error) {
	var (
		o      domain.CheckOutcome
		id, at string
		status sql.NullInt64
	)
	if err := row.Scan(&id, &at, &o.Success, &o.LatencyMS, &status, &o.Error, &o.Body, &o.Attempts); err != nil {
		return o, err
	}
	o.TargetID = domain.TargetID(id)
	o.CheckedAt, _ = parseTime(at)
	if status.Valid {
		o.StatusCode = int(status.Int64)
	}
	return o, nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time, errMsg string) (domain.IncidentID, error) {
	iid := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, target_id, started_at, error) VALUES (?,?,?,?)`,
		iid, string(id), formatTime(start), errMsg)
	if err != nil {
		return "", fmt.Errorf("open incident: %w", err)
	}
	return domain.IncidentID(iid), nil
}

func (s *Store) ResolveIncident(ctx context.Context, id domain.IncidentID, end time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET ended_at = ?, resolved = 1 WHERE id = ? AND resolved = 0`,
		formatTime(end), string(id))
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM incidents WHERE id = ?`, string(id)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("resolve incident: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("resolve incident %s: %w", id, repo.ErrNotFound)
		}
	}
	return nil
}

func (s *Store) FindOpenIncident(ctx context.Context, id domain.TargetID) (*domain.Incident, error) {
	open, err := s.ListOpenIncidents(ctx, id)
	if err != nil || len(open) == 0 {
		return nil, err
	}
	return &open[0], nil
}

func (s *Store) ListOpenIncidents(ctx context.Context, id domain.TargetID) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, started_at, ended_at, error, resolved
		   FROM incidents WHERE target_id = ? AND resolved = 0 ORDER BY started_at, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("open incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var (
			inc             domain.Incident
			iid, tid, start string
			end             sql.NullString
		)
		if err := rows.Scan(&iid, &tid, &start, &end, &inc.Error, &inc.Resolved); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.ID = domain.IncidentID(iid)
		inc.TargetID = domain.TargetID(tid)
		inc.StartedAt, _ = parseTime(start)
		if end.Valid {
			if e, err := parseTime(end.String); err == nil {
				inc.EndedAt = &e
			}
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// ---- Pruner ----

func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_outcomes WHERE checked_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) PruneIncidents(ctx context.Context, resolvedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE resolved = 1 AND ended_at < ?`, formatTime(resolvedBefore))
	if err != nil {
		return 0, fmt.Errorf("prune incidents: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

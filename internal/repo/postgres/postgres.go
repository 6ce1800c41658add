package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

var (
	_ repo.TargetSource  = (*Store)(nil)
	_ repo.HistoryStore  = (*Store)(nil)
	_ repo.IncidentStore = (*Store)(nil)
	_ repo.Pruner        = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- configuration ----

// Add upserts a target. The engine itself never calls it; cmd/monitor uses
// it to seed targets declared in the config file.
func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	headers, err := marshalHeaders(t.Headers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO targets (id, name, kind, address, method, headers, body, expected_status,
                     expected_text, interval_ms, timeout_ms, retries, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, kind=EXCLUDED.kind, address=EXCLUDED.address, method=EXCLUDED.method,
  headers=EXCLUDED.headers, body=EXCLUDED.body, expected_status=EXCLUDED.expected_status,
  expected_text=EXCLUDED.expected_text, interval_ms=EXCLUDED.interval_ms,
  timeout_ms=EXCLUDED.timeout_ms, retries=EXCLUDED.retries, active=EXCLUDED.active,
  updated_at=now()`,
		string(t.ID), t.Name, string(t.Kind), t.Address, t.Method, headers, t.Body, t.ExpectedStatus,
		t.ExpectedText, t.Interval.Milliseconds(), t.Timeout.Milliseconds(), t.Retries, t.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// ---- TargetSource ----

const targetCols = `id, name, kind, address, method, headers, body, expected_status,
       expected_text, interval_ms, timeout_ms, retries, active, created_at, updated_at`

func (s *Store) ListActiveTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+targetCols+` FROM targets WHERE active ORDER BY id`)
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
	row := s.pool.QueryRow(ctx, `SELECT `+targetCols+` FROM targets WHERE id = $1`, string(id))
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load target: %w", err)
	}
	return &t, nil
}

func scanTarget(row pgx.Row) (domain.Target, error) {
	var (
		t                  domain.Target
		id, kind           string
		headers            []byte
		intervalMS, timeMS int64
	)
	err := row.Scan(&id, &t.Name, &kind, &t.Address, &t.Method, &headers, &t.Body, &t.ExpectedStatus,
		&t.ExpectedText, &intervalMS, &timeMS, &t.Retries, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.ID = domain.TargetID(id)
	t.Kind = domain.Kind(kind)
	t.Interval = time.Duration(intervalMS) * time.Millisecond
	t.Timeout = time.Duration(timeMS) * time.Millisecond
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &t.Headers); err != nil {
			return t, fmt.Errorf("decode headers: %w", err)
		}
	}
	return t, nil
}

// ---- HistoryStore ----

func (s *Store) Record(ctx context.Context, o domain.CheckOutcome) error {
	var statusPtr *int
	if o.StatusCode != 0 {
		statusPtr = &o.StatusCode
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_outcomes
		   (target_id, checked_at, success, latency_ms, status_code, error, body, attempts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		string(o.TargetID), o.CheckedAt, o.Success, o.LatencyMS, statusPtr, o.Error, o.Body, o.Attempts,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

const outcomeCols = `target_id, checked_at, success, latency_ms, status_code, error, body, attempts`

func (s *Store) LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+outcomeCols+`
		   FROM check_outcomes
		  WHERE target_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT 1`, string(id))
	o, err := scanOutcome(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last outcome: %w", err)
	}
	return &o, nil
}

func (s *Store) History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+outcomeCols+`
		   FROM check_outcomes
		  WHERE target_id = $1
		    AND ($2::timestamptz IS NULL OR checked_at >= $2)
		    AND ($3::timestamptz IS NULL OR checked_at < $3)
		  ORDER BY checked_at, id`, string(id), fromArg, toArg)
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

func scanOutcome(row pgx.Row) (domain.CheckOutcome, error) {
	var (
		o      domain.CheckOutcome
		id     string
		status *int32
	)
	if err := row.Scan(&id, &o.CheckedAt, &o.Success, &o.LatencyMS, &status, &o.Error, &o.Body, &o.Attempts); err != nil {
		return o, err
	}
	o.TargetID = domain.TargetID(id)
	if status != nil {
		o.StatusCode = int(*status)
	}
	return o, nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time, errMsg string) (domain.IncidentID, error) {
	iid := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, target_id, started_at, error) VALUES ($1,$2,$3,$4)`,
		iid, string(id), start, errMsg)
	if err != nil {
		return "", fmt.Errorf("open incident: %w", err)
	}
	return domain.IncidentID(iid), nil
}

func (s *Store) ResolveIncident(ctx context.Context, id domain.IncidentID, end time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents SET ended_at = $2, resolved = TRUE WHERE id = $1 AND NOT resolved`,
		string(id), end)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
			return fmt.Errorf("resolve incident: %w", err)
		}
		if !exists {
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
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_id, started_at, ended_at, error, resolved
		   FROM incidents
		  WHERE target_id = $1 AND NOT resolved
		  ORDER BY started_at, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("open incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var (
			inc      domain.Incident
			iid, tid string
		)
		if err := rows.Scan(&iid, &tid, &inc.StartedAt, &inc.EndedAt, &inc.Error, &inc.Resolved); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.ID = domain.IncidentID(iid)
		inc.TargetID = domain.TargetID(tid)
		out = append(out, inc)
	}
	return out, rows.Err()
}

// ---- Pruner ----

func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_outcomes WHERE checked_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) PruneIncidents(ctx context.Context, resolvedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM incidents WHERE resolved AND ended_at < $1`, resolvedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalHeaders(h map[string]string) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return b, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/jordanhubbard/counsel/internal/memory"
	"github.com/jordanhubbard/counsel/internal/models"
)

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// Store is a PostgreSQL-backed implementation of the context, pattern and
// analytics store interfaces for durable deployments.
type Store struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL connection and initializes the schema.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS context_snapshots (
		version BIGSERIAL PRIMARY KEY,
		snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		technologies JSONB NOT NULL DEFAULT '[]',
		complexity DOUBLE PRECISION NOT NULL DEFAULT 0,
		specialist_id TEXT,
		approach TEXT,
		success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		task_id TEXT,
		detail TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS specialist_metrics (
		specialist_id TEXT PRIMARY KEY,
		consultations BIGINT NOT NULL DEFAULT 0,
		successes BIGINT NOT NULL DEFAULT 0,
		avg_quality DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_domain ON patterns(domain);
	CREATE INDEX IF NOT EXISTS idx_events_created ON analytics_events(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a snapshot and returns its assigned version.
func (s *Store) Append(ctx context.Context, snapshot *memory.ContextSnapshot) (int64, error) {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var version int64
	err = s.db.QueryRowContext(ctx,
		rebind(`INSERT INTO context_snapshots (snapshot, created_at) VALUES (?, ?) RETURNING version`),
		data, snapshot.CreatedAt).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	snapshot.Version = version
	return version, nil
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*memory.ContextSnapshot, error) {
	var data []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, snapshot FROM context_snapshots ORDER BY version DESC LIMIT 1`).
		Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	var snapshot memory.ContextSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	snapshot.Version = version
	return &snapshot, nil
}

// History returns up to limit snapshots, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]*memory.ContextSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT version, snapshot FROM context_snapshots ORDER BY version DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var out []*memory.ContextSnapshot
	for rows.Next() {
		var data []byte
		var version int64
		if err := rows.Scan(&version, &data); err != nil {
			return nil, err
		}
		var snapshot memory.ContextSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot %d: %w", version, err)
		}
		snapshot.Version = version
		out = append(out, &snapshot)
	}
	return out, rows.Err()
}

// Save stores or replaces a pattern.
func (s *Store) Save(ctx context.Context, p *models.Pattern) error {
	techs, err := json.Marshal(p.Technologies)
	if err != nil {
		return fmt.Errorf("failed to marshal technologies: %w", err)
	}
	_, err = s.db.ExecContext(ctx, rebind(`
		INSERT INTO patterns (id, domain, technologies, complexity, specialist_id, approach, success_rate, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			technologies = EXCLUDED.technologies,
			complexity = EXCLUDED.complexity,
			specialist_id = EXCLUDED.specialist_id,
			approach = EXCLUDED.approach,
			success_rate = EXCLUDED.success_rate,
			usage_count = EXCLUDED.usage_count,
			updated_at = EXCLUDED.updated_at`),
		p.ID, p.Domain, techs, p.Complexity, p.SpecialistID, p.Approach,
		p.SuccessRate, p.UsageCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

// Get retrieves a pattern by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Pattern, error) {
	row := s.db.QueryRowContext(ctx, rebind(`
		SELECT id, domain, technologies, complexity, specialist_id, approach, success_rate, usage_count, created_at, updated_at
		FROM patterns WHERE id = ?`), id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pattern %s not found", id)
	}
	return p, err
}

// List returns all patterns, oldest first.
func (s *Store) List(ctx context.Context) ([]*models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, technologies, complexity, specialist_id, approach, success_rate, usage_count, created_at, updated_at
		FROM patterns ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var out []*models.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update applies fn inside a transaction with the pattern row locked, so
// the read-modify-write is atomic per pattern id.
func (s *Store) Update(ctx context.Context, id string, fn func(*models.Pattern) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, rebind(`
		SELECT id, domain, technologies, complexity, specialist_id, approach, success_rate, usage_count, created_at, updated_at
		FROM patterns WHERE id = ? FOR UPDATE`), id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return fmt.Errorf("pattern %s not found", id)
	}
	if err != nil {
		return err
	}

	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	techs, err := json.Marshal(p.Technologies)
	if err != nil {
		return fmt.Errorf("failed to marshal technologies: %w", err)
	}
	_, err = tx.ExecContext(ctx, rebind(`
		UPDATE patterns SET success_rate = ?, usage_count = ?, technologies = ?, updated_at = ? WHERE id = ?`),
		p.SuccessRate, p.UsageCount, techs, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	return tx.Commit()
}

// Trim drops the oldest patterns, keeping the most recent keep entries.
func (s *Store) Trim(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, rebind(`
		DELETE FROM patterns WHERE id NOT IN (
			SELECT id FROM patterns ORDER BY created_at DESC LIMIT ?
		)`), keep)
	if err != nil {
		return fmt.Errorf("failed to trim patterns: %w", err)
	}
	return nil
}

// RecordEvent appends an analytics event.
func (s *Store) RecordEvent(ctx context.Context, event memory.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		rebind(`INSERT INTO analytics_events (type, task_id, detail, created_at) VALUES (?, ?, ?, ?)`),
		string(event.Type), event.TaskID, event.Detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Events returns up to limit events, newest first.
func (s *Store) Events(ctx context.Context, limit int) ([]memory.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		rebind(`SELECT type, task_id, detail, created_at FROM analytics_events ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []memory.Event
	for rows.Next() {
		var e memory.Event
		var eventType string
		if err := rows.Scan(&eventType, &e.TaskID, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = memory.EventType(eventType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateSpecialist applies fn with the metrics row locked, creating it on
// first use.
func (s *Store) UpdateSpecialist(ctx context.Context, id string, fn func(*memory.SpecialistMetrics)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, rebind(`
		INSERT INTO specialist_metrics (specialist_id) VALUES (?) ON CONFLICT DO NOTHING`), id)
	if err != nil {
		return fmt.Errorf("failed to ensure metrics row: %w", err)
	}

	m := memory.SpecialistMetrics{SpecialistID: id}
	err = tx.QueryRowContext(ctx, rebind(`
		SELECT consultations, successes, avg_quality FROM specialist_metrics WHERE specialist_id = ? FOR UPDATE`), id).
		Scan(&m.Consultations, &m.Successes, &m.AvgQuality)
	if err != nil {
		return fmt.Errorf("failed to load metrics for %s: %w", id, err)
	}

	fn(&m)

	_, err = tx.ExecContext(ctx, rebind(`
		UPDATE specialist_metrics SET consultations = ?, successes = ?, avg_quality = ? WHERE specialist_id = ?`),
		m.Consultations, m.Successes, m.AvgQuality, id)
	if err != nil {
		return fmt.Errorf("failed to update metrics for %s: %w", id, err)
	}
	return tx.Commit()
}

// SpecialistMetrics returns all aggregates sorted by specialist id.
func (s *Store) SpecialistMetrics(ctx context.Context) ([]*memory.SpecialistMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT specialist_id, consultations, successes, avg_quality
		FROM specialist_metrics ORDER BY specialist_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query specialist metrics: %w", err)
	}
	defer rows.Close()

	var out []*memory.SpecialistMetrics
	for rows.Next() {
		var m memory.SpecialistMetrics
		if err := rows.Scan(&m.SpecialistID, &m.Consultations, &m.Successes, &m.AvgQuality); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*models.Pattern, error) {
	var p models.Pattern
	var techs []byte
	err := row.Scan(&p.ID, &p.Domain, &techs, &p.Complexity, &p.SpecialistID,
		&p.Approach, &p.SuccessRate, &p.UsageCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(techs, &p.Technologies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal technologies: %w", err)
	}
	return &p, nil
}

// Interface conformance for the three store roles.
var (
	_ memory.ContextStore   = (*Store)(nil)
	_ memory.PatternStore   = (*Store)(nil)
	_ memory.AnalyticsStore = (*Store)(nil)
)

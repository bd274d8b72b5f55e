// Package repository keeps a history of analysis runs in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

var (
	ErrRunNotFound = errors.New("analysis run not found")
	ErrRunExists   = errors.New("analysis run already exists")
)

// Run is a stored run summary.
type Run struct {
	ID           string    `json:"id" yaml:"id"`
	Source       string    `json:"source" yaml:"source"`
	Mode         string    `json:"mode" yaml:"mode"`
	LinesRead    int       `json:"lines_read" yaml:"lines_read"`
	LinesMatched int       `json:"lines_matched" yaml:"lines_matched"`
	ThreatCount  int64     `json:"threat_count" yaml:"threat_count"`
	Partial      bool      `json:"partial" yaml:"partial"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
}

type Repository interface {
	SaveRun(ctx context.Context, res *pipeline.Result) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ThreatCounts(ctx context.Context, runID string) ([]stats.ThreatRow, error)
	Close()
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 4
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Name() string { return "postgres" }

// Deliver satisfies pipeline.Sink.
func (r *PostgresRepository) Deliver(ctx context.Context, res *pipeline.Result) error {
	return r.SaveRun(ctx, res)
}

// SaveRun stores the run summary and its full threat table in one
// transaction. Threat rows keep their first-seen position.
func (r *PostgresRepository) SaveRun(ctx context.Context, res *pipeline.Result) error {
	runID, err := uuid.Parse(res.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", res.RunID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var threats []stats.Entry[stats.ThreatKey]
	var threatTotal int64
	if res.Stats != nil {
		threats = res.Stats.Threats.Entries()
		threatTotal = res.Stats.Threats.Total()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO analysis_runs (id, source, mode, lines_read, lines_matched, threat_count, partial, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, runID, res.Source, res.Mode, res.LinesRead, res.LinesMatched, threatTotal, res.Partial, res.StartedAt, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunExists
	}

	if len(threats) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"threat_counts"},
			[]string{"run_id", "position", "source_network", "dest_address", "verdict", "count"},
			pgx.CopyFromSlice(len(threats), func(i int) ([]any, error) {
				k := threats[i].Key
				return []any{runID, i, k.SourceNetwork, k.DestAddress, string(k.Verdict), threats[i].Count}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to insert threat counts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id::text, source, mode, lines_read, lines_matched, threat_count, partial, started_at, finished_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Source, &run.Mode, &run.LinesRead, &run.LinesMatched,
		&run.ThreatCount, &run.Partial, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recently finished runs first.
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM analysis_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ThreatCounts returns a run's threat table ordered by count, then position.
func (r *PostgresRepository) ThreatCounts(ctx context.Context, id string) ([]stats.ThreatRow, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT source_network, dest_address, verdict, count
		FROM threat_counts
		WHERE run_id = $1
		ORDER BY count DESC, position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query threat counts: %w", err)
	}
	defer rows.Close()

	out := []stats.ThreatRow{}
	for rows.Next() {
		var row stats.ThreatRow
		var verdict string
		if err := rows.Scan(&row.SourceNetwork, &row.DestAddress, &verdict, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan threat count: %w", err)
		}
		row.Verdict = model.Verdict(verdict)
		out = append(out, row)
	}
	return out, rows.Err()
}

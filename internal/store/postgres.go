package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// knowledgeCandidateLimit bounds the rows fetched for in-process cosine
// ranking; no vector extension is assumed on the database.
const knowledgeCandidateLimit = 512

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects, applies pending migrations, and returns the store.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if err := migrate(ctx, dsn); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("postgres store ready")
	return &Postgres{pool: pool, logger: logger}, nil
}

// migrate runs goose against the embedded migration set. goose needs a
// database/sql handle, so it goes through the pgx stdlib driver.
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// column mapping for partial updates; order fixed for deterministic SQL.
func (f CallFields) columns() ([]string, []any) {
	var cols []string
	var args []any
	add := func(name string, v any) {
		cols = append(cols, name)
		args = append(args, v)
	}
	if f.FromNumber != nil {
		add("from_number", *f.FromNumber)
	}
	if f.ToNumber != nil {
		add("to_number", *f.ToNumber)
	}
	if f.Direction != nil {
		add("direction", *f.Direction)
	}
	if f.Status != nil {
		add("status", *f.Status)
	}
	if f.StartTime != nil {
		add("start_time", *f.StartTime)
	}
	if f.EndTime != nil {
		add("end_time", *f.EndTime)
	}
	if f.Duration != nil {
		add("duration", *f.Duration)
	}
	if f.Transcription != nil {
		add("transcription", *f.Transcription)
	}
	if f.Summary != nil {
		add("summary", *f.Summary)
	}
	if f.EndReason != nil {
		add("end_reason", *f.EndReason)
	}
	if f.AgentHungUp != nil {
		add("agent_hung_up", *f.AgentHungUp)
	}
	return cols, args
}

func (p *Postgres) UpsertCall(ctx context.Context, callSID string, fields CallFields) error {
	cols, args := fields.columns()

	insertCols := append([]string{"call_sid"}, cols...)
	placeholders := make([]string, len(insertCols))
	for i := range insertCols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	var sets []string
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	updateClause := "DO NOTHING"
	if len(sets) > 0 {
		updateClause = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO call_logs (%s) VALUES (%s) ON CONFLICT (call_sid) %s",
		strings.Join(insertCols, ", "), strings.Join(placeholders, ", "), updateClause,
	)

	_, err := p.pool.Exec(ctx, query, append([]any{callSID}, args...)...)
	if err != nil {
		return fmt.Errorf("upsert call %s: %w", callSID, err)
	}
	return nil
}

const callColumns = `call_sid, from_number, to_number, direction, status,
	start_time, end_time, COALESCE(duration, 0), COALESCE(transcription, ''),
	COALESCE(summary, ''), COALESCE(end_reason, ''), COALESCE(agent_hung_up, false)`

func scanCall(row pgx.Row) (*CallRecord, error) {
	var rec CallRecord
	err := row.Scan(&rec.CallSID, &rec.FromNumber, &rec.ToNumber, &rec.Direction,
		&rec.Status, &rec.StartTime, &rec.EndTime, &rec.Duration,
		&rec.Transcription, &rec.Summary, &rec.EndReason, &rec.AgentHungUp)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) GetCall(ctx context.Context, callSID string) (*CallRecord, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+callColumns+" FROM call_logs WHERE call_sid = $1", callSID)
	rec, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call %s: %w", callSID, err)
	}
	return rec, nil
}

func (p *Postgres) ListCalls(ctx context.Context, filter ListFilter) ([]CallRecord, int, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = $1"
		args = append(args, filter.Status)
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM call_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	query := "SELECT " + callColumns + " FROM call_logs" + where +
		fmt.Sprintf(" ORDER BY start_time DESC NULLS LAST LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	records := []CallRecord{}
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan call: %w", err)
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

func (p *Postgres) SearchKnowledge(ctx context.Context, embedding []float32, k int) ([]KnowledgeChunk, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, source, content, embedding FROM knowledge_chunks LIMIT $1",
		knowledgeCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch knowledge candidates: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk KnowledgeChunk
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var chunk KnowledgeChunk
		if err := rows.Scan(&chunk.ID, &chunk.Source, &chunk.Content, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk: %w", err)
		}
		candidates = append(candidates, scored{chunk, CosineSimilarity(embedding, chunk.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]KnowledgeChunk, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.chunk)
	}
	return out, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

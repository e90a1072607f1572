package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scrape_requests (
		id BIGSERIAL PRIMARY KEY,
		prompt TEXT NOT NULL,
		domain TEXT,
		steps_json TEXT NOT NULL DEFAULT '[]',
		final_result TEXT,
		success SMALLINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_requests_domain ON scrape_requests(domain)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_requests_created_at ON scrape_requests(created_at)`,
	`CREATE TABLE IF NOT EXISTS scraping_advice (
		id BIGSERIAL PRIMARY KEY,
		domain TEXT NOT NULL,
		advice TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scraping_advice_domain ON scraping_advice(domain)`,
	`CREATE INDEX IF NOT EXISTS idx_scraping_advice_created_at ON scraping_advice(created_at)`,
}

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, statement := range schemaStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) StartRequest(ctx context.Context, prompt string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO scrape_requests (prompt, steps_json, created_at, updated_at) VALUES ($1, '[]', clock_timestamp(), clock_timestamp()) RETURNING id`,
		prompt,
	).Scan(&id)
	return id, err
}

func (p *PostgresStore) GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, prompt, domain, steps_json, final_result, success, created_at, updated_at
		FROM scrape_requests
		WHERE id = $1`, requestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.RequestNotFound(requestID)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AppendStep holds the request row lock from read to write so concurrent
// appends to the same request cannot lose each other's step.
func (p *PostgresStore) AppendStep(ctx context.Context, requestID int64, step store.Step) (store.Step, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Step{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stepsJSON string
	var domain sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT steps_json, domain FROM scrape_requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&stepsJSON, &domain)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Step{}, store.RequestNotFound(requestID)
	}
	if err != nil {
		return store.Step{}, err
	}
	steps, err := store.DecodeSteps(stepsJSON)
	if err != nil {
		return store.Step{}, err
	}
	appended := store.CloneStep(step)
	appended.StepID = len(steps)
	steps = append(steps, appended)
	encoded, err := store.EncodeSteps(steps)
	if err != nil {
		return store.Step{}, err
	}
	newDomain := store.AdoptDomain(nullStringPtr(domain), appended.Domain)
	if _, err := tx.ExecContext(ctx,
		`UPDATE scrape_requests SET steps_json = $1, domain = $2, updated_at = clock_timestamp() WHERE id = $3`,
		encoded, nullString(newDomain), requestID,
	); err != nil {
		return store.Step{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Step{}, err
	}
	return appended, nil
}

// UpdateFinalResult on an unknown request returns store.ErrNotFound.
func (p *PostgresStore) UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error {
	if update.Empty() {
		return nil
	}
	fields := []string{}
	args := []any{}
	if update.FinalResult != nil {
		args = append(args, *update.FinalResult)
		fields = append(fields, fmt.Sprintf("final_result = $%d", len(args)))
	}
	if update.Success != nil {
		args = append(args, boolToInt(*update.Success))
		fields = append(fields, fmt.Sprintf("success = $%d", len(args)))
	}
	fields = append(fields, "updated_at = clock_timestamp()")
	args = append(args, requestID)
	query := fmt.Sprintf("UPDATE scrape_requests SET %s WHERE id = $%d", strings.Join(fields, ", "), len(args))

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.RequestNotFound(requestID)
	}
	return nil
}

func (p *PostgresStore) UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error {
	if outcome.Empty() {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stepsJSON string
	err = tx.QueryRowContext(ctx, `SELECT steps_json FROM scrape_requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&stepsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RequestNotFound(requestID)
	}
	if err != nil {
		return err
	}
	steps, err := store.DecodeSteps(stepsJSON)
	if err != nil {
		return err
	}
	if err := store.ApplyOutcome(requestID, steps, stepID, outcome); err != nil {
		return err
	}
	encoded, err := store.EncodeSteps(steps)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE scrape_requests SET steps_json = $1, updated_at = clock_timestamp() WHERE id = $2`,
		encoded, requestID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) SearchRequests(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error) {
	filter = filter.Normalize()
	query := `
		SELECT id, prompt, domain, steps_json, final_result, success, created_at, updated_at
		FROM scrape_requests
		WHERE 1=1`
	args := []any{}
	if filter.Domain != "" {
		args = append(args, "%"+store.EscapeLike(filter.Domain)+"%")
		query += fmt.Sprintf(" AND domain ILIKE $%d", len(args))
	}
	if filter.URLContains != "" {
		args = append(args, "%"+store.EscapeLike(filter.URLContains)+"%")
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM json_array_elements(steps_json::json) AS s WHERE s->>'url' ILIKE $%d)", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ScrapeRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) AddAdvice(ctx context.Context, domain string, advice string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO scraping_advice (domain, advice, created_at) VALUES ($1, $2, clock_timestamp()) RETURNING id`,
		store.NormalizeDomain(domain), advice,
	).Scan(&id)
	return id, err
}

func (p *PostgresStore) ListAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error) {
	filter = filter.Normalize()
	query := `SELECT id, domain, advice, created_at FROM scraping_advice`
	args := []any{}
	if filter.Domain != "" {
		args = append(args, "%"+store.EscapeLike(filter.Domain)+"%")
		query += fmt.Sprintf(" WHERE domain ILIKE $%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.AdviceEntry{}
	for rows.Next() {
		var entry store.AdviceEntry
		var createdAt time.Time
		if err := rows.Scan(&entry.ID, &entry.Domain, &entry.Advice, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = store.FormatTime(createdAt)
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (store.ScrapeRequest, error) {
	var req store.ScrapeRequest
	var domain sql.NullString
	var stepsJSON string
	var finalResult sql.NullString
	var success sql.NullInt64
	var createdAt time.Time
	var updatedAt time.Time
	if err := row.Scan(&req.ID, &req.Prompt, &domain, &stepsJSON, &finalResult, &success, &createdAt, &updatedAt); err != nil {
		return store.ScrapeRequest{}, err
	}
	steps, err := store.DecodeSteps(stepsJSON)
	if err != nil {
		return store.ScrapeRequest{}, err
	}
	req.Steps = steps
	req.Domain = nullStringPtr(domain)
	req.FinalResult = nullStringPtr(finalResult)
	if success.Valid {
		value := success.Int64 != 0
		req.Success = &value
	}
	req.CreatedAt = store.FormatTime(createdAt)
	req.UpdatedAt = store.FormatTime(updatedAt)
	return req, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	copied := value.String
	return &copied
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

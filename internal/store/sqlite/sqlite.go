package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const schema = `
DROP TABLE IF EXISTS scrape_history;
CREATE TABLE IF NOT EXISTS scrape_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	prompt TEXT NOT NULL,
	domain TEXT,
	steps_json TEXT NOT NULL,
	final_result TEXT,
	success INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrape_requests_domain ON scrape_requests(domain);
CREATE INDEX IF NOT EXISTS idx_scrape_requests_created_at ON scrape_requests(created_at);
CREATE TABLE IF NOT EXISTS scraping_advice (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL,
	advice TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scraping_advice_domain ON scraping_advice(domain);
CREATE INDEX IF NOT EXISTS idx_scraping_advice_created_at ON scraping_advice(created_at);
`

const (
	busyTimeoutMS = 10000
	maxTxRetries  = 3
)

type SQLiteStore struct {
	db *sql.DB
}

var openDB = sql.Open

// New opens (creating if needed) the database file at path and applies the
// schema. Transactions take the write lock on BEGIN so step appends on the
// same request serialize across connections and processes.
func New(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := openDB("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	st := &SQLiteStore{db: db}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// EnsureSchema is idempotent and cheap enough to call before any operation.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StartRequest(ctx context.Context, prompt string) (int64, error) {
	now := store.Now()
	var id int64
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(
			ctx,
			`INSERT INTO scrape_requests (prompt, steps_json, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			prompt, "[]", now, now,
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, domain, steps_json, final_result, success, created_at, updated_at
		FROM scrape_requests
		WHERE id = ?`, requestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.RequestNotFound(requestID)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *SQLiteStore) AppendStep(ctx context.Context, requestID int64, step store.Step) (store.Step, error) {
	var appended store.Step
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		var stepsJSON string
		var domain sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT steps_json, domain FROM scrape_requests WHERE id = ?`, requestID).Scan(&stepsJSON, &domain)
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
		appended = store.CloneStep(step)
		appended.StepID = len(steps)
		steps = append(steps, appended)
		encoded, err := store.EncodeSteps(steps)
		if err != nil {
			return err
		}
		newDomain := store.AdoptDomain(nullStringPtr(domain), appended.Domain)
		_, err = tx.ExecContext(ctx,
			`UPDATE scrape_requests SET steps_json = ?, domain = ?, updated_at = ? WHERE id = ?`,
			encoded, stringPtrValue(newDomain), store.Now(), requestID,
		)
		return err
	})
	if err != nil {
		return store.Step{}, err
	}
	return appended, nil
}

// UpdateFinalResult on an unknown request returns store.ErrNotFound.
func (s *SQLiteStore) UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error {
	if update.Empty() {
		return nil
	}
	fields := []string{}
	args := []any{}
	if update.FinalResult != nil {
		fields = append(fields, "final_result = ?")
		args = append(args, *update.FinalResult)
	}
	if update.Success != nil {
		fields = append(fields, "success = ?")
		args = append(args, boolToInt(*update.Success))
	}
	fields = append(fields, "updated_at = ?")
	args = append(args, store.Now(), requestID)

	query := fmt.Sprintf("UPDATE scrape_requests SET %s WHERE id = ?", strings.Join(fields, ", "))
	return s.runTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
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
	})
}

func (s *SQLiteStore) UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error {
	if outcome.Empty() {
		return nil
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		var stepsJSON string
		err := tx.QueryRowContext(ctx, `SELECT steps_json FROM scrape_requests WHERE id = ?`, requestID).Scan(&stepsJSON)
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
		_, err = tx.ExecContext(ctx,
			`UPDATE scrape_requests SET steps_json = ?, updated_at = ? WHERE id = ?`,
			encoded, store.Now(), requestID,
		)
		return err
	})
}

func (s *SQLiteStore) SearchRequests(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error) {
	filter = filter.Normalize()
	query := `
		SELECT id, prompt, domain, steps_json, final_result, success, created_at, updated_at
		FROM scrape_requests
		WHERE 1=1`
	args := []any{}
	if filter.Domain != "" {
		query += ` AND lower(domain) LIKE ? ESCAPE '\'`
		args = append(args, "%"+store.EscapeLike(filter.Domain)+"%")
	}
	if filter.URLContains != "" && prefilterable(filter.URLContains) {
		// Coarse prefilter; the exact per-step check happens after decoding,
		// so the limit is applied while iterating instead of in SQL.
		query += ` AND lower(steps_json) LIKE ? ESCAPE '\'`
		args = append(args, "%"+store.EscapeLike(filter.URLContains)+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.URLContains == "" {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ScrapeRequest{}
	for rows.Next() && len(results) < filter.Limit {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		if !filter.MatchesURL(req.Steps) {
			continue
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLiteStore) AddAdvice(ctx context.Context, domain string, advice string) (int64, error) {
	var id int64
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO scraping_advice (domain, advice, created_at) VALUES (?, ?, ?)`,
			store.NormalizeDomain(domain), advice, store.Now(),
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLiteStore) ListAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error) {
	filter = filter.Normalize()
	query := `SELECT id, domain, advice, created_at FROM scraping_advice`
	args := []any{}
	if filter.Domain != "" {
		query += ` WHERE domain LIKE ? ESCAPE '\'`
		args = append(args, "%"+store.EscapeLike(filter.Domain)+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.AdviceEntry{}
	for rows.Next() {
		var entry store.AdviceEntry
		if err := rows.Scan(&entry.ID, &entry.Domain, &entry.Advice, &entry.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.runTxOnce(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		timer := time.NewTimer(time.Duration(100*(attempt+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (s *SQLiteStore) runTxOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// prefilterable reports whether value appears verbatim inside encoded step
// JSON and lowercases the same way in SQLite.
func prefilterable(value string) bool {
	for _, r := range value {
		if r < 0x20 || r > 0x7e || strings.ContainsRune(`<>&"\`, r) {
			return false
		}
	}
	return true
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
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
	if err := row.Scan(&req.ID, &req.Prompt, &domain, &stepsJSON, &finalResult, &success, &req.CreatedAt, &req.UpdatedAt); err != nil {
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
	return req, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	copied := value.String
	return &copied
}

func stringPtrValue(value *string) any {
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

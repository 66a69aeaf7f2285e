// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/tuispeak/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for attempt data.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection; attempt writes and kv updates never overlap.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			lesson_id TEXT NOT NULL,
			target TEXT NOT NULL,
			transcript TEXT NOT NULL,
			accuracy INTEGER NOT NULL,
			confidence INTEGER NOT NULL,
			timed INTEGER NOT NULL,
			restarts INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_word_stats (
			attempt_id INTEGER NOT NULL,
			word TEXT NOT NULL,
			matched INTEGER NOT NULL,
			near INTEGER NOT NULL,
			missed INTEGER NOT NULL,
			PRIMARY KEY (attempt_id, word)
		);`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_ended_at ON attempts(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_word_stats_word ON attempt_word_stats(word);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAttempt stores a scored attempt and its per-word outcomes.
func (s *Store) InsertAttempt(ctx context.Context, a model.Attempt, words []model.WordStats) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (session_id, lesson_id, target, transcript, accuracy, confidence, timed, restarts, started_at, ended_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID,
		a.LessonID,
		a.Target,
		a.Transcript,
		a.Accuracy,
		a.Confidence,
		boolInt(a.Timed),
		a.Restarts,
		a.StartedAt.UTC().Format(time.RFC3339Nano),
		a.EndedAt.UTC().Format(time.RFC3339Nano),
		a.DurationMs,
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(words) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO attempt_word_stats (attempt_id, word, matched, near, missed)
			 VALUES (?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, ws := range words {
			if _, err = stmt.ExecContext(ctx, id, ws.Word, ws.Matched, ws.Near, ws.Missed); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetWeakWords aggregates word outcomes over the most recent attempts.
func (s *Store) GetWeakWords(ctx context.Context, window int, lesson string) ([]model.WordAggregate, error) {
	if window <= 0 {
		return nil, nil
	}
	query := `WITH recent_attempts AS (
		SELECT id FROM attempts
		WHERE (? = '' OR lesson_id = ?)
		ORDER BY ended_at DESC
		LIMIT ?
	)
	SELECT ws.word, SUM(ws.matched), SUM(ws.near), SUM(ws.missed)
	FROM attempt_word_stats ws
	JOIN recent_attempts r ON r.id = ws.attempt_id
	GROUP BY ws.word`

	rows, err := s.db.QueryContext(ctx, query, lesson, lesson, window)
	if err != nil {
		return nil, err
	}
	return scanWordAggregates(rows)
}

// ListAttempts returns attempt aggregates filtered by stats config, oldest
// first. Last keeps only the most recent attempts.
func (s *Store) ListAttempts(ctx context.Context, cfg model.StatsConfig) ([]model.AttemptAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Lesson != "" {
		clauses = append(clauses, "a.lesson_id = ?")
		args = append(args, cfg.Lesson)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "a.ended_at >= ?")
		args = append(args, cfg.Since.UTC().Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT a.id, a.lesson_id, a.ended_at, a.accuracy, a.confidence, a.duration_ms,
			(SELECT COALESCE(SUM(matched + near + missed), 0) FROM attempt_word_stats WHERE attempt_id = a.id)
		FROM attempts a
		WHERE %s
		ORDER BY a.ended_at ASC, a.id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var attempts []model.AttemptAggregate
	for rows.Next() {
		var agg model.AttemptAggregate
		var endedAt string
		if err := rows.Scan(&agg.AttemptID, &agg.LessonID, &endedAt, &agg.Accuracy, &agg.Confidence, &agg.DurationMs, &agg.Words); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		attempts = append(attempts, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(attempts) > cfg.Last {
		attempts = attempts[len(attempts)-cfg.Last:]
	}
	return attempts, nil
}

// ListWordAggregatesForAttempts aggregates per-word outcomes across attempts.
func (s *Store) ListWordAggregatesForAttempts(ctx context.Context, attemptIDs []int64) ([]model.WordAggregate, error) {
	if len(attemptIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(attemptIDs)
	query := fmt.Sprintf(`SELECT word, SUM(matched), SUM(near), SUM(missed)
		FROM attempt_word_stats
		WHERE attempt_id IN (%s)
		GROUP BY word`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanWordAggregates(rows)
}

// ListWordStatsForAttempts returns per-attempt outcomes for selected words.
func (s *Store) ListWordStatsForAttempts(ctx context.Context, attemptIDs []int64, words []string) (map[int64]map[string]model.WordStats, error) {
	if len(attemptIDs) == 0 || len(words) == 0 {
		return map[int64]map[string]model.WordStats{}, nil
	}
	idPlaceholders, args := inClause(attemptIDs)
	wordPlaceholders := make([]string, len(words))
	for i, w := range words {
		wordPlaceholders[i] = "?"
		args = append(args, w)
	}

	query := fmt.Sprintf(`SELECT attempt_id, word, matched, near, missed
		FROM attempt_word_stats
		WHERE attempt_id IN (%s) AND word IN (%s)`, idPlaceholders, strings.Join(wordPlaceholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	result := map[int64]map[string]model.WordStats{}
	for rows.Next() {
		var attemptID int64
		var ws model.WordStats
		if err := rows.Scan(&attemptID, &ws.Word, &ws.Matched, &ws.Near, &ws.Missed); err != nil {
			return nil, err
		}
		if _, ok := result[attemptID]; !ok {
			result[attemptID] = map[string]model.WordStats{}
		}
		result[attemptID][ws.Word] = ws
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	return strings.Join(placeholders, ","), args
}

func scanWordAggregates(rows *sql.Rows) ([]model.WordAggregate, error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var result []model.WordAggregate
	for rows.Next() {
		var agg model.WordAggregate
		if err := rows.Scan(&agg.Word, &agg.Matched, &agg.Near, &agg.Missed); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

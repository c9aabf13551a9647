package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/gigisung0503/eios/internal/domain"
	"github.com/gigisung0503/eios/internal/ports"
)

// Store persists raw items, classification results, the dedup ledger, and
// stored config overrides in SQLite.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.SignalRepository = (*Store)(nil)
	_ ports.Ledger           = (*Store)(nil)
)

// Open connects to the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS raw_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rss_item_id TEXT NOT NULL UNIQUE,
			original_title TEXT,
			title TEXT,
			translated_description TEXT,
			translated_abstractive_summary TEXT,
			abstractive_summary TEXT,
			combined_text TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processed_signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rss_item_id TEXT NOT NULL,
			extracted_countries TEXT,
			extracted_hazards TEXT,
			risk_signal_assessment TEXT,
			justification TEXT,
			vulnerability_score INTEGER,
			coping_score INTEGER,
			total_risk_score INTEGER,
			is_signal TEXT,
			is_pinned INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'new',
			processed_at TEXT NOT NULL,
			raw_signal_id INTEGER REFERENCES raw_signals(id)
		)`,
		`CREATE TABLE IF NOT EXISTS processed_signal_ids (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rss_item_id TEXT NOT NULL UNIQUE,
			processed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			value TEXT,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// SaveRaw stores the raw item snapshot unless a row with the same external
// id already exists, in which case the existing row id is returned.
func (s *Store) SaveRaw(ctx context.Context, raw domain.RawSignal) (int64, error) {
	query, args, err := s.sb.Select("id").
		From("raw_signals").
		Where(sq.Eq{"rss_item_id": raw.ExternalID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build raw lookup: %w", err)
	}

	var existing int64
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&existing); {
	case err == nil:
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup raw signal: %w", err)
	}

	query, args, err = s.sb.Insert("raw_signals").
		Columns("rss_item_id", "original_title", "title", "translated_description",
			"translated_abstractive_summary", "abstractive_summary", "combined_text", "created_at").
		Values(raw.ExternalID, raw.OriginalTitle, raw.Title, raw.TranslatedDescription,
			raw.TranslatedAbstractiveSummary, raw.AbstractiveSummary, raw.CombinedText, timestamp()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build raw insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert raw signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("raw signal insert id: %w", err)
	}
	return id, nil
}

// SaveProcessed inserts one classification result.
func (s *Store) SaveProcessed(ctx context.Context, signal domain.ProcessedSignal) error {
	status := signal.Status
	if status == "" {
		status = domain.StatusNew
	}

	query, args, err := s.sb.Insert("processed_signals").
		Columns("rss_item_id", "extracted_countries", "extracted_hazards", "risk_signal_assessment",
			"justification", "vulnerability_score", "coping_score", "total_risk_score",
			"is_signal", "is_pinned", "status", "processed_at", "raw_signal_id").
		Values(signal.ExternalID, signal.ExtractedCountries, signal.ExtractedHazards, signal.RawAssessment,
			signal.Justification, nullableInt(signal.VulnerabilityScore), nullableInt(signal.CopingScore), nullableInt(signal.TotalRiskScore),
			signal.IsSignal, signal.Pinned, string(status), timestamp(), signal.RawSignalID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build processed insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert processed signal: %w", err)
	}
	return nil
}

// IsProcessed reports whether the external id is already in the ledger.
func (s *Store) IsProcessed(ctx context.Context, externalID string) (bool, error) {
	query, args, err := s.sb.Select("1").
		From("processed_signal_ids").
		Where(sq.Eq{"rss_item_id": externalID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build ledger lookup: %w", err)
	}

	var one int
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("lookup ledger entry: %w", err)
	}
}

// MarkProcessed records the external id in the ledger. Idempotent: marking
// an already-ledgered id leaves exactly one entry.
func (s *Store) MarkProcessed(ctx context.Context, externalID string) error {
	query, args, err := s.sb.Insert("processed_signal_ids").
		Options("OR IGNORE").
		Columns("rss_item_id", "processed_at").
		Values(externalID, timestamp()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ledger insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Overrides returns all stored configuration overrides.
func (s *Store) Overrides(ctx context.Context) (map[string]string, error) {
	query, args, err := s.sb.Select("key", "value").From("user_config").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build config query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config rows: %w", err)
	}
	return values, nil
}

// SetOverride upserts one stored configuration override.
func (s *Store) SetOverride(ctx context.Context, key, value string) error {
	query, args, err := s.sb.Insert("user_config").
		Columns("key", "value", "updated_at").
		Values(key, value, timestamp()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build config upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

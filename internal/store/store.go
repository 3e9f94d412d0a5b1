// Package store provides SQLite persistence for consolidated incidents.
// It is the only component that touches storage; the pipeline reaches it
// through the two-method window-query/upsert contract.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/osintlab/dronewatch/internal/incident"
)

// ErrConflict is returned when inserting a new incident whose spacetime key
// already exists: a concurrent cycle won the race to create it. Recoverable;
// the caller re-reads the winning record and retries as a merge.
var ErrConflict = errors.New("incident already exists for spacetime key")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// In-memory databases get a single connection so the pool cannot hand
	// out separate empty databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
// The unique index on spacetime_key is what turns a duplicate-NEW race
// between overlapping cycles into a loud constraint violation instead of a
// silent second record.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		narrative TEXT,
		occurred_at DATETIME NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		location_name TEXT,
		asset_type TEXT NOT NULL,
		country TEXT,
		evidence_score INTEGER NOT NULL,
		merged_from_count INTEGER NOT NULL,
		spacetime_key TEXT NOT NULL UNIQUE,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sources (
		incident_id TEXT NOT NULL,
		url TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_name TEXT,
		trust_weight INTEGER NOT NULL,
		quote TEXT,
		published_at DATETIME,
		PRIMARY KEY (incident_id, url),
		FOREIGN KEY (incident_id) REFERENCES incidents(id)
	);

	CREATE TABLE IF NOT EXISTS merge_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id TEXT NOT NULL,
		candidate_digest TEXT NOT NULL,
		merged_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_key ON incidents(spacetime_key);
	CREATE INDEX IF NOT EXISTS idx_incidents_updated ON incidents(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_merge_audit_incident ON merge_audit(incident_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// FindInWindow retrieves incidents sharing the given spacetime key, most
// recently updated first, sources attached.
// Thread-safe: acquires read lock.
func (s *Store) FindInWindow(ctx context.Context, spacetimeKey string) ([]incident.Consolidated, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, title, narrative, occurred_at, lat, lon, location_name,
			asset_type, country, evidence_score, merged_from_count,
			spacetime_key, updated_at
		FROM incidents
		WHERE spacetime_key = ?
		ORDER BY updated_at DESC
	`

	incidents, err := s.queryIncidents(ctx, query, spacetimeKey)
	if err != nil {
		return nil, err
	}

	for i := range incidents {
		sources, err := s.querySources(ctx, incidents[i].ID)
		if err != nil {
			return nil, err
		}
		incidents[i].Sources = sources
	}

	return incidents, nil
}

// Upsert stores an incident. An incident without an ID is inserted fresh
// (the store assigns one); an incident with an ID has its mutable fields
// updated and its sources unioned. Returns the stored version. An insert
// that loses the spacetime-key race returns ErrConflict.
// Thread-safe: acquires write lock.
func (s *Store) Upsert(ctx context.Context, inc incident.Consolidated) (incident.Consolidated, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return incident.Consolidated{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if inc.ID == "" {
		inc.ID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO incidents (
				id, title, narrative, occurred_at, lat, lon, location_name,
				asset_type, country, evidence_score, merged_from_count,
				spacetime_key, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			inc.ID, inc.Title, inc.Narrative, inc.OccurredAt,
			inc.Location.Lat, inc.Location.Lon, inc.LocationName,
			string(inc.AssetType), inc.Country, inc.EvidenceScore,
			inc.MergedFromCount, inc.SpacetimeKey, inc.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return incident.Consolidated{}, ErrConflict
			}
			return incident.Consolidated{}, fmt.Errorf("insert incident: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE incidents SET
				title = ?, narrative = ?, location_name = ?,
				evidence_score = ?, merged_from_count = ?, updated_at = ?
			WHERE id = ?
		`,
			inc.Title, inc.Narrative, inc.LocationName,
			inc.EvidenceScore, inc.MergedFromCount, inc.UpdatedAt, inc.ID,
		)
		if err != nil {
			return incident.Consolidated{}, fmt.Errorf("update incident: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return incident.Consolidated{}, fmt.Errorf("update incident: %w", err)
		}
		if n == 0 {
			// A stale ID must not be reported as stored.
			return incident.Consolidated{}, fmt.Errorf("update incident %s: no such incident", inc.ID)
		}
	}

	// INSERT OR IGNORE keeps the first-seen source row when the same URL
	// arrives again, matching the merge engine's first-seen-wins rule.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO sources (
			incident_id, url, source_type, source_name, trust_weight, quote, published_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return incident.Consolidated{}, fmt.Errorf("prepare sources: %w", err)
	}
	defer stmt.Close()

	for _, src := range inc.Sources {
		if _, err := stmt.ExecContext(ctx,
			inc.ID, src.URL, string(src.SourceType), src.SourceName,
			src.TrustWeight, src.Quote, src.PublishedAt,
		); err != nil {
			return incident.Consolidated{}, fmt.Errorf("insert source %s: %w", src.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return incident.Consolidated{}, fmt.Errorf("commit: %w", err)
	}

	return inc, nil
}

// RecordMerge appends one merge-audit row: which candidate (by digest) was
// folded into which incident, and when.
// Thread-safe: acquires write lock.
func (s *Store) RecordMerge(ctx context.Context, incidentID, candidateDigest string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_audit (incident_id, candidate_digest, merged_at)
		VALUES (?, ?, ?)
	`, incidentID, candidateDigest, at)
	return err
}

// Count returns the total number of stored incidents.
// Thread-safe: acquires read lock.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM incidents").Scan(&n)
	return n, err
}

// queryIncidents is a helper that executes a query and scans the results.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryIncidents(ctx context.Context, query string, args ...any) ([]incident.Consolidated, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []incident.Consolidated
	for rows.Next() {
		var inc incident.Consolidated
		var assetType string
		err := rows.Scan(
			&inc.ID,
			&inc.Title,
			&inc.Narrative,
			&inc.OccurredAt,
			&inc.Location.Lat,
			&inc.Location.Lon,
			&inc.LocationName,
			&assetType,
			&inc.Country,
			&inc.EvidenceScore,
			&inc.MergedFromCount,
			&inc.SpacetimeKey,
			&inc.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		inc.AssetType = incident.AssetType(assetType)
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return incidents, nil
}

// querySources loads an incident's sources ordered by insertion.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) querySources(ctx context.Context, incidentID string) ([]incident.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, source_type, source_name, trust_weight, quote, published_at
		FROM sources
		WHERE incident_id = ?
		ORDER BY rowid
	`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []incident.Source
	for rows.Next() {
		var src incident.Source
		var sourceType string
		err := rows.Scan(
			&src.URL,
			&sourceType,
			&src.SourceName,
			&src.TrustWeight,
			&src.Quote,
			&src.PublishedAt,
		)
		if err != nil {
			return nil, err
		}
		src.SourceType = incident.SourceType(sourceType)
		sources = append(sources, src)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sources, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CatalogStore = (*CatalogStore)(nil)

// CatalogStore implements driven.CatalogStore using PostgreSQL
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// SaveEntries upserts catalog entries keyed by URL. A re-discovered URL
// keeps its original discovery timestamp but its extracted_at is
// cleared, so the next extraction pass refreshes the content. Returns
// how many entries were new.
func (s *CatalogStore) SaveEntries(ctx context.Context, entries []*domain.ResourceCatalogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO content_catalog (url, subject, topic, discovered_title, discovered_at, extracted_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (url) DO UPDATE SET
			subject = EXCLUDED.subject,
			topic = EXCLUDED.topic,
			discovered_title = EXCLUDED.discovered_title,
			extracted_at = NULL
		RETURNING (xmax = 0)
	`

	var newCount int
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			discoveredAt := entry.DiscoveredAt
			if discoveredAt.IsZero() {
				discoveredAt = time.Now()
			}

			var inserted bool
			err := stmt.QueryRowContext(ctx,
				entry.URL,
				entry.Subject,
				entry.Topic,
				entry.DiscoveredTitle,
				discoveredAt,
			).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("upsert entry %s: %w", entry.URL, err)
			}
			if inserted {
				newCount++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return newCount, nil
}

// ListPending returns entries not yet extracted for a subject, oldest first
func (s *CatalogStore) ListPending(ctx context.Context, subject string, limit int) ([]*domain.ResourceCatalogEntry, error) {
	query := `
		SELECT url, subject, topic, discovered_title, discovered_at, extracted_at
		FROM content_catalog
		WHERE subject = $1 AND extracted_at IS NULL
		ORDER BY discovered_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ResourceCatalogEntry
	for rows.Next() {
		var entry domain.ResourceCatalogEntry
		var extractedAt sql.NullTime
		err := rows.Scan(
			&entry.URL,
			&entry.Subject,
			&entry.Topic,
			&entry.DiscoveredTitle,
			&entry.DiscoveredAt,
			&extractedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.ExtractedAt = TimePtr(extractedAt)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// MarkExtracted stamps an entry as consumed by the extractor
func (s *CatalogStore) MarkExtracted(ctx context.Context, url string, at time.Time) error {
	query := `UPDATE content_catalog SET extracted_at = $1 WHERE url = $2`
	result, err := s.db.ExecContext(ctx, query, at, url)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// SaveRun records the outcome of an indexing run
func (s *CatalogStore) SaveRun(ctx context.Context, run *domain.CatalogRun) error {
	query := `
		INSERT INTO catalog_runs (subject, discovered, new_entries, pages_loaded, partial, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.Subject,
		run.Discovered,
		run.New,
		run.PagesLoaded,
		run.Partial,
		run.StartedAt,
		run.CompletedAt,
	)
	return err
}

// LastRun returns the most recent run for a subject
func (s *CatalogStore) LastRun(ctx context.Context, subject string) (*domain.CatalogRun, error) {
	query := `
		SELECT subject, discovered, new_entries, pages_loaded, partial, started_at, completed_at
		FROM catalog_runs
		WHERE subject = $1
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var run domain.CatalogRun
	err := s.db.QueryRowContext(ctx, query, subject).Scan(
		&run.Subject,
		&run.Discovered,
		&run.New,
		&run.PagesLoaded,
		&run.Partial,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// CountPending returns how many entries await extraction for a subject
func (s *CatalogStore) CountPending(ctx context.Context, subject string) (int, error) {
	query := `SELECT COUNT(*) FROM content_catalog WHERE subject = $1 AND extracted_at IS NULL`

	var count int
	if err := s.db.QueryRowContext(ctx, query, subject).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

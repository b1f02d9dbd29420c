package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

const (
	// maxListingPages is the hard ceiling on listing expansions per run,
	// regardless of what the source claims about more pages.
	maxListingPages = 50

	// quietPagesToStop ends a run after this many consecutive pages
	// that yield no previously-unseen URLs.
	quietPagesToStop = 2

	indexLockTTL = 10 * time.Minute
)

// ResourceIndexer runs the discovery phase: walk a subject's listing
// page by page, dedupe by URL and persist the catalog so extraction
// can run later and independently.
type ResourceIndexer struct {
	source  driven.SubjectSource
	catalog driven.CatalogStore
	lock    driven.DistributedLock
	logger  *slog.Logger
}

// ResourceIndexerConfig holds dependencies for ResourceIndexer.
type ResourceIndexerConfig struct {
	Source  driven.SubjectSource
	Catalog driven.CatalogStore
	Lock    driven.DistributedLock // Optional: coordinates runs across instances
	Logger  *slog.Logger
}

// NewResourceIndexer creates a new resource indexer.
func NewResourceIndexer(cfg ResourceIndexerConfig) *ResourceIndexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceIndexer{
		source:  cfg.Source,
		catalog: cfg.Catalog,
		lock:    cfg.Lock,
		logger:  logger,
	}
}

// IndexSubject discovers catalog entries for one subject.
// The run terminates when the source stops advertising more pages, when
// two consecutive pages yield nothing new, or at the page ceiling.
// Within a run the same URL is counted once no matter how many pages
// repeat it.
func (r *ResourceIndexer) IndexSubject(ctx context.Context, subject string) (*domain.CatalogRun, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}

	if r.lock != nil {
		lockName := "index:" + subject
		acquired, err := r.lock.Acquire(ctx, lockName, indexLockTTL)
		if err != nil {
			r.logger.Warn("failed to acquire index lock, continuing unlocked",
				"subject", subject, "error", err)
		} else if !acquired {
			return nil, domain.ErrRunInProgress
		} else {
			defer func() {
				if err := r.lock.Release(ctx, lockName); err != nil {
					r.logger.Warn("failed to release index lock", "subject", subject, "error", err)
				}
			}()
		}
	}

	run := &domain.CatalogRun{
		Subject:   subject,
		StartedAt: time.Now(),
	}

	r.logger.Info("starting catalog run", "subject", subject)

	seen := make(map[string]bool)
	var batch []*domain.ResourceCatalogEntry
	quietPages := 0

	for page := 0; page < maxListingPages; page++ {
		select {
		case <-ctx.Done():
			run.Partial = true
			return r.finishRun(ctx, run, batch, ctx.Err())
		default:
		}

		listing, err := r.source.ListPage(ctx, subject, page)
		if err != nil {
			// Page retries are exhausted inside the source; keep what
			// we have and mark the run partial.
			r.logger.Warn("listing page failed, ending run early",
				"subject", subject, "page", page, "error", err)
			run.Partial = true
			return r.finishRun(ctx, run, batch, nil)
		}
		run.PagesLoaded++

		fresh := 0
		for _, entry := range listing.Entries {
			if entry.URL == "" || seen[entry.URL] {
				continue
			}
			seen[entry.URL] = true
			fresh++

			e := *entry
			e.Subject = subject
			if e.DiscoveredAt.IsZero() {
				e.DiscoveredAt = time.Now()
			}
			batch = append(batch, &e)
		}

		if fresh == 0 {
			quietPages++
			if quietPages >= quietPagesToStop {
				r.logger.Debug("no new entries on consecutive pages, stopping",
					"subject", subject, "page", page)
				break
			}
		} else {
			quietPages = 0
		}

		if !listing.HasMore {
			break
		}
	}

	return r.finishRun(ctx, run, batch, nil)
}

// finishRun persists the discovered batch and the run record.
// Entries are saved even when the run ends early; a partial catalog
// still feeds the extractor.
func (r *ResourceIndexer) finishRun(ctx context.Context, run *domain.CatalogRun, batch []*domain.ResourceCatalogEntry, cause error) (*domain.CatalogRun, error) {
	// Use a fresh context for the final writes so a cancelled run still
	// records what it found.
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	run.Discovered = len(batch)
	if len(batch) > 0 {
		added, err := r.catalog.SaveEntries(saveCtx, batch)
		if err != nil {
			return nil, fmt.Errorf("save catalog entries: %w", err)
		}
		run.New = added
	}

	run.CompletedAt = time.Now()
	if err := r.catalog.SaveRun(saveCtx, run); err != nil {
		r.logger.Warn("failed to record catalog run", "subject", run.Subject, "error", err)
	}

	r.logger.Info("catalog run finished",
		"subject", run.Subject,
		"pages_loaded", run.PagesLoaded,
		"discovered", run.Discovered,
		"new", run.New,
		"partial", run.Partial,
	)

	if cause != nil {
		return run, cause
	}
	return run, nil
}

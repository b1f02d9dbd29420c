package domain

import "time"

// ResourceCatalogEntry is a discovered-but-not-yet-extracted content
// location. Immutable once written; keyed by URL so re-discovery of the
// same resource never duplicates it.
type ResourceCatalogEntry struct {
	URL             string     `json:"url"`
	Subject         string     `json:"subject"`
	Topic           string     `json:"topic,omitempty"` // listing section heading, when present
	DiscoveredTitle string     `json:"discovered_title"`
	DiscoveredAt    time.Time  `json:"discovered_at"`
	ExtractedAt     *time.Time `json:"extracted_at,omitempty"`
}

// CatalogRun summarises one indexing pass over a subject listing
type CatalogRun struct {
	Subject     string    `json:"subject"`
	Discovered  int       `json:"discovered"`
	New         int       `json:"new"`
	PagesLoaded int       `json:"pages_loaded"`
	Partial     bool      `json:"partial"` // page fetches gave up before the listing was exhausted
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Package abcedu fetches subject listings and resource pages from the
// ABC Education site. Listings are paginated server-side; the adapter
// owns throttling and retry so callers see already-retried errors.
package abcedu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Ensure Source implements SubjectSource
var _ driven.SubjectSource = (*Source)(nil)

const (
	defaultBaseURL   = "https://www.abc.net.au/education"
	defaultUserAgent = "learning-core/1.0"
)

// Config holds settings for the ABC Education source.
type Config struct {
	// BaseURL is the education site root.
	BaseURL string
	// Subjects this source can index.
	Subjects []string
	// RequestDelay is the minimum gap between outbound requests.
	RequestDelay time.Duration
	// FetchTimeout bounds each HTTP request.
	FetchTimeout time.Duration
	// MaxRetries is the retry count after the first attempt.
	MaxRetries int
	// UserAgent identifies the crawler.
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      defaultBaseURL,
		Subjects:     []string{"Maths", "Science", "English"},
		RequestDelay: time.Second,
		FetchTimeout: 30 * time.Second,
		MaxRetries:   3,
		UserAgent:    defaultUserAgent,
	}
}

// Source crawls subject listings and resource pages.
type Source struct {
	baseURL       *url.URL
	subjects      []string
	userAgent     string
	maxRetries    int
	delay         time.Duration
	retryInterval time.Duration
	client        *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

// NewSource creates a Source from configuration.
func NewSource(cfg Config) (*Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("%w: at least one subject is required", domain.ErrInvalidInput)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &Source{
		baseURL:       base,
		subjects:      append([]string(nil), cfg.Subjects...),
		userAgent:     cfg.UserAgent,
		maxRetries:    cfg.MaxRetries,
		delay:         cfg.RequestDelay,
		retryInterval: 500 * time.Millisecond,
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}, nil
}

// Subjects returns the subjects this source can index
func (s *Source) Subjects() []string {
	return append([]string(nil), s.subjects...)
}

// ListPage loads one expansion (0-based) of a subject listing
func (s *Source) ListPage(ctx context.Context, subject string, page int) (*driven.ListingPage, error) {
	listURL := s.listingURL(subject, page)

	body, err := s.get(ctx, listURL)
	if err != nil {
		return nil, err
	}

	entries, hasMore, err := parseListing(s.baseURL, body, subject)
	if err != nil {
		return nil, fmt.Errorf("parse listing for %s: %w", subject, err)
	}

	return &driven.ListingPage{
		Entries: entries,
		HasMore: hasMore,
	}, nil
}

// FetchResource loads a single resource page for extraction
func (s *Source) FetchResource(ctx context.Context, resourceURL string) (*driven.ResourcePage, error) {
	body, err := s.get(ctx, resourceURL)
	if err != nil {
		return nil, err
	}

	page, err := parseResource(resourceURL, body)
	if err != nil {
		return nil, fmt.Errorf("parse resource %s: %w", resourceURL, err)
	}
	return page, nil
}

// listingURL builds the subject listing URL. The first expansion is the
// bare subject page; later ones carry a page query parameter.
func (s *Source) listingURL(subject string, page int) string {
	u := *s.baseURL
	u.Path = u.Path + "/subjects-and-topics/" + subjectSlug(subject)
	if page > 0 {
		q := u.Query()
		q.Set("page", strconv.Itoa(page+1))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func subjectSlug(subject string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(subject)), " ", "-")
}

// get fetches a URL with throttling and exponential-backoff retries.
// 404 is permanent; other failures are retried up to MaxRetries and
// surfaced as a TransientError when exhausted.
func (s *Source) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	attempts := 0

	op := func() error {
		attempts++
		s.throttle()

		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", s.userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, rawURL))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &domain.TransientError{Op: "fetch " + rawURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

// throttle enforces the minimum gap between outbound requests.
func (s *Source) throttle() {
	if s.delay <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if wait := s.delay - time.Since(s.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	s.lastCall = time.Now()
}

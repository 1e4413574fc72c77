// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv implements the rate-limited client for the arXiv export
// API: metadata queries against the Atom feed and PDF downloads.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-ingest/internal/httputil"
	"github.com/pdiddy/paper-ingest/internal/logging"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

const (
	defaultBaseURL    = "https://export.arxiv.org/api/query"
	defaultMaxResults = 100

	// submittedDate bounds use the arXiv timestamp format.
	dateFormat = "200601021504"
)

// Prometheus metrics for arXiv API traffic.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arxiv_api_requests_total",
		Help: "Total number of arXiv API requests by operation",
	}, []string{"operation"})

	downloadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arxiv_download_retries_total",
		Help: "Total number of PDF download retry attempts",
	})
)

// Client talks to the arXiv export API. All requests, metadata and PDF
// alike, share one rate-limit window; the last-request timestamp is
// mutex-guarded because item pipelines download concurrently.
type Client struct {
	http *http.Client
	cfg  types.ArxivConfig
	log  zerolog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client from cfg, filling in defaults for unset fields.
func NewClient(cfg types.ArxivConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  logging.ForComponent("arxiv"),
	}
}

// Query describes one metadata search against the export API.
type Query struct {
	// Category filters by arXiv category; falls back to the client's
	// configured default when empty.
	Category string

	// From and To bound the submittedDate range. A zero bound is open.
	From time.Time
	To   time.Time

	// Start is the result offset.
	Start int

	// MaxResults caps the page size; 0 uses the configured default.
	MaxResults int

	// SortBy and SortOrder default to submittedDate descending.
	SortBy    string
	SortOrder string
}

// FetchMetadata issues one metadata query and returns the parsed entries.
// Malformed entries inside an otherwise valid feed are skipped and logged,
// not fatal. Failures are reported as *TimeoutError, *APIError, or
// *FeedError.
func (c *Client) FetchMetadata(ctx context.Context, q Query) ([]types.PaperMetadata, error) {
	params := url.Values{}
	params.Set("search_query", c.buildSearchQuery(q))
	params.Set("start", strconv.Itoa(q.Start))
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	params.Set("max_results", strconv.Itoa(maxResults))
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "submittedDate"
	}
	sortOrder := q.SortOrder
	if sortOrder == "" {
		sortOrder = "descending"
	}
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", sortOrder)

	return c.fetchFeed(ctx, params)
}

// FetchByID looks up a single paper by arXiv id via the id_list parameter.
// It returns nil when the feed has no entry for the id.
func (c *Client) FetchByID(ctx context.Context, arxivID string) (*types.PaperMetadata, error) {
	params := url.Values{}
	params.Set("id_list", arxivID)

	papers, err := c.fetchFeed(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, nil
	}
	return &papers[0], nil
}

func (c *Client) fetchFeed(ctx context.Context, params url.Values) ([]types.PaperMetadata, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	apiURL := c.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, &APIError{Op: "metadata fetch", Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	apiRequestsTotal.WithLabelValues("metadata").Inc()
	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Op: "metadata fetch", Err: err}
		}
		return nil, &APIError{Op: "metadata fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Op: "metadata fetch", StatusCode: resp.StatusCode}
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, &FeedError{Err: err}
	}

	papers := make([]types.PaperMetadata, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper, ok := c.paperFromEntry(entry)
		if !ok {
			continue
		}
		papers = append(papers, paper)
	}

	c.log.Info().Int("fetched", len(papers)).Int("entries", len(feed.Entries)).Msg("metadata fetch complete")
	return papers, nil
}

// buildSearchQuery combines the category filter with an optional
// submittedDate range, joined by logical AND.
func (c *Client) buildSearchQuery(q Query) string {
	category := q.Category
	if category == "" {
		category = c.cfg.Category
	}
	sq := "cat:" + category

	if !q.From.IsZero() || !q.To.IsZero() {
		from := "*"
		if !q.From.IsZero() {
			from = q.From.UTC().Format(dateFormat)
		}
		to := "*"
		if !q.To.IsZero() {
			to = q.To.UTC().Format(dateFormat)
		}
		sq += fmt.Sprintf(" AND submittedDate:[%s TO %s]", from, to)
	}
	return sq
}

// waitRateLimit blocks until the minimum inter-request spacing has elapsed.
// Each caller reserves its own slot under the mutex, so concurrent
// downloaders never compute overlapping sleep windows.
func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.cfg.RateLimitDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.cfg.RateLimitDelay)
	if next.Before(now) {
		next = now
	}
	c.lastRequest = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Atom feed XML structures. Element names resolve against the Atom
// namespace; the category terms and PDF link come from attributes.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// paperFromEntry maps one feed entry to PaperMetadata. Entries missing the
// required id or title are reported as not ok and skipped by the caller.
func (c *Client) paperFromEntry(entry atomEntry) (types.PaperMetadata, bool) {
	arxivID := extractArxivID(entry.ID)
	if arxivID == "" || strings.TrimSpace(entry.Title) == "" {
		c.log.Warn().Str("id", entry.ID).Msg("skipping malformed feed entry")
		return types.PaperMetadata{}, false
	}

	paper := types.PaperMetadata{
		ArxivID:  arxivID,
		Title:    strings.TrimSpace(entry.Title),
		Abstract: strings.TrimSpace(entry.Summary),
		PDFURL:   pdfLink(entry.Links),
	}

	for _, a := range entry.Authors {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
	}
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			paper.Categories = append(paper.Categories, cat.Term)
		}
	}

	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		paper.Published = t
	}

	return paper, true
}

// pdfLink finds the entry's PDF link by MIME type and normalizes its scheme
// to HTTPS.
func pdfLink(links []atomLink) string {
	for _, l := range links {
		if l.Type != "application/pdf" {
			continue
		}
		if after, ok := strings.CutPrefix(l.Href, "http://"); ok {
			return "https://" + after
		}
		return l.Href
	}
	return ""
}

// extractArxivID pulls the arXiv id from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v2" → "2301.07041"). The version
// suffix is stripped so the id stays stable across revisions.
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

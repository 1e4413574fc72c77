// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

const sampleFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v2</id>
    <title>Attention Is Not All You Need</title>
    <summary>  We revisit attention mechanisms.  </summary>
    <published>2023-01-17T12:00:00Z</published>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <category term="cs.AI"/>
    <category term="cs.LG"/>
    <link href="http://arxiv.org/abs/2301.07041v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2301.07041v2" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2302.00001v1</id>
    <title>A Paper Without a PDF Link</title>
    <summary>No PDF offered.</summary>
    <published>2023-02-01T00:00:00Z</published>
    <author><name>Grace Hopper</name></author>
    <category term="cs.AI"/>
  </entry>
  <entry>
    <id>http://example.com/not-an-arxiv-id</id>
    <title>Malformed Entry</title>
  </entry>
</feed>`

func testClient(baseURL string) *Client {
	return NewClient(types.ArxivConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   5 * time.Second,
			UserAgent: "paper-ingest-test/0.1",
		},
		BaseURL:    baseURL,
		Category:   "cs.AI",
		MaxResults: 10,
	})
}

func TestFetchMetadataParsesFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	papers, err := testClient(ts.URL).FetchMetadata(context.Background(), Query{})
	require.NoError(t, err)

	// The third entry is malformed and skipped.
	require.Len(t, papers, 2)

	p := papers[0]
	assert.Equal(t, "2301.07041", p.ArxivID, "version suffix stripped")
	assert.Equal(t, "Attention Is Not All You Need", p.Title)
	assert.Equal(t, "We revisit attention mechanisms.", p.Abstract)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, p.Categories)
	assert.Equal(t, "https://arxiv.org/pdf/2301.07041v2", p.PDFURL, "PDF link scheme normalized")
	assert.Equal(t, time.Date(2023, 1, 17, 12, 0, 0, 0, time.UTC), p.Published)

	assert.Empty(t, papers[1].PDFURL, "entry without a PDF link")
}

func TestFetchMetadataQueryParams(t *testing.T) {
	var query map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 1, 31, 23, 59, 0, 0, time.UTC)
	_, err := testClient(ts.URL).FetchMetadata(context.Background(), Query{
		Category:   "cs.CL",
		From:       from,
		To:         to,
		Start:      20,
		MaxResults: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "cat:cs.CL AND submittedDate:[202301010000 TO 202301312359]", query["search_query"])
	assert.Equal(t, "20", query["start"])
	assert.Equal(t, "5", query["max_results"])
	assert.Equal(t, "submittedDate", query["sortBy"])
	assert.Equal(t, "descending", query["sortOrder"])
}

func TestFetchMetadataDefaultCategory(t *testing.T) {
	var searchQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searchQuery = r.URL.Query().Get("search_query")
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchMetadata(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, "cat:cs.AI", searchQuery)
}

func TestFetchMetadataHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchMetadata(context.Background(), Query{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestFetchMetadataBadXML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("this is not a feed <<<"))
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).FetchMetadata(context.Background(), Query{})
	var feedErr *FeedError
	assert.ErrorAs(t, err, &feedErr)
}

func TestFetchMetadataTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	c.http.Timeout = 20 * time.Millisecond

	_, err := c.FetchMetadata(context.Background(), Query{})
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestFetchByID(t *testing.T) {
	var idList string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idList = r.URL.Query().Get("id_list")
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	paper, err := testClient(ts.URL).FetchByID(context.Background(), "2301.07041")
	require.NoError(t, err)
	require.NotNil(t, paper)
	assert.Equal(t, "2301.07041", idList)
	assert.Equal(t, "2301.07041", paper.ArxivID)
}

func TestRateLimitSpacing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleFeedXML))
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	c.cfg.RateLimitDelay = 60 * time.Millisecond

	start := time.Now()
	_, err := c.FetchMetadata(context.Background(), Query{})
	require.NoError(t, err)
	_, err = c.FetchMetadata(context.Background(), Query{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond,
		"back-to-back requests must be spaced by the rate limit delay")
}

func TestRateLimitWaitRespectsContext(t *testing.T) {
	c := testClient("http://unused.invalid")
	c.cfg.RateLimitDelay = time.Hour
	c.lastRequest = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.waitRateLimit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/math/0211159v3", "math/0211159"},
		{"http://example.com/nope", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArxivID(tt.in), "input %q", tt.in)
	}
}

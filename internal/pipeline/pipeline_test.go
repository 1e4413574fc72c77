// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// fakeClient serves canned metadata and simulates downloads, tracking
// how many are in flight at once.
type fakeClient struct {
	papers   []types.PaperMetadata
	fetchErr error

	downloadDelay time.Duration
	failDownload  map[string]error
	noPath        map[string]bool

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	downloads   atomic.Int64
}

func (f *fakeClient) FetchMetadata(_ context.Context, _ arxiv.Query) ([]types.PaperMetadata, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.papers, nil
}

func (f *fakeClient) DownloadPDF(_ context.Context, paper types.PaperMetadata, _ bool) (string, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	f.downloads.Add(1)

	if f.downloadDelay > 0 {
		time.Sleep(f.downloadDelay)
	}
	if err := f.failDownload[paper.ArxivID]; err != nil {
		return "", err
	}
	if f.noPath[paper.ArxivID] {
		return "", nil
	}
	return "/tmp/" + paper.ArxivID + ".pdf", nil
}

// fakeParser returns canned content per path, or a skip/error.
type fakeParser struct {
	mu       sync.Mutex
	failPath map[string]error
	skipPath map[string]bool
	calls    int
}

func (f *fakeParser) Parse(_ context.Context, pdfPath string) (*types.ParsedContent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := f.failPath[pdfPath]; err != nil {
		return nil, err
	}
	if f.skipPath[pdfPath] {
		return nil, nil
	}
	return &types.ParsedContent{RawText: "text from " + pdfPath, Parser: "fake"}, nil
}

// fakeStorer records the batch it was handed.
type fakeStorer struct {
	mu       sync.Mutex
	papers   []types.PaperMetadata
	parsed   map[string]*types.ParsedContent
	storeErr error
	stored   int
}

func (f *fakeStorer) UpsertBatch(_ context.Context, papers []types.PaperMetadata, parsedByID map[string]*types.ParsedContent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.papers = papers
	f.parsed = parsedByID
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	f.stored = len(papers)
	return f.stored, nil
}

func makePapers(n int) []types.PaperMetadata {
	papers := make([]types.PaperMetadata, n)
	for i := range papers {
		papers[i] = types.PaperMetadata{
			ArxivID: fmt.Sprintf("2301.%05d", i+1),
			Title:   fmt.Sprintf("Paper %d", i+1),
			PDFURL:  fmt.Sprintf("https://arxiv.org/pdf/2301.%05d", i+1),
		}
	}
	return papers
}

func testPipeline(client Client, parser ContentParser, store Storer) *Pipeline {
	cfg := types.PipelineConfig{MaxConcurrentDownloads: 3, MaxConcurrentParses: 2}
	return New(client, parser, store, cfg, zerolog.Nop())
}

func TestFetchAndProcessHappyPath(t *testing.T) {
	client := &fakeClient{papers: makePapers(4)}
	parser := &fakeParser{}
	store := &fakeStorer{}

	result, err := testPipeline(client, parser, store).FetchAndProcess(context.Background(), Request{
		ProcessPDF:   true,
		StoreResults: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 4, result.Downloaded)
	assert.Equal(t, 4, result.Parsed)
	assert.Equal(t, 4, result.Stored)
	assert.Empty(t, result.Errors)
	assert.False(t, result.HasFailures())
	assert.Len(t, store.parsed, 4)
}

func TestFetchErrorAbortsRun(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("api down")}

	result, err := testPipeline(client, nil, nil).FetchAndProcess(context.Background(), Request{})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "metadata fetch failed")
	assert.Zero(t, result.Fetched)
}

func TestEmptyFetchIsNotAnError(t *testing.T) {
	client := &fakeClient{}

	result, err := testPipeline(client, nil, nil).FetchAndProcess(context.Background(), Request{})
	require.NoError(t, err)
	assert.Zero(t, result.Fetched)
	assert.Empty(t, result.Errors)
}

func TestFailedItemsDoNotAbortBatch(t *testing.T) {
	papers := makePapers(5)
	client := &fakeClient{
		papers: papers,
		failDownload: map[string]error{
			papers[1].ArxivID: errors.New("connection reset"),
		},
	}
	parser := &fakeParser{
		failPath: map[string]error{
			"/tmp/" + papers[3].ArxivID + ".pdf": errors.New("corrupt file"),
		},
	}
	store := &fakeStorer{}

	result, err := testPipeline(client, parser, store).FetchAndProcess(context.Background(), Request{
		ProcessPDF:   true,
		StoreResults: true,
	})
	require.NoError(t, err, "per-item failures stay inside the result")

	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 4, result.Downloaded)
	assert.Equal(t, 3, result.Parsed)
	assert.Equal(t, 5, result.Stored, "every fetched paper is stored, parsed or not")
	assert.Len(t, result.Errors, 2)
	assert.True(t, result.HasFailures())
	assert.Len(t, store.parsed, 3)
}

func TestDownloadConcurrencyIsBounded(t *testing.T) {
	client := &fakeClient{papers: makePapers(10), downloadDelay: 20 * time.Millisecond}
	cfg := types.PipelineConfig{MaxConcurrentDownloads: 2, MaxConcurrentParses: 1}
	p := New(client, nil, nil, cfg, zerolog.Nop())

	_, err := p.FetchAndProcess(context.Background(), Request{ProcessPDF: true})
	require.NoError(t, err)

	assert.Equal(t, int64(10), client.downloads.Load())
	assert.LessOrEqual(t, client.maxInFlight.Load(), int64(2))
}

func TestPaperWithoutPDFIsStoredAnyway(t *testing.T) {
	papers := makePapers(2)
	client := &fakeClient{papers: papers, noPath: map[string]bool{papers[0].ArxivID: true}}
	parser := &fakeParser{}
	store := &fakeStorer{}

	result, err := testPipeline(client, parser, store).FetchAndProcess(context.Background(), Request{
		ProcessPDF:   true,
		StoreResults: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 1, result.Parsed)
	assert.Equal(t, 2, result.Stored)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, parser.calls, "a paper with no PDF never reaches the parser")
}

func TestParserSkipCountsAsDownloadedOnly(t *testing.T) {
	papers := makePapers(1)
	client := &fakeClient{papers: papers}
	parser := &fakeParser{skipPath: map[string]bool{"/tmp/" + papers[0].ArxivID + ".pdf": true}}

	result, err := testPipeline(client, parser, nil).FetchAndProcess(context.Background(), Request{ProcessPDF: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Downloaded)
	assert.Zero(t, result.Parsed)
	assert.Empty(t, result.Errors, "an oversized paper is skipped, not failed")
}

func TestMetadataOnlyRunSkipsDownloads(t *testing.T) {
	client := &fakeClient{papers: makePapers(3)}
	parser := &fakeParser{}
	store := &fakeStorer{}

	result, err := testPipeline(client, parser, store).FetchAndProcess(context.Background(), Request{
		ProcessPDF:   false,
		StoreResults: true,
	})
	require.NoError(t, err)

	assert.Zero(t, client.downloads.Load(), "metadata-only run must not download PDFs")
	assert.Zero(t, result.Downloaded)
	assert.Zero(t, result.Parsed)
	assert.Zero(t, parser.calls)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Stored, "metadata still reaches the store")
}

func TestStoreFailureIsReportedNotFatal(t *testing.T) {
	client := &fakeClient{papers: makePapers(2)}
	store := &fakeStorer{storeErr: errors.New("disk full")}

	result, err := testPipeline(client, nil, store).FetchAndProcess(context.Background(), Request{StoreResults: true})
	require.NoError(t, err)

	assert.Zero(t, result.Stored)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "storing batch")
}

func TestStoreRequestedWithoutStore(t *testing.T) {
	client := &fakeClient{papers: makePapers(1)}

	result, err := testPipeline(client, nil, nil).FetchAndProcess(context.Background(), Request{StoreResults: true})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no store configured")
}

func TestRunIngestionStoresResults(t *testing.T) {
	client := &fakeClient{papers: makePapers(2)}
	parser := &fakeParser{}
	store := &fakeStorer{}

	result, err := testPipeline(client, parser, store).RunIngestion(context.Background(), "cs.CL", 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Len(t, store.papers, 2)
}

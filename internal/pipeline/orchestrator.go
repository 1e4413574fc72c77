// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

// Error is the only failure that aborts an ingestion run: the metadata
// fetch returned nothing to work on. Every later failure is recorded
// per paper in the batch result instead.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("pipeline: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Pipeline wires the arXiv client, PDF parser, and store into a batch
// ingestion flow.
type Pipeline struct {
	client Client
	parser ContentParser
	store  Storer
	cfg    types.PipelineConfig
	log    zerolog.Logger
}

// New builds a pipeline. parser and store may be nil when PDF
// processing or persistence is disabled.
func New(client Client, parser ContentParser, store Storer, cfg types.PipelineConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{client: client, parser: parser, store: store, cfg: cfg, log: log}
}

// Request describes one ingestion run.
type Request struct {
	Query         arxiv.Query
	ProcessPDF    bool
	StoreResults  bool
	ForceDownload bool
}

// FetchAndProcess runs a full batch: fetch metadata, then, when PDF
// processing is requested, download and parse each paper concurrently,
// and finally store everything in one transaction. A run without PDF
// processing fetches and stores metadata only. Per-paper failures are
// collected in the result; the returned error is non-nil only when the
// metadata fetch itself fails.
func (p *Pipeline) FetchAndProcess(ctx context.Context, req Request) (*types.BatchResult, error) {
	start := time.Now()
	result := &types.BatchResult{}

	papers, err := p.client.FetchMetadata(ctx, req.Query)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("metadata fetch failed: %v", err))
		result.Elapsed = time.Since(start)
		batchesTotal.WithLabelValues("fetch_failed").Inc()
		return result, &Error{Err: err}
	}
	result.Fetched = len(papers)
	if len(papers) == 0 {
		p.log.Info().Str("category", req.Query.Category).Msg("no papers matched the query")
		result.Elapsed = time.Since(start)
		batchesTotal.WithLabelValues("empty").Inc()
		return result, nil
	}

	// Without PDF processing the run is metadata-only: no downloads are
	// issued at all, the batch goes straight to storage.
	var outcomes []Outcome
	if req.ProcessPDF {
		outcomes = p.processBatch(ctx, papers, req)
	}

	parsedByID := make(map[string]*types.ParsedContent)
	for _, out := range outcomes {
		switch {
		case out.Err != "":
			result.Errors = append(result.Errors, out.Err)
			if out.Downloaded {
				result.Downloaded++
				itemsTotal.WithLabelValues("parse_failed").Inc()
			} else {
				itemsTotal.WithLabelValues("download_failed").Inc()
			}
		case !out.Downloaded:
			itemsTotal.WithLabelValues("no_pdf").Inc()
		case out.Content == nil:
			result.Downloaded++
			itemsTotal.WithLabelValues("skipped").Inc()
		default:
			result.Downloaded++
			result.Parsed++
			parsedByID[out.ArxivID] = out.Content
			itemsTotal.WithLabelValues("parsed").Inc()
		}
	}

	if req.StoreResults {
		if p.store == nil {
			result.Errors = append(result.Errors, "storage requested but no store configured")
		} else {
			stored, err := p.store.UpsertBatch(ctx, papers, parsedByID)
			result.Stored = stored
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("storing batch: %v", err))
			}
		}
	}

	result.Elapsed = time.Since(start)
	batchDuration.Observe(result.Elapsed.Seconds())
	batchesTotal.WithLabelValues("completed").Inc()
	p.logSummary(result)
	return result, nil
}

// processBatch runs every paper through processItem concurrently and
// waits for all of them. Outcomes keep the input order.
func (p *Pipeline) processBatch(ctx context.Context, papers []types.PaperMetadata, req Request) []Outcome {
	dlSem, parseSem := p.semaphores()
	outcomes := make([]Outcome, len(papers))

	var wg sync.WaitGroup
	for i, paper := range papers {
		wg.Add(1)
		go func(i int, paper types.PaperMetadata) {
			defer wg.Done()
			outcomes[i] = p.processItem(ctx, paper, req, dlSem, parseSem)
			logOutcome(p.log, outcomes[i])
		}(i, paper)
	}
	wg.Wait()
	return outcomes
}

func (p *Pipeline) logSummary(result *types.BatchResult) {
	ev := p.log.Info().
		Int("fetched", result.Fetched).
		Int("downloaded", result.Downloaded).
		Int("parsed", result.Parsed).
		Int("stored", result.Stored).
		Int("errors", len(result.Errors)).
		Dur("elapsed", result.Elapsed)
	ev.Msg("ingestion batch finished")

	for i, msg := range result.Errors {
		if i >= 5 {
			p.log.Warn().Int("suppressed", len(result.Errors)-5).Msg("further errors suppressed")
			break
		}
		p.log.Warn().Str("error", msg).Msg("batch error")
	}
}

// RunIngestion is the scheduled entry point: fetch the latest papers in
// a category, process PDFs when requested, and always store results.
func (p *Pipeline) RunIngestion(ctx context.Context, category string, maxResults int, processPDF bool) (*types.BatchResult, error) {
	return p.FetchAndProcess(ctx, Request{
		Query: arxiv.Query{
			Category:   category,
			MaxResults: maxResults,
		},
		ProcessPDF:   processPDF,
		StoreResults: true,
	})
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates the download-parse-store flow for batches
// of arXiv papers. Downloads and parses run under separate concurrency
// limits so a slow parse never starves the download slots.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

const (
	defaultMaxDownloads = 5
	defaultMaxParses    = 2
)

// Client fetches paper metadata and PDFs from the arXiv API.
type Client interface {
	FetchMetadata(ctx context.Context, q arxiv.Query) ([]types.PaperMetadata, error)
	DownloadPDF(ctx context.Context, paper types.PaperMetadata, force bool) (string, error)
}

// ContentParser extracts structured content from a downloaded PDF.
// A (nil, nil) return means the file was deliberately skipped.
type ContentParser interface {
	Parse(ctx context.Context, pdfPath string) (*types.ParsedContent, error)
}

// Storer persists a batch of papers and their parsed content.
type Storer interface {
	UpsertBatch(ctx context.Context, papers []types.PaperMetadata, parsedByID map[string]*types.ParsedContent) (int, error)
}

// Outcome is the per-paper result of one pass through the pipeline.
// Err carries the failure message when the item did not complete; a
// failed item never aborts the rest of the batch.
type Outcome struct {
	ArxivID    string
	Downloaded bool
	Content    *types.ParsedContent
	Err        string
}

// processItem downloads one paper's PDF and optionally parses it. The
// download slot is released before the parse slot is acquired, so the
// two stages are limited independently.
func (p *Pipeline) processItem(ctx context.Context, paper types.PaperMetadata, req Request, dlSem, parseSem *semaphore.Weighted) Outcome {
	out := Outcome{ArxivID: paper.ArxivID}

	if err := dlSem.Acquire(ctx, 1); err != nil {
		out.Err = fmt.Sprintf("acquiring download slot for %s: %v", paper.ArxivID, err)
		return out
	}
	downloadsInFlight.Inc()
	pdfPath, err := p.client.DownloadPDF(ctx, paper, req.ForceDownload)
	downloadsInFlight.Dec()
	dlSem.Release(1)

	if err != nil {
		out.Err = fmt.Sprintf("downloading %s: %v", paper.ArxivID, err)
		return out
	}
	if pdfPath == "" {
		// No PDF link in the feed. Metadata-only papers are still stored.
		return out
	}
	out.Downloaded = true

	if p.parser == nil {
		return out
	}

	if err := parseSem.Acquire(ctx, 1); err != nil {
		out.Err = fmt.Sprintf("acquiring parse slot for %s: %v", paper.ArxivID, err)
		return out
	}
	content, err := p.parser.Parse(ctx, pdfPath)
	parseSem.Release(1)

	if err != nil {
		out.Err = fmt.Sprintf("parsing %s: %v", paper.ArxivID, err)
		return out
	}
	out.Content = content
	return out
}

func (p *Pipeline) semaphores() (dl, parse *semaphore.Weighted) {
	maxDL := p.cfg.MaxConcurrentDownloads
	if maxDL <= 0 {
		maxDL = defaultMaxDownloads
	}
	maxParse := p.cfg.MaxConcurrentParses
	if maxParse <= 0 {
		maxParse = defaultMaxParses
	}
	return semaphore.NewWeighted(int64(maxDL)), semaphore.NewWeighted(int64(maxParse))
}

func logOutcome(log zerolog.Logger, out Outcome) {
	ev := log.Debug().Str("arxiv_id", out.ArxivID).Bool("downloaded", out.Downloaded).Bool("parsed", out.Content != nil)
	if out.Err != "" {
		ev = ev.Str("error", out.Err)
	}
	ev.Msg("paper processed")
}

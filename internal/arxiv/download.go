// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

const defaultRetryBaseDelay = 2 * time.Second

// DownloadPDF fetches the paper's PDF into the configured directory, one
// file per arXiv id. It returns the cached path unchanged when the file
// already exists and force is false. A paper without a PDF URL returns ""
// with a nil error; that is an absence, not a failure.
//
// Transient failures are retried with linear backoff (attempt n waits
// n * RetryBaseDelay). Downloads go through a temp file and rename, so
// exhausted retries leave no partial file behind and never disturb a
// previously cached copy; a *DownloadError is returned.
func (c *Client) DownloadPDF(ctx context.Context, paper types.PaperMetadata, force bool) (string, error) {
	if paper.PDFURL == "" {
		c.log.Debug().Str("paper", paper.ArxivID).Msg("no PDF URL, skipping download")
		return "", nil
	}

	pdfPath := filepath.Join(c.cfg.PDFDir, sanitizeID(paper.ArxivID)+".pdf")

	if !force {
		if _, err := os.Stat(pdfPath); err == nil {
			c.log.Debug().Str("paper", paper.ArxivID).Msg("PDF cached, skipping download")
			c.ensureSidecar(paper, pdfPath)
			return pdfPath, nil
		}
	}

	if err := os.MkdirAll(c.cfg.PDFDir, 0o755); err != nil {
		return "", fmt.Errorf("creating PDF directory: %w", err)
	}

	baseDelay := c.cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.waitRateLimit(ctx); err != nil {
			lastErr = err
			break
		}

		apiRequestsTotal.WithLabelValues("download").Inc()
		lastErr = c.fetchToFile(ctx, paper.PDFURL, pdfPath)
		if lastErr == nil {
			c.log.Info().Str("paper", paper.ArxivID).Str("path", pdfPath).Msg("PDF downloaded")
			if err := writeSidecar(paper, pdfPath); err != nil {
				c.log.Warn().Err(err).Str("paper", paper.ArxivID).Msg("writing metadata sidecar failed")
			}
			return pdfPath, nil
		}

		if attempt == c.cfg.MaxRetries {
			break
		}
		downloadRetriesTotal.Inc()
		c.log.Warn().
			Err(lastErr).
			Str("paper", paper.ArxivID).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("PDF download failed, retrying")

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = c.cfg.MaxRetries
		case <-time.After(time.Duration(attempt) * baseDelay):
		}
	}

	// fetchToFile writes through a temp file and renames on success, so
	// pdfPath either holds a previously cached complete PDF or nothing.
	// A failed forced refresh must leave the old copy alone.
	return "", &DownloadError{
		ArxivID:  paper.ArxivID,
		Attempts: c.cfg.MaxRetries,
		Timeout:  isTimeout(lastErr),
		Err:      lastErr,
	}
}

// fetchToFile streams url into destPath via a temporary file, renaming on
// success so a failed download never leaves a truncated PDF behind.
func (c *Client) fetchToFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeSidecar records the paper's metadata in a YAML file next to the PDF,
// so cached PDFs keep their provenance without another API call.
func writeSidecar(paper types.PaperMetadata, pdfPath string) error {
	data, err := yaml.Marshal(&paper)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(sidecarPath(pdfPath), data, 0o644)
}

// ReadSidecar loads the metadata sidecar for a downloaded PDF.
func ReadSidecar(pdfPath string) (*types.PaperMetadata, error) {
	data, err := os.ReadFile(sidecarPath(pdfPath))
	if err != nil {
		return nil, err
	}
	var paper types.PaperMetadata
	if err := yaml.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("parsing metadata sidecar: %w", err)
	}
	return &paper, nil
}

// ensureSidecar restores the metadata sidecar of a cached PDF when it is
// missing or unreadable.
func (c *Client) ensureSidecar(paper types.PaperMetadata, pdfPath string) {
	if _, err := ReadSidecar(pdfPath); err == nil {
		return
	}
	if err := writeSidecar(paper, pdfPath); err != nil {
		c.log.Warn().Err(err).Str("paper", paper.ArxivID).Msg("writing metadata sidecar failed")
	}
}

func sidecarPath(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, ".pdf") + ".yaml"
}

// sanitizeID maps an arXiv id to a safe file name: old-style ids contain
// slashes (e.g. "math/0211159").
func sanitizeID(arxivID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, arxivID)
}

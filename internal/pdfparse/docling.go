// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdfparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pdiddy/paper-ingest/internal/container"
)

const defaultDoclingImage = "docling:latest"

// DoclingEngine extracts PDF content by piping the file through a docling
// container image that emits the document as JSON. It depends on a
// container.Runtime (docker or podman) injected at construction time.
type DoclingEngine struct {
	runtime container.Runtime
	image   string
}

// NewDoclingEngine creates an engine backed by the given container runtime.
// It verifies that the image exists locally before returning. An empty
// image selects the default.
func NewDoclingEngine(rt container.Runtime, image string) (*DoclingEngine, error) {
	if image == "" {
		image = defaultDoclingImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("docling image not available in %s: %w", rt.Name(), err)
	}
	return &DoclingEngine{runtime: rt, image: image}, nil
}

// Name returns the engine identifier.
func (e *DoclingEngine) Name() string { return "docling" }

// Extract pipes the PDF through the docling container and decodes the
// resulting JSON document.
func (e *DoclingEngine) Extract(ctx context.Context, pdfPath string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := e.runtime.Run(e.image, f, &out); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", pdfPath, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("engine produced empty output for %s", pdfPath)
	}

	var doc Document
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("decoding engine output for %s: %w", pdfPath, err)
	}
	return &doc, nil
}

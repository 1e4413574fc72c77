// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdfparse validates PDF files and converts them into structured
// paper content via a pluggable extraction engine.
package pdfparse

import "context"

// Label classifies a layout element emitted by the extraction engine.
type Label string

const (
	LabelTitle         Label = "title"
	LabelSectionHeader Label = "section_header"
	LabelText          Label = "text"
)

// Element is one layout element of an extracted document, in reading order.
type Element struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
}

// Document is the structured output of an extraction engine.
type Document struct {
	Pages      int       `json:"pages"`
	Elements   []Element `json:"elements"`
	Text       string    `json:"text"`
	References []string  `json:"references,omitempty"`
}

// Engine extracts structured content from a PDF. Implementations wrap
// external tools; the parse adapter treats them as black boxes.
type Engine interface {
	// Name identifies the engine (recorded as the parser of the content).
	Name() string

	// Extract reads the PDF at pdfPath and returns its structured content.
	Extract(ctx context.Context, pdfPath string) (*Document, error)
}

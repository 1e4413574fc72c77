// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperMetadata holds the metadata for one paper as returned by the arXiv
// export API. It is immutable once fetched; the ingestion pipeline only
// reads it.
type PaperMetadata struct {
	// ArxivID is the stable arXiv identifier with any version suffix
	// stripped (e.g. "2301.07041").
	ArxivID string `json:"arxiv_id" yaml:"arxiv_id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in feed order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Categories lists the arXiv category terms (e.g. "cs.AI").
	Categories []string `json:"categories" yaml:"categories"`

	// Published is the submission date reported by the feed.
	Published time.Time `json:"published_date" yaml:"published_date"`

	// PDFURL is the HTTPS link to the paper's PDF, empty when the entry
	// offers none.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`
}

// Section is one heading-delimited chunk of a parsed paper.
type Section struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// ParsedContent is the structured output of the PDF parse stage.
type ParsedContent struct {
	// Sections holds the heading-segmented body text in document order.
	Sections []Section `json:"sections" yaml:"sections"`

	// RawText is the full extracted text of the document.
	RawText string `json:"raw_text" yaml:"raw_text"`

	// References lists the bibliography entries, when the engine emits them.
	References []string `json:"references,omitempty" yaml:"references,omitempty"`

	// Parser identifies the extraction engine that produced the content.
	Parser string `json:"parser" yaml:"parser"`

	// ParserMetadata carries free-form notes from the parse stage.
	ParserMetadata map[string]string `json:"parser_metadata,omitempty" yaml:"parser_metadata,omitempty"`
}

// ParsedPaper pairs a paper's arXiv metadata with its parsed PDF content.
// Content is nil when the PDF was not parsed.
type ParsedPaper struct {
	Metadata PaperMetadata  `json:"metadata" yaml:"metadata"`
	Content  *ParsedContent `json:"content,omitempty" yaml:"content,omitempty"`
}

// BatchResult summarizes one ingestion run. It is derived from the per-item
// outcomes plus the storage commit; partial failures appear in Errors, they
// do not abort the batch.
type BatchResult struct {
	Fetched    int           `json:"fetched"`
	Downloaded int           `json:"downloaded"`
	Parsed     int           `json:"parsed"`
	Stored     int           `json:"stored"`
	Errors     []string      `json:"errors,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// HasFailures reports whether any item in the batch failed.
func (r BatchResult) HasFailures() bool {
	return len(r.Errors) > 0
}

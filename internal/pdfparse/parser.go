// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdfparse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-ingest/internal/logging"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

const (
	defaultMaxPages      = 30
	defaultMaxFileSizeMB = 20

	pdfSignature = "%PDF-"
)

// Parser validates PDFs and segments the engine's output into sections.
type Parser struct {
	engine   Engine
	maxPages int
	maxBytes int64
	log      zerolog.Logger
}

// NewParser creates a parser around the given engine, filling in defaults
// for unset limits.
func NewParser(engine Engine, cfg types.ParserConfig) *Parser {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	maxMB := cfg.MaxFileSizeMB
	if maxMB <= 0 {
		maxMB = defaultMaxFileSizeMB
	}
	return &Parser{
		engine:   engine,
		maxPages: maxPages,
		maxBytes: int64(maxMB) * 1024 * 1024,
		log:      logging.ForComponent("pdfparse"),
	}
}

// Validate rejects empty files, files over the byte budget, files without
// the PDF signature, and documents over the page budget. All checks run
// before any engine work is spent. Failures are *ValidationError values.
func (p *Parser) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Size() == 0 {
		return &ValidationError{Path: path, Reason: ReasonEmpty, Detail: "file is empty"}
	}
	if info.Size() > p.maxBytes {
		return &ValidationError{
			Path:   path,
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", info.Size(), p.maxBytes),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if !bytes.HasPrefix(data, []byte(pdfSignature)) {
		return &ValidationError{Path: path, Reason: ReasonBadSignature, Detail: "missing %PDF- signature"}
	}

	if pages := countPages(data); pages > p.maxPages {
		return &ValidationError{
			Path:   path,
			Reason: ReasonTooManyPages,
			Detail: fmt.Sprintf("%d pages exceeds limit of %d", pages, p.maxPages),
		}
	}
	return nil
}

// Parse validates the PDF and extracts its content. A file rejected purely
// on size or page budget returns (nil, nil): a skip, not a failure. Other
// validation failures return the *ValidationError; engine failures return
// a *ParseError with a cause classification.
func (p *Parser) Parse(ctx context.Context, path string) (*types.ParsedContent, error) {
	if err := p.Validate(path); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && verr.SoftSkip() {
			p.log.Warn().Str("path", path).Str("reason", string(verr.Reason)).Msg("skipping PDF over budget")
			return nil, nil
		}
		return nil, err
	}

	doc, err := p.engine.Extract(ctx, path)
	if err != nil {
		return nil, &ParseError{Path: path, Cause: classifyCause(err), Err: err}
	}
	if doc == nil || (len(doc.Elements) == 0 && doc.Text == "") {
		return nil, &ParseError{Path: path, Cause: CauseOther, Err: errors.New("engine returned no content")}
	}

	content := segment(doc)
	content.Parser = p.engine.Name()
	content.ParserMetadata = map[string]string{
		"source": p.engine.Name(),
		"note":   "content extracted from PDF; paper metadata comes from the arXiv API",
	}

	p.log.Debug().Str("path", path).Int("sections", len(content.Sections)).Msg("PDF parsed")
	return content, nil
}

// segment splits the document's elements into sections. A heading-level
// element starts a new section; the accumulated body text is flushed to
// the prior section on each heading and once more at end of document.
func segment(doc *Document) *types.ParsedContent {
	var sections []types.Section
	title := "content"
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			sections = append(sections, types.Section{Title: title, Content: text})
		}
		body.Reset()
	}

	for _, el := range doc.Elements {
		switch el.Label {
		case LabelTitle, LabelSectionHeader:
			flush()
			title = strings.TrimSpace(el.Text)
		default:
			if el.Text != "" {
				body.WriteString(el.Text)
				body.WriteByte('\n')
			}
		}
	}
	flush()

	return &types.ParsedContent{
		Sections:   sections,
		RawText:    doc.Text,
		References: doc.References,
	}
}

// countPages counts page object markers in the raw PDF bytes. arXiv PDFs
// carry standard /Type /Page objects, which keeps the page budget check
// cheap enough to run before the engine touches the file.
func countPages(data []byte) int {
	n := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	n += bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	return n
}

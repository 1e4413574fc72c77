// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists papers and their parsed content in SQLite.
// Papers are keyed by arXiv ID; re-ingesting the same paper updates the
// existing row instead of creating a duplicate.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

// ErrNotFound is returned when no paper matches the requested arXiv ID.
var ErrNotFound = errors.New("paper not found")

const schema = `
CREATE TABLE IF NOT EXISTS papers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	arxiv_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	authors TEXT NOT NULL DEFAULT '[]',
	abstract TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '[]',
	published_date TEXT NOT NULL DEFAULT '',
	pdf_url TEXT NOT NULL DEFAULT '',
	raw_text TEXT,
	sections TEXT,
	refs TEXT,
	parser TEXT,
	parser_metadata TEXT,
	pdf_processed INTEGER NOT NULL DEFAULT 0,
	pdf_processed_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_papers_published ON papers(published_date);
`

// Paper is a stored row, parsed content included when present.
type Paper struct {
	ID int64 `json:"id"`
	types.ParsedPaper
	PDFProcessed   bool       `json:"pdf_processed"`
	PDFProcessedAt *time.Time `json:"pdf_processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file and schema if needed.
func Open(cfg types.StorageConfig, log zerolog.Logger) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("store: database path is empty")
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Debug().Str("path", cfg.DBPath).Msg("database opened")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertBatch stores a batch of papers in a single transaction. Papers
// present in parsedByID get their content columns written; papers
// without content keep any previously stored content on update. The
// whole batch commits or rolls back together, so a commit failure
// stores nothing.
func (s *Store) UpsertBatch(ctx context.Context, papers []types.PaperMetadata, parsedByID map[string]*types.ParsedContent) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for _, paper := range papers {
		if err := s.upsertTx(ctx, tx, paper, parsedByID[paper.ArxivID]); err != nil {
			return 0, fmt.Errorf("upserting %s: %w", paper.ArxivID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}

	s.log.Info().Int("papers", count).Int("with_content", len(parsedByID)).Msg("batch stored")
	return count, nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, paper types.PaperMetadata, content *types.ParsedContent) error {
	if paper.ArxivID == "" {
		return errors.New("missing arxiv id")
	}

	authors, err := json.Marshal(paper.Authors)
	if err != nil {
		return fmt.Errorf("encoding authors: %w", err)
	}
	categories, err := json.Marshal(paper.Categories)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}
	published := ""
	if !paper.Published.IsZero() {
		published = paper.Published.UTC().Format(time.RFC3339)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM papers WHERE arxiv_id = ?`, paper.ArxivID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.insertTx(ctx, tx, paper, content, string(authors), string(categories), published, now)
	case err != nil:
		return err
	}

	if content == nil {
		// Metadata refresh only. Content columns stay untouched so a
		// re-fetch without PDF processing never wipes parsed text.
		_, err = tx.ExecContext(ctx, `
			UPDATE papers SET title = ?, authors = ?, abstract = ?, categories = ?,
				published_date = ?, pdf_url = ?, updated_at = ?
			WHERE id = ?`,
			paper.Title, string(authors), paper.Abstract, string(categories),
			published, paper.PDFURL, now, id)
		return err
	}

	sections, refs, parserMeta, err := encodeContent(content)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE papers SET title = ?, authors = ?, abstract = ?, categories = ?,
			published_date = ?, pdf_url = ?,
			raw_text = ?, sections = ?, refs = ?, parser = ?, parser_metadata = ?,
			pdf_processed = 1, pdf_processed_at = ?, updated_at = ?
		WHERE id = ?`,
		paper.Title, string(authors), paper.Abstract, string(categories),
		published, paper.PDFURL,
		content.RawText, sections, refs, content.Parser, parserMeta,
		now, now, id)
	return err
}

// noContentMarker records in parser_metadata that a row was stored without
// parsed PDF content, distinguishing "never processed" from an empty parse.
const noContentMarker = `{"note":"PDF not processed"}`

func (s *Store) insertTx(ctx context.Context, tx *sql.Tx, paper types.PaperMetadata, content *types.ParsedContent, authors, categories, published, now string) error {
	if content == nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO papers (arxiv_id, title, authors, abstract, categories,
				published_date, pdf_url, parser_metadata, pdf_processed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			paper.ArxivID, paper.Title, authors, paper.Abstract, categories,
			published, paper.PDFURL, noContentMarker, now, now)
		return err
	}

	sections, refs, parserMeta, err := encodeContent(content)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO papers (arxiv_id, title, authors, abstract, categories,
			published_date, pdf_url, raw_text, sections, refs, parser,
			parser_metadata, pdf_processed, pdf_processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		paper.ArxivID, paper.Title, authors, paper.Abstract, categories,
		published, paper.PDFURL, content.RawText, sections, refs, content.Parser,
		parserMeta, now, now, now)
	return err
}

func encodeContent(content *types.ParsedContent) (sections, refs, parserMeta string, err error) {
	b, err := json.Marshal(content.Sections)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding sections: %w", err)
	}
	sections = string(b)

	b, err = json.Marshal(content.References)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding references: %w", err)
	}
	refs = string(b)

	b, err = json.Marshal(content.ParserMetadata)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding parser metadata: %w", err)
	}
	return sections, refs, string(b), nil
}

// GetByArxivID returns a stored paper or ErrNotFound.
func (s *Store) GetByArxivID(ctx context.Context, arxivID string) (*Paper, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, arxiv_id, title, authors, abstract, categories,
			published_date, pdf_url, raw_text, sections, refs, parser,
			parser_metadata, pdf_processed, pdf_processed_at, created_at, updated_at
		FROM papers WHERE arxiv_id = ?`, arxivID)

	paper, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, arxivID)
	}
	return paper, err
}

// List returns stored papers, newest published first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Paper, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, arxiv_id, title, authors, abstract, categories,
			published_date, pdf_url, raw_text, sections, refs, parser,
			parser_metadata, pdf_processed, pdf_processed_at, created_at, updated_at
		FROM papers ORDER BY published_date DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var papers []*Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}
	return papers, rows.Err()
}

// Count returns the number of stored papers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*Paper, error) {
	var (
		paper       Paper
		authors     string
		categories  string
		published   string
		rawText     sql.NullString
		sections    sql.NullString
		refs        sql.NullString
		parser      sql.NullString
		parserMeta  sql.NullString
		processedAt sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&paper.ID, &paper.Metadata.ArxivID, &paper.Metadata.Title,
		&authors, &paper.Metadata.Abstract, &categories, &published,
		&paper.Metadata.PDFURL, &rawText, &sections, &refs, &parser,
		&parserMeta, &paper.PDFProcessed, &processedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authors), &paper.Metadata.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors: %w", err)
	}
	if err := json.Unmarshal([]byte(categories), &paper.Metadata.Categories); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	if published != "" {
		t, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return nil, fmt.Errorf("decoding published date: %w", err)
		}
		paper.Metadata.Published = t
	}

	if parser.Valid || rawText.Valid {
		content := &types.ParsedContent{RawText: rawText.String, Parser: parser.String}
		if sections.Valid && sections.String != "" {
			if err := json.Unmarshal([]byte(sections.String), &content.Sections); err != nil {
				return nil, fmt.Errorf("decoding sections: %w", err)
			}
		}
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &content.References); err != nil {
				return nil, fmt.Errorf("decoding references: %w", err)
			}
		}
		if parserMeta.Valid && parserMeta.String != "" {
			if err := json.Unmarshal([]byte(parserMeta.String), &content.ParserMetadata); err != nil {
				return nil, fmt.Errorf("decoding parser metadata: %w", err)
			}
		}
		paper.Content = content
	}

	if processedAt.Valid && processedAt.String != "" {
		t, err := time.Parse(time.RFC3339, processedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decoding processed timestamp: %w", err)
		}
		paper.PDFProcessedAt = &t
	}
	if paper.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("decoding created timestamp: %w", err)
	}
	if paper.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("decoding updated timestamp: %w", err)
	}
	return &paper, nil
}

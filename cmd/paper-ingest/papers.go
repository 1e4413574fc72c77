package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/internal/logging"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

var papersCmd = &cobra.Command{
	Use:   "papers [arxiv-id]",
	Short: "List stored papers, or show one by arXiv ID",
	Long: `Papers lists the stored papers, or shows one in detail. An id that is
not in the database is looked up on arXiv directly, so the command also
answers for papers that were never ingested.`,
	RunE: runPapers,
}

func init() {
	papersCmd.Flags().String("db", "", "database path (config: storage.db_path)")
	papersCmd.Flags().Int("limit", 20, "maximum papers to list")
	papersCmd.Flags().Int("offset", 0, "list offset")

	rootCmd.AddCommand(papersCmd)
}

func runPapers(cmd *cobra.Command, args []string) error {
	dbPath := flagOrConfigString(cmd, "db", "storage.db_path")
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	s, err := store.Open(types.StorageConfig{DBPath: dbPath}, logging.ForComponent("store"))
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 1 {
		client := arxiv.NewClient(types.ArxivConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   defaultTimeout,
				UserAgent: defaultUserAgent,
			},
			RateLimitDelay: defaultRateLimitDelay,
		})
		paper, err := lookupPaper(cmd.Context(), s, client, args[0])
		if err != nil {
			return err
		}
		printPaper(paper)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	papers, err := s.List(cmd.Context(), limit, offset)
	if err != nil {
		return err
	}
	if len(papers) == 0 {
		fmt.Println("No papers stored.")
		return nil
	}
	for _, paper := range papers {
		processed := " "
		if paper.PDFProcessed {
			processed = "*"
		}
		fmt.Printf("%s %-16s %s\n", processed, paper.Metadata.ArxivID, paper.Metadata.Title)
	}
	return nil
}

// metadataFetcher looks up a single paper's metadata by arXiv id.
type metadataFetcher interface {
	FetchByID(ctx context.Context, arxivID string) (*types.PaperMetadata, error)
}

// lookupPaper returns the stored paper, falling back to a live arXiv
// metadata fetch when the id is not in the database.
func lookupPaper(ctx context.Context, s *store.Store, client metadataFetcher, arxivID string) (*store.Paper, error) {
	paper, err := s.GetByArxivID(ctx, arxivID)
	if err == nil {
		return paper, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	meta, err := client.FetchByID(ctx, arxivID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("paper %s not found on arXiv", arxivID)
	}
	return &store.Paper{ParsedPaper: types.ParsedPaper{Metadata: *meta}}, nil
}

func printPaper(paper *store.Paper) {
	fmt.Printf("arXiv ID:   %s\n", paper.Metadata.ArxivID)
	fmt.Printf("Title:      %s\n", paper.Metadata.Title)
	fmt.Printf("Authors:    %s\n", strings.Join(paper.Metadata.Authors, ", "))
	fmt.Printf("Categories: %s\n", strings.Join(paper.Metadata.Categories, ", "))
	if !paper.Metadata.Published.IsZero() {
		fmt.Printf("Published:  %s\n", paper.Metadata.Published.Format("2006-01-02"))
	}
	fmt.Printf("PDF URL:    %s\n", paper.Metadata.PDFURL)
	if paper.Content != nil {
		fmt.Printf("Parsed:     %d sections via %s\n", len(paper.Content.Sections), paper.Content.Parser)
	}
	if paper.Metadata.Abstract != "" {
		fmt.Printf("\n%s\n", paper.Metadata.Abstract)
	}
}

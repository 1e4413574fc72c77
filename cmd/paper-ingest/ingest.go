package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/internal/container"
	"github.com/pdiddy/paper-ingest/internal/logging"
	"github.com/pdiddy/paper-ingest/internal/pdfparse"
	"github.com/pdiddy/paper-ingest/internal/pipeline"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultRateLimitDelay = 3 * time.Second
	defaultUserAgent      = "paper-ingest/0.1"
	defaultDBPath         = "data/papers.db"
	defaultPDFDir         = "data/pdfs"
	queryDateFormat       = "2006-01-02"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, download, parse, and store a batch of papers",
	Long: `Ingest queries the arXiv API for papers in a category, downloads their
PDFs, optionally extracts structured text, and stores everything in the
database. Failed papers are reported at the end without aborting the batch.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("category", "", "arXiv category, e.g. cs.CL (config: category)")
	ingestCmd.Flags().String("from", "", "earliest submission date, YYYY-MM-DD")
	ingestCmd.Flags().String("to", "", "latest submission date, YYYY-MM-DD")
	ingestCmd.Flags().Int("max-results", 0, "maximum papers to fetch (default 100)")
	ingestCmd.Flags().Bool("process-pdf", true, "extract structured text from downloaded PDFs")
	ingestCmd.Flags().Bool("store", true, "persist results to the database")
	ingestCmd.Flags().Bool("force", false, "re-download PDFs that are already cached")
	ingestCmd.Flags().String("db", "", "database path (config: storage.db_path)")
	ingestCmd.Flags().String("pdf-dir", "", "PDF download directory (config: arxiv.pdf_dir)")
	ingestCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	ingestCmd.Flags().Duration("rate-limit-delay", 0, "minimum gap between arXiv requests (default 3s)")
	ingestCmd.Flags().Int("downloads", 0, "concurrent PDF downloads (default 5)")
	ingestCmd.Flags().Int("parses", 0, "concurrent PDF parses (default 2)")
	ingestCmd.Flags().String("engine-image", "", "container image for the PDF engine (config: parser.engine_image)")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	category := flagOrConfigString(cmd, "category", "category")
	if category == "" {
		return fmt.Errorf("provide an arXiv category via --category or the config file")
	}

	var from, to time.Time
	var err error
	if s, _ := cmd.Flags().GetString("from"); s != "" {
		if from, err = time.Parse(queryDateFormat, s); err != nil {
			return fmt.Errorf("invalid --from date %q: %w", s, err)
		}
	}
	if s, _ := cmd.Flags().GetString("to"); s != "" {
		if to, err = time.Parse(queryDateFormat, s); err != nil {
			return fmt.Errorf("invalid --to date %q: %w", s, err)
		}
	}

	processPDF, _ := cmd.Flags().GetBool("process-pdf")
	storeResults, _ := cmd.Flags().GetBool("store")
	force, _ := cmd.Flags().GetBool("force")
	maxResults, _ := cmd.Flags().GetInt("max-results")

	p, _, closeStore, err := buildPipeline(cmd, processPDF, storeResults)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := p.FetchAndProcess(cmd.Context(), pipeline.Request{
		Query: arxiv.Query{
			Category:   category,
			From:       from,
			To:         to,
			MaxResults: maxResults,
		},
		ProcessPDF:    processPDF,
		StoreResults:  storeResults,
		ForceDownload: force,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %d, downloaded %d, parsed %d, stored %d papers in %s\n",
		result.Fetched, result.Downloaded, result.Parsed, result.Stored, result.Elapsed.Round(time.Millisecond))
	if result.HasFailures() {
		return fmt.Errorf("%d paper(s) failed during ingestion", len(result.Errors))
	}
	return nil
}

// buildPipeline assembles the client, parser, and store from flags and
// config. The returned closer shuts down the store; it is a no-op when
// no store was opened. Undefined flags fall back to config defaults, so
// commands only declare the flags they expose.
func buildPipeline(cmd *cobra.Command, processPDF, storeResults bool) (*pipeline.Pipeline, *store.Store, func(), error) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	rateDelay, _ := cmd.Flags().GetDuration("rate-limit-delay")
	if rateDelay == 0 {
		if v := viper.GetDuration("arxiv.rate_limit_delay"); v > 0 {
			rateDelay = v
		} else {
			rateDelay = defaultRateLimitDelay
		}
	}
	pdfDir := flagOrConfigString(cmd, "pdf-dir", "arxiv.pdf_dir")
	if pdfDir == "" {
		pdfDir = defaultPDFDir
	}

	client := arxiv.NewClient(types.ArxivConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		Category:       flagOrConfigString(cmd, "category", "category"),
		RateLimitDelay: rateDelay,
		PDFDir:         pdfDir,
	})

	var parser pipeline.ContentParser
	if processPDF {
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("PDF processing requires a container runtime: %w", err)
		}
		engine, err := pdfparse.NewDoclingEngine(rt, flagOrConfigString(cmd, "engine-image", "parser.engine_image"))
		if err != nil {
			return nil, nil, nil, err
		}
		parser = pdfparse.NewParser(engine, types.ParserConfig{
			MaxPages:      viper.GetInt("parser.max_pages"),
			MaxFileSizeMB: viper.GetInt("parser.max_file_size_mb"),
		})
	}

	var s *store.Store
	var st pipeline.Storer
	closeStore := func() {}
	if storeResults {
		dbPath := flagOrConfigString(cmd, "db", "storage.db_path")
		if dbPath == "" {
			dbPath = defaultDBPath
		}
		var err error
		s, err = store.Open(types.StorageConfig{DBPath: dbPath}, logging.ForComponent("store"))
		if err != nil {
			return nil, nil, nil, err
		}
		st = s
		closeStore = func() { s.Close() }
	}

	downloads, _ := cmd.Flags().GetInt("downloads")
	parses, _ := cmd.Flags().GetInt("parses")
	p := pipeline.New(client, parser, st, types.PipelineConfig{
		MaxConcurrentDownloads: downloads,
		MaxConcurrentParses:    parses,
	}, logging.ForComponent("pipeline"))
	return p, s, closeStore, nil
}

// flagOrConfigString prefers an explicitly set flag over the viper key.
func flagOrConfigString(cmd *cobra.Command, flag, key string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	if v := viper.GetString(key); v != "" {
		return v
	}
	v, _ := cmd.Flags().GetString(flag)
	return v
}

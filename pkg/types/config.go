package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-ingest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ArxivConfig holds settings for the arXiv export API client.
type ArxivConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the export API query endpoint. Defaults to the public
	// arXiv endpoint; tests point it at an httptest server.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Category is the default category filter for metadata queries
	// (e.g. "cs.AI").
	Category string `json:"category" yaml:"category"`

	// MaxResults is the default page size for metadata queries (default 100).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// RateLimitDelay is the minimum spacing between consecutive requests
	// to arXiv, shared across metadata fetches and PDF downloads (default 3s).
	RateLimitDelay time.Duration `json:"rate_limit_delay" yaml:"rate_limit_delay"`

	// MaxRetries is the number of attempts for a PDF download (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the base delay for the linear download backoff:
	// attempt n sleeps n * RetryBaseDelay (default 2s).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`

	// PDFDir is the directory PDFs are downloaded into, one file per
	// arXiv id.
	PDFDir string `json:"pdf_dir" yaml:"pdf_dir"`
}

// ParserConfig holds settings for the PDF parse stage.
type ParserConfig struct {
	// MaxPages rejects documents with more pages before parsing (default 30).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// MaxFileSizeMB rejects larger files before parsing (default 20).
	MaxFileSizeMB int `json:"max_file_size_mb" yaml:"max_file_size_mb"`

	// EngineImage is the container image of the extraction engine.
	EngineImage string `json:"engine_image" yaml:"engine_image"`
}

// PipelineConfig holds the concurrency limits for the ingestion pipeline.
type PipelineConfig struct {
	// MaxConcurrentDownloads bounds in-flight PDF downloads (default 5).
	MaxConcurrentDownloads int `json:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`

	// MaxConcurrentParses bounds in-flight PDF parses. Parsing is
	// compute-bound, so this is typically smaller (default 2).
	MaxConcurrentParses int `json:"max_concurrent_parses" yaml:"max_concurrent_parses"`
}

// StorageConfig holds settings for the SQLite paper store.
type StorageConfig struct {
	// DBPath is the path of the SQLite database file.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// Config groups all stage configurations for the ingestion service.
type Config struct {
	Arxiv    ArxivConfig    `json:"arxiv" yaml:"arxiv"`
	Parser   ParserConfig   `json:"parser" yaml:"parser"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
}

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-ingest/internal/arxiv"
	"github.com/pdiddy/paper-ingest/internal/logging"
	"github.com/pdiddy/paper-ingest/internal/pipeline"
	"github.com/pdiddy/paper-ingest/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with optional scheduled ingestion",
	Long: `Serve exposes ingestion and paper lookup over HTTP, plus Prometheus
metrics. With --schedule, a cron expression triggers recurring ingestion
of the configured category.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("category", "", "default arXiv category for scheduled runs (config: category)")
	serveCmd.Flags().String("schedule", "", `cron expression for recurring ingestion, e.g. "0 6 * * *"`)
	serveCmd.Flags().Int("max-results", 0, "maximum papers per scheduled run")
	serveCmd.Flags().Bool("process-pdf", true, "extract structured text from downloaded PDFs")
	serveCmd.Flags().String("db", "", "database path (config: storage.db_path)")
	serveCmd.Flags().String("pdf-dir", "", "PDF download directory (config: arxiv.pdf_dir)")
	serveCmd.Flags().String("engine-image", "", "container image for the PDF engine (config: parser.engine_image)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	processPDF, _ := cmd.Flags().GetBool("process-pdf")

	p, st, closeStore, err := buildPipeline(cmd, processPDF, true)
	if err != nil {
		return err
	}
	defer closeStore()

	log := logging.ForComponent("serve")

	if schedule, _ := cmd.Flags().GetString("schedule"); schedule != "" {
		category := flagOrConfigString(cmd, "category", "category")
		if category == "" {
			return fmt.Errorf("--schedule requires a category via --category or the config file")
		}
		maxResults, _ := cmd.Flags().GetInt("max-results")

		c := cron.New()
		_, err := c.AddFunc(schedule, func() {
			result, err := p.RunIngestion(cmd.Context(), category, maxResults, processPDF)
			if err != nil {
				log.Error().Err(err).Msg("scheduled ingestion failed")
				return
			}
			log.Info().Int("stored", result.Stored).Int("errors", len(result.Errors)).Msg("scheduled ingestion finished")
		})
		if err != nil {
			return fmt.Errorf("invalid --schedule expression %q: %w", schedule, err)
		}
		c.Start()
		defer c.Stop()
		log.Info().Str("schedule", schedule).Str("category", category).Msg("scheduled ingestion enabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", healthzHandler(st))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/ingest", ingestHandler(p, processPDF))
	router.GET("/papers", listPapersHandler(st))
	router.GET("/papers/:arxiv_id", getPaperHandler(st))

	addr, _ := cmd.Flags().GetString("addr")
	if !cmd.Flags().Changed("addr") {
		if v := viper.GetString("serve.addr"); v != "" {
			addr = v
		}
	}
	log.Info().Str("addr", addr).Msg("listening")
	return router.Run(addr)
}

// healthzHandler reports liveness plus the stored paper count, which
// doubles as a database reachability check.
func healthzHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := st.Count(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "papers": n})
	}
}

type ingestRequest struct {
	Category   string `json:"category" binding:"required"`
	MaxResults int    `json:"max_results"`
	ProcessPDF *bool  `json:"process_pdf"`
}

func ingestHandler(p *pipeline.Pipeline, defaultProcessPDF bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		processPDF := defaultProcessPDF
		if req.ProcessPDF != nil {
			processPDF = *req.ProcessPDF
		}

		result, err := p.FetchAndProcess(c.Request.Context(), pipeline.Request{
			Query: arxiv.Query{
				Category:   req.Category,
				MaxResults: req.MaxResults,
			},
			ProcessPDF:   processPDF,
			StoreResults: true,
		})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listPapersHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		papers, err := st.List(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"papers": papers, "count": len(papers)})
	}
}

func getPaperHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		paper, err := st.GetByArxivID(c.Request.Context(), c.Param("arxiv_id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, paper)
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

func serveRouter(st *store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", healthzHandler(st))
	router.GET("/papers", listPapersHandler(st))
	router.GET("/papers/:arxiv_id", getPaperHandler(st))
	return router
}

func TestHealthzReportsPaperCount(t *testing.T) {
	s := openCmdStore(t)
	_, err := s.UpsertBatch(context.Background(), []types.PaperMetadata{
		{ArxivID: "2301.00001", Title: "One"},
		{ArxivID: "2301.00002", Title: "Two"},
	}, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	serveRouter(s).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["papers"])
}

func TestGetPaperHandlerNotFound(t *testing.T) {
	s := openCmdStore(t)

	w := httptest.NewRecorder()
	serveRouter(s).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/papers/9999.99999", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPapersHandler(t *testing.T) {
	s := openCmdStore(t)
	_, err := s.UpsertBatch(context.Background(), []types.PaperMetadata{
		{ArxivID: "2301.00001", Title: "One"},
	}, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	serveRouter(s).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/papers?limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count  int `json:"count"`
		Papers []struct {
			Metadata types.PaperMetadata `json:"metadata"`
		} `json:"papers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "2301.00001", body.Papers[0].Metadata.ArxivID)
}

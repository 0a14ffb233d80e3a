package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/internal/config"
)

func TestAdminRouter(t *testing.T) {
	cfg := config.Default()
	hub := NewProgressHub(quiet)
	defer hub.Close()
	router := NewAdminRouter(cfg, hub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, cfg.Analysis.ReservoirSize, got.Analysis.ReservoirSize)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/subscribers/orders.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"clients":0}`, w.Body.String())
}

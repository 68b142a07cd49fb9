package app_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/observability"
	_ "github.com/ledgerline/ledgerline/internal/testing/guard"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := app.NewRouter(app.RouterParams{
		Logger:  slog.Default(),
		Config:  &app.Config{AppEnv: "test"},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ledgerline_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterSkipsUnconfiguredDomains(t *testing.T) {
	router := app.NewRouter(app.RouterParams{
		Logger: slog.Default(),
		Config: &app.Config{AppEnv: "test"},
	})

	for _, path := range []string{"/ledger/moves", "/transfers", "/reports/balance-sheet"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/db"
	"github.com/diewo77/go-quotes/internal/logging"
)

func setupApp(t *testing.T) (*App, *observer.ObservedLogs) {
	t.Helper()
	cfg := config.FromViper(config.New())
	cfg.Database.Path = "file:e2e_" + t.Name() + "?mode=memory&cache=shared"

	core, logs := observer.New(zap.InfoLevel)
	log := logging.FromZap(zap.New(core))
	conn, err := db.Open(cfg.Database, log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn, cfg, log))
	return NewApp(conn, cfg, log), logs
}

func serveApp(app http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)
	return rr
}

func TestAppQuoteFlowE2E(t *testing.T) {
	app, _ := setupApp(t)

	rr := serveApp(app, http.MethodPost, "/clients", `{"company":"Acme Corp","contact_name":"Jean Dupont"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serveApp(app, http.MethodPost, "/quotes", `{"client_id":1,"items":[{"description":"Design","quantity":3,"unit_price":"10.005","vat_rate":20}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, `"reference":"`)
	assert.Contains(t, body, `ACC001"`)
	assert.Contains(t, body, `"total_ttc":"36.02"`)

	rr = serveApp(app, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"quotes":1`)

	rr = serveApp(app, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	rr = serveApp(app, http.MethodDelete, "/quotes/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAppHealth(t *testing.T) {
	app, _ := setupApp(t)
	rr := serveApp(app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = serveApp(app, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestLoggingAssignsID(t *testing.T) {
	app, logs := setupApp(t)

	rr := serveApp(app, http.MethodGet, "/health", "")
	id := rr.Header().Get(requestIDHeader)
	assert.Len(t, id, 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	last := entries[1].ContextMap()
	assert.Equal(t, "abc-123", last["request_id"])
	assert.Equal(t, "/health", last["path"])
	assert.EqualValues(t, http.StatusOK, last["status"])
}

func TestRecoverMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := logging.FromZap(zap.New(core))
	h := withRequestLogging(log, withRecover(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
	panics := logs.FilterMessage("panic recovered").All()
	require.Len(t, panics, 1)
	assert.NotEmpty(t, panics[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusInternalServerError, logs.FilterMessage("request").All()[0].ContextMap()["status"])
}

func TestRootCommandLayout(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "quotes", root.Use)
	assert.NotNil(t, root.RunE)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--log-level", "error"})
	require.NoError(t, root.Execute())

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	for _, table := range []string{"clients", "quotes", "quote_items"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestMigrateCommandMissingConfigFile(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "quotes.db"))
	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	root.SetErr(&strings.Builder{})
	assert.Error(t, root.Execute())
}

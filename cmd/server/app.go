package main

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/handlers"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/services"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux     *http.ServeMux
	handler http.Handler
	log     logging.Logger

	health  *handlers.HealthHandler
	clients *handlers.ClientHandler
	quotes  *handlers.QuoteHandler
}

// NewApp creates the application with all routes configured.
func NewApp(conn *gorm.DB, cfg *config.Config, log logging.Logger) *App {
	app := &App{
		mux:     http.NewServeMux(),
		log:     log,
		health:  handlers.NewHealthHandler(conn, log),
		clients: handlers.NewClientHandler(services.NewClientService(conn, log), log),
		quotes:  handlers.NewQuoteHandler(services.NewQuoteService(conn, cfg.Quotes, log), log),
	}
	app.setupRoutes()
	app.handler = withRequestLogging(log, withRecover(log, app.mux))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	a.mux.HandleFunc("GET /health", a.health.Health)
	a.mux.HandleFunc("GET /healthz", a.health.Ready)
	a.mux.HandleFunc("GET /dashboard", a.quotes.Dashboard)

	ch := a.clients
	a.mux.HandleFunc("GET /clients", ch.List)
	a.mux.HandleFunc("POST /clients", ch.Create)
	a.mux.HandleFunc("GET /clients/{id}", ch.View)
	a.mux.HandleFunc("POST /clients/{id}", ch.Update)
	a.mux.HandleFunc("POST /clients/{id}/delete", ch.Delete)

	qh := a.quotes
	a.mux.HandleFunc("GET /quotes", qh.List)
	a.mux.HandleFunc("POST /quotes", qh.Create)
	a.mux.HandleFunc("POST /quotes/preview", qh.Preview)
	a.mux.HandleFunc("GET /quotes/{id}", qh.View)
	a.mux.HandleFunc("POST /quotes/{id}", qh.Update)
	a.mux.HandleFunc("POST /quotes/{id}/status", qh.SetStatus)
	a.mux.HandleFunc("POST /quotes/{id}/lock", qh.Lock)
	a.mux.HandleFunc("POST /quotes/{id}/delete", qh.Delete)
}

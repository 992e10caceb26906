// Package handlers exposes clients and quotes over HTTP. Every endpoint
// accepts JSON or classic form posts; form posts are answered with a
// redirect, everything else with JSON.
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/diewo77/go-quotes/httpx"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/services"
	"github.com/diewo77/go-quotes/internal/store"
	"github.com/diewo77/go-quotes/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// pathID reads the {id} path value.
func pathID(r *http.Request) (uint, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// page reads ?limit= and ?page= the same way for every list.
func page(r *http.Request) store.Page {
	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	return store.Page{Limit: limit, Offset: offset}
}

func parseUint(s string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// parseDate accepts ISO dates with or without a time part. Anything else
// yields nil so the default validity applies.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

// respond writes payload as JSON, or redirects form posts to location.
func respond(w http.ResponseWriter, r *http.Request, status int, payload any, location string) {
	if !httpx.WantsJSON(r) && location != "" {
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}
	httpx.JSON(w, status, payload)
}

// fail maps service and store errors to HTTP answers.
func fail(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", verr.Violations)
	case errors.Is(err, store.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrReferenceConflict):
		httpx.JSONError(w, http.StatusConflict, "reference_conflict", nil)
	case errors.Is(err, services.ErrClientInUse):
		httpx.JSONError(w, http.StatusConflict, "client_in_use", nil)
	case errors.Is(err, services.ErrInvalidStatus):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_status", nil)
	default:
		logging.FromContext(r.Context(), log).Error("request failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

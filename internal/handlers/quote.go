package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diewo77/go-quotes/httpx"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/pricing"
	"github.com/diewo77/go-quotes/internal/services"
	"github.com/diewo77/go-quotes/internal/store"
)

// Defaults for blank line fields.
const (
	defaultQuantity = "1"
	defaultPrice    = "0"
	defaultVATRate  = "20"
)

// maxFormRows bounds the rows field of form posts.
const maxFormRows = 500

type QuoteHandler struct {
	svc *services.QuoteService
	log logging.Logger
}

func NewQuoteHandler(svc *services.QuoteService, log logging.Logger) *QuoteHandler {
	return &QuoteHandler{svc: svc, log: log}
}

type itemRequest struct {
	Ref         string            `json:"ref"`
	Description string            `json:"description"`
	Quantity    pricing.RawNumber `json:"quantity"`
	UnitPrice   pricing.RawNumber `json:"unit_price"`
	VATRate     pricing.RawNumber `json:"vat_rate"`
}

type quoteRequest struct {
	ClientID    uint          `json:"client_id"`
	Status      string        `json:"status"`
	Title       string        `json:"title"`
	Notes       string        `json:"notes"`
	IssuedBy    string        `json:"issued_by"`
	AttentionTo string        `json:"attention_to"`
	ValidUntil  string        `json:"valid_until"`
	Items       []itemRequest `json:"items"`
}

func (req quoteRequest) input() services.QuoteInput {
	in := services.QuoteInput{
		ClientID:    req.ClientID,
		Status:      parseStatus(req.Status),
		Title:       req.Title,
		Notes:       req.Notes,
		IssuedBy:    req.IssuedBy,
		AttentionTo: req.AttentionTo,
		ValidUntil:  parseDate(req.ValidUntil),
		Items:       make([]services.ItemInput, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, services.ItemInput{
			Ref:         it.Ref,
			Description: it.Description,
			Quantity:    it.Quantity.Or(defaultQuantity),
			UnitPrice:   it.UnitPrice.Or(defaultPrice),
			VATRate:     it.VATRate.Or(defaultVATRate),
		})
	}
	return in
}

// parseStatus accepts codes and labels. Unknown values are passed through
// so validation reports them.
func parseStatus(raw string) models.QuoteStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if st, ok := models.ParseQuoteStatus(raw); ok {
		return st
	}
	return models.QuoteStatus(raw)
}

// formItems reads rows 1..rows of ref_i, desc_i, qty_i, pu_i and vat_i.
func formItems(form url.Values) []itemRequest {
	rows, err := strconv.Atoi(strings.TrimSpace(form.Get("rows")))
	if err != nil || rows < 0 {
		return nil
	}
	if rows > maxFormRows {
		rows = maxFormRows
	}
	items := make([]itemRequest, 0, rows)
	for i := 1; i <= rows; i++ {
		n := strconv.Itoa(i)
		items = append(items, itemRequest{
			Ref:         form.Get("ref_" + n),
			Description: form.Get("desc_" + n),
			Quantity:    pricing.RawNumber(form.Get("qty_" + n)),
			UnitPrice:   pricing.RawNumber(form.Get("pu_" + n)),
			VATRate:     pricing.RawNumber(form.Get("vat_" + n)),
		})
	}
	return items
}

func (h *QuoteHandler) decode(r *http.Request) (services.QuoteInput, error) {
	var req quoteRequest
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return services.QuoteInput{}, err
		}
		return req.input(), nil
	}
	if err := r.ParseForm(); err != nil {
		return services.QuoteInput{}, err
	}
	req = quoteRequest{
		ClientID:    parseUint(r.PostForm.Get("client_id")),
		Status:      r.PostForm.Get("status"),
		Title:       r.PostForm.Get("title"),
		Notes:       r.PostForm.Get("notes"),
		IssuedBy:    r.PostForm.Get("issued_by"),
		AttentionTo: r.PostForm.Get("attention_to"),
		ValidUntil:  r.PostForm.Get("valid_until"),
		Items:       formItems(r.PostForm),
	}
	return req.input(), nil
}

func quoteLocation(id uint) string {
	return "/quotes/" + strconv.FormatUint(uint64(id), 10)
}

// List handles GET /quotes?status=&client_id=&limit=&page=.
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QuoteFilter{ClientID: parseUint(q.Get("client_id")), Page: page(r)}
	if raw := q.Get("status"); raw != "" {
		st, ok := models.ParseQuoteStatus(raw)
		if !ok {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_status", nil)
			return
		}
		f.Status = st
	}
	quotes, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.ListResponse{Items: newQuoteViews(quotes), Total: total, Limit: f.Limit, Offset: f.Offset})
}

// Create handles POST /quotes.
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := h.decode(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
		return
	}
	q, err := h.svc.Create(r.Context(), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, r, http.StatusCreated, newQuoteView(q), quoteLocation(q.ID))
}

// View handles GET /quotes/{id}.
func (h *QuoteHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	q, err := h.svc.Get(r.Context(), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newQuoteView(q))
}

// Update handles POST /quotes/{id}: fields and lines are replaced and the
// totals recomputed.
func (h *QuoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	in, err := h.decode(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
		return
	}
	q, err := h.svc.Save(r.Context(), id, in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, r, http.StatusOK, newQuoteView(q), quoteLocation(q.ID))
}

// SetStatus handles POST /quotes/{id}/status.
func (h *QuoteHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
			return
		}
	} else {
		body.Status = r.FormValue("status")
	}
	q, err := h.svc.SetStatus(r.Context(), id, body.Status)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, r, http.StatusOK, newQuoteView(q), quoteLocation(q.ID))
}

// Lock handles POST /quotes/{id}/lock.
func (h *QuoteHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	q, err := h.svc.Lock(r.Context(), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, r, http.StatusOK, newQuoteView(q), quoteLocation(q.ID))
}

// Delete handles POST /quotes/{id}/delete.
func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if !httpx.WantsJSON(r) {
		http.Redirect(w, r, "/quotes", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /dashboard.
func (h *QuoteHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDashboardView(d))
}

// Preview handles POST /quotes/preview. The lines are filtered and priced
// like a save but nothing is written.
func (h *QuoteHandler) Preview(w http.ResponseWriter, r *http.Request) {
	in, err := h.decode(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
		return
	}
	q := &models.Quote{ClientID: in.ClientID, Status: models.QuoteStatusDraft, Title: in.Title}
	for _, it := range in.Items {
		q.Items = append(q.Items, models.QuoteItem{
			Ref:         it.Ref,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			VATRate:     it.VATRate,
		})
	}
	q.FilterItems()
	q.RecomputeTotals()
	httpx.JSON(w, http.StatusOK, newQuoteView(q))
}

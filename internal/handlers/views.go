package handlers

import (
	"time"

	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/pricing"
	"github.com/diewo77/go-quotes/internal/store"
)

// Amounts leave the API as strings with exactly two fractional digits;
// quantities, prices and rates keep their exact decimal form.

type clientSummary struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

type itemView struct {
	ID          uint   `json:"id"`
	Position    int    `json:"position"`
	Ref         string `json:"ref,omitempty"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
	LineHT      string `json:"line_ht"`
	LineVAT     string `json:"line_vat"`
	LineTTC     string `json:"line_ttc"`
}

type quoteView struct {
	ID          uint           `json:"id"`
	Reference   *string        `json:"reference"`
	Year        int            `json:"year,omitempty"`
	Seq         int            `json:"seq,omitempty"`
	RefLocked   bool           `json:"ref_locked"`
	ClientID    uint           `json:"client_id"`
	Client      *clientSummary `json:"client,omitempty"`
	Status      string         `json:"status"`
	StatusLabel string         `json:"status_label"`
	Title       string         `json:"title"`
	Notes       string         `json:"notes,omitempty"`
	IssuedBy    string         `json:"issued_by,omitempty"`
	AttentionTo string         `json:"attention_to,omitempty"`
	ValidUntil  string         `json:"valid_until,omitempty"`
	SubtotalHT  string         `json:"subtotal_ht"`
	TotalVAT    string         `json:"total_vat"`
	TotalTTC    string         `json:"total_ttc"`
	Items       []itemView     `json:"items,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func newQuoteView(q *models.Quote) quoteView {
	v := quoteView{
		ID:          q.ID,
		Year:        q.Year,
		Seq:         q.Seq,
		RefLocked:   q.RefLocked,
		ClientID:    q.ClientID,
		Status:      string(q.Status),
		StatusLabel: q.Status.Label(),
		Title:       q.Title,
		Notes:       q.Notes,
		IssuedBy:    q.IssuedBy,
		AttentionTo: q.AttentionTo,
		SubtotalHT:  pricing.FormatAmount(q.SubtotalHT),
		TotalVAT:    pricing.FormatAmount(q.TotalVAT),
		TotalTTC:    pricing.FormatAmount(q.TotalTTC),
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
	if q.HasReference() {
		ref := q.ReferenceCode()
		v.Reference = &ref
	}
	if q.ValidUntil != nil {
		v.ValidUntil = q.ValidUntil.Format("2006-01-02")
	}
	if q.Client != nil {
		v.Client = &clientSummary{ID: q.Client.ID, Name: q.Client.DisplayName(), Abbreviation: q.Client.Abbreviation.String()}
	}
	for _, it := range q.Items {
		v.Items = append(v.Items, itemView{
			ID:          it.ID,
			Position:    it.Position,
			Ref:         it.Ref,
			Description: it.Description,
			Quantity:    it.Quantity.String(),
			UnitPrice:   it.UnitPrice.String(),
			VATRate:     it.VATRate.String(),
			LineHT:      pricing.FormatAmount(it.LineHT),
			LineVAT:     pricing.FormatAmount(it.LineVAT),
			LineTTC:     pricing.FormatAmount(it.LineTTC),
		})
	}
	return v
}

func newQuoteViews(quotes []models.Quote) []quoteView {
	out := make([]quoteView, len(quotes))
	for i := range quotes {
		out[i] = newQuoteView(&quotes[i])
	}
	return out
}

type dashboardView struct {
	Clients  int64            `json:"clients"`
	Quotes   int64            `json:"quotes"`
	ByStatus map[string]int64 `json:"by_status"`
	Recent   []quoteView      `json:"recent"`
}

func newDashboardView(d *store.Dashboard) dashboardView {
	v := dashboardView{
		Clients:  d.Clients,
		Quotes:   d.Quotes,
		ByStatus: make(map[string]int64, len(d.ByStatus)),
		Recent:   newQuoteViews(d.Recent),
	}
	for st, n := range d.ByStatus {
		v.ByStatus[string(st)] = n
	}
	return v
}

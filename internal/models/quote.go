package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/pricing"
)

// QuoteStatus represents the commercial status of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRefused  QuoteStatus = "refused"
)

// QuoteStatuses lists every status in display order.
var QuoteStatuses = []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRefused}

// DefaultQuoteTitle is used when a quote is saved without a title.
const DefaultQuoteTitle = "Devis"

var statusAliases = map[string]QuoteStatus{
	"draft":     QuoteStatusDraft,
	"brouillon": QuoteStatusDraft,
	"sent":      QuoteStatusSent,
	"envoyé":    QuoteStatusSent,
	"envoye":    QuoteStatusSent,
	"accepted":  QuoteStatusAccepted,
	"accepté":   QuoteStatusAccepted,
	"accepte":   QuoteStatusAccepted,
	"refused":   QuoteStatusRefused,
	"refusé":    QuoteStatusRefused,
	"refuse":    QuoteStatusRefused,
}

// ParseQuoteStatus accepts the status codes and the French labels used on
// printed quotes, case-insensitively.
func ParseQuoteStatus(s string) (QuoteStatus, bool) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

var statusLabels = map[QuoteStatus]string{
	QuoteStatusDraft:    "Brouillon",
	QuoteStatusSent:     "Envoyé",
	QuoteStatusAccepted: "Accepté",
	QuoteStatusRefused:  "Refusé",
}

// Label returns the French label printed on quotes.
func (s QuoteStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s QuoteStatus) Valid() bool {
	for _, known := range QuoteStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Quote is a priced commercial proposal addressed to a client.
// Any status may be set at any time; accepted and refused are terminal by
// convention only.
type Quote struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ClientID uint    `gorm:"index;not null" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	Status      QuoteStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	Title       string      `gorm:"size:160" json:"title"`
	Notes       string      `gorm:"type:text" json:"notes,omitempty"`
	IssuedBy    string      `gorm:"size:120" json:"issued_by,omitempty"`
	AttentionTo string      `gorm:"size:120" json:"attention_to,omitempty"`
	ValidUntil  *time.Time  `gorm:"type:date" json:"valid_until,omitempty"`

	// Reference identification; NULL until first allocated.
	Reference *string `gorm:"size:50;uniqueIndex" json:"reference"`
	Year      int     `gorm:"index:idx_quotes_year_seq" json:"year,omitempty"`
	Seq       int     `gorm:"index:idx_quotes_year_seq" json:"seq,omitempty"`
	RefLocked bool    `gorm:"not null;default:false" json:"ref_locked"`

	// Totals, always derived from Items by RecomputeTotals.
	SubtotalHT decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal_ht"`
	TotalVAT   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_vat"`
	TotalTTC   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_ttc"`

	Items []QuoteItem `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"items"`
}

// QuoteItem is one priced row of a quote. VATRate is a percentage.
type QuoteItem struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	QuoteID  uint   `gorm:"index;not null" json:"quote_id"`
	Position int    `gorm:"not null;default:0" json:"position"`
	Ref      string `gorm:"size:60" json:"ref,omitempty"`

	Description string          `gorm:"size:240;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(15,4);not null;default:0" json:"unit_price"`
	VATRate     decimal.Decimal `gorm:"type:decimal(5,2);not null;default:20" json:"vat_rate"`

	LineHT  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"line_ht"`
	LineVAT decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"line_vat"`
	LineTTC decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"line_ttc"`
}

// Keep reports whether the item may be persisted: it needs a description
// and a strictly positive quantity. Other rows are dropped on save.
func (it *QuoteItem) Keep() bool {
	return strings.TrimSpace(it.Description) != "" && it.Quantity.IsPositive()
}

// ReferenceCode returns the reference, or "" when none was allocated.
func (q *Quote) ReferenceCode() string {
	if q.Reference == nil {
		return ""
	}
	return *q.Reference
}

// HasReference reports whether a reference was already allocated.
func (q *Quote) HasReference() bool {
	return q.ReferenceCode() != ""
}

// NeedsReference reports whether saving the quote should allocate a
// reference: it has none yet and is not locked.
func (q *Quote) NeedsReference() bool {
	return !q.HasReference() && !q.RefLocked
}

// AssignReference sets the reference if the quote still needs one.
// It returns false, leaving the quote untouched, otherwise.
func (q *Quote) AssignReference(code string, year, seq int) bool {
	if !q.NeedsReference() || code == "" {
		return false
	}
	q.Reference = &code
	q.Year = year
	q.Seq = seq
	return true
}

// Lock freezes the reference. There is no unlock.
func (q *Quote) Lock() {
	q.RefLocked = true
}

// IsDraft returns true if the quote is still a draft.
func (q *Quote) IsDraft() bool {
	return q.Status == QuoteStatusDraft
}

// Scales of the item columns. Values are rounded to them before filtering
// so a stored row always matches the priced one.
const (
	QuantityPlaces  = 3
	UnitPricePlaces = 4
	VATRatePlaces   = 2
)

// MaxAmount is the exclusive bound of every decimal(12,2) amount column.
var MaxAmount = decimal.New(1, 10)

// FilterItems rounds item numbers to their column scales, drops rows that
// fail Keep and renumbers the rest.
func (q *Quote) FilterItems() {
	kept := q.Items[:0]
	for _, it := range q.Items {
		it.Quantity = it.Quantity.Round(QuantityPlaces)
		it.UnitPrice = it.UnitPrice.Round(UnitPricePlaces)
		it.VATRate = it.VATRate.Round(VATRatePlaces)
		if !it.Keep() {
			continue
		}
		it.Position = len(kept)
		kept = append(kept, it)
	}
	q.Items = kept
}

// RecomputeTotals prices every item and updates the line and quote totals
// in place. No other field is modified.
func (q *Quote) RecomputeTotals() {
	lines := make([]pricing.Line, len(q.Items))
	for i, it := range q.Items {
		lines[i] = pricing.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, VATRate: it.VATRate}
	}
	totals := pricing.Recompute(lines)
	for i := range q.Items {
		q.Items[i].LineHT = totals.Lines[i].HT
		q.Items[i].LineVAT = totals.Lines[i].VAT
		q.Items[i].LineTTC = totals.Lines[i].TTC
	}
	q.SubtotalHT = totals.SubtotalHT
	q.TotalVAT = totals.TotalVAT
	q.TotalTTC = totals.TotalTTC
}

// AmountsFit reports whether every line and quote amount fits its column.
func (q *Quote) AmountsFit() bool {
	fits := func(d decimal.Decimal) bool { return d.Abs().LessThan(MaxAmount) }
	for _, it := range q.Items {
		if !fits(it.LineHT) || !fits(it.LineVAT) || !fits(it.LineTTC) {
			return false
		}
	}
	return fits(q.SubtotalHT) && fits(q.TotalVAT) && fits(q.TotalTTC)
}

package services

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/reference"
	"github.com/diewo77/go-quotes/internal/store"
	"github.com/diewo77/go-quotes/validation"
)

var (
	// ErrReferenceConflict is returned when no free reference could be
	// committed within the configured number of attempts.
	ErrReferenceConflict = errors.New("reference_conflict")
	// ErrInvalidStatus is returned for an unknown quote status.
	ErrInvalidStatus = errors.New("invalid_status")
)

// ItemInput is one submitted line. Values are already parsed.
type ItemInput struct {
	Ref         string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VATRate     decimal.Decimal
}

// QuoteInput carries the editable fields of a quote. An empty Status keeps
// the current one (draft for new quotes); a nil ValidUntil keeps the current
// date or applies the default validity.
type QuoteInput struct {
	ClientID    uint
	Status      models.QuoteStatus
	Title       string
	Notes       string
	IssuedBy    string
	AttentionTo string
	ValidUntil  *time.Time
	Items       []ItemInput
}

type QuoteService struct {
	db  *gorm.DB
	cfg config.QuotesConfig
	log logging.Logger

	// Now is the clock used for reference years and default dates.
	Now func() time.Time

	alloc  *reference.Allocator
	finder func(tx *gorm.DB) reference.SeqFinder
}

func NewQuoteService(db *gorm.DB, cfg config.QuotesConfig, log logging.Logger) *QuoteService {
	if cfg.AllocationAttempts < 1 {
		cfg.AllocationAttempts = 1
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = models.DefaultQuoteTitle
	}
	s := &QuoteService{db: db, cfg: cfg, log: log, Now: time.Now}
	s.alloc = reference.NewAllocator(func() time.Time { return s.Now() })
	s.finder = func(tx *gorm.DB) reference.SeqFinder { return store.NewQuoteStore(tx) }
	return s
}

func (s *QuoteService) Get(ctx context.Context, id uint) (*models.Quote, error) {
	return store.NewQuoteStore(s.db).Get(ctx, id)
}

func (s *QuoteService) List(ctx context.Context, f store.QuoteFilter) ([]models.Quote, int64, error) {
	return store.NewQuoteStore(s.db).List(ctx, f)
}

func (s *QuoteService) Dashboard(ctx context.Context) (*store.Dashboard, error) {
	return store.NewQuoteStore(s.db).Dashboard(ctx)
}

// Create saves a new quote.
func (s *QuoteService) Create(ctx context.Context, in QuoteInput) (*models.Quote, error) {
	return s.Save(ctx, 0, in)
}

// Save creates (id == 0) or updates a quote from in. Items failing
// QuoteItem.Keep are dropped, totals are recomputed and a reference is
// allocated when the quote has none and is not locked. The client's
// abbreviation is derived from its name the first time it is needed.
//
// Everything runs in one transaction. A reference taken concurrently by
// another writer rolls the transaction back and the whole save is retried
// from in, up to the configured number of attempts.
func (s *QuoteService) Save(ctx context.Context, id uint, in QuoteInput) (*models.Quote, error) {
	if err := validateQuote(in); err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= s.cfg.AllocationAttempts; attempt++ {
		var saved *models.Quote
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q, err := s.saveTx(ctx, tx, id, in)
			saved = q
			return err
		})
		if err == nil {
			s.log.Info("quote saved", "quote_id", saved.ID, "reference", saved.ReferenceCode(), "total_ttc", saved.TotalTTC.StringFixed(2))
			return saved, nil
		}
		if !errors.Is(err, store.ErrDuplicateReference) {
			return nil, err
		}
		s.log.Warn("reference taken concurrently, retrying", "quote_id", id, "attempt", attempt, "error", err)
	}
	return nil, errors.Wrapf(ErrReferenceConflict, "after %d attempts", s.cfg.AllocationAttempts)
}

func (s *QuoteService) saveTx(ctx context.Context, tx *gorm.DB, id uint, in QuoteInput) (*models.Quote, error) {
	st := store.New(tx)

	q := &models.Quote{Status: models.QuoteStatusDraft}
	if id != 0 {
		existing, err := st.Quotes.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "load quote %d", id)
		}
		q = existing
	}

	client, err := st.Clients.Get(ctx, in.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validation.Violations{"client_id": "not_found"}.Err()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load client %d", in.ClientID)
	}

	s.apply(q, in)
	q.ClientID = client.ID
	q.FilterItems()
	q.RecomputeTotals()
	if !q.AmountsFit() {
		return nil, validation.Violations{"total_ttc": "out_of_range"}.Err()
	}

	if q.NeedsReference() {
		abbr, err := s.ensureAbbreviation(ctx, st, client)
		if err != nil {
			return nil, err
		}
		ref, err := s.alloc.Allocate(ctx, s.finder(tx), abbr)
		if err != nil {
			return nil, err
		}
		q.AssignReference(ref.Code, ref.Year, ref.Seq)
	}

	if err := st.Quotes.Save(ctx, q); err != nil {
		return nil, err
	}
	q.Client = client
	return q, nil
}

// apply copies the input onto q, leaving reference fields untouched.
func (s *QuoteService) apply(q *models.Quote, in QuoteInput) {
	if in.Status != "" {
		q.Status = in.Status
	}
	q.Title = in.Title
	if q.Title == "" {
		q.Title = s.cfg.DefaultTitle
	}
	q.Notes = in.Notes
	q.IssuedBy = in.IssuedBy
	q.AttentionTo = in.AttentionTo
	switch {
	case in.ValidUntil != nil:
		d := *in.ValidUntil
		q.ValidUntil = &d
	case q.ValidUntil == nil:
		d := s.Now().AddDate(0, 0, s.cfg.ValidityDays)
		d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		q.ValidUntil = &d
	}

	q.Items = make([]models.QuoteItem, len(in.Items))
	for i, it := range in.Items {
		q.Items[i] = models.QuoteItem{
			Position:    i,
			Ref:         it.Ref,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			VATRate:     it.VATRate,
		}
	}
}

// ensureAbbreviation returns the client's abbreviation, deriving and
// storing it when unset. A value stored concurrently wins.
func (s *QuoteService) ensureAbbreviation(ctx context.Context, st *store.Store, c *models.Client) (string, error) {
	if c.Abbreviation.IsSet() {
		return c.Abbreviation.String(), nil
	}
	derived := models.NewAbbreviation(reference.DeriveAbbreviation(c.DisplayName()))
	abbr, err := st.Clients.SetAbbreviationIfUnset(ctx, c.ID, derived)
	if err != nil {
		return "", err
	}
	c.Abbreviation = abbr
	return abbr.String(), nil
}

// SetStatus assigns any status, whatever the current one. raw may be a
// status code or its French label.
func (s *QuoteService) SetStatus(ctx context.Context, id uint, raw string) (*models.Quote, error) {
	status, ok := models.ParseQuoteStatus(raw)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", raw)
	}
	qs := store.NewQuoteStore(s.db)
	if err := qs.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.log.Info("quote status changed", "quote_id", id, "status", status)
	return qs.Get(ctx, id)
}

// Lock freezes the quote's reference, allocated or not.
func (s *QuoteService) Lock(ctx context.Context, id uint) (*models.Quote, error) {
	qs := store.NewQuoteStore(s.db)
	if err := qs.Lock(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info("quote reference locked", "quote_id", id)
	return qs.Get(ctx, id)
}

// Delete removes the quote and its items together.
func (s *QuoteService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return store.NewQuoteStore(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("quote deleted", "quote_id", id)
	return nil
}

var (
	hundred     = decimal.NewFromInt(100)
	maxQuantity = decimal.New(1, 9) // decimal(12,3)
	maxPrice    = decimal.New(1, 11) // decimal(15,4)
)

func validateQuote(in QuoteInput) error {
	v := validation.Violations{}
	if in.ClientID == 0 {
		v.Add("client_id", "required")
	}
	if in.Status != "" && !in.Status.Valid() {
		v.Add("status", "invalid")
	}
	validation.MaxLen("title", in.Title, 160, v)
	validation.MaxLen("issued_by", in.IssuedBy, 120, v)
	validation.MaxLen("attention_to", in.AttentionTo, 120, v)
	for i, it := range in.Items {
		validation.MaxLen(itemField(i, "description"), it.Description, 240, v)
		validation.MaxLen(itemField(i, "ref"), it.Ref, 60, v)
		validation.RangeDecimal(itemField(i, "quantity"), it.Quantity, maxQuantity.Neg(), maxQuantity, v)
		validation.RangeDecimal(itemField(i, "unit_price"), it.UnitPrice, maxPrice.Neg(), maxPrice, v)
		validation.RangeDecimal(itemField(i, "vat_rate"), it.VATRate, decimal.Zero, hundred, v)
	}
	return v.Err()
}

func itemField(i int, name string) string {
	return "items." + strconv.Itoa(i) + "." + name
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/reference"
	"github.com/diewo77/go-quotes/internal/store"
	"github.com/diewo77/go-quotes/validation"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serialises concurrent transactions on sqlite
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Client{}, &models.Quote{}, &models.QuoteItem{}))
	return db
}

var march2024 = time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC)

func newServices(t *testing.T, attempts int) (*gorm.DB, *ClientService, *QuoteService) {
	db := setupTestDB(t)
	cfg := config.QuotesConfig{AllocationAttempts: attempts, ValidityDays: 30, DefaultTitle: "Devis"}
	qs := NewQuoteService(db, cfg, logging.Nop())
	qs.Now = func() time.Time { return march2024 }
	return db, NewClientService(db, logging.Nop()), qs
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(desc, qty, pu, vat string) ItemInput {
	return ItemInput{Description: desc, Quantity: dec(qty), UnitPrice: dec(pu), VATRate: dec(vat)}
}

func TestQuoteCreateAllocatesReference(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)

	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean Dupont"})
	require.NoError(t, err)
	assert.False(t, c.Abbreviation.IsSet())
	assert.Equal(t, models.DefaultCountry, c.Country)

	q1, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "3", "10.005", "20")}})
	require.NoError(t, err)
	assert.Equal(t, "2024ACC001", q1.ReferenceCode())
	assert.Equal(t, 2024, q1.Year)
	assert.Equal(t, 1, q1.Seq)
	assert.Equal(t, models.QuoteStatusDraft, q1.Status)
	assert.Equal(t, "Devis", q1.Title)
	assert.Equal(t, "30.02", q1.SubtotalHT.StringFixed(2))
	assert.Equal(t, "6.00", q1.TotalVAT.StringFixed(2))
	assert.Equal(t, "36.02", q1.TotalTTC.StringFixed(2))
	require.NotNil(t, q1.ValidUntil)
	assert.Equal(t, "2024-04-13", q1.ValidUntil.Format("2006-01-02"))

	q2, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024ACC002", q2.ReferenceCode())

	stored, err := clients.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACC", stored.Abbreviation.String(), "abbreviation filled on first quote")
}

func TestQuoteSaveKeepsReferenceAndRecomputes(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)

	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "100", "20")}})
	require.NoError(t, err)
	ref := q.ReferenceCode()

	updated, err := quotes.Save(ctx, q.ID, QuoteInput{
		ClientID: c.ID,
		Title:    "Devis révisé",
		Items: []ItemInput{
			line("Audit", "2", "100", "20"),
			line("", "5", "1", "20"),
			line("Gratuit", "0", "50", "20"),
			line("Formation", "0.5", "300", "10"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ref, updated.ReferenceCode())
	assert.Equal(t, "Devis révisé", updated.Title)

	got, err := quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Audit", got.Items[0].Description)
	assert.Equal(t, "Formation", got.Items[1].Description)
	assert.Equal(t, "350.00", got.SubtotalHT.StringFixed(2))
	assert.Equal(t, "55.00", got.TotalVAT.StringFixed(2))
	assert.Equal(t, "405.00", got.TotalTTC.StringFixed(2))
	assert.Equal(t, ref, got.ReferenceCode())
}

func TestClientAbbreviationIsSticky(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)

	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean", Abbreviation: "zz"})
	require.NoError(t, err)
	assert.Equal(t, "ZZ", c.Abbreviation.String())

	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024ZZ001", q.ReferenceCode())

	// renaming does not touch the abbreviation, nor does an empty form value
	_, err = clients.Update(ctx, c.ID, ClientInput{Company: "Globex", ContactName: "Jean"})
	require.NoError(t, err)
	q, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024ZZ002", q.ReferenceCode())
}

func TestAbbreviationFromContactName(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{ContactName: "Jean Paul Martin"})
	require.NoError(t, err)

	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024JPM001", q.ReferenceCode())
}

func TestLockedQuoteGetsNoReference(t *testing.T) {
	ctx := context.Background()
	db, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)

	// a quote locked before any reference was allocated
	q := &models.Quote{ClientID: c.ID, Status: models.QuoteStatusDraft, RefLocked: true}
	require.NoError(t, store.NewQuoteStore(db).Save(ctx, q))

	saved, err := quotes.Save(ctx, q.ID, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "10", "20")}})
	require.NoError(t, err)
	assert.False(t, saved.HasReference())
	assert.Equal(t, "12.00", saved.TotalTTC.StringFixed(2))

	locked, err := quotes.Lock(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, locked.RefLocked)
}

func TestSetStatusAnyTransition(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{ContactName: "Jean"})
	require.NoError(t, err)
	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)

	for _, raw := range []string{"accepted", "Brouillon", "refusé", "sent"} {
		got, err := quotes.SetStatus(ctx, q.ID, raw)
		require.NoError(t, err, raw)
		want, _ := models.ParseQuoteStatus(raw)
		assert.Equal(t, want, got.Status)
		assert.Equal(t, q.ReferenceCode(), got.ReferenceCode())
	}

	_, err = quotes.SetStatus(ctx, q.ID, "converted")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = quotes.SetStatus(ctx, 9999, "sent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQuoteValidation(t *testing.T) {
	ctx := context.Background()
	_, _, quotes := newServices(t, 3)

	_, err := quotes.Create(ctx, QuoteInput{})
	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "required", verr.Violations["client_id"])

	_, err = quotes.Create(ctx, QuoteInput{ClientID: 42})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "not_found", verr.Violations["client_id"])

	_, err = quotes.Create(ctx, QuoteInput{ClientID: 42, Status: "paid", Items: []ItemInput{line("x", "1", "1", "150")}})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invalid", verr.Violations["status"])
	assert.Equal(t, "out_of_range", verr.Violations["items.0.vat_rate"])
}

func TestSaveRoundsItemsToColumnScales(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)

	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{
		line("Poussière", "0.0004", "1000", "20"),
		line("Conseil", "1.23456", "10.00005", "19.999"),
	}})
	require.NoError(t, err)
	require.Len(t, q.Items, 1, "a quantity rounding to zero is dropped")
	it := q.Items[0]
	assert.Equal(t, "1.235", it.Quantity.String())
	assert.Equal(t, "10.0001", it.UnitPrice.String())
	assert.Equal(t, "20", it.VATRate.String())
	assert.True(t, q.SubtotalHT.Equal(dec("12.35")), q.SubtotalHT.String())
	assert.True(t, q.TotalVAT.Equal(dec("2.47")), q.TotalVAT.String())
	assert.True(t, q.TotalTTC.Equal(dec("14.82")), q.TotalTTC.String())

	got, err := quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Quantity.Equal(dec("1.235")))
}

func TestSaveRejectsAmountsOverflowingColumns(t *testing.T) {
	ctx := context.Background()
	db, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)

	var verr *validation.Error
	_, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{
		line("Gros lot", "999999999", "99999999999", "20"),
	}})
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "out_of_range", verr.Violations["total_ttc"])

	// each line fits, the sum does not
	_, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{
		line("Tranche 1", "1", "6000000000", "0"),
		line("Tranche 2", "1", "6000000000", "0"),
	}})
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "out_of_range", verr.Violations["total_ttc"])

	var n int64
	require.NoError(t, db.Model(&models.Quote{}).Count(&n).Error)
	assert.Zero(t, n)

	_, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{
		line("Tranche", "1", "9999999999.99", "0"),
	}})
	require.NoError(t, err)
}

func TestDeleteQuoteAndClient(t *testing.T) {
	ctx := context.Background()
	db, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)
	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "10", "20")}})
	require.NoError(t, err)

	err = clients.Delete(ctx, c.ID)
	assert.ErrorIs(t, err, ErrClientInUse)

	require.NoError(t, quotes.Delete(ctx, q.ID))
	var items int64
	require.NoError(t, db.Model(&models.QuoteItem{}).Count(&items).Error)
	assert.Zero(t, items)

	require.NoError(t, clients.Delete(ctx, c.ID))
	assert.ErrorIs(t, clients.Delete(ctx, c.ID), store.ErrNotFound)

	// a deleted quote's number is never issued again
	c2, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Paul", Abbreviation: "ACC"})
	require.NoError(t, err)
	again, err := quotes.Create(ctx, QuoteInput{ClientID: c2.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024ACC002", again.ReferenceCode())
}

// staleFinder reports no previous reference for the first n lookups,
// as a concurrent writer would see before the other commit lands.
type staleFinder struct {
	mu    *sync.Mutex
	stale *int
	real  reference.SeqFinder
}

func (f staleFinder) MaxSeq(ctx context.Context, year int, prefix string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *f.stale > 0 {
		*f.stale--
		return 0, false, nil
	}
	return f.real.MaxSeq(ctx, year, prefix)
}

func TestSaveRetriesOnReferenceConflict(t *testing.T) {
	ctx := context.Background()
	db, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean", Abbreviation: "ACC"})
	require.NoError(t, err)
	_, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID})
	require.NoError(t, err)

	var mu sync.Mutex
	stale := 1
	quotes.finder = func(tx *gorm.DB) reference.SeqFinder {
		return staleFinder{mu: &mu, stale: &stale, real: store.NewQuoteStore(tx)}
	}

	q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "10", "20")}})
	require.NoError(t, err)
	assert.Equal(t, "2024ACC002", q.ReferenceCode())

	got, err := quotes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	var n int64
	require.NoError(t, db.Model(&models.Quote{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestSaveGivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	db, clients, quotes := newServices(t, 2)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean", Abbreviation: "ACC"})
	require.NoError(t, err)

	var mu sync.Mutex
	stale := 100
	quotes.finder = func(tx *gorm.DB) reference.SeqFinder {
		return staleFinder{mu: &mu, stale: &stale, real: store.NewQuoteStore(tx)}
	}
	taken := "2024ACC001"
	require.NoError(t, store.NewQuoteStore(db).Save(ctx, &models.Quote{ClientID: c.ID, Status: models.QuoteStatusDraft, Reference: &taken, Year: 2024, Seq: 1}))

	_, err = quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "10", "20")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReferenceConflict)
	assert.Equal(t, 98, stale, "one lookup per attempt")

	var quotesN, itemsN int64
	require.NoError(t, db.Model(&models.Quote{}).Count(&quotesN).Error)
	require.NoError(t, db.Model(&models.QuoteItem{}).Count(&itemsN).Error)
	assert.EqualValues(t, 1, quotesN, "nothing partially saved")
	assert.Zero(t, itemsN)
}

// The test database has a single connection, so these creates commit one
// after another. Interleaved allocations are covered by the staleFinder
// tests.
func TestParallelCreatesGetConsecutiveReferences(t *testing.T) {
	ctx := context.Background()
	_, clients, quotes := newServices(t, 3)
	c, err := clients.Create(ctx, ClientInput{Company: "Acme Corp", ContactName: "Jean"})
	require.NoError(t, err)

	const n = 8
	refs := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := quotes.Create(ctx, QuoteInput{ClientID: c.ID, Items: []ItemInput{line("Audit", "1", "10", "20")}})
			errs[i] = err
			if err == nil {
				refs[i] = q.ReferenceCode()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(refs)
	for i, ref := range refs {
		assert.Equal(t, fmt.Sprintf("2024ACC%03d", i+1), ref)
	}
}

package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/go-quotes/internal/models"
)

// QuoteFilter narrows ListQuotes. Zero fields do not filter.
type QuoteFilter struct {
	Status   models.QuoteStatus
	ClientID uint
	Page
}

// Dashboard holds the counters shown on the home page.
type Dashboard struct {
	Clients  int64                        `json:"clients"`
	Quotes   int64                        `json:"quotes"`
	ByStatus map[models.QuoteStatus]int64 `json:"by_status"`
	Recent   []models.Quote               `json:"recent"`
}

// RecentQuotes is the number of quotes listed on the dashboard.
const RecentQuotes = 10

type QuoteStore struct {
	db *gorm.DB
}

func NewQuoteStore(db *gorm.DB) *QuoteStore {
	return &QuoteStore{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB { return db.Order("position, id") }

// Get loads a quote with its client and ordered items.
func (s *QuoteStore) Get(ctx context.Context, id uint) (*models.Quote, error) {
	var q models.Quote
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Items", orderedItems).
		First(&q, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

// List returns quotes, newest first, with their client but without items.
func (s *QuoteStore) List(ctx context.Context, f QuoteFilter) ([]models.Quote, int64, error) {
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Quote{}).Scopes(f.where).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count quotes")
	}
	var quotes []models.Quote
	err := db.Scopes(f.where, f.Page.apply).
		Preload("Client").
		Order("created_at DESC, id DESC").
		Find(&quotes).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list quotes")
	}
	return quotes, total, nil
}

func (f QuoteFilter) where(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.ClientID != 0 {
		db = db.Where("client_id = ?", f.ClientID)
	}
	return db
}

// Save inserts or updates the quote row and replaces all of its items with
// q.Items. It should run inside a transaction.
func (s *QuoteStore) Save(ctx context.Context, q *models.Quote) error {
	db := s.db.WithContext(ctx)
	if q.ID == 0 {
		if err := db.Omit(clause.Associations).Create(q).Error; err != nil {
			return errors.Wrap(translate(err), "create quote")
		}
	} else {
		if err := db.Omit(clause.Associations).Save(q).Error; err != nil {
			return errors.Wrapf(translate(err), "update quote %d", q.ID)
		}
		if err := db.Where("quote_id = ?", q.ID).Delete(&models.QuoteItem{}).Error; err != nil {
			return errors.Wrapf(err, "clear items of quote %d", q.ID)
		}
	}
	if len(q.Items) == 0 {
		return nil
	}
	for i := range q.Items {
		q.Items[i].ID = 0
		q.Items[i].QuoteID = q.ID
	}
	if err := db.Create(&q.Items).Error; err != nil {
		return errors.Wrapf(err, "insert items of quote %d", q.ID)
	}
	return nil
}

// Delete removes the items and soft-deletes the quote. The reference stays
// reserved.
func (s *QuoteStore) Delete(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("quote_id = ?", id).Delete(&models.QuoteItem{}).Error; err != nil {
		return errors.Wrapf(err, "delete items of quote %d", id)
	}
	res := db.Delete(&models.Quote{}, id)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete quote %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes the status column only.
func (s *QuoteStore) SetStatus(ctx context.Context, id uint, status models.QuoteStatus) error {
	return s.updateColumn(ctx, id, "status", status)
}

// Lock sets ref_locked; there is no way back.
func (s *QuoteStore) Lock(ctx context.Context, id uint) error {
	return s.updateColumn(ctx, id, "ref_locked", true)
}

func (s *QuoteStore) updateColumn(ctx context.Context, id uint, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&models.Quote{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update %s of quote %d", column, id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxSeq returns the highest seq among quotes of year whose reference is
// exactly prefix followed by that seq. Soft-deleted quotes count, so a
// reference is never issued twice.
func (s *QuoteStore) MaxSeq(ctx context.Context, year int, prefix string) (int, bool, error) {
	var rows []struct {
		Reference string
		Seq       int
	}
	err := s.db.WithContext(ctx).Unscoped().Model(&models.Quote{}).
		Select("reference", "seq").
		Where(`year = ? AND reference LIKE ? ESCAPE '\'`, year, likePrefix(prefix)).
		Scan(&rows).Error
	if err != nil {
		return 0, false, errors.Wrap(err, "select references")
	}
	best, found := 0, false
	for _, r := range rows {
		// another code may extend prefix, e.g. 3M1 for 3M
		if r.Seq <= 0 || r.Reference != prefix+fmt.Sprintf("%03d", r.Seq) {
			continue
		}
		if !found || r.Seq > best {
			best, found = r.Seq, true
		}
	}
	return best, found, nil
}

// Dashboard gathers client and quote counters and the latest quotes.
func (s *QuoteStore) Dashboard(ctx context.Context) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &Dashboard{ByStatus: make(map[models.QuoteStatus]int64, len(models.QuoteStatuses))}

	if err := db.Model(&models.Client{}).Count(&d.Clients).Error; err != nil {
		return nil, errors.Wrap(err, "count clients")
	}
	if err := db.Model(&models.Quote{}).Count(&d.Quotes).Error; err != nil {
		return nil, errors.Wrap(err, "count quotes")
	}

	var rows []struct {
		Status models.QuoteStatus
		N      int64
	}
	if err := db.Model(&models.Quote{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count quotes by status")
	}
	for _, st := range models.QuoteStatuses {
		d.ByStatus[st] = 0
	}
	for _, r := range rows {
		d.ByStatus[r.Status] = r.N
	}

	if err := db.Preload("Client").Order("created_at DESC, id DESC").Limit(RecentQuotes).Find(&d.Recent).Error; err != nil {
		return nil, errors.Wrap(err, "recent quotes")
	}
	return d, nil
}

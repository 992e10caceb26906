package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/models"
)

// ClientFilter narrows ListClients. Query matches company, contact name or
// email, case-insensitively.
type ClientFilter struct {
	Query string
	Page
}

type ClientStore struct {
	db *gorm.DB
}

func NewClientStore(db *gorm.DB) *ClientStore {
	return &ClientStore{db: db}
}

func (s *ClientStore) Create(ctx context.Context, c *models.Client) error {
	if err := s.db.WithContext(ctx).Omit("Quotes").Create(c).Error; err != nil {
		return errors.Wrap(translate(err), "create client")
	}
	return nil
}

func (s *ClientStore) Update(ctx context.Context, c *models.Client) error {
	if c.ID == 0 {
		return ErrNotFound
	}
	if err := s.db.WithContext(ctx).Omit("Quotes").Save(c).Error; err != nil {
		return errors.Wrapf(translate(err), "update client %d", c.ID)
	}
	return nil
}

// Get loads one client without its quotes.
func (s *ClientStore) Get(ctx context.Context, id uint) (*models.Client, error) {
	var c models.Client
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// List returns matching clients ordered by display name, and the total
// count before paging.
func (s *ClientStore) List(ctx context.Context, f ClientFilter) ([]models.Client, int64, error) {
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Client{}).Scopes(f.where).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count clients")
	}
	var clients []models.Client
	if err := db.Scopes(f.where, f.Page.apply).Order("company, contact_name, id").Find(&clients).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list clients")
	}
	return clients, total, nil
}

func (f ClientFilter) where(db *gorm.DB) *gorm.DB {
	term := strings.ToLower(strings.TrimSpace(f.Query))
	if term == "" {
		return db
	}
	pattern := likeContains(term)
	return db.Where(`(LOWER(company) LIKE ? ESCAPE '\' OR LOWER(contact_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`,
		pattern, pattern, pattern)
}

// SetAbbreviationIfUnset stores abbr only when the client has none yet and
// returns the abbreviation now held by the client.
func (s *ClientStore) SetAbbreviationIfUnset(ctx context.Context, id uint, abbr models.Abbreviation) (models.Abbreviation, error) {
	db := s.db.WithContext(ctx)
	err := db.Model(&models.Client{}).
		Where("id = ? AND (abbreviation IS NULL OR abbreviation = '')", id).
		Update("abbreviation", abbr).Error
	if err != nil {
		return models.Abbreviation{}, errors.Wrapf(err, "set abbreviation of client %d", id)
	}
	var c models.Client
	if err := db.Select("id", "abbreviation").First(&c, id).Error; err != nil {
		return models.Abbreviation{}, translate(err)
	}
	return c.Abbreviation, nil
}

// CountQuotes returns the number of live quotes addressed to the client.
func (s *ClientStore) CountQuotes(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Quote{}).Where("client_id = ?", id).Count(&n).Error
	return n, errors.Wrapf(err, "count quotes of client %d", id)
}

// Delete soft-deletes the client.
func (s *ClientStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Client{}, id)
	if res.Error != nil {
		return errors.Wrapf(translate(res.Error), "delete client %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

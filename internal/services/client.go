package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/store"
	"github.com/diewo77/go-quotes/validation"
)

// ErrClientInUse is returned when deleting a client that still has quotes.
var ErrClientInUse = errors.New("client_in_use")

// ClientInput carries the editable fields of a client. An empty
// Abbreviation leaves the stored one unchanged.
type ClientInput struct {
	Company      string
	ContactName  string
	Abbreviation string
	Email        string
	Phone        string
	Address      string
	City         string
	ZipCode      string
	Country      string
}

type ClientService struct {
	db  *gorm.DB
	log logging.Logger
}

func NewClientService(db *gorm.DB, log logging.Logger) *ClientService {
	return &ClientService{db: db, log: log}
}

func (s *ClientService) Get(ctx context.Context, id uint) (*models.Client, error) {
	return store.NewClientStore(s.db).Get(ctx, id)
}

func (s *ClientService) List(ctx context.Context, f store.ClientFilter) ([]models.Client, int64, error) {
	return store.NewClientStore(s.db).List(ctx, f)
}

func (s *ClientService) Create(ctx context.Context, in ClientInput) (*models.Client, error) {
	in = in.trimmed()
	if err := validateClient(in); err != nil {
		return nil, err
	}
	c := &models.Client{}
	applyClient(c, in)
	if err := store.NewClientStore(s.db).Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("client created", "client_id", c.ID, "name", c.DisplayName())
	return c, nil
}

func (s *ClientService) Update(ctx context.Context, id uint, in ClientInput) (*models.Client, error) {
	in = in.trimmed()
	if err := validateClient(in); err != nil {
		return nil, err
	}
	cs := store.NewClientStore(s.db)
	c, err := cs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyClient(c, in)
	if err := cs.Update(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("client updated", "client_id", c.ID)
	return c, nil
}

// Delete soft-deletes a client without live quotes.
func (s *ClientService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cs := store.NewClientStore(tx)
		if _, err := cs.Get(ctx, id); err != nil {
			return err
		}
		n, err := cs.CountQuotes(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.Wrapf(ErrClientInUse, "%d quote(s)", n)
		}
		return cs.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("client deleted", "client_id", id)
	return nil
}

func (in ClientInput) trimmed() ClientInput {
	for _, f := range []*string{&in.Company, &in.ContactName, &in.Abbreviation, &in.Email, &in.Phone, &in.City, &in.ZipCode, &in.Country} {
		*f = strings.TrimSpace(*f)
	}
	return in
}

func applyClient(c *models.Client, in ClientInput) {
	c.Company = in.Company
	c.ContactName = in.ContactName
	if in.Abbreviation != "" {
		c.Abbreviation = models.NewAbbreviation(in.Abbreviation)
	}
	c.Email = in.Email
	c.Phone = in.Phone
	c.Address = in.Address
	c.City = in.City
	c.ZipCode = in.ZipCode
	c.Country = in.Country
	if c.Country == "" {
		c.Country = models.DefaultCountry
	}
}

func validateClient(in ClientInput) error {
	v := validation.Violations{}
	validation.Required("contact_name", in.ContactName, v)
	validation.MaxLen("contact_name", in.ContactName, 120, v)
	validation.MaxLen("company", in.Company, 120, v)
	validation.MaxLen("abbreviation", in.Abbreviation, 20, v)
	validation.Email("email", in.Email, v)
	validation.MaxLen("email", in.Email, 120, v)
	return v.Err()
}

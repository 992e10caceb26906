// Package store persists clients and quotes through gorm.
package store

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist or was
	// soft-deleted.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateReference is returned when a quote is written with a
	// reference already held by another quote.
	ErrDuplicateReference = errors.New("duplicate quote reference")
)

// Store groups the repositories sharing one gorm handle.
type Store struct {
	db      *gorm.DB
	Clients *ClientStore
	Quotes  *QuoteStore
}

// New returns a Store bound to db. db may be a transaction.
func New(db *gorm.DB) *Store {
	return &Store{
		db:      db,
		Clients: NewClientStore(db),
		Quotes:  NewQuoteStore(db),
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Page bounds a list query. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

// translate maps driver errors to the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isDuplicate(err) {
		return errors.Wrap(ErrDuplicateReference, err.Error())
	}
	return err
}

// isDuplicate detects unique violations, with or without gorm's
// TranslateError enabled.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix returns a LIKE pattern matching values starting with s.
// Use with ESCAPE '\'.
func likePrefix(s string) string { return likeEscaper.Replace(s) + "%" }

// likeContains returns a LIKE pattern matching values containing s.
func likeContains(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

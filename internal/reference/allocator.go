package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// SeqFinder looks up previously issued references. MaxSeq returns the
// highest seq among quotes of the given year whose reference starts with
// prefix, and false when there is none.
type SeqFinder interface {
	MaxSeq(ctx context.Context, year int, prefix string) (int, bool, error)
}

// Reference is an allocated reference code and the values it was built from.
type Reference struct {
	Code string
	Year int
	Seq  int
}

// Format builds the reference code for year, abbreviation and seq.
func Format(year int, abbr string, seq int) string {
	return fmt.Sprintf("%04d%s%03d", year, abbr, seq)
}

// Allocator computes the next reference for an abbreviation. It only reads:
// the caller persists the result and the storage layer's unique index on
// the reference column rejects a concurrent duplicate. Allocate can then be
// called again within a new transaction and will observe the winner's seq.
type Allocator struct {
	// Now supplies the current time; the year is taken from it.
	Now func() time.Time
}

// NewAllocator returns an Allocator reading the given clock.
// A nil clock means time.Now.
func NewAllocator(now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{Now: now}
}

// Allocate returns the next reference for abbreviation in the current year.
func (a *Allocator) Allocate(ctx context.Context, finder SeqFinder, abbreviation string) (Reference, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	year := now().Year()
	abbr := NormalizeAbbreviation(abbreviation)
	prefix := fmt.Sprintf("%04d%s", year, abbr)

	last, found, err := finder.MaxSeq(ctx, year, prefix)
	if err != nil {
		return Reference{}, errors.Wrapf(err, "lookup last seq for %s", prefix)
	}
	next := 1
	if found && last > 0 {
		next = last + 1
	}
	return Reference{Code: Format(year, abbr, next), Year: year, Seq: next}, nil
}

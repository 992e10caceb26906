package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultCountry is applied when a client is saved without a country.
const DefaultCountry = "France"

// Abbreviation is the short code of a client used in quote references.
// It distinguishes "never set" from any set value so that the lazy
// auto-fill on first quote save cannot be confused with a user choice.
type Abbreviation struct {
	Code  string
	Valid bool
}

// NewAbbreviation returns a set abbreviation, upper-cased and trimmed.
// An empty code yields an unset value.
func NewAbbreviation(code string) Abbreviation {
	code = strings.ToUpper(strings.TrimSpace(code))
	return Abbreviation{Code: code, Valid: code != ""}
}

// IsSet reports whether the abbreviation holds a value.
func (a Abbreviation) IsSet() bool { return a.Valid && a.Code != "" }

// String returns the code, or "" when unset.
func (a Abbreviation) String() string {
	if !a.IsSet() {
		return ""
	}
	return a.Code
}

// Scan implements sql.Scanner.
func (a *Abbreviation) Scan(value any) error {
	var ns sql.NullString
	if err := ns.Scan(value); err != nil {
		return err
	}
	a.Code, a.Valid = ns.String, ns.Valid && ns.String != ""
	return nil
}

// Value implements driver.Valuer; unset is stored as NULL.
func (a Abbreviation) Value() (driver.Value, error) {
	if !a.IsSet() {
		return nil, nil
	}
	return a.Code, nil
}

// GormDataType maps the column to a string type.
func (Abbreviation) GormDataType() string { return "string" }

// MarshalJSON renders unset as null.
func (a Abbreviation) MarshalJSON() ([]byte, error) {
	if !a.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(a.Code)
}

// UnmarshalJSON accepts a string or null.
func (a *Abbreviation) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*a = Abbreviation{}
		return nil
	}
	*a = NewAbbreviation(*s)
	return nil
}

// Client represents a customer receiving quotes.
type Client struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Identity
	Company      string       `gorm:"size:120;index" json:"company,omitempty"`
	ContactName  string       `gorm:"size:120;not null" json:"contact_name"`
	Abbreviation Abbreviation `gorm:"size:20" json:"abbreviation"`

	// Contact
	Email   string `gorm:"size:120" json:"email,omitempty"`
	Phone   string `gorm:"size:60" json:"phone,omitempty"`
	Address string `gorm:"type:text" json:"address,omitempty"`
	City    string `gorm:"size:120" json:"city,omitempty"`
	ZipCode string `gorm:"size:20" json:"zip_code,omitempty"`
	Country string `gorm:"size:80;default:'France'" json:"country"`

	Quotes []Quote `gorm:"foreignKey:ClientID;constraint:OnDelete:RESTRICT" json:"quotes,omitempty"`
}

// DisplayName is the company name, or the contact name for individuals.
func (c *Client) DisplayName() string {
	if strings.TrimSpace(c.Company) != "" {
		return c.Company
	}
	return c.ContactName
}

// FullAddress returns the formatted postal address.
func (c *Client) FullAddress() string {
	addr := c.Address
	if c.ZipCode != "" || c.City != "" {
		if addr != "" {
			addr += "\n"
		}
		addr += strings.TrimSpace(c.ZipCode + " " + c.City)
	}
	if c.Country != "" {
		if addr != "" {
			addr += "\n"
		}
		addr += c.Country
	}
	return addr
}

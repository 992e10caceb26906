package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	v := Violations{}
	Required("contact_name", "  ", v)
	MaxLen("abbreviation", "ABCDEFGHIJKLMNOPQRSTUVWXYZ", 20, v)
	Email("email", "not-an-email", v)
	Email("backup_email", "", v)
	PositiveDecimal("quantity", decimal.Zero, v)
	RangeDecimal("vat_rate", decimal.NewFromInt(120), decimal.Zero, decimal.NewFromInt(100), v)
	RangeDecimal("other_rate", decimal.NewFromInt(20), decimal.Zero, decimal.NewFromInt(100), v)

	assert.Equal(t, Violations{
		"contact_name": "required",
		"abbreviation": "too_long",
		"email":        "invalid_email",
		"quantity":     "must_be_positive",
		"vat_rate":     "out_of_range",
	}, v)
}

func TestAddKeepsFirstViolation(t *testing.T) {
	v := Violations{}
	Required("email", "", v)
	Email("email", "", v)
	v.Add("email", "invalid_email")
	assert.Equal(t, "required", v["email"])
}

func TestErr(t *testing.T) {
	assert.NoError(t, Violations{}.Err())

	err := Violations{"b": "required", "a": "too_long"}.Err()
	require.Error(t, err)
	assert.Equal(t, "validation failed: a=too_long, b=required", err.Error())

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "required", verr.Violations["b"])
}

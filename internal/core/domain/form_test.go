package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordForm_Validate(t *testing.T) {
	tests := []struct {
		name    string
		form    RecordForm
		wantErr error
	}{
		{"empty name", RecordForm{Name: "", Quantity: "1", Price: "1"}, ErrMissingFields},
		{"empty quantity", RecordForm{Name: "a", Quantity: "", Price: "1"}, ErrMissingFields},
		{"blank price", RecordForm{Name: "a", Quantity: "1", Price: "   "}, ErrMissingFields},
		{"non-integer quantity", RecordForm{Name: "a", Quantity: "1.5", Price: "1"}, ErrInvalidQuantity},
		{"negative quantity", RecordForm{Name: "a", Quantity: "-1", Price: "1"}, ErrInvalidQuantity},
		{"bad price", RecordForm{Name: "a", Quantity: "1", Price: "1,5"}, ErrInvalidPrice},
		{"negative price", RecordForm{Name: "a", Quantity: "1", Price: "-0.01"}, ErrInvalidPrice},
		{"quantity past int32", RecordForm{Name: "a", Quantity: "3000000000", Price: "1"}, ErrInvalidQuantity},
		{"quantity past int64", RecordForm{Name: "a", Quantity: "99999999999999999999", Price: "1"}, ErrInvalidQuantity},
		{"price past column", RecordForm{Name: "a", Quantity: "1", Price: "1000000000000"}, ErrInvalidPrice},
		{"price in exponent form", RecordForm{Name: "a", Quantity: "1", Price: "1e15"}, ErrInvalidPrice},
		{"price rounds past column", RecordForm{Name: "a", Quantity: "1", Price: "999999999999.999"}, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Validate()
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestRecordForm_ValidateTrimsAndRounds(t *testing.T) {
	in, err := RecordForm{Name: "  Widget ", Quantity: " 0 ", Price: "2.345"}.Validate()
	require.NoError(t, err)

	assert.Equal(t, "Widget", in.Name)
	assert.Equal(t, 0, in.Quantity)
	assert.Equal(t, "2.35", in.Price.StringFixed(2))
}

func TestRecordForm_ValidateAcceptsColumnLimits(t *testing.T) {
	in, err := RecordForm{Name: "bulk", Quantity: "2147483647", Price: "999999999999.99"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, in.Quantity)
	assert.True(t, MaxPrice.Equal(in.Price))
}

func TestRegisterInput_Validate(t *testing.T) {
	in, err := RegisterInput{Username: " bob ", Email: " bob@example.com ", Password: "123456"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, "bob", in.Username)
	assert.Equal(t, "bob@example.com", in.Email)

	_, err = RegisterInput{Username: "bob", Email: "bob@example.com", Password: "12345"}.Validate()
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.Equal(t, "password must be at least 6 characters", err.Error())
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@example.com", "x+tag@sub.domain.org"}
	invalid := []string{"", "plain", "a@b", "Bob <bob@example.com>", "@example.com"}

	for _, e := range valid {
		assert.True(t, ValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), e)
	}
}

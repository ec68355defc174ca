package domain

import (
	"errors"
	"math"
	"net/mail"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const MinPasswordLength = 6

// Column limits: quantity is a 32-bit INT and price a DECIMAL(14,2).
const MaxQuantity = math.MaxInt32

var MaxPrice = decimal.RequireFromString("999999999999.99")

// ValidationError carries a message that is safe to show to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	ErrMissingFields   = invalid("please fill all required fields")
	ErrInvalidQuantity = invalid("please enter a valid quantity")
	ErrInvalidPrice    = invalid("please enter a valid price")
	ErrMissingUsername = invalid("please enter a username")
	ErrInvalidEmail    = invalid("please enter a valid email address")
	ErrMissingEmail    = invalid("please enter your email address")
	ErrWeakPassword    = invalid("password must be at least 6 characters")
	ErrMissingPassword = invalid("please enter your password")
)

// RecordForm holds the raw fields of an add/edit inventory form.
type RecordForm struct {
	Name     string
	Quantity string
	Price    string
}

// RecordInput is a validated RecordForm.
type RecordInput struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

func (f RecordForm) Validate() (RecordInput, error) {
	name := strings.TrimSpace(f.Name)
	quantity := strings.TrimSpace(f.Quantity)
	price := strings.TrimSpace(f.Price)
	if name == "" || quantity == "" || price == "" {
		return RecordInput{}, ErrMissingFields
	}

	q, err := strconv.Atoi(quantity)
	if err != nil || q < 0 || q > MaxQuantity {
		return RecordInput{}, ErrInvalidQuantity
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return RecordInput{}, ErrInvalidPrice
	}
	p = p.Round(2)
	if p.IsNegative() || p.GreaterThan(MaxPrice) {
		return RecordInput{}, ErrInvalidPrice
	}

	return RecordInput{Name: name, Quantity: q, Price: p}, nil
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func (in RegisterInput) Validate() (RegisterInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return RegisterInput{}, ErrMissingUsername
	}
	if !ValidEmail(in.Email) {
		return RegisterInput{}, ErrInvalidEmail
	}
	if len(in.Password) < MinPasswordLength {
		return RegisterInput{}, ErrWeakPassword
	}
	return in, nil
}

// ValidEmail accepts a bare address such as "a@b.co", without a display name.
func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorSequenceExhausted is returned when a transaction number could not be
// allocated after the bounded number of attempts.
var ErrorSequenceExhausted = errors.New("transaction number sequence exhausted")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ValidationError carries per-field messages for request payloads that fail
// domain validation (as opposed to binding validation handled by gin).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError identifies the exact item and location that could
// not cover the requested quantity.
type InsufficientStockError struct {
	ProductId  int
	VariantId  int
	LocationId int
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d at location %d: requested %d, available %d",
		e.ProductId, e.LocationId, e.Requested, e.Available)
}

// PaymentMismatchError is returned when the sum of payment lines does not
// reconcile with the sale total within tolerance.
type PaymentMismatchError struct {
	Expected decimal.Decimal
	Supplied decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment total %s does not match sale total %s",
		e.Supplied.StringFixed(2), e.Expected.StringFixed(2))
}

func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

func IsPaymentMismatch(err error) bool {
	var target *PaymentMismatchError
	return errors.As(err, &target)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

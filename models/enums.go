package models

import (
	"errors"
)

type MovementType string

const (
	MovementTypeSale        MovementType = "sale"
	MovementTypePurchase    MovementType = "purchase"
	MovementTypeAdjustment  MovementType = "adjustment"
	MovementTypeTransferIn  MovementType = "transfer_in"
	MovementTypeTransferOut MovementType = "transfer_out"
	MovementTypeReturn      MovementType = "return"
	MovementTypeDamaged     MovementType = "damaged"
	MovementTypeExpired     MovementType = "expired"
)

// IsConsumption reports whether the movement type takes stock out of a
// location and must therefore respect the available quantity floor.
// Manual adjustments are exempt so corrections can set any target.
func (t MovementType) IsConsumption() bool {
	switch t {
	case MovementTypeSale, MovementTypeTransferOut, MovementTypeDamaged, MovementTypeExpired:
		return true
	}
	return false
}

// ManualEntry reports whether the movement type may be posted through the
// stock adjustment endpoint. Sale and transfer movements only ever come from
// their own documents.
func (t MovementType) ManualEntry() bool {
	switch t {
	case MovementTypePurchase, MovementTypeAdjustment, MovementTypeReturn,
		MovementTypeDamaged, MovementTypeExpired:
		return true
	}
	return false
}

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeSale, MovementTypePurchase, MovementTypeAdjustment,
		MovementTypeTransferIn, MovementTypeTransferOut, MovementTypeReturn,
		MovementTypeDamaged, MovementTypeExpired:
		return true
	}
	return false
}

func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(s)
	if !t.Valid() {
		return "", errors.New("invalid movement type")
	}
	return t, nil
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCheck    PaymentMethod = "check"
	PaymentMethodMobile   PaymentMethod = "mobile"
	PaymentMethodGiftCard PaymentMethod = "gift_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodCheck,
		PaymentMethodMobile, PaymentMethodGiftCard:
		return true
	}
	return false
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "P"
	DiscountTypeAmount     DiscountType = "A"
)

func (d DiscountType) Valid() bool {
	switch d {
	case DiscountTypePercentage, DiscountTypeAmount:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "A"
	UserRoleOwner   UserRole = "O"
	UserRoleCashier UserRole = "C"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleOwner, UserRoleCashier:
		return true
	}
	return false
}

// transaction number modules
const (
	ModuleNameSale       = "Sale"
	ModuleNameTransfer   = "Transfer"
	ModuleNameAdjustment = "Adjustment"
)

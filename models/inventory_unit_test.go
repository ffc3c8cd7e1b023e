package models

import (
	"context"
	"testing"

	"github.com/mmdatafocus/retailpos_backend/utils"
)

func TestMovementTypeIsConsumption(t *testing.T) {
	consuming := []MovementType{MovementTypeSale, MovementTypeTransferOut, MovementTypeDamaged, MovementTypeExpired}
	for _, m := range consuming {
		if !m.IsConsumption() {
			t.Fatalf("%q should be a consumption type", m)
		}
	}
	crediting := []MovementType{MovementTypePurchase, MovementTypeAdjustment, MovementTypeTransferIn, MovementTypeReturn}
	for _, m := range crediting {
		if m.IsConsumption() {
			t.Fatalf("%q should not be a consumption type", m)
		}
	}
}

func TestMovementTypeManualEntry(t *testing.T) {
	manual := []MovementType{MovementTypePurchase, MovementTypeAdjustment, MovementTypeReturn, MovementTypeDamaged, MovementTypeExpired}
	for _, m := range manual {
		if !m.ManualEntry() {
			t.Fatalf("%q should be allowed as a manual entry", m)
		}
	}
	posted := []MovementType{MovementTypeSale, MovementTypeTransferIn, MovementTypeTransferOut}
	for _, m := range posted {
		if m.ManualEntry() {
			t.Fatalf("%q must only come from its own document", m)
		}
	}
}

func TestAdjustStockRejectsPostedMovementTypes(t *testing.T) {
	ctx := utils.SetBusinessIdInContext(context.Background(), "biz-1")
	for _, movementType := range []string{"sale", "transfer_in", "transfer_out"} {
		_, err := AdjustStock(ctx, &NewStockAdjustment{
			LocationId:   1,
			ProductId:    1,
			MovementType: movementType,
			Qty:          1,
		})
		if !utils.IsValidationError(err) {
			t.Fatalf("AdjustStock(%q) = %v; want validation error", movementType, err)
		}
	}
}

func TestParseMovementType(t *testing.T) {
	m, err := ParseMovementType("transfer_out")
	if err != nil || m != MovementTypeTransferOut {
		t.Fatalf("ParseMovementType(transfer_out) = %q, %v", m, err)
	}
	if _, err := ParseMovementType("teleport"); err == nil {
		t.Fatalf("expected error for unknown movement type")
	}
}

func TestStockMovementSnapshotInvariant(t *testing.T) {
	ok := StockMovement{
		MovementType: MovementTypeSale,
		Qty:          -3,
		BeforeQty:    10,
		AfterQty:     7,
	}
	if err := ok.BeforeSave(nil); err != nil {
		t.Fatalf("consistent snapshot rejected: %v", err)
	}

	broken := StockMovement{
		MovementType: MovementTypeSale,
		Qty:          -3,
		BeforeQty:    10,
		AfterQty:     8,
	}
	if err := broken.BeforeSave(nil); err == nil {
		t.Fatalf("snapshot not matching delta must be rejected")
	}

	badType := StockMovement{
		MovementType: MovementType("teleport"),
		Qty:          1,
		BeforeQty:    0,
		AfterQty:     1,
	}
	if err := badType.BeforeSave(nil); err == nil {
		t.Fatalf("invalid movement type must be rejected")
	}
}

func TestFormatTransactionNumber(t *testing.T) {
	if got := formatTransactionNumber("SALE", "20260901", 7); got != "SALE-20260901-0007" {
		t.Fatalf("formatTransactionNumber = %q", got)
	}
	if got := formatTransactionNumber("TRF", "20260901", 9999); got != "TRF-20260901-9999" {
		t.Fatalf("formatTransactionNumber = %q", got)
	}
	// past 9999 the number widens instead of wrapping
	if got := formatTransactionNumber("ADJ", "20260901", 12345); got != "ADJ-20260901-12345" {
		t.Fatalf("formatTransactionNumber = %q", got)
	}
}

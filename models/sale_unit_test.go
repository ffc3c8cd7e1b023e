package models

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
)

func TestComputeSaleTotals(t *testing.T) {
	items := []NewSaleItem{
		{ProductId: 1, Qty: 2, UnitPrice: decimal.NewFromInt(1500), DiscountAmount: decimal.NewFromInt(100)},
		{ProductId: 2, Qty: 1, UnitPrice: decimal.RequireFromString("999.99")},
	}
	totals := ComputeSaleTotals(items, decimal.NewFromInt(50), DiscountTypeAmount, decimal.RequireFromString("75.25"))

	if totals.Subtotal.Cmp(decimal.RequireFromString("3999.99")) != 0 {
		t.Fatalf("subtotal = %s; want 3999.99", totals.Subtotal)
	}
	if totals.DiscountAmount.Cmp(decimal.NewFromInt(150)) != 0 {
		t.Fatalf("discount = %s; want 150", totals.DiscountAmount)
	}
	if totals.TaxAmount.Cmp(decimal.RequireFromString("75.25")) != 0 {
		t.Fatalf("tax = %s; want 75.25", totals.TaxAmount)
	}
	// total = subtotal - discounts + tax
	if totals.Total.Cmp(decimal.RequireFromString("3925.24")) != 0 {
		t.Fatalf("total = %s; want 3925.24", totals.Total)
	}
}

func TestComputeSaleTotalsEmpty(t *testing.T) {
	totals := ComputeSaleTotals(nil, decimal.Zero, DiscountTypeAmount, decimal.Zero)
	if !totals.Total.IsZero() || !totals.Subtotal.IsZero() {
		t.Fatalf("empty sale should total zero; got %+v", totals)
	}
}

func TestComputeSaleTotalsPercentDiscount(t *testing.T) {
	items := []NewSaleItem{
		{ProductId: 1, Qty: 2, UnitPrice: decimal.NewFromInt(1000)},
	}
	// 10% of the 2000 subtotal
	totals := ComputeSaleTotals(items, decimal.NewFromInt(10), DiscountTypePercentage, decimal.Zero)
	if totals.DiscountAmount.Cmp(decimal.NewFromInt(200)) != 0 {
		t.Fatalf("discount = %s; want 200", totals.DiscountAmount)
	}
	if totals.Total.Cmp(decimal.NewFromInt(1800)) != 0 {
		t.Fatalf("total = %s; want 1800", totals.Total)
	}

	// an empty discount type treats the header discount as a flat amount
	totals = ComputeSaleTotals(items, decimal.NewFromInt(10), "", decimal.Zero)
	if totals.DiscountAmount.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("flat discount = %s; want 10", totals.DiscountAmount)
	}
}

func TestReconcilePayments(t *testing.T) {
	total := decimal.RequireFromString("100.00")

	// exact
	tendered, err := ReconcilePayments(total, []NewSalePayment{
		{Method: "cash", Amount: decimal.NewFromInt(60)},
		{Method: "card", Amount: decimal.NewFromInt(40)},
	})
	if err != nil {
		t.Fatalf("exact payment rejected: %v", err)
	}
	if tendered.Cmp(total) != 0 {
		t.Fatalf("tendered = %s; want 100.00", tendered)
	}

	// within tolerance (one cent under)
	if _, err := ReconcilePayments(total, []NewSalePayment{
		{Method: "cash", Amount: decimal.RequireFromString("99.99")},
	}); err != nil {
		t.Fatalf("payment within tolerance rejected: %v", err)
	}

	// overpayment is fine when within tolerance of the total after change,
	// but a two cent shortfall is a mismatch
	_, err = ReconcilePayments(total, []NewSalePayment{
		{Method: "cash", Amount: decimal.RequireFromString("99.98")},
	})
	var mismatch *utils.PaymentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PaymentMismatchError; got %v", err)
	}
	if mismatch.Expected.Cmp(total) != 0 || mismatch.Supplied.Cmp(decimal.RequireFromString("99.98")) != 0 {
		t.Fatalf("mismatch carries wrong amounts: %+v", mismatch)
	}
}

func TestReceiptProjection(t *testing.T) {
	sale := &Sale{
		SaleNumber:     "SALE-20260901-0001",
		CustomerName:   "Walk-in",
		Subtotal:       decimal.RequireFromString("2000"),
		DiscountAmount: decimal.RequireFromString("100"),
		TaxAmount:      decimal.RequireFromString("95"),
		Total:          decimal.RequireFromString("1995"),
		TenderedAmount: decimal.RequireFromString("2000"),
		ChangeAmount:   decimal.RequireFromString("5"),
		Items: []SaleItem{
			{Name: "USB Cable", Sku: "ACC-00000101", Qty: 2, UnitPrice: decimal.NewFromInt(1000), LineTotal: decimal.NewFromInt(2000)},
		},
		Payments: []SalePayment{
			{Method: PaymentMethodCard, Amount: decimal.NewFromInt(1000), CardLast4: "4242"},
			{Method: PaymentMethodCash, Amount: decimal.NewFromInt(1000)},
		},
	}

	receipt := sale.Receipt()
	if receipt.SaleNumber != sale.SaleNumber {
		t.Fatalf("sale number = %q", receipt.SaleNumber)
	}
	if receipt.Total != "1995.00" || receipt.Subtotal != "2000.00" {
		t.Fatalf("amounts not fixed to 2 places: total=%q subtotal=%q", receipt.Total, receipt.Subtotal)
	}
	if len(receipt.Lines) != 1 || receipt.Lines[0].LineTotal != "2000.00" {
		t.Fatalf("unexpected lines: %+v", receipt.Lines)
	}
	// change is reported on the last payment line only
	if receipt.Payments[0].Change != "0.00" {
		t.Fatalf("first payment change = %q; want 0.00", receipt.Payments[0].Change)
	}
	if receipt.Payments[1].Change != "5.00" {
		t.Fatalf("last payment change = %q; want 5.00", receipt.Payments[1].Change)
	}

	// same sale, same receipt
	again := sale.Receipt()
	if receipt.Total != again.Total || len(receipt.Lines) != len(again.Lines) || receipt.Payments[1].Change != again.Payments[1].Change {
		t.Fatalf("receipt projection is not deterministic")
	}
}

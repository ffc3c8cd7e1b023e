package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
)

// PaymentTolerance is the currency epsilon allowed between the computed sale
// total and the summed payments, absorbing rounding on split tenders.
var PaymentTolerance = decimal.NewFromFloat(0.01)

type Sale struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"uniqueIndex:idx_sale_number;index;not null" json:"business_id"`
	LocationId     int             `gorm:"index;not null" json:"location_id"`
	SaleNumber     string          `gorm:"size:50;uniqueIndex:idx_sale_number;not null" json:"sale_number"`
	SalesPersonId  int             `gorm:"default:null" json:"sales_person_id"`
	CustomerName   string          `gorm:"size:100" json:"customer_name"`
	CustomerPhone  string          `gorm:"size:20" json:"customer_phone"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	TenderedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tendered_amount"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"change_amount"`
	Notes          string          `gorm:"type:text" json:"notes"`
	UserId         int             `gorm:"default:null" json:"user_id"`
	Items          []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	Payments       []SalePayment   `gorm:"foreignKey:SaleId" json:"payments"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (sale Sale) GetBusinessId() string {
	return sale.BusinessId
}

type SaleItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SaleId         int             `gorm:"index;not null" json:"sale_id"`
	ProductId      int             `gorm:"index;not null" json:"product_id"`
	VariantId      int             `gorm:"not null;default:0" json:"variant_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Sku            string          `gorm:"size:50" json:"sku"`
	Qty            int             `gorm:"not null" json:"qty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	CostPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	SerialNumbers  string          `gorm:"type:text" json:"serial_numbers"`
}

type SalePayment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SaleId       int             `gorm:"index;not null" json:"sale_id"`
	Method       PaymentMethod   `gorm:"type:enum('cash','card','check','mobile','gift_card');not null" json:"method"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CardLast4    string          `gorm:"size:4" json:"card_last4"`
	CheckNumber  string          `gorm:"size:50" json:"check_number"`
	ProcessorRef string          `gorm:"size:100" json:"processor_ref"`
}

type NewSale struct {
	LocationId     int              `json:"location_id" binding:"required"`
	SalesPersonId  int              `json:"sales_person_id"`
	CustomerName   string           `json:"customer_name"`
	CustomerPhone  string           `json:"customer_phone"`
	DiscountType   string           `json:"discount_type"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	Notes          string           `json:"notes"`
	Items          []NewSaleItem    `json:"items" binding:"required,dive"`
	Payments       []NewSalePayment `json:"payments" binding:"required,dive"`
}

type NewSaleItem struct {
	ProductId      int             `json:"product_id" binding:"required"`
	VariantId      int             `json:"variant_id"`
	Qty            int             `json:"qty" binding:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	SerialNumbers  []string        `json:"serial_numbers"`
}

type NewSalePayment struct {
	Method       string          `json:"method" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	CardLast4    string          `json:"card_last4"`
	CheckNumber  string          `json:"check_number"`
	ProcessorRef string          `json:"processor_ref"`
}

func (input *NewSale) validate(ctx context.Context, businessId string) error {
	if len(input.Items) == 0 {
		return utils.NewValidationError("items", "at least one line item is required")
	}
	if len(input.Payments) == 0 {
		return utils.NewValidationError("payments", "at least one payment is required")
	}
	if input.DiscountAmount.IsNegative() || input.TaxAmount.IsNegative() {
		return utils.NewValidationError("discount_amount", "header amounts must not be negative")
	}
	if input.DiscountType != "" && !DiscountType(input.DiscountType).Valid() {
		return utils.NewValidationError("discount_type", "unknown discount type")
	}
	if DiscountType(input.DiscountType) == DiscountTypePercentage &&
		input.DiscountAmount.GreaterThan(decimal.NewFromInt(100)) {
		return utils.NewValidationError("discount_amount", "percentage discount cannot exceed 100")
	}
	// location must exist and be active
	if err := validateActiveLocation(ctx, businessId, input.LocationId); err != nil {
		return err
	}
	// exists sales person
	if input.SalesPersonId > 0 {
		if err := utils.ValidateResourceId[User](ctx, businessId, input.SalesPersonId); err != nil {
			return fmt.Errorf("sales person %d: %w", input.SalesPersonId, utils.ErrorRecordNotFound)
		}
	}
	for _, item := range input.Items {
		if item.UnitPrice.LessThanOrEqual(decimal.Zero) {
			return utils.NewValidationError("unit_price", "unit price must be positive")
		}
		if item.DiscountAmount.IsNegative() {
			return utils.NewValidationError("discount_amount", "item discount must not be negative")
		}
		if err := validateStockableProduct(ctx, businessId, item.ProductId, item.VariantId); err != nil {
			return err
		}
	}
	for _, payment := range input.Payments {
		if !PaymentMethod(payment.Method).Valid() {
			return utils.NewValidationError("method", "invalid payment method")
		}
		if payment.Amount.LessThanOrEqual(decimal.Zero) {
			return utils.NewValidationError("amount", "payment amount must be positive")
		}
	}
	return nil
}

// SaleTotals holds the header arithmetic for one sale.
type SaleTotals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// ComputeSaleTotals derives header totals from the line items:
// subtotal is the undiscounted sum, discounts are line discounts plus the
// header discount, and total = subtotal - discounts + tax. A percentage
// header discount is resolved against the subtotal.
func ComputeSaleTotals(items []NewSaleItem, headerDiscount decimal.Decimal, discountType DiscountType, taxAmount decimal.Decimal) SaleTotals {
	var subtotal, lineDiscounts decimal.Decimal
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
		lineDiscounts = lineDiscounts.Add(item.DiscountAmount)
	}
	discountAmount := lineDiscounts.Add(utils.CalculateDiscountAmount(subtotal, headerDiscount, string(discountType)))
	return SaleTotals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		Total:          subtotal.Sub(discountAmount).Add(taxAmount),
	}
}

// ReconcilePayments checks the summed payments against the sale total within
// PaymentTolerance and returns the tendered amount.
func ReconcilePayments(total decimal.Decimal, payments []NewSalePayment) (decimal.Decimal, error) {
	var tendered decimal.Decimal
	for _, payment := range payments {
		tendered = tendered.Add(payment.Amount)
	}
	if tendered.Sub(total).Abs().GreaterThan(PaymentTolerance) {
		return decimal.Zero, &utils.PaymentMismatchError{Expected: total, Supplied: tendered}
	}
	return tendered, nil
}

// CreateSale runs one POS checkout: validation and payment reconciliation
// happen before any write; then one transaction locks each inventory row,
// decrements stock and persists the aggregate. Any line failure aborts the
// whole sale, leaving only a gap in the number sequence.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	// validate before any mutation
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	totals := ComputeSaleTotals(input.Items, input.DiscountAmount, DiscountType(input.DiscountType), input.TaxAmount)
	tendered, err := ReconcilePayments(totals.Total, input.Payments)
	if err != nil {
		return nil, err
	}

	changeAmount := tendered.Sub(totals.Total)
	if changeAmount.IsNegative() {
		changeAmount = decimal.Zero
	}

	var sale *Sale

	err = utils.WithConcurrencyRetry(func() error {
		releaseLock, err := utils.BusinessLock(ctx, businessId, "SaleLock", "Sale", "CreateSale")
		if err != nil {
			return err
		}
		defer releaseLock()

		tx := db.Begin().WithContext(ctx)

		saleNumber, err := NextTransactionNumber(tx, ctx, businessId, ModuleNameSale, time.Now())
		if err != nil {
			tx.Rollback()
			return err
		}

		var saleItems []SaleItem
		for _, item := range input.Items {
			product, variant, err := resolveCatalogItem(ctx, businessId, item.ProductId, item.VariantId)
			if err != nil {
				tx.Rollback()
				return err
			}

			inventory, err := LockInventory(tx, businessId, input.LocationId, item.ProductId, item.VariantId)
			if err != nil {
				tx.Rollback()
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return fmt.Errorf("product %d not provisioned at location %d: %w",
						item.ProductId, input.LocationId, utils.ErrorRecordNotFound)
				}
				return err
			}

			if _, err := AdjustInventory(tx, inventory, StockAdjustment{
				MovementType: MovementTypeSale,
				Qty:          -item.Qty,
				Reference:    saleNumber,
				UserId:       userId,
			}); err != nil {
				tx.Rollback()
				return err
			}

			// cost snapshot: location-level override wins over catalog cost
			costPrice := product.CostPrice
			if variant != nil {
				costPrice = variant.CostPrice
			}
			if inventory.CostPrice != nil {
				costPrice = *inventory.CostPrice
			}

			name := product.Name
			sku := product.Sku
			if variant != nil {
				name = variant.Name
				sku = variant.Sku
			}

			saleItems = append(saleItems, SaleItem{
				ProductId:      item.ProductId,
				VariantId:      item.VariantId,
				Name:           name,
				Sku:            sku,
				Qty:            item.Qty,
				UnitPrice:      item.UnitPrice,
				DiscountAmount: item.DiscountAmount,
				LineTotal:      item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))).Sub(item.DiscountAmount),
				CostPrice:      costPrice,
				SerialNumbers:  strings.Join(item.SerialNumbers, ","),
			})
		}

		var salePayments []SalePayment
		for _, payment := range input.Payments {
			salePayments = append(salePayments, SalePayment{
				Method:       PaymentMethod(payment.Method),
				Amount:       payment.Amount,
				CardLast4:    payment.CardLast4,
				CheckNumber:  payment.CheckNumber,
				ProcessorRef: payment.ProcessorRef,
			})
		}

		newSale := Sale{
			BusinessId:     businessId,
			LocationId:     input.LocationId,
			SaleNumber:     saleNumber,
			SalesPersonId:  input.SalesPersonId,
			CustomerName:   input.CustomerName,
			CustomerPhone:  input.CustomerPhone,
			Subtotal:       totals.Subtotal,
			DiscountAmount: totals.DiscountAmount,
			TaxAmount:      totals.TaxAmount,
			Total:          totals.Total,
			TenderedAmount: tendered,
			ChangeAmount:   changeAmount,
			Notes:          input.Notes,
			UserId:         userId,
			Items:          saleItems,
			Payments:       salePayments,
		}

		if err := tx.Create(&newSale).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}
		sale = &newSale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Sale](ctx, businessId, id, "Items", "Payments")
}

func ListSales(ctx context.Context, locationId int, fromDate *time.Time, toDate *time.Time) ([]*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", locationId)
	}
	if fromDate != nil {
		dbCtx = dbCtx.Where("created_at >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("created_at <= ?", toDate)
	}

	var results []*Sale
	if err := dbCtx.Preload("Items").Preload("Payments").
		Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Receipt is the flat projection printed at the register. It is derived
// deterministically from the persisted Sale; the same sale always yields the
// same receipt.
type Receipt struct {
	SaleNumber     string           `json:"sale_number"`
	CustomerName   string           `json:"customer_name"`
	Subtotal       string           `json:"subtotal"`
	DiscountAmount string           `json:"discount_amount"`
	TaxAmount      string           `json:"tax_amount"`
	Total          string           `json:"total"`
	TenderedAmount string           `json:"tendered_amount"`
	ChangeAmount   string           `json:"change_amount"`
	Lines          []ReceiptLine    `json:"lines"`
	Payments       []ReceiptPayment `json:"payments"`
}

type ReceiptLine struct {
	Name      string `json:"name"`
	Sku       string `json:"sku"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
	Discount  string `json:"discount"`
	LineTotal string `json:"line_total"`
}

type ReceiptPayment struct {
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	CardLast4 string `json:"card_last4"`
	Change    string `json:"change"`
}

func (sale *Sale) Receipt() Receipt {
	receipt := Receipt{
		SaleNumber:     sale.SaleNumber,
		CustomerName:   sale.CustomerName,
		Subtotal:       sale.Subtotal.StringFixed(2),
		DiscountAmount: sale.DiscountAmount.StringFixed(2),
		TaxAmount:      sale.TaxAmount.StringFixed(2),
		Total:          sale.Total.StringFixed(2),
		TenderedAmount: sale.TenderedAmount.StringFixed(2),
		ChangeAmount:   sale.ChangeAmount.StringFixed(2),
	}
	for _, item := range sale.Items {
		receipt.Lines = append(receipt.Lines, ReceiptLine{
			Name:      item.Name,
			Sku:       item.Sku,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Discount:  item.DiscountAmount.StringFixed(2),
			LineTotal: item.LineTotal.StringFixed(2),
		})
	}
	// change is reported on the last payment line only
	for i, payment := range sale.Payments {
		change := decimal.Zero
		if i == len(sale.Payments)-1 {
			change = sale.ChangeAmount
		}
		receipt.Payments = append(receipt.Payments, ReceiptPayment{
			Method:    string(payment.Method),
			Amount:    payment.Amount.StringFixed(2),
			CardLast4: payment.CardLast4,
			Change:    change.StringFixed(2),
		})
	}
	return receipt
}

// resolveCatalogItem loads the product and, when variantId is non-zero, the
// variant belonging to it.
func resolveCatalogItem(ctx context.Context, businessId string, productId int, variantId int) (*Product, *ProductVariant, error) {
	product, err := utils.FetchModel[Product](ctx, businessId, productId)
	if err != nil {
		return nil, nil, fmt.Errorf("product %d: %w", productId, utils.ErrorRecordNotFound)
	}
	if variantId == 0 {
		return product, nil, nil
	}
	variant, err := utils.FetchModel[ProductVariant](ctx, businessId, variantId)
	if err != nil || variant.ProductId != productId {
		return nil, nil, fmt.Errorf("product variant %d: %w", variantId, utils.ErrorRecordNotFound)
	}
	return product, variant, nil
}

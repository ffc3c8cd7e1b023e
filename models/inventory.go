package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Inventory is the authoritative stock record for one stockable unit at one
// location. VariantId is zero for plain products; a non-zero VariantId means
// the row tracks that variant and ProductId points at the parent product.
type Inventory struct {
	ID           int              `gorm:"primary_key" json:"id"`
	BusinessId   string           `gorm:"uniqueIndex:idx_inventory_unit;index;not null" json:"business_id"`
	LocationId   int              `gorm:"uniqueIndex:idx_inventory_unit;not null" json:"location_id"`
	ProductId    int              `gorm:"uniqueIndex:idx_inventory_unit;not null" json:"product_id"`
	VariantId    int              `gorm:"uniqueIndex:idx_inventory_unit;not null;default:0" json:"variant_id"`
	Quantity     int              `gorm:"not null;default:0" json:"quantity"`
	ReservedQty  int              `gorm:"not null;default:0" json:"reserved_qty"`
	AvailableQty int              `gorm:"not null;default:0" json:"available_qty"`
	CostPrice    *decimal.Decimal `gorm:"type:decimal(20,4);default:null" json:"cost_price"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (inv Inventory) GetBusinessId() string {
	return inv.BusinessId
}

// StockMovement is an append-only audit entry. Rows are created inside the
// same transaction as the inventory mutation they describe and are never
// updated or deleted afterwards.
type StockMovement struct {
	ID           int          `gorm:"primary_key" json:"id"`
	BusinessId   string       `gorm:"index;not null" json:"business_id"`
	InventoryId  int          `gorm:"index:idx_movement_inventory;not null" json:"inventory_id"`
	MovementType MovementType `gorm:"type:enum('sale','purchase','adjustment','transfer_in','transfer_out','return','damaged','expired');not null" json:"movement_type"`
	Qty          int          `gorm:"not null" json:"qty"`
	BeforeQty    int          `gorm:"not null" json:"before_qty"`
	AfterQty     int          `gorm:"not null" json:"after_qty"`
	Reference    string       `gorm:"size:100;index" json:"reference"`
	Reason       string       `gorm:"size:255" json:"reason"`
	Notes        string       `gorm:"type:text" json:"notes"`
	UserId       int          `gorm:"default:null" json:"user_id"`
	CreatedAt    time.Time    `gorm:"autoCreateTime;index:idx_movement_inventory" json:"created_at"`
}

// BeforeSave enforces internal invariants for the movement ledger.
// The before/after snapshot must agree with the signed delta; reconciliation
// jobs replay movements and a broken snapshot poisons every later balance.
func (m *StockMovement) BeforeSave(tx *gorm.DB) error {
	if m == nil {
		return nil
	}
	if m.AfterQty != m.BeforeQty+m.Qty {
		return errors.New("stock movement snapshot does not match delta")
	}
	if !m.MovementType.Valid() {
		return errors.New("invalid movement type")
	}
	return nil
}

// StockAdjustment describes one mutation to apply to an inventory row.
// When AbsoluteQty is set the delta is computed from the row's current
// quantity (manual correction); otherwise Qty is the signed delta.
type StockAdjustment struct {
	MovementType MovementType
	Qty          int
	AbsoluteQty  *int
	Reference    string
	Reason       string
	Notes        string
	UserId       int
}

// LockInventory fetches the inventory row under FOR UPDATE so the caller's
// check-then-decrement sequence cannot interleave with a concurrent writer.
func LockInventory(tx *gorm.DB, businessId string, locationId int, productId int, variantId int) (*Inventory, error) {
	var inventory Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
			businessId, locationId, productId, variantId).
		First(&inventory).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &inventory, nil
}

// FirstOrCreateInventory locks the row if present, otherwise creates it with
// a zero baseline. Used by credit-side flows (purchase, transfer_in) where a
// missing destination record is not an error.
func FirstOrCreateInventory(tx *gorm.DB, businessId string, locationId int, productId int, variantId int) (*Inventory, bool, error) {
	isNew := false
	inventory := Inventory{
		BusinessId: businessId,
		LocationId: locationId,
		ProductId:  productId,
		VariantId:  variantId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND location_id = ? AND product_id = ? AND variant_id = ?",
			businessId, locationId, productId, variantId).
		FirstOrCreate(&inventory)
	if result.Error != nil {
		return nil, isNew, result.Error
	}
	if result.RowsAffected == 1 {
		isNew = true
	}
	return &inventory, isNew, nil
}

// AdjustInventory applies one quantity change to a locked inventory row and
// writes the matching StockMovement. The caller owns the transaction; on
// error the caller must roll back.
func AdjustInventory(tx *gorm.DB, inventory *Inventory, adjustment StockAdjustment) (*StockMovement, error) {
	delta := adjustment.Qty
	if adjustment.AbsoluteQty != nil {
		delta = *adjustment.AbsoluteQty - inventory.Quantity
	}

	if adjustment.MovementType.IsConsumption() && inventory.AvailableQty+delta < 0 {
		return nil, &utils.InsufficientStockError{
			ProductId:  inventory.ProductId,
			VariantId:  inventory.VariantId,
			LocationId: inventory.LocationId,
			Requested:  -delta,
			Available:  inventory.AvailableQty,
		}
	}

	beforeQty := inventory.Quantity

	if err := tx.Exec("UPDATE inventories SET quantity = quantity + ?, available_qty = available_qty + ? WHERE id = ?",
		delta, delta, inventory.ID).Error; err != nil {
		return nil, err
	}
	inventory.Quantity += delta
	inventory.AvailableQty += delta

	movement := StockMovement{
		BusinessId:   inventory.BusinessId,
		InventoryId:  inventory.ID,
		MovementType: adjustment.MovementType,
		Qty:          delta,
		BeforeQty:    beforeQty,
		AfterQty:     inventory.Quantity,
		Reference:    adjustment.Reference,
		Reason:       adjustment.Reason,
		Notes:        adjustment.Notes,
		UserId:       adjustment.UserId,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}

	return &movement, nil
}

// ReserveInventory holds qty for pending fulfillment. Total quantity is
// untouched; only the reserved/available split moves.
func ReserveInventory(tx *gorm.DB, inventory *Inventory, qty int) error {
	if qty <= 0 {
		return errors.New("reserve qty must be positive")
	}
	if inventory.AvailableQty < qty {
		return &utils.InsufficientStockError{
			ProductId:  inventory.ProductId,
			VariantId:  inventory.VariantId,
			LocationId: inventory.LocationId,
			Requested:  qty,
			Available:  inventory.AvailableQty,
		}
	}
	if err := tx.Exec("UPDATE inventories SET reserved_qty = reserved_qty + ?, available_qty = available_qty - ? WHERE id = ?",
		qty, qty, inventory.ID).Error; err != nil {
		return err
	}
	inventory.ReservedQty += qty
	inventory.AvailableQty -= qty
	return nil
}

// ReleaseInventory returns previously reserved qty to the available pool.
func ReleaseInventory(tx *gorm.DB, inventory *Inventory, qty int) error {
	if qty <= 0 {
		return errors.New("release qty must be positive")
	}
	if inventory.ReservedQty < qty {
		return errors.New("release qty exceeds reserved qty")
	}
	if err := tx.Exec("UPDATE inventories SET reserved_qty = reserved_qty - ?, available_qty = available_qty + ? WHERE id = ?",
		qty, qty, inventory.ID).Error; err != nil {
		return err
	}
	inventory.ReservedQty -= qty
	inventory.AvailableQty += qty
	return nil
}

// TransferInventory debits the source row and credits the destination row as
// one step. Rows are locked in ascending location-id order so two transfers
// running in opposite directions cannot deadlock on each other.
func TransferInventory(tx *gorm.DB, businessId string, fromLocationId int, toLocationId int, productId int, variantId int, qty int, reference string, userId int) error {
	if fromLocationId == toLocationId {
		return utils.NewValidationError("to_location_id", "source and destination must differ")
	}
	if qty <= 0 {
		return utils.NewValidationError("qty", "transfer qty must be positive")
	}

	var source, destination *Inventory
	var err error

	if fromLocationId < toLocationId {
		source, err = LockInventory(tx, businessId, fromLocationId, productId, variantId)
		if err != nil {
			return err
		}
		destination, _, err = FirstOrCreateInventory(tx, businessId, toLocationId, productId, variantId)
		if err != nil {
			return err
		}
	} else {
		destination, _, err = FirstOrCreateInventory(tx, businessId, toLocationId, productId, variantId)
		if err != nil {
			return err
		}
		source, err = LockInventory(tx, businessId, fromLocationId, productId, variantId)
		if err != nil {
			return err
		}
	}

	if _, err := AdjustInventory(tx, source, StockAdjustment{
		MovementType: MovementTypeTransferOut,
		Qty:          -qty,
		Reference:    reference,
		UserId:       userId,
	}); err != nil {
		return err
	}
	if _, err := AdjustInventory(tx, destination, StockAdjustment{
		MovementType: MovementTypeTransferIn,
		Qty:          qty,
		Reference:    reference,
		UserId:       userId,
	}); err != nil {
		return err
	}
	return nil
}

type NewStockAdjustment struct {
	LocationId   int    `json:"location_id" binding:"required"`
	ProductId    int    `json:"product_id" binding:"required"`
	VariantId    int    `json:"variant_id"`
	MovementType string `json:"movement_type" binding:"required"`
	Qty          int    `json:"qty"`
	AbsoluteQty  *int   `json:"absolute_qty"`
	Reason       string `json:"reason"`
	Notes        string `json:"notes"`
}

// AdjustStock is the manual correction entry point. It allocates an
// adjustment number, locks (or creates) the inventory row and applies the
// delta or absolute target inside one transaction.
func AdjustStock(ctx context.Context, input *NewStockAdjustment) (*Inventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	movementType, err := ParseMovementType(input.MovementType)
	if err != nil {
		return nil, utils.NewValidationError("movement_type", err.Error())
	}
	if !movementType.ManualEntry() {
		return nil, utils.NewValidationError("movement_type", "movement type is reserved for posted documents")
	}
	if input.AbsoluteQty == nil && input.Qty == 0 {
		return nil, utils.NewValidationError("qty", "qty or absolute_qty is required")
	}
	if err := utils.ValidateResourceId[Location](ctx, businessId, input.LocationId); err != nil {
		return nil, fmt.Errorf("location %d: %w", input.LocationId, utils.ErrorRecordNotFound)
	}
	if err := validateStockableProduct(ctx, businessId, input.ProductId, input.VariantId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var result *Inventory

	err = utils.WithConcurrencyRetry(func() error {
		tx := db.Begin().WithContext(ctx)

		number, err := NextTransactionNumber(tx, ctx, businessId, ModuleNameAdjustment, time.Now())
		if err != nil {
			tx.Rollback()
			return err
		}

		inventory, _, err := FirstOrCreateInventory(tx, businessId, input.LocationId, input.ProductId, input.VariantId)
		if err != nil {
			tx.Rollback()
			return err
		}

		if _, err := AdjustInventory(tx, inventory, StockAdjustment{
			MovementType: movementType,
			Qty:          input.Qty,
			AbsoluteQty:  input.AbsoluteQty,
			Reference:    number,
			Reason:       input.Reason,
			Notes:        input.Notes,
			UserId:       userId,
		}); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}
		result = inventory
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetInventory(ctx context.Context, id int) (*Inventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Inventory](ctx, businessId, id)
}

func ListInventory(ctx context.Context, locationId int) ([]*Inventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Location](ctx, businessId, locationId); err != nil {
		return nil, fmt.Errorf("location %d: %w", locationId, utils.ErrorRecordNotFound)
	}

	db := config.GetDB()
	var results []*Inventory
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("location_id = ?", locationId).
		Order("product_id, variant_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListStockMovements returns the movement history of one inventory row,
// newest first.
func ListStockMovements(ctx context.Context, inventoryId int) ([]*StockMovement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Inventory](ctx, businessId, inventoryId); err != nil {
		return nil, fmt.Errorf("inventory record %d: %w", inventoryId, utils.ErrorRecordNotFound)
	}

	db := config.GetDB()
	var movements []*StockMovement
	if err := db.WithContext(ctx).
		Where("business_id = ? AND inventory_id = ?", businessId, inventoryId).
		Order("created_at DESC, id DESC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// RebuildInventoryBalances recomputes quantity from the movement ledger for
// every inventory row of one business. Used by the offline rebuild tool to
// repair drift; reserved quantities are preserved.
func RebuildInventoryBalances(ctx context.Context, businessId string) (int, error) {
	db := config.GetDB()
	repaired := 0

	var inventories []Inventory
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).Find(&inventories).Error; err != nil {
		return 0, err
	}

	for _, inventory := range inventories {
		var ledgerQty *int
		if err := db.WithContext(ctx).Model(&StockMovement{}).
			Select("SUM(qty)").
			Where("business_id = ? AND inventory_id = ?", businessId, inventory.ID).
			Scan(&ledgerQty).Error; err != nil {
			return repaired, err
		}
		total := 0
		if ledgerQty != nil {
			total = *ledgerQty
		}
		if total == inventory.Quantity {
			continue
		}
		if err := db.WithContext(ctx).Exec(
			"UPDATE inventories SET quantity = ?, available_qty = ? - reserved_qty WHERE id = ?",
			total, total, inventory.ID).Error; err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

func validateStockableProduct(ctx context.Context, businessId string, productId int, variantId int) error {
	if err := utils.ValidateResourceId[Product](ctx, businessId, productId); err != nil {
		return fmt.Errorf("product %d: %w", productId, utils.ErrorRecordNotFound)
	}
	if variantId > 0 {
		db := config.GetDB()
		var count int64
		if err := db.WithContext(ctx).Model(&ProductVariant{}).
			Where("business_id = ? AND id = ? AND product_id = ?", businessId, variantId, productId).
			Count(&count).Error; err != nil {
			return err
		}
		if count <= 0 {
			return fmt.Errorf("product variant %d: %w", variantId, utils.ErrorRecordNotFound)
		}
	}
	return nil
}

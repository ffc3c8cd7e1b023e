package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
)

type TransferOrder struct {
	ID             int                   `gorm:"primary_key" json:"id"`
	BusinessId     string                `gorm:"uniqueIndex:idx_transfer_number;index;not null" json:"business_id"`
	TransferNumber string                `gorm:"size:50;uniqueIndex:idx_transfer_number;not null" json:"transfer_number"`
	FromLocationId int                   `gorm:"index;not null" json:"from_location_id"`
	ToLocationId   int                   `gorm:"index;not null" json:"to_location_id"`
	Notes          string                `gorm:"type:text" json:"notes"`
	UserId         int                   `gorm:"default:null" json:"user_id"`
	Details        []TransferOrderDetail `gorm:"foreignKey:TransferOrderId" json:"details"`
	CreatedAt      time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

func (order TransferOrder) GetBusinessId() string {
	return order.BusinessId
}

type TransferOrderDetail struct {
	ID              int `gorm:"primary_key" json:"id"`
	TransferOrderId int `gorm:"index;not null" json:"transfer_order_id"`
	ProductId       int `gorm:"index;not null" json:"product_id"`
	VariantId       int `gorm:"not null;default:0" json:"variant_id"`
	Qty             int `gorm:"not null" json:"qty"`
}

type NewTransferOrder struct {
	FromLocationId int                    `json:"from_location_id" binding:"required"`
	ToLocationId   int                    `json:"to_location_id" binding:"required"`
	Notes          string                 `json:"notes"`
	Details        []NewTransferOrderItem `json:"details" binding:"required,dive"`
}

type NewTransferOrderItem struct {
	ProductId int `json:"product_id" binding:"required"`
	VariantId int `json:"variant_id"`
	Qty       int `json:"qty" binding:"required,gt=0"`
}

func (input *NewTransferOrder) validate(ctx context.Context, businessId string) error {
	if input.FromLocationId == input.ToLocationId {
		return utils.NewValidationError("to_location_id", "source and destination must differ")
	}
	if len(input.Details) == 0 {
		return utils.NewValidationError("details", "at least one item is required")
	}
	// locations must exist and be active
	if err := validateActiveLocation(ctx, businessId, input.FromLocationId); err != nil {
		return err
	}
	if err := validateActiveLocation(ctx, businessId, input.ToLocationId); err != nil {
		return err
	}
	for _, item := range input.Details {
		if err := validateStockableProduct(ctx, businessId, item.ProductId, item.VariantId); err != nil {
			return err
		}
	}
	return nil
}

// CreateTransferOrder moves stock between two locations as one atomic
// multi-item transfer. Each item yields one transfer_out and one transfer_in
// movement sharing the transfer number; any item failure rolls back them all.
func CreateTransferOrder(ctx context.Context, input *NewTransferOrder) (*TransferOrder, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	var order *TransferOrder

	err := utils.WithConcurrencyRetry(func() error {
		releaseLock, err := utils.BusinessLock(ctx, businessId, "TransferLock", "TransferOrder", "CreateTransferOrder")
		if err != nil {
			return err
		}
		defer releaseLock()

		tx := db.Begin().WithContext(ctx)

		transferNumber, err := NextTransactionNumber(tx, ctx, businessId, ModuleNameTransfer, time.Now())
		if err != nil {
			tx.Rollback()
			return err
		}

		var details []TransferOrderDetail
		for _, item := range input.Details {
			if err := TransferInventory(tx, businessId, input.FromLocationId, input.ToLocationId,
				item.ProductId, item.VariantId, item.Qty, transferNumber, userId); err != nil {
				tx.Rollback()
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return fmt.Errorf("product %d not provisioned at location %d: %w",
						item.ProductId, input.FromLocationId, utils.ErrorRecordNotFound)
				}
				return err
			}
			details = append(details, TransferOrderDetail{
				ProductId: item.ProductId,
				VariantId: item.VariantId,
				Qty:       item.Qty,
			})
		}

		newOrder := TransferOrder{
			BusinessId:     businessId,
			TransferNumber: transferNumber,
			FromLocationId: input.FromLocationId,
			ToLocationId:   input.ToLocationId,
			Notes:          input.Notes,
			UserId:         userId,
			Details:        details,
		}
		if err := tx.Create(&newOrder).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}
		order = &newOrder
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func GetTransferOrder(ctx context.Context, id int) (*TransferOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[TransferOrder](ctx, businessId, id, "Details")
}

func ListTransferOrders(ctx context.Context, locationId int) ([]*TransferOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId > 0 {
		dbCtx = dbCtx.Where("(from_location_id = ? OR to_location_id = ?)", locationId, locationId)
	}

	var results []*TransferOrder
	if err := dbCtx.Preload("Details").Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

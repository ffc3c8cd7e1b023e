package models

import (
	"context"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"gorm.io/gorm"
)

// default records created when a business is provisioned. All of these
// run inside the caller's transaction and roll it back on failure.

func CreateDefaultTransactionNumberSeries(tx *gorm.DB, ctx context.Context, businessId string) (*TransactionNumberSeries, error) {
	series := TransactionNumberSeries{
		BusinessId: businessId,
		Name:       "Default Series",
		Modules: []TransactionNumberSeriesModule{
			{ModuleName: ModuleNameSale, Prefix: "SALE"},
			{ModuleName: ModuleNameTransfer, Prefix: "TRF"},
			{ModuleName: ModuleNameAdjustment, Prefix: "ADJ"},
		},
	}
	if err := tx.WithContext(ctx).Create(&series).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := config.RemoveRedisKey("tnsPrefixMap:" + businessId); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &series, nil
}

func CreateDefaultLocation(tx *gorm.DB, ctx context.Context, businessId string) (*Location, error) {
	location := Location{
		BusinessId: businessId,
		Name:       "Main Store",
		IsActive:   utils.NewTrue(),
	}
	if err := tx.WithContext(ctx).Create(&location).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return &location, nil
}

func CreateDefaultOwner(tx *gorm.DB, ctx context.Context, businessId string, username string, name string) (*User, error) {
	hashed, err := utils.HashPassword("default123")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	user := User{
		BusinessId: businessId,
		Username:   username,
		Name:       name,
		Password:   hashed,
		Role:       UserRoleOwner,
		IsActive:   utils.NewTrue(),
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return &user, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
)

type Location struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone      string    `gorm:"size:20" json:"phone"`
	Mobile     string    `gorm:"size:20" json:"mobile"`
	Address    string    `gorm:"type:text" json:"address"`
	Country    string    `gorm:"size:100"  json:"country"`
	City       string    `gorm:"size:100"  json:"city"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (location Location) GetBusinessId() string {
	return location.BusinessId
}

type NewLocation struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewLocation) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Location](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return err
		}
		if err := utils.ValidateUnique[Location](ctx, businessId, "phone", input.Phone, id); err != nil {
			return err
		}
	}
	// mobile
	if len(strings.TrimSpace(input.Mobile)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return err
		}
		if err := utils.ValidateUnique[Location](ctx, businessId, "mobile", input.Mobile, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	location := Location{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Mobile:     input.Mobile,
		Address:    input.Address,
		Country:    input.Country,
		City:       input.City,
		IsActive:   utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func UpdateLocation(ctx context.Context, id int, input *NewLocation) (*Location, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[Location](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Phone":   input.Phone,
		"Mobile":  input.Mobile,
		"Address": input.Address,
		"Country": input.Country,
		"City":    input.City,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Location](id); err != nil {
		return nil, err
	}

	return location, nil
}

func DeleteLocation(ctx context.Context, id int) (*Location, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Location](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if location is used
	var count int64
	if err := db.WithContext(ctx).Model(&Inventory{}).
		Where("location_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("location has stock")
	}

	// db action
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Location](id); err != nil {
		return nil, err
	}
	return result, nil
}

// validateActiveLocation checks existence and the active flag. Posting
// operations (sales, transfers) call this; manual corrections only require
// existence.
func validateActiveLocation(ctx context.Context, businessId string, id int) error {
	location, err := utils.FetchModel[Location](ctx, businessId, id)
	if err != nil {
		return fmt.Errorf("location %d: %w", id, utils.ErrorRecordNotFound)
	}
	if location.IsActive != nil && !*location.IsActive {
		return utils.NewValidationError("location_id", "location is inactive")
	}
	return nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return GetResource[Location](ctx, id)
}

func ListLocations(ctx context.Context, name *string) ([]*Location, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Location

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveLocation(ctx context.Context, id int, isActive bool) (*Location, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Location](ctx, businessId, id, isActive)
}

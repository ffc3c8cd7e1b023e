package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
)

type ProductCategory struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (category ProductCategory) GetBusinessId() string {
	return category.BusinessId
}

type NewProductCategory struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewProductCategory) validate(ctx context.Context, businessId string, id int) error {
	// name
	return utils.ValidateUnique[ProductCategory](ctx, businessId, "name", input.Name, id)
}

func CreateProductCategory(ctx context.Context, input *NewProductCategory) (*ProductCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	category := ProductCategory{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductCategory](businessId); err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateProductCategory(ctx context.Context, id int, input *NewProductCategory) (*ProductCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	category, err := utils.FetchModel[ProductCategory](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&category).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[ProductCategory](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductCategory](businessId); err != nil {
		return nil, err
	}

	return category, nil
}

func DeleteProductCategory(ctx context.Context, id int) (*ProductCategory, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[ProductCategory](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// check if category is used
	var count int64
	if err := db.WithContext(ctx).Model(&Product{}).
		Where("category_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("category has products")
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[ProductCategory](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductCategory](businessId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetProductCategory(ctx context.Context, id int) (*ProductCategory, error) {
	return GetResource[ProductCategory](ctx, id)
}

func ListProductCategories(ctx context.Context, name *string) ([]*ProductCategory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*ProductCategory

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

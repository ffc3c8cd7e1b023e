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

type Product struct {
	ID          int              `gorm:"primary_key" json:"id"`
	BusinessId  string           `gorm:"index;not null" json:"business_id"`
	CategoryId  int              `gorm:"index" json:"category_id"`
	Name        string           `gorm:"size:255;not null" json:"name" binding:"required"`
	Brand       string           `gorm:"size:100" json:"brand"`
	Sku         string           `gorm:"size:50;index;not null" json:"sku"`
	Barcode     string           `gorm:"size:50;index" json:"barcode"`
	Description string           `gorm:"type:text" json:"description"`
	SalesPrice  decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	CostPrice   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	IsActive    *bool            `gorm:"not null;default:true" json:"is_active"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductId" json:"variants"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (product Product) GetBusinessId() string {
	return product.BusinessId
}

type ProductVariant struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	ProductId  int             `gorm:"index;not null" json:"product_id"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	Sku        string          `gorm:"size:50;index;not null" json:"sku"`
	Barcode    string          `gorm:"size:50;index" json:"barcode"`
	SalesPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (variant ProductVariant) GetBusinessId() string {
	return variant.BusinessId
}

type NewProduct struct {
	CategoryId  int                 `json:"category_id"`
	Name        string              `json:"name" binding:"required"`
	Brand       string              `json:"brand"`
	Sku         string              `json:"sku"`
	Barcode     string              `json:"barcode"`
	Description string              `json:"description"`
	SalesPrice  decimal.Decimal     `json:"sales_price"`
	CostPrice   decimal.Decimal     `json:"cost_price"`
	Variants    []NewProductVariant `json:"variants"`
}

type NewProductVariant struct {
	Name       string          `json:"name" binding:"required"`
	Sku        string          `json:"sku"`
	Barcode    string          `json:"barcode"`
	SalesPrice decimal.Decimal `json:"sales_price"`
	CostPrice  decimal.Decimal `json:"cost_price"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewProduct) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// exists category
	if input.CategoryId > 0 {
		if err := utils.ValidateResourceId[ProductCategory](ctx, businessId, input.CategoryId); err != nil {
			return fmt.Errorf("category %d: %w", input.CategoryId, utils.ErrorRecordNotFound)
		}
	}
	// barcode must carry a valid check digit
	if strings.TrimSpace(input.Barcode) != "" {
		if result := utils.ValidateBarcode(input.Barcode); !result.IsValid {
			return utils.NewValidationError("barcode", "invalid barcode")
		}
	}
	for _, variant := range input.Variants {
		if strings.TrimSpace(variant.Barcode) != "" {
			if result := utils.ValidateBarcode(variant.Barcode); !result.IsValid {
				return utils.NewValidationError("barcode", "invalid variant barcode")
			}
		}
	}
	if input.SalesPrice.IsNegative() || input.CostPrice.IsNegative() {
		return utils.NewValidationError("sales_price", "prices must not be negative")
	}
	return nil
}

const skuProbeAttempts = 5

// resolveSku keeps a caller-supplied SKU (after a uniqueness check) or
// synthesizes one. Collisions are handled here by probing with a perturbed
// prefix; the codec itself never silently changes its output.
func resolveSku(ctx context.Context, businessId string, supplied string, opts utils.SkuOptions) (string, error) {
	if strings.TrimSpace(supplied) != "" {
		if err := utils.ValidateUnique[Product](ctx, businessId, "sku", supplied, 0); err != nil {
			return "", err
		}
		return supplied, nil
	}

	for attempt := 0; attempt < skuProbeAttempts; attempt++ {
		sku := utils.GenerateSku(opts)
		if err := utils.ValidateUnique[Product](ctx, businessId, "sku", sku, 0); err == nil {
			return sku, nil
		}
		// perturb the input and try again
		opts.CustomPrefix = sku[:3] + string(rune('A'+attempt))
	}
	return "", errors.New("could not generate a unique sku")
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	categoryName := ""
	if input.CategoryId > 0 {
		category, err := GetProductCategory(ctx, input.CategoryId)
		if err == nil {
			categoryName = category.Name
		}
	}

	sku, err := resolveSku(ctx, businessId, input.Sku, utils.SkuOptions{
		Name:     input.Name,
		Brand:    input.Brand,
		Category: categoryName,
	})
	if err != nil {
		return nil, err
	}

	var variants []ProductVariant
	for _, v := range input.Variants {
		variantSku, err := resolveSku(ctx, businessId, v.Sku, utils.SkuOptions{
			Name:  v.Name,
			Brand: input.Brand,
		})
		if err != nil {
			return nil, err
		}
		variants = append(variants, ProductVariant{
			BusinessId: businessId,
			Name:       v.Name,
			Sku:        variantSku,
			Barcode:    v.Barcode,
			SalesPrice: v.SalesPrice,
			CostPrice:  v.CostPrice,
			IsActive:   utils.NewTrue(),
		})
	}

	product := Product{
		BusinessId:  businessId,
		CategoryId:  input.CategoryId,
		Name:        input.Name,
		Brand:       input.Brand,
		Sku:         sku,
		Barcode:     input.Barcode,
		Description: input.Description,
		SalesPrice:  input.SalesPrice,
		CostPrice:   input.CostPrice,
		IsActive:    utils.NewTrue(),
		Variants:    variants,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&product).Updates(map[string]interface{}{
		"CategoryId":  input.CategoryId,
		"Name":        input.Name,
		"Brand":       input.Brand,
		"Barcode":     input.Barcode,
		"Description": input.Description,
		"SalesPrice":  input.SalesPrice,
		"CostPrice":   input.CostPrice,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}

	return product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[Product](ctx, businessId, id, "Variants")
	if err != nil {
		return nil, err
	}

	// check if product has stock anywhere
	var count int64
	if err := db.WithContext(ctx).Model(&Inventory{}).
		Where("product_id = ? AND quantity <> 0", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product has stock")
	}

	if err := db.WithContext(ctx).Select("Variants").Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return GetResource[Product](ctx, id, "Variants")
}

func ListProducts(ctx context.Context, name *string) ([]*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Product

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Preload("Variants").Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindProductByBarcode resolves a scanned code to a product or variant.
func FindProductByBarcode(ctx context.Context, barcode string) (*Product, *ProductVariant, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var product Product
	err := db.WithContext(ctx).Where("business_id = ? AND barcode = ?", businessId, barcode).
		First(&product).Error
	if err == nil {
		return &product, nil, nil
	}

	var variant ProductVariant
	err = db.WithContext(ctx).Where("business_id = ? AND barcode = ?", businessId, barcode).
		First(&variant).Error
	if err != nil {
		return nil, nil, utils.ErrorRecordNotFound
	}
	parent, err := utils.FetchModel[Product](ctx, businessId, variant.ProductId)
	if err != nil {
		return nil, nil, err
	}
	return parent, &variant, nil
}

func ToggleActiveProduct(ctx context.Context, id int, isActive bool) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return ToggleActiveModel[Product](ctx, businessId, id, isActive)
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"gorm.io/gorm"
)

type TransactionNumberSeries struct {
	ID         int                             `gorm:"primary_key" json:"id"`
	BusinessId string                          `gorm:"index;not null" json:"business_id"`
	Name       string                          `gorm:"size:100;not null" json:"name" binding:"required"`
	Modules    []TransactionNumberSeriesModule `gorm:"foreignKey:SeriesId" json:"modules"`
	CreatedAt  time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (series TransactionNumberSeries) GetBusinessId() string {
	return series.BusinessId
}

type TransactionNumberSeriesModule struct {
	SeriesId   int    `gorm:"primaryKey;autoIncrement:false" json:"series_id" binding:"required"`
	ModuleName string `gorm:"primaryKey;autoIncrement:false" json:"module_name" binding:"required"`
	Prefix     string `gorm:"size:10" json:"prefix"`
}

// TransactionNumber records one issued number. The unique index on the
// formatted number, scoped per business since different tenants legally
// issue the same string, is what makes concurrent allocation safe: two
// transactions that read the same max sequence collide on insert and the
// loser retries.
type TransactionNumber struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"uniqueIndex:idx_txn_number_scope;uniqueIndex:idx_txn_number_formatted;index;not null" json:"business_id"`
	ModuleName      string    `gorm:"uniqueIndex:idx_txn_number_scope;size:50;not null" json:"module_name"`
	DateKey         string    `gorm:"uniqueIndex:idx_txn_number_scope;size:8;not null" json:"date_key"`
	SequenceNo      int       `gorm:"uniqueIndex:idx_txn_number_scope;not null" json:"sequence_no"`
	FormattedNumber string    `gorm:"uniqueIndex:idx_txn_number_formatted;size:50;not null" json:"formatted_number"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

var defaultModulePrefixes = map[string]string{
	ModuleNameSale:       "SALE",
	ModuleNameTransfer:   "TRF",
	ModuleNameAdjustment: "ADJ",
}

// formatTransactionNumber pads sequence numbers to 4 digits. Scopes that
// pass 9999 in one day widen to however many digits they need.
func formatTransactionNumber(prefix string, dateKey string, sequenceNo int) string {
	if sequenceNo > 9999 {
		return fmt.Sprintf("%s-%s-%d", prefix, dateKey, sequenceNo)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, dateKey, sequenceNo)
}

const sequenceAllocationAttempts = 3

// NextTransactionNumber allocates the next number for (business, module,
// date) inside the caller's transaction. It reads the current max sequence
// under FOR UPDATE, then inserts the allocation row; a duplicate-key error
// from a concurrent allocator triggers a bounded retry. Numbers issued for
// transactions that later roll back leave gaps, which is accepted.
func NextTransactionNumber(tx *gorm.DB, ctx context.Context, businessId string, moduleName string, date time.Time) (string, error) {
	prefix, err := getTransactionPrefix(ctx, businessId, moduleName)
	if err != nil {
		return "", err
	}
	dateKey := date.Format("20060102")

	for attempt := 1; attempt <= sequenceAllocationAttempts; attempt++ {
		var maxSeq int
		if err := tx.WithContext(ctx).Raw(
			"SELECT COALESCE(MAX(sequence_no), 0) FROM transaction_numbers WHERE business_id = ? AND module_name = ? AND date_key = ? FOR UPDATE",
			businessId, moduleName, dateKey).Scan(&maxSeq).Error; err != nil {
			return "", err
		}

		sequenceNo := maxSeq + 1
		allocation := TransactionNumber{
			BusinessId:      businessId,
			ModuleName:      moduleName,
			DateKey:         dateKey,
			SequenceNo:      sequenceNo,
			FormattedNumber: formatTransactionNumber(prefix, dateKey, sequenceNo),
		}
		err := tx.WithContext(ctx).Create(&allocation).Error
		if err == nil {
			return allocation.FormattedNumber, nil
		}
		if !utils.IsDuplicateKey(err) {
			return "", err
		}
	}
	return "", utils.ErrorSequenceExhausted
}

// get transactionPrefix for module, redis or db
func getTransactionPrefix(ctx context.Context, businessId string, moduleName string) (string, error) {
	transactionPrefixes := make(map[string]string, 0) // moduleName => prefix
	redisKey := "tnsPrefixMap:" + businessId
	exists, err := config.GetRedisObject(redisKey, &transactionPrefixes)
	if err != nil {
		return "", err
	}
	if !exists {
		// retrieves moduleName:prefix map of the business from db
		db := config.GetDB()
		var seriesId int
		if err := db.WithContext(ctx).Model(&TransactionNumberSeries{}).
			Where("business_id = ?", businessId).Select("id").Limit(1).Scan(&seriesId).Error; err != nil {
			return "", err
		}
		var tnsModules []*TransactionNumberSeriesModule
		if err := db.WithContext(ctx).Model(&TransactionNumberSeriesModule{}).
			Where("series_id = ?", seriesId).Find(&tnsModules).Error; err != nil {
			return "", err
		}

		for _, modulePrefix := range tnsModules {
			transactionPrefixes[modulePrefix.ModuleName] = modulePrefix.Prefix
		}
		if err := config.SetRedisObject(redisKey, &transactionPrefixes, 0); err != nil {
			return "", err
		}
	}

	prefix, ok := transactionPrefixes[moduleName]
	if !ok || prefix == "" {
		prefix, ok = defaultModulePrefixes[moduleName]
		if !ok {
			return "", errors.New("invalid module name")
		}
	}
	return prefix, nil
}

type NewTransactionNumberSeries struct {
	Name    string                             `json:"name" binding:"required"`
	Modules []NewTransactionNumberSeriesModule `json:"modules"`
}

type NewTransactionNumberSeriesModule struct {
	ModuleName string `json:"module_name" binding:"required"`
	Prefix     string `json:"prefix"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewTransactionNumberSeries) validate(ctx context.Context, businessId string, id int) error {
	// name
	if err := utils.ValidateUnique[TransactionNumberSeries](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	for _, m := range input.Modules {
		if _, ok := defaultModulePrefixes[m.ModuleName]; !ok {
			return errors.New("invalid module name: " + m.ModuleName)
		}
	}
	return nil
}

func mapTransactionNumberSeriesModule(input []NewTransactionNumberSeriesModule) []TransactionNumberSeriesModule {
	modules := make([]TransactionNumberSeriesModule, 0)
	for _, m := range input {
		modules = append(modules, TransactionNumberSeriesModule{
			ModuleName: m.ModuleName,
			Prefix:     m.Prefix,
		})
	}
	return modules
}

func CreateTransactionNumberSeries(ctx context.Context, input *NewTransactionNumberSeries) (*TransactionNumberSeries, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// validate name
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	series := TransactionNumberSeries{
		BusinessId: businessId,
		Name:       input.Name,
		Modules:    mapTransactionNumberSeriesModule(input.Modules),
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&series).Error; err != nil {
		return nil, err
	}
	// prefixes changed, drop the cached map
	if err := config.RemoveRedisKey("tnsPrefixMap:" + businessId); err != nil {
		return nil, err
	}
	return &series, nil
}

func GetTransactionNumberSeries(ctx context.Context, id int) (*TransactionNumberSeries, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[TransactionNumberSeries](ctx, businessId, id, "Modules")
}

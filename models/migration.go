package models

import (
	"github.com/mmdatafocus/retailpos_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Business{},
		&User{},
		&Location{},
		&ProductCategory{},
		&Product{},
		&ProductVariant{},
		&Inventory{},
		&StockMovement{},
		&TransactionNumberSeries{},
		&TransactionNumberSeriesModule{},
		&TransactionNumber{},
		&Sale{},
		&SaleItem{},
		&SalePayment{},
		&TransferOrder{},
		&TransferOrderDetail{},
	)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "Migration", "MigrateTable", "auto migrate", nil, err)
		panic(err)
	}
}

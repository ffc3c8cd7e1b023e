// inventory-rebuild recomputes inventory quantities from the stock movement
// log. Use it after manual data repairs or suspected drift between the
// balances and the append-only movement history.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... go run ./cmd/inventory-rebuild --business-id <uuid>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/models"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, *businessID)
	ctx = utils.SetUserNameInContext(ctx, "InventoryRebuild")

	repaired, err := models.RebuildInventoryBalances(ctx, *businessID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"business_id": *businessID,
		}).Error("rebuild failed: " + err.Error())
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"business_id": *businessID,
		"repaired":    repaired,
	}).Info("inventory rebuild complete")
	fmt.Printf("repaired %d inventory rows\n", repaired)
}

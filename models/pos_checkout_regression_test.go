package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/retailpos_backend/config"
	"github.com/mmdatafocus/retailpos_backend/models"
	"github.com/mmdatafocus/retailpos_backend/utils"
	"github.com/shopspring/decimal"
)

func TestCheckoutTransferAndSequenceFlow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retailpos_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	// Register a tenant; defaults include one location, one number series
	// and an owner user.
	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:      "Test Store",
		Email:     "owner@test.local",
		OwnerName: "Owner",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	var main models.Location
	if err := db.WithContext(ctx).Where("business_id = ? AND name = ?", businessID, "Main Store").First(&main).Error; err != nil {
		t.Fatalf("fetch default location: %v", err)
	}

	branch, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Branch Store"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	stapler, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:       "Stapler",
		Brand:      "ACME",
		SalesPrice: decimal.NewFromInt(1000),
		CostPrice:  decimal.NewFromInt(600),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if !regexp.MustCompile(`^ACM-\d{8}$`).MatchString(stapler.Sku) {
		t.Fatalf("unexpected generated sku %q", stapler.Sku)
	}

	// Receive 25 units at the main store.
	inv, err := models.AdjustStock(ctx, &models.NewStockAdjustment{
		LocationId:   main.ID,
		ProductId:    stapler.ID,
		MovementType: "purchase",
		Qty:          25,
		Reason:       "initial receipt",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if inv.Quantity != 25 || inv.AvailableQty != 25 {
		t.Fatalf("expected 25/25 after receipt; got %d/%d", inv.Quantity, inv.AvailableQty)
	}

	// Sell 10.
	sale, err := models.CreateSale(ctx, &models.NewSale{
		LocationId: main.ID,
		Items: []models.NewSaleItem{
			{ProductId: stapler.ID, Qty: 10, UnitPrice: decimal.NewFromInt(1000)},
		},
		Payments: []models.NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(10000)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if !strings.HasPrefix(sale.SaleNumber, "SALE-") {
		t.Fatalf("unexpected sale number %q", sale.SaleNumber)
	}
	if sale.Total.Cmp(decimal.NewFromInt(10000)) != 0 {
		t.Fatalf("sale total = %s; want 10000", sale.Total)
	}

	inv, err = models.GetInventory(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Quantity != 15 {
		t.Fatalf("expected quantity 15 after sale; got %d", inv.Quantity)
	}

	// Two concurrent sales of 10 against 15 available: exactly one must win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.CreateSale(ctx, &models.NewSale{
				LocationId: main.ID,
				Items: []models.NewSaleItem{
					{ProductId: stapler.ID, Qty: 10, UnitPrice: decimal.NewFromInt(1000)},
				},
				Payments: []models.NewSalePayment{
					{Method: "cash", Amount: decimal.NewFromInt(10000)},
				},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, e := range errs {
		if e == nil {
			succeeded++
		} else if !utils.IsInsufficientStock(e) {
			t.Fatalf("loser failed with unexpected error: %v", e)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one concurrent sale to succeed; got %d (errs=%v)", succeeded, errs)
	}

	inv, err = models.GetInventory(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Quantity != 5 {
		t.Fatalf("expected quantity 5 after concurrent sales; got %d", inv.Quantity)
	}

	// A failed oversell must leave no movements behind.
	movementsBefore := countMovements(t, ctx, inv.ID)
	_, err = models.CreateSale(ctx, &models.NewSale{
		LocationId: main.ID,
		Items: []models.NewSaleItem{
			{ProductId: stapler.ID, Qty: 99, UnitPrice: decimal.NewFromInt(1000)},
		},
		Payments: []models.NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(99000)},
		},
	})
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected InsufficientStockError; got %v", err)
	}
	if after := countMovements(t, ctx, inv.ID); after != movementsBefore {
		t.Fatalf("failed sale wrote movements: before=%d after=%d", movementsBefore, after)
	}

	// Missing records map onto the not-found sentinel so the API can answer 404.
	_, err = models.AdjustStock(ctx, &models.NewStockAdjustment{
		LocationId:   999999,
		ProductId:    stapler.ID,
		MovementType: "purchase",
		Qty:          1,
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not-found for unknown location; got %v", err)
	}

	mouse, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:       "Mouse",
		Brand:      "ACME",
		SalesPrice: decimal.NewFromInt(500),
		CostPrice:  decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	_, err = models.CreateSale(ctx, &models.NewSale{
		LocationId: main.ID,
		Items: []models.NewSaleItem{
			{ProductId: mouse.ID, Qty: 1, UnitPrice: decimal.NewFromInt(500)},
		},
		Payments: []models.NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(500)},
		},
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not-found for unprovisioned product; got %v", err)
	}

	// Same-location transfer is rejected before any mutation.
	_, err = models.CreateTransferOrder(ctx, &models.NewTransferOrder{
		FromLocationId: main.ID,
		ToLocationId:   main.ID,
		Details:        []models.NewTransferOrderItem{{ProductId: stapler.ID, Qty: 1}},
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error for same-location transfer; got %v", err)
	}

	// Move the remaining 5 units to the branch.
	order, err := models.CreateTransferOrder(ctx, &models.NewTransferOrder{
		FromLocationId: main.ID,
		ToLocationId:   branch.ID,
		Details:        []models.NewTransferOrderItem{{ProductId: stapler.ID, Qty: 5}},
	})
	if err != nil {
		t.Fatalf("CreateTransferOrder: %v", err)
	}
	if !strings.HasPrefix(order.TransferNumber, "TRF-") {
		t.Fatalf("unexpected transfer number %q", order.TransferNumber)
	}

	inv, err = models.GetInventory(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Quantity != 0 {
		t.Fatalf("expected source quantity 0 after transfer; got %d", inv.Quantity)
	}
	var branchInv models.Inventory
	if err := db.WithContext(ctx).
		Where("business_id = ? AND location_id = ? AND product_id = ?", businessID, branch.ID, stapler.ID).
		First(&branchInv).Error; err != nil {
		t.Fatalf("fetch branch inventory: %v", err)
	}
	if branchInv.Quantity != 5 || branchInv.AvailableQty != 5 {
		t.Fatalf("expected 5/5 at branch; got %d/%d", branchInv.Quantity, branchInv.AvailableQty)
	}

	// Concurrent adjustments must never share a number.
	numbers := concurrentAdjustmentNumbers(t, ctx, branch.ID, stapler.ID, 3)
	seen := map[string]bool{}
	for _, n := range numbers {
		if seen[n] {
			t.Fatalf("duplicate transaction number issued: %q", n)
		}
		seen[n] = true
	}

	// Reservations move only the reserved/available split; total quantity
	// stays with the ledger.
	branchInvId := mustInventoryId(t, ctx, branch.ID, stapler.ID)
	tx := db.Begin()
	row, err := models.LockInventory(tx, businessID, branch.ID, stapler.ID, 0)
	if err != nil {
		t.Fatalf("LockInventory: %v", err)
	}
	if err := models.ReserveInventory(tx, row, 3); err != nil {
		t.Fatalf("ReserveInventory: %v", err)
	}
	if err := models.ReserveInventory(tx, row, 99); !utils.IsInsufficientStock(err) {
		tx.Rollback()
		t.Fatalf("over-reserve should fail with insufficient stock; got %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit reservation: %v", err)
	}

	reserved, err := models.GetInventory(ctx, branchInvId)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if reserved.ReservedQty != 3 || reserved.AvailableQty != reserved.Quantity-3 {
		t.Fatalf("expected reserved 3 and available = quantity - reserved; got %+v", reserved)
	}

	// A sale larger than the unreserved remainder must lose to the hold.
	_, err = models.CreateSale(ctx, &models.NewSale{
		LocationId: branch.ID,
		Items: []models.NewSaleItem{
			{ProductId: stapler.ID, Qty: reserved.AvailableQty + 1, UnitPrice: decimal.NewFromInt(1000)},
		},
		Payments: []models.NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(int64((reserved.AvailableQty + 1) * 1000))},
		},
	})
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("sale into reserved stock should fail; got %v", err)
	}

	// Rebuild recomputes quantity from movements and leaves the hold alone.
	repaired, err := models.RebuildInventoryBalances(ctx, businessID)
	if err != nil {
		t.Fatalf("RebuildInventoryBalances: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("consistent ledger should need no repair; repaired %d rows", repaired)
	}
	reserved, err = models.GetInventory(ctx, branchInvId)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if reserved.ReservedQty != 3 {
		t.Fatalf("rebuild must preserve reservations; got %+v", reserved)
	}

	tx = db.Begin()
	row, err = models.LockInventory(tx, businessID, branch.ID, stapler.ID, 0)
	if err != nil {
		t.Fatalf("LockInventory: %v", err)
	}
	if err := models.ReleaseInventory(tx, row, 99); err == nil {
		tx.Rollback()
		t.Fatalf("releasing more than reserved must fail")
	}
	if err := models.ReleaseInventory(tx, row, 3); err != nil {
		t.Fatalf("ReleaseInventory: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit release: %v", err)
	}
	released, err := models.GetInventory(ctx, branchInvId)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if released.ReservedQty != 0 || released.AvailableQty != released.Quantity {
		t.Fatalf("release should restore the full available pool; got %+v", released)
	}

	// A second tenant runs its own daily sequence: its first sale today gets
	// the same formatted number the first tenant already used.
	ctxB := utils.SetUserIdInContext(context.Background(), 1)
	bizB, err := models.CreateBusiness(ctxB, &models.NewBusiness{
		Name:      "Second Store",
		Email:     "owner@second.local",
		OwnerName: "Owner",
	})
	if err != nil {
		t.Fatalf("CreateBusiness (second tenant): %v", err)
	}
	ctxB = utils.SetBusinessIdInContext(ctxB, bizB.ID.String())

	var mainB models.Location
	if err := db.WithContext(ctxB).
		Where("business_id = ? AND name = ?", bizB.ID.String(), "Main Store").
		First(&mainB).Error; err != nil {
		t.Fatalf("fetch second tenant location: %v", err)
	}
	widget, err := models.CreateProduct(ctxB, &models.NewProduct{
		Name:       "Widget",
		Brand:      "ACME",
		SalesPrice: decimal.NewFromInt(1000),
		CostPrice:  decimal.NewFromInt(700),
	})
	if err != nil {
		t.Fatalf("CreateProduct (second tenant): %v", err)
	}
	if _, err := models.AdjustStock(ctxB, &models.NewStockAdjustment{
		LocationId:   mainB.ID,
		ProductId:    widget.ID,
		MovementType: "purchase",
		Qty:          5,
	}); err != nil {
		t.Fatalf("AdjustStock (second tenant): %v", err)
	}
	saleB, err := models.CreateSale(ctxB, &models.NewSale{
		LocationId: mainB.ID,
		Items: []models.NewSaleItem{
			{ProductId: widget.ID, Qty: 1, UnitPrice: decimal.NewFromInt(1000)},
		},
		Payments: []models.NewSalePayment{
			{Method: "cash", Amount: decimal.NewFromInt(1000)},
		},
	})
	if err != nil {
		t.Fatalf("second tenant's first sale must not collide with the first tenant's numbers: %v", err)
	}
	if saleB.SaleNumber != sale.SaleNumber {
		t.Fatalf("second tenant sale number = %q; want %q (sequences are per tenant)", saleB.SaleNumber, sale.SaleNumber)
	}
}

func countMovements(t *testing.T, ctx context.Context, inventoryId int) int {
	t.Helper()
	movements, err := models.ListStockMovements(ctx, inventoryId)
	if err != nil {
		t.Fatalf("ListStockMovements: %v", err)
	}
	return len(movements)
}

func concurrentAdjustmentNumbers(t *testing.T, ctx context.Context, locationId int, productId int, n int) []string {
	t.Helper()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.AdjustStock(ctx, &models.NewStockAdjustment{
				LocationId:   locationId,
				ProductId:    productId,
				MovementType: "purchase",
				Qty:          1,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent adjustment: %v", err)
		}
	}

	// pull the adjustment references straight from the movement log
	refs := map[string]bool{}
	movements, err := models.ListStockMovements(ctx, mustInventoryId(t, ctx, locationId, productId))
	if err != nil {
		t.Fatalf("ListStockMovements: %v", err)
	}
	out := make([]string, 0, n)
	for _, m := range movements {
		if m.MovementType != models.MovementTypePurchase || !strings.HasPrefix(m.Reference, "ADJ-") {
			continue
		}
		if !refs[m.Reference] {
			refs[m.Reference] = true
			out = append(out, m.Reference)
		}
	}
	if len(out) < n {
		t.Fatalf("expected %d distinct adjustment numbers; got %d", n, len(out))
	}
	return out
}

func mustInventoryId(t *testing.T, ctx context.Context, locationId int, productId int) int {
	t.Helper()
	rows, err := models.ListInventory(ctx, locationId)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	for _, row := range rows {
		if row.ProductId == productId {
			return row.ID
		}
	}
	t.Fatalf("no inventory row for product %d at location %d", productId, locationId)
	return 0
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retailpos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retailpos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retailpos_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

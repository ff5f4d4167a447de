package refdata

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"posfeed/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func testResolver() *Resolver {
	r := NewResolver()
	r.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestStoreResolveOrCreate(t *testing.T) {
	db := setupTestDB(t)
	r := testResolver()

	store, err := r.Store(db, "001", StoreSeed{})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if store.Name != "Store 001" {
		t.Fatalf("expected placeholder name, got %q", store.Name)
	}

	// A second sighting with richer seed data must not overwrite the row.
	again, err := r.Store(db, "001", StoreSeed{Name: "Main Street", City: "Springfield"})
	if err != nil {
		t.Fatalf("resolve store: %v", err)
	}
	if again.Name != "Store 001" || again.City != "" {
		t.Fatalf("existing store was overwritten: %+v", again)
	}

	var count int64
	if err := db.Model(&models.Store{}).Count(&count).Error; err != nil {
		t.Fatalf("count stores: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 store, got %d", count)
	}
}

func TestStoreRequiresCode(t *testing.T) {
	db := setupTestDB(t)
	if _, err := testResolver().Store(db, "  ", StoreSeed{}); err == nil {
		t.Fatal("expected error for blank store code")
	}
}

func TestDepartmentClassifiedOnceAtCreation(t *testing.T) {
	db := setupTestDB(t)
	r := testResolver()

	dept, err := r.Department(db, 7, "Unleaded Fuel", "fuel")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	if !dept.IsFuel {
		t.Fatal("expected fuel flag at creation")
	}

	// A later sighting with a conflicting name must not re-flag the row.
	again, err := r.Department(db, 7, "Lottery", "gaming")
	if err != nil {
		t.Fatalf("resolve department: %v", err)
	}
	if again.Name != "Unleaded Fuel" || again.IsLottery || !again.IsFuel {
		t.Fatalf("department was re-classified: %+v", again)
	}
}

func TestDepartmentPlaceholderName(t *testing.T) {
	db := setupTestDB(t)
	dept, err := testResolver().Department(db, 42, "", "")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	if dept.Name != "Department 42" {
		t.Fatalf("expected placeholder name, got %q", dept.Name)
	}
}

func TestRefreshDepartmentFillsPlaceholderOnly(t *testing.T) {
	db := setupTestDB(t)
	r := testResolver()

	dept, err := r.Department(db, 42, "", "")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	if err := r.RefreshDepartment(db, dept, "Car Wash", "norm"); err != nil {
		t.Fatalf("refresh department: %v", err)
	}

	var loaded models.Department
	if err := db.First(&loaded, "department_id = ?", 42).Error; err != nil {
		t.Fatalf("load department: %v", err)
	}
	if loaded.Name != "Car Wash" || !loaded.IsCarWash {
		t.Fatalf("refresh did not apply: %+v", loaded)
	}

	// The refresh path is one-shot: a named department stays as it is.
	if err := r.RefreshDepartment(db, &loaded, "Fuel", "fuel"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if err := db.First(&loaded, "department_id = ?", 42).Error; err != nil {
		t.Fatalf("reload department: %v", err)
	}
	if loaded.Name != "Car Wash" || loaded.IsFuel {
		t.Fatalf("named department was re-flagged: %+v", loaded)
	}
}

func TestProductCreatedFlagAndAvailability(t *testing.T) {
	db := setupTestDB(t)
	r := testResolver()

	retail := decimal.NullDecimal{Decimal: decimal.RequireFromString("1.99"), Valid: true}
	product, created, err := r.Product(db, 1234567890, ProductSeed{
		Description: "Cola 12oz",
		RetailPrice: retail,
		Source:      "123456",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !created {
		t.Fatal("expected created flag on first sighting")
	}
	if product.RetailPriceAvail != "Y" || product.CostAvail != "N" {
		t.Fatalf("availability flags wrong: %+v", product)
	}
	if product.CreatedBy != "posfeed" {
		t.Fatalf("expected creator stamp, got %q", product.CreatedBy)
	}

	_, created, err = r.Product(db, 1234567890, ProductSeed{Description: "Different"})
	if err != nil {
		t.Fatalf("resolve product: %v", err)
	}
	if created {
		t.Fatal("expected created=false on second sighting")
	}
}

func TestTerminalNaturalKey(t *testing.T) {
	db := setupTestDB(t)
	r := testResolver()

	first, err := r.Terminal(db, "001", 2, "register")
	if err != nil {
		t.Fatalf("create terminal: %v", err)
	}
	second, err := r.Terminal(db, "001", 2, "")
	if err != nil {
		t.Fatalf("resolve terminal: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one terminal row, got %s and %s", first.ID, second.ID)
	}

	other, err := r.Terminal(db, "001", 3, "")
	if err != nil {
		t.Fatalf("create second terminal: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("distinct registers must get distinct rows")
	}
}

// Package refdata materialises reference entities (stores, departments,
// products, terminals) by natural key inside a caller-supplied transaction.
// Every operation is resolve-or-create: an insert-on-conflict-do-nothing
// followed by a lookup, so duplicate-creation races cannot violate the
// natural-key uniqueness even if record processing is ever parallelised.
package refdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"posfeed/classify"
	"posfeed/models"
)

// Resolver resolves reference data against the open transaction it is
// handed. Keyword sets and the clock are injectable for tests.
type Resolver struct {
	Keywords classify.Keywords
	Now      func() time.Time
	Creator  string
}

// NewResolver constructs a resolver with default keyword sets.
func NewResolver() *Resolver {
	return &Resolver{
		Keywords: classify.DefaultKeywords(),
		Now:      time.Now,
		Creator:  "posfeed",
	}
}

// StoreSeed carries the optional attributes available at first sight of a
// store code.
type StoreSeed struct {
	Name     string
	Address  string
	Address2 string
	City     string
	State    string
	Zip      string
}

// Store resolves a store by code, creating it with the seed data when
// absent. Existing rows are returned unchanged.
func (r *Resolver) Store(tx *gorm.DB, code string, seed StoreSeed) (*models.Store, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("refdata: store code is required")
	}
	name := seed.Name
	if name == "" {
		name = fmt.Sprintf("Store %s", code)
	}
	row := models.Store{
		Code:     code,
		Name:     name,
		Address:  seed.Address,
		Address2: seed.Address2,
		City:     seed.City,
		State:    seed.State,
		Zip:      seed.Zip,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("refdata: create store %s: %w", code, err)
	}
	var store models.Store
	if err := tx.First(&store, "store_id = ?", code).Error; err != nil {
		return nil, fmt.Errorf("refdata: load store %s: %w", code, err)
	}
	return &store, nil
}

// Department resolves a department by numeric id, classifying the name/type
// pair exactly once at creation. Later sightings with a different name or
// type do not re-flag the department.
func (r *Resolver) Department(tx *gorm.DB, id int64, name, deptType string) (*models.Department, error) {
	if name == "" {
		name = fmt.Sprintf("Department %d", id)
	}
	c := classify.Classify(r.Keywords, name, deptType)
	row := models.Department{
		ID:        id,
		Name:      name,
		Type:      deptType,
		IsFuel:    c.IsFuel,
		IsCarWash: c.IsCarWash,
		IsLottery: c.IsLottery,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("refdata: create department %d: %w", id, err)
	}
	var dept models.Department
	if err := tx.First(&dept, "department_id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("refdata: load department %d: %w", id, err)
	}
	return &dept, nil
}

// RefreshDepartment is the explicit update path for a department created
// before its name was known: it fills in the name/type pair and re-derives
// the classification flags. Departments that already carry a name are left
// untouched.
func (r *Resolver) RefreshDepartment(tx *gorm.DB, dept *models.Department, name, deptType string) error {
	if dept == nil || name == "" {
		return nil
	}
	if dept.Name != "" && !strings.HasPrefix(dept.Name, "Department ") {
		return nil
	}
	c := classify.Classify(r.Keywords, name, deptType)
	updates := map[string]any{
		"department_name":        name,
		"department_type":        deptType,
		"is_fuel_department":     c.IsFuel,
		"is_car_wash_department": c.IsCarWash,
		"is_lottery_department":  c.IsLottery,
	}
	if err := tx.Model(dept).Updates(updates).Error; err != nil {
		return fmt.Errorf("refdata: refresh department %d: %w", dept.ID, err)
	}
	return nil
}

// ProductSeed carries the attributes available when a product is first
// referenced, typically from a transaction line rather than a catalog.
type ProductSeed struct {
	DepartmentID *int64
	Description  string
	Cost         decimal.NullDecimal
	RetailPrice  decimal.NullDecimal
	Source       string
}

// Product resolves a pricebook entry by UPC, creating it lazily with the
// seed data. The created flag lets callers distinguish catalog-known
// products from ones first seen on a transaction line.
func (r *Resolver) Product(tx *gorm.DB, upc int64, seed ProductSeed) (*models.Product, bool, error) {
	desc := seed.Description
	if desc == "" {
		desc = fmt.Sprintf("Product %d", upc)
	}
	row := models.Product{
		UPC:              upc,
		DepartmentID:     seed.DepartmentID,
		Description:      desc,
		Cost:             seed.Cost,
		RetailPrice:      seed.RetailPrice,
		CostAvail:        availFlag(seed.Cost),
		RetailPriceAvail: availFlag(seed.RetailPrice),
		Source:           seed.Source,
		CreatedBy:        r.Creator,
		CreationDate:     r.Now(),
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("refdata: create product %d: %w", upc, res.Error)
	}
	created := res.RowsAffected > 0
	var product models.Product
	if err := tx.First(&product, "upc_id = ?", upc).Error; err != nil {
		return nil, false, fmt.Errorf("refdata: load product %d: %w", upc, err)
	}
	return &product, created, nil
}

// Terminal resolves a register by its (store, register) pair.
func (r *Resolver) Terminal(tx *gorm.DB, storeCode string, register int64, deviceType string) (*models.Terminal, error) {
	row := models.Terminal{
		ID:         uuid.New(),
		StoreCode:  storeCode,
		Register:   register,
		DeviceType: deviceType,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("refdata: create terminal %s/%d: %w", storeCode, register, err)
	}
	var terminal models.Terminal
	if err := tx.First(&terminal, "store_id = ? AND register_id = ?", storeCode, register).Error; err != nil {
		return nil, fmt.Errorf("refdata: load terminal %s/%d: %w", storeCode, register, err)
	}
	return &terminal, nil
}

func availFlag(d decimal.NullDecimal) string {
	if d.Valid && d.Decimal.IsPositive() {
		return "Y"
	}
	return "N"
}

package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"posfeed/parsedoc"
	"posfeed/refdata"
)

// defaultFuelDepartment is the conventional department number fuel feeds
// fall back to when they carry no department of their own.
const defaultFuelDepartment = 999

// FuelNormalizer ingests fuel-control files. The same semantic record
// arrives under different root names depending on the vendor and schema
// generation; each alternative is tried in a fixed priority order and the
// first present wins.
type FuelNormalizer struct {
	Resolver *refdata.Resolver
	Log      *slog.Logger
	Now      func() time.Time
}

// NewFuelNormalizer wires a fuel normalizer with defaults.
func NewFuelNormalizer(resolver *refdata.Resolver, log *slog.Logger) *FuelNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &FuelNormalizer{Resolver: resolver, Log: log, Now: time.Now}
}

func (n *FuelNormalizer) Kind() string { return "FCF" }

// Process handles the namespaced price-level period layout and the two
// legacy layouts. A file carrying none of the known roots is structurally
// invalid.
func (n *FuelNormalizer) Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error) {
	res := Result{Kind: n.Kind()}
	matched := false

	if period := doc.First("pd:prpricelvlpd", "prpricelvlpd"); period != nil {
		matched = true
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return n.processPriceLevelPeriod(tx, period)
		})
		if err != nil {
			n.Log.Error("price level period failed", "err", err)
			res.Errors++
		} else {
			res.Processed++
		}
	}

	if entries := doc.First("fuelcontrol", "fuel"); entries != nil {
		matched = true
		for _, entry := range asList(entries) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return n.processFuelEntry(tx, entry)
			})
			if err != nil {
				n.Log.Error("fuel entry failed", "err", err)
				res.Errors++
				continue
			}
			res.Processed++
		}
	}

	if grades := doc.First("fuelgrades", "grades"); grades != nil {
		matched = true
		for _, grade := range asList(grades) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return n.processFuelGrade(tx, grade)
			})
			if err != nil {
				n.Log.Error("fuel grade failed", "err", err)
				res.Errors++
				continue
			}
			res.Processed++
		}
	}

	if !matched {
		return res, fmt.Errorf("%w: no recognised fuel root", ErrFileStructure)
	}
	return res, nil
}

// processPriceLevelPeriod extracts the store, the fuel products and their
// price levels from the namespaced schema variant.
func (n *FuelNormalizer) processPriceLevelPeriod(tx *gorm.DB, period *parsedoc.Node) error {
	if site := period.Str("vs:site", "site"); site != "" {
		if _, err := n.Resolver.Store(tx, site, refdata.StoreSeed{}); err != nil {
			return err
		}
	}

	for _, info := range period.Each("totals.prpricelvlinfo") {
		base := info.First("fuel:fuelprodbase", "fuelprodbase")
		if base == nil {
			continue
		}
		fuelID, ok := base.Int("sysid", "number")
		if !ok {
			continue
		}
		name := base.Str("name")
		if name == "" {
			name = fmt.Sprintf("Fuel Product %d", fuelID)
		}

		dept, err := n.Resolver.Department(tx, defaultFuelDepartment, "Fuel", "fuel")
		if err != nil {
			return err
		}
		if _, _, err := n.Resolver.Product(tx, fuelID, refdata.ProductSeed{
			DepartmentID: &dept.ID,
			Description:  name,
			Source:       n.Kind(),
		}); err != nil {
			return err
		}

		for _, lvl := range info.Each("pricelvlinfo") {
			priceLevel := lvl.First("fuel:fuelpricelevel", "fuelpricelevel")
			if priceLevel == nil {
				continue
			}
			volume, _ := lvl.Float("fuelinfo.volume")
			amount := lvl.Decimal("fuelinfo.amount")
			n.Log.Info("fuel price level",
				"product", name,
				"level", priceLevel.Str("name"),
				"volume", volume,
				"amount", amount.Decimal.String())
		}
	}
	return nil
}

// processFuelEntry handles the legacy flat fuel-control record.
func (n *FuelNormalizer) processFuelEntry(tx *gorm.DB, entry *parsedoc.Node) error {
	if storeID := entry.Str("storeid", "store_id"); storeID != "" {
		seed := refdata.StoreSeed{
			Name:    entry.Str("storename"),
			Address: entry.Str("address"),
			City:    entry.Str("city"),
			State:   entry.Str("state"),
			Zip:     entry.Str("zipcode"),
		}
		if _, err := n.Resolver.Store(tx, storeID, seed); err != nil {
			return err
		}
	}

	deptID, ok := entry.Int("departmentid", "department_id")
	if !ok {
		deptID = defaultFuelDepartment
	}
	deptName := entry.Str("departmentname")
	if deptName == "" {
		deptName = "Fuel"
	}
	dept, err := n.Resolver.Department(tx, deptID, deptName, "fuel")
	if err != nil {
		return err
	}

	if productID, ok := entry.Int("productid", "upc"); ok {
		if _, _, err := n.Resolver.Product(tx, productID, refdata.ProductSeed{
			DepartmentID: &dept.ID,
			Description:  entry.Str("description", "gradename", "productname"),
			Cost:         entry.Decimal("cost"),
			RetailPrice:  entry.Decimal("price", "retailprice"),
			Source:       n.Kind(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// processFuelGrade registers one fuel grade as a product under the default
// fuel department.
func (n *FuelNormalizer) processFuelGrade(tx *gorm.DB, grade *parsedoc.Node) error {
	dept, err := n.Resolver.Department(tx, defaultFuelDepartment, "Fuel", "fuel")
	if err != nil {
		return err
	}
	gradeID, ok := grade.Int("gradeid", "id")
	if !ok {
		return nil
	}
	_, _, err = n.Resolver.Product(tx, gradeID, refdata.ProductSeed{
		DepartmentID: &dept.ID,
		Description:  grade.Str("description", "gradename", "productname"),
		Cost:         grade.Decimal("cost"),
		RetailPrice:  grade.Decimal("price", "retailprice"),
		Source:       n.Kind(),
	})
	return err
}

// asList flattens a node that may be either one entry or a wrapper around a
// repeated child into a list of entries.
func asList(node *parsedoc.Node) []*parsedoc.Node {
	if node.Kind() == parsedoc.KindSequence {
		return node.Items()
	}
	return []*parsedoc.Node{node}
}

package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"posfeed/models"
	"posfeed/parsedoc"
	"posfeed/refdata"
)

// CatalogNormalizer ingests pricebook CSV files: one product per row with
// optional department columns. Unlike the transaction feeds, a catalog row
// for a known UPC updates the product (descriptions, prices, availability
// flags) instead of being skipped.
type CatalogNormalizer struct {
	Resolver *refdata.Resolver
	Log      *slog.Logger
	Now      func() time.Time
}

// NewCatalogNormalizer wires a catalog normalizer with defaults.
func NewCatalogNormalizer(resolver *refdata.Resolver, log *slog.Logger) *CatalogNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogNormalizer{Resolver: resolver, Log: log, Now: time.Now}
}

func (n *CatalogNormalizer) Kind() string { return "PRICEBOOK" }

// Process walks the catalog rows, one database transaction per row. Rows
// without a usable UPC are skipped.
func (n *CatalogNormalizer) Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error) {
	res := Result{Kind: n.Kind()}
	rows := doc.Items()
	if doc.Kind() != parsedoc.KindSequence {
		return res, fmt.Errorf("%w: catalog document is not row-shaped", ErrFileStructure)
	}
	n.Log.Info("catalog file parsed", "rows", len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		upc, ok := normalizeUPC(row.Str("upc"))
		if !ok {
			n.Log.Warn("catalog row without usable UPC skipped", "raw", row.Str("upc"))
			res.Skipped++
			continue
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return n.processRow(tx, upc, row)
		})
		if err != nil {
			n.Log.Error("catalog row failed", "upc", upc, "err", err)
			res.Errors++
			continue
		}
		res.Processed++
	}
	return res, nil
}

func (n *CatalogNormalizer) processRow(tx *gorm.DB, upc int64, row *parsedoc.Node) error {
	description := row.Str("item description", "description")
	cost := row.Decimal("cost")
	retail := row.Decimal("retail price", "retail_price")

	var departmentID *int64
	if deptID, ok := row.Int("department id", "department_id"); ok {
		deptName := row.Str("department name", "department_name")
		deptType := row.Str("department type", "department_type")
		dept, err := n.Resolver.Department(tx, deptID, deptName, deptType)
		if err != nil {
			return err
		}
		// A department first seen on a transaction line may carry only its
		// number; the catalog is the authoritative place to name it.
		if err := n.Resolver.RefreshDepartment(tx, dept, deptName, deptType); err != nil {
			return err
		}
		departmentID = &dept.ID
	}

	product, created, err := n.Resolver.Product(tx, upc, refdata.ProductSeed{
		DepartmentID: departmentID,
		Description:  description,
		Cost:         cost,
		RetailPrice:  retail,
		Source:       "Manual",
	})
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	updates := map[string]any{}
	if description != "" {
		updates["upc_description"] = description
	}
	if departmentID != nil {
		updates["department_id"] = *departmentID
	}
	if cost.Valid {
		updates["cost"] = cost
		updates["cost_avail_flag"] = availabilityFlag(cost.Decimal.IsPositive())
	}
	if retail.Valid {
		updates["retail_price"] = retail
		updates["retail_price_avail_flag"] = availabilityFlag(retail.Decimal.IsPositive())
	}
	if len(updates) == 0 {
		return nil
	}
	updates["modified_by"] = n.Resolver.Creator
	updates["modified_date"] = n.Now()
	if err := tx.Model(&models.Product{}).Where("upc_id = ?", product.UPC).Updates(updates).Error; err != nil {
		return fmt.Errorf("update product %d: %w", product.UPC, err)
	}
	return nil
}

// normalizeUPC strips non-numeric characters and leading zeros so the same
// product arriving with different zero-padding maps to one row.
func normalizeUPC(raw string) (int64, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func availabilityFlag(available bool) string {
	if available {
		return "Y"
	}
	return "N"
}

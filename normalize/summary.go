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

// SummaryNormalizer ingests summary/master files: store, department and
// product master data that establishes reference rows for the other feeds.
type SummaryNormalizer struct {
	Resolver *refdata.Resolver
	Log      *slog.Logger
	Now      func() time.Time
}

// NewSummaryNormalizer wires a summary normalizer with defaults.
func NewSummaryNormalizer(resolver *refdata.Resolver, log *slog.Logger) *SummaryNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &SummaryNormalizer{Resolver: resolver, Log: log, Now: time.Now}
}

func (n *SummaryNormalizer) Kind() string { return "SUM" }

// Process handles each summary section present in the document; files vary
// between flat roots and a nested summaries container.
func (n *SummaryNormalizer) Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error) {
	res := Result{Kind: n.Kind()}
	root := doc.First("summaryset", "summaries", "sum")
	if root == nil {
		// Some generations place sections directly under the document root.
		root = doc
	}

	sections := []struct {
		paths   []string
		process func(*gorm.DB, *parsedoc.Node) error
	}{
		{[]string{"storesummary", "summaries.store", "store"}, n.processStoreSummary},
		{[]string{"departmentsummary", "summaries.department", "department"}, n.processDepartmentSummary},
		{[]string{"productsummary", "summaries.product", "product"}, n.processProductSummary},
	}

	matched := false
	for _, section := range sections {
		node := root.First(section.paths...)
		if node == nil {
			continue
		}
		matched = true
		for _, entry := range asList(node) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			process := section.process
			err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return process(tx, entry)
			})
			if err != nil {
				n.Log.Error("summary entry failed", "err", err)
				res.Errors++
				continue
			}
			res.Processed++
		}
	}
	if !matched {
		return res, fmt.Errorf("%w: no recognised summary section", ErrFileStructure)
	}
	return res, nil
}

func (n *SummaryNormalizer) processStoreSummary(tx *gorm.DB, entry *parsedoc.Node) error {
	storeID := entry.Str("storeid", "store_id", "id")
	if storeID == "" {
		return nil
	}
	_, err := n.Resolver.Store(tx, storeID, refdata.StoreSeed{
		Name:     entry.Str("storename", "name"),
		Address:  entry.Str("address"),
		Address2: entry.Str("address2"),
		City:     entry.Str("city"),
		State:    entry.Str("state"),
		Zip:      entry.Str("zipcode", "zip"),
	})
	return err
}

func (n *SummaryNormalizer) processDepartmentSummary(tx *gorm.DB, entry *parsedoc.Node) error {
	deptID, ok := entry.Int("departmentid", "department_id", "id")
	if !ok {
		return nil
	}
	_, err := n.Resolver.Department(tx, deptID, entry.Str("departmentname", "name"), entry.Str("type"))
	return err
}

func (n *SummaryNormalizer) processProductSummary(tx *gorm.DB, entry *parsedoc.Node) error {
	upc, ok := entry.Int("upc", "upc_id", "productid")
	if !ok {
		return nil
	}
	var departmentID *int64
	if deptID, ok := entry.Int("department", "departmentid"); ok {
		dept, err := n.Resolver.Department(tx, deptID, entry.Str("departmentname"), entry.Str("departmenttype"))
		if err != nil {
			return err
		}
		departmentID = &dept.ID
	}
	_, _, err := n.Resolver.Product(tx, upc, refdata.ProductSeed{
		DepartmentID: departmentID,
		Description:  entry.Str("description", "productname"),
		Cost:         entry.Decimal("cost"),
		RetailPrice:  entry.Decimal("price", "retailprice"),
		Source:       n.Kind(),
	})
	return err
}

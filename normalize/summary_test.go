package normalize

import (
	"context"
	"errors"
	"testing"

	"posfeed/models"
)

func TestSummarySections(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<summarySet>
  <storeSummary>
    <storeID>001</storeID>
    <storeName>Main Street</storeName>
    <city>Springfield</city>
    <state>IL</state>
  </storeSummary>
  <departmentSummary>
    <departmentID>10</departmentID>
    <departmentName>Grocery</departmentName>
  </departmentSummary>
  <departmentSummary>
    <departmentID>20</departmentID>
    <departmentName>Lottery</departmentName>
  </departmentSummary>
  <productSummary>
    <upc>555</upc>
    <description>Candy Bar</description>
    <department>10</department>
    <price>1.25</price>
  </productSummary>
</summarySet>`)

	n := NewSummaryNormalizer(testResolver(), nil)
	res, err := n.Process(context.Background(), db, doc)
	if err != nil {
		t.Fatalf("process summary: %v", err)
	}
	if res.Processed != 4 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var store models.Store
	if err := db.First(&store, "store_id = ?", "001").Error; err != nil {
		t.Fatalf("load store: %v", err)
	}
	if store.Name != "Main Street" || store.City != "Springfield" {
		t.Fatalf("store fields wrong: %+v", store)
	}

	if got := countRows(t, db, &models.Department{}); got != 2 {
		t.Fatalf("expected 2 departments, got %d", got)
	}
	var lottery models.Department
	if err := db.First(&lottery, "department_id = ?", 20).Error; err != nil {
		t.Fatalf("load lottery department: %v", err)
	}
	if !lottery.IsLottery {
		t.Fatalf("lottery department not flagged: %+v", lottery)
	}

	var product models.Product
	if err := db.First(&product, "upc_id = ?", 555).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.DepartmentID == nil || *product.DepartmentID != 10 {
		t.Fatalf("product department wrong: %v", product.DepartmentID)
	}
	if product.Source != "SUM" {
		t.Fatalf("product provenance wrong: %q", product.Source)
	}
}

func TestSummarySectionsAtDocumentRoot(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<report>
  <store>
    <id>002</id>
    <name>Second Street</name>
  </store>
</report>`)

	// The sections container is optional; some generations emit sections
	// directly under an arbitrary root.
	n := NewSummaryNormalizer(testResolver(), nil)
	_, err := n.Process(context.Background(), db, doc.Lookup("report"))
	if err != nil {
		t.Fatalf("process summary: %v", err)
	}

	var store models.Store
	if err := db.First(&store, "store_id = ?", "002").Error; err != nil {
		t.Fatalf("load store: %v", err)
	}
	if store.Name != "Second Street" {
		t.Fatalf("store fields wrong: %+v", store)
	}
}

func TestSummaryNoSectionIsFileStructureError(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<summarySet><unrelated>1</unrelated></summarySet>`)

	n := NewSummaryNormalizer(testResolver(), nil)
	_, err := n.Process(context.Background(), db, doc)
	if !errors.Is(err, ErrFileStructure) {
		t.Fatalf("expected file structure error, got %v", err)
	}
}

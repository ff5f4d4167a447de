package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"posfeed/models"
	"posfeed/parsedoc"
)

const saleJournal = `<?xml version="1.0" encoding="UTF-8"?>
<transSet>
  <trans type="sale">
    <trHeader>
      <termMsgSN type="msg">77</termMsgSN>
      <trUniqueSN>9001</trUniqueSN>
      <storeNumber>001</storeNumber>
      <posNum>1</posNum>
      <trTickNum>
        <trSeq>123456</trSeq>
        <posNum>1</posNum>
      </trTickNum>
      <cashier period="2" sysid="42">PAT</cashier>
      <date>2024-03-01T10:15:00</date>
    </trHeader>
    <trValue>
      <trTotWTax>15.99</trTotWTax>
      <trTotNoTax>14.53</trTotNoTax>
      <trTotTax>1.46</trTotTax>
      <trGTotalizer>8123.45</trGTotalizer>
    </trValue>
    <trLines>
      <trLine type="plu">
        <trlUPC>1234567890</trlUPC>
        <trlDesc>Cola 12oz</trlDesc>
        <trlDept number="10" type="norm">Grocery</trlDept>
        <trlQty>2</trlQty>
        <trlUnitPrice>7.99</trlUnitPrice>
        <trlLineTot>15.98</trlLineTot>
        <trlFlags>
          <trlPLU/>
          <trlFStmp/>
        </trlFlags>
        <trlTaxes>
          <trlTax cat="State" sysid="1">1.46</trlTax>
          <trlRate>0.0913</trlRate>
        </trlTaxes>
      </trLine>
    </trLines>
    <trPaylines>
      <trPayline type="tender">
        <trpAmt>15.99</trpAmt>
        <trpPaycode mop="1">CASH</trpPaycode>
      </trPayline>
    </trPaylines>
    <trLoyalty>
      <trLoyaltyProgram programID="FUELREWARDS">
        <trloAccount>4455123499887766</trloAccount>
        <trloSubTotal>15.98</trloSubTotal>
        <trloEntryMeth>scan</trloEntryMeth>
      </trLoyaltyProgram>
    </trLoyalty>
  </trans>
</transSet>`

func ingestJournal(t *testing.T, db *gorm.DB, doc *parsedoc.Node) Result {
	t.Helper()
	n := NewJournalNormalizer(testResolver(), nil)
	res, err := n.Process(context.Background(), db, doc)
	if err != nil {
		t.Fatalf("process journal: %v", err)
	}
	return res
}

func TestJournalEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, saleJournal)

	res := ingestJournal(t, db, doc)
	if res.Processed != 1 || res.Skipped != 0 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got := countRows(t, db, &models.Store{}); got != 1 {
		t.Fatalf("expected 1 store, got %d", got)
	}
	if got := countRows(t, db, &models.Department{}); got != 1 {
		t.Fatalf("expected 1 department, got %d", got)
	}
	if got := countRows(t, db, &models.Product{}); got != 1 {
		t.Fatalf("expected 1 product, got %d", got)
	}
	if got := countRows(t, db, &models.Terminal{}); got != 1 {
		t.Fatalf("expected 1 terminal, got %d", got)
	}

	var txn models.Transaction
	if err := db.First(&txn, "sales_transaction_unique_id = ?", "001-1-123456").Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.SequenceID == nil || *txn.SequenceID != 123456 {
		t.Fatalf("sequence wrong: %+v", txn.SequenceID)
	}
	if txn.StoreCode != "001" || txn.Type != "sale" {
		t.Fatalf("header fields wrong: %+v", txn)
	}
	if !txn.TotalAmount.Valid || !txn.TotalAmount.Decimal.Equal(decimal.RequireFromString("15.99")) {
		t.Fatalf("total amount wrong: %+v", txn.TotalAmount)
	}
	if !txn.TotalTaxAmount.Decimal.Equal(decimal.RequireFromString("1.46")) {
		t.Fatalf("tax amount wrong: %+v", txn.TotalTaxAmount)
	}
	if txn.EmployeeName != "PAT" || txn.CashierSystemID == nil || *txn.CashierSystemID != 42 {
		t.Fatalf("cashier fields wrong: %+v", txn)
	}
	if txn.EventLogID == nil || *txn.EventLogID != "9001:77" {
		t.Fatalf("event log linkage wrong: %v", txn.EventLogID)
	}

	var event models.EventLog
	if err := db.First(&event, "transaction_event_log_id = ?", "9001:77").Error; err != nil {
		t.Fatalf("load event log: %v", err)
	}
	if event.EventType != "msg" || event.TerminalSerial == nil || *event.TerminalSerial != 9001 {
		t.Fatalf("event log fields wrong: %+v", event)
	}

	var line models.LineItem
	if err := db.First(&line).Error; err != nil {
		t.Fatalf("load line item: %v", err)
	}
	if line.UPC == nil || *line.UPC != 1234567890 {
		t.Fatalf("line upc wrong: %v", line.UPC)
	}
	if !line.Quantity.Decimal.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("line quantity wrong: %+v", line.Quantity)
	}
	if !line.LineTotal.Decimal.Equal(decimal.RequireFromString("15.98")) {
		t.Fatalf("line total wrong: %+v", line.LineTotal)
	}
	if !line.IsPLUItem || !line.IsEBTEligible || line.IsFuelSale {
		t.Fatalf("presence flags wrong: %+v", line)
	}
	if line.DepartmentName != "Grocery" || line.DepartmentType != "Inside Sales" {
		t.Fatalf("department mapping wrong: %+v", line)
	}

	var dept models.Department
	if err := db.First(&dept, "department_id = ?", 10).Error; err != nil {
		t.Fatalf("load department: %v", err)
	}
	if dept.IsFuel || dept.IsCarWash || dept.IsLottery {
		t.Fatalf("grocery department was flagged: %+v", dept)
	}

	var tax models.LineItemTax
	if err := db.First(&tax).Error; err != nil {
		t.Fatalf("load tax line: %v", err)
	}
	if tax.Category != "State" || !tax.Amount.Decimal.Equal(decimal.RequireFromString("1.46")) {
		t.Fatalf("tax line wrong: %+v", tax)
	}
	if !tax.Rate.Decimal.Equal(decimal.RequireFromString("0.0913")) {
		t.Fatalf("tax rate wrong: %+v", tax.Rate)
	}

	var payment models.Payment
	if err := db.First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if !payment.Amount.Decimal.Equal(decimal.RequireFromString("15.99")) {
		t.Fatalf("payment amount wrong: %+v", payment.Amount)
	}
	if payment.MethodCode == nil || *payment.MethodCode != 1 {
		t.Fatalf("payment method wrong: %v", payment.MethodCode)
	}
	// Cash tenders take their entry method from the paycode text and their
	// timestamp from the transaction header.
	if payment.EntryMethod != "CASH" || payment.Timestamp == nil {
		t.Fatalf("cash payment fields wrong: %+v", payment)
	}

	var loyalty models.LoyaltyTransaction
	if err := db.First(&loyalty).Error; err != nil {
		t.Fatalf("load loyalty: %v", err)
	}
	if loyalty.ProgramName != "FUELREWARDS" || loyalty.AccountNumber != "4455123499887766" {
		t.Fatalf("loyalty fields wrong: %+v", loyalty)
	}
}

func TestJournalReingestionIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, saleJournal)

	ingestJournal(t, db, doc)
	res := ingestJournal(t, db, doc)
	if res.Processed != 1 {
		t.Fatalf("expected reingest to process the record, got %+v", res)
	}

	for _, check := range []struct {
		model any
		want  int64
	}{
		{&models.Store{}, 1},
		{&models.Department{}, 1},
		{&models.Product{}, 1},
		{&models.Terminal{}, 1},
		{&models.Transaction{}, 1},
		{&models.LineItem{}, 1},
		{&models.LineItemTax{}, 1},
		{&models.Payment{}, 1},
		{&models.LoyaltyTransaction{}, 1},
		{&models.EventLog{}, 1},
	} {
		if got := countRows(t, db, check.model); got != check.want {
			t.Fatalf("%T: expected %d rows after reingest, got %d", check.model, check.want, got)
		}
	}
}

func TestJournalTypeFiltering(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<transSet>
  <trans type="training">
    <trHeader><storeNumber>001</storeNumber><trTickNum><trSeq>1</trSeq></trTickNum></trHeader>
  </trans>
  <trans type="report">
    <trHeader><storeNumber>001</storeNumber><trTickNum><trSeq>2</trSeq></trTickNum></trHeader>
  </trans>
  <trans type="nosale">
    <trHeader><storeNumber>001</storeNumber><posNum>1</posNum><trTickNum><trSeq>3</trSeq></trTickNum></trHeader>
    <trValue><trTotWTax>0.00</trTotWTax></trValue>
  </trans>
</transSet>`)

	res := ingestJournal(t, db, doc)
	if res.Processed != 1 || res.Skipped != 2 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := countRows(t, db, &models.Transaction{}); got != 1 {
		t.Fatalf("expected only the nosale row, got %d", got)
	}
	var txn models.Transaction
	if err := db.First(&txn).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Type != "nosale" {
		t.Fatalf("wrong surviving type: %q", txn.Type)
	}
}

func TestJournalRecordAtomicity(t *testing.T) {
	db := setupTestDB(t)

	// Make the line item insert fail after the header has been written in
	// the same record transaction.
	err := db.Exec(`CREATE TRIGGER fail_line BEFORE INSERT ON transaction_line_item
WHEN NEW.upc_id = 1234567890
BEGIN SELECT RAISE(ABORT, 'injected failure'); END;`).Error
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	doc := mustParseXML(t, saleJournal)
	res := ingestJournal(t, db, doc)
	if res.Processed != 0 || res.Errors != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	for _, model := range []any{
		&models.Transaction{},
		&models.LineItem{},
		&models.LineItemTax{},
		&models.Payment{},
		&models.LoyaltyTransaction{},
	} {
		if got := countRows(t, db, model); got != 0 {
			t.Fatalf("%T: expected rollback to leave 0 rows, got %d", model, got)
		}
	}
}

func TestJournalMissingRootIsFileStructureError(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<wrongRoot><trans type="sale"/></wrongRoot>`)

	n := NewJournalNormalizer(testResolver(), nil)
	_, err := n.Process(context.Background(), db, doc)
	if !errors.Is(err, ErrFileStructure) {
		t.Fatalf("expected file structure error, got %v", err)
	}
}

func TestJournalCardPaymentUsesCardSubsystem(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<transSet>
  <trans type="network sale">
    <trHeader>
      <storeNumber>002</storeNumber>
      <posNum>3</posNum>
      <trTickNum><trSeq>500</trSeq></trTickNum>
      <date>2024-03-01T11:00:00</date>
    </trHeader>
    <trValue><trTotWTax>20.00</trTotWTax></trValue>
    <trPaylines>
      <trPayline type="tender">
        <trpAmt>20.00</trpAmt>
        <trpPaycode mop="3">CREDIT</trpPaycode>
        <trpCardInfo>
          <trpcEntryMeth>swipe</trpcEntryMeth>
          <trpcAuthCode>445566</trpcAuthCode>
          <trpcCCName>VISA</trpcCCName>
          <trpcAuthDateTime>2024-03-01T11:00:05</trpcAuthDateTime>
        </trpCardInfo>
      </trPayline>
    </trPaylines>
  </trans>
</transSet>`)

	res := ingestJournal(t, db, doc)
	if res.Processed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var payment models.Payment
	if err := db.First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.EntryMethod != "swipe" || payment.CardholderName != "VISA" {
		t.Fatalf("card payment fields wrong: %+v", payment)
	}
	if payment.AuthorizationCode == nil || *payment.AuthorizationCode != 445566 {
		t.Fatalf("auth code wrong: %v", payment.AuthorizationCode)
	}
	if payment.Timestamp == nil {
		t.Fatal("expected authorization timestamp")
	}
}

func TestJournalMixMatchPromotion(t *testing.T) {
	db := setupTestDB(t)
	doc := mustParseXML(t, `<transSet>
  <trans type="sale">
    <trHeader>
      <storeNumber>001</storeNumber>
      <posNum>1</posNum>
      <trTickNum><trSeq>777</trSeq></trTickNum>
      <date>2024-03-01T12:00:00</date>
    </trHeader>
    <trValue><trTotWTax>4.00</trTotWTax></trValue>
    <trLines>
      <trLine type="plu">
        <trlUPC>555</trlUPC>
        <trlDesc>Candy Bar</trlDesc>
        <trlQty>2</trlQty>
        <trlUnitPrice>2.50</trlUnitPrice>
        <trlLineTot>4.00</trlLineTot>
        <trlMixMatches>
          <trlMatchLine>
            <trlPromotionID promotype="mix">500</trlPromotionID>
            <trlMatchName>2 for 4</trlMatchName>
            <trlMatchQuantity>2</trlMatchQuantity>
            <trlMatchPrice>4.00</trlMatchPrice>
            <trlPromoAmount>1.00</trlPromoAmount>
          </trlMatchLine>
        </trlMixMatches>
      </trLine>
    </trLines>
  </trans>
</transSet>`)

	res := ingestJournal(t, db, doc)
	if res.Processed != 1 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got := countRows(t, db, &models.PromotionProgram{}); got != 1 {
		t.Fatalf("expected promotion program, got %d rows", got)
	}
	if got := countRows(t, db, &models.PromotionUPCLink{}); got != 1 {
		t.Fatalf("expected promotion linkage, got %d rows", got)
	}

	var promoLine models.PromotionLineItem
	if err := db.First(&promoLine).Error; err != nil {
		t.Fatalf("load promotion line: %v", err)
	}
	if promoLine.PromotionID == nil || *promoLine.PromotionID != 500 {
		t.Fatalf("promotion id wrong: %v", promoLine.PromotionID)
	}
	// 1.00 spread over the matched quantity of 2.
	if !promoLine.PerUnitAmount.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("per-unit amount wrong: %+v", promoLine.PerUnitAmount)
	}
	if promoLine.Name != "2 for 4" || promoLine.Type != "mix" {
		t.Fatalf("promotion naming wrong: %+v", promoLine)
	}
}

func TestPerUnitPromoAmount(t *testing.T) {
	got := perUnitPromoAmount(mustDecimal("3.00"), mustDecimal("3"))
	if !got.Valid || !got.Decimal.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("expected 1.00 per unit, got %+v", got)
	}

	// Quantities of one or less never divide.
	got = perUnitPromoAmount(mustDecimal("3.00"), mustDecimal("0"))
	if !got.Decimal.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("expected undivided amount, got %+v", got)
	}

	got = perUnitPromoAmount(decimal.NullDecimal{}, mustDecimal("2"))
	if got.Valid {
		t.Fatalf("expected invalid result for absent amount, got %+v", got)
	}
}

func TestDeriveUniqueID(t *testing.T) {
	header := parsedoc.Mapping()
	header.Set("uniqueid", parsedoc.Scalar("GLOBAL-1"))
	if got := deriveUniqueID(header, "001", nil, nil); got != "GLOBAL-1" {
		t.Fatalf("expected header unique id, got %q", got)
	}

	seq := int64(42)
	reg := int64(2)
	if got := deriveUniqueID(parsedoc.Mapping(), "001", &reg, &seq); got != "001-2-42" {
		t.Fatalf("expected composite id, got %q", got)
	}

	// Without any natural key the id is generated and never empty.
	if got := deriveUniqueID(parsedoc.Mapping(), "001", nil, nil); got == "" {
		t.Fatal("expected generated id")
	}
}

package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"posfeed/models"
	"posfeed/observability/logging"
	"posfeed/parsedoc"
	"posfeed/refdata"
)

// allowedJournalTypes is the transaction-type filter: anything else in the
// feed (training entries, reports, drawer counts) is skipped, not erred.
var allowedJournalTypes = map[string]struct{}{
	"sale":         {},
	"network sale": {},
	"nosale":       {},
	"refund sale":  {},
	"void":         {},
}

// JournalNormalizer ingests transaction-journal files: the full POS
// transaction graph of header, lines, taxes, promotions, payments and
// loyalty rows. Each journal record commits or rolls back as one unit.
type JournalNormalizer struct {
	Resolver *refdata.Resolver
	Log      *slog.Logger
	Now      func() time.Time
}

// NewJournalNormalizer wires a journal normalizer with defaults.
func NewJournalNormalizer(resolver *refdata.Resolver, log *slog.Logger) *JournalNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &JournalNormalizer{Resolver: resolver, Log: log, Now: time.Now}
}

func (n *JournalNormalizer) Kind() string { return "CPJ" }

// Process walks the journal's transaction set. Records are handled in
// source order; a per-record failure rolls back only that record's writes.
func (n *JournalNormalizer) Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error) {
	res := Result{Kind: n.Kind()}
	set := doc.Lookup("transset")
	if set == nil {
		return res, fmt.Errorf("%w: missing transset root", ErrFileStructure)
	}
	records := set.Each("trans")
	n.Log.Info("journal file parsed", "transactions", len(records))

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		recordType := strings.ToLower(record.Str("type"))
		if _, ok := allowedJournalTypes[recordType]; !ok {
			n.Log.Info("skipping transaction type", "type", recordType)
			res.Skipped++
			continue
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return n.processRecord(tx, record, recordType)
		})
		if err != nil {
			n.Log.Error("journal record failed", "sequence", record.Str("trheader.trticknum.trseq"), "err", err)
			res.Errors++
			continue
		}
		res.Processed++
	}
	return res, nil
}

// processRecord materialises one journal entry inside the open transaction.
func (n *JournalNormalizer) processRecord(tx *gorm.DB, record *parsedoc.Node, recordType string) error {
	header := record.Lookup("trheader")
	values := record.Lookup("trvalue")

	storeCode := header.Str("storenumber")
	if storeCode != "" {
		if _, err := n.Resolver.Store(tx, storeCode, refdata.StoreSeed{}); err != nil {
			return err
		}
	}

	register := header.IntPtr("posnum", "trticknum.posnum")
	if register != nil && storeCode != "" {
		if _, err := n.Resolver.Terminal(tx, storeCode, *register, ""); err != nil {
			return err
		}
	}

	eventLogID, err := n.buildEventLog(tx, header, values)
	if err != nil {
		return err
	}

	txn, created, err := n.upsertTransaction(tx, record, header, values, storeCode, register, eventLogID, recordType)
	if err != nil {
		return err
	}
	if !created {
		// The transaction row was updated in place; children were written by
		// the first ingestion and are append-only, so re-running the same
		// source record must not duplicate them.
		return nil
	}

	for _, line := range record.Each("trlines.trline") {
		if err := n.insertLineItem(tx, txn, line); err != nil {
			return err
		}
	}
	for _, pay := range record.Each("trpaylines.trpayline") {
		if err := n.insertPayment(tx, txn, header, pay); err != nil {
			return err
		}
	}
	if program := record.Lookup("trloyalty.trloyaltyprogram"); program != nil {
		if err := n.insertLoyalty(tx, txn, program); err != nil {
			return err
		}
	}
	return nil
}

// buildEventLog writes the optional terminal event row. Without a terminal
// message serial or a ticket sequence there is nothing to key it by, and
// the step is skipped rather than failed.
func (n *JournalNormalizer) buildEventLog(tx *gorm.DB, header, values *parsedoc.Node) (*string, error) {
	serial := header.IntPtr("truniquesn")
	messageSN := header.IntPtr("termmsgsn")
	sequence := header.IntPtr("trticknum.trseq")

	var id string
	switch {
	case messageSN != nil && serial != nil:
		id = fmt.Sprintf("%d:%d", *serial, *messageSN)
	case messageSN != nil:
		id = fmt.Sprintf("0:%d", *messageSN)
	case sequence != nil:
		id = fmt.Sprintf("seq:%d", *sequence)
	default:
		return nil, nil
	}

	row := models.EventLog{
		ID:               id,
		Duration:         header.IntPtr("duration"),
		EventType:        header.Str("termmsgsn.type"),
		CustomerDOBEntry: values.Str("custdob.dob"),
		GlobalUniqueID:   header.Str("uniqueid"),
		TerminalSerial:   serial,
		SequenceID:       sequence,
		CreatedAt:        n.Now(),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("event log %s: %w", id, err)
	}
	return &id, nil
}

// upsertTransaction writes the journal header keyed by its derived unique
// id. The created flag is false when the row already existed, in which case
// the row is refreshed in place.
func (n *JournalNormalizer) upsertTransaction(tx *gorm.DB, record, header, values *parsedoc.Node, storeCode string, register *int64, eventLogID *string, recordType string) (*models.Transaction, bool, error) {
	sequence := header.IntPtr("trticknum.trseq")
	uniqueID := deriveUniqueID(header, storeCode, register, sequence)

	var timestamp *time.Time
	if t, ok := header.Time("date"); ok {
		timestamp = &t
	} else if raw := header.Str("date"); raw != "" {
		n.Log.Warn("unparsable transaction timestamp", "raw", raw)
	}

	row := models.Transaction{
		UniqueID:               uniqueID,
		SequenceID:             sequence,
		StoreCode:              storeCode,
		RegisterID:             register,
		EventLogID:             eventLogID,
		CashierSession:         header.IntPtr("cashier.period"),
		EmployeeID:             header.IntPtr("cashier.sysid"),
		EmployeeName:           header.Str("cashier"),
		CashierSystemID:        header.IntPtr("cashier.sysid"),
		FoodStampEligibleTotal: values.Decimal("trfstmp.trfstmptot"),
		GrandTotalizer:         values.Decimal("trgtotalizer"),
		TotalAmount:            values.Decimal("trtotwtax"),
		TotalNoTax:             values.Decimal("trtotnotax"),
		TotalTaxAmount:         values.Decimal("trtottax"),
		Timestamp:              timestamp,
		Type:                   recordType,
		OriginalRegisterID:     header.IntPtr("trorigticknum.posnum"),
		OriginalSequenceID:     header.IntPtr("trorigticknum.trseq"),
		IsFuelPrepay:           record.Has("trfprepay"),
		IsFuelPrepayCompletion: record.Has("trfprepaycompletion"),
		IsRollback:             record.Has("rollback"),
		IsSuspended:            record.Has("suspended"),
		WasRecalled:            record.Has("recalled"),
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("transaction %s: %w", uniqueID, res.Error)
	}
	if res.RowsAffected > 0 {
		return &row, true, nil
	}
	if err := tx.Save(&row).Error; err != nil {
		return nil, false, fmt.Errorf("update transaction %s: %w", uniqueID, err)
	}
	return &row, false, nil
}

// deriveUniqueID prefers the header's global uniqueness field, then a
// store/register/sequence composite, then a generated id.
func deriveUniqueID(header *parsedoc.Node, storeCode string, register, sequence *int64) string {
	if uid := header.Str("uniqueid"); uid != "" {
		return uid
	}
	if sequence != nil {
		reg := int64(0)
		if register != nil {
			reg = *register
		}
		return fmt.Sprintf("%s-%d-%d", storeCode, reg, *sequence)
	}
	return uuid.NewString()
}

func (n *JournalNormalizer) insertLineItem(tx *gorm.DB, txn *models.Transaction, line *parsedoc.Node) error {
	var departmentID *int64
	deptName := line.Str("trldept")
	deptType := mapDepartmentType(line.Str("trldept.type"))
	if number, ok := line.Int("trldept.number"); ok {
		dept, err := n.Resolver.Department(tx, number, deptName, deptType)
		if err != nil {
			return err
		}
		departmentID = &dept.ID
	}

	var upc *int64
	if code, ok := line.Int("trlupc"); ok {
		source := ""
		if txn.SequenceID != nil {
			source = fmt.Sprintf("%d", *txn.SequenceID)
		}
		if _, _, err := n.Resolver.Product(tx, code, refdata.ProductSeed{
			DepartmentID: departmentID,
			Description:  line.Str("trldesc"),
			RetailPrice:  line.Decimal("trlunitprice"),
			Source:       source,
		}); err != nil {
			return err
		}
		upc = &code
	}

	flags := line.Lookup("trlflags")
	item := models.LineItem{
		ID:                      uuid.New(),
		TransactionUID:          txn.UniqueID,
		SequenceID:              txn.SequenceID,
		UPC:                     upc,
		CategoryName:            line.Str("trlcat"),
		CategoryNumber:          line.IntPtr("trlcat.number"),
		DepartmentID:            departmentID,
		DepartmentName:          deptName,
		DepartmentType:          deptType,
		HasBirthdayVerification: flags.Has("trlbdayverif"),
		HasCategoryOverride:     flags.Has("trlcatcust"),
		HasDepartmentOverride:   flags.Has("trlupddepcust"),
		HasLoyaltyLineDiscount:  flags.Has("trlloylndisc"),
		HasMixMatchPromotion:    flags.Has("trlmatch"),
		HasPLUOverride:          flags.Has("trlupdplucust"),
		HasSpecialDiscount:      flags.Has("trlspecialdisc"),
		IsEBTEligible:           flags.Has("trlfstmp"),
		IsPLUItem:               flags.Has("trlplu"),
		IsFuelOnly:              flags.Has("trlfuelonly"),
		IsFuelSale:              flags.Has("trlfuelsale"),
		IsLotteryPayout:         flags.Has("trllottopayout"),
		IsLineVoid:              flags.Has("trlvoid"),
		LineTotal:               line.Decimal("trllinetot"),
		NetworkCode:             line.IntPtr("trlnetwcode"),
		Quantity:                line.Decimal("trlqty"),
		LineType:                line.Str("type"),
		UnitPrice:               line.Decimal("trlunitprice"),
		Description:             line.Str("trldesc"),
		EntryType:               line.Str("trlupcentry.type"),
		Modifier:                line.IntPtr("trlmodifier"),
		CarWashPackage:          line.IntPtr("trlcarwash.trlcwpackage"),
		CarWashCode:             line.IntPtr("trlcarwash.trlcwcode"),
		CarWashPromoType:        line.Str("trlcarwash.trlcwpromotype"),
		CarWashPromoAmount:      line.Decimal("trlcarwash.trlcwpromoamt"),
	}
	if err := tx.Create(&item).Error; err != nil {
		return fmt.Errorf("line item: %w", err)
	}

	for _, taxNode := range line.Each("trltaxes") {
		if err := n.insertLineTax(tx, txn, &item, taxNode); err != nil {
			return err
		}
	}
	if match := line.Lookup("trlmixmatches.trlmatchline"); match != nil {
		if err := n.insertPromotionLine(tx, &item, match, upc); err != nil {
			return err
		}
	}
	if disc := line.Lookup("trlolnitemdisc"); disc != nil {
		if err := n.insertLoyaltyLine(tx, txn, &item, disc); err != nil {
			return err
		}
	}
	return nil
}

func (n *JournalNormalizer) insertLineTax(tx *gorm.DB, txn *models.Transaction, item *models.LineItem, taxNode *parsedoc.Node) error {
	row := models.LineItemTax{
		ID:             uuid.New(),
		LineItemID:     item.ID,
		TransactionUID: txn.UniqueID,
		Category:       taxNode.Str("trltax.cat"),
		Rate:           taxNode.Decimal("trlrate"),
		Amount:         taxNode.Decimal("trltax"),
		SystemID:       taxNode.IntPtr("trltax.sysid"),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("line tax: %w", err)
	}
	return nil
}

// insertPromotionLine records the mix-match promotion on a line, lazily
// creating the promotion program and the (promotion, upc) linkage. The
// per-unit amount is the promotion amount spread over the matched quantity.
func (n *JournalNormalizer) insertPromotionLine(tx *gorm.DB, item *models.LineItem, match *parsedoc.Node, upc *int64) error {
	promotionID := match.IntPtr("trlpromotionid")
	promoAmount := match.Decimal("trlpromoamount")

	if promotionID != nil {
		err := ensurePromotionProgram(tx, *promotionID, match.Str("trlmatchname"), match.Str("description"), promoAmount, n.Now())
		if err != nil {
			return err
		}
		if upc != nil {
			if err := ensurePromotionUPCLink(tx, *promotionID, *upc, n.Now()); err != nil {
				return err
			}
		}
	}

	matchQty := match.Decimal("trlmatchquantity")
	row := models.PromotionLineItem{
		ID:            uuid.New(),
		LineItemID:    item.ID,
		PromotionID:   promotionID,
		MatchPrice:    match.Decimal("trlmatchprice"),
		MatchQuantity: matchQty,
		MixGroupID:    match.IntPtr("trlmatchmixes"),
		PromoAmount:   promoAmount,
		PerUnitAmount: perUnitPromoAmount(promoAmount, matchQty),
		Name:          match.Str("trlmatchname"),
		Type:          match.Str("trlpromotionid.promotype"),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("promotion line: %w", err)
	}
	return nil
}

// perUnitPromoAmount divides the promotion amount by the matched quantity,
// clamped to at least one unit.
func perUnitPromoAmount(amount, quantity decimal.NullDecimal) decimal.NullDecimal {
	if !amount.Valid {
		return decimal.NullDecimal{}
	}
	divisor := decimal.NewFromInt(1)
	if quantity.Valid && quantity.Decimal.GreaterThan(divisor) {
		divisor = quantity.Decimal
	}
	return decimal.NullDecimal{
		Decimal: amount.Decimal.Div(divisor).Round(2),
		Valid:   true,
	}
}

func (n *JournalNormalizer) insertLoyaltyLine(tx *gorm.DB, txn *models.Transaction, item *models.LineItem, disc *parsedoc.Node) error {
	row := models.LoyaltyLineItem{
		ID:              uuid.New(),
		LineItemID:      item.ID,
		TransactionUID:  txn.UniqueID,
		DiscountAmount:  disc.Decimal("discamt"),
		QuantityApplied: disc.Decimal("qty"),
		TaxCredit:       disc.Decimal("taxcred"),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("loyalty line: %w", err)
	}
	return nil
}

// cash method-of-payment code; cash tenders carry no card subsystem data.
const mopCash = 1

// insertPayment writes a tender row. Cash-like methods take their entry
// method and timestamp from the header; card methods take them from the
// card subsystem's own authorization record.
func (n *JournalNormalizer) insertPayment(tx *gorm.DB, txn *models.Transaction, header, pay *parsedoc.Node) error {
	methodCode := pay.IntPtr("trppaycode.mop")

	var entryMethod string
	var timestamp *time.Time
	if methodCode != nil && *methodCode == mopCash {
		entryMethod = pay.Str("trppaycode")
		if t, ok := header.Time("date"); ok {
			timestamp = &t
		}
	} else {
		entryMethod = pay.Str("trpcardinfo.trpcentrymeth")
		if t, ok := pay.Time("trpcardinfo.trpcauthdatetime"); ok {
			timestamp = &t
		}
	}

	row := models.Payment{
		ID:                uuid.New(),
		TransactionUID:    txn.UniqueID,
		SequenceID:        txn.SequenceID,
		AuthorizationCode: pay.IntPtr("trpcardinfo.trpcauthcode"),
		CardholderName:    pay.Str("trpcardinfo.trpcccname"),
		Amount:            pay.Decimal("trpamt"),
		MethodCode:        methodCode,
		EntryMethod:       entryMethod,
		Timestamp:         timestamp,
		Type:              pay.Str("type"),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	return nil
}

func (n *JournalNormalizer) insertLoyalty(tx *gorm.DB, txn *models.Transaction, program *parsedoc.Node) error {
	name := program.Str("programid")
	if name == "" {
		name = "Default Loyalty Program"
	}
	row := models.LoyaltyTransaction{
		ID:               uuid.New(),
		TransactionUID:   txn.UniqueID,
		SequenceID:       txn.SequenceID,
		AccountNumber:    program.Str("trloaccount"),
		AutoDiscount:     program.Decimal("trloautodisc"),
		CustomerDiscount: program.Decimal("trlocustdisc"),
		EntryMethod:      program.Str("trloentrymeth"),
		SubTotal:         program.Decimal("trlosubtotal"),
		ProgramName:      name,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("loyalty: %w", err)
	}
	n.Log.Debug("loyalty program linked",
		"program", name,
		"account", logging.MaskAccount(row.AccountNumber))
	return nil
}

// mapDepartmentType translates the vendor's "norm" marker to its business
// meaning; other types pass through unchanged.
func mapDepartmentType(raw string) string {
	if raw == "norm" {
		return "Inside Sales"
	}
	return raw
}

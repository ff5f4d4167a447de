package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store is a retail site. Rows are created lazily the first time any feed
// references the store code; address fields are filled in when a summary or
// master feed supplies them.
type Store struct {
	Code      string `gorm:"column:store_id;primaryKey;size:32"`
	Name      string `gorm:"column:store_name"`
	Address   string
	Address2  string
	City      string
	State     string `gorm:"size:16"`
	Zip       string `gorm:"column:zip_code;size:16"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Store) TableName() string { return "stores" }

// Department carries the classification flags derived once at creation from
// the name/type pair first seen for the department number.
type Department struct {
	ID        int64  `gorm:"column:department_id;primaryKey;autoIncrement:false"`
	Name      string `gorm:"column:department_name"`
	Type      string `gorm:"column:department_type;size:64"`
	IsFuel    bool   `gorm:"column:is_fuel_department"`
	IsCarWash bool   `gorm:"column:is_car_wash_department"`
	IsLottery bool   `gorm:"column:is_lottery_department"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Department) TableName() string { return "departments" }

// Product is one pricebook row keyed by numeric UPC. Products referenced by
// transaction lines before any catalog import are created with the line's
// description and the transaction recorded as provenance.
type Product struct {
	UPC              int64               `gorm:"column:upc_id;primaryKey;autoIncrement:false"`
	DepartmentID     *int64              `gorm:"column:department_id;index"`
	Description      string              `gorm:"column:upc_description"`
	Cost             decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	RetailPrice      decimal.NullDecimal `gorm:"column:retail_price;type:decimal(10,2)"`
	CostAvail        string              `gorm:"column:cost_avail_flag;size:1;default:N"`
	RetailPriceAvail string              `gorm:"column:retail_price_avail_flag;size:1;default:N"`
	Source           string              `gorm:"column:upc_source;size:64"`
	CreatedBy        string              `gorm:"column:created_by;size:64"`
	CreationDate     time.Time           `gorm:"column:creation_date"`
	ModifiedBy       *string             `gorm:"column:modified_by;size:64"`
	ModifiedDate     *time.Time          `gorm:"column:modified_date"`
}

func (Product) TableName() string { return "pricebook" }

// Terminal is one physical register per store. The (store, register) pair is
// the natural key; the surrogate id exists for foreign keys.
type Terminal struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	StoreCode  string    `gorm:"column:store_id;size:32;uniqueIndex:idx_terminal_store_register"`
	Register   int64     `gorm:"column:register_id;uniqueIndex:idx_terminal_store_register"`
	DeviceType string    `gorm:"column:device_type;size:64"`
	CreatedAt  time.Time
}

func (Terminal) TableName() string { return "pos_device_terminal" }

// EventLog is the optional per-transaction terminal event record, keyed by a
// string derived from the terminal serial and message sequence.
type EventLog struct {
	ID               string `gorm:"column:transaction_event_log_id;primaryKey;size:64"`
	Duration         *int64
	EventType        string `gorm:"column:event_type;size:64"`
	CustomerDOBEntry string `gorm:"column:customer_dob_entry;size:32"`
	GlobalUniqueID   string `gorm:"column:global_unique_identifier;size:128"`
	TerminalSerial   *int64 `gorm:"column:verifone_transaction_sn"`
	SequenceID       *int64 `gorm:"column:transaction_id"`
	CreatedAt        time.Time
}

func (EventLog) TableName() string { return "transaction_event_log" }

// Transaction is one journal entry. UniqueID is the synthetic primary key
// derived from the header's uniqueness field; re-ingesting the same source
// record updates this row in place and never duplicates it.
type Transaction struct {
	UniqueID               string              `gorm:"column:sales_transaction_unique_id;primaryKey;size:128"`
	SequenceID             *int64              `gorm:"column:transaction_id;index"`
	StoreCode              string              `gorm:"column:store_id;size:32;index"`
	RegisterID             *int64              `gorm:"column:register_id"`
	EventLogID             *string             `gorm:"column:transaction_event_log_id;size:64"`
	CashierSession         *int64
	EmployeeID             *int64
	EmployeeName           string              `gorm:"column:employee_name"`
	CashierSystemID        *int64              `gorm:"column:cashier_system_id"`
	FoodStampEligibleTotal decimal.NullDecimal `gorm:"column:food_stamp_eligible_total;type:decimal(10,2)"`
	GrandTotalizer         decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	TotalAmount            decimal.NullDecimal `gorm:"column:total_amount;type:decimal(10,2)"`
	TotalNoTax             decimal.NullDecimal `gorm:"column:total_no_tax;type:decimal(10,2)"`
	TotalTaxAmount         decimal.NullDecimal `gorm:"column:total_tax_amount;type:decimal(10,2)"`
	Timestamp              *time.Time          `gorm:"column:transaction_datetime;index"`
	Type                   string              `gorm:"column:transaction_type;size:32"`
	OriginalRegisterID     *int64              `gorm:"column:original_register_id"`
	OriginalSequenceID     *int64              `gorm:"column:original_transaction_id"`
	IsFuelPrepay           bool                `gorm:"column:is_fuel_prepay"`
	IsFuelPrepayCompletion bool                `gorm:"column:is_fuel_prepay_completion"`
	IsRollback             bool                `gorm:"column:is_rollback"`
	IsSuspended            bool                `gorm:"column:is_suspended"`
	WasRecalled            bool                `gorm:"column:was_recalled"`
}

func (Transaction) TableName() string { return "sales_transaction" }

// LineItem rows are append-only children of a transaction.
type LineItem struct {
	ID                      uuid.UUID           `gorm:"column:line_item_uuid;type:uuid;primaryKey"`
	TransactionUID          string              `gorm:"column:sales_transaction_unique_id;size:128;index"`
	SequenceID              *int64              `gorm:"column:transaction_id;index"`
	UPC                     *int64              `gorm:"column:upc_id;index"`
	CategoryName            string              `gorm:"column:category_name"`
	CategoryNumber          *int64
	DepartmentID            *int64              `gorm:"column:department"`
	DepartmentName          string              `gorm:"column:department_name"`
	DepartmentType          string              `gorm:"column:department_type;size:64"`
	HasBirthdayVerification bool                `gorm:"column:has_birthday_verification"`
	HasCategoryOverride     bool                `gorm:"column:has_category_override"`
	HasDepartmentOverride   bool                `gorm:"column:has_department_override"`
	HasLoyaltyLineDiscount  bool                `gorm:"column:has_loyalty_line_discount"`
	HasMixMatchPromotion    bool                `gorm:"column:has_mix_match_promotion"`
	HasPLUOverride          bool                `gorm:"column:has_plu_override"`
	HasSpecialDiscount      bool                `gorm:"column:has_special_discount"`
	IsEBTEligible           bool                `gorm:"column:is_ebt_eligible"`
	IsPLUItem               bool                `gorm:"column:is_plu_item"`
	IsFuelOnly              bool                `gorm:"column:is_fuel_only"`
	IsFuelSale              bool                `gorm:"column:is_fuel_sale"`
	IsLotteryPayout         bool                `gorm:"column:is_lottery_payout"`
	IsLineVoid              bool                `gorm:"column:is_line_void"`
	LineTotal               decimal.NullDecimal `gorm:"column:line_total;type:decimal(10,2)"`
	NetworkCode             *int64              `gorm:"column:network_code"`
	Quantity                decimal.NullDecimal `gorm:"type:decimal(12,3)"`
	LineType                string              `gorm:"column:transaction_line_type;size:32"`
	UnitPrice               decimal.NullDecimal `gorm:"column:unit_price;type:decimal(10,2)"`
	Description             string              `gorm:"column:upc_description"`
	EntryType               string              `gorm:"column:upc_entry_type;size:32"`
	Modifier                *int64              `gorm:"column:upc_modifier"`
	CarWashPackage          *int64              `gorm:"column:car_wash_package"`
	CarWashCode             *int64              `gorm:"column:car_wash_code"`
	CarWashPromoType        string              `gorm:"column:car_wash_promo_type;size:32"`
	CarWashPromoAmount      decimal.NullDecimal `gorm:"column:car_wash_promo_amount;type:decimal(10,2)"`
}

func (LineItem) TableName() string { return "transaction_line_item" }

// LineItemTax holds zero or more tax lines per line item.
type LineItemTax struct {
	ID             uuid.UUID           `gorm:"column:tax_line_uuid;type:uuid;primaryKey"`
	LineItemID     uuid.UUID           `gorm:"column:line_item_uuid;type:uuid;index"`
	TransactionUID string              `gorm:"column:sales_transaction_unique_id;size:128;index"`
	Category       string              `gorm:"column:tax_line_category;size:64"`
	Rate           decimal.NullDecimal `gorm:"column:tax_line_rate;type:decimal(10,4)"`
	Amount         decimal.NullDecimal `gorm:"column:tax_line_amount;type:decimal(10,2)"`
	SystemID       *int64              `gorm:"column:tax_line_sys_id"`
}

func (LineItemTax) TableName() string { return "transaction_line_item_tax" }

// Payment holds zero or more tenders per transaction.
type Payment struct {
	ID                uuid.UUID `gorm:"column:payment_uuid;type:uuid;primaryKey"`
	TransactionUID    string    `gorm:"column:sales_transaction_unique_id;size:128;index"`
	SequenceID        *int64    `gorm:"column:transaction_id;index"`
	AuthorizationCode *int64
	CardholderName    string              `gorm:"column:cc_name"`
	Amount            decimal.NullDecimal `gorm:"column:mop_amount;type:decimal(10,2)"`
	MethodCode        *int64              `gorm:"column:mop_code"`
	EntryMethod       string              `gorm:"column:payment_entry_method;size:64"`
	Timestamp         *time.Time          `gorm:"column:payment_timestamp"`
	Type              string              `gorm:"column:payment_type;size:32"`
}

func (Payment) TableName() string { return "payment" }

// PromotionProgram is created lazily from the first line item that
// references the promotion id.
type PromotionProgram struct {
	ID             int64               `gorm:"column:promotion_id;primaryKey;autoIncrement:false"`
	Name           string              `gorm:"column:promotion_name"`
	Description    string              `gorm:"column:promo_desc"`
	Amount         decimal.NullDecimal `gorm:"column:promo_amount;type:decimal(10,2)"`
	Percent        decimal.NullDecimal `gorm:"column:promo_percent;type:decimal(10,4)"`
	DiscountMethod string              `gorm:"column:promotion_discount_method;size:64"`
	CreatedAt      time.Time
}

func (PromotionProgram) TableName() string { return "promotions_program_details" }

// PromotionLineItem links a line item to a promotion program with the
// matched price/quantity and the computed per-unit promotion amount.
type PromotionLineItem struct {
	ID            uuid.UUID           `gorm:"column:promotion_line_item_uuid;type:uuid;primaryKey"`
	LineItemID    uuid.UUID           `gorm:"column:line_item_uuid;type:uuid;index"`
	PromotionID   *int64              `gorm:"column:promotion_id;index"`
	MatchPrice    decimal.NullDecimal `gorm:"column:match_price;type:decimal(10,2)"`
	MatchQuantity decimal.NullDecimal `gorm:"column:match_quantity;type:decimal(12,3)"`
	MixGroupID    *int64              `gorm:"column:mix_group_id"`
	PromoAmount   decimal.NullDecimal `gorm:"column:promo_amount;type:decimal(10,2)"`
	PerUnitAmount decimal.NullDecimal `gorm:"column:per_unit_amount;type:decimal(10,2)"`
	Name          string              `gorm:"column:promotion_name"`
	Type          string              `gorm:"column:promotion_type;size:32"`
}

func (PromotionLineItem) TableName() string { return "promotions_line_item" }

// PromotionUPCLink is the unique (promotion, upc) association.
type PromotionUPCLink struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PromotionID int64     `gorm:"column:promotion_id;uniqueIndex:idx_promotion_upc"`
	UPC         int64     `gorm:"column:upc_id;uniqueIndex:idx_promotion_upc"`
	Active      bool      `gorm:"column:is_active"`
	CreatedAt   time.Time `gorm:"column:created_date"`
}

func (PromotionUPCLink) TableName() string { return "promotion_upc_linkage" }

// RebateProgram mirrors PromotionProgram for vendor rebates.
type RebateProgram struct {
	ID          int64               `gorm:"column:rebate_id;primaryKey;autoIncrement:false"`
	Name        string              `gorm:"column:rebate_name"`
	Description string              `gorm:"column:rebate_description"`
	Type        string              `gorm:"column:rebate_type;size:32"`
	Amount      decimal.NullDecimal `gorm:"column:rebate_amount;type:decimal(10,2)"`
	Percent     decimal.NullDecimal `gorm:"column:rebate_percentage;type:decimal(10,4)"`
	Active      bool                `gorm:"column:is_active"`
	Code        string              `gorm:"column:rebate_code;size:64"`
	VendorID    string              `gorm:"column:vendor_id;size:64"`
	Category    string              `gorm:"column:product_category;size:64"`
	CreatedAt   time.Time
}

func (RebateProgram) TableName() string { return "rebate_program_details" }

// RebateUPCLink is the unique (rebate, upc) association.
type RebateUPCLink struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RebateID  int64     `gorm:"column:rebate_id;uniqueIndex:idx_rebate_upc"`
	UPC       int64     `gorm:"column:upc_id;uniqueIndex:idx_rebate_upc"`
	Active    bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_date"`
}

func (RebateUPCLink) TableName() string { return "rebate_upc_linkage" }

// LoyaltyTransaction is the at-most-one loyalty program row per transaction.
type LoyaltyTransaction struct {
	ID               uuid.UUID           `gorm:"column:loyalty_transaction_uuid;type:uuid;primaryKey"`
	TransactionUID   string              `gorm:"column:sales_transaction_unique_id;size:128;index"`
	SequenceID       *int64              `gorm:"column:transaction_id;index"`
	AccountNumber    string              `gorm:"column:loyalty_account_number;size:64"`
	AutoDiscount     decimal.NullDecimal `gorm:"column:loyalty_auto_discount;type:decimal(10,2)"`
	CustomerDiscount decimal.NullDecimal `gorm:"column:loyalty_customer_discount;type:decimal(10,2)"`
	EntryMethod      string              `gorm:"column:loyalty_entry_method;size:64"`
	SubTotal         decimal.NullDecimal `gorm:"column:loyalty_sub_total;type:decimal(10,2)"`
	ProgramName      string              `gorm:"column:loyalty_program_name"`
}

func (LoyaltyTransaction) TableName() string { return "transaction_loyalty" }

// LoyaltyLineItem holds per-line loyalty discounts.
type LoyaltyLineItem struct {
	ID              uuid.UUID           `gorm:"column:line_loyalty_uuid;type:uuid;primaryKey"`
	LineItemID      uuid.UUID           `gorm:"column:line_item_uuid;type:uuid;index"`
	TransactionUID  string              `gorm:"column:sales_transaction_unique_id;size:128;index"`
	DiscountAmount  decimal.NullDecimal `gorm:"column:discount_amount;type:decimal(10,2)"`
	QuantityApplied decimal.NullDecimal `gorm:"column:quantity_applied;type:decimal(12,3)"`
	TaxCredit       decimal.NullDecimal `gorm:"column:tax_credit;type:decimal(10,2)"`
}

func (LoyaltyLineItem) TableName() string { return "loyalty_line_items" }

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Store{},
		&Department{},
		&Product{},
		&Terminal{},
		&EventLog{},
		&Transaction{},
		&LineItem{},
		&LineItemTax{},
		&Payment{},
		&PromotionProgram{},
		&PromotionLineItem{},
		&PromotionUPCLink{},
		&RebateProgram{},
		&RebateUPCLink{},
		&LoyaltyTransaction{},
		&LoyaltyLineItem{},
	)
}

// Package normalize turns parsed feed documents into relational writes.
// Each record kind has a strict normalizer; unrecognised kinds fall through
// to the low-precision generic scanner. A normalizer processes one record
// per database transaction and never lets a failing record abort the file.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"posfeed/models"
	"posfeed/parsedoc"
)

// ErrFileStructure indicates the document's root container is missing or
// malformed. It is the only error a Process call surfaces; per-record
// failures are absorbed into the result counts.
var ErrFileStructure = errors.New("normalize: invalid file structure")

// Result summarises one file's ingestion.
type Result struct {
	Kind      string `json:"kind"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

// Normalizer is implemented once per record kind.
type Normalizer interface {
	Kind() string
	Process(ctx context.Context, db *gorm.DB, doc *parsedoc.Node) (Result, error)
}

// ensurePromotionProgram lazily creates the promotion program on first
// reference from a line item.
func ensurePromotionProgram(tx *gorm.DB, id int64, name, description string, amount decimal.NullDecimal, now time.Time) error {
	if name == "" {
		name = fmt.Sprintf("Promotion %d", id)
	}
	row := models.PromotionProgram{
		ID:          id,
		Name:        name,
		Description: description,
		Amount:      amount,
		CreatedAt:   now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("normalize: create promotion %d: %w", id, err)
	}
	return nil
}

// ensureRebateProgram mirrors ensurePromotionProgram for rebates.
func ensureRebateProgram(tx *gorm.DB, id int64, name, rebateType string, amount, percent decimal.NullDecimal, now time.Time) error {
	if name == "" {
		name = fmt.Sprintf("Rebate %d", id)
	}
	if rebateType == "" {
		rebateType = "cashback"
	}
	row := models.RebateProgram{
		ID:        id,
		Name:      name,
		Type:      rebateType,
		Amount:    amount,
		Percent:   percent,
		Active:    true,
		CreatedAt: now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("normalize: create rebate %d: %w", id, err)
	}
	return nil
}

// ensurePromotionUPCLink inserts the (promotion, upc) association at most
// once; the composite unique index makes the insert idempotent.
func ensurePromotionUPCLink(tx *gorm.DB, promotionID, upc int64, now time.Time) error {
	row := models.PromotionUPCLink{
		ID:          uuid.New(),
		PromotionID: promotionID,
		UPC:         upc,
		Active:      true,
		CreatedAt:   now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("normalize: link promotion %d upc %d: %w", promotionID, upc, err)
	}
	return nil
}

// ensureRebateUPCLink inserts the (rebate, upc) association at most once.
func ensureRebateUPCLink(tx *gorm.DB, rebateID, upc int64, now time.Time) error {
	row := models.RebateUPCLink{
		ID:        uuid.New(),
		RebateID:  rebateID,
		UPC:       upc,
		Active:    true,
		CreatedAt: now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("normalize: link rebate %d upc %d: %w", rebateID, upc, err)
	}
	return nil
}

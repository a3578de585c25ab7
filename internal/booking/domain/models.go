package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BookingStatus is the booking lifecycle state. Posting triggers are bound
// to transitions, never to arbitrary calls.
type BookingStatus string

const (
	StatusDraft     BookingStatus = "DRAFT"
	StatusQuoted    BookingStatus = "QUOTED"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusVouchered BookingStatus = "VOUCHERED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusDraft:     {StatusQuoted, StatusCancelled},
	StatusQuoted:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusVouchered, StatusCancelled},
	StatusVouchered: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether the lifecycle allows moving from s to target.
func (s BookingStatus) CanTransition(target BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Booking is the slice of the booking aggregate the finance engine needs:
// amounts, currency, parties and lifecycle state.
type Booking struct {
	ID       snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID    snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	AgencyID snowflake.ID  `gorm:"not null;index" json:"agency_id"`
	// SupplierID may be absent until the booking is assigned; accrual
	// requires it.
	SupplierID *snowflake.ID `gorm:"index" json:"supplier_id,omitempty"`
	Status     BookingStatus `gorm:"type:text;not null;default:DRAFT" json:"status"`
	Currency   string        `gorm:"type:text;not null" json:"currency"`
	SellAmount decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"sell_amount"`
	// SellSettlement is the FX-snapshot amount in the platform settlement
	// currency, captured upstream. Required before confirmation for any
	// booking not already priced in the settlement currency.
	SellSettlement   *decimal.Decimal `gorm:"type:numeric(20,6)" json:"sell_settlement,omitempty"`
	CommissionAmount decimal.Decimal  `gorm:"type:numeric(20,6);not null;default:0" json:"commission_amount"`
	// CommissionReversed marks that the confirmation posting has been
	// reversed; a second cancellation is financially a no-op.
	CommissionReversed bool              `gorm:"not null;default:false" json:"commission_reversed"`
	SupplierFinance    datatypes.JSONMap `gorm:"type:jsonb" json:"supplier_finance,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// SettlementAmount resolves the amount to post in the settlement currency.
// Returns ok=false when the booking is priced in a foreign currency and the
// FX snapshot has not been taken yet.
func (b *Booking) SettlementAmount(settlementCurrency string) (decimal.Decimal, bool) {
	if strings.EqualFold(strings.TrimSpace(b.Currency), strings.TrimSpace(settlementCurrency)) {
		return b.SellAmount, true
	}
	if b.SellSettlement != nil {
		return *b.SellSettlement, true
	}
	return decimal.Zero, false
}

// BookingFinancials is the denormalized per-booking mirror of the ledger:
// running sell/refunded/penalty totals for fast reads. One row per booking,
// created lazily and updated incrementally, never recreated.
type BookingFinancials struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;uniqueIndex:ux_booking_financials_booking,priority:1" json:"organization_id"`
	BookingID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_booking_financials_booking,priority:2" json:"booking_id"`
	Currency      string          `gorm:"type:text;not null" json:"currency"`
	SellTotal     decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0" json:"sell_total"`
	RefundedTotal decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0" json:"refunded_total"`
	// PenaltyTotal is clamped at zero: refunded_total may legitimately
	// exceed sell_total, and penalty must never go negative.
	PenaltyTotal   decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0" json:"penalty_total"`
	RefundsApplied datatypes.JSON  `gorm:"type:jsonb" json:"refunds_applied,omitempty"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (BookingFinancials) TableName() string { return "booking_financials" }

// RefundApplication is one element of BookingFinancials.RefundsApplied.
type RefundApplication struct {
	CaseID    string    `json:"case_id"`
	Amount    string    `json:"amount"`
	PostingID string    `json:"posting_id"`
	At        time.Time `json:"at"`
}

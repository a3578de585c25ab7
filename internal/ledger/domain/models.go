package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	"gorm.io/datatypes"
)

// Event names a business event that produces one balanced posting.
type Event string

const (
	EventBookingConfirmed        Event = "BOOKING_CONFIRMED"
	EventBookingCancelled        Event = "BOOKING_CANCELLED"
	EventBookingAmendedDelta     Event = "BOOKING_AMENDED_DELTA"
	EventPaymentReceived         Event = "PAYMENT_RECEIVED"
	EventRefundApproved          Event = "REFUND_APPROVED"
	EventSupplierAccrued         Event = "SUPPLIER_ACCRUED"
	EventSupplierAccrualReversed Event = "SUPPLIER_ACCRUAL_REVERSED"
)

// Valid reports whether e is a known posting event.
func (e Event) Valid() bool {
	switch e {
	case EventBookingConfirmed, EventBookingCancelled, EventBookingAmendedDelta,
		EventPaymentReceived, EventRefundApproved,
		EventSupplierAccrued, EventSupplierAccrualReversed:
		return true
	default:
		return false
	}
}

// Source types for postings.
const (
	SourceTypeBooking         = "booking"
	SourceTypeSupplierAccrual = "supplier_accrual"
	SourceTypeRefundCase      = "refund_case"
	SourceTypePayment         = "payment"
)

// Posting is one immutable, balanced group of ledger entries recorded for
// exactly one (source, event) pair. The unique index on (org_id, source_type,
// source_id, event) is the idempotency key: a retry returns the existing
// posting instead of creating a second one.
type Posting struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_ledger_postings_key,priority:1" json:"organization_id"`
	SourceType string            `gorm:"type:text;not null;uniqueIndex:ux_ledger_postings_key,priority:2" json:"source_type"`
	SourceID   snowflake.ID      `gorm:"not null;uniqueIndex:ux_ledger_postings_key,priority:3" json:"source_id"`
	Event      Event             `gorm:"type:text;not null;uniqueIndex:ux_ledger_postings_key,priority:4" json:"event"`
	Currency   string            `gorm:"type:text;not null" json:"currency"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy  string            `gorm:"type:text;not null" json:"created_by"`
	Meta       datatypes.JSONMap `gorm:"type:jsonb" json:"meta,omitempty"`

	Entries []Entry `gorm:"-" json:"entries,omitempty"`
}

func (Posting) TableName() string { return "ledger_postings" }

// Entry is one immutable debit or credit line within a posting. Entries are
// never updated or deleted; a reversal is a new balancing posting.
type Entry struct {
	ID         snowflake.ID           `gorm:"primaryKey" json:"id"`
	PostingID  snowflake.ID           `gorm:"not null;index" json:"posting_id"`
	OrgID      snowflake.ID           `gorm:"not null;index" json:"organization_id"`
	AccountID  snowflake.ID           `gorm:"not null;index:idx_ledger_entries_account,priority:1" json:"account_id"`
	Currency   string                 `gorm:"type:text;not null;index:idx_ledger_entries_account,priority:2" json:"currency"`
	Side       accountdomain.Side     `gorm:"type:text;not null" json:"side"`
	Amount     decimal.Decimal        `gorm:"type:numeric(20,6);not null" json:"amount"`
	OccurredAt time.Time              `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Entry) TableName() string { return "ledger_entries" }

// AccountBalance is the running balance per (account, currency). It is a
// cache of the entries: RecalculateBalance can rebuild any row from the
// ledger at any time, and the rebuilt value must match.
type AccountBalance struct {
	AccountID snowflake.ID    `gorm:"primaryKey" json:"account_id"`
	Currency  string          `gorm:"primaryKey;type:text" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"balance"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (AccountBalance) TableName() string { return "account_balances" }

// Line is one side of a posting before it is persisted. Lines carry no
// currency of their own; every line in a posting settles in the posting
// currency, which keeps currency uniform by construction.
type Line struct {
	AccountID snowflake.ID       `json:"account_id"`
	Side      accountdomain.Side `json:"side"`
	Amount    decimal.Decimal    `json:"amount"`
}

// PostEventInput carries everything needed to post one business event.
type PostEventInput struct {
	OrgID      snowflake.ID
	SourceType string
	SourceID   snowflake.ID
	Event      Event
	Currency   string
	Lines      []Line
	OccurredAt time.Time
	CreatedBy  string
	Meta       map[string]any
}

// BalanceRecalc is the result of rebuilding one balance row from entries.
type BalanceRecalc struct {
	AccountID   snowflake.ID    `json:"account_id"`
	Currency    string          `json:"currency"`
	EntryCount  int64           `json:"entry_count"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balance     decimal.Decimal `json:"balance"`
}

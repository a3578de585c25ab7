package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
)

type AccrualStatus string

const (
	StatusAccrued  AccrualStatus = "accrued"
	StatusReversed AccrualStatus = "reversed"
)

// SupplierAccrual is a recognized-but-not-yet-paid supplier liability,
// established when a booking is vouchered. Exactly one accrual exists per
// booking, enforced by the unique index on (org_id, booking_id).
type SupplierAccrual struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_supplier_accruals_booking,priority:1" json:"organization_id"`
	BookingID  snowflake.ID  `gorm:"not null;uniqueIndex:ux_supplier_accruals_booking,priority:2" json:"booking_id"`
	SupplierID snowflake.ID  `gorm:"not null;index" json:"supplier_id"`
	Currency   string        `gorm:"type:text;not null" json:"currency"`
	Gross      decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"gross"`
	Commission decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"commission"`
	NetPayable decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"net_payable"`
	Status     AccrualStatus `gorm:"type:text;not null;default:accrued" json:"status"`
	// AccrualPostingID references the SUPPLIER_ACCRUED posting.
	AccrualPostingID snowflake.ID `gorm:"not null" json:"accrual_posting_id"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SupplierAccrual) TableName() string { return "supplier_accruals" }

type Service interface {
	// AccrueForBooking binds the supplier accrual to the CONFIRMED→VOUCHERED
	// transition. A retried voucher run finds the existing accrual and
	// returns it unchanged with a nil posting error and no new financial
	// effects.
	AccrueForBooking(ctx context.Context, orgID, bookingID snowflake.ID, actor string) (*SupplierAccrual, *ledgerdomain.Posting, error)
	// Reverse cancels the accrued payable with an equal-and-opposite
	// posting, once, and marks the accrual reversed.
	Reverse(ctx context.Context, orgID, bookingID snowflake.ID, actor string) (*SupplierAccrual, *ledgerdomain.Posting, error)
	GetForBooking(ctx context.Context, orgID, bookingID snowflake.ID) (*SupplierAccrual, error)
}

var (
	ErrNotFound          = errors.New("supplier_accrual_not_found")
	ErrSupplierIDMissing = errors.New("supplier_id_missing")
	ErrInvalidCommission = errors.New("invalid_commission")
	ErrAlreadyReversed   = errors.New("supplier_accrual_reversed")
)

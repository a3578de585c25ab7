package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	"gorm.io/gorm"
)

type CreateBookingInput struct {
	OrgID            snowflake.ID
	AgencyID         snowflake.ID
	SupplierID       *snowflake.ID
	Currency         string
	SellAmount       decimal.Decimal
	SellSettlement   *decimal.Decimal
	CommissionAmount decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, input CreateBookingInput) (*Booking, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Booking, error)

	// Quote moves DRAFT to QUOTED. No financial effect.
	Quote(ctx context.Context, orgID, id snowflake.ID) (*Booking, error)
	// Confirm moves QUOTED to CONFIRMED and posts BOOKING_CONFIRMED for the
	// settlement-currency sell amount. Fails with fx_snapshot_missing when a
	// foreign-currency booking carries no FX snapshot.
	Confirm(ctx context.Context, orgID, id snowflake.ID, actor string) (*Booking, *ledgerdomain.Posting, error)
	// Cancel moves the booking to CANCELLED and posts the equal-and-opposite
	// reversal of the confirmation posting, once. Cancelling an already
	// cancelled booking is a no-op.
	Cancel(ctx context.Context, orgID, id snowflake.ID, actor string) (*Booking, *ledgerdomain.Posting, error)
	// Complete moves VOUCHERED to COMPLETED. No financial effect.
	Complete(ctx context.Context, orgID, id snowflake.ID) (*Booking, error)

	// EnsureFinancials lazily creates the per-booking financials mirror.
	// Calling it twice never creates a second row.
	EnsureFinancials(ctx context.Context, orgID, bookingID snowflake.ID) (*BookingFinancials, error)
	GetFinancials(ctx context.Context, orgID, bookingID snowflake.ID) (*BookingFinancials, error)
	// ApplyRefundTx folds an approved refund into the financials mirror
	// inside the caller's transaction: refunded_total grows by amount and
	// penalty_total is re-derived with the zero clamp.
	ApplyRefundTx(ctx context.Context, tx *gorm.DB, orgID, bookingID, caseID, postingID snowflake.ID, amount decimal.Decimal, at time.Time) (*BookingFinancials, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Booking, error)
	Update(ctx context.Context, db *gorm.DB, booking *Booking) error

	InsertFinancials(ctx context.Context, db *gorm.DB, financials *BookingFinancials) error
	FindFinancials(ctx context.Context, db *gorm.DB, orgID, bookingID snowflake.ID) (*BookingFinancials, error)
	UpdateFinancials(ctx context.Context, db *gorm.DB, financials *BookingFinancials) error
}

var (
	ErrNotFound          = errors.New("booking_not_found")
	ErrInvalidState      = errors.New("invalid_booking_state")
	ErrFxSnapshotMissing = errors.New("fx_snapshot_missing")
	ErrInvalidAmount     = errors.New("invalid_booking_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
)

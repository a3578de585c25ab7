package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
)

type CaseStatus string

const (
	CaseOpen   CaseStatus = "open"
	CaseClosed CaseStatus = "closed"
)

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionPartial  Decision = "partial"
	DecisionRejected Decision = "rejected"
)

// RefundCase tracks one refund request through decision. The computed
// snapshot (gross sell, penalty, refundable) is taken at open time from the
// booking financials; approval re-checks the live ceiling, so a stale
// snapshot can never over-refund.
//
// At most one open case exists per booking, enforced by a partial unique
// index on (org_id, booking_id) WHERE status = 'open'.
type RefundCase struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index:idx_refund_cases_booking,priority:1" json:"organization_id"`
	BookingID snowflake.ID `gorm:"not null;index:idx_refund_cases_booking,priority:2" json:"booking_id"`
	Status    CaseStatus   `gorm:"type:text;not null;default:open" json:"status"`
	Reason    string       `gorm:"type:text" json:"reason,omitempty"`
	Currency  string       `gorm:"type:text;not null" json:"currency"`

	// RequestedAmount is what the requester asked for; nil when the case was
	// opened without a concrete figure. Informational only, the approval
	// ceiling comes from the live financials.
	RequestedAmount *decimal.Decimal `gorm:"type:numeric(20,6)" json:"requested_amount,omitempty"`

	ComputedGrossSell  decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"computed_gross_sell"`
	ComputedPenalty    decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"computed_penalty"`
	ComputedRefundable decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"computed_refundable"`
	Basis              string          `gorm:"type:text" json:"basis,omitempty"`
	PolicyRef          string          `gorm:"type:text" json:"policy_ref,omitempty"`

	Decision       Decision         `gorm:"type:text" json:"decision,omitempty"`
	ApprovedAmount *decimal.Decimal `gorm:"type:numeric(20,6)" json:"approved_amount,omitempty"`
	// LedgerPostingID references the REFUND_APPROVED posting; nil until an
	// approval, and stays nil for rejected cases.
	LedgerPostingID     *snowflake.ID `gorm:"" json:"ledger_posting_id,omitempty"`
	BookingFinancialsID snowflake.ID  `gorm:"not null" json:"booking_financials_id"`
	DecisionAt          *time.Time    `gorm:"" json:"decision_at,omitempty"`
	DecidedBy           string        `gorm:"type:text" json:"decided_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RefundCase) TableName() string { return "refund_cases" }

type OpenCaseInput struct {
	OrgID           snowflake.ID
	BookingID       snowflake.ID
	Reason          string
	RequestedAmount *decimal.Decimal
	Basis           string
	PolicyRef       string
	Actor           string
}

type Service interface {
	// Open creates a refund case with a computed refundable snapshot. A
	// second open while one case is still undecided fails with
	// refund_case_exists.
	Open(ctx context.Context, input OpenCaseInput) (*RefundCase, error)
	// Approve closes the case with an approval decision, posts
	// REFUND_APPROVED and folds the amount into the booking financials, all
	// in one transaction. amount above the live refundable ceiling fails
	// with approved_amount_invalid; a decided case fails with
	// invalid_case_state. decision is partial when amount is below the
	// ceiling.
	Approve(ctx context.Context, orgID, caseID snowflake.ID, amount decimal.Decimal, actor string) (*RefundCase, *ledgerdomain.Posting, error)
	// Reject closes the case with no posting and no financial effect.
	Reject(ctx context.Context, orgID, caseID snowflake.ID, actor string) (*RefundCase, error)

	Get(ctx context.Context, orgID, caseID snowflake.ID) (*RefundCase, error)
	ListForBooking(ctx context.Context, orgID, bookingID snowflake.ID) ([]*RefundCase, error)
}

var (
	ErrNotFound              = errors.New("refund_case_not_found")
	ErrCaseExists            = errors.New("refund_case_exists")
	ErrInvalidCaseState      = errors.New("invalid_case_state")
	ErrApprovedAmountInvalid = errors.New("approved_amount_invalid")
)

package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	"github.com/tripfolio/financeos/internal/clock"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	obsmetrics "github.com/tripfolio/financeos/internal/observability/metrics"
	refunddomain "github.com/tripfolio/financeos/internal/refund/domain"
	"github.com/tripfolio/financeos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	BookingRepo bookingdomain.Repository
	BookingSvc  bookingdomain.Service
	AccountSvc  accountdomain.Service
	LedgerSvc   ledgerdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	bookingRepo bookingdomain.Repository
	bookingSvc  bookingdomain.Service
	accountSvc  accountdomain.Service
	ledgerSvc   ledgerdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) refunddomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("refund.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		bookingRepo: p.BookingRepo,
		bookingSvc:  p.BookingSvc,
		accountSvc:  p.AccountSvc,
		ledgerSvc:   p.LedgerSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Open(ctx context.Context, input refunddomain.OpenCaseInput) (*refunddomain.RefundCase, error) {
	if input.OrgID == 0 || input.BookingID == 0 {
		return nil, refunddomain.ErrNotFound
	}

	// EnsureFinancials runs its own short transaction; the case insert below
	// re-reads the row inside ours.
	if _, err := s.bookingSvc.EnsureFinancials(ctx, input.OrgID, input.BookingID); err != nil {
		return nil, err
	}

	var refundCase *refunddomain.RefundCase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		financials, err := s.bookingRepo.FindFinancials(ctx, tx, input.OrgID, input.BookingID)
		if err != nil {
			return err
		}
		if financials == nil {
			return bookingdomain.ErrNotFound
		}

		open, err := s.findOpenCase(ctx, tx, input.OrgID, input.BookingID)
		if err != nil {
			return err
		}
		if open != nil {
			return refunddomain.ErrCaseExists
		}

		now := s.clock.Now()
		refundCase = &refunddomain.RefundCase{
			ID:                  s.genID.Generate(),
			OrgID:               input.OrgID,
			BookingID:           input.BookingID,
			Status:              refunddomain.CaseOpen,
			Reason:              input.Reason,
			RequestedAmount:     input.RequestedAmount,
			Currency:            financials.Currency,
			ComputedGrossSell:   financials.SellTotal,
			ComputedPenalty:     financials.PenaltyTotal,
			ComputedRefundable:  refundable(financials),
			Basis:               input.Basis,
			PolicyRef:           input.PolicyRef,
			BookingFinancialsID: financials.ID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.WithContext(ctx).Create(refundCase).Error; err != nil {
			// Partial unique index on open cases backs the pre-check under
			// concurrency.
			if db.IsDuplicateKeyErr(err) {
				return refunddomain.ErrCaseExists
			}
			return fmt.Errorf("create refund case: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("refund case opened",
		zap.String("case_id", refundCase.ID.String()),
		zap.String("booking_id", refundCase.BookingID.String()),
		zap.String("refundable", refundCase.ComputedRefundable.String()),
	)
	return refundCase, nil
}

func (s *Service) Approve(ctx context.Context, orgID, caseID snowflake.ID, amount decimal.Decimal, actor string) (*refunddomain.RefundCase, *ledgerdomain.Posting, error) {
	var (
		refundCase *refunddomain.RefundCase
		posting    *ledgerdomain.Posting
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		refundCase, err = s.findCase(ctx, tx, orgID, caseID)
		if err != nil {
			return err
		}
		if refundCase == nil {
			return refunddomain.ErrNotFound
		}
		if refundCase.Status != refunddomain.CaseOpen {
			return refunddomain.ErrInvalidCaseState
		}

		// The ceiling is the live refundable, not the open-time snapshot:
		// approvals since the case was opened shrink it.
		financials, err := s.bookingRepo.FindFinancials(ctx, tx, orgID, refundCase.BookingID)
		if err != nil {
			return err
		}
		if financials == nil {
			return bookingdomain.ErrNotFound
		}
		ceiling := refundable(financials)
		if !amount.IsPositive() || amount.GreaterThan(ceiling) {
			return refunddomain.ErrApprovedAmountInvalid
		}

		// Claim the case before posting; a concurrent approval loses here
		// instead of double-posting.
		claim := tx.WithContext(ctx).
			Model(&refunddomain.RefundCase{}).
			Where("org_id = ? AND id = ? AND status = ?", orgID, caseID, refunddomain.CaseOpen).
			Update("status", refunddomain.CaseClosed)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return refunddomain.ErrInvalidCaseState
		}

		booking, err := s.bookingRepo.FindByID(ctx, tx, orgID, refundCase.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}

		agencyAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypeAgency, booking.AgencyID, financials.Currency)
		if err != nil {
			return err
		}
		platformAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypePlatform, orgID, financials.Currency)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		posting, _, err = s.ledgerSvc.PostEventTx(ctx, tx, ledgerdomain.PostEventInput{
			OrgID:      orgID,
			SourceType: ledgerdomain.SourceTypeRefundCase,
			SourceID:   refundCase.ID,
			Event:      ledgerdomain.EventRefundApproved,
			Currency:   financials.Currency,
			Lines:      ledgerdomain.RefundApprovedLines(agencyAccount.ID, platformAccount.ID, amount),
			OccurredAt: now,
			CreatedBy:  actor,
			Meta: map[string]any{
				"booking_id": refundCase.BookingID.String(),
				"approved":   amount.String(),
			},
		})
		if err != nil {
			return err
		}

		if _, err := s.bookingSvc.ApplyRefundTx(ctx, tx, orgID, refundCase.BookingID, refundCase.ID, posting.ID, amount, now); err != nil {
			return err
		}

		decision := refunddomain.DecisionApproved
		if amount.LessThan(ceiling) {
			decision = refunddomain.DecisionPartial
		}
		refundCase.Status = refunddomain.CaseClosed
		refundCase.Decision = decision
		refundCase.ApprovedAmount = &amount
		refundCase.LedgerPostingID = &posting.ID
		refundCase.DecisionAt = &now
		refundCase.DecidedBy = actor
		refundCase.UpdatedAt = now
		return tx.WithContext(ctx).
			Model(&refunddomain.RefundCase{}).
			Where("org_id = ? AND id = ?", orgID, caseID).
			Updates(map[string]any{
				"decision":          string(decision),
				"approved_amount":   amount,
				"ledger_posting_id": posting.ID,
				"decision_at":       now,
				"decided_by":        actor,
				"updated_at":        now,
			}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.obsMetrics.RecordRefundDecision(ctx, string(refundCase.Decision))
	return refundCase, posting, nil
}

func (s *Service) Reject(ctx context.Context, orgID, caseID snowflake.ID, actor string) (*refunddomain.RefundCase, error) {
	var refundCase *refunddomain.RefundCase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		refundCase, err = s.findCase(ctx, tx, orgID, caseID)
		if err != nil {
			return err
		}
		if refundCase == nil {
			return refunddomain.ErrNotFound
		}

		now := s.clock.Now()
		res := tx.WithContext(ctx).
			Model(&refunddomain.RefundCase{}).
			Where("org_id = ? AND id = ? AND status = ?", orgID, caseID, refunddomain.CaseOpen).
			Updates(map[string]any{
				"status":      refunddomain.CaseClosed,
				"decision":    string(refunddomain.DecisionRejected),
				"decision_at": now,
				"decided_by":  actor,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return refunddomain.ErrInvalidCaseState
		}

		refundCase.Status = refunddomain.CaseClosed
		refundCase.Decision = refunddomain.DecisionRejected
		refundCase.DecisionAt = &now
		refundCase.DecidedBy = actor
		refundCase.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordRefundDecision(ctx, string(refunddomain.DecisionRejected))
	return refundCase, nil
}

func (s *Service) Get(ctx context.Context, orgID, caseID snowflake.ID) (*refunddomain.RefundCase, error) {
	refundCase, err := s.findCase(ctx, s.db, orgID, caseID)
	if err != nil {
		return nil, err
	}
	if refundCase == nil {
		return nil, refunddomain.ErrNotFound
	}
	return refundCase, nil
}

func (s *Service) ListForBooking(ctx context.Context, orgID, bookingID snowflake.ID) ([]*refunddomain.RefundCase, error) {
	var cases []*refunddomain.RefundCase
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND booking_id = ?", orgID, bookingID).
		Order("id DESC").
		Find(&cases).Error
	if err != nil {
		return nil, err
	}
	return cases, nil
}

func (s *Service) findCase(ctx context.Context, db *gorm.DB, orgID, caseID snowflake.ID) (*refunddomain.RefundCase, error) {
	var refundCase refunddomain.RefundCase
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, caseID).
		Find(&refundCase).Error
	if err != nil {
		return nil, err
	}
	if refundCase.ID == 0 {
		return nil, nil
	}
	return &refundCase, nil
}

func (s *Service) findOpenCase(ctx context.Context, db *gorm.DB, orgID, bookingID snowflake.ID) (*refunddomain.RefundCase, error) {
	var refundCase refunddomain.RefundCase
	err := db.WithContext(ctx).
		Where("org_id = ? AND booking_id = ? AND status = ?", orgID, bookingID, refunddomain.CaseOpen).
		Find(&refundCase).Error
	if err != nil {
		return nil, err
	}
	if refundCase.ID == 0 {
		return nil, nil
	}
	return &refundCase, nil
}

// refundable is sell_total minus refunded_total, clamped at zero.
func refundable(f *bookingdomain.BookingFinancials) decimal.Decimal {
	r := f.SellTotal.Sub(f.RefundedTotal)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	"github.com/tripfolio/financeos/internal/clock"
	"github.com/tripfolio/financeos/internal/config"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	"github.com/tripfolio/financeos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Clock      clock.Clock
	Repo       bookingdomain.Repository
	AccountSvc accountdomain.Service
	LedgerSvc  ledgerdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	settlement string
	clock      clock.Clock
	repo       bookingdomain.Repository
	accountSvc accountdomain.Service
	ledgerSvc  ledgerdomain.Service
}

func NewService(p Params) bookingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("booking.service"),
		genID:      p.GenID,
		settlement: p.Config.SettlementCurrency,
		clock:      p.Clock,
		repo:       p.Repo,
		accountSvc: p.AccountSvc,
		ledgerSvc:  p.LedgerSvc,
	}
}

func (s *Service) Create(ctx context.Context, input bookingdomain.CreateBookingInput) (*bookingdomain.Booking, error) {
	if input.OrgID == 0 || input.AgencyID == 0 {
		return nil, bookingdomain.ErrNotFound
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, bookingdomain.ErrInvalidCurrency
	}
	if !input.SellAmount.IsPositive() {
		return nil, bookingdomain.ErrInvalidAmount
	}
	if input.CommissionAmount.IsNegative() {
		return nil, bookingdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	booking := &bookingdomain.Booking{
		ID:               s.genID.Generate(),
		OrgID:            input.OrgID,
		AgencyID:         input.AgencyID,
		SupplierID:       input.SupplierID,
		Status:           bookingdomain.StatusDraft,
		Currency:         currency,
		SellAmount:       input.SellAmount,
		SellSettlement:   input.SellSettlement,
		CommissionAmount: input.CommissionAmount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	return booking, nil
}

func (s *Service) Quote(ctx context.Context, orgID, id snowflake.ID) (*bookingdomain.Booking, error) {
	return s.transition(ctx, orgID, id, bookingdomain.StatusQuoted)
}

func (s *Service) Complete(ctx context.Context, orgID, id snowflake.ID) (*bookingdomain.Booking, error) {
	return s.transition(ctx, orgID, id, bookingdomain.StatusCompleted)
}

func (s *Service) transition(ctx context.Context, orgID, id snowflake.ID, target bookingdomain.BookingStatus) (*bookingdomain.Booking, error) {
	var booking *bookingdomain.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		booking, err = s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}
		if !booking.Status.CanTransition(target) {
			return bookingdomain.ErrInvalidState
		}
		booking.Status = target
		booking.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Confirm binds the BOOKING_CONFIRMED posting to the QUOTED→CONFIRMED
// transition. The posting settles in the platform settlement currency, so a
// foreign-currency booking must carry its FX snapshot first.
func (s *Service) Confirm(ctx context.Context, orgID, id snowflake.ID, actor string) (*bookingdomain.Booking, *ledgerdomain.Posting, error) {
	var (
		booking *bookingdomain.Booking
		posting *ledgerdomain.Posting
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		booking, err = s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}
		if !booking.Status.CanTransition(bookingdomain.StatusConfirmed) {
			return bookingdomain.ErrInvalidState
		}

		amount, ok := booking.SettlementAmount(s.settlement)
		if !ok {
			return bookingdomain.ErrFxSnapshotMissing
		}

		agencyAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypeAgency, booking.AgencyID, s.settlement)
		if err != nil {
			return err
		}
		platformAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypePlatform, orgID, s.settlement)
		if err != nil {
			return err
		}

		posting, _, err = s.ledgerSvc.PostEventTx(ctx, tx, ledgerdomain.PostEventInput{
			OrgID:      orgID,
			SourceType: ledgerdomain.SourceTypeBooking,
			SourceID:   booking.ID,
			Event:      ledgerdomain.EventBookingConfirmed,
			Currency:   s.settlement,
			Lines:      ledgerdomain.BookingConfirmedLines(agencyAccount.ID, platformAccount.ID, amount),
			OccurredAt: s.clock.Now(),
			CreatedBy:  actor,
			Meta: map[string]any{
				"booking_currency": booking.Currency,
				"sell_amount":      booking.SellAmount.String(),
			},
		})
		if err != nil {
			return err
		}

		if err := s.ensureFinancialsTx(ctx, tx, booking, amount); err != nil {
			return err
		}

		booking.Status = bookingdomain.StatusConfirmed
		booking.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, booking)
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, posting, nil
}

// Cancel reverses the confirmation posting with equal-and-opposite lines,
// exactly once, and moves the booking to CANCELLED. Cancelling a booking
// that was never confirmed only changes status.
func (s *Service) Cancel(ctx context.Context, orgID, id snowflake.ID, actor string) (*bookingdomain.Booking, *ledgerdomain.Posting, error) {
	var (
		booking *bookingdomain.Booking
		posting *ledgerdomain.Posting
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		booking, err = s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}
		if booking.Status == bookingdomain.StatusCancelled {
			return nil
		}
		if !booking.Status.CanTransition(bookingdomain.StatusCancelled) {
			return bookingdomain.ErrInvalidState
		}

		confirmed, err := s.ledgerSvc.FindPosting(ctx, orgID, ledgerdomain.SourceTypeBooking, booking.ID, ledgerdomain.EventBookingConfirmed)
		if err != nil {
			return err
		}
		if confirmed != nil && !booking.CommissionReversed {
			agencyAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypeAgency, booking.AgencyID, confirmed.Currency)
			if err != nil {
				return err
			}
			platformAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypePlatform, orgID, confirmed.Currency)
			if err != nil {
				return err
			}

			amount := confirmedAmount(confirmed)
			posting, _, err = s.ledgerSvc.PostEventTx(ctx, tx, ledgerdomain.PostEventInput{
				OrgID:      orgID,
				SourceType: ledgerdomain.SourceTypeBooking,
				SourceID:   booking.ID,
				Event:      ledgerdomain.EventBookingCancelled,
				Currency:   confirmed.Currency,
				Lines:      ledgerdomain.BookingCancelledLines(agencyAccount.ID, platformAccount.ID, amount),
				OccurredAt: s.clock.Now(),
				CreatedBy:  actor,
				Meta: map[string]any{
					"reversal_of": confirmed.ID.String(),
				},
			})
			if err != nil {
				return err
			}
			booking.CommissionReversed = true
		}

		booking.Status = bookingdomain.StatusCancelled
		booking.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, booking)
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, posting, nil
}

// confirmedAmount reads the original posted amount off the confirmation
// posting's debit line, so the reversal mirrors it exactly.
func confirmedAmount(posting *ledgerdomain.Posting) decimal.Decimal {
	for _, entry := range posting.Entries {
		if entry.Side == accountdomain.SideDebit {
			return entry.Amount
		}
	}
	return decimal.Zero
}

func (s *Service) EnsureFinancials(ctx context.Context, orgID, bookingID snowflake.ID) (*bookingdomain.BookingFinancials, error) {
	var financials *bookingdomain.BookingFinancials
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.repo.FindByID(ctx, tx, orgID, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}
		amount, ok := booking.SettlementAmount(s.settlement)
		if !ok {
			amount = booking.SellAmount
		}
		if err := s.ensureFinancialsTx(ctx, tx, booking, amount); err != nil {
			return err
		}
		financials, err = s.repo.FindFinancials(ctx, tx, orgID, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return financials, nil
}

func (s *Service) ensureFinancialsTx(ctx context.Context, tx *gorm.DB, booking *bookingdomain.Booking, sellTotal decimal.Decimal) error {
	existing, err := s.repo.FindFinancials(ctx, tx, booking.OrgID, booking.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := s.clock.Now()
	financials := &bookingdomain.BookingFinancials{
		ID:            s.genID.Generate(),
		OrgID:         booking.OrgID,
		BookingID:     booking.ID,
		Currency:      s.settlement,
		SellTotal:     sellTotal,
		RefundedTotal: decimal.Zero,
		PenaltyTotal:  decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertFinancials(ctx, tx, financials); err != nil {
		// Concurrent ensure lost the race on (org_id, booking_id); the
		// existing row wins.
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return fmt.Errorf("create booking financials: %w", err)
	}
	return nil
}

func (s *Service) GetFinancials(ctx context.Context, orgID, bookingID snowflake.ID) (*bookingdomain.BookingFinancials, error) {
	financials, err := s.repo.FindFinancials(ctx, s.db, orgID, bookingID)
	if err != nil {
		return nil, err
	}
	if financials == nil {
		return nil, bookingdomain.ErrNotFound
	}
	return financials, nil
}

func (s *Service) ApplyRefundTx(ctx context.Context, tx *gorm.DB, orgID, bookingID, caseID, postingID snowflake.ID, amount decimal.Decimal, at time.Time) (*bookingdomain.BookingFinancials, error) {
	booking, err := s.repo.FindByID(ctx, tx, orgID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}

	settleAmount, ok := booking.SettlementAmount(s.settlement)
	if !ok {
		settleAmount = booking.SellAmount
	}
	if err := s.ensureFinancialsTx(ctx, tx, booking, settleAmount); err != nil {
		return nil, err
	}
	financials, err := s.repo.FindFinancials(ctx, tx, orgID, bookingID)
	if err != nil {
		return nil, err
	}

	financials.RefundedTotal = financials.RefundedTotal.Add(amount)
	// refunded_total may exceed sell_total; penalty never goes negative.
	penalty := financials.SellTotal.Sub(financials.RefundedTotal)
	if penalty.IsNegative() {
		penalty = decimal.Zero
	}
	financials.PenaltyTotal = penalty

	applied, err := appendRefundApplication(financials.RefundsApplied, bookingdomain.RefundApplication{
		CaseID:    caseID.String(),
		Amount:    amount.String(),
		PostingID: postingID.String(),
		At:        at.UTC(),
	})
	if err != nil {
		return nil, err
	}
	financials.RefundsApplied = datatypes.JSON(applied)
	financials.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateFinancials(ctx, tx, financials); err != nil {
		return nil, fmt.Errorf("update booking financials: %w", err)
	}
	return financials, nil
}

func appendRefundApplication(raw datatypes.JSON, application bookingdomain.RefundApplication) ([]byte, error) {
	var applications []bookingdomain.RefundApplication
	if len(raw) > 0 {
		if err := json.Unmarshal([]byte(raw), &applications); err != nil {
			return nil, fmt.Errorf("decode refunds_applied: %w", err)
		}
	}
	applications = append(applications, application)
	return json.Marshal(applications)
}

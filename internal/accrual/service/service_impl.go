package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	accrualdomain "github.com/tripfolio/financeos/internal/accrual/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	"github.com/tripfolio/financeos/internal/clock"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	obsmetrics "github.com/tripfolio/financeos/internal/observability/metrics"
	"github.com/tripfolio/financeos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	BookingRepo bookingdomain.Repository
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
	accountSvc  accountdomain.Service
	ledgerSvc   ledgerdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) accrualdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("accrual.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		bookingRepo: p.BookingRepo,
		accountSvc:  p.AccountSvc,
		ledgerSvc:   p.LedgerSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// AccrueForBooking establishes the supplier payable for a vouchered booking.
// Guards run before any write: no posting and no accrual document exist
// after a precondition failure.
func (s *Service) AccrueForBooking(ctx context.Context, orgID, bookingID snowflake.ID, actor string) (*accrualdomain.SupplierAccrual, *ledgerdomain.Posting, error) {
	var (
		accrual *accrualdomain.SupplierAccrual
		posting *ledgerdomain.Posting
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.bookingRepo.FindByID(ctx, tx, orgID, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}

		// Retried voucher generation: the accrual already exists, return it
		// with its original posting and change nothing.
		existing, err := s.findForBooking(ctx, tx, orgID, bookingID)
		if err != nil {
			return err
		}
		if existing != nil {
			accrual = existing
			posting, err = s.ledgerSvc.GetPosting(ctx, orgID, existing.AccrualPostingID)
			return err
		}

		if !booking.Status.CanTransition(bookingdomain.StatusVouchered) {
			return bookingdomain.ErrInvalidState
		}
		if booking.SupplierID == nil || *booking.SupplierID == 0 {
			return accrualdomain.ErrSupplierIDMissing
		}

		gross := booking.SellAmount
		commission := booking.CommissionAmount
		if commission.GreaterThan(gross) {
			return accrualdomain.ErrInvalidCommission
		}
		netPayable := gross.Sub(commission)

		platformAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypePlatform, orgID, booking.Currency)
		if err != nil {
			return err
		}
		supplierAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypeSupplier, *booking.SupplierID, booking.Currency)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		accrual = &accrualdomain.SupplierAccrual{
			ID:         s.genID.Generate(),
			OrgID:      orgID,
			BookingID:  bookingID,
			SupplierID: *booking.SupplierID,
			Currency:   booking.Currency,
			Gross:      gross,
			Commission: commission,
			NetPayable: netPayable,
			Status:     accrualdomain.StatusAccrued,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		posting, _, err = s.ledgerSvc.PostEventTx(ctx, tx, ledgerdomain.PostEventInput{
			OrgID:      orgID,
			SourceType: ledgerdomain.SourceTypeSupplierAccrual,
			SourceID:   accrual.ID,
			Event:      ledgerdomain.EventSupplierAccrued,
			Currency:   booking.Currency,
			Lines:      ledgerdomain.SupplierAccruedLines(platformAccount.ID, supplierAccount.ID, netPayable),
			OccurredAt: now,
			CreatedBy:  actor,
			Meta: map[string]any{
				"booking_id":  bookingID.String(),
				"supplier_id": booking.SupplierID.String(),
			},
		})
		if err != nil {
			return err
		}
		accrual.AccrualPostingID = posting.ID

		if err := tx.WithContext(ctx).Create(accrual).Error; err != nil {
			// A concurrent voucher run inserted the accrual first; the
			// unique index on (org_id, booking_id) keeps it single.
			if db.IsDuplicateKeyErr(err) {
				return accrualdomain.ErrNotFound
			}
			return fmt.Errorf("create supplier accrual: %w", err)
		}

		booking.SupplierFinance = datatypes.JSONMap{
			"accrual_id": accrual.ID.String(),
			"posting_id": posting.ID.String(),
			"net_amount": netPayable.String(),
		}
		booking.Status = bookingdomain.StatusVouchered
		booking.UpdatedAt = now
		return s.bookingRepo.Update(ctx, tx, booking)
	})
	if err != nil {
		return nil, nil, err
	}

	s.obsMetrics.RecordAccrual(ctx, string(accrual.Status))
	return accrual, posting, nil
}

func (s *Service) Reverse(ctx context.Context, orgID, bookingID snowflake.ID, actor string) (*accrualdomain.SupplierAccrual, *ledgerdomain.Posting, error) {
	var (
		accrual *accrualdomain.SupplierAccrual
		posting *ledgerdomain.Posting
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		accrual, err = s.findForBooking(ctx, tx, orgID, bookingID)
		if err != nil {
			return err
		}
		if accrual == nil {
			return accrualdomain.ErrNotFound
		}
		if accrual.Status == accrualdomain.StatusReversed {
			return accrualdomain.ErrAlreadyReversed
		}

		platformAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypePlatform, orgID, accrual.Currency)
		if err != nil {
			return err
		}
		supplierAccount, err := s.accountSvc.GetOrCreateTx(ctx, tx, orgID, accountdomain.AccountTypeSupplier, accrual.SupplierID, accrual.Currency)
		if err != nil {
			return err
		}

		posting, _, err = s.ledgerSvc.PostEventTx(ctx, tx, ledgerdomain.PostEventInput{
			OrgID:      orgID,
			SourceType: ledgerdomain.SourceTypeSupplierAccrual,
			SourceID:   accrual.ID,
			Event:      ledgerdomain.EventSupplierAccrualReversed,
			Currency:   accrual.Currency,
			Lines:      ledgerdomain.SupplierAccrualReversedLines(platformAccount.ID, supplierAccount.ID, accrual.NetPayable),
			OccurredAt: s.clock.Now(),
			CreatedBy:  actor,
			Meta: map[string]any{
				"booking_id":  bookingID.String(),
				"reversal_of": accrual.AccrualPostingID.String(),
			},
		})
		if err != nil {
			return err
		}

		accrual.Status = accrualdomain.StatusReversed
		accrual.UpdatedAt = s.clock.Now()
		return tx.WithContext(ctx).
			Model(&accrualdomain.SupplierAccrual{}).
			Where("org_id = ? AND id = ?", orgID, accrual.ID).
			Updates(map[string]any{
				"status":     string(accrual.Status),
				"updated_at": accrual.UpdatedAt,
			}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	s.obsMetrics.RecordAccrual(ctx, string(accrual.Status))
	return accrual, posting, nil
}

func (s *Service) GetForBooking(ctx context.Context, orgID, bookingID snowflake.ID) (*accrualdomain.SupplierAccrual, error) {
	accrual, err := s.findForBooking(ctx, s.db, orgID, bookingID)
	if err != nil {
		return nil, err
	}
	if accrual == nil {
		return nil, accrualdomain.ErrNotFound
	}
	return accrual, nil
}

func (s *Service) findForBooking(ctx context.Context, db *gorm.DB, orgID, bookingID snowflake.ID) (*accrualdomain.SupplierAccrual, error) {
	var accrual accrualdomain.SupplierAccrual
	err := db.WithContext(ctx).
		Where("org_id = ? AND booking_id = ?", orgID, bookingID).
		Find(&accrual).Error
	if err != nil {
		return nil, err
	}
	if accrual.ID == 0 {
		return nil, nil
	}
	return &accrual, nil
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	accountrepo "github.com/tripfolio/financeos/internal/account/repository"
	accountservice "github.com/tripfolio/financeos/internal/account/service"
	accrualdomain "github.com/tripfolio/financeos/internal/accrual/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	bookingrepo "github.com/tripfolio/financeos/internal/booking/repository"
	bookingservice "github.com/tripfolio/financeos/internal/booking/service"
	"github.com/tripfolio/financeos/internal/clock"
	"github.com/tripfolio/financeos/internal/config"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	ledgerservice "github.com/tripfolio/financeos/internal/ledger/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type accrualHarness struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        accrualdomain.Service
	bookingSvc bookingdomain.Service
	accountSvc accountdomain.Service
	ledgerSvc  ledgerdomain.Service
}

func setupAccrualTest(t *testing.T) *accrualHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&ledgerdomain.Posting{},
		&ledgerdomain.Entry{},
		&ledgerdomain.AccountBalance{},
		&bookingdomain.Booking{},
		&bookingdomain.BookingFinancials{},
		&accrualdomain.SupplierAccrual{},
	))
	// SQLite needs the exact unique indexes for ON CONFLICT targets.
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_org_code ON accounts(org_id, code)",
	).Error)
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_postings_key ON ledger_postings(org_id, source_type, source_id, event)",
	).Error)
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_supplier_accruals_booking ON supplier_accruals(org_id, booking_id)",
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	accountSvc := accountservice.NewService(accountservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  accountrepo.Provide(),
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
	})
	bookingSvc := bookingservice.NewService(bookingservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Config:     config.Config{SettlementCurrency: "EUR"},
		Clock:      fake,
		Repo:       bookingrepo.Provide(),
		AccountSvc: accountSvc,
		LedgerSvc:  ledgerSvc,
	})
	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		BookingRepo: bookingrepo.Provide(),
		AccountSvc:  accountSvc,
		LedgerSvc:   ledgerSvc,
	})

	return &accrualHarness{
		db:         db,
		node:       node,
		svc:        svc,
		bookingSvc: bookingSvc,
		accountSvc: accountSvc,
		ledgerSvc:  ledgerSvc,
	}
}

func (h *accrualHarness) confirmedBooking(t *testing.T, orgID snowflake.ID, input bookingdomain.CreateBookingInput) *bookingdomain.Booking {
	t.Helper()
	ctx := context.Background()
	input.OrgID = orgID
	booking, err := h.bookingSvc.Create(ctx, input)
	require.NoError(t, err)
	_, err = h.bookingSvc.Quote(ctx, orgID, booking.ID)
	require.NoError(t, err)
	booking, _, err = h.bookingSvc.Confirm(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)
	return booking
}

func TestAccrueForBooking_EstablishesSupplierPayable(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:         h.node.Generate(),
		SupplierID:       &supplierID,
		Currency:         "EUR",
		SellAmount:       decimal.NewFromInt(1000),
		CommissionAmount: decimal.NewFromInt(150),
	})

	accrual, posting, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, accrualdomain.StatusAccrued, accrual.Status)
	assert.True(t, accrual.NetPayable.Equal(decimal.NewFromInt(850)), accrual.NetPayable.String())
	require.NotNil(t, posting)
	assert.Equal(t, ledgerdomain.EventSupplierAccrued, posting.Event)
	assert.Equal(t, posting.ID, accrual.AccrualPostingID)

	// Supplier payable grows by the net amount in the booking currency.
	supplierAccount, err := h.accountSvc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeSupplier, supplierID, "EUR")
	require.NoError(t, err)
	balance, err := h.ledgerSvc.GetBalance(ctx, supplierAccount.ID, "EUR")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(850)), balance.String())

	// The booking reached VOUCHERED and carries the accrual pointers.
	vouchered, err := h.bookingSvc.Get(ctx, orgID, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.StatusVouchered, vouchered.Status)
	assert.Equal(t, accrual.ID.String(), vouchered.SupplierFinance["accrual_id"])
}

func TestAccrueForBooking_ForeignCurrencyStaysInBookingCurrency(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	snapshot := decimal.NewFromFloat(918.50)
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:         h.node.Generate(),
		SupplierID:       &supplierID,
		Currency:         "USD",
		SellAmount:       decimal.NewFromInt(1000),
		SellSettlement:   &snapshot,
		CommissionAmount: decimal.NewFromInt(100),
	})

	accrual, posting, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)

	// The payable is owed in USD, untouched by the EUR settlement snapshot.
	assert.Equal(t, "USD", accrual.Currency)
	assert.Equal(t, "USD", posting.Currency)
	assert.True(t, accrual.NetPayable.Equal(decimal.NewFromInt(900)))

	supplierAccount, err := h.accountSvc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeSupplier, supplierID, "USD")
	require.NoError(t, err)
	balance, err := h.ledgerSvc.GetBalance(ctx, supplierAccount.ID, "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(900)), balance.String())
}

func TestAccrueForBooking_SupplierMissing(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:   h.node.Generate(),
		Currency:   "EUR",
		SellAmount: decimal.NewFromInt(1000),
	})

	_, _, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	assert.ErrorIs(t, err, accrualdomain.ErrSupplierIDMissing)

	var count int64
	require.NoError(t, h.db.Model(&accrualdomain.SupplierAccrual{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAccrueForBooking_CommissionExceedsGross(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:         h.node.Generate(),
		SupplierID:       &supplierID,
		Currency:         "EUR",
		SellAmount:       decimal.NewFromInt(100),
		CommissionAmount: decimal.NewFromInt(150),
	})

	_, _, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	assert.ErrorIs(t, err, accrualdomain.ErrInvalidCommission)
}

func TestAccrueForBooking_RequiresConfirmedState(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	booking, err := h.bookingSvc.Create(ctx, bookingdomain.CreateBookingInput{
		OrgID:      orgID,
		AgencyID:   h.node.Generate(),
		SupplierID: &supplierID,
		Currency:   "EUR",
		SellAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, _, err = h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidState)
}

func TestAccrueForBooking_RetryReturnsExistingAccrual(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:         h.node.Generate(),
		SupplierID:       &supplierID,
		Currency:         "EUR",
		SellAmount:       decimal.NewFromInt(1000),
		CommissionAmount: decimal.NewFromInt(150),
	})

	first, firstPosting, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)

	second, secondPosting, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, firstPosting.ID, secondPosting.ID)

	var accrualCount, postingCount int64
	require.NoError(t, h.db.Model(&accrualdomain.SupplierAccrual{}).Count(&accrualCount).Error)
	require.NoError(t, h.db.Model(&ledgerdomain.Posting{}).
		Where("event = ?", ledgerdomain.EventSupplierAccrued).
		Count(&postingCount).Error)
	assert.Equal(t, int64(1), accrualCount)
	assert.Equal(t, int64(1), postingCount)
}

func TestReverse_OnceOnly(t *testing.T) {
	h := setupAccrualTest(t)
	ctx := context.Background()

	orgID := h.node.Generate()
	supplierID := h.node.Generate()
	booking := h.confirmedBooking(t, orgID, bookingdomain.CreateBookingInput{
		AgencyID:         h.node.Generate(),
		SupplierID:       &supplierID,
		Currency:         "EUR",
		SellAmount:       decimal.NewFromInt(1000),
		CommissionAmount: decimal.NewFromInt(150),
	})
	_, _, err := h.svc.AccrueForBooking(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)

	reversed, posting, err := h.svc.Reverse(ctx, orgID, booking.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, accrualdomain.StatusReversed, reversed.Status)
	assert.Equal(t, ledgerdomain.EventSupplierAccrualReversed, posting.Event)

	// The payable nets back to zero.
	supplierAccount, err := h.accountSvc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeSupplier, supplierID, "EUR")
	require.NoError(t, err)
	balance, err := h.ledgerSvc.GetBalance(ctx, supplierAccount.ID, "EUR")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), balance.String())

	_, _, err = h.svc.Reverse(ctx, orgID, booking.ID, "tester")
	assert.ErrorIs(t, err, accrualdomain.ErrAlreadyReversed)
}

func TestGetForBooking_NotFound(t *testing.T) {
	h := setupAccrualTest(t)

	_, err := h.svc.GetForBooking(context.Background(), h.node.Generate(), h.node.Generate())
	assert.ErrorIs(t, err, accrualdomain.ErrNotFound)
}

package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	"github.com/stretchr/testify/assert"
)

func sumSide(lines []Line, side accountdomain.Side) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.Side == side {
			total = total.Add(line.Amount)
		}
	}
	return total
}

func TestMatrixBuilders_AlwaysBalanced(t *testing.T) {
	from := snowflake.ID(101)
	to := snowflake.ID(202)
	amount := decimal.NewFromFloat(1650.0)

	builders := map[string][]Line{
		"confirmed":        BookingConfirmedLines(from, to, amount),
		"cancelled":        BookingCancelledLines(from, to, amount),
		"amended_positive": BookingAmendedDeltaLines(from, to, amount),
		"amended_negative": BookingAmendedDeltaLines(from, to, amount.Neg()),
		"payment":          PaymentReceivedLines(from, to, amount),
		"refund":           RefundApprovedLines(from, to, amount),
		"accrued":          SupplierAccruedLines(from, to, amount),
		"accrual_reversed": SupplierAccrualReversedLines(from, to, amount),
	}

	for name, lines := range builders {
		assert.Len(t, lines, 2, name)
		assert.True(t, sumSide(lines, accountdomain.SideDebit).Equal(sumSide(lines, accountdomain.SideCredit)), name)
		for _, line := range lines {
			assert.True(t, line.Amount.IsPositive(), name)
		}
	}
}

func TestBookingConfirmedLines_Directions(t *testing.T) {
	agency := snowflake.ID(1)
	platform := snowflake.ID(2)
	amount := decimal.NewFromInt(1650)

	lines := BookingConfirmedLines(agency, platform, amount)

	assert.Equal(t, agency, lines[0].AccountID)
	assert.Equal(t, accountdomain.SideDebit, lines[0].Side)
	assert.Equal(t, platform, lines[1].AccountID)
	assert.Equal(t, accountdomain.SideCredit, lines[1].Side)
}

func TestBookingCancelledLines_MirrorsConfirmed(t *testing.T) {
	agency := snowflake.ID(1)
	platform := snowflake.ID(2)
	amount := decimal.NewFromInt(1650)

	confirmed := BookingConfirmedLines(agency, platform, amount)
	cancelled := BookingCancelledLines(agency, platform, amount)

	for i := range confirmed {
		assert.Equal(t, confirmed[i].AccountID, cancelled[i].AccountID)
		assert.NotEqual(t, confirmed[i].Side, cancelled[i].Side)
		assert.True(t, confirmed[i].Amount.Equal(cancelled[i].Amount))
	}
}

func TestBookingAmendedDeltaLines_SignDispatch(t *testing.T) {
	agency := snowflake.ID(1)
	platform := snowflake.ID(2)

	up := BookingAmendedDeltaLines(agency, platform, decimal.NewFromInt(200))
	assert.Equal(t, accountdomain.SideDebit, up[0].Side)
	assert.True(t, up[0].Amount.Equal(decimal.NewFromInt(200)))

	down := BookingAmendedDeltaLines(agency, platform, decimal.NewFromInt(-200))
	assert.Equal(t, accountdomain.SideCredit, down[0].Side)
	assert.True(t, down[0].Amount.Equal(decimal.NewFromInt(200)))
}

func TestLinesFor_KnownAndUnknownEvents(t *testing.T) {
	from := snowflake.ID(1)
	to := snowflake.ID(2)
	amount := decimal.NewFromInt(10)

	for _, ev := range []Event{
		EventBookingConfirmed, EventBookingCancelled, EventBookingAmendedDelta,
		EventPaymentReceived, EventRefundApproved,
		EventSupplierAccrued, EventSupplierAccrualReversed,
	} {
		lines, ok := LinesFor(ev, from, to, amount)
		assert.True(t, ok, string(ev))
		assert.Len(t, lines, 2, string(ev))
	}

	_, ok := LinesFor(Event("SOMETHING_ELSE"), from, to, amount)
	assert.False(t, ok)
}

func TestValidateBalanced(t *testing.T) {
	a := snowflake.ID(1)
	b := snowflake.ID(2)

	t.Run("balanced passes", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.SideDebit, Amount: decimal.NewFromFloat(1650.0)},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.NewFromFloat(1650.0)},
		})
		assert.NoError(t, err)
	})

	t.Run("unbalanced rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.SideDebit, Amount: decimal.NewFromInt(100)},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.NewFromInt(99)},
		})
		assert.ErrorIs(t, err, ErrUnbalancedPosting)
	})

	t.Run("single line rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.SideDebit, Amount: decimal.NewFromInt(100)},
		})
		assert.ErrorIs(t, err, ErrInvalidLines)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.SideDebit, Amount: decimal.Zero},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.Zero},
		})
		assert.ErrorIs(t, err, ErrInvalidLineAmount)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.SideDebit, Amount: decimal.NewFromInt(-5)},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.NewFromInt(-5)},
		})
		assert.ErrorIs(t, err, ErrInvalidLineAmount)
	})

	t.Run("unknown side rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: a, Side: accountdomain.Side("both"), Amount: decimal.NewFromInt(5)},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.NewFromInt(5)},
		})
		assert.ErrorIs(t, err, ErrInvalidLineSide)
	})

	t.Run("missing account rejected", func(t *testing.T) {
		err := ValidateBalanced([]Line{
			{AccountID: 0, Side: accountdomain.SideDebit, Amount: decimal.NewFromInt(5)},
			{AccountID: b, Side: accountdomain.SideCredit, Amount: decimal.NewFromInt(5)},
		})
		assert.ErrorIs(t, err, ErrInvalidAccount)
	})
}

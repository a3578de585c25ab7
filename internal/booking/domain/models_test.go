package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransition(StatusQuoted))
	assert.True(t, StatusQuoted.CanTransition(StatusConfirmed))
	assert.True(t, StatusConfirmed.CanTransition(StatusVouchered))
	assert.True(t, StatusVouchered.CanTransition(StatusCompleted))

	// Cancellation is allowed from every non-terminal state.
	for _, from := range []BookingStatus{StatusDraft, StatusQuoted, StatusConfirmed, StatusVouchered} {
		assert.True(t, from.CanTransition(StatusCancelled), string(from))
	}

	// No skipping ahead.
	assert.False(t, StatusDraft.CanTransition(StatusConfirmed))
	assert.False(t, StatusQuoted.CanTransition(StatusVouchered))
	assert.False(t, StatusDraft.CanTransition(StatusCompleted))

	// Terminal states admit nothing.
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusCompleted.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusQuoted))
}

func TestSettlementAmount(t *testing.T) {
	sell := decimal.NewFromInt(1000)
	snapshot := decimal.NewFromFloat(918.50)

	t.Run("settlement currency booking uses sell amount", func(t *testing.T) {
		b := &Booking{Currency: "EUR", SellAmount: sell}
		amount, ok := b.SettlementAmount("EUR")
		assert.True(t, ok)
		assert.True(t, amount.Equal(sell))
	})

	t.Run("foreign currency uses fx snapshot", func(t *testing.T) {
		b := &Booking{Currency: "USD", SellAmount: sell, SellSettlement: &snapshot}
		amount, ok := b.SettlementAmount("EUR")
		assert.True(t, ok)
		assert.True(t, amount.Equal(snapshot))
	})

	t.Run("foreign currency without snapshot is not postable", func(t *testing.T) {
		b := &Booking{Currency: "USD", SellAmount: sell}
		_, ok := b.SettlementAmount("EUR")
		assert.False(t, ok)
	})

	t.Run("currency comparison ignores case", func(t *testing.T) {
		b := &Booking{Currency: "eur", SellAmount: sell}
		amount, ok := b.SettlementAmount("EUR")
		assert.True(t, ok)
		assert.True(t, amount.Equal(sell))
	})
}

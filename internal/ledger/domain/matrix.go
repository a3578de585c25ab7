package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
)

// Posting matrix: pure line builders, one per business event. Each builder
// returns lines whose debit sum equals the credit sum by construction; the
// posting service re-validates before commit.
//
// Sign conventions (see accountdomain.AccountType.Polarity):
//
//	agency accounts grow on debit (receivable-style)
//	platform and supplier accounts grow on credit (payable/clearing-style)

// BookingConfirmedLines records the agency's exposure for a confirmed
// booking: debit agency, credit platform, both by the sell amount.
func BookingConfirmedLines(agencyAccountID, platformAccountID snowflake.ID, sellAmount decimal.Decimal) []Line {
	return []Line{
		{AccountID: agencyAccountID, Side: accountdomain.SideDebit, Amount: sellAmount},
		{AccountID: platformAccountID, Side: accountdomain.SideCredit, Amount: sellAmount},
	}
}

// BookingCancelledLines is the exact mirror of BookingConfirmedLines,
// reversing the original exposure.
func BookingCancelledLines(agencyAccountID, platformAccountID snowflake.ID, sellAmount decimal.Decimal) []Line {
	return []Line{
		{AccountID: agencyAccountID, Side: accountdomain.SideCredit, Amount: sellAmount},
		{AccountID: platformAccountID, Side: accountdomain.SideDebit, Amount: sellAmount},
	}
}

// BookingAmendedDeltaLines posts the difference after an amendment. A
// positive delta adds exposure like a confirmation; a negative delta reverses
// the absolute difference.
func BookingAmendedDeltaLines(agencyAccountID, platformAccountID snowflake.ID, delta decimal.Decimal) []Line {
	if delta.IsNegative() {
		return BookingCancelledLines(agencyAccountID, platformAccountID, delta.Abs())
	}
	return BookingConfirmedLines(agencyAccountID, platformAccountID, delta)
}

// PaymentReceivedLines settles part of the agency's exposure: credit agency,
// debit platform.
func PaymentReceivedLines(agencyAccountID, platformAccountID snowflake.ID, amount decimal.Decimal) []Line {
	return []Line{
		{AccountID: agencyAccountID, Side: accountdomain.SideCredit, Amount: amount},
		{AccountID: platformAccountID, Side: accountdomain.SideDebit, Amount: amount},
	}
}

// RefundApprovedLines reduces the agency's exposure by the approved refund:
// credit agency, debit the platform receivable account.
func RefundApprovedLines(agencyAccountID, platformARAccountID snowflake.ID, refundAmount decimal.Decimal) []Line {
	return []Line{
		{AccountID: agencyAccountID, Side: accountdomain.SideCredit, Amount: refundAmount},
		{AccountID: platformARAccountID, Side: accountdomain.SideDebit, Amount: refundAmount},
	}
}

// SupplierAccruedLines establishes the payable owed to a supplier once a
// booking is vouchered: debit platform payable, credit supplier.
func SupplierAccruedLines(platformAPAccountID, supplierAccountID snowflake.ID, netPayable decimal.Decimal) []Line {
	return []Line{
		{AccountID: platformAPAccountID, Side: accountdomain.SideDebit, Amount: netPayable},
		{AccountID: supplierAccountID, Side: accountdomain.SideCredit, Amount: netPayable},
	}
}

// SupplierAccrualReversedLines cancels a previously established payable.
func SupplierAccrualReversedLines(platformAPAccountID, supplierAccountID snowflake.ID, netPayable decimal.Decimal) []Line {
	return []Line{
		{AccountID: platformAPAccountID, Side: accountdomain.SideCredit, Amount: netPayable},
		{AccountID: supplierAccountID, Side: accountdomain.SideDebit, Amount: netPayable},
	}
}

// LinesFor dispatches to the matrix builder for ev with a generic
// two-account shape: from is the agency/platform-payable side, to is the
// platform/supplier side. Adapters mostly call the explicit builders; this
// exists for the raw posting API.
func LinesFor(ev Event, from, to snowflake.ID, amount decimal.Decimal) ([]Line, bool) {
	switch ev {
	case EventBookingConfirmed:
		return BookingConfirmedLines(from, to, amount), true
	case EventBookingCancelled:
		return BookingCancelledLines(from, to, amount), true
	case EventBookingAmendedDelta:
		return BookingAmendedDeltaLines(from, to, amount), true
	case EventPaymentReceived:
		return PaymentReceivedLines(from, to, amount), true
	case EventRefundApproved:
		return RefundApprovedLines(from, to, amount), true
	case EventSupplierAccrued:
		return SupplierAccruedLines(from, to, amount), true
	case EventSupplierAccrualReversed:
		return SupplierAccrualReversedLines(from, to, amount), true
	default:
		return nil, false
	}
}

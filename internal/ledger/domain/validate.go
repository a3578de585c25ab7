package domain

import (
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
)

// ValidateBalanced checks that the debit and credit sides of a line set sum
// to exactly the same amount. The posting service asserts this before every
// commit; it never trusts callers to have built balanced lines.
func ValidateBalanced(lines []Line) error {
	if len(lines) < 2 {
		return ErrInvalidLines
	}

	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range lines {
		if line.AccountID == 0 {
			return ErrInvalidAccount
		}
		if !line.Side.Valid() {
			return ErrInvalidLineSide
		}
		if !line.Amount.IsPositive() {
			return ErrInvalidLineAmount
		}
		if line.Side == accountdomain.SideDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}

	if !debit.Equal(credit) {
		return ErrUnbalancedPosting
	}
	return nil
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AccountType classifies ledger accounts by the party they belong to.
type AccountType string

const (
	// AccountTypeAgency is a receivable-style account tracking what an agency
	// owes the platform.
	AccountTypeAgency AccountType = "agency"
	// AccountTypePlatform is the platform's own clearing account.
	AccountTypePlatform AccountType = "platform"
	// AccountTypeSupplier is a payable-style clearing account for amounts
	// owed to a supplier.
	AccountTypeSupplier AccountType = "supplier"
)

// Polarity is the convention determining whether a debit or a credit
// increases an account's balance.
type Polarity string

const (
	PolarityDebitIncreases  Polarity = "debit_increases"
	PolarityCreditIncreases Polarity = "credit_increases"
)

// Polarity returns the fixed sign convention per account type. Agency
// accounts are receivable-style and grow on debit; platform and supplier
// clearing accounts are payable-style and grow on credit.
func (t AccountType) Polarity() Polarity {
	if t == AccountTypeAgency {
		return PolarityDebitIncreases
	}
	return PolarityCreditIncreases
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAgency, AccountTypePlatform, AccountTypeSupplier:
		return true
	default:
		return false
	}
}

// SignedDelta returns the balance delta a line of the given side and amount
// applies to an account of this type.
func (t AccountType) SignedDelta(side Side, amount decimal.Decimal) decimal.Decimal {
	increase := (t.Polarity() == PolarityDebitIncreases && side == SideDebit) ||
		(t.Polarity() == PolarityCreditIncreases && side == SideCredit)
	if increase {
		return amount
	}
	return amount.Neg()
}

// Side is the debit/credit direction of one ledger line.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account is one chart-of-accounts entry, scoped to an organization and a
// single currency. Accounts are created on first reference and never deleted.
type Account struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_accounts_org_code,priority:1" json:"organization_id"`
	Type      AccountType   `gorm:"type:text;not null" json:"type"`
	OwnerID   snowflake.ID  `gorm:"not null;index" json:"owner_id"`
	Currency  string        `gorm:"type:text;not null" json:"currency"`
	Code      string        `gorm:"type:text;not null;uniqueIndex:ux_accounts_org_code,priority:2" json:"code"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Status    AccountStatus `gorm:"type:text;not null;default:active" json:"status"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Account) TableName() string { return "accounts" }

// AccountCode derives the deterministic code identifying an account within an
// organization. Concurrent creators of the same logical account converge on
// one row through the unique index on (org_id, code).
func AccountCode(accountType AccountType, ownerID snowflake.ID, currency string) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToUpper(string(accountType)),
		ownerID.String(),
		strings.ToUpper(strings.TrimSpace(currency)),
	)
}

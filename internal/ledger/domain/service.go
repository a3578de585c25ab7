package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tripfolio/financeos/pkg/db/pagination"
	"gorm.io/gorm"
)

// Service is the only writer of postings, entries and balances. Domain
// adapters translate their aggregates into PostEvent calls; nothing else in
// the system mutates the ledger.
type Service interface {
	// PostEvent posts one balanced event exactly once per idempotency key
	// (org, source_type, source_id, event). A replay returns the original
	// posting with replayed=true and applies no new financial effects.
	PostEvent(ctx context.Context, input PostEventInput) (*Posting, bool, error)
	// PostEventTx is PostEvent inside a caller-owned transaction, so domain
	// adapters can commit the posting atomically with their own documents.
	PostEventTx(ctx context.Context, tx *gorm.DB, input PostEventInput) (*Posting, bool, error)

	GetPosting(ctx context.Context, orgID, id snowflake.ID) (*Posting, error)
	FindPosting(ctx context.Context, orgID snowflake.ID, sourceType string, sourceID snowflake.ID, event Event) (*Posting, error)
	ListPostings(ctx context.Context, orgID snowflake.ID, filter ListPostingFilter, page pagination.Pagination) ([]*Posting, *pagination.PageInfo, error)

	// GetBalance returns the cached running balance; a missing row is zero.
	GetBalance(ctx context.Context, accountID snowflake.ID, currency string) (decimal.Decimal, error)
	// RecalculateBalance rebuilds the balance row from the entries and
	// overwrites the cached value. This is the disaster-recovery primitive
	// and is safe to run at any time.
	RecalculateBalance(ctx context.Context, accountID snowflake.ID, currency string) (*BalanceRecalc, error)
}

type ListPostingFilter struct {
	SourceType string
	SourceID   snowflake.ID
	Event      Event
}

var (
	ErrUnbalancedPosting = errors.New("unbalanced_posting")
	ErrPostingNotFound   = errors.New("posting_not_found")
	ErrCurrencyMismatch  = errors.New("currency_mismatch")

	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSourceType   = errors.New("invalid_source_type")
	ErrInvalidSourceID     = errors.New("invalid_source_id")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidLines        = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount   = errors.New("invalid_line_amount")
	ErrInvalidLineSide     = errors.New("invalid_line_side")
	ErrInvalidAccount      = errors.New("invalid_account")
)

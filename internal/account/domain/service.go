package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// GetOrCreate upserts the account identified by (org, type, owner,
	// currency). Safe under concurrent callers; all converge on one row.
	GetOrCreate(ctx context.Context, orgID snowflake.ID, accountType AccountType, ownerID snowflake.ID, currency string) (*Account, error)
	// GetOrCreateTx is GetOrCreate inside a caller-owned transaction.
	GetOrCreateTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, accountType AccountType, ownerID snowflake.ID, currency string) (*Account, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Account, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*Account, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Account, error)
	FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]Account, error)
}

var (
	ErrNotFound        = errors.New("finance_account_not_found")
	ErrInvalidType     = errors.New("invalid_account_type")
	ErrInvalidOwner    = errors.New("invalid_account_owner")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

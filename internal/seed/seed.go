package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	"gorm.io/gorm"
)

// EnsureDefaultOrgAccounts seeds the platform clearing account for the
// configured development organization. Agency and supplier accounts are
// created on first reference, so only the platform side needs bootstrap.
func EnsureDefaultOrgAccounts(db *gorm.DB, orgID int64, settlementCurrency string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	org := snowflake.ParseInt64(orgID)
	code := accountdomain.AccountCode(accountdomain.AccountTypePlatform, org, settlementCurrency)

	ctx := context.Background()
	return db.WithContext(ctx).Exec(`
		INSERT INTO accounts (id, org_id, type, owner_id, currency, code, name, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, code) DO NOTHING
	`,
		node.Generate(),
		org,
		string(accountdomain.AccountTypePlatform),
		org,
		settlementCurrency,
		code,
		"Platform Clearing",
		string(accountdomain.AccountStatusActive),
	).Error
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tripfolio/financeos/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, org_id, type, owner_id, currency, code, name, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OrgID,
		string(account.Type),
		account.OwnerID,
		account.Currency,
		account.Code,
		account.Name,
		string(account.Status),
		account.CreatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, type, owner_id, currency, code, name, status, created_at
		 FROM accounts WHERE org_id = ? AND code = ?`,
		orgID,
		code,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, type, owner_id, currency, code, name, status, created_at
		 FROM accounts WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]domain.Account, error) {
	var accounts []domain.Account
	if err := db.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Find(&accounts).Error; err != nil {
		return nil, err
	}

	result := make(map[snowflake.ID]domain.Account, len(accounts))
	for _, acc := range accounts {
		result[acc.ID] = acc
	}
	return result, nil
}

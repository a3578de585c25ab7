package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	"github.com/tripfolio/financeos/internal/account/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAccountTest(t *testing.T) (*snowflake.Node, accountdomain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&accountdomain.Account{}))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_org_code ON accounts(org_id, code)",
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return node, svc
}

func TestGetOrCreate_ConvergesOnOneAccount(t *testing.T) {
	node, svc := setupAccountTest(t)
	ctx := context.Background()

	orgID := node.Generate()
	agencyID := node.Generate()

	first, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, agencyID, "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", first.Currency)
	assert.Equal(t, accountdomain.AccountCode(accountdomain.AccountTypeAgency, agencyID, "EUR"), first.Code)
	assert.Equal(t, accountdomain.AccountStatusActive, first.Status)

	second, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, agencyID, "EUR")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreate_DistinctPerCurrencyAndOwner(t *testing.T) {
	node, svc := setupAccountTest(t)
	ctx := context.Background()

	orgID := node.Generate()
	agencyID := node.Generate()

	eur, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, agencyID, "EUR")
	require.NoError(t, err)
	usd, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, agencyID, "USD")
	require.NoError(t, err)
	assert.NotEqual(t, eur.ID, usd.ID)

	other, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, node.Generate(), "EUR")
	require.NoError(t, err)
	assert.NotEqual(t, eur.ID, other.ID)
}

func TestGetOrCreate_InvalidInputs(t *testing.T) {
	node, svc := setupAccountTest(t)
	ctx := context.Background()
	orgID := node.Generate()

	_, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountType("customer"), node.Generate(), "EUR")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidType)

	_, err = svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, 0, "EUR")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidOwner)

	_, err = svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypeAgency, node.Generate(), "  ")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidCurrency)
}

func TestGet_NotFound(t *testing.T) {
	node, svc := setupAccountTest(t)

	_, err := svc.Get(context.Background(), node.Generate(), node.Generate())
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

func TestGet_ScopedToOrg(t *testing.T) {
	node, svc := setupAccountTest(t)
	ctx := context.Background()

	orgID := node.Generate()
	account, err := svc.GetOrCreate(ctx, orgID, accountdomain.AccountTypePlatform, orgID, "EUR")
	require.NoError(t, err)

	found, err := svc.Get(ctx, orgID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	// Another tenant never sees it.
	_, err = svc.Get(ctx, node.Generate(), account.ID)
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	"github.com/tripfolio/financeos/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  accountdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  accountdomain.Repository
}

func NewService(p Params) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, orgID snowflake.ID, accountType accountdomain.AccountType, ownerID snowflake.ID, currency string) (*accountdomain.Account, error) {
	return s.GetOrCreateTx(ctx, s.db, orgID, accountType, ownerID, currency)
}

func (s *Service) GetOrCreateTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, accountType accountdomain.AccountType, ownerID snowflake.ID, currency string) (*accountdomain.Account, error) {
	if !accountType.Valid() {
		return nil, accountdomain.ErrInvalidType
	}
	if ownerID == 0 {
		return nil, accountdomain.ErrInvalidOwner
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, accountdomain.ErrInvalidCurrency
	}

	code := accountdomain.AccountCode(accountType, ownerID, currency)

	existing, err := s.repo.FindByCode(ctx, tx, orgID, code)
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", code, err)
	}
	if existing != nil {
		return existing, nil
	}

	account := &accountdomain.Account{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Type:      accountType,
		OwnerID:   ownerID,
		Currency:  currency,
		Code:      code,
		Name:      fmt.Sprintf("%s %s (%s)", accountType, ownerID.String(), currency),
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, tx, account); err != nil {
		// A concurrent creator won the race; the unique index on (org_id,
		// code) guarantees exactly one row, so fetch and return theirs.
		if db.IsDuplicateKeyErr(err) {
			existing, lookupErr := s.repo.FindByCode(ctx, tx, orgID, code)
			if lookupErr != nil {
				return nil, fmt.Errorf("lookup account %s after conflict: %w", code, lookupErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create account %s: %w", code, err)
	}

	s.log.Info("account created",
		zap.String("code", code),
		zap.String("org_id", orgID.String()),
	)
	return account, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*accountdomain.Account, error) {
	account, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	return account, nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	auditdomain "github.com/tripfolio/financeos/internal/audit/domain"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	obsmetrics "github.com/tripfolio/financeos/internal/observability/metrics"
	"github.com/tripfolio/financeos/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PostEvent(ctx context.Context, input ledgerdomain.PostEventInput) (*ledgerdomain.Posting, bool, error) {
	var (
		posting  *ledgerdomain.Posting
		replayed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		posting, replayed, txErr = s.PostEventTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return posting, replayed, nil
}

// PostEventTx runs the posting inside a caller-owned transaction so domain
// adapters can commit a posting atomically with their own documents.
// Failure semantics are fail-closed: any validation error leaves no posting,
// no entries and no balance change.
func (s *Service) PostEventTx(ctx context.Context, tx *gorm.DB, input ledgerdomain.PostEventInput) (*ledgerdomain.Posting, bool, error) {
	if input.OrgID == 0 {
		return nil, false, ledgerdomain.ErrInvalidOrganization
	}
	sourceType := strings.TrimSpace(input.SourceType)
	if sourceType == "" {
		return nil, false, ledgerdomain.ErrInvalidSourceType
	}
	if input.SourceID == 0 {
		return nil, false, ledgerdomain.ErrInvalidSourceID
	}
	if !input.Event.Valid() {
		return nil, false, ledgerdomain.ErrInvalidEvent
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, false, ledgerdomain.ErrInvalidCurrency
	}
	if err := ledgerdomain.ValidateBalanced(input.Lines); err != nil {
		return nil, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	accounts, err := s.loadAccounts(ctx, tx, input.OrgID, input.Lines)
	if err != nil {
		return nil, false, err
	}
	for _, line := range input.Lines {
		account, ok := accounts[line.AccountID]
		if !ok {
			return nil, false, accountdomain.ErrNotFound
		}
		// Accounts are scoped to one currency; a posting in another currency
		// must never touch them.
		if !strings.EqualFold(account.Currency, currency) {
			return nil, false, ledgerdomain.ErrCurrencyMismatch
		}
	}

	postingID := s.genID.Generate()
	now := time.Now().UTC()

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_postings (
			id, org_id, source_type, source_id, event, currency, occurred_at, created_at, created_by, meta
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, source_type, source_id, event) DO NOTHING`,
		postingID,
		input.OrgID,
		sourceType,
		input.SourceID,
		string(input.Event),
		currency,
		occurredAt.UTC(),
		now,
		strings.TrimSpace(input.CreatedBy),
		datatypes.JSONMap(input.Meta),
	)
	if result.Error != nil {
		return nil, false, fmt.Errorf("insert posting: %w", result.Error)
	}

	// Zero rows affected means a posting with the same idempotency key
	// already exists. That is the defined success path for retries: return
	// the original posting untouched, with no new entries and no balance
	// mutation.
	if result.RowsAffected == 0 {
		existing, err := s.findPosting(ctx, tx, input.OrgID, sourceType, input.SourceID, input.Event)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, ledgerdomain.ErrPostingNotFound
		}
		s.log.Info("posting replayed",
			zap.String("source_type", sourceType),
			zap.String("source_id", input.SourceID.String()),
			zap.String("event", string(input.Event)),
		)
		s.obsMetrics.RecordPosting(ctx, string(input.Event), true)
		return existing, true, nil
	}

	entries := make([]ledgerdomain.Entry, 0, len(input.Lines))
	for _, line := range input.Lines {
		entry := ledgerdomain.Entry{
			ID:         s.genID.Generate(),
			PostingID:  postingID,
			OrgID:      input.OrgID,
			AccountID:  line.AccountID,
			Currency:   currency,
			Side:       line.Side,
			Amount:     line.Amount,
			OccurredAt: occurredAt.UTC(),
			CreatedAt:  now,
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entries (
				id, posting_id, org_id, account_id, currency, side, amount, occurred_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.PostingID,
			entry.OrgID,
			entry.AccountID,
			entry.Currency,
			string(entry.Side),
			entry.Amount,
			entry.OccurredAt,
			entry.CreatedAt,
		).Error; err != nil {
			return nil, false, fmt.Errorf("insert entry: %w", err)
		}
		entries = append(entries, entry)

		account := accounts[line.AccountID]
		delta := account.Type.SignedDelta(line.Side, line.Amount)
		if err := s.applyBalanceDelta(ctx, tx, line.AccountID, currency, delta, now); err != nil {
			return nil, false, err
		}
	}

	posting := &ledgerdomain.Posting{
		ID:         postingID,
		OrgID:      input.OrgID,
		SourceType: sourceType,
		SourceID:   input.SourceID,
		Event:      input.Event,
		Currency:   currency,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
		CreatedBy:  strings.TrimSpace(input.CreatedBy),
		Meta:       datatypes.JSONMap(input.Meta),
		Entries:    entries,
	}

	s.writeAudit(ctx, posting)
	s.obsMetrics.RecordPosting(ctx, string(input.Event), false)

	s.log.Info("posted ledger event",
		zap.String("posting_id", postingID.String()),
		zap.String("event", string(input.Event)),
		zap.String("source_type", sourceType),
		zap.String("source_id", input.SourceID.String()),
		zap.String("currency", currency),
	)
	return posting, false, nil
}

// applyBalanceDelta increments the cached balance atomically in the store;
// concurrent postings to the same account never read-modify-write.
func (s *Service) applyBalanceDelta(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, currency string, delta decimal.Decimal, now time.Time) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO account_balances (account_id, currency, balance, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (account_id, currency)
		 DO UPDATE SET balance = account_balances.balance + excluded.balance, updated_at = excluded.updated_at`,
		accountID,
		currency,
		delta,
		now,
	).Error
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, accountID snowflake.ID, currency string) (decimal.Decimal, error) {
	var balance ledgerdomain.AccountBalance
	err := s.db.WithContext(ctx).Raw(
		`SELECT account_id, currency, balance, updated_at
		 FROM account_balances WHERE account_id = ? AND currency = ?`,
		accountID,
		strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&balance).Error
	if err != nil {
		return decimal.Zero, err
	}
	if balance.AccountID == 0 {
		return decimal.Zero, nil
	}
	return balance.Balance, nil
}

func (s *Service) RecalculateBalance(ctx context.Context, accountID snowflake.ID, currency string) (*ledgerdomain.BalanceRecalc, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if currency == "" {
		return nil, ledgerdomain.ErrInvalidCurrency
	}

	var account accountdomain.Account
	if err := s.db.WithContext(ctx).
		Where("id = ?", accountID).
		Find(&account).Error; err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, accountdomain.ErrNotFound
	}

	type sideSum struct {
		Side  string
		Count int64
		Total decimal.Decimal
	}
	var sums []sideSum
	if err := s.db.WithContext(ctx).Raw(
		`SELECT side, COUNT(*) AS count, SUM(amount) AS total
		 FROM ledger_entries WHERE account_id = ? AND currency = ?
		 GROUP BY side`,
		accountID,
		currency,
	).Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("sum entries: %w", err)
	}

	recalc := &ledgerdomain.BalanceRecalc{
		AccountID:   accountID,
		Currency:    currency,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, sum := range sums {
		recalc.EntryCount += sum.Count
		switch accountdomain.Side(sum.Side) {
		case accountdomain.SideDebit:
			recalc.TotalDebit = sum.Total
		case accountdomain.SideCredit:
			recalc.TotalCredit = sum.Total
		}
	}

	if account.Type.Polarity() == accountdomain.PolarityDebitIncreases {
		recalc.Balance = recalc.TotalDebit.Sub(recalc.TotalCredit)
	} else {
		recalc.Balance = recalc.TotalCredit.Sub(recalc.TotalDebit)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO account_balances (account_id, currency, balance, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (account_id, currency)
		 DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		accountID,
		currency,
		recalc.Balance,
		now,
	).Error; err != nil {
		return nil, fmt.Errorf("overwrite balance: %w", err)
	}

	s.obsMetrics.RecordRecalculation(ctx)
	s.log.Info("recalculated balance",
		zap.String("account_id", accountID.String()),
		zap.String("currency", currency),
		zap.Int64("entry_count", recalc.EntryCount),
		zap.String("balance", recalc.Balance.String()),
	)
	return recalc, nil
}

func (s *Service) GetPosting(ctx context.Context, orgID, id snowflake.ID) (*ledgerdomain.Posting, error) {
	var posting ledgerdomain.Posting
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Find(&posting).Error
	if err != nil {
		return nil, err
	}
	if posting.ID == 0 {
		return nil, ledgerdomain.ErrPostingNotFound
	}
	if err := s.attachEntries(ctx, s.db, &posting); err != nil {
		return nil, err
	}
	return &posting, nil
}

func (s *Service) FindPosting(ctx context.Context, orgID snowflake.ID, sourceType string, sourceID snowflake.ID, event ledgerdomain.Event) (*ledgerdomain.Posting, error) {
	return s.findPosting(ctx, s.db, orgID, sourceType, sourceID, event)
}

func (s *Service) ListPostings(ctx context.Context, orgID snowflake.ID, filter ledgerdomain.ListPostingFilter, page pagination.Pagination) ([]*ledgerdomain.Posting, *pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, nil, ledgerdomain.ErrInvalidOrganization
	}

	stmt := s.db.WithContext(ctx).
		Model(&ledgerdomain.Posting{}).
		Where("org_id = ?", orgID)
	if filter.SourceType != "" {
		stmt = stmt.Where("source_type = ?", filter.SourceType)
	}
	if filter.SourceID != 0 {
		stmt = stmt.Where("source_id = ?", filter.SourceID)
	}
	if filter.Event != "" {
		stmt = stmt.Where("event = ?", filter.Event)
	}
	if strings.TrimSpace(page.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	limit := page.Limit()
	var postings []*ledgerdomain.Posting
	if err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&postings).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(postings) > limit {
		postings = postings[:limit]
		info.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: postings[len(postings)-1].ID.String()})
		if err != nil {
			return nil, nil, err
		}
		info.NextPageToken = token
	}
	return postings, info, nil
}

func (s *Service) findPosting(ctx context.Context, db *gorm.DB, orgID snowflake.ID, sourceType string, sourceID snowflake.ID, event ledgerdomain.Event) (*ledgerdomain.Posting, error) {
	var posting ledgerdomain.Posting
	err := db.WithContext(ctx).
		Where("org_id = ? AND source_type = ? AND source_id = ? AND event = ?", orgID, sourceType, sourceID, string(event)).
		Find(&posting).Error
	if err != nil {
		return nil, err
	}
	if posting.ID == 0 {
		return nil, nil
	}
	if err := s.attachEntries(ctx, db, &posting); err != nil {
		return nil, err
	}
	return &posting, nil
}

func (s *Service) attachEntries(ctx context.Context, db *gorm.DB, posting *ledgerdomain.Posting) error {
	var entries []ledgerdomain.Entry
	if err := db.WithContext(ctx).
		Where("posting_id = ?", posting.ID).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return err
	}
	posting.Entries = entries
	return nil
}

func (s *Service) loadAccounts(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lines []ledgerdomain.Line) (map[snowflake.ID]accountdomain.Account, error) {
	ids := make([]snowflake.ID, 0, len(lines))
	seen := make(map[snowflake.ID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}

	var accounts []accountdomain.Account
	if err := db.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Find(&accounts).Error; err != nil {
		return nil, err
	}

	result := make(map[snowflake.ID]accountdomain.Account, len(accounts))
	for _, acc := range accounts {
		result[acc.ID] = acc
	}
	return result, nil
}

// writeAudit records the posting in the audit trail. Best-effort: a failed
// audit write never aborts the financial transaction.
func (s *Service) writeAudit(ctx context.Context, posting *ledgerdomain.Posting) {
	if s.auditSvc == nil {
		return
	}
	postingID := posting.ID.String()
	orgID := posting.OrgID
	metadata := map[string]any{
		"source_type": posting.SourceType,
		"source_id":   posting.SourceID.String(),
		"event":       string(posting.Event),
		"currency":    posting.Currency,
	}
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, "ledger.posting_created", "ledger_posting", &postingID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}
}

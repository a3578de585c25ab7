package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	"github.com/tripfolio/financeos/pkg/db/pagination"
)

type postingLineRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Side      string          `json:"side" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

type postEventRequest struct {
	SourceType string          `json:"source_type" binding:"required"`
	SourceID   string          `json:"source_id" binding:"required"`
	Event      string          `json:"event" binding:"required"`
	Currency   string          `json:"currency" binding:"required"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Meta       map[string]any  `json:"meta,omitempty"`

	// Two-account shorthand, resolved through the posting matrix.
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`

	// Explicit lines override the shorthand.
	Lines []postingLineRequest `json:"lines,omitempty"`
}

type postEventResponse struct {
	Posting  *ledgerdomain.Posting `json:"posting"`
	Replayed bool                  `json:"replayed"`
}

// PostLedgerEvent is the raw posting endpoint. Domain adapters post through
// their own transitions; this exists for backfills and operational
// corrections, and goes through the same idempotency key and balance
// validation as everything else.
func (s *Server) PostLedgerEvent(c *gin.Context) {
	var req postEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sourceID, err := parseID(req.SourceID)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidSourceID)
		return
	}
	event := ledgerdomain.Event(strings.ToUpper(strings.TrimSpace(req.Event)))

	lines, err := req.resolveLines(event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	posting, replayed, err := s.ledgerSvc.PostEvent(c.Request.Context(), ledgerdomain.PostEventInput{
		OrgID:      orgIDFromGin(c),
		SourceType: strings.ToLower(strings.TrimSpace(req.SourceType)),
		SourceID:   sourceID,
		Event:      event,
		Currency:   req.Currency,
		Lines:      lines,
		OccurredAt: occurredAt,
		CreatedBy:  actorFromGin(c),
		Meta:       req.Meta,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, postEventResponse{Posting: posting, Replayed: replayed})
}

func (r *postEventRequest) resolveLines(event ledgerdomain.Event) ([]ledgerdomain.Line, error) {
	if len(r.Lines) > 0 {
		lines := make([]ledgerdomain.Line, 0, len(r.Lines))
		for _, line := range r.Lines {
			accountID, err := parseID(line.AccountID)
			if err != nil {
				return nil, ledgerdomain.ErrInvalidAccount
			}
			lines = append(lines, ledgerdomain.Line{
				AccountID: accountID,
				Side:      accountdomain.Side(strings.ToLower(strings.TrimSpace(line.Side))),
				Amount:    line.Amount,
			})
		}
		return lines, nil
	}

	from, err := parseID(r.FromAccountID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	to, err := parseID(r.ToAccountID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	lines, ok := ledgerdomain.LinesFor(event, from, to, r.Amount)
	if !ok {
		return nil, ledgerdomain.ErrInvalidEvent
	}
	return lines, nil
}

func (s *Server) GetPostingByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	posting, err := s.ledgerSvc.GetPosting(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, posting)
}

func (s *Server) ListPostings(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	filter := ledgerdomain.ListPostingFilter{
		SourceType: strings.ToLower(strings.TrimSpace(c.Query("source_type"))),
		Event:      ledgerdomain.Event(strings.ToUpper(strings.TrimSpace(c.Query("event")))),
	}
	if raw := strings.TrimSpace(c.Query("source_id")); raw != "" {
		sourceID, err := parseID(raw)
		if err != nil {
			AbortWithError(c, ledgerdomain.ErrInvalidSourceID)
			return
		}
		filter.SourceID = sourceID
	}

	postings, pageInfo, err := s.ledgerSvc.ListPostings(c.Request.Context(), orgIDFromGin(c), filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"postings":  postings,
		"page_info": pageInfo,
	})
}

package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
)

type ensureAccountRequest struct {
	Type     string `json:"type" binding:"required"`
	OwnerID  string `json:"owner_id" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// EnsureAccount upserts the account for (type, owner, currency) within the
// request org. Calling it twice returns the same account.
func (s *Server) EnsureAccount(c *gin.Context) {
	var req ensureAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	ownerID, err := snowflake.ParseString(strings.TrimSpace(req.OwnerID))
	if err != nil || ownerID == 0 {
		AbortWithError(c, accountdomain.ErrInvalidOwner)
		return
	}

	account, err := s.accountSvc.GetOrCreate(
		c.Request.Context(),
		orgIDFromGin(c),
		accountdomain.AccountType(strings.ToLower(strings.TrimSpace(req.Type))),
		ownerID,
		req.Currency,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (s *Server) GetAccountByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	account, err := s.accountSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (s *Server) GetAccountBalance(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	account, err := s.accountSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if currency == "" {
		currency = account.Currency
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), account.ID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": account.ID.String(),
		"currency":   currency,
		"balance":    balance,
	})
}

// RecalculateAccountBalance rebuilds the cached balance from the entries and
// returns the audit summary of the rebuild.
func (s *Server) RecalculateAccountBalance(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	account, err := s.accountSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if currency == "" {
		currency = account.Currency
	}

	recalc, err := s.ledgerSvc.RecalculateBalance(c.Request.Context(), account.ID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recalc)
}

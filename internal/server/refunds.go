package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	refunddomain "github.com/tripfolio/financeos/internal/refund/domain"
)

type openRefundCaseRequest struct {
	Reason          string           `json:"reason,omitempty"`
	RequestedAmount *decimal.Decimal `json:"requested_amount,omitempty"`
	Basis           string           `json:"basis,omitempty"`
	PolicyRef       string           `json:"policy_ref,omitempty"`
}

type approveRefundCaseRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type refundCaseResponse struct {
	Case    *refunddomain.RefundCase `json:"case"`
	Posting *ledgerdomain.Posting    `json:"posting,omitempty"`
}

func (s *Server) OpenRefundCase(c *gin.Context) {
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req openRefundCaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	refundCase, err := s.refundSvc.Open(c.Request.Context(), refunddomain.OpenCaseInput{
		OrgID:           orgIDFromGin(c),
		BookingID:       bookingID,
		Reason:          req.Reason,
		RequestedAmount: req.RequestedAmount,
		Basis:           req.Basis,
		PolicyRef:       req.PolicyRef,
		Actor:           actorFromGin(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, refundCaseResponse{Case: refundCase})
}

func (s *Server) ListRefundCases(c *gin.Context) {
	bookingID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cases, err := s.refundSvc.ListForBooking(c.Request.Context(), orgIDFromGin(c), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

func (s *Server) GetRefundCaseByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refundCase, err := s.refundSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, refundCaseResponse{Case: refundCase})
}

func (s *Server) ApproveRefundCase(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req approveRefundCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	refundCase, posting, err := s.refundSvc.Approve(c.Request.Context(), orgIDFromGin(c), id, req.Amount, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, refundCaseResponse{Case: refundCase, Posting: posting})
}

func (s *Server) RejectRefundCase(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refundCase, err := s.refundSvc.Reject(c.Request.Context(), orgIDFromGin(c), id, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, refundCaseResponse{Case: refundCase})
}

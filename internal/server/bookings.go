package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
)

type createBookingRequest struct {
	AgencyID         string           `json:"agency_id" binding:"required"`
	SupplierID       string           `json:"supplier_id,omitempty"`
	Currency         string           `json:"currency" binding:"required"`
	SellAmount       decimal.Decimal  `json:"sell_amount" binding:"required"`
	SellSettlement   *decimal.Decimal `json:"sell_settlement,omitempty"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
}

type bookingResponse struct {
	Booking *bookingdomain.Booking `json:"booking"`
	Posting *ledgerdomain.Posting  `json:"posting,omitempty"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	agencyID, err := parseID(req.AgencyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	supplierID, err := parseOptionalID(req.SupplierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateBookingInput{
		OrgID:            orgIDFromGin(c),
		AgencyID:         agencyID,
		SupplierID:       supplierID,
		Currency:         strings.ToUpper(strings.TrimSpace(req.Currency)),
		SellAmount:       req.SellAmount,
		SellSettlement:   req.SellSettlement,
		CommissionAmount: req.CommissionAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bookingResponse{Booking: booking})
}

func (s *Server) GetBookingByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{Booking: booking})
}

func (s *Server) QuoteBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Quote(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{Booking: booking})
}

func (s *Server) ConfirmBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, posting, err := s.bookingSvc.Confirm(c.Request.Context(), orgIDFromGin(c), id, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{Booking: booking, Posting: posting})
}

func (s *Server) CancelBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, posting, err := s.bookingSvc.Cancel(c.Request.Context(), orgIDFromGin(c), id, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{Booking: booking, Posting: posting})
}

// VoucherBooking runs the supplier accrual adapter: the booking moves to
// VOUCHERED and the supplier payable is posted, atomically.
func (s *Server) VoucherBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	accrual, posting, err := s.accrualSvc.AccrueForBooking(c.Request.Context(), orgIDFromGin(c), id, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accrual": accrual,
		"posting": posting,
	})
}

func (s *Server) CompleteBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Complete(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{Booking: booking})
}

func (s *Server) GetBookingFinancials(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	financials, err := s.bookingSvc.EnsureFinancials(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, financials)
}

func (s *Server) GetSupplierAccrual(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	accrual, err := s.accrualSvc.GetForBooking(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, accrual)
}

func (s *Server) ReverseSupplierAccrual(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	accrual, posting, err := s.accrualSvc.Reverse(c.Request.Context(), orgIDFromGin(c), id, actorFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accrual": accrual,
		"posting": posting,
	})
}

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/tripfolio/financeos/internal/account/domain"
	accrualdomain "github.com/tripfolio/financeos/internal/accrual/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	refunddomain "github.com/tripfolio/financeos/internal/refund/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

// ErrorHandlingMiddleware converts handler errors into the JSON error
// envelope. Handlers push errors with AbortWithError and never write error
// bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError buckets the domain error taxonomy onto HTTP statuses:
//
//	400 malformed or invalid input
//	404 missing aggregate
//	409 state conflicts and precondition failures
//	422 amounts the ledger refuses to accept
func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, payloadFor("validation_error", err)
	case isNotFoundError(err):
		return http.StatusNotFound, payloadFor("not_found", err)
	case isConflictError(err):
		return http.StatusConflict, payloadFor("conflict", err)
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, payloadFor("unprocessable", err)
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func payloadFor(errorType string, err error) errorPayload {
	return errorPayload{
		Type:    errorType,
		Code:    errorCode(err),
		Message: errorCode(err),
	}
}

// errorCode walks to the innermost error. Domain sentinels are named by
// their wire code, so the tail of the chain is the code.
func errorCode(err error) string {
	if err == nil {
		return "internal_error"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ledgerdomain.ErrInvalidOrganization),
		errors.Is(err, ledgerdomain.ErrInvalidSourceType),
		errors.Is(err, ledgerdomain.ErrInvalidSourceID),
		errors.Is(err, ledgerdomain.ErrInvalidEvent),
		errors.Is(err, ledgerdomain.ErrInvalidCurrency),
		errors.Is(err, ledgerdomain.ErrInvalidLines),
		errors.Is(err, ledgerdomain.ErrInvalidLineAmount),
		errors.Is(err, ledgerdomain.ErrInvalidLineSide),
		errors.Is(err, ledgerdomain.ErrInvalidAccount),
		errors.Is(err, accountdomain.ErrInvalidType),
		errors.Is(err, accountdomain.ErrInvalidOwner),
		errors.Is(err, accountdomain.ErrInvalidCurrency),
		errors.Is(err, bookingdomain.ErrInvalidAmount),
		errors.Is(err, bookingdomain.ErrInvalidCurrency):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrPostingNotFound),
		errors.Is(err, accrualdomain.ErrNotFound),
		errors.Is(err, refunddomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, bookingdomain.ErrInvalidState),
		errors.Is(err, bookingdomain.ErrFxSnapshotMissing),
		errors.Is(err, accrualdomain.ErrSupplierIDMissing),
		errors.Is(err, accrualdomain.ErrInvalidCommission),
		errors.Is(err, accrualdomain.ErrAlreadyReversed),
		errors.Is(err, refunddomain.ErrCaseExists),
		errors.Is(err, refunddomain.ErrInvalidCaseState):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, refunddomain.ErrApprovedAmountInvalid),
		errors.Is(err, ledgerdomain.ErrUnbalancedPosting),
		errors.Is(err, ledgerdomain.ErrCurrencyMismatch):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

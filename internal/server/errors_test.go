package server

import (
	"fmt"
	"net/http"
	"testing"

	accrualdomain "github.com/tripfolio/financeos/internal/accrual/domain"
	bookingdomain "github.com/tripfolio/financeos/internal/booking/domain"
	ledgerdomain "github.com/tripfolio/financeos/internal/ledger/domain"
	refunddomain "github.com/tripfolio/financeos/internal/refund/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError_StatusBuckets(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ledgerdomain.ErrInvalidLineAmount, http.StatusBadRequest, "invalid_line_amount"},
		{bookingdomain.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
		{bookingdomain.ErrNotFound, http.StatusNotFound, "booking_not_found"},
		{refunddomain.ErrNotFound, http.StatusNotFound, "refund_case_not_found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "record not found"},
		{bookingdomain.ErrInvalidState, http.StatusConflict, "invalid_booking_state"},
		{bookingdomain.ErrFxSnapshotMissing, http.StatusConflict, "fx_snapshot_missing"},
		{accrualdomain.ErrSupplierIDMissing, http.StatusConflict, "supplier_id_missing"},
		{accrualdomain.ErrAlreadyReversed, http.StatusConflict, "supplier_accrual_reversed"},
		{refunddomain.ErrCaseExists, http.StatusConflict, "refund_case_exists"},
		{refunddomain.ErrApprovedAmountInvalid, http.StatusUnprocessableEntity, "approved_amount_invalid"},
		{ledgerdomain.ErrUnbalancedPosting, http.StatusUnprocessableEntity, "unbalanced_posting"},
		{ledgerdomain.ErrCurrencyMismatch, http.StatusUnprocessableEntity, "currency_mismatch"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, payload.Code, tc.err.Error())
	}
}

func TestMapError_WrappedErrorKeepsSentinelCode(t *testing.T) {
	wrapped := fmt.Errorf("approve case 42: %w", refunddomain.ErrInvalidCaseState)

	status, payload := mapError(wrapped)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_case_state", payload.Code)
}

func TestMapError_UnknownErrorIsOpaque(t *testing.T) {
	status, payload := mapError(fmt.Errorf("pg: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Code)
	assert.Equal(t, "internal server error", payload.Message)
}

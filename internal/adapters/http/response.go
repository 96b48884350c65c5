package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, contracts.SuccessResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, contracts.ErrorResponse{
		Status: "error",
		Error: contracts.ErrorPayload{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

func mapDomainError(err error) (status int, code string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrIdempotencyRequired):
		return http.StatusBadRequest, "idempotency_key_required"
	case errors.Is(err, domain.ErrDuplicateInFlight):
		return http.StatusConflict, "duplicate_in_flight"
	case errors.Is(err, domain.ErrIdempotencyConflict), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrAlreadyOverridden):
		return http.StatusConflict, "already_overridden"
	case errors.Is(err, domain.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity, "insufficient_points"
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrPrizeExhausted):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrPrizeInactive):
		return http.StatusConflict, "prize_inactive"
	case errors.Is(err, domain.ErrReservationClosed):
		return http.StatusConflict, "reservation_closed"
	case errors.Is(err, domain.ErrSettingsUnavailable):
		return http.StatusServiceUnavailable, "settings_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yallacatch/claim-engine/internal/application"
	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
)

type Handler struct{ service *application.Service }

func NewHandler(service *application.Service) *Handler { return &Handler{service: service} }

func (h *Handler) submitClaim(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	result, err := h.service.SubmitClaim(r.Context(), actor, application.SubmitClaimInput{
		PlayerID:         strings.TrimSpace(req.PlayerID),
		PrizeID:          strings.TrimSpace(req.PrizeID),
		ReportedLocation: req.ReportedLocation,
		DeviceSignals:    req.DeviceSignals,
		IdempotencyKey:   strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeSuccess(w, status, "", toClaimResultResponse(result))
}

func (h *Handler) getClaim(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	claim, err := h.service.GetClaim(r.Context(), actor, chi.URLParam(r, "claim_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", claim)
}

func (h *Handler) listClaims(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	playerID := strings.TrimSpace(r.URL.Query().Get("player_id"))
	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntOrDefault(r.URL.Query().Get("offset"), 0)
	out, err := h.service.ListClaimsByPlayer(r.Context(), actor, playerID, limit, offset)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"items": out.Items,
		"pagination": contracts.Pagination{
			Limit:  limit,
			Offset: offset,
			Total:  out.Total,
		},
	})
}

func (h *Handler) listFlaggedClaims(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntOrDefault(r.URL.Query().Get("offset"), 0)
	out, err := h.service.ListFlaggedClaims(r.Context(), actor, limit, offset)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"items": out.Items,
		"pagination": contracts.Pagination{
			Limit:  limit,
			Offset: offset,
			Total:  out.Total,
		},
	})
}

func (h *Handler) overrideClaim(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.OverrideClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	result, err := h.service.OverrideClaim(r.Context(), actor, application.OverrideClaimInput{
		ClaimID:  chi.URLParam(r, "claim_id"),
		Decision: domain.Decision(strings.ToLower(strings.TrimSpace(req.Decision))),
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "override applied", toClaimResultResponse(result))
}

func (h *Handler) reserveRedemption(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ReserveRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	reservation, err := h.service.ReserveRedemption(r.Context(), actor, application.ReserveRedemptionInput{
		PlayerID: strings.TrimSpace(req.PlayerID),
		RewardID: strings.TrimSpace(req.RewardID),
		Quantity: req.Quantity,
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "reservation created", toReservationResponse(reservation))
}

func (h *Handler) confirmRedemption(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	reservation, err := h.service.ConfirmRedemption(r.Context(), actor, chi.URLParam(r, "reservation_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "reservation confirmed", toReservationResponse(reservation))
}

func (h *Handler) releaseRedemption(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	reservation, err := h.service.ReleaseRedemption(r.Context(), actor, chi.URLParam(r, "reservation_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "reservation released", toReservationResponse(reservation))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	player, err := h.service.GetBalance(r.Context(), actor, chi.URLParam(r, "player_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.BalanceResponse{
		PlayerID:    player.PlayerID,
		Available:   player.Points.Available,
		Total:       player.Points.Total,
		Spent:       player.Points.Spent,
		RiskProfile: player.RiskProfile,
	})
}

func toClaimResultResponse(result application.ClaimResult) contracts.ClaimResultResponse {
	return contracts.ClaimResultResponse{
		ClaimID:          result.ClaimID,
		Decision:         string(result.Decision),
		DecisionReason:   result.DecisionReason,
		RiskScore:        result.RiskScore,
		ValidationChecks: result.ValidationChecks,
		PointsAwarded:    result.PointsAwarded,
		Duplicate:        result.Duplicate,
	}
}

func toReservationResponse(reservation domain.Reservation) contracts.ReservationResponse {
	return contracts.ReservationResponse{
		ReservationID: reservation.ReservationID,
		PlayerID:      reservation.PlayerID,
		RewardID:      reservation.RewardID,
		Quantity:      reservation.Quantity,
		PointsDebited: reservation.PointsDebited,
		Status:        string(reservation.Status),
		ExpiresAt:     reservation.ExpiresAt.Format(time.RFC3339),
	}
}

func parseIntOrDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

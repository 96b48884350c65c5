package contracts

import "github.com/yallacatch/claim-engine/internal/domain"

type SubmitClaimRequest struct {
	PlayerID         string                  `json:"player_id"`
	PrizeID          string                  `json:"prize_id"`
	ReportedLocation domain.ReportedLocation `json:"reported_location"`
	DeviceSignals    domain.DeviceSignals    `json:"device_signals"`
	IdempotencyKey   string                  `json:"idempotency_key"`
}

type ClaimResultResponse struct {
	ClaimID          string                  `json:"claim_id"`
	Decision         string                  `json:"decision"`
	DecisionReason   string                  `json:"decision_reason"`
	RiskScore        float64                 `json:"risk_score"`
	ValidationChecks domain.ValidationChecks `json:"validation_checks"`
	PointsAwarded    int64                   `json:"points_awarded"`
	Duplicate        bool                    `json:"duplicate,omitempty"`
}

type OverrideClaimRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

type ReserveRedemptionRequest struct {
	PlayerID string `json:"player_id"`
	RewardID string `json:"reward_id"`
	Quantity int    `json:"quantity"`
}

type ReservationResponse struct {
	ReservationID string `json:"reservation_id"`
	PlayerID      string `json:"player_id"`
	RewardID      string `json:"reward_id"`
	Quantity      int    `json:"quantity"`
	PointsDebited int64  `json:"points_debited"`
	Status        string `json:"status"`
	ExpiresAt     string `json:"expires_at"`
}

type BalanceResponse struct {
	PlayerID    string  `json:"player_id"`
	Available   int64   `json:"available"`
	Total       int64   `json:"total"`
	Spent       int64   `json:"spent"`
	RiskProfile float64 `json:"risk_profile"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

package contracts

import (
	"encoding/json"
	"time"

	"github.com/yallacatch/claim-engine/internal/domain"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type PrizePublishedPayload struct {
	PrizeID      string  `json:"prize_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_meters"`
	Quantity     int     `json:"quantity"`
	PointsReward int64   `json:"points_reward"`
	VisibleFrom  string  `json:"visible_from"`
	VisibleUntil string  `json:"visible_until"`
}

type RewardStockUpdatedPayload struct {
	RewardID   string `json:"reward_id"`
	PointsCost int64  `json:"points_cost"`
	Quantity   int    `json:"stock_quantity"`
}

type RiskSettingsUpdatedPayload struct {
	SettingsVersion string              `json:"settings_version"`
	Settings        domain.RiskSettings `json:"settings"`
}

type ReservationExpiredPayload struct {
	ReservationID string `json:"reservation_id"`
	ExpiredAt     string `json:"expired_at"`
}

type ClaimDecidedPayload struct {
	ClaimID          string                  `json:"claim_id"`
	PlayerID         string                  `json:"player_id"`
	PrizeID          string                  `json:"prize_id"`
	Decision         string                  `json:"decision"`
	DecisionReason   string                  `json:"decision_reason"`
	RiskScore        float64                 `json:"risk_score"`
	ValidationChecks domain.ValidationChecks `json:"validation_checks"`
	PointsAwarded    int64                   `json:"points_awarded"`
	DecidedAt        string                  `json:"decided_at"`
}

type ClaimOverriddenPayload struct {
	ClaimID           string  `json:"claim_id"`
	PlayerID          string  `json:"player_id"`
	PrizeID           string  `json:"prize_id"`
	PreviousDecision  string  `json:"previous_decision"`
	OverrideDecision  string  `json:"override_decision"`
	ReviewerID        string  `json:"reviewer_id"`
	RiskScore         float64 `json:"risk_score"`
	PointsAwarded     int64   `json:"points_awarded"`
	ReconciliationDue bool    `json:"reconciliation_required"`
	OverriddenAt      string  `json:"overridden_at"`
}

type RedemptionPayload struct {
	ReservationID string `json:"reservation_id"`
	PlayerID      string `json:"player_id"`
	RewardID      string `json:"reward_id"`
	Quantity      int    `json:"quantity"`
	PointsDebited int64  `json:"points_debited"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

type DLQRecord struct {
	OriginalEvent EventEnvelope `json:"original_event"`
	ErrorSummary  string        `json:"error_summary"`
	RetryCount    int           `json:"retry_count"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	LastErrorAt   time.Time     `json:"last_error_at"`
	SourceTopic   string        `json:"source_topic,omitempty"`
	DLQTopic      string        `json:"dlq_topic,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
}

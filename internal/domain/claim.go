package domain

import (
	"strings"
	"time"
)

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionFlagged  Decision = "flagged"
	DecisionRejected Decision = "rejected"
)

// Rejection/flag reasons recorded on the claim and carried in audit events.
const (
	ReasonGeoOutOfRange     = "geo_out_of_range"
	ReasonTimingInvalid     = "timing_invalid"
	ReasonSpeedExceeded     = "speed_exceeded"
	ReasonCooldownActive    = "cooldown_active"
	ReasonDailyLimitReached = "daily_limit_reached"
	ReasonHighRisk          = "high_risk"
	ReasonElevatedRisk      = "elevated_risk"
	ReasonManualReview      = "manual_review"
	ReasonPrizeExhausted    = "prize_exhausted"
	ReasonClean             = "clean"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ReportedLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// TrackingState values reported by the mobile sensor layer.
const (
	TrackingStateTracking    = "tracking"
	TrackingStateLimited     = "limited"
	TrackingStateNotTracking = "not_tracking"
)

type DeviceSignals struct {
	DeviceID      string  `json:"device_id"`
	Speed         float64 `json:"speed"`
	TrackingState string  `json:"tracking_state"`
	LightLevel    float64 `json:"light_level"`
	DeviceChanged bool    `json:"device_changed"`
}

// ValidationChecks records every kinematic check independently; checks are
// never short-circuited so the audit trail shows all failures.
type ValidationChecks struct {
	DistanceValid   bool `json:"distance_valid"`
	TimeValid       bool `json:"time_valid"`
	SpeedValid      bool `json:"speed_valid"`
	CooldownValid   bool `json:"cooldown_valid"`
	DailyLimitValid bool `json:"daily_limit_valid"`
}

func (v ValidationChecks) AllValid() bool {
	return v.DistanceValid && v.TimeValid && v.SpeedValid && v.CooldownValid && v.DailyLimitValid
}

// FirstFailureReason maps the first failed check to its reason code, in the
// order the checks are defined. Empty string when every check passed.
func (v ValidationChecks) FirstFailureReason() string {
	switch {
	case !v.DistanceValid:
		return ReasonGeoOutOfRange
	case !v.TimeValid:
		return ReasonTimingInvalid
	case !v.SpeedValid:
		return ReasonSpeedExceeded
	case !v.CooldownValid:
		return ReasonCooldownActive
	case !v.DailyLimitValid:
		return ReasonDailyLimitReached
	default:
		return ""
	}
}

// ClaimAttempt is immutable once persisted, except for the override fields
// set exactly once by the override workflow.
type ClaimAttempt struct {
	ClaimID            string           `json:"claim_id"`
	PlayerID           string           `json:"player_id"`
	PrizeID            string           `json:"prize_id"`
	ReportedLocation   ReportedLocation `json:"reported_location"`
	DeviceSignals      DeviceSignals    `json:"device_signals"`
	IdempotencyKey     string           `json:"idempotency_key"`
	ValidationChecks   ValidationChecks `json:"validation_checks"`
	RiskScore          float64          `json:"risk_score"`
	Decision           Decision         `json:"decision"`
	DecisionReason     string           `json:"decision_reason"`
	PointsAwarded      int64            `json:"points_awarded"`
	CreatedAt          time.Time        `json:"created_at"`
	OverriddenDecision *Decision        `json:"overridden_decision,omitempty"`
	OverriddenAt       *time.Time       `json:"overridden_at,omitempty"`
	OverriddenBy       string           `json:"overridden_by,omitempty"`
	OverrideNotes      string           `json:"override_notes,omitempty"`
}

// EffectiveDecision is the override when present, the automated decision
// otherwise.
func (c ClaimAttempt) EffectiveDecision() Decision {
	if c.OverriddenDecision != nil {
		return *c.OverriddenDecision
	}
	return c.Decision
}

func ValidateClaimInput(playerID, prizeID, idempotencyKey string, loc ReportedLocation) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(prizeID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return ErrIdempotencyRequired
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return ErrInvalidInput
	}
	if loc.Accuracy < 0 {
		return ErrInvalidInput
	}
	return nil
}

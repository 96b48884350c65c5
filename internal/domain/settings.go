package domain

import "time"

// PenaltyWeights are the named fraud penalty factors, each a fraction in
// [0,1]. Keeping them enumerated (not free-form key/value) keeps the scorer's
// contract statically checkable.
type PenaltyWeights struct {
	DeviceChange        float64 `json:"device_change" yaml:"device_change"`
	TrackingNotTracking float64 `json:"tracking_not_tracking" yaml:"tracking_not_tracking"`
	LowLight            float64 `json:"low_light" yaml:"low_light"`
	LowAccuracy         float64 `json:"low_accuracy" yaml:"low_accuracy"`
}

// RiskSettings is the read-only configuration snapshot consumed by the claim
// pipeline. A snapshot is taken once per submission and passed by value into
// every validation and scoring call, so a refresh never lands mid-decision.
type RiskSettings struct {
	RiskThreshold             float64        `json:"risk_threshold" yaml:"risk_threshold"`
	CriticalThreshold         float64        `json:"critical_threshold" yaml:"critical_threshold"`
	AutoRejectAbove           float64        `json:"auto_reject_above" yaml:"auto_reject_above"`
	AutoApproveBelow          float64        `json:"auto_approve_below" yaml:"auto_approve_below"`
	Penalties                 PenaltyWeights `json:"penalties" yaml:"penalties"`
	MaxSpeedMps               float64        `json:"max_speed_mps" yaml:"max_speed_mps"`
	GPSAccuracyThreshold      float64        `json:"gps_accuracy_threshold" yaml:"gps_accuracy_threshold"`
	CaptureFrequencyPerMinute float64        `json:"capture_frequency_per_minute" yaml:"capture_frequency_per_minute"`
	ValidationScoreFloor      float64        `json:"validation_score_floor" yaml:"validation_score_floor"`
	LowLightCutoff            float64        `json:"low_light_cutoff" yaml:"low_light_cutoff"`
	MaxDailyClaims            int            `json:"max_daily_claims" yaml:"max_daily_claims"`
}

// DefaultRiskSettings mirrors the operator defaults shipped with the service;
// the external settings collaborator overrides them per environment.
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		RiskThreshold:     25,
		CriticalThreshold: 75,
		AutoRejectAbove:   60,
		AutoApproveBelow:  10,
		Penalties: PenaltyWeights{
			DeviceChange:        0.25,
			TrackingNotTracking: 0.20,
			LowLight:            0.10,
			LowAccuracy:         0.15,
		},
		MaxSpeedMps:               15,
		GPSAccuracyThreshold:      50,
		CaptureFrequencyPerMinute: 2,
		ValidationScoreFloor:      30,
		LowLightCutoff:            0.15,
		MaxDailyClaims:            50,
	}
}

// Cooldown derives the minimum spacing between claims from the configured
// capture frequency. A non-positive frequency disables the cooldown.
func (s RiskSettings) Cooldown() time.Duration {
	if s.CaptureFrequencyPerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / s.CaptureFrequencyPerMinute)
}

package domain

import "math"

// ScoreSignals computes the 0-100 fraud risk score from device and
// environment signals. Pure and deterministic: identical inputs always yield
// the identical score, so it stays independently testable and auditable.
//
// gpsAccuracy is the reported location accuracy in meters; lastKnownDeviceID
// is the device recorded on the player's previous accepted claim, empty when
// there is no history.
func ScoreSignals(signals DeviceSignals, gpsAccuracy float64, lastKnownDeviceID string, settings RiskSettings) float64 {
	sum := 0.0
	if signals.DeviceChanged || (lastKnownDeviceID != "" && signals.DeviceID != "" && signals.DeviceID != lastKnownDeviceID) {
		sum += settings.Penalties.DeviceChange
	}
	if signals.TrackingState != TrackingStateTracking {
		sum += settings.Penalties.TrackingNotTracking
	}
	if signals.LightLevel < settings.LowLightCutoff {
		sum += settings.Penalties.LowLight
	}
	if settings.GPSAccuracyThreshold > 0 && gpsAccuracy > settings.GPSAccuracyThreshold {
		sum += settings.Penalties.LowAccuracy
	}
	return ClampScore(sum * 100)
}

func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	return math.Min(100, score)
}

// FloorRejectedScore applies the configured validation floor to the recorded
// score when a kinematic check failed, so the analytics trail separates hard
// kinematic rejects from clean traffic. The decision itself is unaffected.
func FloorRejectedScore(score float64, checks ValidationChecks, settings RiskSettings) float64 {
	if checks.AllValid() {
		return score
	}
	return ClampScore(math.Max(score, settings.ValidationScoreFloor))
}

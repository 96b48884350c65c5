package domain

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// KinematicInput carries everything the validator needs. The player fields
// are a snapshot taken before validation; the validator itself is pure.
type KinematicInput struct {
	Reported         ReportedLocation
	Signals          DeviceSignals
	Prize            Prize
	LastClaimAt      *time.Time
	LastAcceptedAt   *time.Time
	LastLocation     *GeoPoint
	DailyClaimsCount int
	Timezone         string
	Now              time.Time
}

// KinematicResult is the full outcome of the plausibility checks, including
// the intermediate measurements recorded for audit and analytics.
type KinematicResult struct {
	Checks          ValidationChecks
	DistanceMeters  float64
	ImpliedSpeedMps float64
}

// EvaluateKinematics runs all five checks without short-circuiting.
func EvaluateKinematics(in KinematicInput, settings RiskSettings) KinematicResult {
	out := KinematicResult{}

	// Distance: inside the prize radius plus a tolerance for the reported GPS
	// accuracy, capped at the configured accuracy threshold so a wildly
	// inaccurate fix cannot buy unlimited slack.
	tolerance := in.Reported.Accuracy
	if settings.GPSAccuracyThreshold > 0 && tolerance > settings.GPSAccuracyThreshold {
		tolerance = settings.GPSAccuracyThreshold
	}
	out.DistanceMeters = HaversineMeters(GeoPoint{Lat: in.Reported.Lat, Lng: in.Reported.Lng}, in.Prize.Location)
	out.Checks.DistanceValid = out.DistanceMeters <= in.Prize.RadiusMeters+tolerance

	// Time: the prize's visibility window must contain now.
	out.Checks.TimeValid = in.Prize.Status == PrizeStatusActive && in.Prize.WindowContains(in.Now)

	// Speed: both the device-reported speed and the speed implied by movement
	// since the last accepted location must be plausible. With no prior
	// reference the implied check passes by default.
	out.Checks.SpeedValid = true
	if settings.MaxSpeedMps > 0 {
		if in.Signals.Speed > settings.MaxSpeedMps {
			out.Checks.SpeedValid = false
		}
		if in.LastLocation != nil && in.LastAcceptedAt != nil {
			elapsed := in.Now.Sub(*in.LastAcceptedAt).Seconds()
			if elapsed > 0 {
				moved := HaversineMeters(GeoPoint{Lat: in.Reported.Lat, Lng: in.Reported.Lng}, *in.LastLocation)
				out.ImpliedSpeedMps = moved / elapsed
				if out.ImpliedSpeedMps > settings.MaxSpeedMps {
					out.Checks.SpeedValid = false
				}
			}
		}
	}

	// Cooldown: minimum spacing since the previous claim.
	out.Checks.CooldownValid = true
	if cooldown := settings.Cooldown(); cooldown > 0 && in.LastClaimAt != nil {
		out.Checks.CooldownValid = in.Now.Sub(*in.LastClaimAt) >= cooldown
	}

	// Daily limit: the counter resets when the player's local day rolls over.
	out.Checks.DailyLimitValid = true
	if settings.MaxDailyClaims > 0 {
		out.Checks.DailyLimitValid = EffectiveDailyCount(in.LastClaimAt, in.DailyClaimsCount, in.Now, in.Timezone) < settings.MaxDailyClaims
	}

	return out
}

// EffectiveDailyCount returns the daily claim count after applying the
// local-day rollover: a stored count from a previous local day reads as zero.
func EffectiveDailyCount(lastClaimAt *time.Time, stored int, now time.Time, tz string) int {
	if lastClaimAt == nil {
		return 0
	}
	if !SameLocalDay(*lastClaimAt, now, tz) {
		return 0
	}
	return stored
}

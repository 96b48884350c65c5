package domain

import (
	"math"
	"testing"
	"time"
)

func TestHaversineMetersKnownDistance(t *testing.T) {
	t.Parallel()

	// Riyadh city center to King Khalid airport, roughly 30 km.
	a := GeoPoint{Lat: 24.7136, Lng: 46.6753}
	b := GeoPoint{Lat: 24.9578, Lng: 46.6989}
	got := HaversineMeters(a, b)
	if got < 26000 || got > 29000 {
		t.Fatalf("expected ~27km, got %.0f m", got)
	}
	if HaversineMeters(a, a) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestEvaluateKinematicsAllChecksPassAtExactCoordinates(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		PrizeID:      "prize-1",
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Quantity:     3,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	out := EvaluateKinematics(KinematicInput{
		Reported: ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:  DeviceSignals{Speed: 1, TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:    prize,
		Now:      now,
	}, settings)
	if !out.Checks.AllValid() {
		t.Fatalf("expected all checks valid, got %+v", out.Checks)
	}
	if out.DistanceMeters != 0 {
		t.Fatalf("expected zero distance, got %f", out.DistanceMeters)
	}
}

func TestEvaluateKinematicsDistanceToleranceCappedByAccuracyThreshold(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	// ~200m north of the prize. Reporting a 500m accuracy must not widen the
	// tolerance past the 50m threshold, so the check fails.
	out := EvaluateKinematics(KinematicInput{
		Reported: ReportedLocation{Lat: 24.7154, Lng: 46.6753, Accuracy: 500},
		Signals:  DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:    prize,
		Now:      now,
	}, settings)
	if out.Checks.DistanceValid {
		t.Fatalf("expected distance check to fail at %.0f m", out.DistanceMeters)
	}
}

func TestEvaluateKinematicsReportedSpeedExceedsMax(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	out := EvaluateKinematics(KinematicInput{
		Reported: ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:  DeviceSignals{Speed: 40, TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:    prize,
		Now:      now,
	}, settings)
	if out.Checks.SpeedValid {
		t.Fatalf("expected speed check to fail at 40 m/s with max 15")
	}
	if out.Checks.FirstFailureReason() != ReasonSpeedExceeded {
		t.Fatalf("expected %s, got %s", ReasonSpeedExceeded, out.Checks.FirstFailureReason())
	}
}

func TestEvaluateKinematicsImpliedSpeedFromLastAcceptedLocation(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	// Last accepted claim 60s ago, ~27km away: implied speed far above 15 m/s.
	lastAt := now.Add(-60 * time.Second)
	lastLoc := GeoPoint{Lat: 24.9578, Lng: 46.6989}
	out := EvaluateKinematics(KinematicInput{
		Reported:       ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:        DeviceSignals{Speed: 1, TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:          prize,
		LastAcceptedAt: &lastAt,
		LastLocation:   &lastLoc,
		Now:            now,
	}, settings)
	if out.Checks.SpeedValid {
		t.Fatalf("expected implied speed %.0f m/s to fail", out.ImpliedSpeedMps)
	}
	if out.ImpliedSpeedMps < 400 {
		t.Fatalf("expected implied speed above 400 m/s, got %.0f", out.ImpliedSpeedMps)
	}
}

func TestEvaluateKinematicsCooldownFromCaptureFrequency(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	if settings.Cooldown() != 30*time.Second {
		t.Fatalf("expected 30s cooldown from 2/min, got %s", settings.Cooldown())
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	recent := now.Add(-10 * time.Second)
	out := EvaluateKinematics(KinematicInput{
		Reported:    ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:     DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:       prize,
		LastClaimAt: &recent,
		Now:         now,
	}, settings)
	if out.Checks.CooldownValid {
		t.Fatalf("expected cooldown check to fail 10s after previous claim")
	}

	spaced := now.Add(-31 * time.Second)
	out = EvaluateKinematics(KinematicInput{
		Reported:    ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:     DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:       prize,
		LastClaimAt: &spaced,
		Now:         now,
	}, settings)
	if !out.Checks.CooldownValid {
		t.Fatalf("expected cooldown check to pass 31s after previous claim")
	}
}

func TestEvaluateKinematicsDailyLimitResetsOnLocalDayRollover(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-48 * time.Hour),
		VisibleUntil: now.Add(time.Hour),
	}
	yesterday := now.Add(-125 * time.Minute) // Mar 1 22:00 UTC
	out := EvaluateKinematics(KinematicInput{
		Reported:         ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:          DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:            prize,
		LastClaimAt:      &yesterday,
		DailyClaimsCount: settings.MaxDailyClaims,
		Now:              now,
	}, settings)
	if !out.Checks.DailyLimitValid {
		t.Fatalf("expected daily limit to reset after UTC day rollover")
	}

	// Same instants viewed from Riyadh (UTC+3) both land on March 2, so the
	// stored counter still applies and the check fails.
	out = EvaluateKinematics(KinematicInput{
		Reported:         ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:          DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:            prize,
		LastClaimAt:      &yesterday,
		DailyClaimsCount: settings.MaxDailyClaims,
		Timezone:         "Asia/Riyadh",
		Now:              now,
	}, settings)
	if out.Checks.DailyLimitValid {
		t.Fatalf("expected daily limit to hold within the same Riyadh day")
	}
}

func TestEvaluateKinematicsExpiredWindowFailsTimeCheck(t *testing.T) {
	t.Parallel()

	settings := DefaultRiskSettings()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{
		Location:     GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Status:       PrizeStatusActive,
		VisibleFrom:  now.Add(-2 * time.Hour),
		VisibleUntil: now.Add(-time.Hour),
	}
	out := EvaluateKinematics(KinematicInput{
		Reported: ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		Signals:  DeviceSignals{TrackingState: TrackingStateTracking, LightLevel: 0.8},
		Prize:    prize,
		Now:      now,
	}, settings)
	if out.Checks.TimeValid {
		t.Fatalf("expected time check to fail outside the visibility window")
	}
	// Distance still evaluated despite the time failure.
	if !out.Checks.DistanceValid {
		t.Fatalf("expected distance check to run independently")
	}
}

func TestEffectiveDailyCount(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := EffectiveDailyCount(nil, 7, now, ""); got != 0 {
		t.Fatalf("nil last claim must read zero, got %d", got)
	}
	sameDay := now.Add(-2 * time.Hour)
	if got := EffectiveDailyCount(&sameDay, 7, now, ""); got != 7 {
		t.Fatalf("same day must keep counter, got %d", got)
	}
	prevDay := now.Add(-24 * time.Hour)
	if got := EffectiveDailyCount(&prevDay, 7, now, ""); got != 0 {
		t.Fatalf("previous day must reset counter, got %d", got)
	}
}

func TestSameLocalDayFallsBackToUTCOnUnknownZone(t *testing.T) {
	t.Parallel()

	a := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	if SameLocalDay(a, b, "Not/AZone") {
		t.Fatalf("expected UTC fallback to split the days")
	}
	if !SameLocalDay(a, b, "Asia/Riyadh") {
		t.Fatalf("expected same day in UTC+3")
	}
}

func TestWindowContainsOpenEnded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prize := Prize{VisibleFrom: now.Add(-time.Hour)}
	if !prize.WindowContains(now) {
		t.Fatalf("zero visible_until must mean open-ended")
	}
	if prize.WindowContains(now.Add(-2 * time.Hour)) {
		t.Fatalf("instant before visible_from must be outside")
	}
}

func TestValidateClaimInput(t *testing.T) {
	t.Parallel()

	loc := ReportedLocation{Lat: 24.7, Lng: 46.7, Accuracy: 5}
	if err := ValidateClaimInput("p1", "z1", "key", loc); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := ValidateClaimInput("", "z1", "key", loc); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for empty player, got %v", err)
	}
	if err := ValidateClaimInput("p1", "z1", "", loc); err != ErrIdempotencyRequired {
		t.Fatalf("expected ErrIdempotencyRequired, got %v", err)
	}
	if err := ValidateClaimInput("p1", "z1", "key", ReportedLocation{Lat: 91}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for bad latitude, got %v", err)
	}
	if err := ValidateClaimInput("p1", "z1", "key", ReportedLocation{Accuracy: -1}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for negative accuracy, got %v", err)
	}
}

func TestNextRiskProfileDecaysAndClamps(t *testing.T) {
	t.Parallel()

	if got := NextRiskProfile(0, 100); math.Abs(got-20) > 1e-9 {
		t.Fatalf("expected 20, got %f", got)
	}
	if got := NextRiskProfile(100, 100); got != 100 {
		t.Fatalf("expected cap at 100, got %f", got)
	}
	if got := NextRiskProfile(0, 0); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

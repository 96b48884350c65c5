package domain

import "time"

// PointsBalance holds the three point counters. available <= total and
// spent == total - available at all times; both are enforced by the ledger
// operations, never recomputed after the fact.
type PointsBalance struct {
	Available int64 `json:"available"`
	Total     int64 `json:"total"`
	Spent     int64 `json:"spent"`
}

type Player struct {
	PlayerID         string        `json:"player_id"`
	Points           PointsBalance `json:"points"`
	LastClaimAt      *time.Time    `json:"last_claim_at,omitempty"`
	DailyClaimsCount int           `json:"daily_claims_count"`
	LastAcceptedAt   *time.Time    `json:"last_accepted_at,omitempty"`
	LastLocation     *GeoPoint     `json:"last_location,omitempty"`
	LastDeviceID     string        `json:"last_device_id,omitempty"`
	RiskProfile      float64       `json:"risk_profile"`
	Timezone         string        `json:"timezone,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ClaimActivity is the non-ledger player state advanced after a decided
// claim. Location and device advance only on approvals; the claim counters
// advance on approvals and flags so flagged spam still burns cooldown.
type ClaimActivity struct {
	ClaimAt          time.Time
	DailyClaimsCount int
	Location         *GeoPoint
	DeviceID         string
	RiskScore        float64
}

// riskProfileDecay weights the rolling risk aggregate toward history; the
// newest score contributes 1-riskProfileDecay.
const riskProfileDecay = 0.8

func NextRiskProfile(current, score float64) float64 {
	next := current*riskProfileDecay + score*(1-riskProfileDecay)
	if next < 0 {
		return 0
	}
	if next > 100 {
		return 100
	}
	return next
}

// SameLocalDay reports whether both instants fall on the same calendar day in
// the given IANA timezone. An unknown zone falls back to UTC so the daily
// counter still resets deterministically.
func SameLocalDay(a, b time.Time, tz string) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

package domain

import "time"

type PrizeStatus string

const (
	PrizeStatusActive    PrizeStatus = "active"
	PrizeStatusExhausted PrizeStatus = "exhausted"
	PrizeStatusExpired   PrizeStatus = "expired"
)

type Prize struct {
	PrizeID      string      `json:"prize_id"`
	Location     GeoPoint    `json:"location"`
	RadiusMeters float64     `json:"radius_meters"`
	Quantity     int         `json:"quantity"`
	ClaimedCount int         `json:"claimed_count"`
	PointsReward int64       `json:"points_reward"`
	Status       PrizeStatus `json:"status"`
	VisibleFrom  time.Time   `json:"visible_from"`
	VisibleUntil time.Time   `json:"visible_until"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// WindowContains reports whether the prize's visibility window contains now.
// A zero VisibleUntil means an open-ended window.
func (p Prize) WindowContains(now time.Time) bool {
	if now.Before(p.VisibleFrom) {
		return false
	}
	if !p.VisibleUntil.IsZero() && now.After(p.VisibleUntil) {
		return false
	}
	return true
}

package domain

import "time"

// RewardStock invariant: Reserved + Available == Quantity after every
// operation, and neither counter is ever negative. Mutations happen only
// through the stock repository's conditional reserve/confirm/release.
type RewardStock struct {
	RewardID   string    `json:"reward_id"`
	PointsCost int64     `json:"points_cost"`
	Quantity   int       `json:"stock_quantity"`
	Reserved   int       `json:"stock_reserved"`
	Available  int       `json:"stock_available"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
)

type Reservation struct {
	ReservationID string            `json:"reservation_id"`
	PlayerID      string            `json:"player_id"`
	RewardID      string            `json:"reward_id"`
	Quantity      int               `json:"quantity"`
	PointsDebited int64             `json:"points_debited"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

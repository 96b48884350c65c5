package postgres

import "time"

type claimModel struct {
	ClaimID            string     `gorm:"column:claim_id;primaryKey"`
	PlayerID           string     `gorm:"column:player_id"`
	PrizeID            string     `gorm:"column:prize_id"`
	ReportedLocation   string     `gorm:"column:reported_location;type:jsonb"`
	DeviceSignals      string     `gorm:"column:device_signals;type:jsonb"`
	IdempotencyKey     string     `gorm:"column:idempotency_key"`
	ValidationChecks   string     `gorm:"column:validation_checks;type:jsonb"`
	RiskScore          float64    `gorm:"column:risk_score"`
	Decision           string     `gorm:"column:decision"`
	DecisionReason     string     `gorm:"column:decision_reason"`
	PointsAwarded      int64      `gorm:"column:points_awarded"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	OverriddenDecision *string    `gorm:"column:overridden_decision"`
	OverriddenAt       *time.Time `gorm:"column:overridden_at"`
	OverriddenBy       *string    `gorm:"column:overridden_by"`
	OverrideNotes      *string    `gorm:"column:override_notes"`
}

func (claimModel) TableName() string { return "claim_attempts" }

type playerModel struct {
	PlayerID         string     `gorm:"column:player_id;primaryKey"`
	PointsAvailable  int64      `gorm:"column:points_available"`
	PointsTotal      int64      `gorm:"column:points_total"`
	PointsSpent      int64      `gorm:"column:points_spent"`
	LastClaimAt      *time.Time `gorm:"column:last_claim_at"`
	DailyClaimsCount int        `gorm:"column:daily_claims_count"`
	LastAcceptedAt   *time.Time `gorm:"column:last_accepted_at"`
	LastLat          *float64   `gorm:"column:last_lat"`
	LastLng          *float64   `gorm:"column:last_lng"`
	LastDeviceID     *string    `gorm:"column:last_device_id"`
	RiskProfile      float64    `gorm:"column:risk_profile"`
	Timezone         *string    `gorm:"column:timezone"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (playerModel) TableName() string { return "players" }

type prizeModel struct {
	PrizeID      string    `gorm:"column:prize_id;primaryKey"`
	Lat          float64   `gorm:"column:lat"`
	Lng          float64   `gorm:"column:lng"`
	RadiusMeters float64   `gorm:"column:radius_meters"`
	Quantity     int       `gorm:"column:quantity"`
	ClaimedCount int       `gorm:"column:claimed_count"`
	PointsReward int64     `gorm:"column:points_reward"`
	Status       string    `gorm:"column:status"`
	VisibleFrom  time.Time `gorm:"column:visible_from"`
	VisibleUntil time.Time `gorm:"column:visible_until"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (prizeModel) TableName() string { return "prizes" }

type stockModel struct {
	RewardID       string    `gorm:"column:reward_id;primaryKey"`
	PointsCost     int64     `gorm:"column:points_cost"`
	StockQuantity  int       `gorm:"column:stock_quantity"`
	StockReserved  int       `gorm:"column:stock_reserved"`
	StockAvailable int       `gorm:"column:stock_available"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (stockModel) TableName() string { return "reward_stock" }

type reservationModel struct {
	ReservationID string    `gorm:"column:reservation_id;primaryKey"`
	PlayerID      string    `gorm:"column:player_id"`
	RewardID      string    `gorm:"column:reward_id"`
	Quantity      int       `gorm:"column:quantity"`
	PointsDebited int64     `gorm:"column:points_debited"`
	Status        string    `gorm:"column:status"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	ExpiresAt     time.Time `gorm:"column:expires_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (reservationModel) TableName() string { return "redemption_reservations" }

type auditLogModel struct {
	LogID      string    `gorm:"column:log_id;primaryKey"`
	ClaimID    string    `gorm:"column:claim_id"`
	PlayerID   string    `gorm:"column:player_id"`
	PrizeID    string    `gorm:"column:prize_id"`
	Action     string    `gorm:"column:action"`
	Decision   string    `gorm:"column:decision"`
	RiskScore  float64   `gorm:"column:risk_score"`
	ReviewerID *string   `gorm:"column:reviewer_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	Metadata   string    `gorm:"column:metadata;type:jsonb"`
}

func (auditLogModel) TableName() string { return "claim_audit_log" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "claim_idempotency" }

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (eventDedupModel) TableName() string { return "claim_event_dedup" }

type outboxModel struct {
	RecordID   string     `gorm:"column:record_id;primaryKey"`
	EventClass string     `gorm:"column:event_class"`
	Envelope   string     `gorm:"column:envelope;type:jsonb"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	SentAt     *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string { return "claim_outbox" }

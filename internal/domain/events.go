package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

// Consumed event types.
const (
	EventPrizePublished      = "prize.published"
	EventRewardStockUpdated  = "reward.stock.updated"
	EventRiskSettingsUpdated = "risk.settings.updated"
	EventReservationExpired  = "reservation.expired"
)

// Emitted event types.
const (
	EventClaimDecided        = "claim.decided"
	EventClaimOverridden     = "claim.overridden"
	EventRedemptionReserved  = "redemption.reserved"
	EventRedemptionConfirmed = "redemption.confirmed"
	EventRedemptionReleased  = "redemption.released"
)

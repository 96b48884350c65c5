package ports

import (
	"context"
	"time"

	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
)

type ClaimRepository interface {
	Create(ctx context.Context, claim domain.ClaimAttempt) error
	GetByID(ctx context.Context, claimID string) (domain.ClaimAttempt, error)
	ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]domain.ClaimAttempt, int, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]domain.ClaimAttempt, int, error)
	// ApplyOverride sets the override fields exactly once; a second override
	// for the same claim fails with domain.ErrAlreadyOverridden. The
	// check-and-set is a single conditional mutation so racing overrides
	// cannot both win.
	ApplyOverride(ctx context.Context, claimID string, decision domain.Decision, reviewerID, notes string, at time.Time) (domain.ClaimAttempt, error)
}

type PlayerRepository interface {
	Get(ctx context.Context, playerID string) (domain.Player, error)
	Upsert(ctx context.Context, player domain.Player) error
	// Credit increases available and total in one indivisible mutation.
	Credit(ctx context.Context, playerID string, amount int64, reason string) (domain.PointsBalance, error)
	// Debit decreases available and increases spent only when available
	// covers the amount at the moment of the mutation; otherwise it fails
	// with domain.ErrInsufficientPoints and leaves the record unchanged.
	Debit(ctx context.Context, playerID string, amount int64, reason string) (domain.PointsBalance, error)
	// RecordActivity advances the claim counters and, when activity carries a
	// location, the speed-check reference point and device identity.
	RecordActivity(ctx context.Context, playerID string, activity domain.ClaimActivity) error
}

type PrizeRepository interface {
	Get(ctx context.Context, prizeID string) (domain.Prize, error)
	Upsert(ctx context.Context, prize domain.Prize) error
	// IncrementClaimed bumps claimedCount by one only while claimedCount is
	// below quantity, marking the prize exhausted when the last unit goes.
	// Fails with domain.ErrPrizeExhausted otherwise.
	IncrementClaimed(ctx context.Context, prizeID string, at time.Time) (domain.Prize, error)
}

type StockRepository interface {
	Get(ctx context.Context, rewardID string) (domain.RewardStock, error)
	Upsert(ctx context.Context, stock domain.RewardStock) error
	// Reserve moves qty from available to reserved; fails with
	// domain.ErrInsufficientStock when available < qty.
	Reserve(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error)
	// Confirm consumes a reservation: reserved and quantity both drop by qty.
	Confirm(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error)
	// Release moves qty back from reserved to available.
	Release(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation domain.Reservation) error
	GetByID(ctx context.Context, reservationID string) (domain.Reservation, error)
	// Transition moves a reservation from one status to another with a
	// conditional update; a reservation not in the expected status fails with
	// domain.ErrReservationClosed, which makes confirm/release retries
	// idempotent by reservation id.
	Transition(ctx context.Context, reservationID string, from, to domain.ReservationStatus, at time.Time) (domain.Reservation, error)
}

type AuditRecord struct {
	LogID      string
	ClaimID    string
	PlayerID   string
	PrizeID    string
	Action     string
	Decision   string
	RiskScore  float64
	ReviewerID string
	CreatedAt  time.Time
	Metadata   map[string]string
}

type AuditLogRepository interface {
	Append(ctx context.Context, record AuditRecord) error
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	// Reserve inserts the in-flight marker; first writer wins, later writers
	// get domain.ErrConflict. A marker already expired at now is replaced:
	// key reuse past the TTL is a new logical operation.
	Reserve(ctx context.Context, key, requestHash string, now, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a still-pending marker so the key stays usable after a
	// request that was turned away before recording any state. Completed
	// markers are never released.
	Release(ctx context.Context, key string) error
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}

type OutboxRecord struct {
	RecordID   string
	EventClass string
	Envelope   contracts.EventEnvelope
	CreatedAt  time.Time
	SentAt     *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, record OutboxRecord) error
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, recordID string, at time.Time) error
}

package application

import (
	"time"

	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

type Config struct {
	ServiceName                  string
	IdempotencyTTL               time.Duration
	EventDedupTTL                time.Duration
	OutboxFlushBatchSize         int
	ReservationTTL               time.Duration
	DuplicateWait                time.Duration
	DuplicatePollInterval        time.Duration
	EnableDomainEventConsumption bool
}

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

func (a Actor) IsReviewer() bool {
	return a.Role == "admin" || a.Role == "reviewer"
}

type SubmitClaimInput struct {
	PlayerID         string
	PrizeID          string
	ReportedLocation domain.ReportedLocation
	DeviceSignals    domain.DeviceSignals
	IdempotencyKey   string
}

// ClaimResult is the synchronous outcome returned to the submitting client
// and cached under the idempotency key.
type ClaimResult struct {
	ClaimID          string                  `json:"claim_id"`
	Decision         domain.Decision         `json:"decision"`
	DecisionReason   string                  `json:"decision_reason"`
	RiskScore        float64                 `json:"risk_score"`
	ValidationChecks domain.ValidationChecks `json:"validation_checks"`
	PointsAwarded    int64                   `json:"points_awarded"`
	Duplicate        bool                    `json:"duplicate,omitempty"`
}

type OverrideClaimInput struct {
	ClaimID  string
	Decision domain.Decision
	Notes    string
}

type ReserveRedemptionInput struct {
	PlayerID string
	RewardID string
	Quantity int
}

type ClaimHistoryOutput struct {
	Items []domain.ClaimAttempt
	Total int
}

type Service struct {
	cfg          Config
	claims       ports.ClaimRepository
	players      ports.PlayerRepository
	prizes       ports.PrizeRepository
	stock        ports.StockRepository
	reservations ports.ReservationRepository
	audit        ports.AuditLogRepository
	idempotency  ports.IdempotencyRepository
	eventDedup   ports.EventDedupRepository
	outbox       ports.OutboxRepository

	settings  ports.SettingsReader
	directory ports.PlayerDirectory

	domainEvents ports.DomainPublisher
	analytics    ports.AnalyticsPublisher
	dlq          ports.DLQPublisher
	nowFn        func() time.Time
}

type Dependencies struct {
	Config       Config
	Claims       ports.ClaimRepository
	Players      ports.PlayerRepository
	Prizes       ports.PrizeRepository
	Stock        ports.StockRepository
	Reservations ports.ReservationRepository
	Audit        ports.AuditLogRepository
	Idempotency  ports.IdempotencyRepository
	EventDedup   ports.EventDedupRepository
	Outbox       ports.OutboxRepository
	Settings     ports.SettingsReader
	Directory    ports.PlayerDirectory
	DomainEvents ports.DomainPublisher
	Analytics    ports.AnalyticsPublisher
	DLQ          ports.DLQPublisher
	Now          func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "claim-engine"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.OutboxFlushBatchSize <= 0 {
		cfg.OutboxFlushBatchSize = 100
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 15 * time.Minute
	}
	if cfg.DuplicateWait <= 0 {
		cfg.DuplicateWait = 2 * time.Second
	}
	if cfg.DuplicatePollInterval <= 0 {
		cfg.DuplicatePollInterval = 25 * time.Millisecond
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:          cfg,
		claims:       deps.Claims,
		players:      deps.Players,
		prizes:       deps.Prizes,
		stock:        deps.Stock,
		reservations: deps.Reservations,
		audit:        deps.Audit,
		idempotency:  deps.Idempotency,
		eventDedup:   deps.EventDedup,
		outbox:       deps.Outbox,
		settings:     deps.Settings,
		directory:    deps.Directory,
		domainEvents: deps.DomainEvents,
		analytics:    deps.Analytics,
		dlq:          deps.DLQ,
		nowFn:        nowFn,
	}
}

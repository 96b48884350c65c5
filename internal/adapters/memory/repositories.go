package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

// Repositories is the mutex-guarded in-memory store set used by the dev
// runtime and unit tests. Every balance/counter mutation is a single
// lock-held check-and-mutate, matching the conditional-update contract the
// Postgres adapters implement with guarded UPDATEs.
type Repositories struct {
	Claims       *ClaimRepository
	Players      *PlayerRepository
	Prizes       *PrizeRepository
	Stock        *StockRepository
	Reservations *ReservationRepository
	Audit        *AuditLogRepository
	Idempotency  *IdempotencyRepository
	EventDedup   *EventDedupRepository
	Outbox       *OutboxRepository
}

func NewRepositories() *Repositories {
	return &Repositories{
		Claims:       &ClaimRepository{claims: make(map[string]domain.ClaimAttempt)},
		Players:      &PlayerRepository{players: make(map[string]domain.Player)},
		Prizes:       &PrizeRepository{prizes: make(map[string]domain.Prize)},
		Stock:        &StockRepository{stock: make(map[string]domain.RewardStock)},
		Reservations: &ReservationRepository{reservations: make(map[string]domain.Reservation)},
		Audit:        &AuditLogRepository{records: make([]ports.AuditRecord, 0, 128)},
		Idempotency:  &IdempotencyRepository{records: make(map[string]ports.IdempotencyRecord)},
		EventDedup:   &EventDedupRepository{records: make(map[string]dedupRecord)},
		Outbox:       &OutboxRepository{records: make(map[string]ports.OutboxRecord)},
	}
}

type ClaimRepository struct {
	mu     sync.RWMutex
	claims map[string]domain.ClaimAttempt
	order  []string
}

func (r *ClaimRepository) Create(_ context.Context, claim domain.ClaimAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.claims[claim.ClaimID]; exists {
		return domain.ErrConflict
	}
	r.claims[claim.ClaimID] = claim
	r.order = append(r.order, claim.ClaimID)
	return nil
}

func (r *ClaimRepository) GetByID(_ context.Context, claimID string) (domain.ClaimAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	claim, ok := r.claims[claimID]
	if !ok {
		return domain.ClaimAttempt{}, domain.ErrNotFound
	}
	return claim, nil
}

func (r *ClaimRepository) ListByPlayer(_ context.Context, playerID string, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(c domain.ClaimAttempt) bool {
		return playerID == "" || c.PlayerID == playerID
	}, limit, offset)
}

func (r *ClaimRepository) ListFlagged(_ context.Context, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(c domain.ClaimAttempt) bool {
		return c.EffectiveDecision() == domain.DecisionFlagged
	}, limit, offset)
}

func (r *ClaimRepository) list(keep func(domain.ClaimAttempt) bool, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	items := make([]domain.ClaimAttempt, 0, len(r.claims))
	for _, claim := range r.claims {
		if keep(claim) {
			items = append(items, claim)
		}
	}
	slices.SortFunc(items, func(a, b domain.ClaimAttempt) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	total := len(items)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []domain.ClaimAttempt{}, total, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]domain.ClaimAttempt, end-offset)
	copy(out, items[offset:end])
	return out, total, nil
}

func (r *ClaimRepository) ApplyOverride(_ context.Context, claimID string, decision domain.Decision, reviewerID, notes string, at time.Time) (domain.ClaimAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claim, ok := r.claims[claimID]
	if !ok {
		return domain.ClaimAttempt{}, domain.ErrNotFound
	}
	if claim.OverriddenDecision != nil {
		return domain.ClaimAttempt{}, domain.ErrAlreadyOverridden
	}
	claim.OverriddenDecision = &decision
	claim.OverriddenAt = &at
	claim.OverriddenBy = reviewerID
	claim.OverrideNotes = notes
	r.claims[claimID] = claim
	return claim, nil
}

type PlayerRepository struct {
	mu      sync.RWMutex
	players map[string]domain.Player
}

func (r *PlayerRepository) Get(_ context.Context, playerID string) (domain.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	player, ok := r.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrNotFound
	}
	return player, nil
}

func (r *PlayerRepository) Upsert(_ context.Context, player domain.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[player.PlayerID] = player
	return nil
}

func (r *PlayerRepository) Credit(_ context.Context, playerID string, amount int64, _ string) (domain.PointsBalance, error) {
	if amount < 0 {
		return domain.PointsBalance{}, domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return domain.PointsBalance{}, domain.ErrNotFound
	}
	player.Points.Available += amount
	player.Points.Total += amount
	player.UpdatedAt = time.Now().UTC()
	r.players[playerID] = player
	return player.Points, nil
}

func (r *PlayerRepository) Debit(_ context.Context, playerID string, amount int64, _ string) (domain.PointsBalance, error) {
	if amount < 0 {
		return domain.PointsBalance{}, domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return domain.PointsBalance{}, domain.ErrNotFound
	}
	if player.Points.Available < amount {
		return domain.PointsBalance{}, domain.ErrInsufficientPoints
	}
	player.Points.Available -= amount
	player.Points.Spent += amount
	player.UpdatedAt = time.Now().UTC()
	r.players[playerID] = player
	return player.Points, nil
}

func (r *PlayerRepository) RecordActivity(_ context.Context, playerID string, activity domain.ClaimActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return domain.ErrNotFound
	}
	player.RiskProfile = domain.NextRiskProfile(player.RiskProfile, activity.RiskScore)
	if !activity.ClaimAt.IsZero() {
		at := activity.ClaimAt
		player.LastClaimAt = &at
		player.DailyClaimsCount = activity.DailyClaimsCount
	}
	if activity.Location != nil {
		loc := *activity.Location
		player.LastLocation = &loc
		at := activity.ClaimAt
		player.LastAcceptedAt = &at
		if activity.DeviceID != "" {
			player.LastDeviceID = activity.DeviceID
		}
	}
	player.UpdatedAt = time.Now().UTC()
	r.players[playerID] = player
	return nil
}

type PrizeRepository struct {
	mu     sync.RWMutex
	prizes map[string]domain.Prize
}

func (r *PrizeRepository) Get(_ context.Context, prizeID string) (domain.Prize, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prize, ok := r.prizes[prizeID]
	if !ok {
		return domain.Prize{}, domain.ErrNotFound
	}
	return prize, nil
}

func (r *PrizeRepository) Upsert(_ context.Context, prize domain.Prize) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prizes[prize.PrizeID] = prize
	return nil
}

func (r *PrizeRepository) IncrementClaimed(_ context.Context, prizeID string, at time.Time) (domain.Prize, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prize, ok := r.prizes[prizeID]
	if !ok {
		return domain.Prize{}, domain.ErrNotFound
	}
	if prize.Status != domain.PrizeStatusActive {
		return domain.Prize{}, domain.ErrPrizeInactive
	}
	if prize.ClaimedCount >= prize.Quantity {
		return domain.Prize{}, domain.ErrPrizeExhausted
	}
	prize.ClaimedCount++
	if prize.ClaimedCount == prize.Quantity {
		prize.Status = domain.PrizeStatusExhausted
	}
	prize.UpdatedAt = at
	r.prizes[prizeID] = prize
	return prize, nil
}

type StockRepository struct {
	mu    sync.RWMutex
	stock map[string]domain.RewardStock
}

func (r *StockRepository) Get(_ context.Context, rewardID string) (domain.RewardStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stock, ok := r.stock[rewardID]
	if !ok {
		return domain.RewardStock{}, domain.ErrNotFound
	}
	return stock, nil
}

func (r *StockRepository) Upsert(_ context.Context, stock domain.RewardStock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock[stock.RewardID] = stock
	return nil
}

func (r *StockRepository) Reserve(_ context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	if qty <= 0 {
		return domain.RewardStock{}, domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stock, ok := r.stock[rewardID]
	if !ok {
		return domain.RewardStock{}, domain.ErrNotFound
	}
	if stock.Available < qty {
		return domain.RewardStock{}, domain.ErrInsufficientStock
	}
	stock.Available -= qty
	stock.Reserved += qty
	stock.UpdatedAt = at
	r.stock[rewardID] = stock
	return stock, nil
}

func (r *StockRepository) Confirm(_ context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	if qty <= 0 {
		return domain.RewardStock{}, domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stock, ok := r.stock[rewardID]
	if !ok {
		return domain.RewardStock{}, domain.ErrNotFound
	}
	if stock.Reserved < qty {
		return domain.RewardStock{}, domain.ErrInsufficientStock
	}
	stock.Reserved -= qty
	stock.Quantity -= qty
	stock.UpdatedAt = at
	r.stock[rewardID] = stock
	return stock, nil
}

func (r *StockRepository) Release(_ context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	if qty <= 0 {
		return domain.RewardStock{}, domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stock, ok := r.stock[rewardID]
	if !ok {
		return domain.RewardStock{}, domain.ErrNotFound
	}
	if stock.Reserved < qty {
		return domain.RewardStock{}, domain.ErrInsufficientStock
	}
	stock.Reserved -= qty
	stock.Available += qty
	stock.UpdatedAt = at
	r.stock[rewardID] = stock
	return stock, nil
}

type ReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]domain.Reservation
}

func (r *ReservationRepository) Create(_ context.Context, reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reservations[reservation.ReservationID]; exists {
		return domain.ErrConflict
	}
	r.reservations[reservation.ReservationID] = reservation
	return nil
}

func (r *ReservationRepository) GetByID(_ context.Context, reservationID string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reservation, ok := r.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return reservation, nil
}

func (r *ReservationRepository) Transition(_ context.Context, reservationID string, from, to domain.ReservationStatus, at time.Time) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if reservation.Status != from {
		return domain.Reservation{}, domain.ErrReservationClosed
	}
	reservation.Status = to
	reservation.UpdatedAt = at
	r.reservations[reservationID] = reservation
	return reservation, nil
}

type AuditLogRepository struct {
	mu      sync.Mutex
	records []ports.AuditRecord
}

func (r *AuditLogRepository) Append(_ context.Context, record ports.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// Records returns a copy of the audit trail; used by tests.
func (r *AuditLogRepository) Records() []ports.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}

type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	if now.After(record.ExpiresAt) {
		delete(r.records, key)
		return nil, nil
	}
	out := record
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, now, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[key]; ok && now.Before(existing.ExpiresAt) {
		return domain.ErrConflict
	}
	r.records[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	record.ResponseCode = responseCode
	record.ResponseBody = responseBody
	r.records[key] = record
	return nil
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[key]; ok && len(record.ResponseBody) == 0 {
		delete(r.records, key)
	}
	return nil
}

type dedupRecord struct {
	eventType string
	expiresAt time.Time
}

type EventDedupRepository struct {
	mu      sync.Mutex
	records map[string]dedupRecord
}

func (r *EventDedupRepository) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[eventID]
	if !ok {
		return false, nil
	}
	if now.After(record.expiresAt) {
		delete(r.records, eventID)
		return false, nil
	}
	return true, nil
}

func (r *EventDedupRepository) MarkProcessed(_ context.Context, eventID, eventType string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[eventID] = dedupRecord{eventType: eventType, expiresAt: expiresAt}
	return nil
}

type OutboxRepository struct {
	mu      sync.Mutex
	records map[string]ports.OutboxRecord
	order   []string
}

func (r *OutboxRepository) Enqueue(_ context.Context, record ports.OutboxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.RecordID]; exists {
		return domain.ErrConflict
	}
	r.records[record.RecordID] = record
	r.order = append(r.order, record.RecordID)
	return nil
}

func (r *OutboxRepository) ListPending(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, limit)
	for _, id := range r.order {
		record := r.records[id]
		if record.SentAt != nil {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	record.SentAt = &at
	r.records[recordID] = record
	return nil
}

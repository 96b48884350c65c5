package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

type Repositories struct {
	Claims       ports.ClaimRepository
	Players      ports.PlayerRepository
	Prizes       ports.PrizeRepository
	Stock        ports.StockRepository
	Reservations ports.ReservationRepository
	Audit        ports.AuditLogRepository
	Idempotency  ports.IdempotencyRepository
	EventDedup   ports.EventDedupRepository
	Outbox       ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Claims:       &claimRepository{db: db},
		Players:      &playerRepository{db: db},
		Prizes:       &prizeRepository{db: db},
		Stock:        &stockRepository{db: db},
		Reservations: &reservationRepository{db: db},
		Audit:        &auditLogRepository{db: db},
		Idempotency:  &idempotencyRepository{db: db},
		EventDedup:   &eventDedupRepository{db: db},
		Outbox:       &outboxRepository{db: db},
	}
}

type claimRepository struct {
	db *gorm.DB
}

func (r *claimRepository) Create(ctx context.Context, claim domain.ClaimAttempt) error {
	rec, err := toClaimModel(claim)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *claimRepository) GetByID(ctx context.Context, claimID string) (domain.ClaimAttempt, error) {
	var rec claimModel
	if err := r.db.WithContext(ctx).Where("claim_id = ?", claimID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ClaimAttempt{}, domain.ErrNotFound
		}
		return domain.ClaimAttempt{}, err
	}
	return toDomainClaim(rec)
}

func (r *claimRepository) ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	query := r.db.WithContext(ctx).Model(&claimModel{})
	if strings.TrimSpace(playerID) != "" {
		query = query.Where("player_id = ?", playerID)
	}
	return r.page(query, limit, offset)
}

func (r *claimRepository) ListFlagged(ctx context.Context, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	// The effective decision is the override when present.
	query := r.db.WithContext(ctx).Model(&claimModel{}).
		Where("COALESCE(overridden_decision, decision) = ?", string(domain.DecisionFlagged))
	return r.page(query, limit, offset)
}

func (r *claimRepository) page(query *gorm.DB, limit, offset int) ([]domain.ClaimAttempt, int, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []claimModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.ClaimAttempt, 0, len(rows))
	for _, row := range rows {
		claim, err := toDomainClaim(row)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, claim)
	}
	return out, int(total), nil
}

func (r *claimRepository) ApplyOverride(ctx context.Context, claimID string, decision domain.Decision, reviewerID, notes string, at time.Time) (domain.ClaimAttempt, error) {
	res := r.db.WithContext(ctx).
		Model(&claimModel{}).
		Where("claim_id = ?", claimID).
		Where("overridden_decision IS NULL").
		Updates(map[string]any{
			"overridden_decision": string(decision),
			"overridden_at":       at,
			"overridden_by":       reviewerID,
			"override_notes":      notes,
		})
	if res.Error != nil {
		return domain.ClaimAttempt{}, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&claimModel{}).Where("claim_id = ?", claimID).Count(&exists).Error; err != nil {
			return domain.ClaimAttempt{}, err
		}
		if exists == 0 {
			return domain.ClaimAttempt{}, domain.ErrNotFound
		}
		return domain.ClaimAttempt{}, domain.ErrAlreadyOverridden
	}
	return r.GetByID(ctx, claimID)
}

type playerRepository struct {
	db *gorm.DB
}

func (r *playerRepository) Get(ctx context.Context, playerID string) (domain.Player, error) {
	var rec playerModel
	if err := r.db.WithContext(ctx).Where("player_id = ?", playerID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Player{}, domain.ErrNotFound
		}
		return domain.Player{}, err
	}
	return toDomainPlayer(rec), nil
}

func (r *playerRepository) Upsert(ctx context.Context, player domain.Player) error {
	rec := toPlayerModel(player)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return r.db.WithContext(ctx).Model(&playerModel{}).
				Where("player_id = ?", player.PlayerID).
				Updates(map[string]any{
					"risk_profile": rec.RiskProfile,
					"timezone":     rec.Timezone,
					"updated_at":   rec.UpdatedAt,
				}).Error
		}
		return err
	}
	return nil
}

func (r *playerRepository) Credit(ctx context.Context, playerID string, amount int64, _ string) (domain.PointsBalance, error) {
	if amount < 0 {
		return domain.PointsBalance{}, domain.ErrInvalidInput
	}
	res := r.db.WithContext(ctx).
		Model(&playerModel{}).
		Where("player_id = ?", playerID).
		Updates(map[string]any{
			"points_available": gorm.Expr("points_available + ?", amount),
			"points_total":     gorm.Expr("points_total + ?", amount),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.PointsBalance{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.PointsBalance{}, domain.ErrNotFound
	}
	return r.balance(ctx, playerID)
}

func (r *playerRepository) Debit(ctx context.Context, playerID string, amount int64, _ string) (domain.PointsBalance, error) {
	if amount < 0 {
		return domain.PointsBalance{}, domain.ErrInvalidInput
	}
	// The balance guard lives in the WHERE clause so a racing debit can never
	// push the available counter below zero.
	res := r.db.WithContext(ctx).
		Model(&playerModel{}).
		Where("player_id = ?", playerID).
		Where("points_available >= ?", amount).
		Updates(map[string]any{
			"points_available": gorm.Expr("points_available - ?", amount),
			"points_spent":     gorm.Expr("points_spent + ?", amount),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.PointsBalance{}, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&playerModel{}).Where("player_id = ?", playerID).Count(&exists).Error; err != nil {
			return domain.PointsBalance{}, err
		}
		if exists == 0 {
			return domain.PointsBalance{}, domain.ErrNotFound
		}
		return domain.PointsBalance{}, domain.ErrInsufficientPoints
	}
	return r.balance(ctx, playerID)
}

func (r *playerRepository) RecordActivity(ctx context.Context, playerID string, activity domain.ClaimActivity) error {
	updates := map[string]any{
		"risk_profile": gorm.Expr("LEAST(GREATEST(risk_profile * 0.8 + ? * 0.2, 0), 100)", activity.RiskScore),
		"updated_at":   time.Now().UTC(),
	}
	if !activity.ClaimAt.IsZero() {
		updates["last_claim_at"] = activity.ClaimAt
		updates["daily_claims_count"] = activity.DailyClaimsCount
	}
	if activity.Location != nil {
		updates["last_lat"] = activity.Location.Lat
		updates["last_lng"] = activity.Location.Lng
		updates["last_accepted_at"] = activity.ClaimAt
		if activity.DeviceID != "" {
			updates["last_device_id"] = activity.DeviceID
		}
	}
	res := r.db.WithContext(ctx).
		Model(&playerModel{}).
		Where("player_id = ?", playerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *playerRepository) balance(ctx context.Context, playerID string) (domain.PointsBalance, error) {
	var rec playerModel
	if err := r.db.WithContext(ctx).Where("player_id = ?", playerID).Take(&rec).Error; err != nil {
		return domain.PointsBalance{}, err
	}
	return domain.PointsBalance{Available: rec.PointsAvailable, Total: rec.PointsTotal, Spent: rec.PointsSpent}, nil
}

type prizeRepository struct {
	db *gorm.DB
}

func (r *prizeRepository) Get(ctx context.Context, prizeID string) (domain.Prize, error) {
	var rec prizeModel
	if err := r.db.WithContext(ctx).Where("prize_id = ?", prizeID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Prize{}, domain.ErrNotFound
		}
		return domain.Prize{}, err
	}
	return toDomainPrize(rec), nil
}

func (r *prizeRepository) Upsert(ctx context.Context, prize domain.Prize) error {
	rec := toPrizeModel(prize)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return r.db.WithContext(ctx).Model(&prizeModel{}).
				Where("prize_id = ?", prize.PrizeID).
				Updates(map[string]any{
					"lat":           rec.Lat,
					"lng":           rec.Lng,
					"radius_meters": rec.RadiusMeters,
					"quantity":      rec.Quantity,
					"points_reward": rec.PointsReward,
					"status":        rec.Status,
					"visible_from":  rec.VisibleFrom,
					"visible_until": rec.VisibleUntil,
					"updated_at":    rec.UpdatedAt,
				}).Error
		}
		return err
	}
	return nil
}

func (r *prizeRepository) IncrementClaimed(ctx context.Context, prizeID string, at time.Time) (domain.Prize, error) {
	res := r.db.WithContext(ctx).
		Model(&prizeModel{}).
		Where("prize_id = ?", prizeID).
		Where("status = ?", string(domain.PrizeStatusActive)).
		Where("claimed_count < quantity").
		Updates(map[string]any{
			"claimed_count": gorm.Expr("claimed_count + 1"),
			"status":        gorm.Expr("CASE WHEN claimed_count + 1 >= quantity THEN ? ELSE status END", string(domain.PrizeStatusExhausted)),
			"updated_at":    at,
		})
	if res.Error != nil {
		return domain.Prize{}, res.Error
	}
	if res.RowsAffected == 0 {
		var rec prizeModel
		if err := r.db.WithContext(ctx).Where("prize_id = ?", prizeID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.Prize{}, domain.ErrNotFound
			}
			return domain.Prize{}, err
		}
		if rec.Status != string(domain.PrizeStatusActive) {
			return domain.Prize{}, domain.ErrPrizeInactive
		}
		return domain.Prize{}, domain.ErrPrizeExhausted
	}
	return r.Get(ctx, prizeID)
}

type stockRepository struct {
	db *gorm.DB
}

func (r *stockRepository) Get(ctx context.Context, rewardID string) (domain.RewardStock, error) {
	var rec stockModel
	if err := r.db.WithContext(ctx).Where("reward_id = ?", rewardID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RewardStock{}, domain.ErrNotFound
		}
		return domain.RewardStock{}, err
	}
	return toDomainStock(rec), nil
}

func (r *stockRepository) Upsert(ctx context.Context, stock domain.RewardStock) error {
	rec := stockModel{
		RewardID:       stock.RewardID,
		PointsCost:     stock.PointsCost,
		StockQuantity:  stock.Quantity,
		StockReserved:  stock.Reserved,
		StockAvailable: stock.Available,
		UpdatedAt:      stock.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return r.db.WithContext(ctx).Model(&stockModel{}).
				Where("reward_id = ?", stock.RewardID).
				Updates(map[string]any{
					"points_cost":     rec.PointsCost,
					"stock_quantity":  rec.StockQuantity,
					"stock_reserved":  rec.StockReserved,
					"stock_available": rec.StockAvailable,
					"updated_at":      rec.UpdatedAt,
				}).Error
		}
		return err
	}
	return nil
}

func (r *stockRepository) Reserve(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	return r.move(ctx, rewardID, qty, at,
		"stock_available >= ?",
		map[string]any{
			"stock_available": gorm.Expr("stock_available - ?", qty),
			"stock_reserved":  gorm.Expr("stock_reserved + ?", qty),
		})
}

func (r *stockRepository) Confirm(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	return r.move(ctx, rewardID, qty, at,
		"stock_reserved >= ?",
		map[string]any{
			"stock_reserved": gorm.Expr("stock_reserved - ?", qty),
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
		})
}

func (r *stockRepository) Release(ctx context.Context, rewardID string, qty int, at time.Time) (domain.RewardStock, error) {
	return r.move(ctx, rewardID, qty, at,
		"stock_reserved >= ?",
		map[string]any{
			"stock_reserved":  gorm.Expr("stock_reserved - ?", qty),
			"stock_available": gorm.Expr("stock_available + ?", qty),
		})
}

func (r *stockRepository) move(ctx context.Context, rewardID string, qty int, at time.Time, guard string, updates map[string]any) (domain.RewardStock, error) {
	if qty <= 0 {
		return domain.RewardStock{}, domain.ErrInvalidInput
	}
	updates["updated_at"] = at
	res := r.db.WithContext(ctx).
		Model(&stockModel{}).
		Where("reward_id = ?", rewardID).
		Where(guard, qty).
		Updates(updates)
	if res.Error != nil {
		return domain.RewardStock{}, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&stockModel{}).Where("reward_id = ?", rewardID).Count(&exists).Error; err != nil {
			return domain.RewardStock{}, err
		}
		if exists == 0 {
			return domain.RewardStock{}, domain.ErrNotFound
		}
		return domain.RewardStock{}, domain.ErrInsufficientStock
	}
	return r.Get(ctx, rewardID)
}

type reservationRepository struct {
	db *gorm.DB
}

func (r *reservationRepository) Create(ctx context.Context, reservation domain.Reservation) error {
	rec := reservationModel{
		ReservationID: reservation.ReservationID,
		PlayerID:      reservation.PlayerID,
		RewardID:      reservation.RewardID,
		Quantity:      reservation.Quantity,
		PointsDebited: reservation.PointsDebited,
		Status:        string(reservation.Status),
		CreatedAt:     reservation.CreatedAt,
		ExpiresAt:     reservation.ExpiresAt,
		UpdatedAt:     reservation.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, reservationID string) (domain.Reservation, error) {
	var rec reservationModel
	if err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Reservation{}, domain.ErrNotFound
		}
		return domain.Reservation{}, err
	}
	return toDomainReservation(rec), nil
}

func (r *reservationRepository) Transition(ctx context.Context, reservationID string, from, to domain.ReservationStatus, at time.Time) (domain.Reservation, error) {
	res := r.db.WithContext(ctx).
		Model(&reservationModel{}).
		Where("reservation_id = ?", reservationID).
		Where("status = ?", string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": at,
		})
	if res.Error != nil {
		return domain.Reservation{}, res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&reservationModel{}).Where("reservation_id = ?", reservationID).Count(&exists).Error; err != nil {
			return domain.Reservation{}, err
		}
		if exists == 0 {
			return domain.Reservation{}, domain.ErrNotFound
		}
		return domain.Reservation{}, domain.ErrReservationClosed
	}
	return r.GetByID(ctx, reservationID)
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Append(ctx context.Context, record ports.AuditRecord) error {
	metadata := "{}"
	if len(record.Metadata) > 0 {
		if raw, err := json.Marshal(record.Metadata); err == nil {
			metadata = string(raw)
		}
	}
	rec := auditLogModel{
		LogID:      record.LogID,
		ClaimID:    record.ClaimID,
		PlayerID:   record.PlayerID,
		PrizeID:    record.PrizeID,
		Action:     record.Action,
		Decision:   record.Decision,
		RiskScore:  record.RiskScore,
		ReviewerID: nullableString(record.ReviewerID),
		CreatedAt:  record.CreatedAt,
		Metadata:   metadata,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var rec idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Where("expires_at > ?", now).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := ports.IdempotencyRecord{
		Key:          rec.IdempotencyKey,
		RequestHash:  rec.RequestHash,
		ResponseCode: rec.ResponseCode,
		ExpiresAt:    rec.ExpiresAt,
	}
	if rec.ResponseBody != nil {
		out.ResponseBody = []byte(*rec.ResponseBody)
	}
	return &out, nil
}

func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, now, expiresAt time.Time) error {
	// Reuse of a key past its TTL is a new logical operation, so any stale
	// row is cleared before the first-writer insert.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("idempotency_key = ?", key).
			Where("expires_at <= ?", now).
			Delete(&idempotencyModel{}).Error; err != nil {
			return err
		}
		rec := idempotencyModel{
			IdempotencyKey: key,
			RequestHash:    requestHash,
			Status:         "PENDING",
			ExpiresAt:      expiresAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return nil
	})
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	var body *string
	if len(responseBody) > 0 {
		raw := string(responseBody)
		body = &raw
	}
	return r.db.WithContext(ctx).
		Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"status":        "COMPLETED",
			"response_code": responseCode,
			"response_body": body,
			"updated_at":    at,
		}).Error
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Where("status = ?", "PENDING").
		Delete(&idempotencyModel{}).Error
}

type eventDedupRepository struct {
	db *gorm.DB
}

func (r *eventDedupRepository) IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&eventDedupModel{}).
		Where("event_id = ?", eventID).
		Where("expires_at > ?", now).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *eventDedupRepository) MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error {
	rec := eventDedupModel{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, record ports.OutboxRecord) error {
	envelope, err := json.Marshal(record.Envelope)
	if err != nil {
		return err
	}
	rec := outboxModel{
		RecordID:   record.RecordID,
		EventClass: record.EventClass,
		Envelope:   string(envelope),
		CreatedAt:  record.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		var envelope contracts.EventEnvelope
		if err := json.Unmarshal([]byte(row.Envelope), &envelope); err != nil {
			return nil, err
		}
		out = append(out, ports.OutboxRecord{
			RecordID:   row.RecordID,
			EventClass: row.EventClass,
			Envelope:   envelope,
			CreatedAt:  row.CreatedAt,
			SentAt:     row.SentAt,
		})
	}
	return out, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, recordID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("record_id = ?", recordID).
		Update("sent_at", at).Error
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

// HandleDomainEvent consumes canonical events from the collaborators that
// feed the engine: prize placement, reward stock, settings pushes, and the
// expiry scheduler's reservation releases.
func (s *Service) HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error {
	if !s.cfg.EnableDomainEventConsumption {
		return nil
	}
	if !isSupportedEventType(event.EventType) {
		return domain.ErrUnsupportedEventType
	}
	if event.EventClass != "" && event.EventClass != domain.CanonicalEventClassDomain {
		return domain.ErrUnsupportedEventClass
	}
	if err := validateDomainEventEnvelope(event, allowedPartitionPaths(event.EventType)...); err != nil {
		return err
	}

	now := s.nowFn()
	dup, err := s.eventDedup.IsDuplicate(ctx, event.EventID, now)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	switch event.EventType {
	case domain.EventPrizePublished:
		var payload contracts.PrizePublishedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode prize.published payload: %w", err)
		}
		prize := domain.Prize{
			PrizeID:      payload.PrizeID,
			Location:     domain.GeoPoint{Lat: payload.Lat, Lng: payload.Lng},
			RadiusMeters: payload.RadiusMeters,
			Quantity:     payload.Quantity,
			PointsReward: payload.PointsReward,
			Status:       domain.PrizeStatusActive,
			UpdatedAt:    now,
		}
		if parsed, parseErr := time.Parse(time.RFC3339, payload.VisibleFrom); parseErr == nil {
			prize.VisibleFrom = parsed
		}
		if parsed, parseErr := time.Parse(time.RFC3339, payload.VisibleUntil); parseErr == nil {
			prize.VisibleUntil = parsed
		}
		err = s.prizes.Upsert(ctx, prize)
	case domain.EventRewardStockUpdated:
		var payload contracts.RewardStockUpdatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode reward.stock.updated payload: %w", err)
		}
		err = s.stock.Upsert(ctx, domain.RewardStock{
			RewardID:   payload.RewardID,
			PointsCost: payload.PointsCost,
			Quantity:   payload.Quantity,
			Reserved:   0,
			Available:  payload.Quantity,
			UpdatedAt:  now,
		})
	case domain.EventRiskSettingsUpdated:
		var payload contracts.RiskSettingsUpdatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode risk.settings.updated payload: %w", err)
		}
		// In-flight submissions keep the snapshot they read at the request
		// boundary; only later submissions see the pushed settings.
		if store, ok := s.settings.(interface{ Apply(domain.RiskSettings) }); ok {
			store.Apply(payload.Settings)
		}
		err = nil
	case domain.EventReservationExpired:
		var payload contracts.ReservationExpiredPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode reservation.expired payload: %w", err)
		}
		var reservation domain.Reservation
		reservation, err = s.reservations.GetByID(ctx, payload.ReservationID)
		if err == nil {
			_, err = s.releaseReservation(ctx, reservation)
		}
	default:
		err = domain.ErrUnsupportedEventType
	}
	if err != nil {
		return err
	}

	return s.eventDedup.MarkProcessed(ctx, event.EventID, event.EventType, now.Add(s.cfg.EventDedupTTL))
}

func (s *Service) FlushOutbox(ctx context.Context) error {
	pending, err := s.outbox.ListPending(ctx, s.cfg.OutboxFlushBatchSize)
	if err != nil {
		return err
	}
	for _, record := range pending {
		if record.EventClass != domain.CanonicalEventClassDomain {
			continue
		}
		if err := s.domainEvents.PublishDomain(ctx, record.Envelope); err != nil {
			return err
		}
		if s.analytics != nil {
			if err := s.analytics.PublishAnalytics(ctx, record.Envelope); err != nil {
				return err
			}
		}
		if err := s.outbox.MarkSent(ctx, record.RecordID, s.nowFn()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueClaimDecided(ctx context.Context, claim domain.ClaimAttempt) error {
	payload := contracts.ClaimDecidedPayload{
		ClaimID:          claim.ClaimID,
		PlayerID:         claim.PlayerID,
		PrizeID:          claim.PrizeID,
		Decision:         string(claim.Decision),
		DecisionReason:   claim.DecisionReason,
		RiskScore:        claim.RiskScore,
		ValidationChecks: claim.ValidationChecks,
		PointsAwarded:    claim.PointsAwarded,
		DecidedAt:        claim.CreatedAt.Format(time.RFC3339),
	}
	return s.enqueueDomain(ctx, domain.EventClaimDecided, "data.claim_id", claim.ClaimID, claim.CreatedAt, payload)
}

func (s *Service) enqueueClaimOverridden(ctx context.Context, claim domain.ClaimAttempt, previous domain.Decision, reviewerID string, pointsAwarded int64, reconciliationDue bool) error {
	overriddenAt := s.nowFn()
	if claim.OverriddenAt != nil {
		overriddenAt = *claim.OverriddenAt
	}
	override := claim.Decision
	if claim.OverriddenDecision != nil {
		override = *claim.OverriddenDecision
	}
	payload := contracts.ClaimOverriddenPayload{
		ClaimID:           claim.ClaimID,
		PlayerID:          claim.PlayerID,
		PrizeID:           claim.PrizeID,
		PreviousDecision:  string(previous),
		OverrideDecision:  string(override),
		ReviewerID:        reviewerID,
		RiskScore:         claim.RiskScore,
		PointsAwarded:     pointsAwarded,
		ReconciliationDue: reconciliationDue,
		OverriddenAt:      overriddenAt.Format(time.RFC3339),
	}
	return s.enqueueDomain(ctx, domain.EventClaimOverridden, "data.claim_id", claim.ClaimID, overriddenAt, payload)
}

func (s *Service) enqueueRedemption(ctx context.Context, eventType string, reservation domain.Reservation) error {
	payload := contracts.RedemptionPayload{
		ReservationID: reservation.ReservationID,
		PlayerID:      reservation.PlayerID,
		RewardID:      reservation.RewardID,
		Quantity:      reservation.Quantity,
		PointsDebited: reservation.PointsDebited,
		Status:        string(reservation.Status),
		OccurredAt:    reservation.UpdatedAt.Format(time.RFC3339),
	}
	return s.enqueueDomain(ctx, eventType, "data.reservation_id", reservation.ReservationID, reservation.UpdatedAt, payload)
}

func (s *Service) enqueueDomain(ctx context.Context, eventType, partitionKeyPath, partitionKey string, occurredAt time.Time, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, ports.OutboxRecord{
		RecordID:   uuid.NewString(),
		EventClass: domain.CanonicalEventClassDomain,
		Envelope: contracts.EventEnvelope{
			EventID:          uuid.NewString(),
			EventType:        eventType,
			EventClass:       domain.CanonicalEventClassDomain,
			OccurredAt:       occurredAt,
			PartitionKeyPath: partitionKeyPath,
			PartitionKey:     partitionKey,
			SourceService:    s.cfg.ServiceName,
			TraceID:          uuid.NewString(),
			SchemaVersion:    "v1",
			Data:             data,
		},
		CreatedAt: s.nowFn(),
	})
}

func isSupportedEventType(eventType string) bool {
	switch eventType {
	case domain.EventPrizePublished,
		domain.EventRewardStockUpdated,
		domain.EventRiskSettingsUpdated,
		domain.EventReservationExpired:
		return true
	default:
		return false
	}
}

func allowedPartitionPaths(eventType string) []string {
	switch eventType {
	case domain.EventPrizePublished:
		return []string{"data.prize_id", "prize_id"}
	case domain.EventRewardStockUpdated:
		return []string{"data.reward_id", "reward_id"}
	case domain.EventReservationExpired:
		return []string{"data.reservation_id", "reservation_id"}
	default:
		return []string{"data.settings_version", "settings_version"}
	}
}

func validateDomainEventEnvelope(event contracts.EventEnvelope, allowedPartitionPaths ...string) error {
	if len(allowedPartitionPaths) == 0 {
		return fmt.Errorf("%w: missing partition key policy", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: missing event_id", domain.ErrInvalidInput)
	}
	if event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(event.SourceService) == "" {
		return fmt.Errorf("%w: missing source_service", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(event.TraceID) == "" {
		return fmt.Errorf("%w: missing trace_id", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(event.SchemaVersion) == "" {
		return fmt.Errorf("%w: missing schema_version", domain.ErrInvalidInput)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: missing data payload", domain.ErrInvalidInput)
	}

	allowed := false
	for _, path := range allowedPartitionPaths {
		if event.PartitionKeyPath == path {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: expected partition_key_path %s", domain.ErrInvalidInput, allowedPartitionPaths[0])
	}
	field := strings.TrimPrefix(event.PartitionKeyPath, "data.")
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("%w: invalid partition_key_path", domain.ErrInvalidInput)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("%w: invalid data payload", domain.ErrInvalidInput)
	}
	value, ok := payload[field]
	if !ok {
		return fmt.Errorf("%w: partition key field %s missing from payload", domain.ErrInvalidInput, field)
	}
	if fmt.Sprint(value) != event.PartitionKey {
		return fmt.Errorf("%w: partition key invariant failed", domain.ErrInvalidInput)
	}
	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

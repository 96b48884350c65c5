package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/yallacatch/claim-engine/internal/domain"
)

// ReserveRedemption debits the player's points and moves reward stock from
// available to reserved. Both mutations are single conditional updates; a
// debit that fails after a successful stock reserve releases the stock again
// so neither invariant is left half-applied.
func (s *Service) ReserveRedemption(ctx context.Context, actor Actor, input ReserveRedemptionInput) (domain.Reservation, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Reservation{}, domain.ErrUnauthorized
	}
	if !actor.IsReviewer() && actor.SubjectID != input.PlayerID {
		return domain.Reservation{}, domain.ErrForbidden
	}
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return domain.Reservation{}, domain.ErrIdempotencyRequired
	}
	input.PlayerID = strings.TrimSpace(input.PlayerID)
	input.RewardID = strings.TrimSpace(input.RewardID)
	if input.PlayerID == "" || input.RewardID == "" || input.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidInput
	}

	requestHash := hashJSON(input)
	if cached, ok, err := s.getIdempotentReservation(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.Reservation{}, err
	} else if ok {
		return cached, nil
	}
	stock, err := s.stock.Get(ctx, input.RewardID)
	if err != nil {
		return domain.Reservation{}, err
	}
	cost := stock.PointsCost * int64(input.Quantity)

	now := s.nowFn()
	if err := s.idempotency.Reserve(ctx, actor.IdempotencyKey, requestHash, now, now.Add(s.cfg.IdempotencyTTL)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Reservation{}, domain.ErrIdempotencyConflict
		}
		return domain.Reservation{}, err
	}

	if _, err := s.stock.Reserve(ctx, input.RewardID, input.Quantity, now); err != nil {
		// Nothing was applied yet; the key stays usable for a retry.
		_ = s.idempotency.Release(ctx, actor.IdempotencyKey)
		return domain.Reservation{}, err
	}
	if cost > 0 {
		if _, err := s.players.Debit(ctx, input.PlayerID, cost, "redemption:"+input.RewardID); err != nil {
			// Compensate the reserve so reserved+available==quantity holds
			// and no stock stays parked behind a failed debit.
			_, _ = s.stock.Release(ctx, input.RewardID, input.Quantity, s.nowFn())
			_ = s.idempotency.Release(ctx, actor.IdempotencyKey)
			return domain.Reservation{}, err
		}
	}

	reservation := domain.Reservation{
		ReservationID: uuid.NewString(),
		PlayerID:      input.PlayerID,
		RewardID:      input.RewardID,
		Quantity:      input.Quantity,
		PointsDebited: cost,
		Status:        domain.ReservationStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.ReservationTTL),
		UpdatedAt:     now,
	}
	if err := s.reservations.Create(ctx, reservation); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.enqueueRedemption(ctx, domain.EventRedemptionReserved, reservation); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.FlushOutbox(ctx); err != nil {
		return domain.Reservation{}, err
	}
	_ = s.completeIdempotencyJSON(ctx, actor.IdempotencyKey, 201, reservation)
	return reservation, nil
}

// ConfirmRedemption consumes a pending reservation. The pending->confirmed
// transition is conditional, so a retried confirm for an already-confirmed
// reservation returns the current state instead of double-applying.
func (s *Service) ConfirmRedemption(ctx context.Context, actor Actor, reservationID string) (domain.Reservation, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Reservation{}, domain.ErrUnauthorized
	}
	reservation, err := s.reservations.GetByID(ctx, strings.TrimSpace(reservationID))
	if err != nil {
		return domain.Reservation{}, err
	}
	if !actor.IsReviewer() && reservation.PlayerID != actor.SubjectID {
		return domain.Reservation{}, domain.ErrForbidden
	}
	now := s.nowFn()
	updated, err := s.reservations.Transition(ctx, reservation.ReservationID, domain.ReservationStatusPending, domain.ReservationStatusConfirmed, now)
	if err != nil {
		if errors.Is(err, domain.ErrReservationClosed) && reservation.Status == domain.ReservationStatusConfirmed {
			return reservation, nil
		}
		return domain.Reservation{}, err
	}
	if _, err := s.stock.Confirm(ctx, updated.RewardID, updated.Quantity, now); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.enqueueRedemption(ctx, domain.EventRedemptionConfirmed, updated); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.FlushOutbox(ctx); err != nil {
		return domain.Reservation{}, err
	}
	return updated, nil
}

// ReleaseRedemption abandons a pending reservation: stock returns to the
// available pool and the debited points are refunded with a compensating
// credit. Invoked by the player, a reviewer, or the expiry scheduler's
// reservation.expired event.
func (s *Service) ReleaseRedemption(ctx context.Context, actor Actor, reservationID string) (domain.Reservation, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Reservation{}, domain.ErrUnauthorized
	}
	reservation, err := s.reservations.GetByID(ctx, strings.TrimSpace(reservationID))
	if err != nil {
		return domain.Reservation{}, err
	}
	if !actor.IsReviewer() && reservation.PlayerID != actor.SubjectID {
		return domain.Reservation{}, domain.ErrForbidden
	}
	return s.releaseReservation(ctx, reservation)
}

func (s *Service) releaseReservation(ctx context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	now := s.nowFn()
	updated, err := s.reservations.Transition(ctx, reservation.ReservationID, domain.ReservationStatusPending, domain.ReservationStatusReleased, now)
	if err != nil {
		if errors.Is(err, domain.ErrReservationClosed) && reservation.Status == domain.ReservationStatusReleased {
			return reservation, nil
		}
		return domain.Reservation{}, err
	}
	if _, err := s.stock.Release(ctx, updated.RewardID, updated.Quantity, now); err != nil {
		return domain.Reservation{}, err
	}
	if updated.PointsDebited > 0 {
		if _, err := s.players.Credit(ctx, updated.PlayerID, updated.PointsDebited, "redemption_release:"+updated.ReservationID); err != nil {
			return domain.Reservation{}, err
		}
	}
	if err := s.enqueueRedemption(ctx, domain.EventRedemptionReleased, updated); err != nil {
		return domain.Reservation{}, err
	}
	if err := s.FlushOutbox(ctx); err != nil {
		return domain.Reservation{}, err
	}
	return updated, nil
}

func (s *Service) getIdempotentReservation(ctx context.Context, key, requestHash string) (domain.Reservation, bool, error) {
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return domain.Reservation{}, false, err
	}
	if rec.RequestHash != requestHash {
		return domain.Reservation{}, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return domain.Reservation{}, false, nil
	}
	var out domain.Reservation
	if err := json.Unmarshal(rec.ResponseBody, &out); err != nil {
		return domain.Reservation{}, false, nil
	}
	return out, true, nil
}

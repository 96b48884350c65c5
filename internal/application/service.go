package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

// SubmitClaim runs the full claim pipeline: idempotency guard, kinematic
// validation, risk scoring, decision policy, then the point/prize mutations
// for an approval. The result is cached under the idempotency key so retries
// are processed at most once.
func (s *Service) SubmitClaim(ctx context.Context, actor Actor, input SubmitClaimInput) (ClaimResult, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return ClaimResult{}, domain.ErrUnauthorized
	}
	if !actor.IsReviewer() && actor.SubjectID != input.PlayerID {
		return ClaimResult{}, domain.ErrForbidden
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(actor.IdempotencyKey)
	}
	if err := domain.ValidateClaimInput(input.PlayerID, input.PrizeID, key, input.ReportedLocation); err != nil {
		return ClaimResult{}, err
	}
	input.IdempotencyKey = key

	requestHash := hashJSON(input)
	if cached, ok, err := s.getIdempotentResult(ctx, key, requestHash); err != nil {
		return ClaimResult{}, err
	} else if ok {
		cached.Duplicate = true
		return cached, nil
	}
	now := s.nowFn()
	// Settings and prize lookups run before the marker is written, so a
	// claim turned away here leaves the key free for a retry.
	settings, err := s.settings.GetRiskSettings(ctx)
	if err != nil {
		return ClaimResult{}, domain.ErrSettingsUnavailable
	}
	prize, err := s.prizes.Get(ctx, input.PrizeID)
	if err != nil {
		return ClaimResult{}, err
	}

	if err := s.idempotency.Reserve(ctx, key, requestHash, now, now.Add(s.cfg.IdempotencyTTL)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another submission with the same key is in flight; wait for the
			// winner's result instead of re-running validation.
			return s.awaitIdempotentResult(ctx, key, requestHash)
		}
		return ClaimResult{}, err
	}

	player, err := s.players.Get(ctx, input.PlayerID)
	if errors.Is(err, domain.ErrNotFound) {
		// First claim provisions a zero-balance ledger record; the directory
		// owns identity and supplies the timezone the daily limit resets in.
		player = domain.Player{PlayerID: input.PlayerID, UpdatedAt: now}
		if identity, dirErr := s.directory.GetPlayer(ctx, input.PlayerID); dirErr == nil {
			player.Timezone = identity.Timezone
		}
		if err := s.players.Upsert(ctx, player); err != nil {
			return ClaimResult{}, err
		}
	} else if err != nil {
		return ClaimResult{}, err
	}

	kin := domain.EvaluateKinematics(domain.KinematicInput{
		Reported:         input.ReportedLocation,
		Signals:          input.DeviceSignals,
		Prize:            prize,
		LastClaimAt:      player.LastClaimAt,
		LastAcceptedAt:   player.LastAcceptedAt,
		LastLocation:     player.LastLocation,
		DailyClaimsCount: player.DailyClaimsCount,
		Timezone:         player.Timezone,
		Now:              now,
	}, settings)
	score := domain.ScoreSignals(input.DeviceSignals, input.ReportedLocation.Accuracy, player.LastDeviceID, settings)
	decision, reason := domain.Decide(kin.Checks, score, settings)
	recordedScore := domain.FloorRejectedScore(score, kin.Checks, settings)

	claimID := uuid.NewString()
	var pointsAwarded int64
	if decision == domain.DecisionApproved {
		if _, err := s.prizes.IncrementClaimed(ctx, prize.PrizeID, now); err != nil {
			if errors.Is(err, domain.ErrPrizeExhausted) || errors.Is(err, domain.ErrPrizeInactive) {
				decision = domain.DecisionRejected
				reason = domain.ReasonPrizeExhausted
			} else {
				return ClaimResult{}, err
			}
		} else {
			if _, err := s.players.Credit(ctx, input.PlayerID, prize.PointsReward, "claim:"+claimID); err != nil {
				return ClaimResult{}, err
			}
			pointsAwarded = prize.PointsReward
		}
	}

	activity := domain.ClaimActivity{RiskScore: recordedScore}
	if decision == domain.DecisionApproved || decision == domain.DecisionFlagged {
		activity.ClaimAt = now
		activity.DailyClaimsCount = domain.EffectiveDailyCount(player.LastClaimAt, player.DailyClaimsCount, now, player.Timezone) + 1
	}
	if decision == domain.DecisionApproved {
		activity.Location = &domain.GeoPoint{Lat: input.ReportedLocation.Lat, Lng: input.ReportedLocation.Lng}
		activity.DeviceID = input.DeviceSignals.DeviceID
	}
	if err := s.players.RecordActivity(ctx, input.PlayerID, activity); err != nil {
		return ClaimResult{}, err
	}

	claim := domain.ClaimAttempt{
		ClaimID:          claimID,
		PlayerID:         input.PlayerID,
		PrizeID:          input.PrizeID,
		ReportedLocation: input.ReportedLocation,
		DeviceSignals:    input.DeviceSignals,
		IdempotencyKey:   key,
		ValidationChecks: kin.Checks,
		RiskScore:        recordedScore,
		Decision:         decision,
		DecisionReason:   reason,
		PointsAwarded:    pointsAwarded,
		CreatedAt:        now,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return ClaimResult{}, err
	}
	if err := s.audit.Append(ctx, ports.AuditRecord{
		LogID:     uuid.NewString(),
		ClaimID:   claimID,
		PlayerID:  input.PlayerID,
		PrizeID:   input.PrizeID,
		Action:    "claim_decided",
		Decision:  string(decision),
		RiskScore: recordedScore,
		CreatedAt: now,
		Metadata: map[string]string{
			"reason":            reason,
			"distance_meters":   formatFloat(kin.DistanceMeters),
			"implied_speed_mps": formatFloat(kin.ImpliedSpeedMps),
		},
	}); err != nil {
		return ClaimResult{}, err
	}
	if err := s.enqueueClaimDecided(ctx, claim); err != nil {
		return ClaimResult{}, err
	}
	if err := s.FlushOutbox(ctx); err != nil {
		return ClaimResult{}, err
	}

	result := ClaimResult{
		ClaimID:          claimID,
		Decision:         decision,
		DecisionReason:   reason,
		RiskScore:        recordedScore,
		ValidationChecks: kin.Checks,
		PointsAwarded:    pointsAwarded,
	}
	if err := s.completeIdempotencyJSON(ctx, key, 201, result); err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

// OverrideClaim applies a reviewer's decision reversal. Approving a claim
// that was not previously approved credits the prize's point value exactly
// once; the conditional override transition is the guard against racing
// reviewers. Rejecting a previously approved claim records the reversal for
// downstream reconciliation and never claws points back here.
func (s *Service) OverrideClaim(ctx context.Context, actor Actor, input OverrideClaimInput) (ClaimResult, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return ClaimResult{}, domain.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		return ClaimResult{}, domain.ErrForbidden
	}
	if input.Decision != domain.DecisionApproved && input.Decision != domain.DecisionRejected {
		return ClaimResult{}, domain.ErrInvalidInput
	}
	claim, err := s.claims.GetByID(ctx, strings.TrimSpace(input.ClaimID))
	if err != nil {
		return ClaimResult{}, err
	}
	previous := claim.EffectiveDecision()
	if previous == input.Decision {
		return ClaimResult{}, domain.ErrConflict
	}

	now := s.nowFn()
	updated, err := s.claims.ApplyOverride(ctx, claim.ClaimID, input.Decision, actor.SubjectID, input.Notes, now)
	if err != nil {
		return ClaimResult{}, err
	}

	var pointsAwarded int64
	if input.Decision == domain.DecisionApproved && previous != domain.DecisionApproved {
		prize, err := s.prizes.Get(ctx, claim.PrizeID)
		if err != nil {
			return ClaimResult{}, err
		}
		if _, err := s.players.Credit(ctx, claim.PlayerID, prize.PointsReward, "override:"+claim.ClaimID); err != nil {
			return ClaimResult{}, err
		}
		pointsAwarded = prize.PointsReward
	}
	reconciliationDue := previous == domain.DecisionApproved && input.Decision == domain.DecisionRejected

	metadata := map[string]string{
		"previous_decision": string(previous),
		"notes":             input.Notes,
	}
	if reconciliationDue {
		metadata["reconciliation_required"] = "true"
	}
	if err := s.audit.Append(ctx, ports.AuditRecord{
		LogID:      uuid.NewString(),
		ClaimID:    claim.ClaimID,
		PlayerID:   claim.PlayerID,
		PrizeID:    claim.PrizeID,
		Action:     "claim_overridden",
		Decision:   string(input.Decision),
		RiskScore:  claim.RiskScore,
		ReviewerID: actor.SubjectID,
		CreatedAt:  now,
		Metadata:   metadata,
	}); err != nil {
		return ClaimResult{}, err
	}
	if err := s.enqueueClaimOverridden(ctx, updated, previous, actor.SubjectID, pointsAwarded, reconciliationDue); err != nil {
		return ClaimResult{}, err
	}
	if err := s.FlushOutbox(ctx); err != nil {
		return ClaimResult{}, err
	}

	return ClaimResult{
		ClaimID:          updated.ClaimID,
		Decision:         input.Decision,
		DecisionReason:   domain.ReasonManualReview,
		RiskScore:        updated.RiskScore,
		ValidationChecks: updated.ValidationChecks,
		PointsAwarded:    pointsAwarded,
	}, nil
}

func (s *Service) GetClaim(ctx context.Context, actor Actor, claimID string) (domain.ClaimAttempt, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ClaimAttempt{}, domain.ErrUnauthorized
	}
	claim, err := s.claims.GetByID(ctx, strings.TrimSpace(claimID))
	if err != nil {
		return domain.ClaimAttempt{}, err
	}
	if !actor.IsReviewer() && claim.PlayerID != actor.SubjectID {
		return domain.ClaimAttempt{}, domain.ErrForbidden
	}
	return claim, nil
}

func (s *Service) ListClaimsByPlayer(ctx context.Context, actor Actor, playerID string, limit, offset int) (ClaimHistoryOutput, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return ClaimHistoryOutput{}, domain.ErrUnauthorized
	}
	playerID = strings.TrimSpace(playerID)
	if !actor.IsReviewer() {
		playerID = actor.SubjectID
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.claims.ListByPlayer(ctx, playerID, limit, offset)
	if err != nil {
		return ClaimHistoryOutput{}, err
	}
	return ClaimHistoryOutput{Items: items, Total: total}, nil
}

func (s *Service) ListFlaggedClaims(ctx context.Context, actor Actor, limit, offset int) (ClaimHistoryOutput, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return ClaimHistoryOutput{}, domain.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		return ClaimHistoryOutput{}, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.claims.ListFlagged(ctx, limit, offset)
	if err != nil {
		return ClaimHistoryOutput{}, err
	}
	return ClaimHistoryOutput{Items: items, Total: total}, nil
}

func (s *Service) GetBalance(ctx context.Context, actor Actor, playerID string) (domain.Player, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.Player{}, domain.ErrUnauthorized
	}
	playerID = strings.TrimSpace(playerID)
	if !actor.IsReviewer() && playerID != actor.SubjectID {
		return domain.Player{}, domain.ErrForbidden
	}
	return s.players.Get(ctx, playerID)
}

func (s *Service) getIdempotentResult(ctx context.Context, key, requestHash string) (ClaimResult, bool, error) {
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return ClaimResult{}, false, err
	}
	if rec.RequestHash != requestHash {
		return ClaimResult{}, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return ClaimResult{}, false, nil
	}
	var out ClaimResult
	if err := json.Unmarshal(rec.ResponseBody, &out); err != nil {
		return ClaimResult{}, false, err
	}
	return out, true, nil
}

// awaitIdempotentResult polls for the completed result of a concurrent
// submission with the same key. The wait is bounded; a still-unfinished
// winner surfaces as ErrDuplicateInFlight and the client retries.
func (s *Service) awaitIdempotentResult(ctx context.Context, key, requestHash string) (ClaimResult, error) {
	deadline := time.Now().Add(s.cfg.DuplicateWait)
	for {
		if cached, ok, err := s.getIdempotentResult(ctx, key, requestHash); err != nil {
			return ClaimResult{}, err
		} else if ok {
			cached.Duplicate = true
			return cached, nil
		}
		if time.Now().After(deadline) {
			return ClaimResult{}, domain.ErrDuplicateInFlight
		}
		select {
		case <-ctx.Done():
			return ClaimResult{}, ctx.Err()
		case <-time.After(s.cfg.DuplicatePollInterval):
		}
	}
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.idempotency.Complete(ctx, key, code, body, s.nowFn())
}

func hashJSON(value interface{}) string {
	blob, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

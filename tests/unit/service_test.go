package unit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	eventadapter "github.com/yallacatch/claim-engine/internal/adapters/events"
	grpcadapter "github.com/yallacatch/claim-engine/internal/adapters/grpc"
	"github.com/yallacatch/claim-engine/internal/adapters/memory"
	"github.com/yallacatch/claim-engine/internal/application"
	"github.com/yallacatch/claim-engine/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type harness struct {
	svc       *application.Service
	repos     *memory.Repositories
	settings  *grpcadapter.SettingsClient
	published *eventadapter.MemoryDomainPublisher
	clock     *testClock
}

func newHarness() *harness {
	repos := memory.NewRepositories()
	settings := grpcadapter.NewSettingsClient("")
	published := eventadapter.NewMemoryDomainPublisher()
	clock := &testClock{at: baseTime}
	svc := application.NewService(application.Dependencies{
		Config:       application.Config{EnableDomainEventConsumption: true},
		Claims:       repos.Claims,
		Players:      repos.Players,
		Prizes:       repos.Prizes,
		Stock:        repos.Stock,
		Reservations: repos.Reservations,
		Audit:        repos.Audit,
		Idempotency:  repos.Idempotency,
		EventDedup:   repos.EventDedup,
		Outbox:       repos.Outbox,
		Settings:     settings,
		Directory:    grpcadapter.NewDirectoryClient(""),
		DomainEvents: published,
		Analytics:    eventadapter.NewMemoryAnalyticsPublisher(),
		DLQ:          eventadapter.NewLoggingDLQPublisher(nil),
		Now:          clock.Now,
	})
	return &harness{svc: svc, repos: repos, settings: settings, published: published, clock: clock}
}

func (h *harness) seedPrize(prizeID string, quantity int, points int64) {
	_ = h.repos.Prizes.Upsert(context.Background(), domain.Prize{
		PrizeID:      prizeID,
		Location:     domain.GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Quantity:     quantity,
		PointsReward: points,
		Status:       domain.PrizeStatusActive,
		VisibleFrom:  baseTime.Add(-time.Hour),
		VisibleUntil: baseTime.Add(24 * time.Hour),
		UpdatedAt:    baseTime,
	})
}

func (h *harness) seedStock(rewardID string, quantity int, cost int64) {
	_ = h.repos.Stock.Upsert(context.Background(), domain.RewardStock{
		RewardID:   rewardID,
		PointsCost: cost,
		Quantity:   quantity,
		Available:  quantity,
		UpdatedAt:  baseTime,
	})
}

func (h *harness) seedPlayer(playerID string, available int64) {
	_ = h.repos.Players.Upsert(context.Background(), domain.Player{
		PlayerID:  playerID,
		Points:    domain.PointsBalance{Available: available, Total: available},
		UpdatedAt: baseTime,
	})
}

func playerActor(playerID, key string) application.Actor {
	return application.Actor{SubjectID: playerID, Role: "player", IdempotencyKey: key}
}

func reviewerActor(key string) application.Actor {
	return application.Actor{SubjectID: "reviewer-1", Role: "reviewer", IdempotencyKey: key}
}

func cleanSubmit(playerID, prizeID, key string) application.SubmitClaimInput {
	return application.SubmitClaimInput{
		PlayerID:         playerID,
		PrizeID:          prizeID,
		IdempotencyKey:   key,
		ReportedLocation: domain.ReportedLocation{Lat: 24.7136, Lng: 46.6753, Accuracy: 5},
		DeviceSignals:    domain.DeviceSignals{DeviceID: "dev-1", Speed: 1, TrackingState: domain.TrackingStateTracking, LightLevel: 0.8},
	}
}

func TestSubmitClaimApprovesAndCredits(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	result, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:1"), cleanSubmit("player-1", "prize-1", "claim:key:1"))
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if result.Decision != domain.DecisionApproved {
		t.Fatalf("expected approved, got %s (%s)", result.Decision, result.DecisionReason)
	}
	if result.PointsAwarded != 100 {
		t.Fatalf("expected 100 points awarded, got %d", result.PointsAwarded)
	}
	if result.RiskScore != 0 {
		t.Fatalf("expected zero risk score for clean traffic, got %f", result.RiskScore)
	}

	player, err := h.repos.Players.Get(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if player.Points.Available != 100 || player.Points.Total != 100 {
		t.Fatalf("expected balance 100/100, got %+v", player.Points)
	}
	if player.LastDeviceID != "dev-1" || player.LastLocation == nil || player.DailyClaimsCount != 1 {
		t.Fatalf("expected activity recorded, got %+v", player)
	}

	prize, _ := h.repos.Prizes.Get(context.Background(), "prize-1")
	if prize.ClaimedCount != 1 {
		t.Fatalf("expected claimed count 1, got %d", prize.ClaimedCount)
	}

	events := h.published.Published()
	if len(events) != 1 || events[0].EventType != domain.EventClaimDecided {
		t.Fatalf("expected one claim.decided event, got %d", len(events))
	}
	records := h.repos.Audit.Records()
	if len(records) != 1 || records[0].Action != "claim_decided" {
		t.Fatalf("expected one claim_decided audit record, got %d", len(records))
	}
}

func TestSubmitClaimIdempotentReplay(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	actor := playerActor("player-1", "claim:key:replay")
	input := cleanSubmit("player-1", "prize-1", "claim:key:replay")

	first, err := h.svc.SubmitClaim(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := h.svc.SubmitClaim(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("replay submit: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected replay to be marked duplicate")
	}
	if first.ClaimID != second.ClaimID || first.Decision != second.Decision {
		t.Fatalf("expected identical cached result, got %s vs %s", first.ClaimID, second.ClaimID)
	}

	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("replay must not credit twice, balance %d", player.Points.Available)
	}
	history, err := h.svc.ListClaimsByPlayer(context.Background(), actor, "player-1", 10, 0)
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if history.Total != 1 {
		t.Fatalf("expected a single claim attempt, got %d", history.Total)
	}
}

func TestSubmitClaimKeyReuseWithDifferentPayloadConflicts(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)
	h.seedPrize("prize-2", 3, 100)

	actor := playerActor("player-1", "claim:key:reuse")
	if _, err := h.svc.SubmitClaim(context.Background(), actor, cleanSubmit("player-1", "prize-1", "claim:key:reuse")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	h.clock.Advance(time.Minute)
	_, err := h.svc.SubmitClaim(context.Background(), actor, cleanSubmit("player-1", "prize-2", "claim:key:reuse"))
	if !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestSubmitClaimRejectsExcessiveSpeed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	input := cleanSubmit("player-1", "prize-1", "claim:key:speed")
	input.DeviceSignals.Speed = 40

	result, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:speed"), input)
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if result.Decision != domain.DecisionRejected || result.DecisionReason != domain.ReasonSpeedExceeded {
		t.Fatalf("expected rejected/speed_exceeded, got %s/%s", result.Decision, result.DecisionReason)
	}
	if result.PointsAwarded != 0 {
		t.Fatalf("rejected claim must not award points")
	}
	if result.RiskScore != 30 {
		t.Fatalf("expected floored score 30 on kinematic reject, got %f", result.RiskScore)
	}

	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 0 {
		t.Fatalf("expected zero balance, got %d", player.Points.Available)
	}
	if player.LastClaimAt != nil {
		t.Fatalf("rejected claim must not burn cooldown")
	}

	prize, _ := h.repos.Prizes.Get(context.Background(), "prize-1")
	if prize.ClaimedCount != 0 {
		t.Fatalf("rejected claim must not consume prize units")
	}
}

func TestSubmitClaimFlagsElevatedRisk(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	input := cleanSubmit("player-1", "prize-1", "claim:key:flag")
	input.DeviceSignals.DeviceChanged = true // 25 points, right at the flag threshold

	result, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:flag"), input)
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if result.Decision != domain.DecisionFlagged || result.DecisionReason != domain.ReasonManualReview {
		t.Fatalf("expected flagged/manual_review, got %s/%s", result.Decision, result.DecisionReason)
	}
	if result.PointsAwarded != 0 {
		t.Fatalf("flagged claim must not award points")
	}

	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.LastClaimAt == nil || player.DailyClaimsCount != 1 {
		t.Fatalf("flagged claim must still burn cooldown and daily count, got %+v", player)
	}
	if player.LastLocation != nil {
		t.Fatalf("flagged claim must not advance the accepted location")
	}

	flagged, err := h.svc.ListFlaggedClaims(context.Background(), reviewerActor(""), 10, 0)
	if err != nil {
		t.Fatalf("list flagged: %v", err)
	}
	if flagged.Total != 1 || flagged.Items[0].ClaimID != result.ClaimID {
		t.Fatalf("expected flagged claim in review queue, got %d", flagged.Total)
	}
}

func TestSubmitClaimLastUnitRaceRejectsExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness()
	// Counter already spent but status still active: the same state a racing
	// winner leaves behind between its increment and this submission's read.
	_ = h.repos.Prizes.Upsert(context.Background(), domain.Prize{
		PrizeID:      "prize-1",
		Location:     domain.GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Quantity:     1,
		ClaimedCount: 1,
		PointsReward: 100,
		Status:       domain.PrizeStatusActive,
		VisibleFrom:  baseTime.Add(-time.Hour),
		VisibleUntil: baseTime.Add(24 * time.Hour),
	})

	result, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:last"), cleanSubmit("player-1", "prize-1", "claim:key:last"))
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if result.Decision != domain.DecisionRejected || result.DecisionReason != domain.ReasonPrizeExhausted {
		t.Fatalf("expected rejected/prize_exhausted, got %s/%s", result.Decision, result.DecisionReason)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 0 {
		t.Fatalf("expected no credit on exhausted prize")
	}
}

func TestSubmitClaimAuthorization(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	if _, err := h.svc.SubmitClaim(context.Background(), application.Actor{}, cleanSubmit("player-1", "prize-1", "k")); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.svc.SubmitClaim(context.Background(), playerActor("player-2", "k"), cleanSubmit("player-1", "prize-1", "k")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for another player's claim, got %v", err)
	}
	input := cleanSubmit("player-1", "prize-1", "")
	if _, err := h.svc.SubmitClaim(context.Background(), application.Actor{SubjectID: "player-1", Role: "player"}, input); !errors.Is(err, domain.ErrIdempotencyRequired) {
		t.Fatalf("expected idempotency key required, got %v", err)
	}
}

func TestSubmitClaimCooldownBetweenSubmissions(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)
	h.seedPrize("prize-2", 3, 100)

	if _, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "cool:1"), cleanSubmit("player-1", "prize-1", "cool:1")); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	result, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "cool:2"), cleanSubmit("player-1", "prize-2", "cool:2"))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.Decision != domain.DecisionRejected || result.DecisionReason != domain.ReasonCooldownActive {
		t.Fatalf("expected cooldown rejection, got %s/%s", result.Decision, result.DecisionReason)
	}

	h.clock.Advance(time.Minute)
	result, err = h.svc.SubmitClaim(context.Background(), playerActor("player-1", "cool:3"), cleanSubmit("player-1", "prize-2", "cool:3"))
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	if result.Decision != domain.DecisionApproved {
		t.Fatalf("expected approval after cooldown, got %s/%s", result.Decision, result.DecisionReason)
	}
}

func TestConcurrentSubmitsSameKeyDecideOnce(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	actor := playerActor("player-1", "claim:key:race")
	input := cleanSubmit("player-1", "prize-1", "claim:key:race")

	const workers = 8
	results := make([]application.ClaimResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.SubmitClaim(context.Background(), actor, input)
		}(i)
	}
	wg.Wait()

	var claimID string
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			if errors.Is(errs[i], domain.ErrDuplicateInFlight) {
				continue
			}
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if claimID == "" {
			claimID = results[i].ClaimID
		}
		if results[i].ClaimID != claimID {
			t.Fatalf("expected every winner to see the same claim, got %s and %s", claimID, results[i].ClaimID)
		}
	}

	history, _ := h.svc.ListClaimsByPlayer(context.Background(), actor, "player-1", 50, 0)
	if history.Total != 1 {
		t.Fatalf("expected exactly one claim attempt, got %d", history.Total)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("expected a single credit, balance %d", player.Points.Available)
	}
}

func TestOverrideClaimApprovesAndCreditsExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	input := cleanSubmit("player-1", "prize-1", "claim:key:flagged")
	input.DeviceSignals.DeviceChanged = true
	flagged, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:flagged"), input)
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	result, err := h.svc.OverrideClaim(context.Background(), reviewerActor(""), application.OverrideClaimInput{
		ClaimID:  flagged.ClaimID,
		Decision: domain.DecisionApproved,
		Notes:    "verified on-site capture",
	})
	if err != nil {
		t.Fatalf("override claim: %v", err)
	}
	if result.PointsAwarded != 100 {
		t.Fatalf("expected override approval to credit 100, got %d", result.PointsAwarded)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("expected balance 100, got %d", player.Points.Available)
	}

	// Overrides are single-shot: a second reviewer loses the race.
	_, err = h.svc.OverrideClaim(context.Background(), reviewerActor(""), application.OverrideClaimInput{
		ClaimID:  flagged.ClaimID,
		Decision: domain.DecisionRejected,
	})
	if !errors.Is(err, domain.ErrAlreadyOverridden) {
		t.Fatalf("expected already overridden, got %v", err)
	}
	player, _ = h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("failed override must not touch the balance, got %d", player.Points.Available)
	}
}

func TestOverrideClaimRejectionFlagsReconciliation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)

	approved, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:ok"), cleanSubmit("player-1", "prize-1", "claim:key:ok"))
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	if _, err := h.svc.OverrideClaim(context.Background(), reviewerActor(""), application.OverrideClaimInput{
		ClaimID:  approved.ClaimID,
		Decision: domain.DecisionRejected,
		Notes:    "spoofed location confirmed",
	}); err != nil {
		t.Fatalf("override claim: %v", err)
	}

	// No clawback: the balance stands and reconciliation is signalled instead.
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("expected balance untouched, got %d", player.Points.Available)
	}
	records := h.repos.Audit.Records()
	last := records[len(records)-1]
	if last.Action != "claim_overridden" || last.Metadata["reconciliation_required"] != "true" {
		t.Fatalf("expected reconciliation flag on override audit record, got %+v", last)
	}
}

func TestOverrideClaimGuards(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)
	approved, err := h.svc.SubmitClaim(context.Background(), playerActor("player-1", "claim:key:g"), cleanSubmit("player-1", "prize-1", "claim:key:g"))
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	if _, err := h.svc.OverrideClaim(context.Background(), playerActor("player-1", ""), application.OverrideClaimInput{ClaimID: approved.ClaimID, Decision: domain.DecisionRejected}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-reviewer, got %v", err)
	}
	if _, err := h.svc.OverrideClaim(context.Background(), reviewerActor(""), application.OverrideClaimInput{ClaimID: approved.ClaimID, Decision: domain.DecisionFlagged}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for flagged override, got %v", err)
	}
	if _, err := h.svc.OverrideClaim(context.Background(), reviewerActor(""), application.OverrideClaimInput{ClaimID: approved.ClaimID, Decision: domain.DecisionApproved}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for no-op override, got %v", err)
	}
}

func TestReserveConfirmRedemption(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 3, 50)
	h.seedPlayer("player-1", 120)

	actor := playerActor("player-1", "redeem:key:1")
	reservation, err := h.svc.ReserveRedemption(context.Background(), actor, application.ReserveRedemptionInput{
		PlayerID: "player-1",
		RewardID: "reward-1",
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("reserve redemption: %v", err)
	}
	if reservation.Status != domain.ReservationStatusPending || reservation.PointsDebited != 50 {
		t.Fatalf("unexpected reservation %+v", reservation)
	}
	if reservation.ExpiresAt.Sub(reservation.CreatedAt) != 15*time.Minute {
		t.Fatalf("expected 15m reservation TTL, got %s", reservation.ExpiresAt.Sub(reservation.CreatedAt))
	}

	stock, _ := h.repos.Stock.Get(context.Background(), "reward-1")
	if stock.Available != 2 || stock.Reserved != 1 {
		t.Fatalf("expected 2 available / 1 reserved, got %+v", stock)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 70 || player.Points.Spent != 50 {
		t.Fatalf("expected 70 available / 50 spent, got %+v", player.Points)
	}

	confirmed, err := h.svc.ConfirmRedemption(context.Background(), actor, reservation.ReservationID)
	if err != nil {
		t.Fatalf("confirm redemption: %v", err)
	}
	if confirmed.Status != domain.ReservationStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
	stock, _ = h.repos.Stock.Get(context.Background(), "reward-1")
	if stock.Reserved != 0 || stock.Quantity != 2 || stock.Available != 2 {
		t.Fatalf("expected consumed unit, got %+v", stock)
	}

	// Retried confirm is a no-op returning current state.
	again, err := h.svc.ConfirmRedemption(context.Background(), actor, reservation.ReservationID)
	if err != nil {
		t.Fatalf("retried confirm: %v", err)
	}
	if again.Status != domain.ReservationStatusConfirmed {
		t.Fatalf("expected confirmed on retry, got %s", again.Status)
	}
}

func TestReleaseRedemptionRefunds(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 3, 50)
	h.seedPlayer("player-1", 100)

	actor := playerActor("player-1", "redeem:key:release")
	reservation, err := h.svc.ReserveRedemption(context.Background(), actor, application.ReserveRedemptionInput{
		PlayerID: "player-1",
		RewardID: "reward-1",
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("reserve redemption: %v", err)
	}

	released, err := h.svc.ReleaseRedemption(context.Background(), actor, reservation.ReservationID)
	if err != nil {
		t.Fatalf("release redemption: %v", err)
	}
	if released.Status != domain.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", released.Status)
	}
	stock, _ := h.repos.Stock.Get(context.Background(), "reward-1")
	if stock.Available != 3 || stock.Reserved != 0 {
		t.Fatalf("expected stock back in pool, got %+v", stock)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 100 {
		t.Fatalf("expected refund to 100, got %d", player.Points.Available)
	}

	// Releasing again is idempotent.
	if _, err := h.svc.ReleaseRedemption(context.Background(), actor, reservation.ReservationID); err != nil {
		t.Fatalf("retried release: %v", err)
	}
}

func TestReserveRedemptionInsufficientStock(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 3, 10)
	h.seedPlayer("player-1", 1000)

	_, err := h.svc.ReserveRedemption(context.Background(), playerActor("player-1", "redeem:key:big"), application.ReserveRedemptionInput{
		PlayerID: "player-1",
		RewardID: "reward-1",
		Quantity: 5,
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 1000 {
		t.Fatalf("failed reserve must not debit, got %d", player.Points.Available)
	}
}

func TestReserveRedemptionInsufficientPointsReleasesStock(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 3, 500)
	h.seedPlayer("player-1", 100)

	_, err := h.svc.ReserveRedemption(context.Background(), playerActor("player-1", "redeem:key:poor"), application.ReserveRedemptionInput{
		PlayerID: "player-1",
		RewardID: "reward-1",
		Quantity: 1,
	})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	stock, _ := h.repos.Stock.Get(context.Background(), "reward-1")
	if stock.Available != 3 || stock.Reserved != 0 {
		t.Fatalf("expected compensating release, got %+v", stock)
	}
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 10, 30)
	h.seedPlayer("player-1", 100)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := playerActor("player-1", fmt.Sprintf("redeem:key:race:%d", i))
			_, errs[i] = h.svc.ReserveRedemption(context.Background(), actor, application.ReserveRedemptionInput{
				PlayerID: "player-1",
				RewardID: "reward-1",
				Quantity: 1,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInsufficientPoints):
		default:
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if successes != 3 {
		t.Fatalf("expected exactly 3 reservations from 100 points at 30 each, got %d", successes)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 10 || player.Points.Spent != 90 {
		t.Fatalf("expected 10 available / 90 spent, got %+v", player.Points)
	}
	stock, _ := h.repos.Stock.Get(context.Background(), "reward-1")
	if stock.Reserved != 3 || stock.Available != 7 {
		t.Fatalf("expected 3 reserved / 7 available, got %+v", stock)
	}
	if stock.Reserved+stock.Available != stock.Quantity {
		t.Fatalf("stock invariant broken: %+v", stock)
	}
}

func TestSubmitClaimKeyFreeForRetryAfterFailedLookup(t *testing.T) {
	t.Parallel()

	h := newHarness()

	actor := playerActor("player-1", "claim:key:early")
	input := cleanSubmit("player-1", "prize-1", "claim:key:early")
	if _, err := h.svc.SubmitClaim(context.Background(), actor, input); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unpublished prize, got %v", err)
	}

	// The prize shows up afterwards; the same key must go through.
	h.seedPrize("prize-1", 3, 100)
	result, err := h.svc.SubmitClaim(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("retry after prize publication: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected a fresh submission, got a cached duplicate")
	}
	if result.Decision != domain.DecisionApproved {
		t.Fatalf("expected approved, got %s/%s", result.Decision, result.DecisionReason)
	}
}

func TestSubmitClaimKeyReusableAfterExpiry(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPrize("prize-1", 3, 100)
	_ = h.repos.Prizes.Upsert(context.Background(), domain.Prize{
		PrizeID:      "prize-2",
		Location:     domain.GeoPoint{Lat: 24.7136, Lng: 46.6753},
		RadiusMeters: 30,
		Quantity:     3,
		PointsReward: 100,
		Status:       domain.PrizeStatusActive,
		VisibleFrom:  baseTime.Add(-time.Hour),
		VisibleUntil: baseTime.Add(48 * time.Hour),
		UpdatedAt:    baseTime,
	})

	actor := playerActor("player-1", "claim:key:ttl")
	first, err := h.svc.SubmitClaim(context.Background(), actor, cleanSubmit("player-1", "prize-1", "claim:key:ttl"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Past the 24h marker TTL the key is a new logical operation, even with
	// a different payload.
	h.clock.Advance(25 * time.Hour)
	second, err := h.svc.SubmitClaim(context.Background(), actor, cleanSubmit("player-1", "prize-2", "claim:key:ttl"))
	if err != nil {
		t.Fatalf("submit after key expiry: %v", err)
	}
	if second.Duplicate {
		t.Fatalf("expected a fresh submission after expiry, got a cached duplicate")
	}
	if second.ClaimID == first.ClaimID {
		t.Fatalf("expected a new claim, got the cached one %s", first.ClaimID)
	}
	if second.Decision != domain.DecisionApproved {
		t.Fatalf("expected approved, got %s/%s", second.Decision, second.DecisionReason)
	}
}

func TestIdempotencyReserveHonorsInjectedClock(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()

	if err := repos.Idempotency.Reserve(ctx, "key-1", "hash-a", baseTime, baseTime.Add(24*time.Hour)); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := repos.Idempotency.Reserve(ctx, "key-1", "hash-b", baseTime.Add(time.Hour), baseTime.Add(25*time.Hour)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict inside the marker window, got %v", err)
	}
	if err := repos.Idempotency.Reserve(ctx, "key-1", "hash-c", baseTime.Add(25*time.Hour), baseTime.Add(49*time.Hour)); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	rec, err := repos.Idempotency.Get(ctx, "key-1", baseTime.Add(26*time.Hour))
	if err != nil || rec == nil {
		t.Fatalf("expected replacement marker, got %+v (%v)", rec, err)
	}
	if rec.RequestHash != "hash-c" {
		t.Fatalf("expected the replacement hash, got %s", rec.RequestHash)
	}
}

func TestIdempotencyReleaseDropsOnlyPendingMarkers(t *testing.T) {
	t.Parallel()

	repos := memory.NewRepositories()
	ctx := context.Background()

	if err := repos.Idempotency.Reserve(ctx, "key-1", "hash-a", baseTime, baseTime.Add(24*time.Hour)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repos.Idempotency.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release pending: %v", err)
	}
	if err := repos.Idempotency.Reserve(ctx, "key-1", "hash-b", baseTime, baseTime.Add(24*time.Hour)); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if err := repos.Idempotency.Complete(ctx, "key-1", 201, []byte(`{}`), baseTime); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// A completed marker stays put.
	if err := repos.Idempotency.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release completed: %v", err)
	}
	rec, err := repos.Idempotency.Get(ctx, "key-1", baseTime.Add(time.Hour))
	if err != nil || rec == nil {
		t.Fatalf("expected completed marker to survive release, got %+v (%v)", rec, err)
	}
	if rec.RequestHash != "hash-b" {
		t.Fatalf("expected hash-b marker, got %s", rec.RequestHash)
	}
}

func TestReserveRedemptionKeyFreeForRetryAfterFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedStock("reward-1", 3, 500)
	h.seedPlayer("player-1", 100)

	actor := playerActor("player-1", "redeem:key:retry")
	input := application.ReserveRedemptionInput{PlayerID: "player-1", RewardID: "reward-1", Quantity: 1}
	if _, err := h.svc.ReserveRedemption(context.Background(), actor, input); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	// Balance tops up; the same key must go through.
	if _, err := h.repos.Players.Credit(context.Background(), "player-1", 400, "topup"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	reservation, err := h.svc.ReserveRedemption(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("retry reserve: %v", err)
	}
	if reservation.Status != domain.ReservationStatusPending || reservation.PointsDebited != 500 {
		t.Fatalf("unexpected reservation %+v", reservation)
	}
	player, _ := h.repos.Players.Get(context.Background(), "player-1")
	if player.Points.Available != 0 || player.Points.Spent != 500 {
		t.Fatalf("expected 0 available / 500 spent, got %+v", player.Points)
	}
}

func TestGetBalanceAuthorization(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedPlayer("player-1", 40)

	player, err := h.svc.GetBalance(context.Background(), playerActor("player-1", ""), "player-1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if player.Points.Available != 40 {
		t.Fatalf("expected 40 available, got %d", player.Points.Available)
	}
	if _, err := h.svc.GetBalance(context.Background(), playerActor("player-2", ""), "player-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for another player's balance, got %v", err)
	}
	if _, err := h.svc.GetBalance(context.Background(), reviewerActor(""), "player-1"); err != nil {
		t.Fatalf("reviewer must read any balance: %v", err)
	}
}

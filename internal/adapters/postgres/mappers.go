package postgres

import (
	"encoding/json"

	"github.com/yallacatch/claim-engine/internal/domain"
)

func toClaimModel(claim domain.ClaimAttempt) (claimModel, error) {
	location, err := json.Marshal(claim.ReportedLocation)
	if err != nil {
		return claimModel{}, err
	}
	signals, err := json.Marshal(claim.DeviceSignals)
	if err != nil {
		return claimModel{}, err
	}
	checks, err := json.Marshal(claim.ValidationChecks)
	if err != nil {
		return claimModel{}, err
	}
	rec := claimModel{
		ClaimID:          claim.ClaimID,
		PlayerID:         claim.PlayerID,
		PrizeID:          claim.PrizeID,
		ReportedLocation: string(location),
		DeviceSignals:    string(signals),
		IdempotencyKey:   claim.IdempotencyKey,
		ValidationChecks: string(checks),
		RiskScore:        claim.RiskScore,
		Decision:         string(claim.Decision),
		DecisionReason:   claim.DecisionReason,
		PointsAwarded:    claim.PointsAwarded,
		CreatedAt:        claim.CreatedAt,
		OverriddenAt:     claim.OverriddenAt,
		OverriddenBy:     nullableString(claim.OverriddenBy),
		OverrideNotes:    nullableString(claim.OverrideNotes),
	}
	if claim.OverriddenDecision != nil {
		decision := string(*claim.OverriddenDecision)
		rec.OverriddenDecision = &decision
	}
	return rec, nil
}

func toDomainClaim(rec claimModel) (domain.ClaimAttempt, error) {
	claim := domain.ClaimAttempt{
		ClaimID:        rec.ClaimID,
		PlayerID:       rec.PlayerID,
		PrizeID:        rec.PrizeID,
		IdempotencyKey: rec.IdempotencyKey,
		RiskScore:      rec.RiskScore,
		Decision:       domain.Decision(rec.Decision),
		DecisionReason: rec.DecisionReason,
		PointsAwarded:  rec.PointsAwarded,
		CreatedAt:      rec.CreatedAt,
		OverriddenAt:   rec.OverriddenAt,
	}
	if err := json.Unmarshal([]byte(rec.ReportedLocation), &claim.ReportedLocation); err != nil {
		return domain.ClaimAttempt{}, err
	}
	if err := json.Unmarshal([]byte(rec.DeviceSignals), &claim.DeviceSignals); err != nil {
		return domain.ClaimAttempt{}, err
	}
	if err := json.Unmarshal([]byte(rec.ValidationChecks), &claim.ValidationChecks); err != nil {
		return domain.ClaimAttempt{}, err
	}
	if rec.OverriddenDecision != nil {
		decision := domain.Decision(*rec.OverriddenDecision)
		claim.OverriddenDecision = &decision
	}
	if rec.OverriddenBy != nil {
		claim.OverriddenBy = *rec.OverriddenBy
	}
	if rec.OverrideNotes != nil {
		claim.OverrideNotes = *rec.OverrideNotes
	}
	return claim, nil
}

func toPlayerModel(player domain.Player) playerModel {
	rec := playerModel{
		PlayerID:         player.PlayerID,
		PointsAvailable:  player.Points.Available,
		PointsTotal:      player.Points.Total,
		PointsSpent:      player.Points.Spent,
		LastClaimAt:      player.LastClaimAt,
		DailyClaimsCount: player.DailyClaimsCount,
		LastAcceptedAt:   player.LastAcceptedAt,
		LastDeviceID:     nullableString(player.LastDeviceID),
		RiskProfile:      player.RiskProfile,
		Timezone:         nullableString(player.Timezone),
		UpdatedAt:        player.UpdatedAt,
	}
	if player.LastLocation != nil {
		lat, lng := player.LastLocation.Lat, player.LastLocation.Lng
		rec.LastLat = &lat
		rec.LastLng = &lng
	}
	return rec
}

func toDomainPlayer(rec playerModel) domain.Player {
	player := domain.Player{
		PlayerID: rec.PlayerID,
		Points: domain.PointsBalance{
			Available: rec.PointsAvailable,
			Total:     rec.PointsTotal,
			Spent:     rec.PointsSpent,
		},
		LastClaimAt:      rec.LastClaimAt,
		DailyClaimsCount: rec.DailyClaimsCount,
		LastAcceptedAt:   rec.LastAcceptedAt,
		RiskProfile:      rec.RiskProfile,
		UpdatedAt:        rec.UpdatedAt,
	}
	if rec.LastLat != nil && rec.LastLng != nil {
		player.LastLocation = &domain.GeoPoint{Lat: *rec.LastLat, Lng: *rec.LastLng}
	}
	if rec.LastDeviceID != nil {
		player.LastDeviceID = *rec.LastDeviceID
	}
	if rec.Timezone != nil {
		player.Timezone = *rec.Timezone
	}
	return player
}

func toPrizeModel(prize domain.Prize) prizeModel {
	return prizeModel{
		PrizeID:      prize.PrizeID,
		Lat:          prize.Location.Lat,
		Lng:          prize.Location.Lng,
		RadiusMeters: prize.RadiusMeters,
		Quantity:     prize.Quantity,
		ClaimedCount: prize.ClaimedCount,
		PointsReward: prize.PointsReward,
		Status:       string(prize.Status),
		VisibleFrom:  prize.VisibleFrom,
		VisibleUntil: prize.VisibleUntil,
		UpdatedAt:    prize.UpdatedAt,
	}
}

func toDomainPrize(rec prizeModel) domain.Prize {
	return domain.Prize{
		PrizeID:      rec.PrizeID,
		Location:     domain.GeoPoint{Lat: rec.Lat, Lng: rec.Lng},
		RadiusMeters: rec.RadiusMeters,
		Quantity:     rec.Quantity,
		ClaimedCount: rec.ClaimedCount,
		PointsReward: rec.PointsReward,
		Status:       domain.PrizeStatus(rec.Status),
		VisibleFrom:  rec.VisibleFrom,
		VisibleUntil: rec.VisibleUntil,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func toDomainStock(rec stockModel) domain.RewardStock {
	return domain.RewardStock{
		RewardID:   rec.RewardID,
		PointsCost: rec.PointsCost,
		Quantity:   rec.StockQuantity,
		Reserved:   rec.StockReserved,
		Available:  rec.StockAvailable,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func toDomainReservation(rec reservationModel) domain.Reservation {
	return domain.Reservation{
		ReservationID: rec.ReservationID,
		PlayerID:      rec.PlayerID,
		RewardID:      rec.RewardID,
		Quantity:      rec.Quantity,
		PointsDebited: rec.PointsDebited,
		Status:        domain.ReservationStatus(rec.Status),
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

package ports

import (
	"context"

	"github.com/yallacatch/claim-engine/internal/domain"
)

// SettingsReader exposes the external configuration collaborator. The engine
// reads one snapshot per submission and never mutates it.
type SettingsReader interface {
	GetRiskSettings(ctx context.Context) (domain.RiskSettings, error)
}

type PlayerIdentity struct {
	PlayerID string
	Handle   string
	Role     string
	Timezone string
}

// PlayerDirectory resolves player identity against the (out-of-scope)
// account service.
type PlayerDirectory interface {
	GetPlayer(ctx context.Context, playerID string) (PlayerIdentity, error)
}

package grpc

import (
	"context"
	"sync"

	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

// SettingsClient serves risk settings snapshots. It starts from the platform
// defaults and is refreshed by the config-service push consumed on the worker
// side; reads never block on the upstream service.
type SettingsClient struct {
	mu       sync.RWMutex
	settings domain.RiskSettings
}

func NewSettingsClient(_ string) *SettingsClient {
	return &SettingsClient{settings: domain.DefaultRiskSettings()}
}

func (c *SettingsClient) GetRiskSettings(_ context.Context) (domain.RiskSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings, nil
}

func (c *SettingsClient) Apply(settings domain.RiskSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}

type DirectoryClient struct{}

func NewDirectoryClient(_ string) *DirectoryClient { return &DirectoryClient{} }

func (c *DirectoryClient) GetPlayer(_ context.Context, playerID string) (ports.PlayerIdentity, error) {
	return ports.PlayerIdentity{PlayerID: playerID, Handle: playerID, Role: "player", Timezone: "UTC"}, nil
}

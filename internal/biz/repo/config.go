package repo

import (
	"context"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// ConfigRepo is the lifecycle config store
// The engine only reads; writes come from the administration surface
type ConfigRepo interface {
	// GetLifecycleConfig returns nil, nil when no config exists
	GetLifecycleConfig(ctx context.Context, groupID string, kind domain.Kind) (*domain.LifecycleConfig, error)

	// SaveLifecycleConfig creates or replaces a config
	SaveLifecycleConfig(ctx context.Context, cfg *domain.LifecycleConfig) error

	// ListLifecycleConfigs lists the configs of a group
	ListLifecycleConfigs(ctx context.Context, groupID string) ([]*domain.LifecycleConfig, error)
}

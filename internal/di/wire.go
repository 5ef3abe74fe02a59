//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"dashcache/internal/config"
)

// InitializeContainer assembles the full caching subsystem from its
// configuration and logger.
func InitializeContainer(cfg *config.Config, logger *zap.Logger) *Container {
	wire.Build(ProviderSet)
	return nil
}

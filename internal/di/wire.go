//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/berry-13/vicsam-group-sub002/internal/app"
	"github.com/berry-13/vicsam-group-sub002/internal/config"
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	wire.Build(
		provideObservability,
		provideRuntimeLogger,
		infraSet,
		coreSet,
		httpSet,
		provideApp,
	)
	return nil, nil, nil
}

func InitializeAdmin(ctx context.Context, cfg *config.Config) (*Admin, func(), error) {
	wire.Build(
		provideLogger,
		infraSet,
		coreSet,
		provideAdmin,
	)
	return nil, nil, nil
}

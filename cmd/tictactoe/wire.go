//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/tictactoe/internal/auth"
	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/frontend/httpapi"
	"github.com/cory-johannsen/tictactoe/internal/frontend/ws"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
)

var storageSet = wire.NewSet(
	provideBackend,
	provideStore,
	provideUserStore,
	provideRepository,
	provideReadiness,
)

var gameSet = wire.NewSet(
	match.NewStore,
	session.NewRegistry,
	provideCoordinatorOptions,
	gameserver.NewCoordinator,
	wire.Bind(new(ws.Coordinator), new(*gameserver.Coordinator)),
)

var frontendSet = wire.NewSet(
	provideIssuer,
	provideVerifier,
	auth.NewService,
	provideAPIOptions,
	httpapi.New,
	ws.NewHandler,
	provideRouter,
	ws.NewAcceptor,
)

func initializeApp(ctx context.Context, cfg config.Config) (*App, func(), error) {
	wire.Build(
		wire.FieldsOf(new(config.Config), "Server", "Auth", "Game", "Logging"),
		provideLogger,
		storageSet,
		gameSet,
		frontendSet,
		provideLifecycle,
		provideApp,
	)
	return nil, nil, nil
}

package graph

import (
	"go.uber.org/fx"
)

// Module provides the knowledge graph domain
var Module = fx.Module("graph",
	fx.Provide(
		fx.Annotate(NewRepository, fx.As(new(Store))),
		fx.Annotate(NewMirror, fx.As(new(GraphStore))),
		fx.Annotate(NewSynchronizer, fx.As(new(Flusher))),
		NewPathFinder,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

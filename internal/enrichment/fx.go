package enrichment

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("enrichment.service",
	fx.Provide(DefaultConfig),
	fx.Provide(NewService),
)

// WorkerModule runs the queue consumer. Only the enricher binary loads it.
var WorkerModule = fx.Module("enrichment.worker",
	fx.Provide(DefaultConfig),
	fx.Provide(NewPassthroughResolver),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker) {
	workerCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go worker.RunForever(workerCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

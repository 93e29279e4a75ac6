package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/tools"
)

// dispatch runs the calls concurrently and returns their results in call order.
// Registry.Execute never fails, so the group only bounds concurrency.
func (e *Engine) dispatch(ctx context.Context, calls []core.ToolCall) []tools.Result {
	results := make([]tools.Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if e.parallelTools > 0 {
		g.SetLimit(e.parallelTools)
	}
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			results[i] = e.registry.Execute(gctx, call.Name, call.Input)

			logging.For("engine").Debug().
				Str("tool", call.Name).
				Str("call_id", call.ID).
				Bool("error", results[i].IsError()).
				Dur("duration", time.Since(start)).
				Msg("tool executed")
			return nil
		})
	}
	_ = g.Wait()

	return results
}

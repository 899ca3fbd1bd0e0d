package app

import (
	"context"
	"time"

	"adsposter/internal/eventbus"
	"adsposter/internal/poster"
	"adsposter/internal/storage"
	logx "adsposter/pkg/logx"
)

// recordRuns persists every finished run until ctx ends, then drains what is
// already buffered so the last run of a shutdown is not lost.
func recordRuns(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	write := func(ev eventbus.Event) {
		if ev.Type != eventbus.RunFinished {
			return
		}
		sum, ok := ev.Data.(poster.RunSummary)
		if !ok {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := store.AppendRun(wctx, toRunRecord(sum)); err != nil {
			log.Warn("run history write failed", logx.String("run", sum.ID), logx.Err(err))
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		}
	}
}

package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on each tick until ctx is done.
// Runs never overlap; a tick that fires during a slow run is dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	runOnce(ctx, name, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce(ctx, name, task)
		}
	}
}

func runOnce(ctx context.Context, name string, task Task) {
	if err := safeCall(ctx, task); err != nil {
		log.Printf("[%s] error: %v", name, err)
	}
}

func safeCall(ctx context.Context, task Task) (err error) {
	if ctx.Err() != nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return task(ctx)
}

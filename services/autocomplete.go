package services

import (
	"context"
	"time"

	"github.com/cppla/pawtrail/utils"
)

// StartWalkAutoCompleter launches a background goroutine that periodically
// finalizes walks left active longer than maxAge. It is best-effort and stops
// when ctx is cancelled.
func StartWalkAutoCompleter(ctx context.Context, svc *WalkService, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// wait a tick first to avoid racing startup migrations
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			closed, err := svc.AutoCompleteStale(ctx, maxAge)
			if err != nil {
				utils.Sugar.Warnf("walk auto-complete sweep failed: %v", err)
				continue
			}
			if closed > 0 {
				utils.Sugar.Infof("auto-completed %d stale walks", closed)
			}
		}
	}()
}

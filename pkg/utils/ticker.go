package utils

import (
	"context"
	"time"
)

// NewTicker ticks once right away and then every interval.
// The channel is closed after ctx is done.
func NewTicker(ctx context.Context, interval time.Duration) <-chan time.Time {
	tickCh := make(chan time.Time, 1)
	tickCh <- time.Now()

	go func() {
		ticker := time.NewTicker(interval)
		defer func() {
			ticker.Stop()
			close(tickCh)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case tickCh <- t:
				default: // reader is behind, drop the tick
				}
			}
		}
	}()

	return tickCh
}

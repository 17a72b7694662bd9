package sqlsource

import (
	"context"
	"log/slog"
	"time"

	"github.com/ectopq/ectopq/internal"
)

// ResetStaleSweep periodically runs Source.ResetStale, rescuing jobs
// whose owning worker died mid-execution. It is the only mechanism by
// which a crashed worker's reservation is recovered; there is no
// lease-extension path.
type ResetStaleSweep struct {
	source *Source
	log    *slog.Logger
	timer  internal.TimerTask
}

// StartResetStale begins the sweep immediately and then every interval,
// until the returned sweep is stopped or ctx is done.
func (s *Source) StartResetStale(ctx context.Context, interval time.Duration) *ResetStaleSweep {
	sweep := &ResetStaleSweep{source: s, log: s.log}
	sweep.timer.Start(ctx, sweep.tick, interval)
	return sweep
}

func (sw *ResetStaleSweep) tick(ctx context.Context) {
	n, err := sw.source.ResetStale(ctx)
	if err != nil {
		sw.log.Error("reset_stale failed", "err", err)
		return
	}
	if n > 0 {
		sw.log.Debug("reset_stale recovered rows", "count", n)
	}
}

// Stop cancels the sweep and returns a channel closed once its
// goroutine has exited.
func (sw *ResetStaleSweep) Stop() internal.DoneChan {
	return sw.timer.Stop()
}

package collector

import (
	"context"
	"time"

	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"go.uber.org/zap"
)

// Run flushes the aggregator every window until ctx is done.
func (a *Aggregator) Run(ctx context.Context, window time.Duration) <-chan []NodeSummary {
	out := make(chan []NodeSummary)

	go func() {
		defer close(out)
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summaries := a.Flush()
				if len(summaries) == 0 {
					continue
				}
				select {
				case out <- summaries:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// LogEvery logs the summaries of every window in the background. stop
// cancels the loop and returns once nothing more will be logged.
func (a *Aggregator) LogEvery(ctx context.Context, window time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for summaries := range a.Run(ctx, window) {
			LogSummaries(summaries)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func LogSummaries(summaries []NodeSummary) {
	logger := logutil.GetLogger()
	for _, s := range summaries {
		logger.Info("Node summary",
			zap.Uint16("node", s.Node),
			zap.Uint64("states", s.States),
			zap.Uint64("infos", s.Infos),
			zap.Uint64("payload_bytes", s.PayloadBytes),
			zap.Int("max_payload", s.MaxPayload),
			zap.Float64("avg_payload", s.AvgPayload),
			zap.Int64("first_cycles", s.First.Cycles),
			zap.Int64("last_cycles", s.Last.Cycles),
			zap.Float64("event_rate", s.EventRate),
		)
	}
}

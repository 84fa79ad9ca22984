package broadcast

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/pkg/log"
)

// scheduler runs gossip rounds, sending each neighbor the values it isn't
// known to have.
type scheduler struct {
	topology  *topologyView
	knowledge *knowledgeTracker
	retry     *retryManager

	config *Config

	logger log.Logger
}

func newScheduler(
	topology *topologyView,
	knowledge *knowledgeTracker,
	retry *retryManager,
	config *Config,
	logger log.Logger,
) *scheduler {
	return &scheduler{
		topology:  topology,
		knowledge: knowledge,
		retry:     retry,
		config:    config,
		logger:    logger.WithSubsystem("broadcast.scheduler"),
	}
}

// Tick runs a gossip round. For each neighbor, any values the neighbor isn't
// known to have and that aren't already in pending gossip to that neighbor
// are sent in a new gossip message.
//
// Neighbors that are known to have every local value are skipped, so once
// the cluster converges no gossip is sent until new values arrive.
//
// Returns the number of gossip messages sent.
func (s *scheduler) Tick(now time.Time) int {
	sent := 0
	for _, neighbor := range s.topology.Neighbors() {
		delta := s.delta(neighbor)
		if len(delta) == 0 {
			continue
		}

		msgID := s.retry.Send(neighbor, delta, now)
		sent++

		s.logger.Debug(
			"gossip",
			zap.String("neighbor", neighbor),
			zap.Uint64("msg-id", msgID),
			zap.Int("values", len(delta)),
		)
	}
	return sent
}

// delta returns the values to gossip to the neighbor.
//
// Values already in pending gossip are excluded since the retry manager
// retransmits them, which bounds the pending requests for an unresponsive
// neighbor to one per value.
//
// If the delta exceeds the max batch size, the smallest values are sent
// and the rest are left for later rounds.
func (s *scheduler) delta(neighbor string) []Value {
	unknown := s.knowledge.UnknownFor(neighbor)
	if len(unknown) == 0 {
		return nil
	}

	inflight := s.retry.InFlight(neighbor)
	delta := make([]Value, 0, len(unknown))
	for _, v := range unknown {
		if _, ok := inflight[v]; ok {
			continue
		}
		delta = append(delta, v)

		if s.config.MaxBatchSize > 0 && len(delta) == s.config.MaxBatchSize {
			break
		}
	}
	return delta
}

// scheduleFunc calls f at the given interval until the context is
// cancelled.
func scheduleFunc(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add 10% jitter to avoid nodes synchronising.
			var jitter time.Duration
			if interval.Milliseconds() > 0 {
				jitterMs := (rand.Int63() % interval.Milliseconds()) / 10
				jitter = time.Duration(jitterMs) * time.Millisecond
			}
			select {
			case <-time.After(jitter):
				f()
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

package broadcast

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/pkg/log"
)

// Sender sends envelopes to other nodes and clients.
//
// Send must not block waiting for the message to be delivered. A returned
// error is handled the same as a dropped message.
type Sender interface {
	Send(env Envelope) error
}

// NeighborStatus contains the known state of a neighbor.
type NeighborStatus struct {
	ID string `json:"id"`
	// Known is the number of local values the neighbor is known to have.
	Known int `json:"known"`
	// Unknown is the number of local values the neighbor isn't known to
	// have.
	Unknown int `json:"unknown"`
	// Pending is the number of gossip messages to the neighbor awaiting
	// acknowledgement.
	Pending int `json:"pending"`
}

// Node is a member of the broadcast cluster.
//
// Inbound messages are passed to Handle, which may be called concurrently
// with gossip rounds.
type Node struct {
	id string

	store      *valueStore
	topology   *topologyView
	knowledge  *knowledgeTracker
	retry      *retryManager
	scheduler  *scheduler
	dispatcher *dispatcher

	config *Config

	metrics *Metrics

	logger log.Logger
}

func New(id string, config *Config, sender Sender, logger log.Logger) *Node {
	logger = logger.WithSubsystem("broadcast").With(zap.String("node-id", id))

	metrics := NewMetrics()
	msgID := atomic.NewUint64(0)
	nextMsgID := func() uint64 {
		return msgID.Inc()
	}

	store := newValueStore()
	topology := newTopologyView()
	knowledge := newKnowledgeTracker(store)
	retry := newRetryManager(
		id, nextMsgID, sender, knowledge, config, metrics, logger,
	)
	scheduler := newScheduler(topology, knowledge, retry, config, logger)
	dispatcher := newDispatcher(
		id,
		store,
		topology,
		knowledge,
		retry,
		nextMsgID,
		sender,
		metrics,
		logger,
	)

	return &Node{
		id:         id,
		store:      store,
		topology:   topology,
		knowledge:  knowledge,
		retry:      retry,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		config:     config,
		metrics:    metrics,
		logger:     logger,
	}
}

func (n *Node) ID() string {
	return n.id
}

// Handle handles an inbound envelope from a client or another node.
func (n *Node) Handle(env Envelope) {
	n.dispatcher.Dispatch(env)
}

// GossipRound sends each neighbor the values it isn't known to have.
func (n *Node) GossipRound(now time.Time) int {
	return n.scheduler.Tick(now)
}

// RetryRound retransmits gossip that hasn't been acknowledged within the
// retry timeout.
func (n *Node) RetryRound(now time.Time) int {
	return n.retry.RetryDue(now)
}

// Run runs gossip and retry rounds at the configured interval until the
// context is cancelled.
func (n *Node) Run(ctx context.Context) {
	n.logger.Info(
		"starting gossip",
		zap.Duration("interval", n.config.Interval),
		zap.Duration("retry-timeout", n.config.RetryTimeout),
		zap.Int("max-batch-size", n.config.MaxBatchSize),
	)

	go scheduleFunc(ctx, n.config.Interval, func() {
		n.RetryRound(time.Now())
	})
	scheduleFunc(ctx, n.config.Interval, func() {
		n.GossipRound(time.Now())
	})
}

// Values returns the values known to the node, sorted in ascending order.
func (n *Node) Values() []Value {
	return n.store.Snapshot()
}

func (n *Node) Neighbors() []string {
	return n.topology.Neighbors()
}

// Known returns the values the given neighbor is known to have.
func (n *Node) Known(neighbor string) []Value {
	return n.knowledge.Known(neighbor)
}

// NeighborStatus returns the known state of each neighbor.
func (n *Node) NeighborStatus() []NeighborStatus {
	pending := make(map[string]int)
	for _, req := range n.retry.Pending() {
		pending[req.Neighbor]++
	}

	var status []NeighborStatus
	for _, neighbor := range n.topology.Neighbors() {
		status = append(status, NeighborStatus{
			ID:      neighbor,
			Known:   n.knowledge.KnownCount(neighbor),
			Unknown: len(n.knowledge.UnknownFor(neighbor)),
			Pending: pending[neighbor],
		})
	}
	return status
}

// Pending returns the gossip awaiting acknowledgement.
func (n *Node) Pending() []PendingRequest {
	return n.retry.Pending()
}

func (n *Node) Metrics() *Metrics {
	return n.metrics
}

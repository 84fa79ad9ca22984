package broadcast

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/pkg/backoff"
	"github.com/andydunstall/broadcast/pkg/log"
)

// PendingRequest is a gossip message awaiting acknowledgement.
type PendingRequest struct {
	MsgID    uint64    `json:"msg_id"`
	Neighbor string    `json:"neighbor"`
	Values   []Value   `json:"values"`
	Retries  int       `json:"retries"`
	SentAt   time.Time `json:"sent_at"`
	Deadline time.Time `json:"deadline"`
}

type pendingRequest struct {
	msgID    uint64
	neighbor string
	// values is the payload captured when the gossip was first sent. Retries
	// resend the same values rather than recomputing the delta.
	values   []Value
	retries  int
	sentAt   time.Time
	deadline time.Time
	backoff  *backoff.Backoff
}

func (r *pendingRequest) envelope(localID string) Envelope {
	return Envelope{
		Src:   localID,
		Dest:  r.neighbor,
		MsgID: r.msgID,
		Payload: &Gossip{
			Seen: r.values,
		},
	}
}

// retryManager tracks gossip messages awaiting acknowledgement and
// retransmits them until acknowledged.
//
// There is no retry limit. The transport may drop any message, so gossip is
// retried until the neighbor acknowledges it. A neighbor that never
// acknowledges only causes its own pending requests to be retried, with the
// retry timeout backing off up to the configured maximum.
type retryManager struct {
	pending map[uint64]*pendingRequest
	// inflight contains the number of pending requests to each neighbor
	// that include each value.
	inflight map[string]map[Value]int

	// mu protects the above fields.
	mu sync.Mutex

	localID   string
	nextMsgID func() uint64
	sender    Sender
	knowledge *knowledgeTracker

	config *Config

	metrics *Metrics

	logger log.Logger
}

func newRetryManager(
	localID string,
	nextMsgID func() uint64,
	sender Sender,
	knowledge *knowledgeTracker,
	config *Config,
	metrics *Metrics,
	logger log.Logger,
) *retryManager {
	return &retryManager{
		pending:   make(map[uint64]*pendingRequest),
		inflight:  make(map[string]map[Value]int),
		localID:   localID,
		nextMsgID: nextMsgID,
		sender:    sender,
		knowledge: knowledge,
		config:    config,
		metrics:   metrics,
		logger:    logger.WithSubsystem("broadcast.retry"),
	}
}

// Send sends gossip containing the given values to the neighbor and
// registers it as pending until acknowledged. Returns the message ID of the
// gossip.
func (m *retryManager) Send(neighbor string, values []Value, now time.Time) uint64 {
	payload := make([]Value, len(values))
	copy(payload, values)

	req := &pendingRequest{
		msgID:    m.nextMsgID(),
		neighbor: neighbor,
		values:   payload,
		sentAt:   now,
		backoff:  backoff.New(m.config.RetryTimeout, m.config.MaxRetryTimeout),
	}
	req.deadline = now.Add(req.backoff.Next())

	m.mu.Lock()
	m.pending[req.msgID] = req
	inflight, ok := m.inflight[neighbor]
	if !ok {
		inflight = make(map[Value]int)
		m.inflight[neighbor] = inflight
	}
	for _, v := range payload {
		inflight[v]++
	}
	m.metrics.PendingRequests.Set(float64(len(m.pending)))
	env := req.envelope(m.localID)
	m.mu.Unlock()

	m.metrics.GossipOutbound.Inc()
	m.metrics.GossipValuesOutbound.Add(float64(len(payload)))

	m.send(env)

	return req.msgID
}

// Ack handles an acknowledgement from the given neighbor for the gossip with
// the given message ID. If the gossip is pending, it is removed and the
// neighbor is marked as knowing the gossiped values.
//
// Returns false if no pending gossip to the neighbor matches, such as a
// duplicate acknowledgement.
func (m *retryManager) Ack(from string, msgID uint64) bool {
	m.mu.Lock()
	req, ok := m.pending[msgID]
	if !ok || req.neighbor != from {
		m.mu.Unlock()

		m.metrics.GossipUnmatchedAcks.Inc()
		m.logger.Debug(
			"unmatched ack",
			zap.String("from", from),
			zap.Uint64("in-reply-to", msgID),
		)
		return false
	}
	delete(m.pending, msgID)
	inflight := m.inflight[req.neighbor]
	for _, v := range req.values {
		inflight[v]--
		if inflight[v] <= 0 {
			delete(inflight, v)
		}
	}
	if len(inflight) == 0 {
		delete(m.inflight, req.neighbor)
	}
	m.metrics.PendingRequests.Set(float64(len(m.pending)))
	m.mu.Unlock()

	m.knowledge.MarkKnown(req.neighbor, req.values)
	m.metrics.GossipAcks.Inc()

	return true
}

// RetryDue retransmits every pending gossip whose deadline has passed, with
// the same payload and a new deadline. Returns the number of
// retransmissions.
func (m *retryManager) RetryDue(now time.Time) int {
	var envs []Envelope

	m.mu.Lock()
	for _, req := range m.pending {
		if now.Before(req.deadline) {
			continue
		}
		req.retries++
		req.deadline = now.Add(req.backoff.Next())
		envs = append(envs, req.envelope(m.localID))

		m.logger.Debug(
			"retry gossip",
			zap.String("neighbor", req.neighbor),
			zap.Uint64("msg-id", req.msgID),
			zap.Int("retries", req.retries),
			zap.Int("values", len(req.values)),
		)
	}
	m.mu.Unlock()

	for _, env := range envs {
		m.metrics.GossipRetries.Inc()
		m.send(env)
	}
	return len(envs)
}

// InFlight returns the values included in pending gossip to the neighbor.
func (m *retryManager) InFlight(neighbor string) map[Value]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	inflight := make(map[Value]struct{}, len(m.inflight[neighbor]))
	for v := range m.inflight[neighbor] {
		inflight[v] = struct{}{}
	}
	return inflight
}

// Pending returns the pending gossip sorted by message ID.
func (m *retryManager) Pending() []PendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]PendingRequest, 0, len(m.pending))
	for _, req := range m.pending {
		values := make([]Value, len(req.values))
		copy(values, req.values)
		pending = append(pending, PendingRequest{
			MsgID:    req.msgID,
			Neighbor: req.neighbor,
			Values:   values,
			Retries:  req.retries,
			SentAt:   req.sentAt,
			Deadline: req.deadline,
		})
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].MsgID < pending[j].MsgID
	})
	return pending
}

func (m *retryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pending)
}

// send hands the envelope to the transport. A failed send is handled the
// same as a dropped message, so is retried after the retry timeout.
func (m *retryManager) send(env Envelope) {
	if err := m.sender.Send(env); err != nil {
		m.metrics.SendErrors.Inc()
		m.logger.Debug(
			"failed to send gossip",
			zap.String("neighbor", env.Dest),
			zap.Uint64("msg-id", env.MsgID),
			zap.Error(err),
		)
	}
}

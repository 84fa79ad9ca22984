package simulator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
)

// Stats contains the number of messages passed through the network.
type Stats struct {
	Sent      uint64 `json:"sent" yaml:"sent"`
	Dropped   uint64 `json:"dropped" yaml:"dropped"`
	Delivered uint64 `json:"delivered" yaml:"delivered"`
}

type link struct {
	From string
	To   string
}

// Network is an in-memory network between broadcast nodes.
//
// Sent messages are queued until Deliver is called. Messages between nodes
// may be dropped, either randomly based on the drop rate or because the
// nodes are partitioned. Messages to clients are never dropped.
type Network struct {
	nodes map[string]*broadcast.Node

	queue []broadcast.Envelope
	// replies contains messages sent to clients.
	replies []broadcast.Envelope

	partitions map[link]struct{}

	dropRate float64
	rand     *rand.Rand

	// mu protects the above fields.
	mu sync.Mutex

	sent      *atomic.Uint64
	dropped   *atomic.Uint64
	delivered *atomic.Uint64

	logger log.Logger
}

func NewNetwork(dropRate float64, seed int64, logger log.Logger) *Network {
	return &Network{
		nodes:      make(map[string]*broadcast.Node),
		partitions: make(map[link]struct{}),
		dropRate:   dropRate,
		rand:       rand.New(rand.NewSource(seed)),
		sent:       atomic.NewUint64(0),
		dropped:    atomic.NewUint64(0),
		delivered:  atomic.NewUint64(0),
		logger:     logger.WithSubsystem("simulator.network"),
	}
}

// AddNode adds a node to the network. Messages whose destination isn't a
// node are treated as client replies.
func (n *Network) AddNode(node *broadcast.Node) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nodes[node.ID()] = node
}

// Send queues the envelope for delivery.
func (n *Network) Send(env broadcast.Envelope) error {
	n.sent.Inc()

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[env.Dest]; !ok {
		n.replies = append(n.replies, env)
		return nil
	}
	n.queue = append(n.queue, env)
	return nil
}

// Partition drops all messages between nodes a and b until healed.
func (n *Network) Partition(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.partitions[link{From: a, To: b}] = struct{}{}
	n.partitions[link{From: b, To: a}] = struct{}{}

	n.logger.Debug("partition", zap.String("a", a), zap.String("b", b))
}

// Heal removes the partition between nodes a and b.
func (n *Network) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.partitions, link{From: a, To: b})
	delete(n.partitions, link{From: b, To: a})

	n.logger.Debug("heal", zap.String("a", a), zap.String("b", b))
}

// Deliver delivers queued messages until the queue is empty, including any
// messages sent while delivering. Returns the number of delivered messages.
func (n *Network) Deliver() int {
	delivered := 0
	for {
		batch := n.take()
		if len(batch) == 0 {
			return delivered
		}
		for _, env := range batch {
			n.mu.Lock()
			node := n.nodes[env.Dest]
			n.mu.Unlock()

			node.Handle(env)
			n.delivered.Inc()
			delivered++
		}
	}
}

// Reply removes and returns the reply to the client with the given message
// ID.
func (n *Network) Reply(client string, inReplyTo uint64) (broadcast.Envelope, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, env := range n.replies {
		if env.Dest == client && env.InReplyTo == inReplyTo {
			n.replies = append(n.replies[:i], n.replies[i+1:]...)
			return env, nil
		}
	}
	return broadcast.Envelope{}, fmt.Errorf("no reply: %s: %d", client, inReplyTo)
}

func (n *Network) Stats() Stats {
	return Stats{
		Sent:      n.sent.Load(),
		Dropped:   n.dropped.Load(),
		Delivered: n.delivered.Load(),
	}
}

// take removes the queued messages and returns those that aren't dropped.
func (n *Network) take() []broadcast.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := n.queue
	n.queue = nil

	// Nodes may send concurrently, so sort the queue to select the same
	// messages to drop given the same seed.
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Src != queue[j].Src {
			return queue[i].Src < queue[j].Src
		}
		if queue[i].Dest != queue[j].Dest {
			return queue[i].Dest < queue[j].Dest
		}
		return queue[i].MsgID < queue[j].MsgID
	})

	batch := make([]broadcast.Envelope, 0, len(queue))
	for _, env := range queue {
		if n.dropLocked(env) {
			n.dropped.Inc()
			continue
		}
		batch = append(batch, env)
	}
	return batch
}

func (n *Network) dropLocked(env broadcast.Envelope) bool {
	if _, ok := n.partitions[link{From: env.Src, To: env.Dest}]; ok {
		return true
	}
	if n.dropRate <= 0 {
		return false
	}
	return n.rand.Float64() < n.dropRate
}

var _ broadcast.Sender = &Network{}

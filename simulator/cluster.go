// Package simulator runs a cluster of broadcast nodes over an in-memory
// network with simulated message loss and a simulated clock.
package simulator

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
)

const clientID = "c1"

func defaultConfig() *broadcast.Config {
	return &broadcast.Config{
		Interval:        time.Millisecond * 100,
		RetryTimeout:    time.Millisecond * 300,
		MaxRetryTimeout: time.Second,
	}
}

// Cluster is a simulated cluster of broadcast nodes.
//
// Time only advances when Step is called, which runs a gossip round and
// retry round on every node then delivers the sent messages.
type Cluster struct {
	id string

	nodes   []*broadcast.Node
	network *Network

	// broadcasts contains every value broadcast to the cluster.
	broadcasts map[broadcast.Value]struct{}

	now time.Time

	msgID uint64

	// mu protects the above fields.
	mu sync.Mutex

	config *broadcast.Config

	logger log.Logger
}

// NewCluster creates a cluster with n nodes, with IDs 'n1' to 'nN'.
func NewCluster(n int, opts ...Option) *Cluster {
	options := options{
		config:   defaultConfig(),
		topology: FullMesh,
		seed:     1,
		logger:   log.NewNopLogger(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	id := uuid.New().String()
	logger := options.logger.WithSubsystem("simulator").With(
		zap.String("cluster-id", id),
	)

	network := NewNetwork(options.dropRate, options.seed, logger)
	c := &Cluster{
		id:         id,
		network:    network,
		broadcasts: make(map[broadcast.Value]struct{}),
		// Use a fixed start time so runs with the same seed are
		// reproducible.
		now:    time.Unix(0, 0),
		config: options.config,
		logger: logger,
	}
	for i := 0; i != n; i++ {
		node := broadcast.New(
			"n"+strconv.Itoa(i+1), options.config, network, options.logger,
		)
		network.AddNode(node)
		c.nodes = append(c.nodes, node)
	}

	c.SetTopology(options.topology)

	logger.Info(
		"created cluster",
		zap.Int("nodes", n),
		zap.Float64("drop-rate", options.dropRate),
		zap.Int64("seed", options.seed),
	)

	return c
}

// ID returns a unique identifier for the cluster.
func (c *Cluster) ID() string {
	return c.id
}

func (c *Cluster) NodeIDs() []string {
	ids := make([]string, 0, len(c.nodes))
	for _, node := range c.nodes {
		ids = append(ids, node.ID())
	}
	return ids
}

func (c *Cluster) Node(id string) (*broadcast.Node, bool) {
	for _, node := range c.nodes {
		if node.ID() == id {
			return node, true
		}
	}
	return nil, false
}

func (c *Cluster) Network() *Network {
	return c.network
}

// SetTopology sends a topology message to every node.
func (c *Cluster) SetTopology(topology Topology) {
	graph := topology(c.NodeIDs())
	for _, node := range c.nodes {
		// Ignore the reply.
		_, _ = c.request(node, &broadcast.Topology{Topology: graph})
	}
}

// Broadcast sends a broadcast message with the given value to the node.
func (c *Cluster) Broadcast(nodeID string, v broadcast.Value) error {
	node, ok := c.Node(nodeID)
	if !ok {
		return fmt.Errorf("unknown node: %s", nodeID)
	}

	c.mu.Lock()
	c.broadcasts[v] = struct{}{}
	c.mu.Unlock()

	reply, err := c.request(node, &broadcast.Broadcast{Message: v})
	if err != nil {
		return err
	}
	if _, ok := reply.Payload.(*broadcast.BroadcastOk); !ok {
		return fmt.Errorf("unexpected reply: %s", reply.Payload.Kind())
	}
	return nil
}

// Read sends a read message to the node and returns the values it replies
// with.
func (c *Cluster) Read(nodeID string) ([]broadcast.Value, error) {
	node, ok := c.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("unknown node: %s", nodeID)
	}

	reply, err := c.request(node, &broadcast.Read{})
	if err != nil {
		return nil, err
	}
	readOk, ok := reply.Payload.(*broadcast.ReadOk)
	if !ok {
		return nil, fmt.Errorf("unexpected reply: %s", reply.Payload.Kind())
	}
	return readOk.Messages, nil
}

// Step advances the simulated clock by the gossip interval, runs a gossip
// and retry round on every node, then delivers the sent messages.
//
// Returns the number of delivered messages.
func (c *Cluster) Step() int {
	c.mu.Lock()
	c.now = c.now.Add(c.config.Interval)
	now := c.now
	c.mu.Unlock()

	var group errgroup.Group
	for _, node := range c.nodes {
		group.Go(func() error {
			node.RetryRound(now)
			node.GossipRound(now)
			return nil
		})
	}
	// Rounds never fail.
	_ = group.Wait()

	return c.network.Deliver()
}

// Converged returns whether every node has every broadcast value.
func (c *Cluster) Converged() bool {
	c.mu.Lock()
	expected := make([]broadcast.Value, 0, len(c.broadcasts))
	for v := range c.broadcasts {
		expected = append(expected, v)
	}
	c.mu.Unlock()

	sort.Slice(expected, func(i, j int) bool {
		return expected[i] < expected[j]
	})

	for _, node := range c.nodes {
		values := node.Values()
		if len(values) != len(expected) {
			return false
		}
		for i := range values {
			if values[i] != expected[i] {
				return false
			}
		}
	}
	return true
}

// Pending returns the number of gossip messages awaiting acknowledgement
// across all nodes.
func (c *Cluster) Pending() int {
	pending := 0
	for _, node := range c.nodes {
		pending += len(node.Pending())
	}
	return pending
}

// Values returns the values of each node.
func (c *Cluster) Values() map[string][]broadcast.Value {
	values := make(map[string][]broadcast.Value, len(c.nodes))
	for _, node := range c.nodes {
		values[node.ID()] = node.Values()
	}
	return values
}

// RunUntilConverged steps the cluster until every node has every broadcast
// value. Returns the number of steps, or an error if the cluster hasn't
// converged after maxSteps.
func (c *Cluster) RunUntilConverged(maxSteps int) (int, error) {
	for step := 0; step <= maxSteps; step++ {
		if c.Converged() {
			c.logger.Info(
				"converged",
				zap.Int("steps", step),
				zap.Any("stats", c.network.Stats()),
			)
			return step, nil
		}
		if step < maxSteps {
			c.Step()
		}
	}
	return maxSteps, fmt.Errorf("not converged after %d steps", maxSteps)
}

// request sends a client request to the node and returns the reply.
// Client messages are never dropped.
func (c *Cluster) request(
	node *broadcast.Node,
	payload broadcast.Payload,
) (broadcast.Envelope, error) {
	c.mu.Lock()
	c.msgID++
	msgID := c.msgID
	c.mu.Unlock()

	node.Handle(broadcast.Envelope{
		Src:     clientID,
		Dest:    node.ID(),
		MsgID:   msgID,
		Payload: payload,
	})
	return c.network.Reply(clientID, msgID)
}

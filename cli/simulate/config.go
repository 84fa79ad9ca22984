package simulate

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
	"github.com/andydunstall/broadcast/simulator"
)

type Config struct {
	// Nodes is the number of nodes in the cluster.
	Nodes int `json:"nodes" yaml:"nodes"`

	// Topology is the name of the cluster topology.
	Topology string `json:"topology" yaml:"topology"`

	// DropRate is the probability of dropping each message between nodes.
	DropRate float64 `json:"drop_rate" yaml:"drop_rate"`

	Seed int64 `json:"seed" yaml:"seed"`

	// Values is the number of values to broadcast, spread across the nodes.
	Values int `json:"values" yaml:"values"`

	// MaxSteps is the maximum number of gossip rounds to run before giving
	// up.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	Broadcast broadcast.Config `json:"broadcast" yaml:"broadcast"`

	Log log.Config `json:"log" yaml:"log"`
}

func Default() *Config {
	return &Config{
		Nodes:    5,
		Topology: "full-mesh",
		Seed:     time.Now().UnixNano(),
		Values:   10,
		MaxSteps: 1000,
		Broadcast: broadcast.Config{
			Interval:        time.Millisecond * 100,
			RetryTimeout:    time.Millisecond * 300,
			MaxRetryTimeout: time.Second,
		},
		Log: log.Config{
			Level: "warn",
		},
	}
}

func (c *Config) Validate() error {
	if c.Nodes < 1 {
		return fmt.Errorf("invalid nodes: %d", c.Nodes)
	}
	if _, err := simulator.ParseTopology(c.Topology); err != nil {
		return err
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("invalid drop rate: %f", c.DropRate)
	}
	if c.Values < 0 {
		return fmt.Errorf("invalid values: %d", c.Values)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("invalid max steps: %d", c.MaxSteps)
	}
	if err := c.Broadcast.Validate(); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(
		&c.Nodes,
		"nodes",
		c.Nodes,
		`
The number of nodes in the cluster.`,
	)
	fs.StringVar(
		&c.Topology,
		"topology",
		c.Topology,
		`
The cluster topology. Either 'full-mesh', 'line', 'ring' or 'tree'.`,
	)
	fs.Float64Var(
		&c.DropRate,
		"drop-rate",
		c.DropRate,
		`
The probability of dropping each message between nodes, from 0 to 1.`,
	)
	fs.Int64Var(
		&c.Seed,
		"seed",
		c.Seed,
		`
The seed used to select dropped messages. Runs with the same seed and
configuration drop the same messages.`,
	)
	fs.IntVar(
		&c.Values,
		"values",
		c.Values,
		`
The number of values to broadcast. Values are broadcast to each node in
turn.`,
	)
	fs.IntVar(
		&c.MaxSteps,
		"max-steps",
		c.MaxSteps,
		`
The maximum number of gossip rounds to run before giving up.`,
	)

	c.Broadcast.RegisterFlags(fs, "broadcast")

	c.Log.RegisterFlags(fs)
}

package simulator

import (
	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
)

type options struct {
	config   *broadcast.Config
	topology Topology
	dropRate float64
	seed     int64
	logger   log.Logger
}

type configOption struct {
	Config *broadcast.Config
}

func (o configOption) apply(opts *options) {
	opts.config = o.Config
}

// WithConfig configures the gossip config of each node.
func WithConfig(config *broadcast.Config) Option {
	return configOption{Config: config}
}

type topologyOption struct {
	Topology Topology
}

func (o topologyOption) apply(opts *options) {
	opts.topology = o.Topology
}

// WithTopology configures the initial cluster topology. Defaults to a full
// mesh.
func WithTopology(topology Topology) Option {
	return topologyOption{Topology: topology}
}

type dropRateOption float64

func (o dropRateOption) apply(opts *options) {
	opts.dropRate = float64(o)
}

// WithDropRate configures the probability of dropping each message between
// nodes, from 0 to 1.
func WithDropRate(rate float64) Option {
	return dropRateOption(rate)
}

type seedOption int64

func (o seedOption) apply(opts *options) {
	opts.seed = int64(o)
}

// WithSeed configures the seed used to select dropped messages.
func WithSeed(seed int64) Option {
	return seedOption(seed)
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

// WithLogger configures the logger. Defaults to no output.
func WithLogger(logger log.Logger) Option {
	return loggerOption{Logger: logger}
}

type Option interface {
	apply(*options)
}

package broadcast

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// Interval is the rate to initiate a gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// RetryTimeout is the duration to wait for a gossip acknowledgement
	// before the gossip is retransmitted.
	RetryTimeout time.Duration `json:"retry_timeout" yaml:"retry_timeout"`

	// MaxRetryTimeout is the maximum duration to wait between
	// retransmissions. Retry timeouts double after each attempt up to
	// MaxRetryTimeout.
	MaxRetryTimeout time.Duration `json:"max_retry_timeout" yaml:"max_retry_timeout"`

	// MaxBatchSize is the maximum number of values to include in a gossip
	// message. Zero means no limit.
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Interval:        time.Millisecond * 200,
		RetryTimeout:    time.Second,
		MaxRetryTimeout: time.Second * 5,
		MaxBatchSize:    0,
	}
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.RetryTimeout <= 0 {
		return fmt.Errorf("missing retry timeout")
	}
	if c.MaxRetryTimeout != 0 && c.MaxRetryTimeout < c.RetryTimeout {
		return fmt.Errorf(
			"max retry timeout less than retry timeout: %s < %s",
			c.MaxRetryTimeout, c.RetryTimeout,
		)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("invalid max batch size: %d", c.MaxBatchSize)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "."

	fs.DurationVar(
		&c.Interval,
		prefix+"interval",
		c.Interval,
		`
The interval to initiate rounds of gossip.

Each gossip round sends every neighbor the values it isn't known to have.
The interval only affects how quickly values propagate, not whether they
propagate.`,
	)

	fs.DurationVar(
		&c.RetryTimeout,
		prefix+"retry-timeout",
		c.RetryTimeout,
		`
The duration to wait for a neighbor to acknowledge gossip before
retransmitting it.

Gossip is retried until it is acknowledged.`,
	)

	fs.DurationVar(
		&c.MaxRetryTimeout,
		prefix+"max-retry-timeout",
		c.MaxRetryTimeout,
		`
The maximum duration between retransmissions of unacknowledged gossip.

The retry timeout doubles after each retransmission up to this limit, so an
unreachable neighbor isn't flooded with retries.`,
	)

	fs.IntVar(
		&c.MaxBatchSize,
		prefix+"max-batch-size",
		c.MaxBatchSize,
		`
The maximum number of values to include in a gossip message.

If a neighbor is missing more values, the remaining values are sent in
later rounds. Zero means no limit.`,
	)
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
)

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP
	// connections. If empty the admin server is disabled.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

type Config struct {
	Broadcast broadcast.Config `json:"broadcast" yaml:"broadcast"`
	Admin     AdminConfig      `json:"admin" yaml:"admin"`
	Log       log.Config       `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node. During
	// the grace period the admin server waits for active requests to
	// complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		Broadcast: *broadcast.DefaultConfig(),
		Log: log.Config{
			Level: "info",
		},
		GracePeriod: time.Second * 10,
	}
}

func (c *Config) Validate() error {
	if err := c.Broadcast.Validate(); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Broadcast.RegisterFlags(fs, "broadcast")

	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		c.Admin.BindAddr,
		`
The host/port to listen for incoming admin connections.

The admin server exposes health, Prometheus metrics and status endpoints
for inspecting the node. By default the admin server is disabled.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :8002' will listen on '0.0.0.0:8002'`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node before terminating.`,
	)
}

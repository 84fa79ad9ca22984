package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/pkg/config"
	"github.com/andydunstall/broadcast/pkg/log"
	"github.com/andydunstall/broadcast/pkg/maelstrom"
	"github.com/andydunstall/broadcast/server"
	"github.com/andydunstall/broadcast/server/admin"
	serverconfig "github.com/andydunstall/broadcast/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a broadcast node",
		Long: `Start a broadcast node.

The node reads messages from stdin and writes messages to stdout, one JSON
message per line. The first message must be 'init', which assigns the node
its ID and the IDs of the other nodes in the cluster.

Clients send 'broadcast' messages to add a value and 'read' messages to
read every value the node knows. 'topology' messages configure the
neighbors the node gossips with.

Logs are written to stderr.

Examples:
  # Start a node.
  broadcast node

  # Start a node that gossips every 50ms.
  broadcast node --broadcast.interval 50ms

  # Start a node with an admin server on :8002 to inspect its status and
  # metrics.
  broadcast node --admin.bind-addr :8002

  # Load configuration from a YAML file.
  broadcast node --config.path ./node.yaml
`,
	}

	conf := serverconfig.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(configPath, conf, configExpandEnv); err != nil {
				fmt.Fprintf(os.Stderr, "load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *serverconfig.Config, logger log.Logger) error {
	logger.Info("starting broadcast node", zap.Any("conf", conf))

	registry := prometheus.NewRegistry()

	transport := maelstrom.NewTransport(os.Stdin, os.Stdout)
	transport.Metrics().Register(registry)

	srv := server.NewServer(transport, &conf.Broadcast, registry, logger)

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Node.
	serveCtx, serveCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		if err := srv.Serve(serveCtx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}, func(error) {
		serveCancel()
	})

	// Admin server.
	if conf.Admin.BindAddr != "" {
		adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
		if err != nil {
			return fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
		}
		adminServer := admin.NewServer(registry, logger)
		adminServer.AddStatus("/broadcast", server.NewStatus(srv))

		group.Add(func() error {
			if err := adminServer.Serve(adminLn); err != nil {
				return fmt.Errorf("admin server serve: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				conf.GracePeriod,
			)
			defer cancel()

			if err := adminServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
			}

			logger.Info("admin server shut down")
		})
	}

	if err := group.Run(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}

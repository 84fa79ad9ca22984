package simulate

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
	"github.com/andydunstall/broadcast/simulator"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "simulate a broadcast cluster",
		Long: `Simulate a broadcast cluster.

Runs a cluster of broadcast nodes in-process, connected by a simulated
network that drops messages. Values are broadcast to the nodes, then gossip
rounds run until every node has every value.

The output contains the number of gossip rounds until the cluster
converged and the number of messages sent, dropped and delivered.

Examples:
  # Simulate a 5 node cluster.
  broadcast simulate

  # Simulate a 25 node tree cluster dropping 30% of messages.
  broadcast simulate --nodes 25 --topology tree --drop-rate 0.3

  # Simulate with a fixed seed to reproduce a run.
  broadcast simulate --drop-rate 0.1 --seed 42
`,
	}

	conf := Default()
	conf.RegisterFlags(cmd.Flags())

	var showValues bool
	cmd.Flags().BoolVar(
		&showValues,
		"show-values",
		false,
		`
Whether to include each node's values in the output.`,
	)

	cmd.Run = func(_ *cobra.Command, _ []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		output, err := run(conf, logger)
		if output == nil {
			fmt.Printf("failed to run simulation: %s\n", err.Error())
			os.Exit(1)
		}

		if !showValues {
			output.Values = nil
		}
		b, _ := yaml.Marshal(output)
		fmt.Print(string(b))

		if err != nil {
			fmt.Printf("simulation failed: %s\n", err.Error())
			os.Exit(1)
		}
	}

	return cmd
}

type simulateOutput struct {
	ClusterID string                       `json:"cluster_id"`
	Config    *Config                      `json:"config"`
	Converged bool                         `json:"converged"`
	Steps     int                          `json:"steps"`
	Pending   int                          `json:"pending"`
	Stats     simulator.Stats              `json:"stats"`
	Values    map[string][]broadcast.Value `json:"values,omitempty"`
}

func run(conf *Config, logger log.Logger) (*simulateOutput, error) {
	// Already validated.
	topology, _ := simulator.ParseTopology(conf.Topology)

	cluster := simulator.NewCluster(
		conf.Nodes,
		simulator.WithConfig(&conf.Broadcast),
		simulator.WithTopology(topology),
		simulator.WithDropRate(conf.DropRate),
		simulator.WithSeed(conf.Seed),
		simulator.WithLogger(logger),
	)

	nodeIDs := cluster.NodeIDs()
	for i := 0; i != conf.Values; i++ {
		nodeID := nodeIDs[i%len(nodeIDs)]
		if err := cluster.Broadcast(nodeID, broadcast.Value(i)); err != nil {
			return nil, fmt.Errorf("broadcast: %s: %w", nodeID, err)
		}
	}

	steps, err := cluster.RunUntilConverged(conf.MaxSteps)
	return &simulateOutput{
		ClusterID: cluster.ID(),
		Config:    conf,
		Converged: err == nil,
		Steps:     steps,
		Pending:   cluster.Pending(),
		Stats:     cluster.Network().Stats(),
		Values:    cluster.Values(),
	}, err
}

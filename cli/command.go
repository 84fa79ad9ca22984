package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/broadcast/cli/node"
	"github.com/andydunstall/broadcast/cli/simulate"
	"github.com/andydunstall/broadcast/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "broadcast [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Broadcast is a fault tolerant broadcast node.

Clients broadcast integer values to any node, and every node eventually
learns every broadcast value, even if the network drops messages. Nodes
propagate values to their neighbors using gossip, tracking which values
each neighbor is known to have so only missing values are sent.

Nodes communicate using newline delimited JSON messages on stdin and stdout,
so can run under a test harness that routes messages between nodes.

Start a node with:

  $ broadcast node

You can also inspect the status of a node using:

  $ broadcast status

To see how a cluster converges with message loss, run a simulated cluster:

  $ broadcast simulate --nodes 5 --drop-rate 0.2
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(simulate.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}

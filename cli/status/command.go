package status

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/broadcast/server/status/client"
	"github.com/andydunstall/broadcast/server/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each broadcast node started with '--admin.bind-addr' exposes a status API to
inspect the state of the node, this can be used to answer questions such as:
* What values does the node have?
* Which values is each neighbor known to have?
* What gossip is awaiting acknowledgement?

See 'status --help' for the availale commands.

Examples:
  # Inspect the values of the node.
  broadcast status values

  # Inspect the neighbors of node 10.26.104.56:8002.
  broadcast status neighbors --server.url http://10.26.104.56:8002
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.PersistentFlags())

	c := client.NewClient(nil)

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		url, _ := url.Parse(conf.Server.URL)
		c.SetURL(url)
	}

	b := client.NewBroadcast(c)

	cmd.AddCommand(newNodeCommand(b))
	cmd.AddCommand(newValuesCommand(b))
	cmd.AddCommand(newNeighborsCommand(b))
	cmd.AddCommand(newPendingCommand(b))

	return cmd
}

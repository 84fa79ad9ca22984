package status

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/server/status/client"
)

func newNodeCommand(c *client.Broadcast) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "inspect the node",
		Long: `Inspect the node.

Queries the node for its ID, the IDs of the nodes in the cluster and the
number of values it has.

Examples:
  broadcast status node
`,
	}

	cmd.Run = func(_ *cobra.Command, _ []string) {
		node, err := c.Node()
		if err != nil {
			fmt.Printf("failed to get node: %s\n", err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(node)
		fmt.Print(string(b))
	}

	return cmd
}

type valuesOutput struct {
	Values []broadcast.Value `json:"values"`
}

func newValuesCommand(c *client.Broadcast) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "values",
		Short: "inspect node values",
		Long: `Inspect node values.

Queries the node for every value it has, which is the same as the values
returned by a 'read' request.

Examples:
  broadcast status values
`,
	}

	cmd.Run = func(_ *cobra.Command, _ []string) {
		values, err := c.Values()
		if err != nil {
			fmt.Printf("failed to get values: %s\n", err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(valuesOutput{
			Values: values,
		})
		fmt.Print(string(b))
	}

	return cmd
}

type neighborsOutput struct {
	Neighbors []broadcast.NeighborStatus `json:"neighbors"`
}

func newNeighborsCommand(c *client.Broadcast) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors [id]",
		Args:  cobra.MaximumNArgs(1),
		Short: "inspect node neighbors",
		Long: `Inspect node neighbors.

Queries the node for its neighbors, and the number of values each neighbor
is known and not known to have.

If a neighbor ID is given, outputs the values that neighbor is known to
have.

Examples:
  # Inspect all neighbors.
  broadcast status neighbors

  # Inspect the values known by neighbor n2.
  broadcast status neighbors n2
`,
	}

	cmd.Run = func(_ *cobra.Command, args []string) {
		if len(args) == 1 {
			values, err := c.Neighbor(args[0])
			if err != nil {
				fmt.Printf("failed to get neighbor: %s\n", err.Error())
				os.Exit(1)
			}

			b, _ := yaml.Marshal(valuesOutput{
				Values: values,
			})
			fmt.Print(string(b))
			return
		}

		neighbors, err := c.Neighbors()
		if err != nil {
			fmt.Printf("failed to get neighbors: %s\n", err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(neighborsOutput{
			Neighbors: neighbors,
		})
		fmt.Print(string(b))
	}

	return cmd
}

type pendingOutput struct {
	Pending []broadcast.PendingRequest `json:"pending"`
}

func newPendingCommand(c *client.Broadcast) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "inspect pending gossip",
		Long: `Inspect pending gossip.

Queries the node for the gossip messages it has sent that haven't yet been
acknowledged, including the number of times each has been retried.

Examples:
  broadcast status pending
`,
	}

	var neighbor string
	cmd.Flags().StringVar(
		&neighbor,
		"neighbor",
		"",
		`
Filter by neighbor ID.`,
	)

	cmd.Run = func(_ *cobra.Command, _ []string) {
		pending, err := c.Pending()
		if err != nil {
			fmt.Printf("failed to get pending: %s\n", err.Error())
			os.Exit(1)
		}

		var filtered []broadcast.PendingRequest
		for _, req := range pending {
			if neighbor != "" && req.Neighbor != neighbor {
				continue
			}
			filtered = append(filtered, req)
		}

		b, _ := yaml.Marshal(pendingOutput{
			Pending: filtered,
		})
		fmt.Print(string(b))
	}

	return cmd
}

package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/server"
)

type Broadcast struct {
	client *Client
}

func NewBroadcast(client *Client) *Broadcast {
	return &Broadcast{
		client: client,
	}
}

func (b *Broadcast) Node() (*server.NodeStatus, error) {
	var node server.NodeStatus
	if err := b.get("/status/broadcast/node", &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (b *Broadcast) Values() ([]broadcast.Value, error) {
	var values []broadcast.Value
	if err := b.get("/status/broadcast/values", &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (b *Broadcast) Neighbors() ([]broadcast.NeighborStatus, error) {
	var neighbors []broadcast.NeighborStatus
	if err := b.get("/status/broadcast/neighbors", &neighbors); err != nil {
		return nil, err
	}
	return neighbors, nil
}

// Neighbor returns the values the neighbor is known to have.
func (b *Broadcast) Neighbor(id string) ([]broadcast.Value, error) {
	var values []broadcast.Value
	if err := b.get("/status/broadcast/neighbors/"+id, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (b *Broadcast) Pending() ([]broadcast.PendingRequest, error) {
	var pending []broadcast.PendingRequest
	if err := b.get("/status/broadcast/pending", &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (b *Broadcast) get(path string, v interface{}) error {
	r, err := b.client.Request(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

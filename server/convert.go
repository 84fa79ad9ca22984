package server

import (
	"fmt"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/maelstrom"
)

// toEnvelope converts an inbound message to an envelope. Returns an error
// if a required field is missing.
func toEnvelope(msg maelstrom.Message) (broadcast.Envelope, error) {
	env := broadcast.Envelope{
		Src:       msg.Src,
		Dest:      msg.Dest,
		MsgID:     msg.Body.MsgID,
		InReplyTo: msg.Body.InReplyTo,
	}

	switch broadcast.Kind(msg.Body.Type) {
	case broadcast.KindBroadcast:
		if msg.Body.Message == nil {
			return broadcast.Envelope{}, fmt.Errorf("broadcast: missing message")
		}
		env.Payload = &broadcast.Broadcast{
			Message: broadcast.Value(*msg.Body.Message),
		}
	case broadcast.KindBroadcastOk:
		env.Payload = &broadcast.BroadcastOk{}
	case broadcast.KindRead:
		env.Payload = &broadcast.Read{}
	case broadcast.KindReadOk:
		env.Payload = &broadcast.ReadOk{
			Messages: toValues(msg.Body.Messages),
		}
	case broadcast.KindTopology:
		env.Payload = &broadcast.Topology{
			Topology: msg.Body.Topology,
		}
	case broadcast.KindTopologyOk:
		env.Payload = &broadcast.TopologyOk{}
	case broadcast.KindGossip:
		env.Payload = &broadcast.Gossip{
			Seen: toValues(msg.Body.Seen),
		}
	case broadcast.KindGossipOk:
		if msg.Body.InReplyTo == 0 {
			return broadcast.Envelope{}, fmt.Errorf("gossip_ok: missing in_reply_to")
		}
		env.Payload = &broadcast.GossipOk{}
	case broadcast.KindError:
		env.Payload = &broadcast.Error{
			Code: msg.Body.Code,
			Text: msg.Body.Text,
		}
	default:
		env.Payload = &broadcast.Unknown{
			Type: msg.Body.Type,
		}
	}
	return env, nil
}

// toOutbound converts an envelope to an outbound message.
func toOutbound(env broadcast.Envelope) maelstrom.OutboundMessage {
	msg := maelstrom.OutboundMessage{
		Src:       env.Src,
		Dest:      env.Dest,
		Type:      string(env.Payload.Kind()),
		MsgID:     env.MsgID,
		InReplyTo: env.InReplyTo,
	}

	switch p := env.Payload.(type) {
	case *broadcast.Broadcast:
		msg.Fields = maelstrom.Fields{
			"message": int64(p.Message),
		}
	case *broadcast.ReadOk:
		msg.Fields = maelstrom.Fields{
			"messages": fromValues(p.Messages),
		}
	case *broadcast.Topology:
		msg.Fields = maelstrom.Fields{
			"topology": p.Topology,
		}
	case *broadcast.Gossip:
		msg.Fields = maelstrom.Fields{
			"seen": fromValues(p.Seen),
		}
	case *broadcast.Error:
		msg.Fields = maelstrom.Fields{
			"code": p.Code,
			"text": p.Text,
		}
	}
	return msg
}

func toValues(values []int64) []broadcast.Value {
	converted := make([]broadcast.Value, 0, len(values))
	for _, v := range values {
		converted = append(converted, broadcast.Value(v))
	}
	return converted
}

// fromValues converts values to wire values. Always returns a non-nil
// slice so empty sets are encoded as '[]' rather than 'null'.
func fromValues(values []broadcast.Value) []int64 {
	converted := make([]int64, 0, len(values))
	for _, v := range values {
		converted = append(converted, int64(v))
	}
	return converted
}

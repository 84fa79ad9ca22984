package broadcast

// Value is a broadcast value. Values are compared by equality only, the set
// of values known to a node has no order.
type Value int64

// Kind is the wire type of a message payload.
type Kind string

const (
	KindBroadcast   Kind = "broadcast"
	KindBroadcastOk Kind = "broadcast_ok"
	KindRead        Kind = "read"
	KindReadOk      Kind = "read_ok"
	KindTopology    Kind = "topology"
	KindTopologyOk  Kind = "topology_ok"
	KindGossip      Kind = "gossip"
	KindGossipOk    Kind = "gossip_ok"
	KindError       Kind = "error"
)

// Payload is the body of a message. The set of payloads is closed, each
// payload is one of the types below.
type Payload interface {
	Kind() Kind
}

// Broadcast requests the node stores the given value.
type Broadcast struct {
	Message Value
}

func (p *Broadcast) Kind() Kind {
	return KindBroadcast
}

type BroadcastOk struct {
}

func (p *BroadcastOk) Kind() Kind {
	return KindBroadcastOk
}

// Read requests the values known to the node.
type Read struct {
}

func (p *Read) Kind() Kind {
	return KindRead
}

type ReadOk struct {
	Messages []Value
}

func (p *ReadOk) Kind() Kind {
	return KindReadOk
}

// Topology contains the cluster topology, mapping each node ID to the IDs of
// the nodes it may gossip with.
type Topology struct {
	Topology map[string][]string
}

func (p *Topology) Kind() Kind {
	return KindTopology
}

type TopologyOk struct {
}

func (p *TopologyOk) Kind() Kind {
	return KindTopologyOk
}

// Gossip contains values sent by a neighbor.
type Gossip struct {
	Seen []Value
}

func (p *Gossip) Kind() Kind {
	return KindGossip
}

// GossipOk acknowledges a gossip message. It has no fields, the gossip is
// identified by the envelopes InReplyTo.
type GossipOk struct {
}

func (p *GossipOk) Kind() Kind {
	return KindGossipOk
}

// Error is an error reply from another node or the client.
type Error struct {
	Code int
	Text string
}

func (p *Error) Kind() Kind {
	return KindError
}

// Unknown is a payload whose wire type isn't recognised.
type Unknown struct {
	Type string
}

func (p *Unknown) Kind() Kind {
	return Kind(p.Type)
}

// Envelope is a message sent between nodes and clients.
type Envelope struct {
	Src  string
	Dest string

	// MsgID is a unique identifier for the message from Src. Zero if the
	// message has no ID.
	MsgID uint64

	// InReplyTo contains the MsgID of the message this envelope replies to.
	// Zero if the message isn't a reply.
	InReplyTo uint64

	Payload Payload
}

var _ Payload = &Broadcast{}
var _ Payload = &BroadcastOk{}
var _ Payload = &Read{}
var _ Payload = &ReadOk{}
var _ Payload = &Topology{}
var _ Payload = &TopologyOk{}
var _ Payload = &Gossip{}
var _ Payload = &GossipOk{}
var _ Payload = &Error{}
var _ Payload = &Unknown{}

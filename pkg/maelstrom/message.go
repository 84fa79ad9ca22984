// Package maelstrom implements the line-delimited JSON message protocol
// nodes use to communicate with clients and each other.
//
// Each message is a single line of JSON containing the source and
// destination node IDs and a body, where the body 'type' identifies the
// payload.
package maelstrom

// Message is an inbound message.
type Message struct {
	Src  string `codec:"src"`
	Dest string `codec:"dest"`
	Body Body   `codec:"body"`
}

// Body contains the fields of every supported message type. Fields that
// aren't used by the message type are left as zero values.
type Body struct {
	Type      string `codec:"type"`
	MsgID     uint64 `codec:"msg_id"`
	InReplyTo uint64 `codec:"in_reply_to"`

	// init.
	NodeID  string   `codec:"node_id"`
	NodeIDs []string `codec:"node_ids"`

	// broadcast.
	Message *int64 `codec:"message"`

	// read_ok.
	Messages []int64 `codec:"messages"`

	// topology.
	Topology map[string][]string `codec:"topology"`

	// gossip.
	Seen []int64 `codec:"seen"`

	// error.
	Code int    `codec:"code"`
	Text string `codec:"text"`
}

// Fields contains the type specific fields of an outbound message body.
type Fields map[string]interface{}

// OutboundMessage is a message to send.
type OutboundMessage struct {
	Src  string
	Dest string

	Type string
	// MsgID is omitted from the body if zero.
	MsgID uint64
	// InReplyTo is omitted from the body if zero.
	InReplyTo uint64

	Fields Fields
}

func (m *OutboundMessage) wire() wireMessage {
	body := make(map[string]interface{}, len(m.Fields)+3)
	for k, v := range m.Fields {
		body[k] = v
	}
	body["type"] = m.Type
	if m.MsgID != 0 {
		body["msg_id"] = m.MsgID
	}
	if m.InReplyTo != 0 {
		body["in_reply_to"] = m.InReplyTo
	}
	return wireMessage{
		Src:  m.Src,
		Dest: m.Dest,
		Body: body,
	}
}

type wireMessage struct {
	Src  string                 `codec:"src"`
	Dest string                 `codec:"dest"`
	Body map[string]interface{} `codec:"body"`
}

const (
	// ErrorCodeNotSupported indicates the requested operation isn't
	// supported.
	ErrorCodeNotSupported = 10
	// ErrorCodeMalformedRequest indicates the request was malformed.
	ErrorCodeMalformedRequest = 12
)

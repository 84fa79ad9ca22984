package broadcast

import (
	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/pkg/log"
)

// dispatcher handles inbound messages by payload kind.
type dispatcher struct {
	localID string

	store     *valueStore
	topology  *topologyView
	knowledge *knowledgeTracker
	retry     *retryManager

	nextMsgID func() uint64
	sender    Sender

	metrics *Metrics

	logger log.Logger
}

func newDispatcher(
	localID string,
	store *valueStore,
	topology *topologyView,
	knowledge *knowledgeTracker,
	retry *retryManager,
	nextMsgID func() uint64,
	sender Sender,
	metrics *Metrics,
	logger log.Logger,
) *dispatcher {
	return &dispatcher{
		localID:   localID,
		store:     store,
		topology:  topology,
		knowledge: knowledge,
		retry:     retry,
		nextMsgID: nextMsgID,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
	}
}

// Dispatch handles the inbound envelope. Unknown or unexpected payloads are
// logged and discarded.
func (d *dispatcher) Dispatch(env Envelope) {
	if env.Payload == nil {
		d.ignore(env, "missing payload")
		return
	}

	d.metrics.MessagesInbound.WithLabelValues(string(env.Payload.Kind())).Inc()

	switch p := env.Payload.(type) {
	case *Broadcast:
		if d.store.Insert(p.Message) {
			d.metrics.Values.Inc()
		}
		// Propagation happens in the next gossip round rather than
		// synchronously, so client latency doesn't depend on the number of
		// neighbors.
		d.reply(env, &BroadcastOk{})

	case *Read:
		d.reply(env, &ReadOk{
			Messages: d.store.Snapshot(),
		})

	case *Topology:
		d.topology.SetFromGraph(d.localID, p.Topology)
		d.logger.Info(
			"updated topology",
			zap.Strings("neighbors", d.topology.Neighbors()),
		)
		d.reply(env, &TopologyOk{})

	case *Gossip:
		added := d.store.Merge(p.Seen)
		d.metrics.Values.Add(float64(len(added)))
		// The sender knows every value it sent. This must happen after the
		// merge since only values in the local store are recorded.
		d.knowledge.MarkKnown(env.Src, p.Seen)

		if len(added) > 0 {
			d.logger.Debug(
				"merged gossip",
				zap.String("from", env.Src),
				zap.Int("added", len(added)),
			)
		}
		d.reply(env, &GossipOk{})

	case *GossipOk:
		d.retry.Ack(env.Src, env.InReplyTo)

	case *Error:
		d.logger.Warn(
			"error reply",
			zap.String("from", env.Src),
			zap.Uint64("in-reply-to", env.InReplyTo),
			zap.Int("code", p.Code),
			zap.String("text", p.Text),
		)

	case *BroadcastOk, *ReadOk, *TopologyOk:
		d.ignore(env, "unexpected reply")

	case *Unknown:
		d.ignore(env, "unknown payload")

	default:
		d.ignore(env, "unsupported payload")
	}
}

func (d *dispatcher) reply(req Envelope, payload Payload) {
	env := Envelope{
		Src:       d.localID,
		Dest:      req.Src,
		MsgID:     d.nextMsgID(),
		InReplyTo: req.MsgID,
		Payload:   payload,
	}
	if err := d.sender.Send(env); err != nil {
		d.metrics.SendErrors.Inc()
		d.logger.Debug(
			"failed to send reply",
			zap.String("dest", env.Dest),
			zap.String("kind", string(payload.Kind())),
			zap.Error(err),
		)
	}
}

func (d *dispatcher) ignore(env Envelope, reason string) {
	kind := "none"
	if env.Payload != nil {
		kind = string(env.Payload.Kind())
	}
	d.metrics.MessagesIgnored.WithLabelValues(kind).Inc()

	d.logger.Warn(
		"ignoring message",
		zap.String("src", env.Src),
		zap.String("kind", kind),
		zap.String("reason", reason),
	)
}

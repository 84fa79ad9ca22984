package broadcast

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Values is the number of values known to the node.
	Values prometheus.Gauge

	// MessagesInbound is the total number of inbound messages labelled by
	// kind.
	MessagesInbound *prometheus.CounterVec

	// MessagesIgnored is the total number of inbound messages that were
	// logged and discarded, labelled by kind.
	MessagesIgnored *prometheus.CounterVec

	// GossipOutbound is the total number of gossip messages sent, excluding
	// retransmissions.
	GossipOutbound prometheus.Counter

	// GossipValuesOutbound is the total number of values sent in gossip
	// messages, excluding retransmissions.
	GossipValuesOutbound prometheus.Counter

	// GossipRetries is the total number of gossip retransmissions.
	GossipRetries prometheus.Counter

	// GossipAcks is the total number of gossip acknowledgements that
	// matched a pending request.
	GossipAcks prometheus.Counter

	// GossipUnmatchedAcks is the total number of gossip acknowledgements
	// that didn't match a pending request, such as duplicate
	// acknowledgements.
	GossipUnmatchedAcks prometheus.Counter

	// PendingRequests is the number of gossip messages awaiting
	// acknowledgement.
	PendingRequests prometheus.Gauge

	// SendErrors is the total number of messages the transport failed to
	// send.
	SendErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Values: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "broadcast",
				Name:      "values",
				Help:      "Number of values known to the node",
			},
		),
		MessagesInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Name:      "messages_inbound_total",
				Help:      "Total number of inbound messages",
			},
			[]string{"kind"},
		),
		MessagesIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Name:      "messages_ignored_total",
				Help:      "Total number of inbound messages discarded",
			},
			[]string{"kind"},
		),
		GossipOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "outbound_total",
				Help:      "Total number of gossip messages sent",
			},
		),
		GossipValuesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "values_outbound_total",
				Help:      "Total number of values sent in gossip messages",
			},
		),
		GossipRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "retries_total",
				Help:      "Total number of gossip retransmissions",
			},
		),
		GossipAcks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "acks_total",
				Help:      "Total number of gossip acknowledgements",
			},
		),
		GossipUnmatchedAcks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "unmatched_acks_total",
				Help:      "Total number of unmatched gossip acknowledgements",
			},
		),
		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "broadcast",
				Subsystem: "gossip",
				Name:      "pending_requests",
				Help:      "Number of gossip messages awaiting acknowledgement",
			},
		),
		SendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Name:      "send_errors_total",
				Help:      "Total number of messages that failed to send",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.Values,
		m.MessagesInbound,
		m.MessagesIgnored,
		m.GossipOutbound,
		m.GossipValuesOutbound,
		m.GossipRetries,
		m.GossipAcks,
		m.GossipUnmatchedAcks,
		m.PendingRequests,
		m.SendErrors,
	)
}

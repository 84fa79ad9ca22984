package maelstrom

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ugorji/go/codec"
)

// ErrMalformed is returned by Recv when a line can't be decoded. The
// transport can still be used after a malformed message.
var ErrMalformed = errors.New("malformed message")

type Metrics struct {
	// BytesInbound is the total number of bytes read.
	BytesInbound prometheus.Counter

	// BytesOutbound is the total number of bytes written.
	BytesOutbound prometheus.Counter

	// MessagesMalformed is the total number of inbound lines that couldn't
	// be decoded.
	MessagesMalformed prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		BytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "transport",
				Name:      "bytes_inbound_total",
				Help:      "Total number of bytes read",
			},
		),
		BytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "transport",
				Name:      "bytes_outbound_total",
				Help:      "Total number of bytes written",
			},
		),
		MessagesMalformed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast",
				Subsystem: "transport",
				Name:      "messages_malformed_total",
				Help:      "Total number of inbound messages that couldn't be decoded",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.BytesInbound,
		m.BytesOutbound,
		m.MessagesMalformed,
	)
}

// Transport reads and writes newline delimited JSON messages.
//
// Recv must only be called from one goroutine, though Send may be called
// concurrently.
type Transport struct {
	r *bufio.Reader

	w io.Writer
	// mu protects writes to w so messages aren't interleaved.
	mu sync.Mutex

	handle *codec.JsonHandle

	metrics *Metrics
}

func NewTransport(r io.Reader, w io.Writer) *Transport {
	handle := &codec.JsonHandle{}
	// Sort map keys so output is deterministic.
	handle.Canonical = true
	return &Transport{
		r:       bufio.NewReader(r),
		w:       w,
		handle:  handle,
		metrics: newMetrics(),
	}
}

// Recv reads the next message. Blank lines are skipped.
//
// Returns io.EOF when the reader is closed. If a line can't be decoded
// returns an error wrapping ErrMalformed.
func (t *Transport) Recv() (Message, error) {
	for {
		line, err := t.r.ReadBytes('\n')
		t.metrics.BytesInbound.Add(float64(len(line)))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if errors.Is(err, io.EOF) {
				return Message{}, io.EOF
			}
			if err != nil {
				return Message{}, fmt.Errorf("read: %w", err)
			}
			continue
		}

		// If the last line isn't terminated by a newline, ReadBytes returns
		// the line with io.EOF, so decode the line before returning EOF on
		// the next call.
		if err != nil && !errors.Is(err, io.EOF) {
			return Message{}, fmt.Errorf("read: %w", err)
		}

		msg, decodeErr := t.decode(line)
		if decodeErr != nil {
			t.metrics.MessagesMalformed.Inc()
			return Message{}, decodeErr
		}
		return msg, nil
	}
}

// Send writes the message as a single line.
func (t *Transport) Send(msg OutboundMessage) error {
	b, err := t.encode(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.w.Write(b)
	t.metrics.BytesOutbound.Add(float64(n))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

func (t *Transport) decode(line []byte) (Message, error) {
	var msg Message
	dec := codec.NewDecoderBytes(line, t.handle)
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if msg.Body.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return msg, nil
}

func (t *Transport) encode(msg OutboundMessage) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, t.handle)
	if err := enc.Encode(msg.wire()); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return append(b, '\n'), nil
}

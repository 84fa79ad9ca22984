package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
	"github.com/andydunstall/broadcast/pkg/maelstrom"
)

// lineWriter sends each written line to a channel.
type lineWriter struct {
	buf   bytes.Buffer
	lines chan map[string]interface{}
	mu    sync.Mutex
}

func newLineWriter() *lineWriter {
	return &lineWriter{
		lines: make(chan map[string]interface{}, 1024),
	}
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(b)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Keep the incomplete line for the next write.
			w.buf.Write(line)
			return len(b), nil
		}
		var m map[string]interface{}
		if err := json.Unmarshal(line, &m); err != nil {
			return 0, err
		}
		w.lines <- m
	}
}

// Next returns the next line with the given body type, skipping other
// lines.
func (w *lineWriter) Next(t *testing.T, typ string) map[string]interface{} {
	timer := time.NewTimer(time.Second * 5)
	defer timer.Stop()

	for {
		select {
		case m := <-w.lines:
			if body(m)["type"] == typ {
				return m
			}
		case <-timer.C:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func body(m map[string]interface{}) map[string]interface{} {
	b, _ := m["body"].(map[string]interface{})
	return b
}

type testServer struct {
	server *Server
	in     *io.PipeWriter
	out    *lineWriter
	errCh  chan error
}

func newTestServer(t *testing.T, config *broadcast.Config) *testServer {
	r, w := io.Pipe()
	out := newLineWriter()

	server := NewServer(
		maelstrom.NewTransport(r, out),
		config,
		prometheus.NewRegistry(),
		log.NewNopLogger(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	s := &testServer{
		server: server,
		in:     w,
		out:    out,
		errCh:  errCh,
	}
	t.Cleanup(func() {
		w.Close()
	})
	return s
}

func (s *testServer) Write(t *testing.T, line string) {
	_, err := s.in.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func testConfig() *broadcast.Config {
	return &broadcast.Config{
		Interval:        time.Millisecond * 10,
		RetryTimeout:    time.Second * 10,
		MaxRetryTimeout: time.Second * 10,
	}
}

func TestServer_Init(t *testing.T) {
	t.Run("init ok", func(t *testing.T) {
		s := newTestServer(t, testConfig())

		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2","n3"]}}`)

		m := s.out.Next(t, "init_ok")
		assert.Equal(t, "n1", m["src"])
		assert.Equal(t, "c1", m["dest"])
		assert.Equal(t, float64(1), body(m)["in_reply_to"])
		_, ok := body(m)["msg_id"]
		assert.False(t, ok)

		node, ok := s.server.Node()
		require.True(t, ok)
		assert.Equal(t, "n1", node.ID())
		assert.Equal(t, []string{"n1", "n2", "n3"}, s.server.NodeIDs())
	})

	t.Run("discard before init", func(t *testing.T) {
		s := newTestServer(t, testConfig())

		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"read","msg_id":1}}`)
		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":2,"node_id":"n1","node_ids":["n1"]}}`)

		// The read is discarded so the first reply is init_ok.
		m := <-s.out.lines
		assert.Equal(t, "init_ok", body(m)["type"])
		assert.Equal(t, float64(2), body(m)["in_reply_to"])
	})

	t.Run("repeated init", func(t *testing.T) {
		s := newTestServer(t, testConfig())

		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`)
		s.out.Next(t, "init_ok")

		// An init with a different node ID is ignored.
		s.Write(t, `{"src":"c1","dest":"n2","body":{"type":"init","msg_id":2,"node_id":"n2","node_ids":["n2"]}}`)
		// An init with the same node ID is acknowledged again.
		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":3,"node_id":"n1","node_ids":["n1"]}}`)

		m := s.out.Next(t, "init_ok")
		assert.Equal(t, float64(3), body(m)["in_reply_to"])

		node, ok := s.server.Node()
		require.True(t, ok)
		assert.Equal(t, "n1", node.ID())
	})

	t.Run("missing node id", func(t *testing.T) {
		s := newTestServer(t, testConfig())

		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1}}`)
		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":2,"node_id":"n1","node_ids":["n1"]}}`)

		m := <-s.out.lines
		assert.Equal(t, float64(2), body(m)["in_reply_to"])
	})
}

func TestServer_Broadcast(t *testing.T) {
	s := newTestServer(t, testConfig())

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`)
	s.out.Next(t, "init_ok")

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":2,"topology":{"n1":[]}}}`)
	m := s.out.Next(t, "topology_ok")
	assert.Equal(t, float64(2), body(m)["in_reply_to"])

	// Malformed lines are skipped.
	s.Write(t, `{not json`)
	s.Write(t, `{"src":"c1","dest":"n1","body":{"msg_id":3}}`)

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":4,"message":5}}`)
	m = s.out.Next(t, "broadcast_ok")
	assert.Equal(t, "c1", m["dest"])
	assert.Equal(t, float64(4), body(m)["in_reply_to"])

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":5,"message":7}}`)
	s.out.Next(t, "broadcast_ok")

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"read","msg_id":6}}`)
	m = s.out.Next(t, "read_ok")
	assert.Equal(t, float64(6), body(m)["in_reply_to"])
	assert.Equal(t, []interface{}{float64(5), float64(7)}, body(m)["messages"])

	// Closing the input stops the server.
	s.in.Close()
	select {
	case err := <-s.errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for server to stop")
	}
}

func TestServer_Gossip(t *testing.T) {
	s := newTestServer(t, testConfig())

	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`)
	s.out.Next(t, "init_ok")
	s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":2,"topology":{"n1":["n2"],"n2":["n1"]}}}`)
	s.out.Next(t, "topology_ok")

	t.Run("gossip to neighbor", func(t *testing.T) {
		s.Write(t, `{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":3,"message":5}}`)
		s.out.Next(t, "broadcast_ok")

		m := s.out.Next(t, "gossip")
		assert.Equal(t, "n1", m["src"])
		assert.Equal(t, "n2", m["dest"])
		assert.Equal(t, []interface{}{float64(5)}, body(m)["seen"])

		msgID, ok := body(m)["msg_id"].(float64)
		require.True(t, ok)

		node, ok := s.server.Node()
		require.True(t, ok)
		assert.Len(t, node.Pending(), 1)

		ack, err := json.Marshal(map[string]interface{}{
			"src":  "n2",
			"dest": "n1",
			"body": map[string]interface{}{
				"type":        "gossip_ok",
				"in_reply_to": uint64(msgID),
			},
		})
		require.NoError(t, err)
		s.Write(t, string(ack))

		assert.Eventually(t, func() bool {
			return len(node.Pending()) == 0
		}, time.Second*5, time.Millisecond*10)
		assert.Equal(t, []broadcast.Value{5}, node.Known("n2"))
	})

	t.Run("gossip from neighbor", func(t *testing.T) {
		s.Write(t, `{"src":"n2","dest":"n1","body":{"type":"gossip","msg_id":10,"seen":[5,8]}}`)

		m := s.out.Next(t, "gossip_ok")
		assert.Equal(t, "n2", m["dest"])
		assert.Equal(t, float64(10), body(m)["in_reply_to"])

		node, ok := s.server.Node()
		require.True(t, ok)
		assert.Equal(t, []broadcast.Value{5, 8}, node.Values())
		assert.Equal(t, []broadcast.Value{5, 8}, node.Known("n2"))
	})
}

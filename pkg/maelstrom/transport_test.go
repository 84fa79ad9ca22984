package maelstrom

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Recv(t *testing.T) {
	t.Run("message types", func(t *testing.T) {
		input := strings.Join([]string{
			`{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`,
			`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":2,"message":5}}`,
			`{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":3,"topology":{"n1":["n2"],"n2":["n1"]}}}`,
			`{"src":"n2","dest":"n1","body":{"type":"gossip","msg_id":4,"seen":[1,2]}}`,
			`{"src":"n2","dest":"n1","body":{"type":"gossip_ok","msg_id":5,"in_reply_to":8}}`,
			`{"src":"n2","dest":"n1","body":{"type":"error","in_reply_to":9,"code":13,"text":"crashed"}}`,
		}, "\n")
		transport := NewTransport(strings.NewReader(input), io.Discard)

		msg, err := transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, Message{
			Src:  "c0",
			Dest: "n1",
			Body: Body{
				Type:    "init",
				MsgID:   1,
				NodeID:  "n1",
				NodeIDs: []string{"n1", "n2"},
			},
		}, msg)

		msg, err = transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, "broadcast", msg.Body.Type)
		require.NotNil(t, msg.Body.Message)
		assert.Equal(t, int64(5), *msg.Body.Message)

		msg, err = transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"n1": {"n2"},
			"n2": {"n1"},
		}, msg.Body.Topology)

		msg, err = transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, msg.Body.Seen)

		msg, err = transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, "gossip_ok", msg.Body.Type)
		assert.Equal(t, uint64(8), msg.Body.InReplyTo)

		msg, err = transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, 13, msg.Body.Code)
		assert.Equal(t, "crashed", msg.Body.Text)

		_, err = transport.Recv()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("skip blank lines", func(t *testing.T) {
		input := "\n\n" + `{"src":"c1","dest":"n1","body":{"type":"read","msg_id":1}}` + "\n\n"
		transport := NewTransport(strings.NewReader(input), io.Discard)

		msg, err := transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, "read", msg.Body.Type)

		_, err = transport.Recv()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("malformed", func(t *testing.T) {
		input := strings.Join([]string{
			`not json`,
			`{"src":"c1","dest":"n1","body":{"msg_id":1}}`,
			`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":2}}`,
		}, "\n")
		transport := NewTransport(strings.NewReader(input), io.Discard)

		_, err := transport.Recv()
		assert.True(t, errors.Is(err, ErrMalformed))

		// Missing type.
		_, err = transport.Recv()
		assert.True(t, errors.Is(err, ErrMalformed))

		// The transport recovers after a malformed message.
		msg, err := transport.Recv()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), msg.Body.MsgID)
	})
}

func decodeLines(t *testing.T, b []byte) []map[string]interface{} {
	var messages []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		messages = append(messages, m)
	}
	return messages
}

func TestTransport_Send(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		var buf bytes.Buffer
		transport := NewTransport(strings.NewReader(""), &buf)

		require.NoError(t, transport.Send(OutboundMessage{
			Src:       "n1",
			Dest:      "c1",
			Type:      "read_ok",
			MsgID:     3,
			InReplyTo: 2,
			Fields: Fields{
				"messages": []int64{1, 5},
			},
		}))

		messages := decodeLines(t, buf.Bytes())
		require.Len(t, messages, 1)
		assert.Equal(t, map[string]interface{}{
			"src":  "n1",
			"dest": "c1",
			"body": map[string]interface{}{
				"type":        "read_ok",
				"msg_id":      float64(3),
				"in_reply_to": float64(2),
				"messages":    []interface{}{float64(1), float64(5)},
			},
		}, messages[0])
	})

	t.Run("omit zero ids", func(t *testing.T) {
		var buf bytes.Buffer
		transport := NewTransport(strings.NewReader(""), &buf)

		require.NoError(t, transport.Send(OutboundMessage{
			Src:  "n1",
			Dest: "c1",
			Type: "broadcast_ok",
		}))

		messages := decodeLines(t, buf.Bytes())
		require.Len(t, messages, 1)
		assert.Equal(t, map[string]interface{}{
			"type": "broadcast_ok",
		}, messages[0]["body"])
	})

	t.Run("concurrent", func(t *testing.T) {
		var buf bytes.Buffer
		transport := NewTransport(strings.NewReader(""), &buf)

		var wg sync.WaitGroup
		for i := 0; i != 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, transport.Send(OutboundMessage{
					Src:    "n1",
					Dest:   "n2",
					Type:   "gossip",
					MsgID:  uint64(i + 1),
					Fields: Fields{"seen": []int64{int64(i)}},
				}))
			}(i)
		}
		wg.Wait()

		// Each message is written as a complete line.
		assert.Len(t, decodeLines(t, buf.Bytes()), 10)
	})
}

func TestTransport_SendRecv(t *testing.T) {
	var buf bytes.Buffer
	sender := NewTransport(strings.NewReader(""), &buf)

	require.NoError(t, sender.Send(OutboundMessage{
		Src:   "n1",
		Dest:  "n2",
		Type:  "gossip",
		MsgID: 7,
		Fields: Fields{
			"seen": []int64{3, 4},
		},
	}))

	receiver := NewTransport(&buf, io.Discard)
	msg, err := receiver.Recv()
	require.NoError(t, err)
	assert.Equal(t, Message{
		Src:  "n1",
		Dest: "n2",
		Body: Body{
			Type:  "gossip",
			MsgID: 7,
			Seen:  []int64{3, 4},
		},
	}, msg)
}

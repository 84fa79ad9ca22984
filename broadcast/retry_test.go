package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryManager_Send(t *testing.T) {
	sender := &fakeSender{}
	store := newValueStore()
	store.Merge([]Value{5, 7})
	m := testRetryManager(sender, store)

	now := time.Unix(1000, 0)
	msgID := m.Send("n2", []Value{5, 7}, now)

	sent := sender.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, Envelope{
		Src:   "n1",
		Dest:  "n2",
		MsgID: msgID,
		Payload: &Gossip{
			Seen: []Value{5, 7},
		},
	}, sent[0])

	pending := m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, msgID, pending[0].MsgID)
	assert.Equal(t, "n2", pending[0].Neighbor)
	assert.Equal(t, []Value{5, 7}, pending[0].Values)
	assert.Equal(t, 0, pending[0].Retries)
	assert.Equal(t, now, pending[0].SentAt)

	assert.Equal(t, map[Value]struct{}{5: {}, 7: {}}, m.InFlight("n2"))
	assert.Empty(t, m.InFlight("n3"))
}

func TestRetryManager_Ack(t *testing.T) {
	t.Run("ack", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Merge([]Value{5, 7})
		m := testRetryManager(sender, store)

		msgID := m.Send("n2", []Value{5, 7}, time.Unix(1000, 0))
		assert.True(t, m.Ack("n2", msgID))

		assert.Equal(t, 0, m.Len())
		assert.Empty(t, m.InFlight("n2"))
		assert.Equal(t, []Value{5, 7}, m.knowledge.Known("n2"))
	})

	t.Run("duplicate ack", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		msgID := m.Send("n2", []Value{5}, time.Unix(1000, 0))
		assert.True(t, m.Ack("n2", msgID))
		assert.False(t, m.Ack("n2", msgID))
	})

	t.Run("unknown msg id", func(t *testing.T) {
		sender := &fakeSender{}
		m := testRetryManager(sender, newValueStore())

		assert.False(t, m.Ack("n2", 100))
	})

	t.Run("wrong neighbor", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		msgID := m.Send("n2", []Value{5}, time.Unix(1000, 0))
		assert.False(t, m.Ack("n3", msgID))
		assert.Equal(t, 1, m.Len())
		assert.Empty(t, m.knowledge.Known("n3"))
	})

	t.Run("ack one of many", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Merge([]Value{1, 2, 3})
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		id1 := m.Send("n2", []Value{1, 2}, now)
		m.Send("n2", []Value{3}, now)

		assert.True(t, m.Ack("n2", id1))
		assert.Equal(t, map[Value]struct{}{3: {}}, m.InFlight("n2"))
		assert.Equal(t, []Value{1, 2}, m.knowledge.Known("n2"))
	})
}

func TestRetryManager_RetryDue(t *testing.T) {
	t.Run("retry same payload", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Merge([]Value{5})
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		msgID := m.Send("n2", []Value{5}, now)
		sender.Take()

		// New values don't change the retried payload.
		store.Insert(9)

		assert.Equal(t, 0, m.RetryDue(now.Add(time.Millisecond*500)))
		assert.Empty(t, sender.Take())

		// The retry timeout is 1s plus up to 10% jitter.
		assert.Equal(t, 1, m.RetryDue(now.Add(time.Millisecond*1200)))
		sent := sender.Take()
		require.Len(t, sent, 1)
		assert.Equal(t, Envelope{
			Src:   "n1",
			Dest:  "n2",
			MsgID: msgID,
			Payload: &Gossip{
				Seen: []Value{5},
			},
		}, sent[0])

		pending := m.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, 1, pending[0].Retries)
	})

	t.Run("backoff", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		m.Send("n2", []Value{5}, now)

		// First retry after ~1s.
		now = now.Add(time.Millisecond * 1200)
		assert.Equal(t, 1, m.RetryDue(now))
		// Second retry after ~2s.
		assert.Equal(t, 0, m.RetryDue(now.Add(time.Millisecond*1900)))
		now = now.Add(time.Millisecond * 2300)
		assert.Equal(t, 1, m.RetryDue(now))
		// Third retry after ~4s.
		assert.Equal(t, 0, m.RetryDue(now.Add(time.Millisecond*3900)))
		now = now.Add(time.Millisecond * 4500)
		assert.Equal(t, 1, m.RetryDue(now))
		// Capped at the max retry timeout of 4s.
		assert.Equal(t, 0, m.RetryDue(now.Add(time.Millisecond*3900)))
		assert.Equal(t, 1, m.RetryDue(now.Add(time.Millisecond*4500)))
	})

	t.Run("retry indefinitely", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		m.Send("n2", []Value{5}, now)

		for i := 0; i != 100; i++ {
			now = now.Add(time.Second * 5)
			assert.Equal(t, 1, m.RetryDue(now))
		}
		assert.Equal(t, 100, m.Pending()[0].Retries)
	})

	t.Run("no retry after ack", func(t *testing.T) {
		sender := &fakeSender{}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		msgID := m.Send("n2", []Value{5}, now)
		m.Ack("n2", msgID)

		assert.Equal(t, 0, m.RetryDue(now.Add(time.Minute)))
	})

	t.Run("send error", func(t *testing.T) {
		sender := &fakeSender{err: errSendFailed}
		store := newValueStore()
		store.Insert(5)
		m := testRetryManager(sender, store)

		now := time.Unix(1000, 0)
		m.Send("n2", []Value{5}, now)

		// Failed sends are retried the same as dropped messages.
		assert.Equal(t, 1, m.Len())
		assert.Equal(t, 1, m.RetryDue(now.Add(time.Second*2)))
	})
}

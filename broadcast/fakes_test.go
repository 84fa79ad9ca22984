package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/andydunstall/broadcast/pkg/log"
)

type fakeSender struct {
	sent []Envelope
	err  error

	mu sync.Mutex
}

func (s *fakeSender) Send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, env)
	return s.err
}

// Take returns the envelopes sent since the last call.
func (s *fakeSender) Take() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := s.sent
	s.sent = nil
	return sent
}

var _ Sender = &fakeSender{}

var errSendFailed = errors.New("send failed")

func testConfig() *Config {
	return &Config{
		Interval:        time.Millisecond * 100,
		RetryTimeout:    time.Second,
		MaxRetryTimeout: time.Second * 4,
	}
}

func testRetryManager(sender Sender, store *valueStore) *retryManager {
	var msgID uint64
	return newRetryManager(
		"n1",
		func() uint64 {
			msgID++
			return msgID
		},
		sender,
		newKnowledgeTracker(store),
		testConfig(),
		NewMetrics(),
		log.NewNopLogger(),
	)
}

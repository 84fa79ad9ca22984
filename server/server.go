package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/broadcast/broadcast"
	"github.com/andydunstall/broadcast/pkg/log"
	"github.com/andydunstall/broadcast/pkg/maelstrom"
)

const (
	typeInit   = "init"
	typeInitOk = "init_ok"
)

// Server runs a broadcast node over a message transport.
//
// The first message received must be 'init', which assigns the node its ID
// and the IDs of the other nodes in the cluster. Once initialized, every
// other message is passed to the broadcast node.
type Server struct {
	transport *maelstrom.Transport

	node    *broadcast.Node
	nodeIDs []string

	// mu protects the above fields.
	mu sync.Mutex

	config *broadcast.Config

	registry *prometheus.Registry

	logger log.Logger
}

func NewServer(
	transport *maelstrom.Transport,
	config *broadcast.Config,
	registry *prometheus.Registry,
	logger log.Logger,
) *Server {
	return &Server{
		transport: transport,
		config:    config,
		registry:  registry,
		logger:    logger.WithSubsystem("server"),
	}
}

// Serve reads messages from the transport until the transport is closed or
// the context is cancelled.
//
// Returns nil if the transport reached EOF.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	msgCh := make(chan maelstrom.Message)
	errCh := make(chan error, 1)
	// The receive goroutine may be blocked on a read when Serve returns, in
	// which case it exits when the transport is closed.
	go s.recv(ctx, msgCh, errCh)

	for {
		select {
		case msg := <-msgCh:
			if node := s.handle(msg); node != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					node.Run(ctx)
				}()
			}
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				s.logger.Info("transport closed")
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// Send sends the envelope to the transport.
func (s *Server) Send(env broadcast.Envelope) error {
	return s.transport.Send(toOutbound(env))
}

// Node returns the broadcast node, or false if the server hasn't been
// initialized.
func (s *Server) Node() (*broadcast.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.node, s.node != nil
}

// NodeIDs returns the IDs of every node in the cluster, including the local
// node.
func (s *Server) NodeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeIDs := make([]string, len(s.nodeIDs))
	copy(nodeIDs, s.nodeIDs)
	return nodeIDs
}

func (s *Server) recv(
	ctx context.Context,
	msgCh chan<- maelstrom.Message,
	errCh chan<- error,
) {
	for {
		msg, err := s.transport.Recv()
		if err != nil {
			if errors.Is(err, maelstrom.ErrMalformed) {
				s.logger.Warn("discarding malformed message", zap.Error(err))
				continue
			}
			errCh <- err
			return
		}

		select {
		case msgCh <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handle handles an inbound message. If the message initializes the server,
// the new broadcast node is returned.
func (s *Server) handle(msg maelstrom.Message) *broadcast.Node {
	if msg.Body.Type == typeInit {
		return s.init(msg)
	}

	node, ok := s.Node()
	if !ok {
		s.logger.Warn(
			"discarding message; not initialized",
			zap.String("src", msg.Src),
			zap.String("type", msg.Body.Type),
		)
		return nil
	}

	env, err := toEnvelope(msg)
	if err != nil {
		s.logger.Warn(
			"discarding invalid message",
			zap.String("src", msg.Src),
			zap.String("type", msg.Body.Type),
			zap.Error(err),
		)
		return nil
	}
	node.Handle(env)
	return nil
}

func (s *Server) init(msg maelstrom.Message) *broadcast.Node {
	if msg.Body.NodeID == "" {
		s.logger.Warn("discarding init; missing node id", zap.String("src", msg.Src))
		return nil
	}

	s.mu.Lock()
	var node *broadcast.Node
	if s.node == nil {
		node = broadcast.New(msg.Body.NodeID, s.config, s, s.logger)
		s.node = node
		s.nodeIDs = msg.Body.NodeIDs

		if s.registry != nil {
			node.Metrics().Register(s.registry)
		}

		s.logger.Info(
			"initialized node",
			zap.String("node-id", msg.Body.NodeID),
			zap.Strings("node-ids", msg.Body.NodeIDs),
		)
	} else if s.node.ID() != msg.Body.NodeID {
		s.logger.Warn(
			"discarding init; already initialized",
			zap.String("node-id", s.node.ID()),
			zap.String("requested-node-id", msg.Body.NodeID),
		)
		s.mu.Unlock()
		return nil
	}
	localID := s.node.ID()
	s.mu.Unlock()

	// A repeated init with the same ID is acknowledged again, since the
	// previous init_ok may have been lost.
	if err := s.transport.Send(maelstrom.OutboundMessage{
		Src:       localID,
		Dest:      msg.Src,
		Type:      typeInitOk,
		InReplyTo: msg.Body.MsgID,
	}); err != nil {
		s.logger.Warn("failed to send init_ok", zap.Error(err))
	}
	return node
}

var _ broadcast.Sender = &Server{}

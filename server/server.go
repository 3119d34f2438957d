// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// Package server implements the listener and dispatch loop accepting
// inbound RPCs (spec.md §4.6). Grounded on gnunet-go's service.Impl.Start
// (src/gnunet/service/service.go): a listener accept loop spawning one
// goroutine per connection, itself spawning one goroutine per session,
// each isolated by a deferred recover so one session's failure cannot
// take down the listener. The per-stream unit here is finer-grained than
// the teacher's per-connection session, since this substrate's channels
// (QUIC in particular) may multiplex many independent streams per
// connection (spec.md §4.6's "Ordering" note).
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/bfix/gospel/logger"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/builtinops"
	"github.com/ipiis/ipiis-go/client"
	"github.com/ipiis/ipiis-go/framing"
	"github.com/ipiis/ipiis-go/identitycert"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
	"github.com/ipiis/ipiis-go/transport"
)

// Server listens on one identity-bound address and dispatches inbound
// RPCs to a registry of operations. It holds a Client bound to the same
// account and routing table for outbound calls to its own primary
// (spec.md: "a server contains a client for outbound calls to its own
// primary").
type Server struct {
	self   *account.Account
	table  *routing.RoutingTable
	client *client.Client
	ops    map[framing.OpCode]*framing.Op
	spec   string

	mu       sync.Mutex
	listener transport.ChannelServer
}

// New constructs a Server for self, listening on "<transport>+0.0.0.0:port"
// (spec.md §4.6's `new(account, primary?, port)`). The six built-in
// routing-admin operations are registered automatically; additional
// operations may be added with RegisterOp before Run.
func New(self *account.Account, table *routing.RoutingTable, primary *account.AccountRef, primaryAddr netaddr.Address, transportName string, port uint16) *Server {
	s := &Server{
		self:   self,
		table:  table,
		client: client.New(self, table, primary, primaryAddr),
		ops:    map[framing.OpCode]*framing.Op{},
		spec:   fmt.Sprintf("%s+0.0.0.0:%d", transportName, port),
	}
	(&builtinops.Handlers{Table: table, Resolver: s.client}).Register(s.ops)
	return s
}

// Client returns the Server's internal Client, the same instance used to
// propagate self-signed writes to the configured primary.
func (s *Server) Client() *client.Client {
	return s.client
}

// RegisterOp adds or replaces an operation in the dispatch registry. Call
// before Run; the registry is read without locking once the accept loop
// starts.
func (s *Server) RegisterOp(op *framing.Op) {
	s.ops[op.Code] = op
}

// Run opens the listener and accepts connections until ctx is canceled
// or the listener is closed, spawning one goroutine per connection and,
// within it, one goroutine per accepted stream (spec.md §4.6's accept
// loop). It returns nil on clean shutdown (context cancellation or a
// closed listener) and a non-nil error if the listener itself could not
// be opened.
func (s *Server) Run(ctx context.Context) error {
	tlsConf, err := identitycert.ServerTLSConfig(s.self)
	if err != nil {
		return fmt.Errorf("server: tls config: %w", err)
	}
	listener, err := transport.Listen(s.spec, tlsConf)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.spec, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Printf(logger.INFO, "[server] listening on %s as %s\n", s.spec, s.self.Ref())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		ch, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Printf(logger.INFO, "[server] listener closing\n")
				return nil
			}
			logger.Printf(logger.WARN, "[server] accept: %s\n", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveChannel(ctx, ch)
		}()
	}
}

// serveChannel runs the per-connection stream-accept loop: every accepted
// stream is handled in its own goroutine, isolated from the others
// (spec.md §4.6's "Ordering": streams within a connection are
// independent).
func (s *Server) serveChannel(ctx context.Context, ch transport.Channel) {
	defer ch.Close()
	remote := ch.RemoteAddr()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		stream, err := ch.AcceptStream(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Printf(logger.INFO, "[server] connection from %s closed\n", remote)
			} else if ctx.Err() == nil {
				logger.Printf(logger.WARN, "[server] connection from %s: %s\n", remote, err)
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveStream(ctx, stream, remote)
		}()
	}
}

// serveStream dispatches exactly one opcode/request on stream and writes
// its reply, isolated by a deferred recover so a handler panic cannot
// take down the listener (spec.md §4.6's "Handler panics... must not take
// down the process").
func (s *Server) serveStream(ctx context.Context, stream transport.Stream, remote fmt.Stringer) {
	defer stream.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Printf(logger.ERROR, "[server] stream from %s panicked: %v\n", remote, r)
		}
	}()

	if err := framing.Serve(ctx, s.self, stream, s.ops); err != nil {
		logger.Printf(logger.WARN, "[server] stream from %s: %s\n", remote, err)
	}
}

// Addr returns the listener's bound address. Valid only after Run has
// opened the listener; used by tests and callers that bind to port 0 and
// need to learn the actual assigned port.
func (s *Server) Addr() (net.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil, false
	}
	return s.listener.Addr(), true
}

// Close stops accepting new connections; in-flight streams are left to
// finish or to observe the context passed to Run.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

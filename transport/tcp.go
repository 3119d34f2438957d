package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrNoMoreStreams is returned once a tcpChannel's single logical stream
// has already been handed out. TCP carries no native stream multiplexing,
// so each connection offers exactly one stream — the connection itself
// (spec.md §4.6's accept loop degrades to a single iteration per channel).
var ErrNoMoreStreams = errors.New("transport: tcp channel offers only one stream")

func dialTCP(ctx context.Context, addr string, tlsConf *tls.Config) (Channel, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, tlsConf)
	if err := conn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &tcpChannel{conn: conn}, nil
}

func listenTCP(addr string, tlsConf *tls.Config) (ChannelServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpServer{l: tls.NewListener(l, tlsConf)}, nil
}

// tcpChannel adapts a single TLS-over-TCP connection to the Channel
// contract: it offers exactly one stream, handed out by whichever side
// (Open or Accept) asks first.
type tcpChannel struct {
	conn net.Conn

	mu    sync.Mutex
	taken bool
}

func (c *tcpChannel) take() (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken {
		return nil, ErrNoMoreStreams
	}
	c.taken = true
	return c.conn, nil
}

func (c *tcpChannel) OpenStream(ctx context.Context) (Stream, error) {
	return c.take()
}

// AcceptStream hands out the connection's one stream on first call; every
// subsequent call reports io.EOF, ending the server's per-connection
// stream loop cleanly (spec.md §4.6).
func (c *tcpChannel) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.take()
	if errors.Is(err, ErrNoMoreStreams) {
		return nil, io.EOF
	}
	return s, err
}

func (c *tcpChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *tcpChannel) Close() error {
	return c.conn.Close()
}

type tcpServer struct {
	l net.Listener
}

func (s *tcpServer) Accept(ctx context.Context) (Channel, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.l.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if tc, ok := r.conn.(*tls.Conn); ok {
			if err := tc.HandshakeContext(ctx); err != nil {
				tc.Close()
				return nil, err
			}
		}
		return &tcpChannel{conn: r.conn}, nil
	}
}

func (s *tcpServer) Close() error {
	return s.l.Close()
}

func (s *tcpServer) Addr() net.Addr {
	return s.l.Addr()
}

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// maxIdleTimeout matches spec.md §5's "QUIC transport uses a max-idle
// timeout (approx 10s)".
const maxIdleTimeout = 10 * time.Second

func quicConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: maxIdleTimeout}
}

func dialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (Channel, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	return &quicChannel{conn: conn}, nil
}

func listenQUIC(addr string, tlsConf *tls.Config) (ChannelServer, error) {
	l, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	return &quicServer{l: l}, nil
}

// quicChannel adapts a quic.Connection (native per-connection stream
// multiplexing) to the Channel contract.
type quicChannel struct {
	conn quic.Connection
}

func (c *quicChannel) OpenStream(ctx context.Context) (Stream, error) {
	return c.conn.OpenStreamSync(ctx)
}

func (c *quicChannel) AcceptStream(ctx context.Context) (Stream, error) {
	return c.conn.AcceptStream(ctx)
}

func (c *quicChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *quicChannel) Close() error {
	return c.conn.CloseWithError(0, "")
}

type quicServer struct {
	l *quic.Listener
}

func (s *quicServer) Accept(ctx context.Context) (Channel, error) {
	conn, err := s.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &quicChannel{conn: conn}, nil
}

func (s *quicServer) Close() error {
	return s.l.Close()
}

func (s *quicServer) Addr() net.Addr {
	return s.l.Addr()
}

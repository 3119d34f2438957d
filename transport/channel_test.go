package transport_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/identitycert"
	"github.com/ipiis/ipiis-go/transport"
)

func mustAccount(t *testing.T) *account.Account {
	t.Helper()
	a, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	return a
}

func TestDialRejectsMalformedSpec(t *testing.T) {
	ctx := context.Background()
	if _, err := transport.Dial(ctx, "not-a-spec", nil); err == nil {
		t.Fatal("expected error for spec without transport+addr")
	}
	if _, err := transport.Listen("bogus+127.0.0.1:0", nil); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestTCPChannelRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := mustAccount(t)
	client := mustAccount(t)

	srvTLS, err := identitycert.ServerTLSConfig(server)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %s", err)
	}
	ln, err := transport.Listen("tcp+127.0.0.1:0", srvTLS)
	if err != nil {
		t.Fatalf("Listen: %s", err)
	}
	defer ln.Close()

	srvErr := make(chan error, 1)
	go func() {
		ch, err := ln.Accept(ctx)
		if err != nil {
			srvErr <- err
			return
		}
		defer ch.Close()
		s, err := ch.AcceptStream(ctx)
		if err != nil {
			srvErr <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(s, buf); err != nil {
			srvErr <- err
			return
		}
		if string(buf) != "hello" {
			srvErr <- fmt.Errorf("server got %q", buf)
			return
		}
		if _, err := s.Write([]byte("world")); err != nil {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	cliTLS, err := identitycert.ClientTLSConfig(client, server.Ref())
	if err != nil {
		t.Fatalf("ClientTLSConfig: %s", err)
	}
	ch, err := transport.Dial(ctx, "tcp+"+ln.Addr().String(), cliTLS)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer ch.Close()
	s, err := ch.OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream: %s", err)
	}
	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %s", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(s, buf); err != nil {
		t.Fatalf("client read: %s", err)
	}
	if string(buf) != "world" {
		t.Fatalf("client got %q", buf)
	}

	// A second stream request on the dialing side of the same TCP channel
	// must report that no more streams are available.
	if _, err := ch.OpenStream(ctx); err != transport.ErrNoMoreStreams {
		t.Fatalf("expected ErrNoMoreStreams, got %v", err)
	}

	if err := <-srvErr; err != nil {
		t.Fatalf("server: %s", err)
	}
}

func TestQUICChannelRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := mustAccount(t)
	client := mustAccount(t)

	srvTLS, err := identitycert.ServerTLSConfig(server)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %s", err)
	}
	srvTLS.NextProtos = []string{"ipiis-test"}
	ln, err := transport.Listen("quic+127.0.0.1:0", srvTLS)
	if err != nil {
		t.Fatalf("Listen: %s", err)
	}
	defer ln.Close()

	srvErr := make(chan error, 1)
	go func() {
		ch, err := ln.Accept(ctx)
		if err != nil {
			srvErr <- err
			return
		}
		defer ch.Close()
		s, err := ch.AcceptStream(ctx)
		if err != nil {
			srvErr <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(s, buf); err != nil {
			srvErr <- err
			return
		}
		if string(buf) != "hello" {
			srvErr <- fmt.Errorf("server got %q", buf)
			return
		}
		if _, err := s.Write([]byte("world")); err != nil {
			srvErr <- err
		}
		srvErr <- nil
	}()

	cliTLS, err := identitycert.ClientTLSConfig(client, server.Ref())
	if err != nil {
		t.Fatalf("ClientTLSConfig: %s", err)
	}
	cliTLS.NextProtos = []string{"ipiis-test"}
	ch, err := transport.Dial(ctx, "quic+"+ln.Addr().String(), cliTLS)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer ch.Close()
	s, err := ch.OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream: %s", err)
	}
	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %s", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(s, buf); err != nil {
		t.Fatalf("client read: %s", err)
	}
	if string(buf) != "world" {
		t.Fatalf("client got %q", buf)
	}
	if err := <-srvErr; err != nil {
		t.Fatalf("server: %s", err)
	}
}

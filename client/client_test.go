package client_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/builtinops"
	"github.com/ipiis/ipiis-go/client"
	"github.com/ipiis/ipiis-go/framing"
	"github.com/ipiis/ipiis-go/identitycert"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
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

func mustTable(t *testing.T, self account.AccountRef) *routing.RoutingTable {
	t.Helper()
	rt, err := routing.Open("memory", self)
	if err != nil {
		t.Fatalf("routing.Open: %s", err)
	}
	return rt
}

// servePeer starts a one-shot "primary" peer on a loopback TCP listener,
// serving the built-in routing-admin ops against table, and returns the
// address a Client should be configured with to reach it.
func servePeer(t *testing.T, self *account.Account, table *routing.RoutingTable) (netaddr.Address, func()) {
	t.Helper()
	tlsConf, err := identitycert.ServerTLSConfig(self)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %s", err)
	}
	srv, err := transport.Listen("tcp+127.0.0.1:0", tlsConf)
	if err != nil {
		t.Fatalf("transport.Listen: %s", err)
	}

	ops := map[framing.OpCode]*framing.Op{}
	resolver := client.New(self, table, nil, nil)
	(&builtinops.Handlers{Table: table, Resolver: resolver}).Register(ops)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			ch, err := srv.Accept(ctx)
			if err != nil {
				return
			}
			go func() {
				defer ch.Close()
				stream, err := ch.AcceptStream(ctx)
				if err != nil {
					return
				}
				framing.Serve(ctx, self, stream, ops)
			}()
		}
	}()

	tcpAddr := srv.Addr().(*net.TCPAddr)
	addr := netaddr.SocketAddress{Transport: "tcp", Host: "127.0.0.1", Port: uint16(tcpAddr.Port)}
	return addr, func() {
		cancel()
		srv.Close()
	}
}

func TestGetAddressLocalHit(t *testing.T) {
	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	c := client.New(self, table, nil, nil)

	who := mustAccount(t).Ref()
	addr, err := netaddr.ParseStringAddress("10.0.0.1:9000")
	if err != nil {
		t.Fatalf("ParseStringAddress: %s", err)
	}
	if err := table.Set(nil, who, addr); err != nil {
		t.Fatalf("Set: %s", err)
	}

	got, err := c.GetAddress(context.Background(), nil, who)
	if err != nil {
		t.Fatalf("GetAddress: %s", err)
	}
	if got.String() != addr.String() {
		t.Fatalf("got %s, want %s", got.String(), addr.String())
	}
}

func TestGetAddressRecursesThroughPrimary(t *testing.T) {
	primaryAcc := mustAccount(t)
	primaryTable := mustTable(t, primaryAcc.Ref())
	primaryAddr, stop := servePeer(t, primaryAcc, primaryTable)
	defer stop()

	target := mustAccount(t).Ref()
	targetAddr, err := netaddr.ParseStringAddress("10.0.0.2:9001")
	if err != nil {
		t.Fatalf("ParseStringAddress: %s", err)
	}
	if err := primaryTable.Set(nil, target, targetAddr); err != nil {
		t.Fatalf("Set on primary: %s", err)
	}

	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	primaryRef := primaryAcc.Ref()
	c := client.New(self, table, &primaryRef, primaryAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := c.GetAddress(ctx, nil, target)
	if err != nil {
		t.Fatalf("GetAddress: %s", err)
	}
	if got.String() != targetAddr.String() {
		t.Fatalf("got %s, want %s", got.String(), targetAddr.String())
	}

	// The reply must now be cached locally: a second call needs no network.
	stop()
	got2, err := table.Get(nil, target)
	if err != nil {
		t.Fatalf("expected cached entry, got error: %s", err)
	}
	if got2.String() != targetAddr.String() {
		t.Fatalf("cached %s, want %s", got2.String(), targetAddr.String())
	}
}

func TestGetAddressSelfIsRejected(t *testing.T) {
	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	c := client.New(self, table, nil, nil)

	_, err := c.GetAddress(context.Background(), nil, self.Ref())
	if !errors.Is(err, routing.ErrCannotAddressSelf) {
		t.Fatalf("got %v, want ErrCannotAddressSelf", err)
	}
}

func TestGetAddressNoPrimaryConfiguredFails(t *testing.T) {
	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	c := client.New(self, table, nil, nil)

	_, err := c.GetAddress(context.Background(), nil, mustAccount(t).Ref())
	if !errors.Is(err, client.ErrResolution) {
		t.Fatalf("got %v, want ErrResolution", err)
	}
}

func TestGetAccountPrimaryRecursesThroughPrimary(t *testing.T) {
	rootAcc := mustAccount(t)
	rootTable := mustTable(t, rootAcc.Ref())
	rootAddr, stop := servePeer(t, rootAcc, rootTable)
	defer stop()

	kind := account.HashOf([]byte("example-kind"))
	designated := mustAccount(t).Ref()
	if err := rootTable.SetPrimary(&kind, designated); err != nil {
		t.Fatalf("SetPrimary on root: %s", err)
	}

	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	rootRef := rootAcc.Ref()
	c := client.New(self, table, &rootRef, rootAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := c.GetAccountPrimary(ctx, &kind)
	if err != nil {
		t.Fatalf("GetAccountPrimary: %s", err)
	}
	if !got.Equals(designated) {
		t.Fatalf("got %s, want %s", got, designated)
	}
}

func TestSetAccountPrimaryPropagatesWhenSelfIsPrimary(t *testing.T) {
	self := mustAccount(t)
	table := mustTable(t, self.Ref())
	selfAddr, stop := servePeer(t, self, table)
	defer stop()

	selfRef := self.Ref()
	c := client.New(self, table, &selfRef, selfAddr)

	kind := account.HashOf([]byte("k"))
	who := mustAccount(t).Ref()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SetAccountPrimary(ctx, &kind, who); err != nil {
		t.Fatalf("SetAccountPrimary: %s", err)
	}

	got, err := table.GetPrimary(&kind)
	if err != nil {
		t.Fatalf("GetPrimary: %s", err)
	}
	if !got.Equals(who) {
		t.Fatalf("got %s, want %s", got, who)
	}
}

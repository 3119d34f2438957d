// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// Package client implements the identity-keyed RPC caller: recursive
// resolution through a configured primary, connection dialing, and
// outbound stream framing (spec.md §4.5). Grounded on gnunet-go's
// core.Core (src/gnunet/core/core.go), which likewise holds a routing
// table, dials a transport endpoint per outbound call, and has no
// connection pool — each call here dials fresh, matching the teacher and
// the "open question" spec.md §4.5 leaves unresolved.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/bfix/gospel/logger"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/identitycert"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
	"github.com/ipiis/ipiis-go/transport"
)

// ErrResolution reports that a lookup has no known address and no
// primary to ask (spec.md §7's ResolutionError).
var ErrResolution = errors.New("client: no known address and no primary to resolve through")

// Client is the identity-keyed RPC caller bound to one account. It shares
// a RoutingTable with the Server listening on the same account, if any
// (spec.md's "a server contains a client for outbound calls to its own
// primary").
type Client struct {
	self        *account.Account
	table       *routing.RoutingTable
	primary     *account.AccountRef
	primaryAddr netaddr.Address
}

// New builds a Client for self, backed by table. primary and primaryAddr
// are the bootstrap root-primary designation read from configuration
// (spec.md §6's `ipiis_account_primary`/`ipiis_account_primary_address`);
// both may be nil/zero when this account has no configured primary.
func New(self *account.Account, table *routing.RoutingTable, primary *account.AccountRef, primaryAddr netaddr.Address) *Client {
	c := &Client{self: self, table: table, primary: primary, primaryAddr: primaryAddr}
	c.seedPrimary()
	return c
}

// seedPrimary writes the configured bootstrap primary's designator and
// address into the routing table at construction, so that this peer can
// answer a downstream peer's GetAccountPrimary/GetAddress for its own
// primary from its local table instead of recursing into a self-address
// error (spec.md §8 scenario 1's three-hop N->E->C chain). Grounded on
// original_source/api/quic/src/native/client.rs's with_address_db_path,
// which seeds book.set_primary(None, primary) + book.set(None, primary,
// address) the same way. Skipped when self is its own primary: the table
// already refuses to hold an address for self (ErrCannotAddressSelf).
func (c *Client) seedPrimary() {
	if c.primary == nil || c.primaryAddr == nil || c.primary.Equals(c.self.Ref()) {
		return
	}
	if err := c.table.SetPrimary(nil, *c.primary); err != nil {
		logger.Printf(logger.WARN, "[client] seed primary designator: %s\n", err)
	}
	if err := c.table.Set(nil, *c.primary, c.primaryAddr); err != nil {
		logger.Printf(logger.WARN, "[client] seed primary address: %s\n", err)
	}
}

// resolvePrimaryTarget finds the account and address to contact for
// recursive resolution: the routing table's own unkinded primary
// designator if one has been learned, falling back to the
// configuration-provided primary on a cold start (spec.md §4.5's
// "look up get_primary(None)").
func (c *Client) resolvePrimaryTarget() (account.AccountRef, netaddr.Address, error) {
	ref, err := c.table.GetPrimary(nil)
	if err == nil {
		addr, aerr := c.table.Get(nil, ref)
		if aerr == nil {
			return ref, addr, nil
		}
		if c.primary != nil && c.primary.Equals(ref) && c.primaryAddr != nil {
			return ref, c.primaryAddr, nil
		}
		return account.AccountRef{}, nil, fmt.Errorf("client: address of configured primary %s: %w", ref, aerr)
	}
	if !errors.Is(err, routing.ErrNoPrimary) {
		return account.AccountRef{}, nil, err
	}
	if c.primary == nil || c.primaryAddr == nil {
		return account.AccountRef{}, nil, ErrResolution
	}
	return *c.primary, c.primaryAddr, nil
}

// dialSpecFor derives the "<transport>+<host:port>" spec transport.Dial
// expects from a resolved netaddr.Address. A bare free-form name binding
// carries no transport tag of its own, so it defaults to QUIC, the
// substrate's primary transport (spec.md §1/§6).
func dialSpecFor(addr netaddr.Address) (string, error) {
	switch a := addr.(type) {
	case netaddr.SocketAddress:
		return fmt.Sprintf("%s+%s:%d", a.Transport, a.Host, a.Port), nil
	case netaddr.StringAddress:
		return "quic+" + a.Raw, nil
	default:
		return "", fmt.Errorf("client: unrecognized address type %T", addr)
	}
}

// callStream closes both the opened stream and the channel it was opened
// on, since every call dials a fresh channel with exactly one stream of
// interest (no pooling).
type callStream struct {
	transport.Stream
	ch transport.Channel
}

func (cs *callStream) Close() error {
	err := cs.Stream.Close()
	if cerr := cs.ch.Close(); err == nil {
		err = cerr
	}
	return err
}

// dialTo opens a fresh authenticated channel to target at addr and
// returns one new stream on it, ready for opcode-specific encoding
// (spec.md §4.5's call_raw).
func (c *Client) dialTo(ctx context.Context, target account.AccountRef, addr netaddr.Address) (transport.Stream, error) {
	spec, err := dialSpecFor(addr)
	if err != nil {
		return nil, err
	}
	tlsConf, err := identitycert.ClientTLSConfig(c.self, target)
	if err != nil {
		return nil, fmt.Errorf("client: tls config for %s: %w", target, err)
	}
	ch, err := transport.Dial(ctx, spec, tlsConf)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s (%s): %w", target, spec, err)
	}
	stream, err := ch.OpenStream(ctx)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("client: open stream to %s: %w", target, err)
	}
	return &callStream{Stream: stream, ch: ch}, nil
}

// CallRaw opens a new authenticated bidirectional stream to target,
// resolving its address via the routing table (recursively through the
// primary if unknown). The caller encodes and decodes whatever
// opcode-specific traffic it needs on the returned stream (spec.md
// §4.5).
func (c *Client) CallRaw(ctx context.Context, kind *account.Hash, target account.AccountRef) (transport.Stream, error) {
	addr, err := c.GetAddress(ctx, kind, target)
	if err != nil {
		return nil, err
	}
	return c.dialTo(ctx, target, addr)
}

// propagateSelf runs fn against a fresh stream to the configured primary
// only when self is that very primary (spec.md §4.5: "if the caller is
// the root primary, also propagate the write upstream to itself").
// Grounded on original_source/api/common/src/book.rs, which reuses its
// normal remote-call path rather than a special local-only branch.
func (c *Client) propagateSelf(ctx context.Context, fn func(transport.Stream) error) error {
	if c.primary == nil || c.primaryAddr == nil || !c.primary.Equals(c.self.Ref()) {
		return nil
	}
	stream, err := c.dialTo(ctx, *c.primary, c.primaryAddr)
	if err != nil {
		logger.Printf(logger.WARN, "[client] propagate-self dial failed: %s\n", err)
		return err
	}
	defer stream.Close()
	return fn(stream)
}

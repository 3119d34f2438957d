package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/bfix/gospel/logger"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/builtinops"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
)

// GetAccountPrimary returns the account designated as primary for kind.
// A local miss with kind set recurses through the configured primary
// (spec.md §4.5); a local miss with kind nil has no upstream to ask.
func (c *Client) GetAccountPrimary(ctx context.Context, kind *account.Hash) (account.AccountRef, error) {
	ref, err := c.table.GetPrimary(kind)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, routing.ErrNoPrimary) {
		return account.AccountRef{}, err
	}
	if kind == nil {
		return account.AccountRef{}, fmt.Errorf("%w: no primary configured", ErrResolution)
	}

	rootRef, rootAddr, err := c.resolvePrimaryTarget()
	if err != nil {
		return account.AccountRef{}, err
	}
	stream, err := c.dialTo(ctx, rootRef, rootAddr)
	if err != nil {
		return account.AccountRef{}, err
	}
	defer stream.Close()

	reply, err := builtinops.CallGetAccountPrimary(ctx, stream, c.self, rootRef, kind)
	if err != nil {
		return account.AccountRef{}, err
	}
	who, err := account.NewAccountRef(reply.Account)
	if err != nil {
		return account.AccountRef{}, fmt.Errorf("client: decode GetAccountPrimary reply: %w", err)
	}
	if perr := c.table.SetPrimary(kind, who); perr != nil {
		logger.Printf(logger.WARN, "[client] cache primary for kind: %s\n", perr)
	}
	if reply.HasAddress != 0 && !who.Equals(c.self.Ref()) {
		if addr, aerr := netaddr.Parse(reply.Address); aerr == nil {
			if serr := c.table.Set(kind, who, addr); serr != nil {
				logger.Printf(logger.WARN, "[client] cache address from GetAccountPrimary reply: %s\n", serr)
			}
		}
	}
	return who, nil
}

// GetAddress returns the address on record for (kind, target), resolving
// through the configured primary on a local miss and caching the reply
// (spec.md §4.5).
func (c *Client) GetAddress(ctx context.Context, kind *account.Hash, target account.AccountRef) (netaddr.Address, error) {
	addr, err := c.table.Get(kind, target)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, routing.ErrNoAddress) {
		return nil, err
	}

	rootRef, rootAddr, rerr := c.resolvePrimaryTarget()
	if rerr != nil {
		return nil, rerr
	}
	stream, derr := c.dialTo(ctx, rootRef, rootAddr)
	if derr != nil {
		return nil, derr
	}
	defer stream.Close()

	remote, cerr := builtinops.CallGetAddress(ctx, stream, c.self, rootRef, kind, target)
	if cerr != nil {
		return nil, cerr
	}
	if serr := c.table.Set(kind, target, remote); serr != nil {
		logger.Printf(logger.WARN, "[client] cache address for %s: %s\n", target, serr)
	}
	return remote, nil
}

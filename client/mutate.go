package client

import (
	"context"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/builtinops"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/transport"
)

// SetAccountPrimary designates who as the primary for kind, writing
// locally and propagating to self when self is the configured root
// primary (spec.md §4.5).
func (c *Client) SetAccountPrimary(ctx context.Context, kind *account.Hash, who account.AccountRef) error {
	if err := c.table.SetPrimary(kind, who); err != nil {
		return err
	}
	return c.propagateSelf(ctx, func(stream transport.Stream) error {
		return builtinops.CallSetAccountPrimary(ctx, stream, c.self, *c.primary, kind, who)
	})
}

// DeleteAccountPrimary removes the primary designator for kind, writing
// locally and propagating to self when self is the configured root
// primary (spec.md §4.5).
func (c *Client) DeleteAccountPrimary(ctx context.Context, kind *account.Hash) error {
	if err := c.table.DeletePrimary(kind); err != nil {
		return err
	}
	return c.propagateSelf(ctx, func(stream transport.Stream) error {
		return builtinops.CallDeleteAccountPrimary(ctx, stream, c.self, *c.primary, kind)
	})
}

// SetAddress records addr for (kind, who), writing locally and
// propagating to self when self is the configured root primary
// (spec.md §4.5).
func (c *Client) SetAddress(ctx context.Context, kind *account.Hash, who account.AccountRef, addr netaddr.Address) error {
	if err := c.table.Set(kind, who, addr); err != nil {
		return err
	}
	return c.propagateSelf(ctx, func(stream transport.Stream) error {
		return builtinops.CallSetAddress(ctx, stream, c.self, *c.primary, kind, who, addr)
	})
}

// DeleteAddress removes the address on record for (kind, who), writing
// locally and propagating to self when self is the configured root
// primary (spec.md §4.5).
func (c *Client) DeleteAddress(ctx context.Context, kind *account.Hash, who account.AccountRef) error {
	if err := c.table.Delete(kind, who); err != nil {
		return err
	}
	return c.propagateSelf(ctx, func(stream transport.Stream) error {
		return builtinops.CallDeleteAddress(ctx, stream, c.self, *c.primary, kind, who)
	})
}

package builtinops

import (
	"context"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/framing"
	"github.com/ipiis/ipiis-go/netaddr"
)

// The Call* functions below are the typed client-side counterpart to the
// Handlers in handlers.go: each wraps framing.Call with the opcode and
// wire payload a given operation needs, so package client never has to
// know the wire shape directly (spec.md §4.5's caller contract).

// CallGetAccountPrimary asks target for the account designated primary
// for kind.
func CallGetAccountPrimary(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash) (PrimaryReply, error) {
	return framing.Call[KindOnly, PrimaryReply](ctx, stream, self, OpGetAccountPrimary, target, newKindOnly(kind))
}

// CallSetAccountPrimary asks target to designate who as primary for
// kind. The call must be self-signed (self is target) for this to succeed.
func CallSetAccountPrimary(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash, who account.AccountRef) error {
	_, err := framing.Call[KindTarget, Empty](ctx, stream, self, OpSetAccountPrimary, target, newKindTarget(kind, who))
	return err
}

// CallDeleteAccountPrimary asks target to remove its primary designator
// for kind.
func CallDeleteAccountPrimary(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash) error {
	_, err := framing.Call[KindOnly, Empty](ctx, stream, self, OpDeleteAccountPrimary, target, newKindOnly(kind))
	return err
}

// CallGetAddress asks target for the address on record for who.
func CallGetAddress(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash, who account.AccountRef) (netaddr.Address, error) {
	reply, err := framing.Call[KindTarget, AddressReply](ctx, stream, self, OpGetAddress, target, newKindTarget(kind, who))
	if err != nil {
		return nil, err
	}
	return netaddr.Parse(reply.Address)
}

// CallSetAddress asks target to record addr for who.
func CallSetAddress(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash, who account.AccountRef, addr netaddr.Address) error {
	req := SetAddressRequest{HasKind: hasFlag(kind), Kind: encodeKind(kind), Account: who.Bytes(), Address: addr.String()}
	_, err := framing.Call[SetAddressRequest, Empty](ctx, stream, self, OpSetAddress, target, req)
	return err
}

// CallDeleteAddress asks target to remove the address on record for who.
func CallDeleteAddress(ctx context.Context, stream framing.Stream, self *account.Account, target account.AccountRef, kind *account.Hash, who account.AccountRef) error {
	_, err := framing.Call[KindTarget, Empty](ctx, stream, self, OpDeleteAddress, target, newKindTarget(kind, who))
	return err
}

package builtinops

import (
	"context"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/envelope"
	"github.com/ipiis/ipiis-go/framing"
	"github.com/ipiis/ipiis-go/netaddr"
	"github.com/ipiis/ipiis-go/routing"
)

// Resolver is the recursive lookup a Handlers needs for its two read-only
// operations: the same resolve-through-primary behavior package client
// implements for outbound calls, so that a local miss on an intermediate
// peer forwards to that peer's own configured primary instead of answering
// definitively from a possibly-empty local table (spec.md §4.5, §4.7;
// original_source/api/common/src/server.rs's handle_get_address and
// handle_get_account_primary both delegate to the client's own resolving
// methods for exactly this reason). *client.Client satisfies this
// interface; it is declared here, not imported, because client already
// imports builtinops for its outbound Call* helpers.
type Resolver interface {
	GetAccountPrimary(ctx context.Context, kind *account.Hash) (account.AccountRef, error)
	GetAddress(ctx context.Context, kind *account.Hash, target account.AccountRef) (netaddr.Address, error)
}

// Handlers implements the six built-in operations. The two read-only
// operations resolve through Resolver (the server's own client, so a local
// miss recurses to this peer's primary); the four mutating/deleting
// operations write Table directly. The mutating operations (SetAccountPrimary,
// DeleteAccountPrimary, SetAddress, DeleteAddress) are registered
// self-signed-only: only a peer claiming to be the server itself may
// change the server's routing state (spec.md §4.3, §4.7).
type Handlers struct {
	Table    *routing.RoutingTable
	Resolver Resolver
}

// Register binds all six operations into reg, keyed by opcode, ready for
// framing.Serve's dispatch.
func (h *Handlers) Register(reg map[framing.OpCode]*framing.Op) {
	reg[OpGetAccountPrimary] = framing.NewOp(OpGetAccountPrimary, "GetAccountPrimary", false, h.getAccountPrimary)
	reg[OpSetAccountPrimary] = framing.NewOp(OpSetAccountPrimary, "SetAccountPrimary", true, h.setAccountPrimary)
	reg[OpDeleteAccountPrimary] = framing.NewOp(OpDeleteAccountPrimary, "DeleteAccountPrimary", true, h.deleteAccountPrimary)
	reg[OpGetAddress] = framing.NewOp(OpGetAddress, "GetAddress", false, h.getAddress)
	reg[OpSetAddress] = framing.NewOp(OpSetAddress, "SetAddress", true, h.setAddress)
	reg[OpDeleteAddress] = framing.NewOp(OpDeleteAddress, "DeleteAddress", true, h.deleteAddress)
}

func (h *Handlers) getAccountPrimary(ctx context.Context, g *envelope.Guaranteed[KindOnly]) (PrimaryReply, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return PrimaryReply{}, err
	}
	primary, err := h.Resolver.GetAccountPrimary(ctx, kind)
	if err != nil {
		return PrimaryReply{}, err
	}
	reply := PrimaryReply{Account: primary.Bytes()}
	if addr, err := h.Resolver.GetAddress(ctx, kind, primary); err == nil {
		reply.HasAddress = 1
		reply.Address = addr.String()
	}
	return reply, nil
}

func (h *Handlers) setAccountPrimary(ctx context.Context, g *envelope.Guaranteed[KindTarget]) (Empty, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return Empty{}, err
	}
	who, err := account.NewAccountRef(g.Payload.Account)
	if err != nil {
		return Empty{}, err
	}
	return Empty{}, h.Table.SetPrimary(kind, who)
}

func (h *Handlers) deleteAccountPrimary(ctx context.Context, g *envelope.Guaranteed[KindOnly]) (Empty, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return Empty{}, err
	}
	return Empty{}, h.Table.DeletePrimary(kind)
}

func (h *Handlers) getAddress(ctx context.Context, g *envelope.Guaranteed[KindTarget]) (AddressReply, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return AddressReply{}, err
	}
	who, err := account.NewAccountRef(g.Payload.Account)
	if err != nil {
		return AddressReply{}, err
	}
	addr, err := h.Resolver.GetAddress(ctx, kind, who)
	if err != nil {
		return AddressReply{}, err
	}
	return AddressReply{Address: addr.String()}, nil
}

func (h *Handlers) setAddress(ctx context.Context, g *envelope.Guaranteed[SetAddressRequest]) (Empty, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return Empty{}, err
	}
	who, err := account.NewAccountRef(g.Payload.Account)
	if err != nil {
		return Empty{}, err
	}
	addr, err := netaddr.Parse(g.Payload.Address)
	if err != nil {
		return Empty{}, err
	}
	return Empty{}, h.Table.Set(kind, who, addr)
}

func (h *Handlers) deleteAddress(ctx context.Context, g *envelope.Guaranteed[KindTarget]) (Empty, error) {
	kind, err := decodeKind(g.Payload.HasKind, g.Payload.Kind)
	if err != nil {
		return Empty{}, err
	}
	who, err := account.NewAccountRef(g.Payload.Account)
	if err != nil {
		return Empty{}, err
	}
	return Empty{}, h.Table.Delete(kind, who)
}

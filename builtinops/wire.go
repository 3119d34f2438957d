// Package builtinops implements the six routing-admin RPCs layered on
// package framing and package routing: GetAccountPrimary,
// SetAccountPrimary, DeleteAccountPrimary, GetAddress, SetAddress and
// DeleteAddress (spec.md §4.7). Each is declared as a framing.Op binding
// an opcode to a request/response payload pair and a handler closing
// over a RoutingTable — the "operation-definition declarations" spec.md
// §9 describes, expressed as plain registration rather than generated
// opcode modules.
package builtinops

import (
	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/framing"
)

// Opcodes for the six built-in routing-admin operations (spec.md §4.7).
const (
	OpGetAccountPrimary framing.OpCode = iota + 1
	OpSetAccountPrimary
	OpDeleteAccountPrimary
	OpGetAddress
	OpSetAddress
	OpDeleteAddress
)

// Empty is the response payload for operations that return nothing but
// success (SetAccountPrimary, DeleteAccountPrimary, SetAddress,
// DeleteAddress).
type Empty struct{}

// KindOnly is the wire shape of spec.md's `Option<Hash>` request payload,
// used by GetAccountPrimary and DeleteAccountPrimary. Kind is always
// marshaled as a fixed account.HashSize block (zero-filled when absent)
// so the flag byte alone disambiguates presence. (routing.EncodeKey also
// carries a presence flag, but omits the kind bytes when absent.)
type KindOnly struct {
	HasKind uint8
	Kind    []byte `size:"32"`
}

// KindTarget is the wire shape of spec.md's `(Option<Hash>, AccountRef)`
// request payload, used by SetAccountPrimary, GetAddress and
// DeleteAddress.
type KindTarget struct {
	HasKind uint8
	Kind    []byte `size:"32"`
	Account []byte `size:"32"`
}

// PrimaryReply is GetAccountPrimary's response payload: the designated
// account and its address, if on record.
type PrimaryReply struct {
	Account    []byte `size:"32"`
	HasAddress uint8
	Address    string
}

// AddressReply is GetAddress's response payload.
type AddressReply struct {
	Address string
}

// SetAddressRequest is the wire shape of spec.md's
// `(Option<Hash>, AccountRef, Address)` request payload.
type SetAddressRequest struct {
	HasKind uint8
	Kind    []byte `size:"32"`
	Account []byte `size:"32"`
	Address string
}

// encodeKind always returns an account.HashSize-wide slice: the raw
// digest when kind is set, zero-filled otherwise. The HasKind flag byte,
// not the body, is what decodeKind relies on to tell the two cases apart.
func encodeKind(kind *account.Hash) []byte {
	b := make([]byte, account.HashSize)
	if kind != nil {
		copy(b, kind.Bytes())
	}
	return b
}

func hasFlag(kind *account.Hash) uint8 {
	if kind != nil {
		return 1
	}
	return 0
}

func decodeKind(has uint8, raw []byte) (*account.Hash, error) {
	if has == 0 {
		return nil, nil
	}
	h, err := account.NewHash(raw)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func newKindOnly(kind *account.Hash) KindOnly {
	return KindOnly{HasKind: hasFlag(kind), Kind: encodeKind(kind)}
}

func newKindTarget(kind *account.Hash, who account.AccountRef) KindTarget {
	return KindTarget{HasKind: hasFlag(kind), Kind: encodeKind(kind), Account: who.Bytes()}
}

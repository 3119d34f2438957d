package routing

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/netaddr"
)

// Errors returned by RoutingTable operations (spec.md §7 taxonomy).
var (
	ErrCannotAddressSelf = errors.New("routing: cannot get an address for myself")
	ErrNoAddress         = errors.New("routing: no address on record")
	ErrNoPrimary         = errors.New("routing: no primary on record")
)

// key variant flags, forming the 2-bit discriminator from spec.md §4.2:
// flag = (kind_present << 1) | account_present.
const (
	flagPrimaryNoKind   byte = 0b00
	flagAddressNoKind   byte = 0b01
	flagPrimaryWithKind byte = 0b10
	flagAddressWithKind byte = 0b11
)

// EncodeKey builds the canonical routing-table key:
//
//	key = flag_byte ++ kind_bytes ++ account_bytes
//
// kind_bytes and account_bytes are empty when the corresponding value is
// absent; the flag byte alone disambiguates the four variants, so this
// encoding is collision-free (spec.md §4.2).
func EncodeKey(kind *account.Hash, who *account.AccountRef) []byte {
	var flag byte
	var body []byte
	if kind != nil {
		body = append(body, kind.Bytes()...)
	}
	if who != nil {
		body = append(body, who.Bytes()...)
	}
	switch {
	case kind != nil && who != nil:
		flag = flagAddressWithKind
	case kind != nil && who == nil:
		flag = flagPrimaryWithKind
	case kind == nil && who != nil:
		flag = flagAddressNoKind
	default:
		flag = flagPrimaryNoKind
	}
	return append([]byte{flag}, body...)
}

// storeKey renders a binary key into the hex string the KeyValueStore
// backend persists (KeyValueStore keys/values are strings; see kvstore.go).
func storeKey(kind *account.Hash, who *account.AccountRef) string {
	return hex.EncodeToString(EncodeKey(kind, who))
}

// RoutingTable is the persistent (kind?, account?) -> value directory.
// Concurrency is delegated to the backing KeyValueStore: a SQL store
// commits each Put/Get atomically per-key, so RoutingTable itself holds
// no additional locking (spec.md §5) beyond what self-addressing rejects.
type RoutingTable struct {
	kvs  KeyValueStore
	self account.AccountRef
}

// New wraps an already-open KeyValueStore into a RoutingTable bound to
// self (the local account, used to reject self-addressing lookups).
func New(kvs KeyValueStore, self account.AccountRef) *RoutingTable {
	return &RoutingTable{kvs: kvs, self: self}
}

// Open opens (or creates) a RoutingTable backed by the store named in
// spec. Use "sqlite3+<durable path>" in production; "memory" is a
// process-local, non-persistent shortcut for tests.
func Open(spec string, self account.AccountRef) (*RoutingTable, error) {
	kvs, err := OpenKVStore(spec)
	if err != nil {
		return nil, err
	}
	return New(kvs, self), nil
}

//----------------------------------------------------------------------
// Address entries
//----------------------------------------------------------------------

// Get returns the address on record for (kind, who). A peer may not look
// itself up this way — spec.md's invariant "a peer needs no address to
// reach itself".
func (rt *RoutingTable) Get(kind *account.Hash, who account.AccountRef) (netaddr.Address, error) {
	if who.Equals(rt.self) {
		return nil, ErrCannotAddressSelf
	}
	v, err := rt.kvs.Get(storeKey(kind, &who))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoAddress, err)
		}
		return nil, err
	}
	return netaddr.Parse(v)
}

// Set stores address for (kind, who). The address must resolve to exactly
// one socket address, rejecting ambiguous DNS names at write time.
func (rt *RoutingTable) Set(kind *account.Hash, who account.AccountRef, addr netaddr.Address) error {
	if _, err := addr.ResolveOne(); err != nil {
		return fmt.Errorf("routing: set: %w", err)
	}
	return rt.kvs.Put(storeKey(kind, &who), addr.String())
}

// Delete removes the address on record for (kind, who). Deleting a
// non-existent entry is not an error.
func (rt *RoutingTable) Delete(kind *account.Hash, who account.AccountRef) error {
	return rt.kvs.Delete(storeKey(kind, &who))
}

//----------------------------------------------------------------------
// Primary designators
//----------------------------------------------------------------------

// GetPrimary returns the account designated as primary for kind.
func (rt *RoutingTable) GetPrimary(kind *account.Hash) (account.AccountRef, error) {
	v, err := rt.kvs.Get(storeKey(kind, nil))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return account.AccountRef{}, fmt.Errorf("%w: %s", ErrNoPrimary, err)
		}
		return account.AccountRef{}, err
	}
	return account.ParseAccountRef(v)
}

// SetPrimary designates who as the primary for kind.
func (rt *RoutingTable) SetPrimary(kind *account.Hash, who account.AccountRef) error {
	return rt.kvs.Put(storeKey(kind, nil), who.String())
}

// DeletePrimary removes the primary designator for kind.
func (rt *RoutingTable) DeletePrimary(kind *account.Hash) error {
	return rt.kvs.Delete(storeKey(kind, nil))
}

// Keys returns every hex-encoded routing key currently on record, for
// read-only introspection (see package diagnostics). The ordering is
// whatever the backing KeyValueStore returns.
func (rt *RoutingTable) Keys() ([]string, error) {
	return rt.kvs.List()
}

// RawGet returns the raw stored value for one of the keys Keys returns,
// bypassing the typed Get/GetPrimary decoding. Diagnostics-only: regular
// callers should use Get/GetPrimary, which also enforce the
// self-addressing invariant.
func (rt *RoutingTable) RawGet(key string) (string, error) {
	return rt.kvs.Get(key)
}

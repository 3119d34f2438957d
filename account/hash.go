package account

import (
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/ipiis/ipiis-go/internal/xutil"
)

// HashSize is the byte width of a Hash (a Blake2b-256 digest).
const HashSize = blake2b.Size256

// ErrInvalidHashSize is returned when raw hash bytes have the wrong width.
var ErrInvalidHashSize = errors.New("account: invalid hash size")

// Hash is a fixed-width content digest used as an opaque "kind" tag: a
// namespace selector for routing-table entries (spec's RoutingEntry kind).
// An absent kind (nil *Hash) and any Hash, including the zero value, are
// always distinguishable keys because the routing table's canonical key
// encoding carries a separate kind-present flag (see routing.EncodeKey).
type Hash struct {
	digest [HashSize]byte
}

// NewHash wraps raw digest bytes into a Hash.
func NewHash(data []byte) (Hash, error) {
	var h Hash
	if len(data) != HashSize {
		return h, ErrInvalidHashSize
	}
	copy(h.digest[:], data)
	return h, nil
}

// HashOf computes the Hash (kind tag) of an arbitrary byte string, e.g. to
// derive a stable namespace identifier from a human-readable label.
func HashOf(data []byte) Hash {
	digest := blake2b.Sum256(data)
	return Hash{digest: digest}
}

// Bytes returns the raw digest bytes.
func (h Hash) Bytes() []byte {
	return xutil.Clone(h.digest[:])
}

// String renders the hash in its base32 textual form.
func (h Hash) String() string {
	return xutil.EncodeBinaryToString(h.digest[:])
}

// Equals reports whether two hashes carry the same digest.
func (h Hash) Equals(o Hash) bool {
	return h.digest == o.digest
}

// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// Package account holds the keypair a client or server process signs and
// verifies with, and the compact public reference (AccountRef) other peers
// use to name it. Modeled on gnunet-go's core.Peer and crypto.PrivateKey /
// PublicKey (src/gnunet/core/peer.go, src/gnunet/crypto/keys.go), collapsed
// into a single local/remote-agnostic type since this substrate has no
// separate "local node" concept beyond "the account this process holds".
package account

import (
	"crypto"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/bfix/gospel/crypto/ed25519"

	"github.com/ipiis/ipiis-go/internal/xutil"
)

// RefSize is the byte width of an AccountRef (an Ed25519 public key).
const RefSize = ed25519.PublicKeySize

// Errors returned by this package.
var (
	ErrInvalidRefSize = errors.New("account: invalid reference size")
	ErrNoPrivateKey   = errors.New("account: no private key held")
)

//----------------------------------------------------------------------
// AccountRef
//----------------------------------------------------------------------

// AccountRef is the public half of an Account: a fixed-width Ed25519
// public key digest naming a peer. It is compact, copyable and
// equality-comparable by value.
type AccountRef struct {
	key [RefSize]byte
}

// NewAccountRef wraps raw public-key bytes into an AccountRef.
func NewAccountRef(data []byte) (AccountRef, error) {
	var ref AccountRef
	if len(data) != RefSize {
		return ref, ErrInvalidRefSize
	}
	copy(ref.key[:], data)
	return ref, nil
}

// ParseAccountRef decodes the textual (base32) form of an AccountRef.
func ParseAccountRef(s string) (AccountRef, error) {
	data, err := xutil.DecodeStringToBinary(s, RefSize)
	if err != nil {
		return AccountRef{}, err
	}
	return NewAccountRef(data)
}

// Bytes returns the raw public-key bytes of the reference.
func (r AccountRef) Bytes() []byte {
	return xutil.Clone(r.key[:])
}

// String renders the reference in its base32 textual form.
func (r AccountRef) String() string {
	return xutil.EncodeBinaryToString(r.key[:])
}

// Equals reports whether two references name the same account.
func (r AccountRef) Equals(o AccountRef) bool {
	return r.key == o.key
}

// IsZero reports whether the reference is the zero value (no account).
func (r AccountRef) IsZero() bool {
	return r.key == [RefSize]byte{}
}

// publicKey reconstructs the gospel Ed25519 public key for verification.
func (r AccountRef) publicKey() ed25519.PublicKey {
	return ed25519.PublicKey(r.key[:])
}

//----------------------------------------------------------------------
// Account
//----------------------------------------------------------------------

// Account is a keypair a process holds for the lifetime of a client or
// server: it signs outgoing envelopes as guarantee or guarantor, verifies
// incoming ones, and its public half is the process's routing identity.
type Account struct {
	pub ed25519.PublicKey
	prv ed25519.PrivateKey
}

// NewAccount generates a fresh random Account.
func NewAccount() (*Account, error) {
	pub, prv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("account: generate keypair: %w", err)
	}
	return &Account{pub: pub, prv: prv}, nil
}

// AccountFromSeed reconstructs an Account deterministically from a 32-byte
// seed, as read from configuration (spec's `ipis_account_me`).
func AccountFromSeed(seed []byte) *Account {
	prv := ed25519.NewKeyFromSeed(seed)
	return &Account{
		pub: xutil.Clone(prv[ed25519.PublicKeySize:]),
		prv: prv,
	}
}

// Ref returns the public AccountRef for this account.
func (a *Account) Ref() AccountRef {
	ref, _ := NewAccountRef(a.pub)
	return ref
}

// UnsafePrivateBytes returns the raw private key bytes. Named Unsafe to
// discourage casual use: callers outside this package should only need
// Sign(), never the bytes themselves.
func (a *Account) UnsafePrivateBytes() ([]byte, error) {
	if a.prv == nil {
		return nil, ErrNoPrivateKey
	}
	return xutil.Clone(a.prv), nil
}

// Sign produces an Ed25519 signature over msg's SHA-512 digest, matching
// gnunet-go's crypto.PrivateKey.Sign convention (src/gnunet/crypto/keys.go).
func (a *Account) Sign(msg []byte) ([]byte, error) {
	if a.prv == nil {
		return nil, ErrNoPrivateKey
	}
	hv := sha512.Sum512(msg)
	return a.prv.Sign(rand.Reader, hv[:], crypto.Hash(0))
}

// Verify checks a signature produced by Sign against this account's public
// key (used when this account is itself the signer being re-checked, or
// via AccountRef.Verify for arbitrary remote accounts).
func (a *Account) Verify(msg, sig []byte) bool {
	return a.Ref().Verify(msg, sig)
}

// Verify checks whether sig is a valid Ed25519 signature by the account
// named by ref over msg.
func (r AccountRef) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	hv := sha512.Sum512(msg)
	return ed25519.Verify(r.publicKey(), hv[:], sig)
}

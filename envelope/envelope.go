// Package envelope implements the substrate's signed message wrappers:
// a guarantee-signed envelope proving that one account asserted a payload
// to a specific target, and a guarantor-countersigned envelope attesting
// that the target received and processed it (spec.md §3, §4.3).
//
// Grounded on gnunet-go's crypto.Signable/Signer contract
// (src/gnunet/crypto/signature.go): there, any message that can produce
// "the bytes to sign" and accept a returned signature can be signed by a
// Signer. Here that two-step split becomes Build (guarantee) and
// SignAsGuarantor (countersign), with payload hashing via the Blake-family
// digest spec.md calls for instead of the teacher's SHA-512.
package envelope

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/codec"
	"github.com/ipiis/ipiis-go/internal/xutil"
)

// Errors returned by this package, part of spec.md §7's SignatureError
// family. Each carries enough detail to log the specific failing check.
var (
	ErrWrongTarget       = errors.New("envelope: target does not match expected self")
	ErrExpired           = errors.New("envelope: expired")
	ErrPayloadDigestMismatch = errors.New("envelope: payload digest mismatch")
	ErrBadSignature      = errors.New("envelope: signature verification failed")
	ErrNotSelfSigned     = errors.New("envelope: guarantee is not self-signed")
)

// Metadata carries everything about an envelope except the signature and
// the payload itself (spec.md §3's Envelope metadata tuple).
type Metadata struct {
	Guarantee     account.AccountRef
	Target        account.AccountRef
	CreatedAt     xutil.AbsoluteTime
	Expiration    xutil.AbsoluteTime // AbsoluteTimeNever() means no expiry
	Nonce         uint64
	PayloadDigest account.Hash
}

// wireMetadata is Metadata's declared binary schema (codec-serializable):
// a flat struct of exported, primitive-typed fields. Only this form is
// ever fed to codec.Marshal; the public Metadata/AccountRef/Hash types
// intentionally keep their internals unexported.
type wireMetadata struct {
	Guarantee     []byte `size:"32"`
	Target        []byte `size:"32"`
	CreatedAt     uint64 `order:"big"`
	Expiration    uint64 `order:"big"`
	Nonce         uint64 `order:"big"`
	PayloadDigest []byte `size:"32"`
}

func (m Metadata) toWire() wireMetadata {
	return wireMetadata{
		Guarantee:     m.Guarantee.Bytes(),
		Target:        m.Target.Bytes(),
		CreatedAt:     m.CreatedAt.Val,
		Expiration:    m.Expiration.Val,
		Nonce:         m.Nonce,
		PayloadDigest: m.PayloadDigest.Bytes(),
	}
}

func (m Metadata) bytes() ([]byte, error) {
	w := m.toWire()
	return codec.Marshal(&w)
}

// wireMetadataSize and signatureSize give the fixed byte widths DecodeGuaranteed
// needs to split a flat byte stream back into metadata, signature and payload.
const (
	wireMetadataSize = account.RefSize + account.RefSize + 8 + 8 + 8 + account.HashSize
	signatureSize    = 64
)

func metadataFromWire(w wireMetadata) (Metadata, error) {
	guarantee, err := account.NewAccountRef(w.Guarantee)
	if err != nil {
		return Metadata{}, fmt.Errorf("envelope: decode guarantee ref: %w", err)
	}
	target, err := account.NewAccountRef(w.Target)
	if err != nil {
		return Metadata{}, fmt.Errorf("envelope: decode target ref: %w", err)
	}
	digest, err := account.NewHash(w.PayloadDigest)
	if err != nil {
		return Metadata{}, fmt.Errorf("envelope: decode payload digest: %w", err)
	}
	return Metadata{
		Guarantee:     guarantee,
		Target:        target,
		CreatedAt:     xutil.AbsoluteTime{Val: w.CreatedAt},
		Expiration:    xutil.AbsoluteTime{Val: w.Expiration},
		Nonce:         w.Nonce,
		PayloadDigest: digest,
	}, nil
}

// digestOf returns the Blake2b-256 digest of an arbitrary payload, used as
// spec.md's payload_digest. The payload must have a declared binary schema
// (a plain, codec-serializable struct). Takes payload by value and marshals
// through its address, since codec.Marshal only walks addressable structs.
func digestOf[T any](payload T) (account.Hash, error) {
	b, err := codec.Marshal(&payload)
	if err != nil {
		return account.Hash{}, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	sum := blake2b.Sum256(b)
	h, _ := account.NewHash(sum[:])
	return h, nil
}

//----------------------------------------------------------------------
// Guaranteed[T]: a guarantee-signed envelope around a payload.
//----------------------------------------------------------------------

// Guaranteed is a guarantee-signed envelope: proof that Meta.Guarantee
// asserted Payload to Meta.Target at Meta.CreatedAt.
type Guaranteed[T any] struct {
	Meta      Metadata
	Signature []byte
	Payload   T
}

// Build constructs a guarantee-signed envelope asserting payload, signed
// by signer, addressed to target.
func Build[T any](signer *account.Account, target account.AccountRef, payload T) (*Guaranteed[T], error) {
	digest, err := digestOf(payload)
	if err != nil {
		return nil, err
	}
	meta := Metadata{
		Guarantee:     signer.Ref(),
		Target:        target,
		CreatedAt:     xutil.AbsoluteTimeNow(),
		Expiration:    xutil.AbsoluteTimeNever(),
		Nonce:         xutil.RndUInt64(),
		PayloadDigest: digest,
	}
	sd, err := meta.bytes()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(sd)
	if err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}
	return &Guaranteed[T]{Meta: meta, Signature: sig, Payload: payload}, nil
}

// BuildWithExpiration is Build with the metadata expiration set to expires.
// The envelope is signed after the expiration is set, since the signature
// covers it.
func BuildWithExpiration[T any](signer *account.Account, target account.AccountRef, payload T, expires xutil.AbsoluteTime) (*Guaranteed[T], error) {
	g, err := Build(signer, target, payload)
	if err != nil {
		return nil, err
	}
	g.Meta.Expiration = expires
	sd, err := g.Meta.bytes()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(sd)
	if err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}
	g.Signature = sig
	return g, nil
}

// Verify checks a guarantee envelope: if expectedSelf is non-nil, the
// envelope's target must match it; if an expiration is set, it must not
// have passed; the payload digest must match the recomputed one; and the
// signature must verify under the guarantee account (spec.md §4.3).
func Verify[T any](g *Guaranteed[T], expectedSelf *account.AccountRef) error {
	if expectedSelf != nil && !g.Meta.Target.Equals(*expectedSelf) {
		return ErrWrongTarget
	}
	if g.Meta.Expiration.Val != xutil.AbsoluteTimeNever().Val && g.Meta.Expiration.Expired() {
		return ErrExpired
	}
	digest, err := digestOf(g.Payload)
	if err != nil {
		return err
	}
	if !digest.Equals(g.Meta.PayloadDigest) {
		return ErrPayloadDigestMismatch
	}
	sd, err := g.Meta.bytes()
	if err != nil {
		return err
	}
	if !g.Meta.Guarantee.Verify(sd, g.Signature) {
		return ErrBadSignature
	}
	return nil
}

// DecodeGuaranteed parses the bytes produced by (*Guaranteed[T]).Bytes back
// into a guarantee envelope. It does not verify the signature; call Verify
// afterwards.
func DecodeGuaranteed[T any](data []byte) (*Guaranteed[T], error) {
	if len(data) < wireMetadataSize+signatureSize {
		return nil, fmt.Errorf("envelope: decode: short buffer (%d bytes)", len(data))
	}
	var w wireMetadata
	if err := codec.Unmarshal(&w, data[:wireMetadataSize]); err != nil {
		return nil, fmt.Errorf("envelope: decode metadata: %w", err)
	}
	meta, err := metadataFromWire(w)
	if err != nil {
		return nil, err
	}
	sig := xutil.Clone(data[wireMetadataSize : wireMetadataSize+signatureSize])
	var payload T
	if err := codec.Unmarshal(&payload, data[wireMetadataSize+signatureSize:]); err != nil {
		return nil, fmt.Errorf("envelope: decode payload: %w", err)
	}
	return &Guaranteed[T]{Meta: meta, Signature: sig, Payload: payload}, nil
}

// DecodeCountersigned parses the bytes written by a guarantor-countersigned
// envelope: the inner guarantee envelope's bytes, followed by the
// guarantor's fixed-width AccountRef and signature. Callers read this from
// the wire as a single length-prefixed block (see package framing), so the
// inner envelope's length is simply whatever remains once the trailing
// guarantor ref and signature are split off.
func DecodeCountersigned[T any](data []byte) (*Countersigned[T], error) {
	trailer := account.RefSize + signatureSize
	if len(data) < wireMetadataSize+signatureSize+trailer {
		return nil, fmt.Errorf("envelope: decode countersigned: short buffer (%d bytes)", len(data))
	}
	split := len(data) - trailer
	inner, err := DecodeGuaranteed[T](data[:split])
	if err != nil {
		return nil, err
	}
	rest := data[split:]
	guarantor, err := account.NewAccountRef(rest[:account.RefSize])
	if err != nil {
		return nil, fmt.Errorf("envelope: decode guarantor ref: %w", err)
	}
	sig := xutil.Clone(rest[account.RefSize:])
	return &Countersigned[T]{
		Guarantee:          *inner,
		GuarantorAccount:   guarantor,
		GuarantorSignature: sig,
	}, nil
}

// EnsureSelfSigned reports whether the envelope's guarantee account is the
// same as its target — i.e. a peer is only attesting things about itself.
// Required for the four mutating BuiltinOps (spec.md §4.3, §4.7).
func EnsureSelfSigned[T any](g *Guaranteed[T]) error {
	if !g.Meta.Guarantee.Equals(g.Meta.Target) {
		return ErrNotSelfSigned
	}
	return nil
}

// Bytes serializes the full guarantee envelope (metadata, signature and
// payload) for transmission or for guarantor countersigning.
func (g *Guaranteed[T]) Bytes() ([]byte, error) {
	metaBytes, err := g.Meta.bytes()
	if err != nil {
		return nil, err
	}
	payloadBytes, err := codec.Marshal(&g.Payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(metaBytes)+len(g.Signature)+len(payloadBytes))
	out = append(out, metaBytes...)
	out = append(out, g.Signature...)
	out = append(out, payloadBytes...)
	return out, nil
}

//----------------------------------------------------------------------
// Countersigned[T]: guarantor-countersigned envelope.
//----------------------------------------------------------------------

// Countersigned bundles a guarantee envelope with a guarantor's signature
// attesting that it processed the request — the chain of custody
// "guarantee -> guarantor" (spec.md §3).
type Countersigned[T any] struct {
	Guarantee          Guaranteed[T]
	GuarantorAccount   account.AccountRef
	GuarantorSignature []byte
}

// SignAsGuarantor countersigns an already-guarantee-signed envelope: the
// guarantor hashes the envelope's full serialized bytes and signs that
// hash, attesting it processed the request.
func SignAsGuarantor[T any](g *Guaranteed[T], guarantor *account.Account) (*Countersigned[T], error) {
	full, err := g.Bytes()
	if err != nil {
		return nil, err
	}
	digest := blake2b.Sum256(full)
	sig, err := guarantor.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("envelope: countersign: %w", err)
	}
	return &Countersigned[T]{
		Guarantee:          *g,
		GuarantorAccount:   guarantor.Ref(),
		GuarantorSignature: sig,
	}, nil
}

// Bytes serializes the full countersigned envelope: the inner guarantee
// envelope's bytes, followed by the guarantor's AccountRef and signature.
// DecodeCountersigned is its exact inverse.
func (c *Countersigned[T]) Bytes() ([]byte, error) {
	inner, err := c.Guarantee.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(inner)+account.RefSize+len(c.GuarantorSignature))
	out = append(out, inner...)
	out = append(out, c.GuarantorAccount.Bytes()...)
	out = append(out, c.GuarantorSignature...)
	return out, nil
}

// VerifyCountersigned verifies both layers: the inner guarantee (as
// Verify would) and the guarantor's countersignature over its full bytes.
// Stripping the guarantor layer and calling Verify on .Guarantee alone
// must still succeed (spec.md §8 invariant).
func VerifyCountersigned[T any](c *Countersigned[T], expectedSelf *account.AccountRef) error {
	if err := Verify(&c.Guarantee, expectedSelf); err != nil {
		return err
	}
	full, err := c.Guarantee.Bytes()
	if err != nil {
		return err
	}
	digest := blake2b.Sum256(full)
	if !c.GuarantorAccount.Verify(digest[:], c.GuarantorSignature) {
		return ErrBadSignature
	}
	return nil
}

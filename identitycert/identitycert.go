// Package identitycert derives a self-signed TLS certificate deterministically
// from an account keypair, and provides a peer verifier that accepts any
// certificate: trust in this substrate rests on the application-layer
// account signatures (see package envelope), not on a CA chain
// (spec.md §4.1, §1 Non-goals). ASN.1/PKCS#8 encoding itself is delegated
// to the standard library's crypto/x509, matching spec.md's explicit scope
// note that low-level certificate encoding is out of scope.
//
// Grounded on the TLS wiring in the example pack's synnergy-network
// (core/security.go): a tls.Config built from an x509 keypair, with a
// custom VerifyPeerCertificate hook replacing chain validation.
package identitycert

import (
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ipiis/ipiis-go/account"
)

// PeerNameSuffix is appended to an account reference's base32 textual form
// to produce the certificate's Subject Common Name and TLS ServerName.
const PeerNameSuffix = ".peer"

// notBefore is a fixed epoch rather than time.Now(), so that GenerateCert
// is fully deterministic for a given account (spec.md §4.1's contract).
var notBefore = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
var notAfter = time.Date(2120, 1, 1, 0, 0, 0, 0, time.UTC)

// PeerName derives the TLS ServerName/Subject-CN used for ref. It must
// match whatever GenerateCert embeds as the certificate's CommonName.
func PeerName(ref account.AccountRef) string {
	return ref.String() + PeerNameSuffix
}

// serialFor derives a deterministic certificate serial number from the
// account reference, so GenerateCert needs no external randomness.
func serialFor(ref account.AccountRef) *big.Int {
	b := ref.Bytes()
	// A certificate serial must be positive; the high bit of the first
	// byte is cleared to guarantee that regardless of key bytes.
	hi := make([]byte, 8)
	copy(hi, b)
	hi[0] &^= 0x80
	return new(big.Int).SetUint64(binary.BigEndian.Uint64(hi))
}

// GenerateCert produces a deterministic self-signed certificate and its
// matching PKCS#8 private key, both DER-encoded, for acc. The same account
// always yields the same certificate bytes: there is no random serial or
// random validity window, and signing is deterministic Ed25519.
func GenerateCert(acc *account.Account) (keyDER []byte, certDER []byte, err error) {
	seed, err := acc.UnsafePrivateBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("identitycert: %w", err)
	}
	if len(seed) != ed25519.PrivateKeySize {
		return nil, nil, errors.New("identitycert: unexpected private key size")
	}
	stdKey := ed25519.PrivateKey(seed)
	ref := acc.Ref()

	tmpl := &x509.Certificate{
		SerialNumber: serialFor(ref),
		Subject: pkix.Name{
			CommonName: PeerName(ref),
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(nil, tmpl, tmpl, stdKey.Public(), stdKey)
	if err != nil {
		return nil, nil, fmt.Errorf("identitycert: create certificate: %w", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(stdKey)
	if err != nil {
		return nil, nil, fmt.Errorf("identitycert: marshal private key: %w", err)
	}
	return pkcs8, der, nil
}

// TLSCertificate assembles a tls.Certificate ready to hand to a
// tls.Config.Certificates slice.
func TLSCertificate(acc *account.Account) (tls.Certificate, error) {
	keyDER, certDER, err := GenerateCert(acc)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identitycert: parse private key: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}, nil
}

// AcceptAnyPeer returns a VerifyPeerCertificate callback that parses the
// presented leaf certificate but never rejects it on chain-validation
// grounds: identity is attested out-of-band by the signed envelope, not
// by the TLS handshake (spec.md §4.1's documented MITM-acceptable
// verifier). It still requires that a parseable certificate was sent.
func AcceptAnyPeer() func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("identitycert: no peer certificate presented")
		}
		if _, err := x509.ParseCertificate(rawCerts[0]); err != nil {
			return fmt.Errorf("identitycert: parse peer certificate: %w", err)
		}
		return nil
	}
}

// ServerTLSConfig builds a tls.Config for a listener bound to acc's
// identity: it presents acc's self-signed certificate and accepts any
// certificate presented by the connecting peer.
func ServerTLSConfig(acc *account.Account) (*tls.Config, error) {
	cert, err := TLSCertificate(acc)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: AcceptAnyPeer(),
		MinVersion:            tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig builds a tls.Config for a client dialing target: it
// presents acc's certificate, expects target's ServerName, and accepts
// whatever certificate the server presents.
func ClientTLSConfig(acc *account.Account, target account.AccountRef) (*tls.Config, error) {
	cert, err := TLSCertificate(acc)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ServerName:            PeerName(target),
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: AcceptAnyPeer(),
		MinVersion:            tls.VersionTLS12,
	}, nil
}

package identitycert

import (
	"bytes"
	"testing"

	"github.com/ipiis/ipiis-go/account"
)

func TestGenerateCertDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a := account.AccountFromSeed(seed)

	key1, cert1, err := GenerateCert(a)
	if err != nil {
		t.Fatalf("GenerateCert: %s", err)
	}
	key2, cert2, err := GenerateCert(a)
	if err != nil {
		t.Fatalf("GenerateCert: %s", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatal("private key DER differs between calls for the same account")
	}
	if !bytes.Equal(cert1, cert2) {
		t.Fatal("certificate DER differs between calls for the same account")
	}
}

func TestGenerateCertDiffersAcrossAccounts(t *testing.T) {
	a, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	b, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	_, certA, err := GenerateCert(a)
	if err != nil {
		t.Fatalf("GenerateCert: %s", err)
	}
	_, certB, err := GenerateCert(b)
	if err != nil {
		t.Fatalf("GenerateCert: %s", err)
	}
	if bytes.Equal(certA, certB) {
		t.Fatal("distinct accounts produced identical certificates")
	}
}

func TestPeerNameMatchesSubject(t *testing.T) {
	a, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	name := PeerName(a.Ref())
	if name[len(name)-len(PeerNameSuffix):] != PeerNameSuffix {
		t.Fatalf("peer name %q missing suffix %q", name, PeerNameSuffix)
	}
}

func TestServerTLSConfigBuilds(t *testing.T) {
	a, err := account.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %s", err)
	}
	cfg, err := ServerTLSConfig(a)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %s", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected exactly one certificate, got %d", len(cfg.Certificates))
	}
	if cfg.VerifyPeerCertificate == nil {
		t.Fatal("expected a VerifyPeerCertificate hook")
	}
}

package netaddr

import "testing"

func TestParseSocketAddress(t *testing.T) {
	a, err := ParseSocketAddress("tcp:127.0.0.1:5001")
	if err != nil {
		t.Fatalf("ParseSocketAddress: %s", err)
	}
	if a.Transport != "tcp" || a.Host != "127.0.0.1" || a.Port != 5001 {
		t.Fatalf("unexpected parse result: %+v", a)
	}
	if a.String() != "tcp:127.0.0.1:5001" {
		t.Fatalf("unexpected String(): %s", a.String())
	}
	addr, err := a.ResolveOne()
	if err != nil {
		t.Fatalf("ResolveOne: %s", err)
	}
	if addr.String() != "127.0.0.1:5001" {
		t.Fatalf("unexpected resolved address: %s", addr.String())
	}
}

func TestParseSocketAddressInvalid(t *testing.T) {
	if _, err := ParseSocketAddress("not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestParseStringAddress(t *testing.T) {
	a, err := ParseStringAddress("127.0.0.1:6789")
	if err != nil {
		t.Fatalf("ParseStringAddress: %s", err)
	}
	if a.String() != "127.0.0.1:6789" {
		t.Fatalf("unexpected String(): %s", a.String())
	}
	if _, err := a.ResolveOne(); err != nil {
		t.Fatalf("ResolveOne: %s", err)
	}
}

func TestParseDispatchesToSocketAddressFirst(t *testing.T) {
	addr, err := Parse("tcp:127.0.0.1:5001")
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	if _, ok := addr.(SocketAddress); !ok {
		t.Fatalf("expected SocketAddress, got %T", addr)
	}
}

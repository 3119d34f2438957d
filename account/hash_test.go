package account

import "testing"

func TestHashOfDeterministic(t *testing.T) {
	h1 := HashOf([]byte("kind-label"))
	h2 := HashOf([]byte("kind-label"))
	if !h1.Equals(h2) {
		t.Fatal("HashOf is not deterministic")
	}
	h3 := HashOf([]byte("other-label"))
	if h1.Equals(h3) {
		t.Fatal("distinct labels hashed to the same digest")
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := HashOf([]byte("k"))
	h2, err := NewHash(h.Bytes())
	if err != nil {
		t.Fatalf("NewHash: %s", err)
	}
	if !h.Equals(h2) {
		t.Fatal("round-trip through Bytes()/NewHash lost the digest")
	}
}

func TestNewHashRejectsWrongSize(t *testing.T) {
	if _, err := NewHash([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for wrong-sized hash")
	}
}

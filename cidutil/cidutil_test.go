package cidutil

import "testing"

func TestCIDv1RawSHA256_Deterministic(t *testing.T) {
	a := CIDv1RawSHA256([]byte("card"))
	b := CIDv1RawSHA256([]byte("card"))
	if a == "" || a != b {
		t.Fatalf("expected stable non-empty cid, got %q and %q", a, b)
	}
	if c := CIDv1RawSHA256([]byte("other")); c == a {
		t.Fatalf("different bytes produced the same cid")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("hello"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	got, err := Decode("  " + id.String() + "\n")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != id {
		t.Fatalf("Decode mismatch: got %s want %s", got, id)
	}
	if _, err := Decode(""); err == nil {
		t.Fatalf("expected error for empty cid")
	}
	if _, err := Decode("not-a-cid"); err == nil {
		t.Fatalf("expected error for garbage cid")
	}
}

func TestMatches(t *testing.T) {
	data := []byte("metadata bytes")
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if !Verifiable(id) {
		t.Fatalf("raw cid should be verifiable")
	}
	if !Matches(id, data) {
		t.Fatalf("expected match")
	}
	if Matches(id, []byte("tampered")) {
		t.Fatalf("expected mismatch for tampered bytes")
	}
}

package auth

import (
	"encoding/base64"
	"testing"
)

func TestEncodePasswordIsReversible(t *testing.T) {
	encoded := EncodePassword("s3cret")
	if encoded == "s3cret" {
		t.Fatalf("expected encoded form to differ from input")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw) != "s3cret" {
		t.Fatalf("round trip mismatch: %q", raw)
	}
}

func TestCheckPassword(t *testing.T) {
	stored := EncodePassword("s3cret")
	if !CheckPassword("s3cret", stored) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", stored) {
		t.Fatalf("expected password check to fail")
	}
}

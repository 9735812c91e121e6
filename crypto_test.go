package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("secret1")
	if err != nil {
		t.Fatal("hashPassword failed:", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash %q is not a bcrypt hash", hash)
	}
	if !checkPasswordHash("secret1", hash) {
		t.Error("correct password should verify")
	}
	if checkPasswordHash("secret2", hash) {
		t.Error("wrong password must not verify")
	}
	if checkPasswordHash("secret1", "not-a-hash") {
		t.Error("garbage hash must not verify")
	}

	// Same password, different salt.
	hash2, err := hashPassword("secret1")
	if err != nil {
		t.Fatal(err)
	}
	if hash == hash2 {
		t.Error("hashes should be salted")
	}
}

func TestGenerateHexToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		token := generateHexToken(32)
		if len(token) != 64 {
			t.Fatalf("token length = %d, want 64", len(token))
		}
		for _, c := range token {
			if !strings.ContainsRune("0123456789abcdef", c) {
				t.Fatalf("token %q contains non-hex character %q", token, c)
			}
		}
		if seen[token] {
			t.Fatal("token repeated")
		}
		seen[token] = true
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !constantTimeEquals("abc", "abc") {
		t.Error("equal strings should match")
	}
	if constantTimeEquals("abc", "abd") {
		t.Error("different strings must not match")
	}
	if constantTimeEquals("abc", "abcd") {
		t.Error("different lengths must not match")
	}
	if constantTimeEquals("", "abc") {
		t.Error("empty vs non-empty must not match")
	}
}

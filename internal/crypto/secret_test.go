package crypto

import "testing"

func TestNewSecretUnique(t *testing.T) {
	a, err := NewSecret()
	if err != nil {
		t.Fatalf("secret error: %v", err)
	}
	b, err := NewSecret()
	if err != nil {
		t.Fatalf("secret error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct secrets")
	}
	if HashSecret(a) == HashSecret(b) {
		t.Fatalf("expected distinct digests")
	}
}

func TestDigestsEqual(t *testing.T) {
	digest := HashSecret("token")
	if !DigestsEqual(digest, HashSecret("token")) {
		t.Fatalf("expected digests to match")
	}
	if DigestsEqual(digest, HashSecret("other")) {
		t.Fatalf("expected digests to differ")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secretpw")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "secretpw"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrongpw1"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestSecurePassword(t *testing.T) {
	if SecurePassword("short") {
		t.Fatalf("expected short password to be rejected")
	}
	if !SecurePassword("longenough") {
		t.Fatalf("expected long password to be accepted")
	}
}

package security_test

import (
	"errors"
	"testing"

	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/security"
)

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password1", testPasswordConfig)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	ok, err := security.VerifyPassword("very-secure-password1", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8,t=1,p=1$c2FsdA$aGFzaA",
		"$bcrypt$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA",
	} {
		if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := map[string]bool{
		"short1":       false,
		"allletters":   false,
		"1234567890":   false,
		"letters4ever": true,
	}
	for pw, want := range cases {
		got := security.ValidatePasswordStrength(pw) == nil
		if got != want {
			t.Fatalf("ValidatePasswordStrength(%q) ok=%v want %v", pw, got, want)
		}
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := security.HashToken("refresh-token")
	if a != security.HashToken("refresh-token") || len(a) != 64 {
		t.Fatalf("unexpected token hash %q", a)
	}
	if a == security.HashToken("other") {
		t.Fatal("distinct tokens should not collide")
	}
}

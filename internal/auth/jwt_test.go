package auth

import (
	"testing"
)

func TestSessionTokenRoundtrip(t *testing.T) {
	token, err := GenerateSessionToken("client-123")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	claims, err := ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken failed: %v", err)
	}
	if claims.ClientID != "client-123" {
		t.Errorf("expected client-123, got %s", claims.ClientID)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		t.Error("token should expire after issuance")
	}
}

func TestValidateSessionToken_Garbage(t *testing.T) {
	if _, err := ValidateSessionToken("not-a-token"); err == nil {
		t.Fatal("garbage token should be rejected")
	}
}

func TestValidateSessionToken_Tampered(t *testing.T) {
	token, err := GenerateSessionToken("client-123")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	tampered := token[:len(token)-4] + "AAAA"
	if _, err := ValidateSessionToken(tampered); err == nil {
		t.Fatal("tampered token should be rejected")
	}
}

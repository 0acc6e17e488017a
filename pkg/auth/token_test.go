package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oakline/marketplace-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret: "test-secret",
		Issuer: "oakline",
	}
}

func TestSignAndParseRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	raw, err := SignAccessToken(cfg, userID, "buyer", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseAccessToken(cfg, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, claims.UserID)
	}
	if claims.Role != "buyer" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()

	raw, err := SignAccessToken(cfg, uuid.New(), "buyer", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(cfg, raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	raw, err := SignAccessToken(testJWTConfig(), uuid.New(), "seller", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other := testJWTConfig()
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, raw); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	minted := testJWTConfig()
	minted.Issuer = "someone-else"
	raw, err := SignAccessToken(minted, uuid.New(), "buyer", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseAccessToken(testJWTConfig(), raw); err == nil {
		t.Fatalf("expected issuer mismatch to be rejected")
	}
}

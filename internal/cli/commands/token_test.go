package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/conduit-lang/querykit/internal/web/auth"
)

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")

	stdout, _, err := run(t, "", "token", "--sub", "alice", "--role", "admin", "--role", "billing", "--config", path)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}

	claims, err := auth.NewTokenService("s3cret", time.Hour).ValidateToken(strings.TrimSpace(stdout))
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Expected subject alice, got %q", claims.Subject)
	}
	if strings.Join(claims.Roles, ",") != "admin,billing" {
		t.Errorf("Expected roles admin,billing, got %v", claims.Roles)
	}
}

func TestTokenCommandWithoutSecret(t *testing.T) {
	_, _, err := run(t, "", "token", "--sub", "alice", "--config", writeConfig(t, ""))
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Expected a missing secret error, got %v", err)
	}
}

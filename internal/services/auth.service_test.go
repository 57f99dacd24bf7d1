package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthTokenRoundTrip(t *testing.T) {
	a, err := NewAuthService(testSecret, "", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	token, err := a.GenerateToken("panel")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Client != "panel" {
		t.Errorf("Client = %q, want panel", claims.Client)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	a, _ := NewAuthService(testSecret, "", time.Hour, nil)
	other, _ := NewAuthService(strings.Repeat("x", 40), "", time.Hour, nil)

	foreign, _ := other.GenerateToken("panel")
	if _, err := a.ValidateToken(foreign); err == nil {
		t.Error("token signed with another key was accepted")
	}

	if _, err := a.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token was accepted")
	}

	issued, _ := a.GenerateToken("panel")
	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := a.ValidateToken(issued); err == nil {
		t.Error("expired token was accepted")
	}
}

// TestAuthPersistsGeneratedSecret checks the generated key is reused.
func TestAuthPersistsGeneratedSecret(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "usage-applet", "secret-key")

	first, err := NewAuthService("", keyFile, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("secret not persisted: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	token, _ := first.GenerateToken("panel")

	second, err := NewAuthService("", keyFile, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := second.ValidateToken(token); err != nil {
		t.Errorf("token from first instance rejected by second: %v", err)
	}
}

// TestAuthShortSecretSharedAcrossInstances checks that a short configured
// secret yields the same key in every process, so a token printed by one
// instance is accepted by the server.
func TestAuthShortSecretSharedAcrossInstances(t *testing.T) {
	printer, err := NewAuthService("short-secret", "", 0, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	server, err := NewAuthService("short-secret", "", 0, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	if len(server.secretKey) < 32 {
		t.Errorf("secret length = %d, want >= 32", len(server.secretKey))
	}
	token, err := printer.GenerateToken("panel")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := server.ValidateToken(token); err != nil {
		t.Errorf("token from another instance with the same secret rejected: %v", err)
	}

	other, _ := NewAuthService("other-secret", "", 0, nil)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token accepted under a different short secret")
	}

	if server.TokenExpiry() != 90*24*time.Hour {
		t.Errorf("TokenExpiry() = %v, want 90 days", server.TokenExpiry())
	}
}

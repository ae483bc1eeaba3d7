package oauth

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{
		config:    &oauth2.Config{ClientID: "id", ClientSecret: "secret"},
		tokensDir: t.TempDir(),
		logger:    slog.Default(),
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	m := testManager(t)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := m.SaveToken("user@example.com", token); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if !m.HasToken("user@example.com") {
		t.Error("HasToken should be true after save")
	}

	loaded, err := m.loadToken("user@example.com")
	if err != nil {
		t.Fatalf("loadToken: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("loaded token = %+v", loaded)
	}
}

func TestTokenFilePermissions(t *testing.T) {
	m := testManager(t)
	if err := m.SaveToken("user@example.com", &oauth2.Token{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(m.TokenPath("user@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 0600", perm)
	}
}

func TestDeleteToken(t *testing.T) {
	m := testManager(t)
	if err := m.SaveToken("user@example.com", &oauth2.Token{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteToken("user@example.com"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if m.HasToken("user@example.com") {
		t.Error("token should be gone")
	}

	// Deleting a missing token is not an error.
	if err := m.DeleteToken("user@example.com"); err != nil {
		t.Errorf("second DeleteToken: %v", err)
	}
}

func TestTokenPathSanitizesTraversal(t *testing.T) {
	m := testManager(t)

	tests := []string{
		"../../etc/passwd",
		"a/../../b@example.com",
		"user\\..\\evil",
	}
	for _, email := range tests {
		path := m.tokenPath(email)
		if !strings.HasPrefix(path, filepath.Clean(m.tokensDir)) {
			t.Errorf("tokenPath(%q) = %q escapes tokens dir", email, path)
		}
	}
}

func TestHasTokenMissing(t *testing.T) {
	m := testManager(t)
	if m.HasToken("nobody@example.com") {
		t.Error("HasToken should be false with no token file")
	}
}

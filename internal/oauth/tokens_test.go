package oauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tokens")
	store, err := NewTokenStore(dir)
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat token dir: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Fatalf("expected 0700 dir, got %o", perm)
	}

	token := &Token{
		AccountID:    "dbid:abc/123",
		AccountEmail: "user@example.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
	if err := store.Save(token); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if token.AuthorizedAt.IsZero() || token.UpdatedAt.IsZero() {
		t.Fatal("expected save to stamp timestamps")
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one token file, got %v (%v)", entries, err)
	}
	fileInfo, err := entries[0].Info()
	if err != nil {
		t.Fatalf("token file info: %v", err)
	}
	if perm := fileInfo.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 token file, got %o", perm)
	}

	loaded, err := store.Load("dbid:abc/123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil || loaded.AccessToken != "at" || loaded.AccountEmail != "user@example.com" {
		t.Fatalf("unexpected loaded token %+v", loaded)
	}

	accounts, err := store.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != "dbid:abc/123" {
		t.Fatalf("unexpected accounts %v", accounts)
	}

	if err := store.Delete("dbid:abc/123"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if loaded, err := store.Load("dbid:abc/123"); err != nil || loaded != nil {
		t.Fatalf("expected missing token after delete, got %+v (%v)", loaded, err)
	}
}

func TestTokenExpiresWithin(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		token  Token
		margin time.Duration
		want   bool
	}{
		{"well before expiry", Token{ExpiresAt: now.Add(time.Hour)}, 5 * time.Minute, false},
		{"inside margin", Token{ExpiresAt: now.Add(2 * time.Minute)}, 5 * time.Minute, true},
		{"already expired", Token{ExpiresAt: now.Add(-time.Minute)}, 5 * time.Minute, true},
		{"no expiry with refresh token", Token{RefreshToken: "rt"}, 5 * time.Minute, true},
		{"no expiry without refresh token", Token{}, 5 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.token.ExpiresWithin(now, tc.margin); got != tc.want {
				t.Fatalf("ExpiresWithin = %v, want %v", got, tc.want)
			}
		})
	}
}

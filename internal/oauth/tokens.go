package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voxbox/internal/fileutil"
)

// Token is one account's stored credential set.
type Token struct {
	AccountID    string    `json:"account_id"`
	AccountEmail string    `json:"account_email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	AuthorizedAt time.Time `json:"authorized_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the margin.
// Tokens without a recorded expiry are treated as already stale so callers
// refresh before first use.
func (t *Token) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return t.RefreshToken != ""
	}
	return !now.Add(margin).Before(t.ExpiresAt)
}

// TokenStore persists tokens as one JSON file per account under a directory
// readable only by the daemon user.
type TokenStore struct {
	dir string
}

// NewTokenStore creates the token directory when missing and tightens its
// permissions.
func NewTokenStore(dir string) (*TokenStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("token store: directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("token store: create directory: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, fmt.Errorf("token store: restrict directory: %w", err)
	}
	return &TokenStore{dir: dir}, nil
}

// Save writes or replaces the token for its account.
func (s *TokenStore) Save(token *Token) error {
	if token == nil || strings.TrimSpace(token.AccountID) == "" {
		return errors.New("token store: account id required")
	}
	now := time.Now().UTC()
	token.UpdatedAt = now
	if token.AuthorizedAt.IsZero() {
		token.AuthorizedAt = now
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("token store: encode token: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.tokenPath(token.AccountID), data, 0o600); err != nil {
		return fmt.Errorf("token store: write token: %w", err)
	}
	return nil
}

// Load returns the stored token for an account, or nil when absent.
func (s *TokenStore) Load(accountID string) (*Token, error) {
	data, err := os.ReadFile(s.tokenPath(accountID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("token store: read token: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("token store: decode token for %s: %w", accountID, err)
	}
	return &token, nil
}

// Delete removes the stored token for an account.
func (s *TokenStore) Delete(accountID string) error {
	err := os.Remove(s.tokenPath(accountID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("token store: delete token: %w", err)
	}
	return nil
}

// ListAccounts returns the account IDs with stored tokens, sorted.
func (s *TokenStore) ListAccounts() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("token store: list directory: %w", err)
	}
	var accounts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		token, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || token == nil {
			continue
		}
		if token.AccountID != "" {
			accounts = append(accounts, token.AccountID)
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (s *TokenStore) tokenPath(accountID string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_")
	return filepath.Join(s.dir, replacer.Replace(accountID)+".json")
}

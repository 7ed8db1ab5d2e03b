package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxbox/internal/services"
	"voxbox/internal/services/dropbox"
)

const (
	defaultAuthorizeURL  = "https://www.dropbox.com/oauth2/authorize"
	defaultTokenURL      = "https://api.dropboxapi.com/oauth2/token"
	defaultRefreshMargin = 5 * time.Minute
)

// State describes where the manager is in the authorization lifecycle.
type State string

const (
	StateUnauthorized State = "unauthorized"
	StatePending      State = "pending"
	StateAuthorized   State = "authorized"
	StateRefreshing   State = "refreshing"
	StateExpired      State = "expired"
)

// AccountVerifier resolves an access token to its owning account.
type AccountVerifier interface {
	CurrentAccount(ctx context.Context, token string) (dropbox.Account, error)
}

// HTTPDoer describes the HTTP client used for token endpoint requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the settings the authorization flow needs.
type Config struct {
	AppKey          string
	AppSecret       string
	RedirectURI     string
	AllowedAccounts []string
	RefreshMargin   time.Duration
}

// Manager owns the OAuth authorization and refresh lifecycle. All token
// writes go through its mutex so concurrent refreshes cannot clobber each
// other.
type Manager struct {
	cfg      Config
	store    *TokenStore
	verifier AccountVerifier

	httpClient   HTTPDoer
	authorizeURL string
	tokenURL     string
	now          func() time.Time

	mu           sync.Mutex
	state        State
	stateParam   string
	codeVerifier string
}

// ManagerOption customizes the manager.
type ManagerOption func(*Manager)

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(client HTTPDoer) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithEndpoints overrides the authorize and token URLs (useful for tests).
func WithEndpoints(authorizeURL, tokenURL string) ManagerOption {
	return func(m *Manager) {
		if authorizeURL != "" {
			m.authorizeURL = authorizeURL
		}
		if tokenURL != "" {
			m.tokenURL = tokenURL
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs an authorization manager.
func NewManager(cfg Config, store *TokenStore, verifier AccountVerifier, opts ...ManagerOption) *Manager {
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = defaultRefreshMargin
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		verifier:     verifier,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		authorizeURL: defaultAuthorizeURL,
		tokenURL:     defaultTokenURL,
		now:          time.Now,
		state:        StateUnauthorized,
	}
	for _, opt := range opts {
		opt(m)
	}
	if accounts, err := store.ListAccounts(); err == nil && len(accounts) > 0 {
		m.state = StateAuthorized
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Store exposes the underlying token store.
func (m *Manager) Store() *TokenStore {
	return m.store
}

// AuthorizationURL builds the browser URL that starts a new authorization,
// generating fresh state and PKCE material.
func (m *Manager) AuthorizationURL() (string, error) {
	verifier, err := randomURLSafe(48)
	if err != nil {
		return "", fmt.Errorf("oauth authorize: generate verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	state := uuid.NewString()

	m.mu.Lock()
	m.stateParam = state
	m.codeVerifier = verifier
	if m.state == StateUnauthorized {
		m.state = StatePending
	}
	m.mu.Unlock()

	params := url.Values{}
	params.Set("client_id", m.cfg.AppKey)
	params.Set("response_type", "code")
	params.Set("redirect_uri", m.cfg.RedirectURI)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")
	params.Set("token_access_type", "offline")
	return m.authorizeURL + "?" + params.Encode(), nil
}

// HandleCallback validates the state parameter, exchanges the code, enforces
// the account allowlist, and persists the resulting token.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*Token, error) {
	m.mu.Lock()
	expectedState := m.stateParam
	verifier := m.codeVerifier
	m.mu.Unlock()

	if expectedState == "" || state != expectedState {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "callback", "state mismatch", nil)
	}
	if strings.TrimSpace(code) == "" {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "callback", "authorization code required", nil)
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", m.cfg.AppKey)
	form.Set("client_secret", m.cfg.AppSecret)
	form.Set("redirect_uri", m.cfg.RedirectURI)
	form.Set("code_verifier", verifier)

	payload, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "exchange", "code exchange failed", err)
	}

	account, err := m.verifier.CurrentAccount(ctx, payload.AccessToken)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "exchange", "verify account", err)
	}
	if !m.accountAllowed(account) {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "exchange",
			fmt.Sprintf("account %s is not on the allowlist", account.Email), nil)
	}

	token := &Token{
		AccountID:    account.AccountID,
		AccountEmail: account.Email,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    m.expiryFrom(payload.ExpiresIn),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(token); err != nil {
		return nil, err
	}
	m.state = StateAuthorized
	m.stateParam = ""
	m.codeVerifier = ""
	return token, nil
}

// FreshAccessToken returns an access token for the account, refreshing first
// when the stored one expires within the configured margin. A rejected
// refresh moves the manager to expired and surfaces an authorization error.
func (m *Manager) FreshAccessToken(ctx context.Context, accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.store.Load(accountID)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", services.Wrap(services.ErrAuthorization, "oauth", "token", "no stored token for "+accountID, nil)
	}
	if !token.ExpiresWithin(m.now(), m.cfg.RefreshMargin) {
		return token.AccessToken, nil
	}
	if token.RefreshToken == "" {
		m.state = StateExpired
		return "", services.Wrap(services.ErrAuthorization, "oauth", "token", "token expired and no refresh token stored", nil)
	}

	previous := m.state
	m.state = StateRefreshing
	refreshed, err := m.refreshLocked(ctx, token)
	if err != nil {
		m.state = StateExpired
		return "", err
	}
	if previous == StateUnauthorized || previous == StateExpired {
		previous = StateAuthorized
	}
	m.state = previous
	return refreshed.AccessToken, nil
}

// MarkExpired records that remote storage rejected the account's credentials.
func (m *Manager) MarkExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateExpired
}

func (m *Manager) refreshLocked(ctx context.Context, token *Token) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", m.cfg.AppKey)
	form.Set("client_secret", m.cfg.AppSecret)

	payload, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthorization, "oauth", "refresh", "refresh rejected for "+token.AccountID, err)
	}
	token.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		token.RefreshToken = payload.RefreshToken
	}
	token.ExpiresAt = m.expiryFrom(payload.ExpiresIn)
	if err := m.store.Save(token); err != nil {
		return nil, err
	}
	return token, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post token endpoint: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &payload, nil
}

func (m *Manager) accountAllowed(account dropbox.Account) bool {
	if len(m.cfg.AllowedAccounts) == 0 {
		return true
	}
	for _, allowed := range m.cfg.AllowedAccounts {
		if allowed == account.AccountID || strings.EqualFold(allowed, account.Email) {
			return true
		}
	}
	return false
}

func (m *Manager) expiryFrom(expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return m.now().Add(time.Duration(expiresIn) * time.Second).UTC()
}

func randomURLSafe(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

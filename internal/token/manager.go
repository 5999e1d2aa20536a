package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

var (
	// ErrReauthRequired means no valid path to an access token remains;
	// the full authorization-code flow has to run again.
	ErrReauthRequired = errors.New("reauthorization required")

	// ErrInvalidGrant means the provider rejected the code or refresh token.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrProviderUnreachable means the token endpoint could not be reached
	// or answered with a server-side failure.
	ErrProviderUnreachable = errors.New("provider unreachable")
)

// expirySkew keeps a token from being handed out moments before it expires.
const expirySkew = time.Minute

// Manager owns the token lifecycle: it is the only path to a usable
// access token and the only writer of the Store.
type Manager struct {
	mu    sync.Mutex
	store Store
	oauth *oauth2.Config
	log   *logger.Logger
	now   func() time.Time
}

// NewManager creates a Manager over the given store and OAuth config.
func NewManager(store Store, oauthCfg *oauth2.Config, log *logger.Logger) *Manager {
	return &Manager{
		store: store,
		oauth: oauthCfg,
		now:   time.Now,
		log:   log,
	}
}

// EnsureValid returns a usable access token record.
//
// A fresh stored token is returned unchanged with no network call. An
// expired access token with a live refresh token triggers exactly one
// refresh exchange, persisted before returning. A missing record or an
// expired refresh token yields ErrReauthRequired; exchange failures are
// surfaced as ErrInvalidGrant or ErrProviderUnreachable, never retried here.
func (m *Manager) EnsureValid(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, ErrReauthRequired
		}
		return nil, err
	}

	now := m.now().UTC()
	if rec.AccessValid(now, expirySkew) {
		return rec, nil
	}
	if !rec.RefreshValid(now) {
		return nil, ErrReauthRequired
	}
	return m.refreshLocked(ctx, rec)
}

// Refresh forces a refresh exchange regardless of the access token's age.
// It fails with ErrReauthRequired when no refreshable record exists.
func (m *Manager) Refresh(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, ErrReauthRequired
		}
		return nil, err
	}
	if !rec.RefreshValid(m.now().UTC()) {
		return nil, ErrReauthRequired
	}
	return m.refreshLocked(ctx, rec)
}

func (m *Manager) refreshLocked(ctx context.Context, rec *Record) (*Record, error) {
	src := m.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		// Force the source to consider the token stale.
		Expiry: m.now().UTC().Add(-time.Hour),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyExchangeErr(err)
	}

	updated := m.recordFromToken(tok, rec)
	if err := m.store.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	m.log.Info("access token refreshed",
		"access_token_expiry", updated.AccessTokenExpiry,
		"refresh_token_expiry", updated.RefreshTokenExpiry,
	)
	return updated, nil
}

// Exchange swaps an authorization code for a token pair and persists it.
// Used by the OAuth callback; opts carry the PKCE verifier when enabled.
func (m *Manager) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classifyExchangeErr(err)
	}
	rec := m.recordFromToken(tok, nil)
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist exchanged token: %w", err)
	}
	m.log.Info("token pair obtained",
		"access_token_expiry", rec.AccessTokenExpiry,
		"refresh_token_expiry", rec.RefreshTokenExpiry,
	)
	return rec, nil
}

// recordFromToken converts an exchange response into a Record. Webex token
// responses carry refresh_token_expires_in alongside expires_in; when the
// provider omits it (refresh responses may), the previous expiry is kept.
func (m *Manager) recordFromToken(tok *oauth2.Token, prev *Record) *Record {
	now := m.now().UTC()
	rec := &Record{
		AccessToken:       tok.AccessToken,
		AccessTokenExpiry: tok.Expiry.UTC(),
		RefreshToken:      tok.RefreshToken,
		AcquiredAt:        now,
	}
	if rec.RefreshToken == "" && prev != nil {
		rec.RefreshToken = prev.RefreshToken
	}
	if secs, ok := extraSeconds(tok, "refresh_token_expires_in"); ok {
		rec.RefreshTokenExpiry = now.Add(time.Duration(secs) * time.Second)
	} else if prev != nil {
		rec.RefreshTokenExpiry = prev.RefreshTokenExpiry
	}
	return rec
}

func extraSeconds(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// classifyExchangeErr maps token-endpoint failures onto the error taxonomy.
// A 4xx response means the grant itself was rejected; anything else is
// treated as the provider being unreachable.
func classifyExchangeErr(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= http.StatusBadRequest &&
			rerr.Response.StatusCode < http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrInvalidGrant, exchangeDetail(rerr))
		}
		return fmt.Errorf("%w: %s", ErrProviderUnreachable, exchangeDetail(rerr))
	}
	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

func exchangeDetail(rerr *oauth2.RetrieveError) string {
	if rerr.ErrorCode != "" {
		if rerr.ErrorDescription != "" {
			return fmt.Sprintf("%s: %s", rerr.ErrorCode, rerr.ErrorDescription)
		}
		return rerr.ErrorCode
	}
	if rerr.Response != nil {
		return fmt.Sprintf("status %d", rerr.Response.StatusCode)
	}
	return rerr.Error()
}

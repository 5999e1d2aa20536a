package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/token"
	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/pkg/logger"
)

// ErrStateMismatch means the state returned by the provider does not match
// the one bound to this browser.
var ErrStateMismatch = errors.New("oauth state mismatch")

// Flow drives the browser-redirect authorization-code exchange: it issues
// the redirect to the provider's consent screen and completes the callback.
type Flow struct {
	oauth    *oauth2.Config
	manager  *token.Manager
	states   StateStore
	secret   []byte
	stateTTL time.Duration
	usePKCE  bool
	log      *logger.Logger
}

func NewFlow(oauthCfg *oauth2.Config, manager *token.Manager, states StateStore, secret []byte, stateTTL time.Duration, usePKCE bool, log *logger.Logger) *Flow {
	return &Flow{
		oauth:    oauthCfg,
		manager:  manager,
		states:   states,
		secret:   secret,
		stateTTL: stateTTL,
		usePKCE:  usePKCE,
		log:      log,
	}
}

// Begin issues a fresh state (and PKCE verifier when enabled), binds it to
// the browser via a signed cookie, and returns the provider authorization
// URL to redirect to.
func (f *Flow) Begin(ctx context.Context, w http.ResponseWriter) (string, error) {
	login := PendingLogin{
		State:     uuid.NewString(),
		ExpiresAt: time.Now().Add(f.stateTTL),
	}

	var opts []oauth2.AuthCodeOption
	if f.usePKCE {
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			return "", err
		}
		login.CodeVerifier = verifier
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", CodeChallenge(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	if err := f.states.Issue(ctx, login); err != nil {
		return "", fmt.Errorf("store pending login: %w", err)
	}
	SetStateCookie(w, login.State, f.secret, f.stateTTL)

	f.log.Info("starting authorization flow", "state", login.State)
	return f.oauth.AuthCodeURL(login.State, opts...), nil
}

// Complete validates the callback against the pending login and exchanges
// the code for a token pair, which the manager persists.
func (f *Flow) Complete(ctx context.Context, w http.ResponseWriter, r *http.Request) (*token.Record, error) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		return nil, fmt.Errorf("provider denied authorization: %s", errCode)
	}
	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		return nil, errors.New("callback missing state or code")
	}

	cookieState, err := StateFromCookie(r, f.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	if cookieState != state {
		return nil, ErrStateMismatch
	}

	login, err := f.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	ClearStateCookie(w)

	var opts []oauth2.AuthCodeOption
	if login.CodeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", login.CodeVerifier))
	}
	return f.manager.Exchange(ctx, code, opts...)
}

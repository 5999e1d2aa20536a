package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const stateCookieName = "oauth_state"

// Compute HMAC-SHA256 signature of a message using secret
func computeHMAC(message string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Validate HMAC signature
func validateHMAC(message, sig string, secret []byte) bool {
	expected := computeHMAC(message, secret)
	return hmac.Equal([]byte(sig), []byte(expected))
}

// SetStateCookie binds the pending login's state to the browser that
// started it, signed so the callback can trust the value.
func SetStateCookie(w http.ResponseWriter, state string, secret []byte, ttl time.Duration) {
	value := base64.URLEncoding.EncodeToString([]byte(state))
	sig := computeHMAC(value, secret)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    fmt.Sprintf("%s|%s", value, sig),
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// StateFromCookie reads and verifies the signed state cookie.
func StateFromCookie(r *http.Request, secret []byte) (string, error) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return "", err
	}
	parts := strings.Split(c.Value, "|")
	if len(parts) != 2 {
		return "", errors.New("invalid state cookie format")
	}
	value, sig := parts[0], parts[1]
	if !validateHMAC(value, sig, secret) {
		return "", errors.New("invalid state cookie signature")
	}
	state, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return "", err
	}
	return string(state), nil
}

// ClearStateCookie expires the state cookie after the callback completes.
func ClearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

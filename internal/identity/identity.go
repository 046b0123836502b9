// Package identity resolves who is calling: a signed-in user from a bearer
// token, or an anonymous per-device id kept in a cookie.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AnonCookieName        = "pm_anon_id"
	SessionHeaderName     = "X-PM-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	anonymousKey
	sessionIDKey
	tokenKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	userIDPattern    = regexp.MustCompile(`^[A-Za-z0-9._|@-]{1,128}$`)
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// IsAnonymous reports whether the caller was identified by cookie only.
func IsAnonymous(ctx context.Context) bool {
	v, ok := ctx.Value(anonymousKey).(bool)
	return !ok || v
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithUserID returns ctx carrying userID as a signed-in identity. Used by tests
// and by callers that authenticate out of band.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, anonymousKey, false)
}

// WithToken returns ctx carrying the verified bearer token of the caller.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the caller's verified bearer token, or "".
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// Namespace scopes storage keys under prefix for the caller in ctx.
func Namespace(ctx context.Context, prefix string) store.Namespace {
	return store.Namespace{Prefix: prefix, UserID: UserIDFromContext(ctx)}
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// bearerToken reads the Authorization header, then the token query parameter
// for websocket handshakes that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// parseSubject verifies an HS256 token and returns its sub claim.
func parseSubject(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || !userIDPattern.MatchString(sub) {
		return "", ErrInvalidToken
	}
	return sub, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the caller identity and per-request session ID. With a
// non-empty jwtSecret a bearer token is honoured; a bad token is rejected
// with 401 rather than downgraded to anonymous.
func Middleware(jwtSecret string, isDev bool) func(http.Handler) http.Handler {
	return middleware(jwtSecret, isDev, true)
}

// LenientMiddleware is Middleware for routes that must answer regardless of
// credentials: a bad token falls back to the anonymous cookie identity.
func LenientMiddleware(jwtSecret string, isDev bool) func(http.Handler) http.Handler {
	return middleware(jwtSecret, isDev, false)
}

func middleware(jwtSecret string, isDev, rejectInvalid bool) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authenticated := false
			if tok := bearerToken(r); tok != "" && len(secret) > 0 {
				sub, err := parseSubject(tok, secret)
				switch {
				case err == nil:
					ctx = WithToken(WithUserID(ctx, sub), tok)
					authenticated = true
				case rejectInvalid:
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				default:
					slog.Debug("ignoring invalid bearer token", "path", r.URL.Path)
				}
			}

			if !authenticated {
				anonID, err := getOrCreateAnonID(w, r, isDev)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "failed to establish anonymous identity")
					return
				}
				ctx = context.WithValue(ctx, userIDKey, anonID)
				ctx = context.WithValue(ctx, anonymousKey, true)
			}

			ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError mirrors api.Error; importing api here would be a cycle.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Roles in ascending order of privilege. A token grants every role at or
// below its own.
var Roles = []string{"user", "resident", "admin", "service"}

// Claims is the token payload the panel cares about.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// LoadRSAPublicKey reads a PEM encoded RSA public key.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}

// Authenticator guards the panel routes with RS256 tokens.
type Authenticator struct {
	key     *rsa.PublicKey
	minRank int
}

func NewAuthenticator(key *rsa.PublicKey, requiredRole string) (*Authenticator, error) {
	if key == nil {
		return nil, fmt.Errorf("missing public key")
	}
	rank := slices.Index(Roles, requiredRole)
	if rank < 0 {
		return nil, fmt.Errorf("unknown role %q", requiredRole)
	}
	return &Authenticator{key: key, minRank: rank}, nil
}

// Middleware rejects requests without a valid token (401) or whose role ranks
// below the required one (403).
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFrom(r)
		if raw == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return a.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if slices.Index(Roles, claims.Role) < a.minRank {
			writeJSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// ClaimsFrom returns the claims of an authenticated request, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// tokenFrom takes the bearer header, then the auth_token cookie. The token
// query parameter is honoured only on websocket upgrades, where browsers
// cannot set headers.
func tokenFrom(r *http.Request) string {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && v != "" {
		return v
	}
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message, "code": status})
}

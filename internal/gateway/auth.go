package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/programmedstyle/livechat/internal/logging"
)

// Authenticator verifies admin bearer tokens for the protected API group.
// Tokens are HS256 JWTs carrying a "role" claim; only role "admin" passes.
type Authenticator struct {
	secret []byte
	log    *logging.Logger
}

// NewAuthenticator creates an authenticator over a shared HMAC secret.
func NewAuthenticator(secret string, log *logging.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log.Component("auth")}
}

// MintToken issues an admin token. Used by the CLI and by operator tooling;
// the server itself never creates tokens on behalf of requests.
func (a *Authenticator) MintToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// Middleware rejects requests without a valid admin bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "no authentication token, access denied")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(
			strings.TrimPrefix(auth, "Bearer "), claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return a.secret, nil
			},
		)
		if err != nil || !token.Valid {
			a.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("rejected token")
			writeError(w, http.StatusUnauthorized, "token is not valid")
			return
		}

		if role, _ := claims["role"].(string); role != "admin" {
			writeError(w, http.StatusForbidden, "admin privileges required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

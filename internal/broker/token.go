package broker

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token signs and verifies the short-lived credential the relay attaches to
// dispatch webhooks, so the consumer endpoint can tell broker deliveries from
// arbitrary callers.
type Token struct {
	secret []byte
}

func NewToken(secret string) *Token {
	return &Token{secret: []byte(secret)}
}

func (t *Token) Sign(jobID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": jobID,
		"iss": "dossier-broker",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

// Verify checks the token and returns the job id it was issued for.
func (t *Token) Verify(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// RequireToken gates the dispatch webhook behind broker authentication.
func RequireToken(t *Token) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, err := t.Verify(strings.TrimPrefix(h, "Bearer ")); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

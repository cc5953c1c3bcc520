package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"pawedaran/internal/domain"
)

type ctxKey string

const RequesterKey ctxKey = "requester"

type TokenResolver interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != "" {
			return token
		}
	}
	// browsers cannot set headers on websocket upgrades
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// TokenMiddleware resolves the bearer token of every request into a domain.Requester.
// Requests without a valid token are rejected with 401 before reaching next.
func TokenMiddleware(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plainToken := bearerToken(r)
			if plainToken == "" {
				log.Printf("[AUTH] %s %s from %s: no token", r.Method, r.URL.Path, r.RemoteAddr)
				unauthorized(w, "Unauthorized")
				return
			}

			pat, err := tokens.FindTokenByPlainToken(r.Context(), plainToken)
			if err != nil {
				log.Printf("[AUTH] %s %s from %s: token lookup failed: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
				unauthorized(w, "Unauthorized")
				return
			}

			if pat.ExpiresAt != nil && pat.ExpiresAt.Before(time.Now()) {
				log.Printf("[AUTH] token id=%d expired at %v", pat.ID, pat.ExpiresAt)
				unauthorized(w, "Token expired")
				return
			}

			requester := domain.Requester{ID: pat.UserID, Role: pat.Role}
			if requester.Role == "" {
				requester.Role = domain.RoleUser
			}

			ctx := WithRequester(r.Context(), requester)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error_code":401,"status":"error","message":"` + message + `","data":null}` + "\n"))
}

func WithRequester(ctx context.Context, requester domain.Requester) context.Context {
	return context.WithValue(ctx, RequesterKey, requester)
}

func GetRequester(ctx context.Context) (domain.Requester, error) {
	requester, ok := ctx.Value(RequesterKey).(domain.Requester)
	if !ok {
		return domain.Requester{}, errors.New("requester not found in context")
	}
	return requester, nil
}

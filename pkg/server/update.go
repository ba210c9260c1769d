package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/envoylog/envoylog/pkg/log"
)

// updateAuthMiddleware requires a bearer ID token issued to updateEmail
// unless auth is bypassed.
func (s *Server) updateAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if s.updateVerifier == nil {
			log.Ctx(ctx).WarnContext(ctx, "update called without auth configured")
			writeJSONError(w, "missing authentication", http.StatusUnauthorized)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		email, err := s.authenticateToken(ctx, parts[1])
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}
		if email != s.updateEmail {
			log.Ctx(ctx).WarnContext(ctx, "unauthorized email for update", slog.String("email", email))
			writeJSONError(w, "unauthorized email", http.StatusForbidden)
			return
		}

		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("email", email)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.updateVerifier(ctx, token)
	if err != nil {
		return "", err
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", errors.New("token has no email claim")
	}
	if !claims.EmailVerified {
		return "", errors.New("token email is not verified")
	}
	return claims.Email, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := s.collector.Run(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "update failed", slog.Any("error", err))
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"update: finished",
		slog.Bool("changed", res.Changed),
		slog.Bool("newDay", res.NewDay),
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		panic(http.ErrAbortHandler)
	}
}

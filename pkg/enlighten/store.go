package enlighten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/envoylog/envoylog/pkg/common"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/levenlabs/go-lflag"
)

// DefaultMaxAge is how long a cached token is trusted. The real lifetime is
// not published; tokens have been observed to last a year.
const DefaultMaxAge = 200 * 24 * time.Hour

// ErrNoToken is returned when the token cache cannot be read. A token has to
// be seeded (see cmd/envoytoken) before collection can run.
var ErrNoToken = errors.New("missing token file")

// Refresher mints a new token from credentials.
type Refresher interface {
	NewToken(ctx context.Context, creds types.Credentials) (string, error)
}

// Store hands out the cached Envoy token, refreshing it through the cloud
// login flow once it is older than maxAge.
type Store struct {
	tokenFile       string
	credentialsFile string
	maxAge          time.Duration
	persist         bool
	refresher       Refresher
	now             func() time.Time
}

// Configured registers the token flags and returns a Store that is ready once
// flags are parsed.
func Configured() *Store {
	tokenFile := lflag.String("token-file", "/volume1/web/invdata/.token/local_api_token.json", "Path to the cached local API token")
	credentialsFile := lflag.String("credentials-file", "/volume1/homes/envoylog/private.json", "Path to the Enlighten credentials (user, password, envoy_serial)")
	loginURL := lflag.String("enlighten-login-url", DefaultLoginURL, "Enlighten login endpoint")
	tokenURL := lflag.String("enlighten-token-url", DefaultTokenURL, "Entrez token issuance endpoint")
	maxAge := lflag.Duration("token-max-age", DefaultMaxAge, "Refresh the cached token once it is older than this")
	persist := lflag.Bool("persist-refreshed-token", true, "Write refreshed tokens back to token-file")

	s := &Store{now: time.Now}
	lflag.Do(func() {
		if *maxAge <= 0 {
			panic("token-max-age must be positive")
		}
		s.tokenFile = *tokenFile
		s.credentialsFile = *credentialsFile
		s.maxAge = *maxAge
		s.persist = *persist
		s.refresher = NewClient(common.HTTPClient(time.Minute), *loginURL, *tokenURL)
	})
	return s
}

// NewStore returns a Store reading and writing tokenFile.
func NewStore(tokenFile, credentialsFile string, maxAge time.Duration, persist bool, refresher Refresher) *Store {
	return &Store{
		tokenFile:       tokenFile,
		credentialsFile: credentialsFile,
		maxAge:          maxAge,
		persist:         persist,
		refresher:       refresher,
		now:             time.Now,
	}
}

// LoadCredentials reads the private credentials file.
func LoadCredentials(path string) (types.Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	var creds types.Credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return types.Credentials{}, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if err := creds.Validate(); err != nil {
		return types.Credentials{}, fmt.Errorf("invalid credentials %s: %w", path, err)
	}
	return creds, nil
}

// Load reads the cached token.
func (s *Store) Load(ctx context.Context) (types.Token, error) {
	b, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return types.Token{}, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	var tok types.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return types.Token{}, fmt.Errorf("%w: failed to parse %s: %v", ErrNoToken, s.tokenFile, err)
	}
	if tok.AccessToken == "" {
		return types.Token{}, fmt.Errorf("%w: %s has no access_token", ErrNoToken, s.tokenFile)
	}
	return tok, nil
}

// Save atomically replaces the cached token.
func (s *Store) Save(ctx context.Context, tok types.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := common.WriteFileAtomic(s.tokenFile, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "saved token", slog.String("path", s.tokenFile))
	return nil
}

// Token returns a usable access token. The cached token is returned as-is
// unless it is older than the configured max age, in which case a new one is
// obtained.
func (s *Store) Token(ctx context.Context) (string, error) {
	tok, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	if exp, ok := tokenExpiry(tok.AccessToken); ok {
		log.Ctx(ctx).DebugContext(ctx, "cached token expiry", slog.Time("exp", exp), slog.Time("issued", tok.IssuedAt.Time))
	}

	if !tok.Stale(s.now(), s.maxAge) {
		return tok.AccessToken, nil
	}

	log.Ctx(ctx).InfoContext(ctx, "need to refresh token",
		slog.Time("issued", tok.IssuedAt.Time),
		slog.Duration("maxAge", s.maxAge),
	)
	return s.Refresh(ctx)
}

// Refresh unconditionally obtains a new token and, if enabled, persists it.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	creds, err := LoadCredentials(s.credentialsFile)
	if err != nil {
		return "", err
	}

	access, err := s.refresher.NewToken(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if exp, ok := tokenExpiry(access); ok {
		log.Ctx(ctx).InfoContext(ctx, "new token expiry", slog.Time("exp", exp))
	}

	if s.persist {
		// the token is still usable for this run even if it couldn't be saved
		if err := s.Save(ctx, types.Token{AccessToken: access, IssuedAt: types.UnixTime{Time: s.now()}}); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to persist refreshed token", slog.Any("error", err))
		}
	}
	return access, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// signing key belongs to Enphase and we only use this for logging.
func tokenExpiry(raw string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/envoylog/envoylog/pkg/collector"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/levenlabs/go-lflag"
)

// tokenVerifier validates a Google-signed ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Runner performs one collection. Location is the zone day files are named
// in.
type Runner interface {
	Run(ctx context.Context) (collector.Result, error)
	Location() *time.Location
}

// Server publishes the stored manifest and daily history files over HTTP
// and lets a scheduler trigger collection runs.
type Server struct {
	storage   storage.Database
	collector Runner

	listenAddr   string
	pathPrefix   string
	manifestName string
	httpServer   *http.Server
	serverName   string
	pastMaxAge   time.Duration
	now          func() time.Time

	updateEmail    string
	updateVerifier tokenVerifier
	bypassAuth     bool
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(s storage.Database, c Runner) *Server {
	srv := &Server{
		storage:    s,
		collector:  c,
		serverName: "envoylog",
		now:        time.Now,
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	pathPrefix := lflag.String("http-path-prefix", "/invdata/", "URL path the manifest and daily files are served under")
	manifestName := lflag.String("http-manifest-name", "sm_manifest.json", "File name the manifest is served as")
	updateAudience := lflag.String("update-oidc-audience", "", "Audience of the Google ID token required for /api/update")
	updateEmail := lflag.String("update-email", "", "Service account email allowed to call /api/update")
	bypassAuth := lflag.Bool("update-bypass-auth", false, "Allow unauthenticated calls to /api/update (local use only)")
	cacheDuration := lflag.Duration("cache-duration", 24*time.Hour, "Cache-Control max-age for daily files of past days")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.pathPrefix = *pathPrefix
		if !strings.HasPrefix(srv.pathPrefix, "/") || !strings.HasSuffix(srv.pathPrefix, "/") {
			log.Ctx(context.Background()).Error("http-path-prefix must start and end with /", slog.String("prefix", srv.pathPrefix))
			os.Exit(1)
		}
		srv.manifestName = *manifestName
		srv.updateEmail = *updateEmail
		srv.bypassAuth = *bypassAuth
		srv.pastMaxAge = *cacheDuration

		if *updateAudience != "" {
			if srv.updateEmail == "" {
				log.Ctx(context.Background()).Error("update-email is required with update-oidc-audience")
				os.Exit(1)
			}
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.updateVerifier = provider.Verifier(&oidc.Config{ClientID: *updateAudience}).Verify
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.pathPrefix+"{name}", s.handleFile)
	mux.Handle("POST /api/update", s.updateAuthMiddleware(http.HandlerFunc(s.handleUpdate)))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

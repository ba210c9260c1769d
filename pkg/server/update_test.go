package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/envoylog/envoylog/pkg/collector"
	"github.com/envoylog/envoylog/pkg/storage/storagemock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudience = "test-audience"

// setupOIDCTest starts a minimal OpenID provider serving discovery and a
// single RSA signing key.
func setupOIDCTest(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": "test",
				"n":   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
			}},
		})
	})

	return srv, priv
}

func generateTestToken(t *testing.T, issuer, audience string, priv *rsa.PrivateKey, email string) string {
	t.Helper()

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            issuer,
		"aud":            audience,
		"sub":            "1234567890",
		"email":          email,
		"email_verified": true,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "test"
	raw, err := tok.SignedString(priv)
	require.NoError(t, err)
	return raw
}

func TestHandleUpdate(t *testing.T) {
	oidcSrv, priv := setupOIDCTest(t)
	provider, err := oidc.NewProvider(context.Background(), oidcSrv.URL)
	require.NoError(t, err)

	newServer := func(r Runner) *Server {
		srv := newTestServer(&storagemock.MockDatabase{}, r)
		srv.updateEmail = "scheduler@example.iam.gserviceaccount.com"
		srv.updateVerifier = provider.Verifier(&oidc.Config{ClientID: testAudience}).Verify
		return srv
	}
	post := func(srv *Server, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/update", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		return w
	}

	t.Run("Valid Token", func(t *testing.T) {
		r := &fakeRunner{res: collector.Result{
			Day:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Reports:   2,
			Changed:   true,
			Inverters: 2,
		}}
		srv := newServer(r)
		token := generateTestToken(t, oidcSrv.URL, testAudience, priv, srv.updateEmail)

		w := post(srv, "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, r.calls)
		var res collector.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, r.res, res)
	})

	t.Run("Wrong Email", func(t *testing.T) {
		r := &fakeRunner{}
		srv := newServer(r)
		token := generateTestToken(t, oidcSrv.URL, testAudience, priv, "someone@example.com")

		w := post(srv, "Bearer "+token)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 0, r.calls)
	})

	t.Run("Wrong Audience", func(t *testing.T) {
		r := &fakeRunner{}
		srv := newServer(r)
		token := generateTestToken(t, oidcSrv.URL, "other-audience", priv, srv.updateEmail)

		w := post(srv, "Bearer "+token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 0, r.calls)
	})

	t.Run("Missing Header", func(t *testing.T) {
		r := &fakeRunner{}
		w := post(newServer(r), "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"missing authorization header"}`, w.Body.String())
		assert.Equal(t, 0, r.calls)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		r := &fakeRunner{}
		w := post(newServer(r), "Basic abc")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 0, r.calls)
	})

	t.Run("No Verifier Configured", func(t *testing.T) {
		r := &fakeRunner{}
		srv := newTestServer(&storagemock.MockDatabase{}, r)

		w := post(srv, "Bearer anything")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 0, r.calls)
	})

	t.Run("Bypass Auth", func(t *testing.T) {
		r := &fakeRunner{}
		srv := newTestServer(&storagemock.MockDatabase{}, r)
		srv.bypassAuth = true

		w := post(srv, "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("Run Failure", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("envoy unreachable")}
		srv := newTestServer(&storagemock.MockDatabase{}, r)
		srv.bypassAuth = true

		w := post(srv, "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"update failed"}`, w.Body.String())
	})
}

package enlighten

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
)

const (
	DefaultLoginURL = "https://enlighten.enphaseenergy.com/login/login.json"
	DefaultTokenURL = "https://entrez.enphaseenergy.com/tokens"
)

// Client performs the Enlighten cloud login flow that mints tokens for the
// Envoy's local API.
type Client struct {
	client   *http.Client
	loginURL string
	tokenURL string
}

// NewClient returns a Client using the given endpoints.
func NewClient(client *http.Client, loginURL, tokenURL string) *Client {
	return &Client{
		client:   client,
		loginURL: loginURL,
		tokenURL: tokenURL,
	}
}

type loginResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type tokenRequest struct {
	SessionID string `json:"session_id"`
	Serial    string `json:"serial_num"`
	Username  string `json:"username"`
}

// NewToken exchanges the credentials for a session and the session for a new
// Envoy token.
func (c *Client) NewToken(ctx context.Context, creds types.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", err)
	}

	sessionID, err := c.login(ctx, creds.User, creds.Password)
	if err != nil {
		return "", err
	}

	token, err := c.issueToken(ctx, sessionID, creds.EnvoySerial, creds.User)
	if err != nil {
		return "", err
	}
	log.Ctx(ctx).InfoContext(ctx, "obtained new envoy token", slog.String("serial", creds.EnvoySerial))
	return token, nil
}

func (c *Client) login(ctx context.Context, username, password string) (string, error) {
	data := url.Values{}
	data.Set("user[email]", username)
	data.Set("user[password]", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "enlighten login failed", slog.Any("error", err))
		return "", fmt.Errorf("login failed: %w", err)
	}

	var res loginResult
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if res.SessionID == "" {
		if res.Message != "" {
			return "", fmt.Errorf("login failed: %s", res.Message)
		}
		return "", errors.New("login failed: missing session_id")
	}
	log.Ctx(ctx).DebugContext(ctx, "enlighten login success", slog.String("username", username))
	return res.SessionID, nil
}

func (c *Client) issueToken(ctx context.Context, sessionID, serial, username string) (string, error) {
	b, err := json.Marshal(tokenRequest{
		SessionID: sessionID,
		Serial:    serial,
		Username:  username,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "entrez token request failed", slog.Any("error", err))
		return "", fmt.Errorf("token request failed: %w", err)
	}

	// the body is the token itself, not a JSON document
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", errors.New("token request returned an empty token")
	}
	return token, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return body, nil
}

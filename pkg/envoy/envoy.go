package envoy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/envoylog/envoylog/pkg/common"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// InvertersPath is the local API endpoint listing the latest report of every
// microinverter.
const InvertersPath = "/api/v1/production/inverters"

// Client reads from an Envoy gateway's local HTTPS API.
type Client struct {
	client        *http.Client
	baseURL       string
	invertersPath string
}

// Configured registers the envoy flags and returns a Client that is ready once
// flags are parsed.
func Configured() *Client {
	host := lflag.String("envoy-host", "192.168.0.213", "Host (and optional port) of the Envoy on the local network")
	path := lflag.String("envoy-inverters-path", InvertersPath, "Local API path returning per-inverter reports")
	timeout := lflag.Duration("envoy-timeout", time.Minute, "Timeout for requests to the Envoy")

	c := &Client{}
	lflag.Do(func() {
		if *host == "" {
			panic("envoy-host is required")
		}
		c.baseURL = "https://" + *host
		c.invertersPath = *path
		c.client = common.LocalHTTPClient(*timeout)
	})
	return c
}

// New returns a Client for baseURL (e.g. "https://192.168.0.213") using the
// given http client.
func New(baseURL string, client *http.Client) *Client {
	return &Client{
		client:        client,
		baseURL:       baseURL,
		invertersPath: InvertersPath,
	}
}

// Inverters returns the latest report for every inverter the Envoy knows
// about.
func (c *Client) Inverters(ctx context.Context, token string) ([]types.InverterReport, error) {
	var reports []types.InverterReport
	if err := c.Read(ctx, c.invertersPath, token, &reports); err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "read inverters", slog.Int("count", len(reports)))
	return reports, nil
}

// Read issues an authenticated GET for path and decodes the JSON body into
// dest.
func (c *Client) Read(ctx context.Context, path, token string, dest any) error {
	req, err := c.newGetRequest(ctx, path)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("envoy request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read envoy response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "envoy api error", slog.Int("status", resp.StatusCode), slog.String("path", path))
		return fmt.Errorf("envoy returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode envoy response", slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode envoy response: %w", err)
	}
	return nil
}

func (c *Client) newGetRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

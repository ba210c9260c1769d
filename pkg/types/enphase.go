package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Credentials are the Enlighten account details used to mint a new local API
// token. They are loaded once from a private file and never modified.
type Credentials struct {
	User        string `json:"user"`
	Password    string `json:"password"`
	EnvoySerial string `json:"envoy_serial"`
}

// Validate checks that every field needed for the login flow is present.
func (c Credentials) Validate() error {
	if c.User == "" {
		return fmt.Errorf("missing user")
	}
	if c.Password == "" {
		return fmt.Errorf("missing password")
	}
	if c.EnvoySerial == "" {
		return fmt.Errorf("missing envoy_serial")
	}
	return nil
}

// UnixTime is a time encoded in JSON as seconds since the epoch. Fractional
// seconds are accepted when decoding.
type UnixTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *UnixTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %s: %w", s, err)
	}
	sec, frac := math.Modf(f)
	t.Time = time.Unix(int64(sec), int64(math.Round(frac*1e9)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t UnixTime) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, t.Unix(), 10), nil
}

// Token is the cached bearer token for the local Envoy API along with the
// time it was issued. It is replaced wholesale when refreshed.
type Token struct {
	AccessToken string   `json:"access_token"`
	IssuedAt    UnixTime `json:"date"`
}

// Stale returns true if the token was issued more than maxAge before now.
func (t Token) Stale(now time.Time, maxAge time.Duration) bool {
	return t.IssuedAt.Add(maxAge).Before(now)
}

// Serial is a device serial number. The Envoy reports serials as JSON
// strings but older firmware and our own files use numbers, so both are
// accepted. A null serial decodes to zero, see Known.
type Serial int64

// Known returns false for a missing or null serial number.
func (s Serial) Known() bool {
	return s > 0
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Serial) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = 0
		return nil
	}
	str := strings.TrimSpace(strings.Trim(string(b), `"`))
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid serial number %s: %w", string(b), err)
	}
	*s = Serial(n)
	return nil
}

// InverterReport is a single element of the Envoy's
// /api/v1/production/inverters response.
type InverterReport struct {
	SerialNumber    Serial `json:"serialNumber"`
	LastReportDate  int64  `json:"lastReportDate"`
	DevType         int    `json:"devType"`
	LastReportWatts int    `json:"lastReportWatts"`
	MaxReportWatts  int    `json:"maxReportWatts"`
}

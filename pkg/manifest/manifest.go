// Package manifest maintains the index of daily history files that web pages
// use to discover which days have data.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Keys returns the year, month name and day of month a day is indexed under,
// e.g. "2024", "March", "1".
func Keys(day time.Time) (year, month, dayOfMonth string) {
	return strconv.Itoa(day.Year()), day.Month().String(), strconv.Itoa(day.Day())
}

// URL returns the public URL of the day's history file.
func URL(baseURL string, day time.Time) string {
	return baseURL + storage.DayKey(day) + ".json"
}

// Record adds an entry for day to m unless one already exists. It returns
// true if m was modified. Existing entries are never overwritten.
func Record(m types.Manifest, day time.Time, baseURL string) bool {
	year, month, dom := Keys(day)
	if _, ok := m.Lookup(year, month, dom); ok {
		return false
	}
	if m[year] == nil {
		m[year] = make(map[string]map[string]string)
	}
	if m[year][month] == nil {
		m[year][month] = make(map[string]string)
	}
	m[year][month][dom] = URL(baseURL, day)
	return true
}

// Updater records days in the stored manifest.
type Updater struct {
	db      storage.Database
	baseURL string
}

// Configured registers the url-base flag and returns an Updater writing to db.
func Configured(db storage.Database) *Updater {
	baseURL := lflag.String("url-base", "https://ikassman.synology.me/invdata/", "Public URL prefix the daily history files are served under")

	u := &Updater{db: db}
	lflag.Do(func() {
		if _, err := url.Parse(*baseURL); err != nil {
			panic(fmt.Sprintf("invalid url-base: %v", err))
		}
		u.baseURL = *baseURL
	})
	return u
}

// NewUpdater returns an Updater writing to db.
func NewUpdater(db storage.Database, baseURL string) *Updater {
	return &Updater{db: db, baseURL: baseURL}
}

// RecordDay adds day to the stored manifest and persists it if it was not
// already present. A manifest that cannot be decoded is treated as empty;
// any other read error is returned so a stored manifest is never replaced
// by a partial one.
func (u *Updater) RecordDay(ctx context.Context, day time.Time) (bool, error) {
	m, err := u.db.GetManifest(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		log.Ctx(ctx).InfoContext(ctx, "no prior manifest")
		m = types.Manifest{}
	case errors.Is(err, storage.ErrCorrupt):
		log.Ctx(ctx).WarnContext(ctx, "failed to parse manifest, starting a new one", slog.Any("error", err))
		m = types.Manifest{}
	default:
		return false, fmt.Errorf("failed to read manifest: %w", err)
	}

	if !Record(m, day, u.baseURL) {
		log.Ctx(ctx).DebugContext(ctx, "day already in manifest", slog.String("day", storage.DayKey(day)))
		return false, nil
	}
	if err := u.db.PutManifest(ctx, m); err != nil {
		return false, fmt.Errorf("failed to save manifest: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "added day to manifest", slog.String("day", storage.DayKey(day)))
	return true, nil
}

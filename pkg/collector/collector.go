// Package collector runs one poll of the Envoy: read the inverters, fold the
// snapshot into the day's history and persist whatever changed.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/envoylog/envoylog/pkg/history"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// TokenSource returns a bearer token for the Envoy's local API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// InverterReader reads the latest per-inverter reports.
type InverterReader interface {
	Inverters(ctx context.Context, token string) ([]types.InverterReport, error)
}

// DayRecorder records that a day has a history file.
type DayRecorder interface {
	RecordDay(ctx context.Context, day time.Time) (bool, error)
}

// Result summarizes a collection run.
type Result struct {
	Day       time.Time `json:"day"`
	Reports   int       `json:"reports"`
	NewDay    bool      `json:"newDay"`
	Changed   bool      `json:"changed"`
	Inverters int       `json:"inverters"`
}

// Collector wires the token store, Envoy, name table, storage and manifest
// together.
type Collector struct {
	tokens   TokenSource
	envoy    InverterReader
	names    history.NameResolver
	db       storage.Database
	manifest DayRecorder
	loc      *time.Location

	// runs are serialized since they read-modify-write the same files
	mu sync.Mutex
}

// Configured registers the timezone flag and returns a Collector.
func Configured(tokens TokenSource, envoy InverterReader, names history.NameResolver, db storage.Database, manifest DayRecorder) *Collector {
	tz := lflag.String("timezone", "Local", "IANA time zone that decides which calendar day a reading belongs to")

	c := New(tokens, envoy, names, db, manifest, time.Local)
	lflag.Do(func() {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *tz, err))
		}
		c.loc = loc
	})
	return c
}

// New returns a Collector.
func New(tokens TokenSource, envoy InverterReader, names history.NameResolver, db storage.Database, manifest DayRecorder, loc *time.Location) *Collector {
	return &Collector{
		tokens:   tokens,
		envoy:    envoy,
		names:    names,
		db:       db,
		manifest: manifest,
		loc:      loc,
	}
}

// Location returns the time zone that decides which day file a reading is
// stored in.
func (c *Collector) Location() *time.Location {
	return c.loc
}

// Run performs a single collection. Nothing is written unless the snapshot
// contains at least one new reading, apart from the manifest entry the first
// time a day is seen.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get token: %w", err)
	}

	reports, err := c.envoy.Inverters(ctx, token)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read inverters: %w", err)
	}
	res := Result{Reports: len(reports)}

	day, err := history.SnapshotDay(reports, c.loc)
	if errors.Is(err, history.ErrEmptySnapshot) {
		log.Ctx(ctx).WarnContext(ctx, "envoy returned no inverters")
		return res, nil
	} else if err != nil {
		return res, err
	}
	res.Day = day
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("day", storage.DayKey(day))))

	h, err := c.db.GetDailyHistory(ctx, day)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		log.Ctx(ctx).InfoContext(ctx, "first reading of the day")
		h = types.NewDailyHistory()
		res.NewDay = true
		if _, err := c.manifest.RecordDay(ctx, day); err != nil {
			return res, err
		}
	case errors.Is(err, storage.ErrCorrupt):
		// a corrupt day file is replaced rather than blocking every future run
		log.Ctx(ctx).WarnContext(ctx, "failed to parse prior readings, starting over", slog.Any("error", err))
		h = types.NewDailyHistory()
	default:
		return res, fmt.Errorf("failed to read prior readings: %w", err)
	}

	res.Changed = history.Merge(ctx, h, reports, c.names)
	res.Inverters = h.Len()
	if !res.Changed {
		log.Ctx(ctx).DebugContext(ctx, "no new readings")
		return res, nil
	}

	if err := c.db.PutDailyHistory(ctx, day, h); err != nil {
		return res, fmt.Errorf("failed to save history: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "saved new readings",
		slog.Int("reports", res.Reports),
		slog.Int("inverters", res.Inverters),
	)
	return res, nil
}

package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/envoylog/envoylog/pkg/history"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/manifest"
	"github.com/envoylog/envoylog/pkg/names"
	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// seed fills the configured storage with a few days of made-up inverter
// readings so the server has something to publish during local development.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	n := names.Configured()
	m := manifest.Configured(s)
	span := lflag.Duration("seed-span", 72*time.Hour, "How far back from today to generate days for")
	lflag.Configure()
	if err := log.ConfigureFromFlags(); err != nil {
		panic(err)
	}
	defer s.Close()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	serials := make([]int64, 0, len(names.DefaultTable))
	for k := range names.DefaultTable {
		sn, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			panic(err)
		}
		serials = append(serials, sn)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })

	const (
		PanelPeakW     = 295
		ReportInterval = 5 * time.Minute
	)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(*span / (24 * time.Hour))
	for d := days - 1; d >= 0; d-- {
		day := today.AddDate(0, 0, -d)
		h := types.NewDailyHistory()

		for t := day.Add(6 * time.Hour); t.Before(day.Add(20*time.Hour)) && t.Before(now); t = t.Add(ReportInterval) {
			// bell curve around 13:00 with some shade per inverter
			hour := t.Sub(day).Hours()
			dist := math.Abs(hour - 13.0)
			base := PanelPeakW * math.Exp(-(dist*dist)/8.0)

			reports := make([]types.InverterReport, 0, len(serials))
			for _, sn := range serials {
				watts := int(base * (0.85 + rng.Float64()*0.15))
				reports = append(reports, types.InverterReport{
					SerialNumber:    types.Serial(sn),
					LastReportDate:  t.Add(-time.Duration(rng.Intn(30)) * time.Second).Unix(),
					DevType:         1,
					LastReportWatts: watts,
					MaxReportWatts:  PanelPeakW,
				})
			}
			history.Merge(ctx, h, reports, n)
		}

		if h.Len() == 0 {
			continue
		}
		if err := s.PutDailyHistory(ctx, day, h); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write history", "day", storage.DayKey(day), "error", err)
			os.Exit(1)
		}
		if _, err := m.RecordDay(ctx, day); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to record day", "day", storage.DayKey(day), "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "seeded day", "day", storage.DayKey(day), "inverters", h.Len())
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete")
}

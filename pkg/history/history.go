// Package history folds Envoy snapshots into a day's recorded readings.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
)

// ErrEmptySnapshot is returned by SnapshotDay when there are no reports with
// a serial number.
var ErrEmptySnapshot = errors.New("snapshot has no inverter reports")

// NameResolver maps a serial number to the name its history is stored under.
type NameResolver interface {
	Resolve(sn int64) (name string, known bool)
}

// Merge appends every report whose timestamp differs from the last reading
// recorded for that inverter. An inverter seen for the first time, or with no
// readings yet, always gets its report appended. Merge returns true if
// anything was appended.
//
// Only the tail is compared: a report older than the last reading but not
// equal to it is still appended. Reports without a serial number are skipped.
func Merge(ctx context.Context, h *types.DailyHistory, reports []types.InverterReport, names NameResolver) bool {
	var changed bool
	for _, r := range reports {
		if !r.SerialNumber.Known() {
			log.Ctx(ctx).WarnContext(ctx, "skipping report without serial number", slog.Int64("lastReportDate", r.LastReportDate))
			continue
		}
		sn := int64(r.SerialNumber)
		name, known := names.Resolve(sn)

		ih, created := h.Entry(name, sn)
		if created {
			log.Ctx(ctx).DebugContext(ctx, "new inverter for day", slog.String("name", name), slog.Int64("sn", sn), slog.Bool("known", known))
		}

		if last, ok := ih.Last(); ok && last.Epoch == r.LastReportDate {
			continue
		}
		ih.Data = append(ih.Data, types.Reading{
			Epoch: r.LastReportDate,
			Watts: r.LastReportWatts,
		})
		changed = true
	}
	return changed
}

// SnapshotDay returns midnight, in loc, of the day containing the earliest
// report. A snapshot straddling midnight is filed under the earlier day.
// Reports without a serial number are ignored.
func SnapshotDay(reports []types.InverterReport, loc *time.Location) (time.Time, error) {
	var (
		earliest int64
		found    bool
	)
	for _, r := range reports {
		if !r.SerialNumber.Known() {
			continue
		}
		if !found || r.LastReportDate < earliest {
			earliest = r.LastReportDate
			found = true
		}
	}
	if !found {
		return time.Time{}, ErrEmptySnapshot
	}
	t := time.Unix(earliest, 0).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

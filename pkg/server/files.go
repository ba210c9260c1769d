package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/storage"
)

const liveMaxAge = time.Minute

// handleFile serves the manifest or a single day's history, in the same
// layout the file provider writes to disk.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	var (
		v      any
		err    error
		maxAge = liveMaxAge
	)
	switch {
	case name == s.manifestName:
		v, err = s.storage.GetManifest(ctx)
	case strings.HasSuffix(name, ".json"):
		key := strings.TrimSuffix(name, ".json")
		var day time.Time
		day, err = time.Parse(time.DateOnly, key)
		if err != nil {
			writeJSONError(w, "not found", http.StatusNotFound)
			return
		}
		// days are named in the collector's zone, so "today" must be too
		today := storage.DayKey(s.now().In(s.collector.Location()))
		if storage.DayKey(day) < today && s.pastMaxAge > 0 {
			maxAge = s.pastMaxAge
		}
		v, err = s.storage.GetDailyHistory(ctx, day)
	default:
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read file", slog.String("name", name), slog.Any("error", err))
		writeJSONError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	b, err := storage.Encode(v)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to encode file", slog.String("name", name), slog.Any("error", err))
		writeJSONError(w, "failed to encode file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	if _, err := w.Write(b); err != nil {
		panic(http.ErrAbortHandler)
	}
}

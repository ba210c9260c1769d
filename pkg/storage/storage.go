package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// ErrNotFound is returned when the requested day or manifest was never
// written.
var ErrNotFound = errors.New("not found")

// dryRunOut receives dry-run previews. It is kept off stdout, where the logs
// go, so the preview can be redirected on its own.
var dryRunOut io.Writer = os.Stderr

// ErrCorrupt is returned when a stored document exists but cannot be read or
// decoded.
var ErrCorrupt = errors.New("corrupt document")

// Database defines the interface for persisting daily histories and the
// manifest.
type Database interface {
	// GetDailyHistory returns the history for the given day. It returns
	// ErrNotFound if nothing was recorded for the day yet and wraps
	// ErrCorrupt if the stored document cannot be decoded.
	GetDailyHistory(ctx context.Context, day time.Time) (*types.DailyHistory, error)
	PutDailyHistory(ctx context.Context, day time.Time, h *types.DailyHistory) error

	// GetManifest returns ErrNotFound if no manifest exists yet and wraps
	// ErrCorrupt if it cannot be decoded.
	GetManifest(ctx context.Context) (types.Manifest, error)
	PutManifest(ctx context.Context, m types.Manifest) error

	// Lifecycle
	Close() error
}

// DayKey is the identifier a day's history is stored under, e.g. 2024-03-01.
func DayKey(day time.Time) string {
	return day.Format(time.DateOnly)
}

// Encode renders v the way every stored document is written: indented JSON
// with a trailing newline.
func Encode(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, firestore)")
	dryRun := lflag.Bool("dry-run", false, "Print what would be written to stderr instead of writing it")

	var p struct{ Database }

	fp := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "file":
			if err := fp.Validate(); err != nil {
				panic(fmt.Sprintf("file storage validation failed: %v", err))
			}
			p.Database = fp
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
		if *dryRun {
			p.Database = NewDryRun(p.Database, dryRunOut)
		}
	})

	return &p
}

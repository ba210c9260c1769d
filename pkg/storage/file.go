package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/envoylog/envoylog/pkg/common"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// FileProvider stores every day's history as <dir>/<YYYY-MM-DD>.json next to
// a single manifest file. The directory is typically served as-is by a web
// server.
type FileProvider struct {
	dir          string
	manifestName string
}

func configuredFile() *FileProvider {
	dir := lflag.String("data-dir", "/volume1/web/invdata", "Directory holding the daily history files and manifest")
	manifestName := lflag.String("manifest-name", "sm_manifest.json", "File name of the manifest inside data-dir")

	f := &FileProvider{}
	lflag.Do(func() {
		f.dir = *dir
		f.manifestName = *manifestName
	})
	return f
}

// NewFileProvider returns a FileProvider rooted at dir.
func NewFileProvider(dir, manifestName string) *FileProvider {
	return &FileProvider{dir: dir, manifestName: manifestName}
}

// Validate checks if the provider is properly configured.
func (f *FileProvider) Validate() error {
	if f.dir == "" {
		return errors.New("data-dir is required")
	}
	if f.manifestName == "" || f.manifestName != filepath.Base(f.manifestName) {
		return fmt.Errorf("invalid manifest-name %q", f.manifestName)
	}
	fi, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("failed to stat data-dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("data-dir %s is not a directory", f.dir)
	}
	return nil
}

func (f *FileProvider) dayPath(day time.Time) string {
	return filepath.Join(f.dir, DayKey(day)+".json")
}

func (f *FileProvider) manifestPath() string {
	return filepath.Join(f.dir, f.manifestName)
}

func (f *FileProvider) read(ctx context.Context, path string, dest any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		// an unreadable local file is treated like a malformed one
		return fmt.Errorf("%w: failed to read %s: %v", ErrCorrupt, path, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to parse stored file", slog.String("path", path), slog.Any("error", err))
		return fmt.Errorf("%w: failed to parse %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

func (f *FileProvider) write(ctx context.Context, path string, v any) error {
	b, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := common.WriteFileAtomic(path, b, 0o644); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "wrote file", slog.String("path", path), slog.Int("bytes", len(b)))
	return nil
}

// GetDailyHistory reads the day's history file.
func (f *FileProvider) GetDailyHistory(ctx context.Context, day time.Time) (*types.DailyHistory, error) {
	h := types.NewDailyHistory()
	if err := f.read(ctx, f.dayPath(day), h); err != nil {
		return nil, err
	}
	return h, nil
}

// PutDailyHistory replaces the day's history file.
func (f *FileProvider) PutDailyHistory(ctx context.Context, day time.Time, h *types.DailyHistory) error {
	return f.write(ctx, f.dayPath(day), h)
}

// GetManifest reads the manifest file.
func (f *FileProvider) GetManifest(ctx context.Context) (types.Manifest, error) {
	var m types.Manifest
	if err := f.read(ctx, f.manifestPath(), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = types.Manifest{}
	}
	return m, nil
}

// PutManifest replaces the manifest file.
func (f *FileProvider) PutManifest(ctx context.Context, m types.Manifest) error {
	return f.write(ctx, f.manifestPath(), m)
}

// Close is a no-op.
func (f *FileProvider) Close() error {
	return nil
}

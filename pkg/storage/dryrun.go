package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/envoylog/envoylog/pkg/types"
)

// DryRun reads through to the wrapped Database but prints writes to out
// instead of performing them.
type DryRun struct {
	Database
	out io.Writer
}

// NewDryRun wraps db so that nothing is ever written to it.
func NewDryRun(db Database, out io.Writer) *DryRun {
	return &DryRun{Database: db, out: out}
}

func (d *DryRun) print(name string, v any) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(d.out, "%s:\n%s", name, b)
	return err
}

// PutDailyHistory prints the history that would have been written.
func (d *DryRun) PutDailyHistory(ctx context.Context, day time.Time, h *types.DailyHistory) error {
	return d.print(DayKey(day)+".json", h)
}

// PutManifest prints the manifest that would have been written.
func (d *DryRun) PutManifest(ctx context.Context, m types.Manifest) error {
	return d.print("manifest", m)
}

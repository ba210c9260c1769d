// Package names maps inverter serial numbers to the labels used as keys in
// the daily history files.
package names

import (
	"fmt"
	"strconv"

	"github.com/levenlabs/go-lflag"
)

// DefaultTable is the roof layout the files were originally recorded with.
var DefaultTable = map[string]string{
	"202326182843": "West-2.4",
	"202326189397": "West-2.3",
	"202326189803": "West-2.2",
	"202326179873": "West-2.1",
	"202326181290": "West-1.3",
	"202326097201": "West-1.2",
	"202326101609": "West-1.1",
	"202326179878": "East-5",
	"202326199306": "East-4",
	"202326101116": "East-3",
	"202326199773": "East-2",
	"202326195868": "East-1",
}

// Resolver translates serial numbers into display names.
type Resolver struct {
	table map[int64]string
}

// Configured registers the inverter-names flag and returns a Resolver that is
// populated once flags are parsed.
func Configured() *Resolver {
	table := make(map[string]string, len(DefaultTable))
	for k, v := range DefaultTable {
		table[k] = v
	}
	lflag.JSON(&table, "inverter-names", table, "JSON map of inverter serial number to display name")

	r := &Resolver{}
	lflag.Do(func() {
		var err error
		r.table, err = parseTable(table)
		if err != nil {
			panic(fmt.Sprintf("invalid inverter-names: %v", err))
		}
	})
	return r
}

// New returns a Resolver for the given serial to name table.
func New(table map[int64]string) *Resolver {
	r := &Resolver{table: make(map[int64]string, len(table))}
	for sn, name := range table {
		r.table[sn] = name
	}
	return r
}

func parseTable(in map[string]string) (map[int64]string, error) {
	out := make(map[int64]string, len(in))
	for k, v := range in {
		sn, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid serial number %q: %w", k, err)
		}
		if v == "" {
			return nil, fmt.Errorf("empty name for serial number %q", k)
		}
		out[sn] = v
	}
	return out, nil
}

// Resolve returns the display name for sn. Unknown serials resolve to their
// decimal representation and known is false.
func (r *Resolver) Resolve(sn int64) (name string, known bool) {
	if name, ok := r.table[sn]; ok {
		return name, true
	}
	return strconv.FormatInt(sn, 10), false
}

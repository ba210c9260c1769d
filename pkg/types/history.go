package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Reading is one power sample reported by an inverter.
type Reading struct {
	Epoch int64 `json:"epoch"`
	Watts int   `json:"watts"`
}

// InverterHistory holds the readings recorded for one inverter during a day,
// in the order they were appended.
type InverterHistory struct {
	SerialNumber int64     `json:"sn"`
	Data         []Reading `json:"data"`
}

// Last returns the most recently appended reading.
func (ih *InverterHistory) Last() (Reading, bool) {
	if len(ih.Data) == 0 {
		return Reading{}, false
	}
	return ih.Data[len(ih.Data)-1], true
}

// DailyHistory maps an inverter display name to its history for one calendar
// day. Keys keep the order in which they were first seen, both in memory and
// when encoded, so rewriting a file does not reshuffle it.
// The zero value is an empty history ready to use.
type DailyHistory struct {
	order   []string
	entries map[string]*InverterHistory
}

// NewDailyHistory returns an empty DailyHistory.
func NewDailyHistory() *DailyHistory {
	return &DailyHistory{entries: make(map[string]*InverterHistory)}
}

// Len returns the number of inverters in the history.
func (h *DailyHistory) Len() int {
	return len(h.order)
}

// Names returns the inverter names in insertion order.
func (h *DailyHistory) Names() []string {
	return append([]string(nil), h.order...)
}

// Get returns the history for name.
func (h *DailyHistory) Get(name string) (*InverterHistory, bool) {
	ih, ok := h.entries[name]
	return ih, ok
}

// Entry returns the history for name, creating an empty one for the given
// serial number if it does not exist yet.
func (h *DailyHistory) Entry(name string, sn int64) (*InverterHistory, bool) {
	if ih, ok := h.entries[name]; ok {
		return ih, false
	}
	ih := &InverterHistory{SerialNumber: sn, Data: []Reading{}}
	h.set(name, ih)
	return ih, true
}

func (h *DailyHistory) set(name string, ih *InverterHistory) {
	if h.entries == nil {
		h.entries = make(map[string]*InverterHistory)
	}
	if _, ok := h.entries[name]; !ok {
		h.order = append(h.order, name)
	}
	h.entries[name] = ih
}

// MarshalJSON implements json.Marshaler, writing keys in insertion order.
func (h DailyHistory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range h.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		ih := *h.entries[name]
		if ih.Data == nil {
			ih.Data = []Reading{}
		}
		v, err := json.Marshal(ih)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %q: %w", name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. It walks the object with gjson
// so that the document's key order is preserved.
func (h *DailyHistory) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return errors.New("invalid daily history json")
	}
	res := gjson.ParseBytes(b)
	if !res.IsObject() {
		return fmt.Errorf("daily history must be an object, got %s", res.Type)
	}

	h.order = nil
	h.entries = make(map[string]*InverterHistory)

	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		var ih InverterHistory
		if uerr := json.Unmarshal([]byte(value.Raw), &ih); uerr != nil {
			err = fmt.Errorf("failed to decode entry %q: %w", key.String(), uerr)
			return false
		}
		h.set(key.String(), &ih)
		return true
	})
	return err
}

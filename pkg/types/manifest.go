package types

// Manifest indexes the daily history files that exist, keyed by year, then
// month name, then day of month, with the file's public URL as the value.
// Entries are only ever added.
type Manifest map[string]map[string]map[string]string

// Lookup returns the URL recorded for the given day.
func (m Manifest) Lookup(year, month, day string) (string, bool) {
	u, ok := m[year][month][day]
	return u, ok
}

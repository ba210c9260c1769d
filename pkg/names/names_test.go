package names

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	table, err := parseTable(DefaultTable)
	require.NoError(t, err)
	r := New(table)

	t.Run("Known Serials", func(t *testing.T) {
		require.Len(t, DefaultTable, 12)
		for k, want := range DefaultTable {
			sn, err := strconv.ParseInt(k, 10, 64)
			require.NoError(t, err)
			got, known := r.Resolve(sn)
			assert.True(t, known, k)
			assert.Equal(t, want, got, k)
		}
		name, _ := r.Resolve(202326195868)
		assert.Equal(t, "East-1", name)
	})

	t.Run("Unknown Serial", func(t *testing.T) {
		name, known := r.Resolve(999999999999)
		assert.False(t, known)
		assert.Equal(t, "999999999999", name)
	})

	t.Run("Injected Table", func(t *testing.T) {
		r := New(map[int64]string{1: "garage"})
		name, known := r.Resolve(1)
		assert.True(t, known)
		assert.Equal(t, "garage", name)

		name, known = r.Resolve(202326195868)
		assert.False(t, known)
		assert.Equal(t, "202326195868", name)
	})

	t.Run("Nil Table", func(t *testing.T) {
		name, known := (&Resolver{}).Resolve(42)
		assert.False(t, known)
		assert.Equal(t, "42", name)
	})
}

func TestParseTable(t *testing.T) {
	_, err := parseTable(map[string]string{"abc": "x"})
	assert.Error(t, err)

	_, err = parseTable(map[string]string{"1": ""})
	assert.Error(t, err)

	got, err := parseTable(map[string]string{"12": "a"})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{12: "a"}, got)
}

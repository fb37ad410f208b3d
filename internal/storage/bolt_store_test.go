package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveListGet(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, plan := range []string{"smoke", "load", "spike"} {
		require.NoError(t, s.Save(Record{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Plan:      plan,
			Passed:    i%2 == 0,
			Summary:   Summary{Requests: int64(100 * (i + 1)), P95LatencyMs: 12.5},
		}))
	}

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "spike", items[0].Plan)
	assert.Equal(t, "smoke", items[2].Plan)

	got, err := s.Get(items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "load", got.Plan)
	assert.Equal(t, int64(200), got.Summary.Requests)
	assert.False(t, got.Passed)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PrunesOldest(t *testing.T) {
	s := openTemp(t)
	s.SetLimit(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(Record{Timestamp: base.Add(time.Duration(i) * time.Second), Plan: string(rune('a' + i))}))
	}

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "e", items[0].Plan)
	assert.Equal(t, "d", items[1].Plan)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(Record{ID: "fixed", Plan: "load"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get("fixed")
	require.NoError(t, err)
	assert.Equal(t, "load", rec.Plan)
}

func TestNewID_SortsByTime(t *testing.T) {
	a := NewID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewID(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, a, b)
}

package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLightReadings(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertLightReading(512, 48.3))
	require.NoError(t, s.InsertLightReading(600, 55.0))

	readings, err := s.RecentLightReadings(time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 600, readings[0].Raw, "newest first")

	readings, err = s.RecentLightReadings(time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, readings, "future cutoff matches nothing")
}

func TestOperationsAndErrors(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.LogOperation("open", "api", 123))
	require.NoError(t, s.LogOperation("close", "mqtt", 800))
	require.NoError(t, s.LogError("motor_timeout", "ERROR:MOTOR_TIMEOUT", "device"))

	ops, err := s.RecentOperations(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "close", ops[0].Operation)
	assert.Equal(t, "mqtt", ops[0].Trigger)
	assert.Equal(t, 800, ops[0].Light)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertLightReading(100, 10))
	require.NoError(t, s.Prune(time.Hour))

	readings, err := s.RecentLightReadings(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, readings, 1, "fresh rows survive pruning")

	require.NoError(t, s.Prune(0))
	readings, err = s.RecentLightReadings(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

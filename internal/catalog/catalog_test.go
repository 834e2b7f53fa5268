package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eufy-bridge/pkg/models"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(start time.Time, reason models.EndReason, bytes int64) models.Recording {
	return models.Recording{
		Path:      "/videos/eufy_" + start.Format("20060102-150405") + ".mp4",
		Serial:    "T8410P",
		StartedAt: start,
		EndedAt:   start.Add(30 * time.Second),
		Bytes:     bytes,
		Chunks:    12,
		Reason:    reason,
	}
}

func TestInsertAndListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	first := rec(t0, models.EndHardTimeout, 100)
	first.Killed = true
	id1, err := s.Insert(ctx, first)
	require.NoError(t, err)
	id2, err := s.Insert(ctx, rec(t0.Add(time.Hour), models.EndStreamStopped, 200))
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	got, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, id2, got[0].ID)
	require.Equal(t, models.EndStreamStopped, got[0].Reason)
	require.Equal(t, id1, got[1].ID)
	require.True(t, got[1].Killed)
	require.True(t, got[1].StartedAt.Equal(t0))
	require.Equal(t, 30*time.Second, got[1].Duration())

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, id2, limited[0].ID)
}

func TestStats(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, empty.Total)

	for i, r := range []models.EndReason{models.EndHardTimeout, models.EndHardTimeout, models.EndShutdown} {
		_, err := s.Insert(ctx, rec(t0.Add(time.Duration(i)*time.Minute), r, 1000))
		require.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, st.Total)
	require.Equal(t, int64(3000), st.Bytes)
	require.Equal(t, map[string]int{"hard-timeout": 2, "shutdown": 1}, st.ByReason)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recordings.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), rec(time.Now().UTC(), models.EndShutdown, 1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

package sink

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// catEncoder copies stdin to the output path, standing in for a remuxer.
func catEncoder() Encoder {
	return Encoder{
		Binary:       "sh",
		CloseTimeout: 2 * time.Second,
		Args:         func(path string) []string { return []string{"-c", `cat > "$0"`, path} },
	}
}

func TestDefaultArgsUseStreamCopyAndFragmentedMP4(t *testing.T) {
	args := DefaultArgs("/records/eufy_20260101-120000.mp4")
	require.Equal(t, []string{
		"-y", "-loglevel", "error", "-i", "pipe:0", "-c", "copy",
		"-f", "mp4", "-movflags", "frag_keyframe+empty_moov",
		"/records/eufy_20260101-120000.mp4",
	}, args)

	require.Contains(t, DefaultArgs("/r/x.mkv"), "matroska")
	require.NotContains(t, DefaultArgs("/r/x.ts"), "-movflags")
}

func TestWriteAndCloseProducesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clip.mp4")

	s, err := catEncoder().Open(path)
	require.NoError(t, err)
	require.Equal(t, path, s.Path())

	require.NoError(t, s.Write([]byte("video-")))
	require.NoError(t, s.Write([]byte("audio")))
	require.NoError(t, s.Write(nil))
	require.EqualValues(t, 11, s.Bytes())

	require.False(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "video-audio", string(data))

	// Close is idempotent and writes after close fail.
	require.False(t, s.Close())
	require.True(t, errors.Is(s.Write([]byte("x")), ErrSinkWrite))
}

func TestWriteAfterEncoderExitFails(t *testing.T) {
	enc := Encoder{Binary: "sh", Args: func(string) []string { return []string{"-c", "exit 0"} }}
	s, err := enc.Open(filepath.Join(t.TempDir(), "clip.mp4"))
	require.NoError(t, err)

	p := s.(*Process)
	select {
	case <-p.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("encoder did not exit")
	}

	err = s.Write([]byte("late"))
	require.ErrorIs(t, err, ErrSinkWrite)
	require.False(t, s.Close())
}

func TestCloseKillsStuckEncoder(t *testing.T) {
	enc := Encoder{
		Binary:       "sh",
		CloseTimeout: 100 * time.Millisecond,
		Args:         func(string) []string { return []string{"-c", "exec sleep 30"} },
	}
	s, err := enc.Open(filepath.Join(t.TempDir(), "clip.mp4"))
	require.NoError(t, err)

	start := time.Now()
	require.True(t, s.Close())
	require.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-s.(*Process).Exited():
	default:
		t.Fatal("encoder not reaped")
	}
}

func TestAbortUnblocksStalledWrite(t *testing.T) {
	enc := Encoder{
		Binary:       "sh",
		CloseTimeout: 2 * time.Second,
		Args:         func(string) []string { return []string{"-c", "exec sleep 30"} },
	}
	s, err := enc.Open(filepath.Join(t.TempDir(), "clip.mp4"))
	require.NoError(t, err)

	// Larger than any pipe buffer, and the encoder never reads.
	errc := make(chan error, 1)
	go func() { errc <- s.Write(make([]byte, 1<<20)) }()

	select {
	case err := <-errc:
		t.Fatalf("write returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.Abort()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrSinkWrite)
	case <-time.After(2 * time.Second):
		t.Fatal("write still blocked after abort")
	}

	start := time.Now()
	require.True(t, s.Close())
	require.Less(t, time.Since(start), time.Second)
}

func TestAbortAfterExitIsNoop(t *testing.T) {
	s, err := catEncoder().Open(filepath.Join(t.TempDir(), "clip.mp4"))
	require.NoError(t, err)
	require.False(t, s.Close())

	s.Abort()
	require.False(t, s.Close())
}

func TestOpenSpawnFailure(t *testing.T) {
	enc := Encoder{Binary: filepath.Join(t.TempDir(), "no-such-encoder")}
	_, err := enc.Open(filepath.Join(t.TempDir(), "clip.mp4"))
	require.Error(t, err)
}

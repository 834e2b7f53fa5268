package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedDeliversToSubscribers(t *testing.T) {
	f := NewFeed(4)
	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelB()

	f.Status("Bridge linked.")
	f.RecordingActive(true)

	for _, ch := range []<-chan Update{a, b} {
		u := <-ch
		require.Equal(t, StatusText, u.Kind)
		require.Equal(t, "Bridge linked.", u.Text)
		u = <-ch
		require.Equal(t, RecordingFlag, u.Kind)
		require.True(t, u.Active)
	}

	cancelA()
	cancelA()
	_, open := <-a
	require.False(t, open)

	require.Equal(t, Snapshot{Text: "Bridge linked.", Recording: true}, f.Snapshot())
}

func TestFeedNeverBlocksOnFullSubscriber(t *testing.T) {
	f := NewFeed(1)
	ch, cancel := f.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		f.Status("tick")
	}
	require.Len(t, ch, 1)
	require.Equal(t, "tick", f.Snapshot().Text)
}

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"eufy-bridge/internal/recorder"
	"eufy-bridge/internal/sink"
	"eufy-bridge/internal/status"
	"eufy-bridge/pkg/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// camera is a fake hub that answers start_livestream with a short stream.
type camera struct {
	mu       sync.Mutex
	commands []string
	started  chan *websocket.Conn
	srv      *httptest.Server
}

func newCamera(t *testing.T) *camera {
	c := &camera{started: make(chan *websocket.Conn, 4)}
	c.srv = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *camera) url() string { return "ws" + strings.TrimPrefix(c.srv.URL, "http") }

func (c *camera) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var cmd models.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.mu.Lock()
		c.commands = append(c.commands, cmd.Command)
		c.mu.Unlock()
		if cmd.Command == models.CommandStartListening {
			c.started <- conn
		}
	}
}

func (c *camera) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *camera) count(command string) int {
	n := 0
	for _, s := range c.sent() {
		if s == command {
			n++
		}
	}
	return n
}

func send(conn *websocket.Conn, ev map[string]any) {
	data, _ := json.Marshal(map[string]any{"type": "event", "event": ev})
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func video(data ...int) map[string]any {
	return map[string]any{"event": "livestream video data", "serialNumber": "CAM1",
		"buffer": map[string]any{"type": "Buffer", "data": data}}
}

type archived struct {
	mu   sync.Mutex
	recs []models.Recording
}

func (a *archived) Submit(rec models.Recording) {
	a.mu.Lock()
	a.recs = append(a.recs, rec)
	a.mu.Unlock()
}

func (a *archived) all() []models.Recording {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Recording(nil), a.recs...)
}

// catEncoder copies stdin to the output path, standing in for ffmpeg.
var catEncoder = sink.Encoder{
	Binary:       "sh",
	CloseTimeout: 2 * time.Second,
	Args:         func(path string) []string { return []string{"-c", `cat > "$0"`, path} },
}

func newBridge(t *testing.T, cam *camera, maxDuration time.Duration) (*Bridge, *archived, *status.Feed) {
	return newBridgeWith(t, cam, maxDuration, catEncoder)
}

func newBridgeWith(t *testing.T, cam *camera, maxDuration time.Duration, enc sink.Opener) (*Bridge, *archived, *status.Feed) {
	settings := recorder.DefaultSettings()
	settings.Dir = t.TempDir()
	settings.RetryInterval = time.Hour
	settings.MaxDuration = maxDuration

	arch := &archived{}
	feed := status.NewFeed(16)
	b := New(Options{
		URL:            cam.url(),
		SchemaVersion:  21,
		ReconnectDelay: 50 * time.Millisecond,
		Recorder:       settings,
		Sinks:          enc,
		Notifier:       feed,
		Archiver:       arch,
	})
	return b, arch, feed
}

func TestBridgeRecordsUntilStreamStops(t *testing.T) {
	cam := newCamera(t)
	b, arch, feed := newBridge(t, cam, time.Hour)

	ran := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(ran)
	}()

	conn := <-cam.started
	send(conn, map[string]any{"event": "motion detected", "serialNumber": "CAM1", "state": true})
	require.Eventually(t, func() bool { return cam.count(models.CommandStartLivestream) == 1 },
		2*time.Second, 10*time.Millisecond)

	send(conn, video(0, 0, 0, 1))
	send(conn, video(101, 102))
	require.Eventually(t, func() bool { return feed.Snapshot().Recording }, 2*time.Second, 10*time.Millisecond)

	send(conn, map[string]any{"event": "livestream stopped", "serialNumber": "CAM1"})
	require.Eventually(t, func() bool { return len(arch.all()) == 1 }, 3*time.Second, 10*time.Millisecond)

	rec := arch.all()[0]
	require.Equal(t, models.EndStreamStopped, rec.Reason)
	require.Equal(t, "CAM1", rec.Serial)
	data, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 1, 101, 102}, data)
	require.False(t, feed.Snapshot().Recording)
	require.Equal(t, recorder.StatusStandby, feed.Snapshot().Text)
	require.Eventually(t, func() bool { return cam.count(models.CommandStopLivestream) == 1 },
		2*time.Second, 10*time.Millisecond)

	b.Stop()
	<-ran
	// Idle at shutdown: no second stop request.
	require.Equal(t, 1, cam.count(models.CommandStopLivestream))
}

func TestBridgeStopFinalizesActiveRecording(t *testing.T) {
	cam := newCamera(t)
	b, arch, feed := newBridge(t, cam, time.Hour)
	go b.Run(context.Background())

	conn := <-cam.started
	send(conn, map[string]any{"event": "motion detected", "serialNumber": "CAM1", "state": true})
	send(conn, video(7, 8, 9))
	require.Eventually(t, func() bool { return feed.Snapshot().Recording }, 2*time.Second, 10*time.Millisecond)

	b.Stop()
	b.Stop()

	recs := arch.all()
	require.Len(t, recs, 1)
	require.Equal(t, models.EndShutdown, recs[0].Reason)
	data, err := os.ReadFile(recs[0].Path)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 8, 9}, data)

	// The stop request goes out on the still-open socket.
	require.Eventually(t, func() bool { return cam.count(models.CommandStopLivestream) == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestBridgeHardStop(t *testing.T) {
	cam := newCamera(t)
	b, arch, _ := newBridge(t, cam, 200*time.Millisecond)
	go b.Run(context.Background())
	defer b.Stop()

	conn := <-cam.started
	send(conn, map[string]any{"event": "motion detected", "serialNumber": "CAM1", "state": true})
	send(conn, video(1))

	require.Eventually(t, func() bool { return len(arch.all()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, models.EndHardTimeout, arch.all()[0].Reason)
}

func TestBridgeDisconnectFinalizesAndReconnects(t *testing.T) {
	cam := newCamera(t)
	b, arch, feed := newBridge(t, cam, time.Hour)
	go b.Run(context.Background())
	defer b.Stop()

	conn := <-cam.started
	send(conn, map[string]any{"event": "motion detected", "serialNumber": "CAM1", "state": true})
	send(conn, video(1, 2))
	require.Eventually(t, func() bool { return feed.Snapshot().Recording }, 2*time.Second, 10*time.Millisecond)
	_ = conn.Close()

	require.Eventually(t, func() bool { return len(arch.all()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, models.EndDisconnected, arch.all()[0].Reason)

	select {
	case <-cam.started:
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not reconnect")
	}
}

func TestBridgeStopsOnContextCancel(t *testing.T) {
	cam := newCamera(t)
	b, _, _ := newBridge(t, cam, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(ran)
	}()
	<-cam.started
	cancel()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.False(t, b.Connected())
}

func TestBridgeStopBeforeRun(t *testing.T) {
	cam := newCamera(t)
	b, _, _ := newBridge(t, cam, time.Hour)

	start := time.Now()
	b.Stop()
	b.Run(context.Background())
	require.Less(t, time.Since(start), time.Second)
}

func TestBridgeStopKillsStalledEncoder(t *testing.T) {
	cam := newCamera(t)
	stalled := sink.Encoder{
		Binary:       "sh",
		CloseTimeout: 2 * time.Second,
		Args:         func(string) []string { return []string{"-c", "exec sleep 40"} },
	}
	b, arch, feed := newBridgeWith(t, cam, time.Hour, stalled)
	go b.Run(context.Background())

	conn := <-cam.started
	send(conn, map[string]any{"event": "motion detected", "serialNumber": "CAM1", "state": true})
	// Far more than the pipe buffer; the worker blocks writing it.
	send(conn, video(make([]int, 200000)...))
	require.Eventually(t, func() bool { return feed.Snapshot().Recording }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan struct{})
	start := time.Now()
	go func() {
		b.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3*teardownGrace + time.Second):
		t.Fatal("Stop blocked on a stalled encoder")
	}
	require.Less(t, time.Since(start), 2*teardownGrace)

	recs := arch.all()
	require.Len(t, recs, 1)
	require.Equal(t, models.EndShutdown, recs[0].Reason)
	require.True(t, recs[0].Killed)
	require.False(t, feed.Snapshot().Recording)
}

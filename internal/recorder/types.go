package recorder

import (
	"fmt"
	"time"

	"eufy-bridge/internal/actor"
	"eufy-bridge/internal/events"
	"eufy-bridge/internal/sink"
	"eufy-bridge/internal/timers"
	"eufy-bridge/pkg/models"
)

// Phase is the recorder state variant. Transition guards test the phase,
// never a derived flag.
type Phase int

const (
	Idle Phase = iota
	AwaitingStream
	Recording
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingStream:
		return "awaiting-stream"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Sender forwards commands to the hub.
type Sender interface {
	Send(cmd models.Command) error
}

// Notifier receives the status-text and recording-active streams.
type Notifier interface {
	Status(text string)
	RecordingActive(active bool)
}

// Archiver receives finalized recordings. Submit must not block.
type Archiver interface {
	Submit(rec models.Recording)
}

// Timers is the subset of timers.Set the machine drives.
type Timers interface {
	Arm(kind timers.Kind, d time.Duration) uint64
	Cancel(kind timers.Kind)
	CancelAll()
	Consume(f timers.Fired) bool
}

// Settings tune the wake and recording cycle.
type Settings struct {
	RetryInterval time.Duration
	MaxRetries    int
	MaxDuration   time.Duration
	Dir           string
	Prefix        string
	Container     string
}

// DefaultSettings match the hub's observed stream start-up behavior.
func DefaultSettings() Settings {
	return Settings{
		RetryInterval: 6 * time.Second,
		MaxRetries:    3,
		MaxDuration:   30 * time.Second,
		Prefix:        "eufy",
		Container:     "mp4",
	}
}

// session is the open recording. At most one exists at a time.
type session struct {
	sink      sink.Sink
	serial    string
	startedAt time.Time
	chunks    int
}

// Inputs handled on the worker.

// HubEvent wraps a decoded hub event.
type HubEvent struct {
	actor.InputBase
	Event events.Event
}

// TimerFired wraps a timer fire handed off from the timer goroutine.
type TimerFired struct {
	actor.InputBase
	Fired timers.Fired
}

// Shutdown tears down any active cycle. Done, when set, is closed once the
// input has been processed.
type Shutdown struct {
	actor.InputBase
	Done chan struct{}
}

// ConnectionLost reports that the hub session closed. Done, when set, is
// closed once the input has been processed.
type ConnectionLost struct {
	actor.InputBase
	Done chan struct{}
}

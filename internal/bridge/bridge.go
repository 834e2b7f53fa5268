// Package bridge wires the hub connection, the worker loop, the timers and
// the recorder into one long-running service.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"eufy-bridge/internal/actor"
	"eufy-bridge/internal/events"
	"eufy-bridge/internal/hub"
	"eufy-bridge/internal/logging"
	"eufy-bridge/internal/metrics"
	"eufy-bridge/internal/recorder"
	"eufy-bridge/internal/sink"
	"eufy-bridge/internal/status"
	"eufy-bridge/internal/timers"
)

var log = logging.MustGetLogger("bridge")

// teardownGrace bounds how long Stop waits for the worker to close a
// recording. When it runs out the encoder is killed and the worker gets the
// same again to finish.
const teardownGrace = 3 * time.Second

// Notifier receives both status streams.
type Notifier interface {
	Status(text string)
	RecordingActive(active bool)
}

// Options configure a Bridge.
type Options struct {
	URL            string
	SchemaVersion  int
	ReconnectDelay time.Duration
	Recorder       recorder.Settings
	Sinks          sink.Opener
	Notifier       Notifier
	Archiver       recorder.Archiver
	Metrics        *metrics.Metrics
	Clock          timers.Clock
	// Dial overrides the hub dialer, for tests.
	Dial func(ctx context.Context, url string) (*hub.Session, error)
}

// Bridge is the motion-triggered recording worker.
type Bridge struct {
	loop    *actor.Loop
	timers  *timers.Set
	machine *recorder.Machine
	manager *hub.Manager

	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// New assembles a bridge. Nothing runs until Run.
func New(opts Options) *Bridge {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = status.NewFeed(0)
	}
	if opts.Clock == nil {
		opts.Clock = timers.RealClock{}
	}
	b := &Bridge{done: make(chan struct{})}

	b.timers = timers.NewSet(opts.Clock, func(f timers.Fired) {
		// Blocking hand-off keeps timer fires ordered with socket events.
		if err := b.loop.Post(context.Background(), recorder.TimerFired{Fired: f}); err != nil {
			log.Debugf("dropping %s timer fire: %v", f.Kind, err)
		}
	})
	b.manager = hub.NewManager(hub.Options{
		URL:            opts.URL,
		SchemaVersion:  opts.SchemaVersion,
		ReconnectDelay: opts.ReconnectDelay,
		Handler:        b,
		Notifier:       opts.Notifier,
		Metrics:        opts.Metrics,
		OnStop:         b.teardown,
		Dial:           opts.Dial,
	})
	b.machine = recorder.New(opts.Recorder, recorder.Deps{
		Sender:   b.manager,
		Sinks:    opts.Sinks,
		Timers:   b.timers,
		Notifier: opts.Notifier,
		Archiver: opts.Archiver,
		Metrics:  opts.Metrics,
		Now:      opts.Clock.Now,
	})
	b.loop = actor.New(b.machine, actor.WithHooks(actor.Hooks{
		OnInput: func(in actor.Input) { log.Debugf("worker input %T", in) },
		OnPanic: func(r any) { log.Errorf("recorder panic: %v", r) },
	}))
	return b
}

// Run blocks until Stop is called or ctx ends, then returns after the
// shutdown sequence has completed.
func (b *Bridge) Run(ctx context.Context) {
	b.loop.Start()
	stopOnCancel := context.AfterFunc(ctx, b.Stop)
	defer stopOnCancel()

	// ctx reaches the manager only through Stop, so teardown precedes the close.
	b.manager.Run(context.Background())
	b.Stop()
	<-b.done
}

// Stop releases everything in order: the running flag drops, the worker
// cancels both timers and closes any recording, the socket closes, and the
// worker exits. Safe to call concurrently and repeatedly.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Teardown runs on the worker, which may not have been started yet.
		b.loop.Start()
		b.manager.Stop()
		b.loop.Stop()
		select {
		case <-b.loop.Done():
		case <-time.After(teardownGrace):
			log.Error("recorder worker did not exit")
		}
		close(b.done)
	})
	<-b.done
}

// teardown runs inside manager.Stop while the socket is still open.
func (b *Bridge) teardown() {
	b.stopping.Store(true)
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), teardownGrace)
	defer cancel()
	posted := b.loop.Post(ctx, recorder.Shutdown{Done: done})
	if posted == nil {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
	}

	// The worker is stuck, most likely writing to an encoder that stopped
	// reading. Killing it releases the write.
	log.Warning("recorder teardown timed out, aborting encoder")
	b.timers.CancelAll()
	if !b.machine.AbortRecording() {
		return
	}
	retry, cancelRetry := context.WithTimeout(context.Background(), teardownGrace)
	defer cancelRetry()
	if posted != nil {
		done = make(chan struct{})
		if err := b.loop.Post(retry, recorder.Shutdown{Done: done}); err != nil {
			log.Warningf("shutdown not delivered: %v", err)
			return
		}
	}
	select {
	case <-done:
	case <-retry.Done():
		log.Error("recorder teardown failed after abort")
	}
}

// HandleEvent implements hub.Handler. It blocks while the worker is busy.
// Once shutdown has begun events are dropped; the socket stays open until the
// teardown has sent its stop request.
func (b *Bridge) HandleEvent(ctx context.Context, ev events.Event) error {
	if b.stopping.Load() {
		log.Debugf("shutting down, dropping %s", ev.Kind)
		return nil
	}
	return b.loop.Post(ctx, recorder.HubEvent{Event: ev})
}

// ConnectionLost implements hub.Handler. It returns once the worker has
// closed any recording, so the manager cannot reconnect first.
func (b *Bridge) ConnectionLost(ctx context.Context) {
	done := make(chan struct{})
	if err := b.loop.Post(ctx, recorder.ConnectionLost{Done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-b.loop.Done():
	case <-ctx.Done():
	}
}

// Connected reports whether the hub session is live.
func (b *Bridge) Connected() bool { return b.manager.Connected() }

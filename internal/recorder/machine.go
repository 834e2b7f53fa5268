// Package recorder implements the motion-triggered recording state machine.
//
// The Machine is owned by a single worker goroutine (see package actor): all
// inputs, including timer fires, are handled sequentially through Handle.
// AbortRecording is the one entry point meant for other goroutines.
package recorder

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"eufy-bridge/internal/actor"
	"eufy-bridge/internal/events"
	"eufy-bridge/internal/logging"
	"eufy-bridge/internal/metrics"
	"eufy-bridge/internal/sink"
	"eufy-bridge/internal/timers"
	"eufy-bridge/pkg/models"
)

var log = logging.MustGetLogger("recorder")

// Status texts.
const (
	StatusWaking      = "Waking camera %s..."
	StatusRetry       = "Retry %d/%d..."
	StatusUnreachable = "Camera unreachable."
	StatusActive      = "Stream active. Recording."
	StatusStandby     = "Standby."
	StatusP2PError    = "P2P error, retrying..."
	StatusFailed      = "Recording failed: %v"
)

const fileTimeLayout = "20060102-150405"

// Deps are the machine's collaborators.
type Deps struct {
	Sender   Sender
	Sinks    sink.Opener
	Timers   Timers
	Notifier Notifier
	Archiver Archiver // optional
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Machine is the recorder state machine.
type Machine struct {
	cfg  Settings
	deps Deps

	router  *events.Router
	phase   Phase
	serial  string // latched device handle, kept across cycles
	retries int
	rec     *session
	stopped bool // set by Shutdown; no new wake cycle starts after it

	// active mirrors rec.sink for AbortRecording.
	activeMu sync.Mutex
	active   sink.Sink
}

// New creates a machine in Idle.
func New(cfg Settings, deps Deps) *Machine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	m := &Machine{cfg: cfg, deps: deps}
	m.router = events.NewRouter().
		On(events.KindMotionDetected, m.onMotion).
		On(events.KindVideoChunk, m.onVideo).
		On(events.KindAudioChunk, m.onAudio).
		On(events.KindStreamError, m.onStreamError).
		On(events.KindStreamStopped, m.onStreamStopped).
		Fallback(func(ev events.Event) { log.Debugf("dropping %q event", ev.Wire) })
	return m
}

// Phase returns the current phase. Only call from the worker or in tests.
func (m *Machine) Phase() Phase { return m.phase }

// Serial returns the latched device handle.
func (m *Machine) Serial() string { return m.serial }

// Retries returns the current retry count.
func (m *Machine) Retries() int { return m.retries }

// Handle implements actor.Handler.
func (m *Machine) Handle(in actor.Input) {
	switch in := in.(type) {
	case HubEvent:
		m.onEvent(in.Event)
	case TimerFired:
		m.onTimer(in.Fired)
	case Shutdown:
		m.onShutdown()
		closeDone(in.Done)
	case ConnectionLost:
		m.onConnectionLost()
		closeDone(in.Done)
	default:
		log.Debugf("ignoring input %T", in)
	}
}

func closeDone(done chan struct{}) {
	if done != nil {
		close(done)
	}
}

func (m *Machine) onEvent(ev events.Event) {
	m.router.Dispatch(ev)
}

func (m *Machine) onMotion(ev events.Event) {
	if !ev.State {
		return
	}
	if m.stopped {
		log.Debugf("motion from %s after shutdown, ignored", ev.Serial)
		return
	}
	if ev.Serial != "" {
		m.serial = ev.Serial
	}
	if m.phase != Idle {
		log.Debugf("motion from %s while %s, cycle continues", ev.Serial, m.phase)
		return
	}
	if m.serial == "" {
		log.Warning("motion event without serial number, cannot request stream")
		return
	}

	m.setPhase(AwaitingStream)
	m.retries = 0
	m.send(models.StartLivestream(m.serial))
	m.status(fmt.Sprintf(StatusWaking, m.serial))
	m.deps.Timers.Arm(timers.Retry, m.cfg.RetryInterval)
}

func (m *Machine) onTimer(f timers.Fired) {
	if !m.deps.Timers.Consume(f) {
		log.Debugf("stale %s timer fire (gen %d)", f.Kind, f.Gen)
		return
	}
	switch f.Kind {
	case timers.Retry:
		m.onRetry()
	case timers.HardStop:
		if m.phase == Recording {
			log.Infof("recording reached %s limit", m.cfg.MaxDuration)
			m.finish(models.EndHardTimeout)
		}
	}
}

func (m *Machine) onRetry() {
	if m.phase != AwaitingStream {
		return
	}
	if m.retries < m.cfg.MaxRetries {
		m.retries++
		m.send(models.StartLivestream(m.serial))
		m.status(fmt.Sprintf(StatusRetry, m.retries, m.cfg.MaxRetries))
		m.deps.Timers.Arm(timers.Retry, m.cfg.RetryInterval)
		return
	}

	log.Warningf("no stream from %s after %d retries", m.serial, m.retries)
	m.deps.Metrics.Unreachable.Inc()
	m.status(StatusUnreachable)
	m.retries = 0
	m.deps.Timers.CancelAll()
	m.setPhase(Idle)
}

func (m *Machine) onVideo(ev events.Event) {
	switch m.phase {
	case AwaitingStream:
		if !m.begin() {
			return
		}
		m.write("video", ev.Payload)
	case Recording:
		m.write("video", ev.Payload)
	default:
		m.deps.Metrics.ChunksDropped.Inc()
	}
}

func (m *Machine) onAudio(ev events.Event) {
	if m.phase != Recording {
		m.deps.Metrics.ChunksDropped.Inc()
		return
	}
	m.write("audio", ev.Payload)
}

func (m *Machine) onStreamError(ev events.Event) {
	m.deps.Metrics.StreamErrors.Inc()
	if m.phase == Idle {
		log.Debugf("livestream error from %s while idle", ev.Serial)
		return
	}
	// No transition. AwaitingStream still ends on retry exhaustion and
	// Recording on the hard-stop timer.
	log.Warningf("livestream error from %s while %s", ev.Serial, m.phase)
	m.status(StatusP2PError)
}

func (m *Machine) onStreamStopped(ev events.Event) {
	if m.phase != Recording {
		log.Debugf("livestream stopped from %s while %s", ev.Serial, m.phase)
		return
	}
	m.finish(models.EndStreamStopped)
}

func (m *Machine) onShutdown() {
	m.stopped = true
	switch m.phase {
	case Recording:
		m.finish(models.EndShutdown)
	case AwaitingStream:
		m.deps.Timers.CancelAll()
		m.retries = 0
		m.setPhase(Idle)
		m.status(StatusStandby)
		m.stopStream()
	default:
		m.deps.Timers.CancelAll()
	}
}

func (m *Machine) onConnectionLost() {
	if m.phase == Recording {
		m.finish(models.EndDisconnected)
	}
}

// begin opens the recording on the first video chunk of a wake cycle.
func (m *Machine) begin() bool {
	m.deps.Timers.Cancel(timers.Retry)

	now := m.deps.Now()
	path := m.pathFor(now)
	s, err := m.deps.Sinks.Open(path)
	if err != nil {
		log.Errorf("encoder spawn: %v", err)
		m.deps.Timers.CancelAll()
		m.retries = 0
		m.setPhase(Idle)
		m.status(fmt.Sprintf(StatusFailed, err))
		m.stopStream()
		return false
	}

	m.rec = &session{sink: s, serial: m.serial, startedAt: now}
	m.setActive(s)
	m.deps.Timers.Arm(timers.HardStop, m.cfg.MaxDuration)
	m.setPhase(Recording)
	log.Infof("recording %s to %s", m.serial, path)
	m.status(StatusActive)
	m.deps.Notifier.RecordingActive(true)
	return true
}

func (m *Machine) write(channel string, payload []byte) {
	if err := m.rec.sink.Write(payload); err != nil {
		log.Warningf("dropping %s chunk: %v", channel, err)
		m.deps.Metrics.ChunksDropped.Inc()
		return
	}
	m.rec.chunks++
	m.deps.Metrics.MediaBytes.WithLabelValues(channel).Add(float64(len(payload)))
}

// finish ends the Recording phase.
func (m *Machine) finish(reason models.EndReason) {
	m.deps.Timers.CancelAll()

	rec := m.rec
	m.rec = nil
	m.setActive(nil)
	killed := rec.sink.Close()
	m.retries = 0
	m.setPhase(Idle)

	m.status(StatusStandby)
	m.deps.Notifier.RecordingActive(false)
	m.stopStream()

	m.deps.Metrics.Recordings.WithLabelValues(string(reason)).Inc()
	out := models.Recording{
		Path:      rec.sink.Path(),
		Serial:    rec.serial,
		StartedAt: rec.startedAt,
		EndedAt:   m.deps.Now(),
		Bytes:     rec.sink.Bytes(),
		Chunks:    rec.chunks,
		Reason:    reason,
		Killed:    killed,
	}
	log.Infof("recording %s finished (%s, %d bytes)", out.Path, reason, out.Bytes)
	if m.deps.Archiver != nil {
		m.deps.Archiver.Submit(out)
	}
}

// AbortRecording kills the encoder of the recording in progress, if any, so a
// worker blocked writing to it gets control back. The recording itself is
// closed by the worker. Safe to call from any goroutine.
func (m *Machine) AbortRecording() bool {
	m.activeMu.Lock()
	s := m.active
	m.activeMu.Unlock()
	if s == nil {
		return false
	}
	s.Abort()
	return true
}

func (m *Machine) setActive(s sink.Sink) {
	m.activeMu.Lock()
	m.active = s
	m.activeMu.Unlock()
}

func (m *Machine) stopStream() {
	if m.serial == "" {
		return
	}
	m.send(models.StopLivestream(m.serial))
}

func (m *Machine) send(cmd models.Command) {
	m.deps.Metrics.StreamRequests.WithLabelValues(cmd.Command).Inc()
	if err := m.deps.Sender.Send(cmd); err != nil {
		log.Warningf("send %s to %s: %v", cmd.Command, cmd.SerialNumber, err)
	}
}

func (m *Machine) status(text string) {
	m.deps.Notifier.Status(text)
}

func (m *Machine) setPhase(p Phase) {
	if m.phase != p {
		log.Debugf("phase %s -> %s", m.phase, p)
	}
	m.phase = p
	m.deps.Metrics.Phase.Set(float64(p))
}

func (m *Machine) pathFor(t time.Time) string {
	name := fmt.Sprintf("%s_%s.%s", m.cfg.Prefix, t.Format(fileTimeLayout), m.cfg.Container)
	return filepath.Join(m.cfg.Dir, name)
}

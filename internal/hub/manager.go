package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"eufy-bridge/internal/events"
	"eufy-bridge/internal/logging"
	"eufy-bridge/internal/metrics"
	"eufy-bridge/pkg/models"
)

var log = logging.MustGetLogger("hub")

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// Status texts.
const (
	StatusLinked       = "Bridge linked."
	StatusReconnecting = "Reconnecting..."
)

// Handler receives decoded events. Both methods may block: HandleEvent to
// apply backpressure, ConnectionLost until the loss has been processed.
type Handler interface {
	HandleEvent(ctx context.Context, ev events.Event) error
	ConnectionLost(ctx context.Context)
}

// Notifier receives status text.
type Notifier interface {
	Status(text string)
}

// Options configure a Manager.
type Options struct {
	URL            string
	SchemaVersion  int
	ReconnectDelay time.Duration
	Handler        Handler
	Notifier       Notifier
	Metrics        *metrics.Metrics
	// OnStop runs inside Stop after the running flag drops and before the
	// socket closes, so teardown can still send on the live session.
	OnStop func()
	// Dial overrides the dialer, for tests.
	Dial func(ctx context.Context, url string) (*Session, error)
}

// Manager runs the connect / deliver / reconnect loop.
type Manager struct {
	opts Options

	stopCtx  context.Context
	stopFunc context.CancelFunc
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
	sess    *Session
}

// NewManager creates a manager. Call Run to start it.
func NewManager(opts Options) *Manager {
	if opts.SchemaVersion == 0 {
		opts.SchemaVersion = DefaultSchemaVersion
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{opts: opts, stopCtx: ctx, stopFunc: cancel, running: true}
}

// Run connects and reconnects until Stop is called or ctx ends. There is no
// attempt limit and no backoff.
func (m *Manager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(m.stopCtx, cancel)
	defer unlink()

	for attempt := 0; m.isRunning() && ctx.Err() == nil; attempt++ {
		if attempt > 0 {
			m.opts.Metrics.Reconnects.Inc()
		}
		m.runSession(ctx)

		if !m.isRunning() || ctx.Err() != nil {
			return
		}
		m.status(StatusReconnecting)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// runSession dials, handshakes and delivers events until the session ends.
func (m *Manager) runSession(ctx context.Context) {
	sess, err := m.opts.Dial(ctx, m.opts.URL)
	if err != nil {
		if ctx.Err() == nil {
			log.Warningf("connect: %v", err)
			m.status(fmt.Sprintf("Error: %v", err))
		}
		return
	}
	if !m.attach(sess) {
		_ = sess.Close()
		return
	}
	closeOnCancel := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer closeOnCancel()

	defer func() {
		m.detach(sess)
		_ = sess.Close()
		m.opts.Handler.ConnectionLost(context.Background())
	}()

	if err := sess.Handshake(m.opts.SchemaVersion); err != nil {
		log.Warningf("handshake: %v", err)
		m.status(fmt.Sprintf("Error: %v", err))
		return
	}
	log.Infof("linked to %s (schema %d)", m.opts.URL, sess.SchemaVersion)
	m.status(StatusLinked)

	for {
		raw, err := sess.Read()
		if err != nil {
			if m.isRunning() && ctx.Err() == nil && !IsNormalClose(err) {
				log.Warningf("read: %v", err)
				m.status(fmt.Sprintf("Error: %v", err))
			}
			return
		}
		ev, ok := events.Decode(raw)
		if !ok {
			m.inspectResult(raw)
			continue
		}
		if err := m.opts.Handler.HandleEvent(ctx, ev); err != nil {
			log.Debugf("event delivery stopped: %v", err)
			return
		}
	}
}

// inspectResult logs failed command results.
func (m *Manager) inspectResult(raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debugf("dropping malformed frame (%d bytes)", len(raw))
		return
	}
	if env.Type == "result" && env.Success != nil && !*env.Success {
		log.Warningf("command %s failed: %s", env.MessageID, env.ErrorCode)
	}
}

// Send forwards cmd to the live session.
func (m *Manager) Send(cmd models.Command) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Send(cmd)
}

// Connected reports whether a session is attached.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// Stop ends the loop: the running flag drops, OnStop runs, then the socket
// closes and any reconnect wait is interrupted. Safe to call repeatedly and
// from any goroutine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()

		if m.opts.OnStop != nil {
			m.opts.OnStop()
		}

		m.mu.Lock()
		sess := m.sess
		m.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		m.stopFunc()
	})
}

func (m *Manager) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) attach(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.sess = sess
	m.opts.Metrics.Connected.Set(1)
	return true
}

func (m *Manager) detach(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == sess {
		m.sess = nil
	}
	m.opts.Metrics.Connected.Set(0)
}

func (m *Manager) status(text string) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Status(text)
	}
}

// Package status publishes the bridge's human-readable phase updates and the
// recording-active flag to any number of subscribers.
package status

import (
	"sync"
	"time"
)

// Update is one notification. Exactly one of Text or Active is meaningful,
// selected by Kind.
type Update struct {
	Kind   UpdateKind
	Text   string
	Active bool
	At     time.Time
}

// UpdateKind selects the stream an Update belongs to.
type UpdateKind int

const (
	StatusText UpdateKind = iota
	RecordingFlag
)

// Snapshot is the latest value of both streams.
type Snapshot struct {
	Text      string
	Recording bool
}

// Feed fans updates out without ever blocking the publisher.
type Feed struct {
	mu     sync.Mutex
	subs   map[chan Update]struct{}
	last   Snapshot
	now    func() time.Time
	buffer int
}

// NewFeed creates a feed whose subscribers get a buffer of size n.
func NewFeed(n int) *Feed {
	if n <= 0 {
		n = 16
	}
	return &Feed{subs: make(map[chan Update]struct{}), now: time.Now, buffer: n}
}

// Subscribe returns a channel of updates and a cancel func that closes it.
func (f *Feed) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, f.buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Status publishes a status-text update.
func (f *Feed) Status(text string) {
	f.publish(Update{Kind: StatusText, Text: text})
}

// RecordingActive publishes a recording-flag update.
func (f *Feed) RecordingActive(active bool) {
	f.publish(Update{Kind: RecordingFlag, Active: active})
}

// Snapshot returns the latest published values.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *Feed) publish(u Update) {
	u.At = f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	switch u.Kind {
	case StatusText:
		f.last.Text = u.Text
	case RecordingFlag:
		f.last.Recording = u.Active
	}
	for ch := range f.subs {
		select {
		case ch <- u:
		default:
			// Slow subscriber; updates are advisory.
		}
	}
}

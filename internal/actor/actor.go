// Package actor provides the serialized worker context that owns the bridge
// state machine.
//
// A single goroutine drains a FIFO mailbox and hands every input to one
// handler. Producers on other goroutines (socket reader, timer callbacks,
// external stop calls) only ever post inputs; they never touch handler state.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to the worker mailbox.
type Input interface {
	isActorInput()
}

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// Handler processes one input at a time on the worker goroutine.
type Handler interface {
	Handle(in Input)
}

// ErrStopped is returned when posting to a stopped loop.
var ErrStopped = errors.New("actor stopped")

// Hooks provide optional observability into the loop.
type Hooks struct {
	// OnInput is called after an input is dequeued, before handling.
	OnInput func(in Input)
	// OnPanic is called when the handler panics. If nil, panics propagate.
	OnPanic func(recovered any)
}

// Loop runs a single-goroutine event loop.
type Loop struct {
	handler Handler
	hooks   Hooks

	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
}

// Option configures a Loop.
type Option func(*Loop)

// WithHooks attaches hooks.
func WithHooks(hooks Hooks) Option {
	return func(l *Loop) { l.hooks = hooks }
}

// WithMailboxSize sets the mailbox buffer size.
func WithMailboxSize(n int) Option {
	return func(l *Loop) {
		if n <= 0 {
			return
		}
		l.inbox = make(chan Input, n)
	}
}

// New creates a loop around handler. The loop does not run until Start.
func New(handler Handler, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		handler: handler,
		inbox:   make(chan Input, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine. Calling Start more than once has no effect.
func (l *Loop) Start() {
	l.startOnce.Do(func() { go l.run() })
}

// Stop cancels the loop. Inputs still queued are discarded. Safe to call
// multiple times and before Start.
func (l *Loop) Stop() {
	l.cancel()
	l.startOnce.Do(func() {
		// Never started: nothing will close done.
		close(l.done)
	})
}

// Done closes when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues an input, blocking while the mailbox is full. A slow handler
// therefore throttles producers.
func (l *Loop) Post(ctx context.Context, in Input) error {
	if in == nil {
		return nil
	}
	select {
	case <-l.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case l.inbox <- in:
		return nil
	case <-l.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case in := <-l.inbox:
			l.handle(in)
		}
	}
}

func (l *Loop) handle(in Input) {
	if l.hooks.OnPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				l.hooks.OnPanic(r)
			}
		}()
	}
	if l.hooks.OnInput != nil {
		l.hooks.OnInput(in)
	}
	l.handler.Handle(in)
}

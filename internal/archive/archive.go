// Package archive persists finished recordings off the recorder's worker.
package archive

import (
	"context"
	"sync"
	"time"

	"eufy-bridge/internal/logging"
	"eufy-bridge/pkg/models"
)

var log = logging.MustGetLogger("archive")

const defaultQueue = 32

// Store records a finished recording and returns its id.
type Store interface {
	Insert(ctx context.Context, rec models.Recording) (int64, error)
}

// Notifier announces a finished recording.
type Notifier interface {
	Notify(ctx context.Context, rec models.Recording) error
}

// Archiver queues recordings and writes them to the store and notifier
// from its own goroutine. Either sink may be nil.
type Archiver struct {
	store    Store
	notifier Notifier
	timeout  time.Duration

	queue     chan models.Recording
	closeOnce sync.Once
	done      chan struct{}
}

func New(store Store, notifier Notifier) *Archiver {
	return &Archiver{
		store:    store,
		notifier: notifier,
		timeout:  10 * time.Second,
		queue:    make(chan models.Recording, defaultQueue),
		done:     make(chan struct{}),
	}
}

// Submit queues rec without blocking. A full queue drops the record.
func (a *Archiver) Submit(rec models.Recording) {
	select {
	case a.queue <- rec:
	default:
		log.Warningf("archive queue full, dropping %s", rec.Path)
	}
}

// Run drains the queue until Close. Queued records are flushed before
// Run returns; ctx bounds each individual write.
func (a *Archiver) Run(ctx context.Context) {
	defer close(a.done)
	for rec := range a.queue {
		a.archive(ctx, rec)
	}
}

// Close stops accepting work and waits for Run to flush. Call once Submit
// can no longer be reached.
func (a *Archiver) Close() {
	a.closeOnce.Do(func() { close(a.queue) })
	<-a.done
}

func (a *Archiver) archive(parent context.Context, rec models.Recording) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.timeout)
	defer cancel()

	if a.store != nil {
		id, err := a.store.Insert(ctx, rec)
		if err != nil {
			log.Errorf("catalog %s: %v", rec.Path, err)
		} else {
			rec.ID = id
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, rec); err != nil {
			log.Warningf("notify %s: %v", rec.Path, err)
		}
	}
	log.Infof("archived %s (%s, %d bytes, %s)", rec.Path, rec.Reason, rec.Bytes, rec.Duration().Round(time.Second))
}

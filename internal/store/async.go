package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/me/govm/pkg/model"
)

var (
	// ErrJournalFull is returned when the write queue is full. The event
	// is dropped.
	ErrJournalFull = errors.New("journal queue full")

	// ErrJournalClosed is returned for writes after Close.
	ErrJournalClosed = errors.New("journal closed")
)

type journalOp int

const (
	opLaunch journalOp = iota
	opRelease
	opIdle
	opFlush
)

type journalEvent struct {
	op      journalOp
	launch  *model.PackageRecord
	pkgID   string
	tick    uint64
	failure string
	idle    *model.IdleEvent
	flushed chan struct{}
}

// AsyncJournal queues journal writes and applies them to a Store in order
// on one goroutine. Record calls never block: when the queue is full the
// event is dropped and ErrJournalFull returned.
type AsyncJournal struct {
	st     Store
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan journalEvent
	doneCh chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsyncJournal starts the writer goroutine. buffer is the queue length
// and must be positive.
func NewAsyncJournal(st Store, logger *slog.Logger, buffer int) *AsyncJournal {
	if buffer <= 0 {
		buffer = 1
	}
	j := &AsyncJournal{
		st:     st,
		logger: logger.With("component", "journal-writer"),
		events: make(chan journalEvent, buffer),
		doneCh: make(chan struct{}),
	}
	go j.run()
	return j
}

// RecordLaunch queues a launched package.
func (j *AsyncJournal) RecordLaunch(_ context.Context, rec *model.PackageRecord) error {
	return j.enqueue(journalEvent{op: opLaunch, launch: rec})
}

// RecordRelease queues the release of a package.
func (j *AsyncJournal) RecordRelease(_ context.Context, packageID string, tick uint64, failure string) error {
	return j.enqueue(journalEvent{op: opRelease, pkgID: packageID, tick: tick, failure: failure})
}

// RecordIdle queues an object-idle event.
func (j *AsyncJournal) RecordIdle(_ context.Context, ev *model.IdleEvent) error {
	return j.enqueue(journalEvent{op: opIdle, idle: ev})
}

func (j *AsyncJournal) enqueue(ev journalEvent) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	select {
	case j.events <- ev:
		return nil
	default:
		j.dropped.Add(1)
		return ErrJournalFull
	}
}

// Flush waits until every event queued before the call has been written.
func (j *AsyncJournal) Flush(ctx context.Context) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	flushed := make(chan struct{})
	select {
	case j.events <- journalEvent{op: opFlush, flushed: flushed}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *AsyncJournal) Dropped() uint64 {
	return j.dropped.Load()
}

// Failed returns how many queued writes the store rejected.
func (j *AsyncJournal) Failed() uint64 {
	return j.failed.Load()
}

// Close writes everything still queued and stops the writer. It does not
// close the underlying Store.
func (j *AsyncJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.doneCh
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	<-j.doneCh
	if n := j.dropped.Load(); n > 0 {
		j.logger.Warn("journal events dropped", "count", n)
	}
	return nil
}

func (j *AsyncJournal) run() {
	defer close(j.doneCh)
	// Writes outlive the tick that produced them.
	ctx := context.Background()
	for ev := range j.events {
		var err error
		switch ev.op {
		case opLaunch:
			err = j.st.RecordLaunch(ctx, ev.launch)
		case opRelease:
			err = j.st.RecordRelease(ctx, ev.pkgID, ev.tick, ev.failure)
		case opIdle:
			err = j.st.RecordIdle(ctx, ev.idle)
		case opFlush:
			close(ev.flushed)
		}
		if err != nil {
			j.failed.Add(1)
			j.logger.Warn("journal write failed", "error", err)
		}
	}
}

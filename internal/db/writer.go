package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"drivewatch/internal/types"
)

// ErrWriterClosed is returned by Submit after Close.
var ErrWriterClosed = errors.New("writer closed")

// ErrWriterBusy is returned by Submit when the queue is full.
var ErrWriterBusy = errors.New("writer queue full")

// WriteFn is one unit of persistence work.
type WriteFn func(ctx context.Context) error

// Writer runs persistence jobs on a single goroutine so the decision path
// never blocks on the database. Jobs run in submission order.
type Writer struct {
	jobs    chan WriteFn
	done    chan struct{}
	timeout time.Duration
	logger  types.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a Writer with the given queue depth and per-job timeout.
func NewWriter(queueSize int, timeout time.Duration, logger types.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	w := &Writer{
		jobs:    make(chan WriteFn, queueSize),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
	go w.loop()
	return w
}

// Submit enqueues fn without blocking.
func (w *Writer) Submit(fn WriteFn) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.jobs <- fn:
		return nil
	default:
		return ErrWriterBusy
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)

	for fn := range w.jobs {
		ctx := context.Background()
		cancel := func() {}
		if w.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, w.timeout)
		}
		if err := fn(ctx); err != nil {
			w.logger.Error("Persistence job failed", "error", err)
		}
		cancel()
	}
}

// ParkingStore adapts a ParkingRepository to asynchronous writes.
type ParkingStore struct {
	repo   *ParkingRepository
	writer *Writer
}

// NewParkingStore queues repo writes on writer.
func NewParkingStore(repo *ParkingRepository, writer *Writer) *ParkingStore {
	return &ParkingStore{repo: repo, writer: writer}
}

// SaveConfirmed queues the insert of a confirmed record.
func (s *ParkingStore) SaveConfirmed(rec types.ParkingRecord) error {
	return s.writer.Submit(func(ctx context.Context) error {
		return s.repo.Insert(ctx, &rec)
	})
}

// SaveReversed queues the reversal flag for a record.
func (s *ParkingStore) SaveReversed(rec types.ParkingRecord) error {
	at := rec.ConfirmedAt
	if rec.ReversedAt != nil {
		at = *rec.ReversedAt
	}
	return s.writer.Submit(func(ctx context.Context) error {
		return s.repo.MarkReversed(ctx, rec.ID, at)
	})
}

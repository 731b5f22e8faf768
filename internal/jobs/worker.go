// Package jobs runs background work on a fixed poll interval.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/logger"
)

// Processor handles one batch. more reports that the batch was full and the
// next one should run without waiting for the ticker.
type Processor interface {
	Process(ctx context.Context) (more bool, err error)
}

// Worker polls a Processor until its context is cancelled or Stop is called.
type Worker struct {
	processor Processor
	interval  time.Duration
	log       *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(processor Processor, interval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks. The first batch runs immediately so work queued while the
// process was down is not delayed by a full interval.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("worker started", "interval", w.interval.String())
	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			w.log.Info("worker stopped", "reason", "context cancelled")
			return
		case <-w.stop:
			w.log.Info("worker stopped", "reason", "stop requested")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil || w.stopping() {
			return
		}
		more, err := w.processor.Process(ctx)
		if err != nil {
			w.log.Error("worker batch failed", "error", err)
			return
		}
		if !more {
			return
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// Stop signals the loop and waits for the current batch to finish. It is safe
// to call more than once, and after Start returned on its own.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

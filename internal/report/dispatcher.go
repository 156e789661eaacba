package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/domain"
)

const reportTimeout = 45 * time.Second

type Reporter interface {
	MaybeReport(ctx context.Context, record domain.BanRecord) (bool, error)
}

// Dispatcher decouples reporting from the ban path through a bounded queue
// drained by a fixed set of workers.
type Dispatcher struct {
	reporter Reporter
	queue    chan domain.BanRecord
	workers  int
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(reporter Reporter, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		reporter: reporter,
		queue:    make(chan domain.BanRecord, queueSize),
		workers:  workers,
		timeout:  reportTimeout,
	}
}

// Dispatch enqueues record without blocking. When the queue is full the
// report is dropped.
func (d *Dispatcher) Dispatch(record domain.BanRecord) {
	select {
	case d.queue <- record:
	default:
		log.Warn("report queue full, dropping report", "address", record.Address)
	}
}

// Run drains the queue until ctx is cancelled. A report already being sent
// runs to completion or its own timeout; queued reports left at shutdown are
// discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case record := <-d.queue:
					d.handle(ctx, record)
				}
			}
		}()
	}
	d.wg.Wait()

	if pending := len(d.queue); pending > 0 {
		log.Warn("discarding queued reports at shutdown", "count", pending)
	}
}

func (d *Dispatcher) handle(ctx context.Context, record domain.BanRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("report worker panic", "address", record.Address, "panic", fmt.Sprint(r))
		}
	}()

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if _, err := d.reporter.MaybeReport(reportCtx, record); err != nil {
		log.Error("report failed", "address", record.Address, "error", err)
	}
}

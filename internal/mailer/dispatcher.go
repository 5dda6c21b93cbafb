package mailer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one queued outbound email.
type Job struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Dispatcher delivers queued mail on a background goroutine, detached from
// the request/response lifecycle. Failures are logged and counted, never
// surfaced to the enqueuing request.
type Dispatcher struct {
	sender Sender
	queue  chan Job
	wg     sync.WaitGroup

	stopMu  sync.RWMutex
	stopped bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

const sendTimeout = 10 * time.Second

func NewDispatcher(sender Sender) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		queue:  make(chan Job, 64),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue hands a job to the background worker. It never blocks and never
// panics: a full queue or a stopped dispatcher drops the job and counts it.
func (d *Dispatcher) Enqueue(job Job) {
	d.stopMu.RLock()
	defer d.stopMu.RUnlock()
	if d.stopped {
		d.dropped.Add(1)
		slog.Warn("mail dispatcher stopped, dropping message", "subject", job.Subject, "recipients", len(job.To))
		return
	}

	select {
	case d.queue <- job:
	default:
		d.dropped.Add(1)
		slog.Warn("mail queue full, dropping message", "subject", job.Subject, "recipients", len(job.To))
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.Send(ctx, job.To, job.Subject, job.HTMLBody)
		cancel()
		if err != nil {
			d.noteFailure("background send", err)
			continue
		}
		d.sent.Add(1)
	}
}

func (d *Dispatcher) noteFailure(action string, err error) {
	d.failed.Add(1)
	slog.Error("mail dispatch failed", "action", action, "error", err)
}

// Stop drains the queue and waits for the worker to finish. Safe to call
// more than once; jobs enqueued afterwards are dropped.
func (d *Dispatcher) Stop() {
	d.stopMu.Lock()
	if d.stopped {
		d.stopMu.Unlock()
		return
	}
	d.stopped = true
	d.stopMu.Unlock()

	close(d.queue)
	d.wg.Wait()
}

// Stats returns the sent and failed counters.
func (d *Dispatcher) Stats() (sent, failed uint64) {
	return d.sent.Load(), d.failed.Load()
}

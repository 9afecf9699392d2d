package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Delivery outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
	OutcomeSkipped = "skipped"
)

// Observer receives one call per delivery result.
type Observer interface {
	ObserveNotification(sink, outcome string)
}

// Config configures the worker pool.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
	// SendTimeout bounds a single sink call.
	SendTimeout time.Duration
}

type job struct {
	n       Notification
	sink    Sink
	attempt int
}

// Dispatcher is an in-memory queue fanning notifications out to sinks.
// Dispatch never blocks: when the buffer is full the message is dropped.
type Dispatcher struct {
	sinks    []Sink
	log      logrus.FieldLogger
	observer Observer

	workers     int
	maxRetries  int
	retryDelay  time.Duration
	sendTimeout time.Duration

	jobs    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher builds a dispatcher for the given sinks.
func NewDispatcher(cfg Config, log logrus.FieldLogger, observer Observer, sinks ...Sink) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		sinks:       sinks,
		log:         log.WithField("component", "notify"),
		observer:    observer,
		workers:     cfg.Workers,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		sendTimeout: cfg.SendTimeout,
		jobs:        make(chan job, cfg.QueueSize),
		quit:        make(chan struct{}),
	}
}

// Start launches the workers. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.started = true
	sinkNames := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		sinkNames = append(sinkNames, s.Name())
	}
	d.log.WithFields(logrus.Fields{"workers": d.workers, "sinks": sinkNames}).Info("notification dispatcher started")
}

// Stop refuses new messages, delivers whatever is already queued and waits
// for the workers to exit. Pending retries are abandoned.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.stopped = true
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.quit)
	d.mu.Unlock()

	d.retries.Wait()
	d.wg.Wait()
	d.log.Info("notification dispatcher stopped")
}

// Dispatch queues n for every sink.
func (d *Dispatcher) Dispatch(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	for _, s := range d.sinks {
		d.enqueue(job{n: n, sink: s})
	}
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fields := logrus.Fields{"notification_id": j.n.ID, "event": j.n.Event, "sink": j.sink.Name()}
	if !d.started || d.stopped {
		d.log.WithFields(fields).Warn("dispatcher not running, notification dropped")
		d.observe(j.sink.Name(), OutcomeDropped)
		return false
	}
	select {
	case d.jobs <- j:
		return true
	default:
		d.log.WithFields(fields).Warn("notification queue full, notification dropped")
		d.observe(j.sink.Name(), OutcomeDropped)
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			d.drain(ctx)
			return
		case j := <-d.jobs:
			d.deliver(ctx, j, true)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case j := <-d.jobs:
			d.deliver(ctx, j, false)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job, retry bool) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := j.sink.Send(sendCtx, j.n)
	cancel()

	name := j.sink.Name()
	switch {
	case err == nil:
		d.observe(name, OutcomeSuccess)
		return
	case errors.Is(err, ErrSkipped):
		d.observe(name, OutcomeSkipped)
		return
	}

	d.observe(name, OutcomeError)
	entry := d.log.WithError(err).WithFields(logrus.Fields{
		"notification_id": j.n.ID,
		"event":           j.n.Event,
		"sink":            name,
		"attempt":         j.attempt + 1,
	})
	if !retry || j.attempt >= d.maxRetries {
		entry.Error("notification delivery failed, giving up")
		return
	}
	entry.Warn("notification delivery failed, retrying")
	j.attempt++

	d.retries.Add(1)
	go func() {
		defer d.retries.Done()
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-d.quit:
		case <-timer.C:
			d.enqueue(j)
		}
	}()
}

func (d *Dispatcher) observe(sink, outcome string) {
	if d.observer != nil {
		d.observer.ObserveNotification(sink, outcome)
	}
}

// Package notification delivers outbound email through a bounded asynchronous
// dispatcher. Lifecycle code enqueues and moves on; delivery failures are
// retried a fixed number of times and then logged.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Message is one queued email.
type Message struct {
	ID       string
	To       string
	Subject  string
	HTMLBody string
	// Kind labels the message in logs, e.g. "appointment-confirmation".
	Kind string
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles after that.
	Backoff     time.Duration
	SendTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     2,
		QueueSize:   256,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		SendTimeout: 15 * time.Second,
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Queued  int64 `json:"queued"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Retries int64 `json:"retries"`
}

// Dispatcher fans queued messages out to a fixed pool of workers.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup

	queued, sent, failed, dropped, retries atomic.Int64
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	d := &Dispatcher{
		sender: sender,
		cfg:    cfg,
		logger: logger.With().Str("component", "notification").Logger(),
		queue:  make(chan Message, cfg.QueueSize),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue queues m without blocking. It returns false when the queue is full
// or the dispatcher is closed; the message is dropped and logged.
func (d *Dispatcher) Enqueue(m Message) bool {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(m, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- m:
		d.queued.Add(1)
		return true
	default:
		d.drop(m, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(m Message, reason string) {
	d.dropped.Add(1)
	d.logger.Warn().
		Str("message_id", m.ID).
		Str("kind", m.Kind).
		Str("to", m.To).
		Str("reason", reason).
		Msg("notification dropped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for m := range d.queue {
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	backoff := d.cfg.Backoff
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.retries.Add(1)
			time.Sleep(backoff)
			backoff *= 2
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		err = d.sender.Send(ctx, m.To, m.Subject, m.HTMLBody)
		cancel()
		if err == nil {
			d.sent.Add(1)
			d.logger.Debug().Str("message_id", m.ID).Str("kind", m.Kind).Int("attempt", attempt).Msg("notification sent")
			return
		}
		d.logger.Warn().Err(err).Str("message_id", m.ID).Int("attempt", attempt).Msg("notification attempt failed")
	}

	d.failed.Add(1)
	d.logger.Error().Err(err).
		Str("message_id", m.ID).
		Str("kind", m.Kind).
		Str("to", m.To).
		Int("attempts", d.cfg.MaxAttempts).
		Msg("notification delivery failed")
}

// Close stops accepting messages and waits for the queue to drain, or for ctx
// to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:  d.queued.Load(),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Retries: d.retries.Load(),
	}
}

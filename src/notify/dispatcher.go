// Package notify hands trade fees to the fiscal-allocation service. Delivery is
// fire-and-forget: a lost notification never affects a match.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"spot-engine/src/engine"
)

// Publisher delivers a batch of fee events. A returned error fails the whole
// batch. The slice is reused after Publish returns.
type Publisher interface {
	Publish(ctx context.Context, events []engine.FeeEvent) error
	Close() error
}

// MaxBatch is the most events handed to a Publisher in one call.
const MaxBatch = 256

// Dispatcher buffers fee events and delivers them from a background worker.
type Dispatcher struct {
	publisher Publisher
	timeout   time.Duration
	events    chan engine.FeeEvent

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

var _ engine.FeeSink = (*Dispatcher)(nil)

func NewDispatcher(publisher Publisher, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		publisher: publisher,
		timeout:   timeout,
		events:    make(chan engine.FeeEvent, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues an event without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(event engine.FeeEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("trade_id", event.TradeID).
			Str("instrument", event.Instrument).
			Msg("Fee queue full, notification dropped")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	batch := make([]engine.FeeEvent, 0, MaxBatch)
	for event := range d.events {
		batch = append(batch[:0], event)
		batch = d.drain(batch)
		d.deliver(batch)
	}
}

// drain appends whatever is already queued, up to MaxBatch, without waiting.
func (d *Dispatcher) drain(batch []engine.FeeEvent) []engine.FeeEvent {
	for len(batch) < MaxBatch {
		select {
		case event, ok := <-d.events:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (d *Dispatcher) deliver(batch []engine.FeeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	err := d.publisher.Publish(ctx, batch)
	cancel()
	if err != nil {
		d.failed.Add(int64(len(batch)))
		log.Error().
			Err(err).
			Int("events", len(batch)).
			Str("first_trade_id", batch[0].TradeID).
			Msg("Failed to publish fee notifications")
		return
	}
	d.delivered.Add(int64(len(batch)))
}

type Stats struct {
	Delivered int64
	Dropped   int64
	Failed    int64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close drains queued events and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}

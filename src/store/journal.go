package store

import (
	"sync"

	"github.com/rs/zerolog/log"

	"spot-engine/src/engine"
)

type op struct {
	order *orderRecord
	trade *tradeRecord
}

// Journal queues order and trade records in memory and writes them to the
// store from a single goroutine, in the order they were recorded. Recording
// never blocks on disk.
type Journal struct {
	store *Store

	mu      sync.Mutex
	pending []op
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ engine.Journal = (*Journal)(nil)

func NewJournal(store *Store) *Journal {
	j := &Journal{
		store: store,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

func (j *Journal) RecordOrder(order engine.Order) {
	rec := fromOrder(order)
	j.enqueue(op{order: &rec})
}

func (j *Journal) RecordTrade(trade engine.Trade) {
	rec := fromTrade(trade)
	j.enqueue(op{trade: &rec})
}

func (j *Journal) enqueue(o op) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		log.Warn().Msg("Journal closed, record dropped")
		return
	}
	j.pending = append(j.pending, o)
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *Journal) run() {
	defer j.wg.Done()
	for {
		select {
		case <-j.wake:
			j.flush()
		case <-j.done:
			j.flush()
			return
		}
	}
}

func (j *Journal) flush() {
	j.mu.Lock()
	ops := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(ops) == 0 {
		return
	}
	// edge case: a failed write is logged, never surfaced to matching
	if err := j.store.write(ops); err != nil {
		log.Error().
			Err(err).
			Int("records", len(ops)).
			Msg("Failed to persist journal batch")
	}
}

// Close stops accepting records and waits until everything queued is written.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.mu.Unlock()

	close(j.done)
	j.wg.Wait()
}

package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
)

// Router maps an instrument to its Engine. Instruments are created on first
// order and never removed.
type Router struct {
	engines map[string]*Engine
	mu      sync.RWMutex
	fees    FeeSchedule
	opts    []Option
}

func NewRouter(fees FeeSchedule, opts ...Option) *Router {
	return &Router{
		engines: make(map[string]*Engine),
		fees:    fees,
		opts:    opts,
	}
}

// Engine returns the engine of an instrument, creating it if needed.
func (r *Router) Engine(instrument string) *Engine {
	r.mu.RLock()
	if e, exists := r.engines[instrument]; exists {
		r.mu.RUnlock()
		return e
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if e, exists := r.engines[instrument]; exists {
		return e
	}

	opts := append([]Option{WithFeeRate(r.fees.Rate(instrument))}, r.opts...)
	e := NewEngine(instrument, opts...)
	r.engines[instrument] = e

	log.Info().
		Str("instrument", instrument).
		Str("fee_rate", e.FeeRate().String()).
		Msg("Instrument created")
	return e
}

// Lookup returns the engine of an existing instrument without creating one.
func (r *Router) Lookup(instrument string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.engines[instrument]
	return e, exists
}

func (r *Router) snapshot() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	return engines
}

func (r *Router) Instruments() []string {
	engines := r.snapshot()
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.instrument)
	}
	sort.Strings(names)
	return names
}

func (r *Router) PlaceOrder(ctx context.Context, instrument string, req OrderRequest) (*PlaceResult, error) {
	if err := validateInstrument(instrument); err != nil {
		return nil, err
	}
	// edge case: reject bad input before an unknown instrument gets created
	if err := validate(req); err != nil {
		return nil, err
	}
	return r.Engine(instrument).PlaceOrder(ctx, req)
}

// MaxInstrumentLength bounds instrument names accepted from callers.
const MaxInstrumentLength = 64

// validateInstrument keeps names printable. Store keys use NUL as a separator.
func validateInstrument(instrument string) error {
	if instrument == "" {
		return &ValidationError{Field: "instrument", Message: "is required"}
	}
	if len(instrument) > MaxInstrumentLength {
		return &ValidationError{Field: "instrument", Message: "is too long"}
	}
	if strings.IndexFunc(instrument, func(r rune) bool {
		return unicode.IsControl(r) || unicode.IsSpace(r) || r == unicode.ReplacementChar
	}) >= 0 {
		return &ValidationError{Field: "instrument", Message: "must not contain control or space characters"}
	}
	return nil
}

// CancelOrder cancels a resting order on whichever instrument holds it. Order
// ids are unique across instruments.
func (r *Router) CancelOrder(ctx context.Context, id string) bool {
	for _, e := range r.snapshot() {
		if e.CancelOrder(ctx, id) {
			return true
		}
	}
	return false
}

func (r *Router) FindOrder(id string) (Order, bool) {
	for _, e := range r.snapshot() {
		if order, ok := e.Order(id); ok {
			return order, true
		}
	}
	return Order{}, false
}

// OrdersByOwner returns the owner's resting orders on every instrument,
// newest first.
func (r *Router) OrdersByOwner(owner string) []Order {
	orders := make([]Order, 0)
	for _, e := range r.snapshot() {
		orders = append(orders, e.OrdersByOwner(owner)...)
	}
	SortNewestFirst(orders)
	return orders
}

// SortNewestFirst orders by creation time, then by sequence, both descending.
func SortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].Sequence > orders[j].Sequence
	})
}

// Restore rebuilds one instrument from journaled state.
func (r *Router) Restore(instrument string, orders []Order, trades []Trade) error {
	return r.Engine(instrument).Restore(orders, trades)
}

type Stats struct {
	Instruments   int
	RestingOrders int
	Trades        int
	Halted        int
}

func (r *Router) Stats() Stats {
	engines := r.snapshot()
	stats := Stats{Instruments: len(engines)}
	for _, e := range engines {
		stats.RestingOrders += e.RestingOrders()
		stats.Trades += e.tape.Len()
		if e.Halted() {
			stats.Halted++
		}
	}
	return stats
}

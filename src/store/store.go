// Package store keeps a durable copy of orders and trades in pebble. It is
// used for recovery and history only; matching never reads from it.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"spot-engine/src/engine"
)

// keys: order\x00<id>, trade\x00<instrument>\x00<unix-nanos>\x00<id>, inst\x00<instrument>
const sep = "\x00"

var (
	orderPrefix      = []byte("order" + sep)
	tradePrefix      = []byte("trade" + sep)
	instrumentPrefix = []byte("inst" + sep)
)

func orderKey(id string) []byte {
	return append(bytes.Clone(orderPrefix), id...)
}

func tradeKey(t tradeRecord) []byte {
	return []byte(fmt.Sprintf("trade%s%s%s%020d%s%s", sep, t.Instrument, sep, t.Timestamp.UnixNano(), sep, t.ID))
}

func instrumentKey(instrument string) []byte {
	return append(bytes.Clone(instrumentPrefix), instrument...)
}

// upperBound is the smallest key greater than every key starting with prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}

type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

func Open(dir string, sync bool) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", dir)
	}
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	return &Store{db: db, writeOpts: opts}, nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close pebble")
}

// write commits one batch of queued records.
func (s *Store) write(ops []op) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	seen := make(map[string]struct{})
	for _, o := range ops {
		var (
			key        []byte
			instrument string
			value      []byte
			err        error
		)
		switch {
		case o.order != nil:
			key, instrument = orderKey(o.order.ID), o.order.Instrument
			value, err = json.Marshal(o.order)
		case o.trade != nil:
			key, instrument = tradeKey(*o.trade), o.trade.Instrument
			value, err = json.Marshal(o.trade)
		default:
			continue
		}
		if err != nil {
			return errors.Wrap(err, "encode record")
		}
		if err := batch.Set(key, value, nil); err != nil {
			return errors.Wrap(err, "batch set")
		}
		if _, ok := seen[instrument]; !ok {
			seen[instrument] = struct{}{}
			if err := batch.Set(instrumentKey(instrument), nil, nil); err != nil {
				return errors.Wrap(err, "batch set instrument")
			}
		}
	}
	return errors.Wrap(batch.Commit(s.writeOpts), "commit batch")
}

func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "new iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterate")
}

// Instruments lists every instrument that ever had an order or trade.
func (s *Store) Instruments() ([]string, error) {
	var names []string
	err := s.scan(instrumentPrefix, func(key, _ []byte) error {
		names = append(names, string(key[len(instrumentPrefix):]))
		return nil
	})
	return names, err
}

// Order returns the last journaled state of an order, including terminal ones.
func (s *Store) Order(id string) (engine.Order, bool, error) {
	value, closer, err := s.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return engine.Order{}, false, nil
	}
	if err != nil {
		return engine.Order{}, false, errors.Wrapf(err, "get order %s", id)
	}
	defer closer.Close()

	var rec orderRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return engine.Order{}, false, errors.Wrapf(err, "decode order %s", id)
	}
	return rec.toOrder(), true, nil
}

// LoadOpenOrders returns resting orders grouped by instrument, in sequence
// order.
func (s *Store) LoadOpenOrders() (map[string][]engine.Order, error) {
	open := make(map[string][]engine.Order)
	err := s.scan(orderPrefix, func(key, value []byte) error {
		var rec orderRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		if rec.Status.Terminal() || rec.Kind != engine.KindLimit {
			return nil
		}
		open[rec.Instrument] = append(open[rec.Instrument], rec.toOrder())
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, orders := range open {
		sort.Slice(orders, func(i, j int) bool {
			return orders[i].Sequence < orders[j].Sequence
		})
	}
	return open, nil
}

// OrdersByOwner returns the last journaled state of every order placed by
// owner, terminal ones included. It scans the whole order keyspace.
func (s *Store) OrdersByOwner(owner string) ([]engine.Order, error) {
	var orders []engine.Order
	err := s.scan(orderPrefix, func(key, value []byte) error {
		var rec orderRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		if rec.Owner == owner {
			orders = append(orders, rec.toOrder())
		}
		return nil
	})
	return orders, err
}

// LoadTrades returns every trade of an instrument, oldest first.
func (s *Store) LoadTrades(instrument string) ([]engine.Trade, error) {
	var trades []engine.Trade
	prefix := []byte(string(tradePrefix) + instrument + sep)
	err := s.scan(prefix, func(key, value []byte) error {
		var rec tradeRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		trades = append(trades, rec.toTrade())
		return nil
	})
	return trades, err
}

// Restore replays the journal into a router.
func (s *Store) Restore(router *engine.Router) error {
	instruments, err := s.Instruments()
	if err != nil {
		return err
	}
	open, err := s.LoadOpenOrders()
	if err != nil {
		return err
	}
	for _, instrument := range instruments {
		trades, err := s.LoadTrades(instrument)
		if err != nil {
			return err
		}
		if err := router.Restore(instrument, open[instrument], trades); err != nil {
			return errors.Wrapf(err, "restore %s", instrument)
		}
	}
	return nil
}

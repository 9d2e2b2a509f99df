// Package series stores the arrangement-size rows emitted during a session
// in an ordered keyed store, so that the full time series stays scannable
// after the live feed has moved on.
//
// The backing store is Pebble on an in-memory filesystem by default; the
// rows are derived output, not event history, and vanish with the session
// unless a path was configured.
package series

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/arrange"
	pebblestore "github.com/TimelyDataflow/diagnostics/internal/storage/pebble"
	"github.com/cockroachdb/pebble"
)

// Store provides append and range-scan access to emitted rows.
type Store struct {
	db *pebblestore.DB
}

// Open wraps db as a row store.
func Open(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// Append writes the rows as a single atomic batch.
func (s *Store) Append(ctx context.Context, rows []arrange.Row) error {
	if len(rows) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for i := range rows {
		r := &rows[i]
		key := keyRow(uint64(r.Elapsed/time.Millisecond), uint32(r.Worker), r.Addr)
		if err := b.Set(key, encodeRowValue(r), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// ScanOptions bounds a Scan. From is inclusive, To exclusive; To == 0 means
// unbounded. Limit == 0 means no limit.
type ScanOptions struct {
	From  time.Duration
	To    time.Duration
	Limit int
}

// Scan returns rows in (elapsed, worker, address) order.
func (s *Store) Scan(opts ScanOptions) ([]arrange.Row, error) {
	low := keyLowerBound(uint64(opts.From / time.Millisecond))
	hiMs := uint64(math.MaxUint64)
	if opts.To > 0 {
		hiMs = uint64(opts.To / time.Millisecond)
	}
	hi := keyLowerBound(hiMs)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var rows []arrange.Row
	for iter.First(); iter.Valid(); iter.Next() {
		if opts.Limit > 0 && len(rows) >= opts.Limit {
			break
		}
		elapsedMs, worker, addr, ok := parseKey(iter.Key())
		if !ok {
			continue
		}
		count, name, ok := decodeRowValue(iter.Value())
		if !ok {
			continue
		}
		rows = append(rows, arrange.Row{
			Elapsed: time.Duration(elapsedMs) * time.Millisecond,
			Worker:  int(worker),
			Addr:    addr,
			Name:    name,
			Count:   count,
		})
	}
	return rows, iter.Error()
}

// Row value encoding: zig-zag varint count | name bytes.

func encodeRowValue(r *arrange.Row) []byte {
	v := make([]byte, 0, 10+len(r.Name))
	u := uint64((r.Count << 1) ^ (r.Count >> 63))
	v = binary.AppendUvarint(v, u)
	return append(v, r.Name...)
}

func decodeRowValue(v []byte) (count int64, name string, ok bool) {
	u, n := binary.Uvarint(v)
	if n <= 0 {
		return 0, "", false
	}
	count = int64(u>>1) ^ -int64(u&1)
	return count, string(v[n:]), true
}

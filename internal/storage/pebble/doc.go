// Package pebblestore provides a thin wrapper around Pebble with batches,
// ordered iteration, and an in-memory mode.
//
// The diagnostics engine keeps no durable event history; by default the
// store runs on Pebble's in-memory filesystem and lives exactly as long as
// the session. Passing a Path switches to the real filesystem, used when
// derived series rows should survive for offline inspection.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
package pebblestore

package kv

import (
	"github.com/cockroachdb/pebble"
)

// PebbleStore is the durable Store backend: an LSM tree on local disk.
// This is the store a production node runs with; Memory exists only for
// tests and ephemeral genesis staging.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a Pebble database at dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	closer.Close()
	return cp, nil
}

func (p *PebbleStore) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleStore) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleStore) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{db: p.db, batch: p.db.NewBatch()}
}

func (p *PebbleStore) NewIterator(prefix, start []byte) Iterator {
	lo := start
	if len(lo) == 0 {
		lo = prefix
	}
	hi := upperBound(prefix)
	it, _ := p.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	it.First()
	return &pebbleIterator{it: it, started: false}
}

// upperBound returns the smallest key greater than every key sharing
// prefix, i.e. prefix with its last byte incremented (carrying as needed).
// A nil result means "no upper bound" (prefix is empty or all 0xff).
func upperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == 0xff {
			out = out[:i]
			continue
		}
		out[i]++
		return out
	}
	return nil
}

type pebbleBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
	size  int
}

func (b *pebbleBatch) Put(key, value []byte) {
	b.batch.Set(key, value, nil)
	b.size += len(key) + len(value)
}

func (b *pebbleBatch) Delete(key []byte) {
	b.batch.Delete(key, nil)
	b.size += len(key)
}

func (b *pebbleBatch) Write() error { return b.batch.Commit(pebble.Sync) }
func (b *pebbleBatch) Reset()       { b.batch.Reset(); b.size = 0 }
func (b *pebbleBatch) Len() int     { return int(b.batch.Count()) }
func (b *pebbleBatch) Size() int    { return b.size }

type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		return it.it.Valid()
	}
	return it.it.Next()
}

func (it *pebbleIterator) Key() []byte {
	if !it.it.Valid() {
		return nil
	}
	return it.it.Key()
}

func (it *pebbleIterator) Value() []byte {
	if !it.it.Valid() {
		return nil
	}
	return it.it.Value()
}

func (it *pebbleIterator) Release() { it.it.Close() }

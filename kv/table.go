package kv

// Table wraps a Store with a fixed key prefix, giving each logical column
// (headers, bodies, receipts, trie nodes, ...) an isolated namespace within
// one physical store. Grounded on the teacher's rawdb table wrapper.
type Table struct {
	db     Store
	prefix []byte
}

// NewTable returns a Store view scoped to keys under prefix.
func NewTable(db Store, prefix string) *Table {
	return &Table{db: db, prefix: []byte(prefix)}
}

func (t *Table) prefixed(key []byte) []byte {
	out := make([]byte, len(t.prefix)+len(key))
	copy(out, t.prefix)
	copy(out[len(t.prefix):], key)
	return out
}

func (t *Table) Get(key []byte) ([]byte, error) { return t.db.Get(t.prefixed(key)) }
func (t *Table) Put(key, value []byte) error    { return t.db.Put(t.prefixed(key), value) }
func (t *Table) Delete(key []byte) error        { return t.db.Delete(t.prefixed(key)) }
func (t *Table) Has(key []byte) (bool, error)   { return t.db.Has(t.prefixed(key)) }
func (t *Table) Close() error                   { return nil }

func (t *Table) NewBatch() Batch {
	return &tableBatch{batch: t.db.NewBatch(), prefix: t.prefix}
}

func (t *Table) NewIterator(prefix, start []byte) Iterator {
	inner := t.db.NewIterator(t.prefixed(prefix), t.prefixed(start))
	return &tableIterator{inner: inner, prefixLen: len(t.prefix)}
}

// Prefix returns the table's key prefix.
func (t *Table) Prefix() []byte {
	cp := make([]byte, len(t.prefix))
	copy(cp, t.prefix)
	return cp
}

type tableBatch struct {
	batch  Batch
	prefix []byte
}

func (b *tableBatch) prefixed(key []byte) []byte {
	out := make([]byte, len(b.prefix)+len(key))
	copy(out, b.prefix)
	copy(out[len(b.prefix):], key)
	return out
}

func (b *tableBatch) Put(key, value []byte) { b.batch.Put(b.prefixed(key), value) }
func (b *tableBatch) Delete(key []byte)     { b.batch.Delete(b.prefixed(key)) }
func (b *tableBatch) Write() error          { return b.batch.Write() }
func (b *tableBatch) Reset()                { b.batch.Reset() }
func (b *tableBatch) Len() int              { return b.batch.Len() }
func (b *tableBatch) Size() int             { return b.batch.Size() }

type tableIterator struct {
	inner     Iterator
	prefixLen int
}

func (it *tableIterator) Next() bool   { return it.inner.Next() }
func (it *tableIterator) Release()     { it.inner.Release() }
func (it *tableIterator) Value() []byte { return it.inner.Value() }

func (it *tableIterator) Key() []byte {
	key := it.inner.Key()
	if key == nil || len(key) < it.prefixLen {
		return key
	}
	return key[it.prefixLen:]
}

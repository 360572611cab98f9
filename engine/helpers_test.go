package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/item"
)

// memStore is an in-memory engine.Store for tests.
type memStore struct {
	mu      sync.Mutex
	counter uint64
	items   map[string]memRecord

	// writes counts successful mutations.
	writes int

	// failWith, when set, is returned by every read and write.
	failWith error

	// beforeWrite runs ahead of each conditional write, outside the lock.
	beforeWrite func(id string)
}

type memRecord struct {
	it      item.Item
	deleted bool
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]memRecord)}
}

// seed stores it directly with the given seq.
func (m *memStore) seed(it item.Item, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it.Seq = seq
	m.items[it.ID] = memRecord{it: it}
	if seq > m.counter {
		m.counter = seq
	}
}

func (m *memStore) EnumerateItems(_ context.Context, since uint64, parentID string) ([]item.ShortItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []item.ShortItem
	for _, rec := range m.items {
		if rec.it.ParentID == parentID && rec.it.Seq > since {
			out = append(out, rec.it.Short())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memStore) LoadItem(_ context.Context, id string) (item.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return item.Item{}, false, m.failWith
	}
	rec, ok := m.items[id]
	if !ok || rec.deleted {
		return item.Item{}, false, nil
	}
	return rec.it.Clone(), true, nil
}

func (m *memStore) SeqNum(_ context.Context, id string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	return m.items[id].it.Seq, nil
}

func (m *memStore) AddItem(_ context.Context, it item.Item, expected uint64) (uint64, error) {
	return m.write(it.ID, expected, func(rec *memRecord) error {
		rec.it = it.Clone()
		rec.deleted = false
		return nil
	})
}

func (m *memStore) ModifyItem(_ context.Context, it item.Item, expected uint64) (uint64, error) {
	return m.write(it.ID, expected, func(rec *memRecord) error {
		if rec.deleted || rec.it.ID == "" {
			return engine.ErrItemNotFound
		}
		parent := rec.it.ParentID
		rec.it = it.Clone()
		rec.it.ParentID = parent
		return nil
	})
}

func (m *memStore) RemoveItem(_ context.Context, id string, expected uint64) (uint64, error) {
	return m.write(id, expected, func(rec *memRecord) error {
		if rec.deleted || rec.it.ID == "" {
			return engine.ErrItemNotFound
		}
		rec.deleted = true
		return nil
	})
}

func (m *memStore) write(id string, expected uint64, fn func(*memRecord) error) (uint64, error) {
	if m.beforeWrite != nil {
		m.beforeWrite(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	rec := m.items[id]
	if rec.it.Seq != expected {
		return 0, engine.ErrConcurrentModification
	}
	if err := fn(&rec); err != nil {
		return 0, err
	}
	m.counter++
	rec.it.Seq = m.counter
	m.items[id] = rec
	m.writes++
	return m.counter, nil
}

func (m *memStore) live(id string) (item.Item, bool) {
	it, ok, _ := m.LoadItem(context.Background(), id)
	return it, ok
}

// batchStore wraps memStore with all-or-nothing batches.
type batchStore struct {
	*memStore
	batches int

	// beforeBatch runs ahead of each batch, before it takes its snapshot.
	beforeBatch func()

	// failBatch, when set, fails every batch without writing.
	failBatch error
}

func (b *batchStore) ApplyBatch(ctx context.Context, muts []engine.Mutation) ([]uint64, error) {
	b.batches++
	if b.beforeBatch != nil {
		b.beforeBatch()
	}
	if b.failBatch != nil {
		return nil, b.failBatch
	}

	b.mu.Lock()
	snapshot := make(map[string]memRecord, len(b.items))
	for k, v := range b.items {
		snapshot[k] = v
	}
	counter, writes := b.counter, b.writes
	b.mu.Unlock()

	seqs := make([]uint64, len(muts))
	for i, m := range muts {
		seq, err := m.Apply(ctx, b.memStore)
		if err != nil {
			b.mu.Lock()
			b.items, b.counter, b.writes = snapshot, counter, writes
			b.mu.Unlock()
			return nil, err
		}
		seqs[i] = seq
	}
	return seqs, nil
}

var errStoreDown = errors.New("store down")

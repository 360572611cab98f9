package sqlstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/internal/codec"
	"github.com/jacentio/arbor/internal/sqlitepool"
	"github.com/jacentio/arbor/item"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	tenant    TEXT    NOT NULL,
	id        TEXT    NOT NULL,
	parent_id TEXT    NOT NULL,
	seq       INTEGER NOT NULL,
	deleted   INTEGER NOT NULL DEFAULT 0,
	fields    BLOB,
	PRIMARY KEY (tenant, id)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS items_by_parent ON items (tenant, parent_id, seq);

CREATE TABLE IF NOT EXISTS counters (
	tenant TEXT    PRIMARY KEY,
	seq    INTEGER NOT NULL
) WITHOUT ROWID;
`

// Config holds configuration for the Store.
type Config struct {
	// Path is the SQLite database file.
	// Default: "arbor.db"
	Path string

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration for a database in the working
// directory.
func DefaultConfig() Config {
	return Config{
		Path:     "arbor.db",
		PoolSize: 4,
	}
}

func (c *Config) validate() {
	if c.Path == "" {
		c.Path = "arbor.db"
	}
	if c.PoolSize < 1 {
		c.PoolSize = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store keeps the item trees of every tenant in one SQLite database.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the database.
func Open(config Config) (*Store, error) {
	config.validate()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	return &Store{pool: pool, logger: config.Logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Tenant returns the item tree of one tenant. Tenants share nothing but
// the database file.
func (s *Store) Tenant(name string) *Tenant {
	return &Tenant{store: s, name: name}
}

// Tenant is one tenant's item tree. It implements engine.BatchStore.
type Tenant struct {
	store *Store
	name  string
}

var _ engine.BatchStore = (*Tenant)(nil)

// Name returns the tenant name.
func (t *Tenant) Name() string { return t.name }

// EnumerateItems returns children of parentID changed after since,
// ordered by seq.
func (t *Tenant) EnumerateItems(ctx context.Context, since uint64, parentID string) ([]item.ShortItem, error) {
	var out []item.ShortItem
	err := t.store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, seq FROM items WHERE tenant = ? AND parent_id = ? AND seq > ? ORDER BY seq`,
			&sqlitex.ExecOptions{
				Args: []any{t.name, parentID, int64(since)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					out = append(out, item.ShortItem{
						ID:       stmt.ColumnText(0),
						ParentID: parentID,
						Seq:      uint64(stmt.ColumnInt64(1)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: enumerate %q: %w", parentID, err)
	}
	return out, nil
}

// LoadItem returns a live item.
func (t *Tenant) LoadItem(ctx context.Context, id string) (item.Item, bool, error) {
	var (
		it    item.Item
		found bool
	)
	err := t.store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT parent_id, seq, fields FROM items WHERE tenant = ? AND id = ? AND deleted = 0`,
			&sqlitex.ExecOptions{
				Args: []any{t.name, id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					it = item.New(id, stmt.ColumnText(0), uint64(stmt.ColumnInt64(1)))
					fields, err := decodeFields(columnBlob(stmt, 2))
					if err != nil {
						return err
					}
					it.Fields = fields
					return nil
				},
			})
	})
	if err != nil {
		return item.Item{}, false, fmt.Errorf("sqlstore: load %q: %w", id, err)
	}
	return it, found, nil
}

// SeqNum returns the stored seq of id, tombstones included.
func (t *Tenant) SeqNum(ctx context.Context, id string) (uint64, error) {
	var seq uint64
	err := t.store.pool.Read(ctx, func(conn *sqlite.Conn) error {
		r, err := readRow(conn, t.name, id)
		seq = r.seq
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: seq %q: %w", id, err)
	}
	return seq, nil
}

// AddItem stores it as a live item.
func (t *Tenant) AddItem(ctx context.Context, it item.Item, expected uint64) (uint64, error) {
	return t.applyOne(ctx, engine.Mutation{Kind: item.KindAppend, Item: it, Expected: expected})
}

// ModifyItem replaces the fields of a live item.
func (t *Tenant) ModifyItem(ctx context.Context, it item.Item, expected uint64) (uint64, error) {
	return t.applyOne(ctx, engine.Mutation{Kind: item.KindModify, Item: it, Expected: expected})
}

// RemoveItem tombstones a live item and its live descendants.
func (t *Tenant) RemoveItem(ctx context.Context, id string, expected uint64) (uint64, error) {
	return t.applyOne(ctx, engine.Mutation{Kind: item.KindRemove, Item: item.New(id, "", 0), Expected: expected})
}

func (t *Tenant) applyOne(ctx context.Context, m engine.Mutation) (uint64, error) {
	seqs, err := t.ApplyBatch(ctx, []engine.Mutation{m})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// ApplyBatch applies muts in one IMMEDIATE transaction.
func (t *Tenant) ApplyBatch(ctx context.Context, muts []engine.Mutation) ([]uint64, error) {
	seqs := make([]uint64, len(muts))
	err := t.store.pool.Write(ctx, func(conn *sqlite.Conn) error {
		removed := make(map[string]uint64)
		for i, m := range muts {
			seq, err := t.apply(conn, m, removed)
			if err != nil {
				return err
			}
			seqs[i] = seq
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seqs, nil
}

// apply runs one mutation of a batch. removed holds the ids the batch
// has tombstoned so far, with their tombstone seqs: removing one of them
// again is a no-op that reports that seq, any other mutation of one
// finds no item.
func (t *Tenant) apply(conn *sqlite.Conn, m engine.Mutation, removed map[string]uint64) (uint64, error) {
	id := m.Item.ID
	if seq, ok := removed[id]; ok {
		if m.Kind == item.KindRemove {
			return seq, nil
		}
		return 0, fmt.Errorf("%w: %q removed earlier in the batch", engine.ErrItemNotFound, id)
	}

	cur, err := readRow(conn, t.name, id)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: read %q: %w", id, err)
	}
	if cur.seq != m.Expected {
		return 0, fmt.Errorf("%w: %q has seq %d, expected %d", engine.ErrConcurrentModification, id, cur.seq, m.Expected)
	}

	switch m.Kind {
	case item.KindAppend:
		return t.insert(conn, m.Item)
	case item.KindModify:
		if !cur.live() {
			return 0, fmt.Errorf("%w: %q", engine.ErrItemNotFound, id)
		}
		return t.update(conn, m.Item)
	case item.KindRemove:
		if !cur.live() {
			return 0, fmt.Errorf("%w: %q", engine.ErrItemNotFound, id)
		}
		return t.remove(conn, id, removed)
	default:
		return 0, engine.ErrUnsupportedMutation
	}
}

func (t *Tenant) insert(conn *sqlite.Conn, it item.Item) (uint64, error) {
	if it.ParentID != "" {
		parent, err := readRow(conn, t.name, it.ParentID)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: read parent %q: %w", it.ParentID, err)
		}
		if !parent.live() {
			return 0, fmt.Errorf("%w: %q", engine.ErrParentNotFound, it.ParentID)
		}
	}
	blob, err := encodeFields(it.Fields)
	if err != nil {
		return 0, err
	}
	seq, err := nextSeq(conn, t.name)
	if err != nil {
		return 0, err
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO items (tenant, id, parent_id, seq, deleted, fields) VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT (tenant, id) DO UPDATE SET
			parent_id = excluded.parent_id, seq = excluded.seq, deleted = 0, fields = excluded.fields`,
		&sqlitex.ExecOptions{Args: []any{t.name, it.ID, it.ParentID, int64(seq), blob}})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: insert %q: %w", it.ID, err)
	}
	return seq, nil
}

func (t *Tenant) update(conn *sqlite.Conn, it item.Item) (uint64, error) {
	blob, err := encodeFields(it.Fields)
	if err != nil {
		return 0, err
	}
	seq, err := nextSeq(conn, t.name)
	if err != nil {
		return 0, err
	}
	err = sqlitex.Execute(conn,
		`UPDATE items SET seq = ?, fields = ? WHERE tenant = ? AND id = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(seq), blob, t.name, it.ID}})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: update %q: %w", it.ID, err)
	}
	return seq, nil
}

// remove tombstones id, then every live descendant, each with its own
// seq so that List cursors on every level observe the removal. Every
// tombstoned id is recorded in removed.
func (t *Tenant) remove(conn *sqlite.Conn, id string, removed map[string]uint64) (uint64, error) {
	seq, err := t.tombstone(conn, id)
	if err != nil {
		return 0, err
	}
	removed[id] = seq

	pending := []string{id}
	cascaded := 0
	for len(pending) > 0 {
		parent := pending[0]
		pending = pending[1:]

		children, err := liveChildren(conn, t.name, parent)
		if err != nil {
			return 0, err
		}
		for _, child := range children {
			childSeq, err := t.tombstone(conn, child)
			if err != nil {
				return 0, err
			}
			removed[child] = childSeq
			cascaded++
		}
		pending = append(pending, children...)
	}

	if cascaded > 0 {
		t.store.logger.Debug("removed subtree",
			"tenant", t.name,
			"id", id,
			"descendants", cascaded,
		)
	}
	return seq, nil
}

func (t *Tenant) tombstone(conn *sqlite.Conn, id string) (uint64, error) {
	seq, err := nextSeq(conn, t.name)
	if err != nil {
		return 0, err
	}
	err = sqlitex.Execute(conn,
		`UPDATE items SET seq = ?, deleted = 1, fields = NULL WHERE tenant = ? AND id = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(seq), t.name, id}})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: remove %q: %w", id, err)
	}
	return seq, nil
}

type row struct {
	seq     uint64
	deleted bool
	exists  bool
}

func (r row) live() bool { return r.exists && !r.deleted }

func readRow(conn *sqlite.Conn, tenant, id string) (row, error) {
	var r row
	err := sqlitex.Execute(conn,
		`SELECT seq, deleted FROM items WHERE tenant = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{tenant, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r = row{
					seq:     uint64(stmt.ColumnInt64(0)),
					deleted: stmt.ColumnInt64(1) != 0,
					exists:  true,
				}
				return nil
			},
		})
	return r, err
}

func liveChildren(conn *sqlite.Conn, tenant, parentID string) ([]string, error) {
	var ids []string
	err := sqlitex.Execute(conn,
		`SELECT id FROM items WHERE tenant = ? AND parent_id = ? AND deleted = 0`,
		&sqlitex.ExecOptions{
			Args: []any{tenant, parentID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: children of %q: %w", parentID, err)
	}
	return ids, nil
}

// nextSeq advances the tenant's counter. Must run inside a write
// transaction.
func nextSeq(conn *sqlite.Conn, tenant string) (uint64, error) {
	var seq uint64
	err := sqlitex.Execute(conn,
		`INSERT INTO counters (tenant, seq) VALUES (?, 1)
		 ON CONFLICT (tenant) DO UPDATE SET seq = seq + 1
		 RETURNING seq`,
		&sqlitex.ExecOptions{
			Args: []any{tenant},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				seq = uint64(stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: next seq: %w", err)
	}
	return seq, nil
}

func encodeFields(fields map[string]item.Value) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	blob, err := codec.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode fields: %w", err)
	}
	return blob, nil
}

func decodeFields(blob []byte) (map[string]item.Value, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var fields map[string]item.Value
	if err := codec.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("sqlstore: decode fields: %w", err)
	}
	return fields, nil
}

func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}

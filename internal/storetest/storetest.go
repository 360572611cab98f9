// Package storetest checks that an engine.Store behaves the way the
// engine relies on. Store packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/item"
)

// Factory returns an empty store. Each call must return a store that
// shares no items with the stores returned before.
type Factory func(t *testing.T) engine.Store

// Run runs the conformance suite against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, engine.Store)
	}{
		{"AddAndLoad", testAddAndLoad},
		{"SeqIsTenantWide", testSeqIsTenantWide},
		{"ExpectedSeqMismatch", testExpectedSeqMismatch},
		{"AddRequiresLiveParent", testAddRequiresLiveParent},
		{"ModifyKeepsParent", testModifyKeepsParent},
		{"ModifyUnknown", testModifyUnknown},
		{"RemoveKeepsSeq", testRemoveKeepsSeq},
		{"RemoveTwice", testRemoveTwice},
		{"Resurrect", testResurrect},
		{"Enumerate", testEnumerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
	if _, ok := newStore(t).(engine.BatchStore); ok {
		t.Run("BatchIsAtomic", func(t *testing.T) {
			testBatchIsAtomic(t, newStore(t).(engine.BatchStore))
		})
	}
}

func note(id, parentID, title string) item.Item {
	it := item.New(id, parentID, 0)
	it.SetField("title", item.String(title))
	return it
}

func mustAdd(t *testing.T, st engine.Store, it item.Item, expected uint64) uint64 {
	t.Helper()
	seq, err := st.AddItem(context.Background(), it, expected)
	if err != nil {
		t.Fatalf("AddItem(%q): %v", it.ID, err)
	}
	return seq
}

func seqOf(t *testing.T, st engine.Store, id string) uint64 {
	t.Helper()
	seq, err := st.SeqNum(context.Background(), id)
	if err != nil {
		t.Fatalf("SeqNum(%q): %v", id, err)
	}
	return seq
}

func testAddAndLoad(t *testing.T, st engine.Store) {
	ctx := context.Background()
	it := note("a", "", "alpha")
	it.SetField("count", item.Int(3))
	it.SetField("blob", item.Bytes([]byte{0, 1, 2}))

	seq := mustAdd(t, st, it, 0)
	if seq == 0 {
		t.Fatal("expected non-zero seq")
	}

	got, ok, err := st.LoadItem(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("LoadItem: found=%v err=%v", ok, err)
	}
	if got.Seq != seq || got.ParentID != "" {
		t.Errorf("expected seq %d at root, got %+v", seq, got)
	}
	for name, want := range it.Fields {
		if !got.Field(name).Equal(want) {
			t.Errorf("field %s: expected %v, got %v", name, want, got.Field(name))
		}
	}

	if _, ok, err := st.LoadItem(ctx, "missing"); err != nil || ok {
		t.Errorf("expected missing item to be absent, got found=%v err=%v", ok, err)
	}
	if seq := seqOf(t, st, "missing"); seq != 0 {
		t.Errorf("expected seq 0 for missing item, got %d", seq)
	}
}

func testSeqIsTenantWide(t *testing.T, st engine.Store) {
	first := mustAdd(t, st, note("a", "", "a"), 0)
	second := mustAdd(t, st, note("b", "", "b"), 0)
	if second <= first {
		t.Errorf("expected seqs to increase across items, got %d then %d", first, second)
	}
}

func testExpectedSeqMismatch(t *testing.T, st engine.Store) {
	ctx := context.Background()
	seq := mustAdd(t, st, note("a", "", "a"), 0)

	if _, err := st.ModifyItem(ctx, note("a", "", "b"), seq-1); !errors.Is(err, engine.ErrConcurrentModification) {
		t.Errorf("ModifyItem: expected ErrConcurrentModification, got %v", err)
	}
	if _, err := st.AddItem(ctx, note("a", "", "b"), 0); !errors.Is(err, engine.ErrConcurrentModification) {
		t.Errorf("AddItem: expected ErrConcurrentModification, got %v", err)
	}
	if _, err := st.RemoveItem(ctx, "a", seq+1); !errors.Is(err, engine.ErrConcurrentModification) {
		t.Errorf("RemoveItem: expected ErrConcurrentModification, got %v", err)
	}
	if got := seqOf(t, st, "a"); got != seq {
		t.Errorf("expected seq to stay %d, got %d", seq, got)
	}
}

func testAddRequiresLiveParent(t *testing.T, st engine.Store) {
	ctx := context.Background()
	if _, err := st.AddItem(ctx, note("c", "ghost", "c"), 0); !errors.Is(err, engine.ErrParentNotFound) {
		t.Errorf("expected ErrParentNotFound, got %v", err)
	}

	seq := mustAdd(t, st, note("p", "", "p"), 0)
	mustAdd(t, st, note("c", "p", "c"), 0)

	if _, err := st.RemoveItem(ctx, "p", seq); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, err := st.AddItem(ctx, note("d", "p", "d"), 0); !errors.Is(err, engine.ErrParentNotFound) {
		t.Errorf("expected ErrParentNotFound under removed parent, got %v", err)
	}
}

func testModifyKeepsParent(t *testing.T, st engine.Store) {
	ctx := context.Background()
	mustAdd(t, st, note("p", "", "p"), 0)
	seq := mustAdd(t, st, note("c", "p", "old"), 0)

	newSeq, err := st.ModifyItem(ctx, note("c", "elsewhere", "new"), seq)
	if err != nil {
		t.Fatalf("ModifyItem: %v", err)
	}
	if newSeq <= seq {
		t.Errorf("expected seq to increase past %d, got %d", seq, newSeq)
	}
	got, _, err := st.LoadItem(ctx, "c")
	if err != nil {
		t.Fatalf("LoadItem: %v", err)
	}
	if got.ParentID != "p" {
		t.Errorf("expected parent p, got %q", got.ParentID)
	}
	if title, _ := got.Field("title").AsString(); title != "new" {
		t.Errorf("expected title new, got %q", title)
	}
}

func testModifyUnknown(t *testing.T, st engine.Store) {
	if _, err := st.ModifyItem(context.Background(), note("ghost", "", "x"), 0); !errors.Is(err, engine.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func testRemoveKeepsSeq(t *testing.T, st engine.Store) {
	ctx := context.Background()
	seq := mustAdd(t, st, note("a", "", "a"), 0)

	removed, err := st.RemoveItem(ctx, "a", seq)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if removed <= seq {
		t.Errorf("expected removal seq above %d, got %d", seq, removed)
	}
	if _, ok, _ := st.LoadItem(ctx, "a"); ok {
		t.Error("expected removed item to be absent")
	}
	if got := seqOf(t, st, "a"); got != removed {
		t.Errorf("expected removed item to keep seq %d, got %d", removed, got)
	}
}

func testRemoveTwice(t *testing.T, st engine.Store) {
	ctx := context.Background()
	seq := mustAdd(t, st, note("a", "", "a"), 0)
	removed, err := st.RemoveItem(ctx, "a", seq)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, err := st.RemoveItem(ctx, "a", removed); !errors.Is(err, engine.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func testResurrect(t *testing.T, st engine.Store) {
	ctx := context.Background()
	seq := mustAdd(t, st, note("a", "", "old"), 0)
	removed, err := st.RemoveItem(ctx, "a", seq)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	again := mustAdd(t, st, note("a", "", "new"), removed)
	if again <= removed {
		t.Errorf("expected seq above %d, got %d", removed, again)
	}
	got, ok, err := st.LoadItem(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("LoadItem: found=%v err=%v", ok, err)
	}
	if title, _ := got.Field("title").AsString(); title != "new" {
		t.Errorf("expected title new, got %q", title)
	}
}

func testEnumerate(t *testing.T, st engine.Store) {
	ctx := context.Background()
	mustAdd(t, st, note("p", "", "p"), 0)
	a := mustAdd(t, st, note("a", "p", "a"), 0)
	b := mustAdd(t, st, note("b", "p", "b"), 0)
	mustAdd(t, st, note("x", "", "x"), 0)

	all, err := st.EnumerateItems(ctx, 0, "p")
	if err != nil {
		t.Fatalf("EnumerateItems: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 children, got %+v", all)
	}
	for _, s := range all {
		if s.ParentID != "p" {
			t.Errorf("expected parent p, got %+v", s)
		}
	}

	since, err := st.EnumerateItems(ctx, a, "p")
	if err != nil {
		t.Fatalf("EnumerateItems: %v", err)
	}
	if len(since) != 1 || since[0].ID != "b" || since[0].Seq != b {
		t.Errorf("expected only (b, %d), got %+v", b, since)
	}

	roots, err := st.EnumerateItems(ctx, 0, "")
	if err != nil {
		t.Fatalf("EnumerateItems: %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("expected 2 roots, got %+v", roots)
	}

	removed, err := st.RemoveItem(ctx, "b", b)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	changed, err := st.EnumerateItems(ctx, b, "p")
	if err != nil {
		t.Fatalf("EnumerateItems: %v", err)
	}
	if len(changed) != 1 || changed[0].ID != "b" || changed[0].Seq != removed {
		t.Errorf("expected removal of b to be listed, got %+v", changed)
	}
}

func testBatchIsAtomic(t *testing.T, st engine.BatchStore) {
	ctx := context.Background()
	seq := mustAdd(t, st, note("a", "", "a"), 0)

	_, err := st.ApplyBatch(ctx, []engine.Mutation{
		{Kind: item.KindModify, Item: note("a", "", "changed"), Expected: seq},
		{Kind: item.KindModify, Item: note("ghost", "", "x"), Expected: 0},
	})
	if !errors.Is(err, engine.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	got, _, err := st.LoadItem(ctx, "a")
	if err != nil {
		t.Fatalf("LoadItem: %v", err)
	}
	if got.Seq != seq {
		t.Errorf("expected batch to roll back to seq %d, got %d", seq, got.Seq)
	}
	if title, _ := got.Field("title").AsString(); title != "a" {
		t.Errorf("expected title a, got %q", title)
	}

	seqs, err := st.ApplyBatch(ctx, []engine.Mutation{
		{Kind: item.KindModify, Item: note("a", "", "one"), Expected: seq},
		{Kind: item.KindAppend, Item: note("b", "", "two"), Expected: 0},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if len(seqs) != 2 || seqs[1] <= seqs[0] {
		t.Errorf("expected increasing seqs, got %v", seqs)
	}
}

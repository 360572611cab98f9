package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacentio/arbor/item"
)

// Engine applies operation batches to a Store.
type Engine struct {
	logger *slog.Logger
}

// New creates an Engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply runs every operation of batch against st, in order, and returns
// their results concatenated in the same order. The first failing
// operation aborts the batch; operations before it may already have
// been applied.
//
// A stale write is not a failure: it yields a Refetch operation listing
// the current seq of every stale item.
func (e *Engine) Apply(ctx context.Context, st Store, batch []item.Operation) ([]item.Operation, error) {
	var out []item.Operation
	for i, op := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.apply(ctx, st, op)
		if err != nil {
			e.logger.Debug("operation failed",
				"index", i,
				"kind", op.Kind,
				"error", err,
			)
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, st Store, op item.Operation) ([]item.Operation, error) {
	switch op.Kind {
	case item.KindList:
		return e.list(ctx, st, op)
	case item.KindFetch:
		return e.fetch(ctx, st, op)
	case item.KindAppend:
		return e.append(ctx, st, op)
	case item.KindModify, item.KindRemove:
		return e.writeChecked(ctx, st, op)
	default:
		return nil, NewOpError(CodeInvalidSemantics, ReasonUnsupported)
	}
}

// list reports the children of the first descriptor's parent changed
// since the descriptor's seq. Further descriptors are ignored.
func (e *Engine) list(ctx context.Context, st Store, op item.Operation) ([]item.Operation, error) {
	if len(op.Items) == 0 {
		return nil, NewOpError(CodeInvalidSemantics, ReasonListNeedsItem)
	}
	desc := op.Items[0]

	shorts, err := st.EnumerateItems(ctx, desc.Seq, desc.ParentID)
	if err != nil {
		return nil, storeFailure(err)
	}

	res := item.Operation{Kind: item.KindList, Items: make([]item.Item, 0, len(shorts))}
	for _, s := range shorts {
		res.Items = append(res.Items, s.Item())
	}
	return []item.Operation{res}, nil
}

func (e *Engine) fetch(ctx context.Context, st Store, op item.Operation) ([]item.Operation, error) {
	res := item.Operation{Kind: item.KindFetch, Items: []item.Item{}}
	for _, req := range op.Items {
		it, ok, err := st.LoadItem(ctx, req.ID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if !ok {
			continue
		}
		res.Add(it)
	}
	return []item.Operation{res}, nil
}

// append checks every parent before anything is written. Parents
// appended by the same operation do not count.
func (e *Engine) append(ctx context.Context, st Store, op item.Operation) ([]item.Operation, error) {
	checked := make(map[string]bool)
	for _, it := range op.Items {
		if it.ParentID == "" || checked[it.ParentID] {
			continue
		}
		_, ok, err := st.LoadItem(ctx, it.ParentID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if !ok {
			return nil, &OpError{
				Code:   CodeUnknownParent,
				Reason: ReasonUnknownParent,
				Err:    fmt.Errorf("%w: %q", ErrParentNotFound, it.ParentID),
			}
		}
		checked[it.ParentID] = true
	}
	return e.writeChecked(ctx, st, op)
}

// writeChecked is the optimistic write path shared by append, modify
// and remove. Nothing is written unless every submitted seq is at least
// the stored one.
func (e *Engine) writeChecked(ctx context.Context, st Store, op item.Operation) ([]item.Operation, error) {
	if err := validateWrite(op.Items); err != nil {
		return nil, err
	}

	current, err := seqNums(ctx, st, op.Items)
	if err != nil {
		return nil, err
	}
	if stale := staleItems(op.Items, current, nil); len(stale) > 0 {
		return refetch(stale), nil
	}

	var parents []string
	if op.Kind == item.KindModify {
		if parents, err = storedParents(ctx, st, op.Items); err != nil {
			return nil, err
		}
	}

	muts := make([]Mutation, len(op.Items))
	for i, it := range op.Items {
		muts[i] = Mutation{Kind: op.Kind, Item: it, Expected: current[i]}
	}

	seqs, err := applyMutations(ctx, st, muts)
	if errors.Is(err, ErrConcurrentModification) {
		return e.conflict(ctx, st, op, current, err)
	}
	if err != nil {
		var opErr *OpError
		switch {
		case errors.As(err, &opErr):
			return nil, opErr
		case errors.Is(err, ErrParentNotFound):
			return nil, &OpError{Code: CodeUnknownParent, Reason: ReasonUnknownParent, Err: err}
		case errors.Is(err, ErrItemNotFound):
			return nil, &OpError{Code: CodeInvalidSemantics, Reason: ReasonUnknownItem, Err: err}
		default:
			return nil, storeFailure(err)
		}
	}

	res := item.Operation{Kind: op.Kind, Items: make([]item.Item, len(op.Items))}
	for i, it := range op.Items {
		res.Items[i] = it.Clone()
		res.Items[i].Seq = seqs[i]
		if parents != nil {
			res.Items[i].ParentID = parents[i]
		}
	}
	return []item.Operation{res}, nil
}

// conflict answers a write that lost a race after the seq check. The
// items changed since the check are reported for refetching.
func (e *Engine) conflict(ctx context.Context, st Store, op item.Operation, observed []uint64, cause error) ([]item.Operation, error) {
	current, err := seqNums(ctx, st, op.Items)
	if err != nil {
		return nil, err
	}
	stale := staleItems(op.Items, current, observed)
	if len(stale) == 0 {
		return nil, &OpError{Code: CodeStoreFailure, Reason: ReasonConflict, Err: cause}
	}
	e.logger.Info("concurrent modification, requesting refetch",
		"kind", op.Kind,
		"staleCount", len(stale),
	)
	return refetch(stale), nil
}

func validateWrite(items []item.Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			return NewOpError(CodeInvalidSemantics, ReasonMissingID)
		}
		if _, dup := seen[it.ID]; dup {
			return NewOpError(CodeInvalidSemantics, ReasonDuplicateItem)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// storedParents returns the stored parent of every item. Modify cannot
// move an item: a submitted parent other than the stored one is
// rejected, an empty one means unchanged. Unknown items are left to the
// mutator, which reports them.
func storedParents(ctx context.Context, st Store, items []item.Item) ([]string, error) {
	parents := make([]string, len(items))
	for i, it := range items {
		stored, ok, err := st.LoadItem(ctx, it.ID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if !ok {
			continue
		}
		if it.ParentID != "" && it.ParentID != stored.ParentID {
			return nil, &OpError{
				Code:   CodeInvalidSemantics,
				Reason: ReasonCannotMove,
				Err:    fmt.Errorf("%q is stored under %q, not %q", it.ID, stored.ParentID, it.ParentID),
			}
		}
		parents[i] = stored.ParentID
	}
	return parents, nil
}

func seqNums(ctx context.Context, st Store, items []item.Item) ([]uint64, error) {
	seqs := make([]uint64, len(items))
	for i, it := range items {
		seq, err := st.SeqNum(ctx, it.ID)
		if err != nil {
			return nil, storeFailure(err)
		}
		seqs[i] = seq
	}
	return seqs, nil
}

// staleItems returns (id, current seq) for every item whose stored seq
// is newer than the submitted one or, when observed is set, differs from
// the observed one.
func staleItems(items []item.Item, current, observed []uint64) []item.Item {
	var stale []item.Item
	for i, it := range items {
		changed := observed != nil && current[i] != observed[i]
		if current[i] > it.Seq || changed {
			stale = append(stale, item.New(it.ID, "", current[i]))
		}
	}
	return stale
}

func refetch(stale []item.Item) []item.Operation {
	return []item.Operation{item.NewOperation(item.KindRefetch, stale...)}
}

func applyMutations(ctx context.Context, st Store, muts []Mutation) ([]uint64, error) {
	if bs, ok := st.(BatchStore); ok {
		return bs.ApplyBatch(ctx, muts)
	}
	seqs := make([]uint64, len(muts))
	for i, m := range muts {
		seq, err := m.Apply(ctx, st)
		if err != nil {
			return nil, err
		}
		seqs[i] = seq
	}
	return seqs, nil
}

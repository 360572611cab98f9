package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/internal/shard"
	"github.com/jacentio/arbor/item"
)

// maxTransactItems is the TransactWriteItems action limit.
const maxTransactItems = 100

// removeRetries bounds RemoveLive's retries on concurrent writes.
const removeRetries = 5

// Store provides DynamoDB-backed item trees for any number of tenants.
type Store struct {
	client *dynamodb.Client
	config Config
	now    func() time.Time
}

// New creates a new Store instance.
func New(client *dynamodb.Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// Tenant returns one tenant's item tree.
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

func itemPK(tenant, id string) string {
	return shard.Scoped(tenant, id)
}

func itemKey(tenant, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: itemPK(tenant, id)},
	}
}

func (s *Store) childKey(tenant, parentID, childID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":       &types.AttributeValueMemberS{Value: shard.ChildrenPK(tenant, parentID, childID, s.config.NumShards)},
		"child_id": &types.AttributeValueMemberS{Value: childID},
	}
}

// get reads the record of id with a strongly consistent read. A missing
// item returns nil.
func (s *Store) get(ctx context.Context, tenant, id string) (*record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.ItemsTable),
		Key:            itemKey(tenant, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return decodeRecord(result.Item)
}

// EnumerateItems returns children of parentID changed after since,
// removed children included, ordered by seq.
func (t *Tenant) EnumerateItems(ctx context.Context, since uint64, parentID string) ([]item.ShortItem, error) {
	children, err := t.store.queryChildren(ctx, t.name, parentID, since)
	if err != nil {
		return nil, fmt.Errorf("enumerate %q: %w", parentID, err)
	}
	out := make([]item.ShortItem, len(children))
	for i, c := range children {
		out[i] = item.ShortItem{ID: c.ID, ParentID: parentID, Seq: c.Seq}
	}
	return out, nil
}

// LoadItem returns a live item.
func (t *Tenant) LoadItem(ctx context.Context, id string) (item.Item, bool, error) {
	r, err := t.store.get(ctx, t.name, id)
	if err != nil {
		return item.Item{}, false, fmt.Errorf("load %q: %w", id, err)
	}
	if !r.live() {
		return item.Item{}, false, nil
	}
	it, err := r.item()
	if err != nil {
		return item.Item{}, false, err
	}
	return it, true, nil
}

// SeqNum returns the stored seq of id, tombstones included.
func (t *Tenant) SeqNum(ctx context.Context, id string) (uint64, error) {
	result, err := t.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(t.store.config.ItemsTable),
		Key:                      itemKey(t.name, id),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#seq"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
	})
	if err != nil {
		return 0, fmt.Errorf("seq %q: %w", id, err)
	}
	v, ok := result.Item["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	seq, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seq of %q: %v", ErrCorruptRecord, id, err)
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

// RemoveItem tombstones a live item. Its descendants are removed by the
// stream handler once the tombstone reaches the table's stream.
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

// ApplyBatch applies muts in one TransactWriteItems call.
//
// Current records are read first to validate expected seqs and find
// stored parents; every write is still conditioned on its expected seq,
// so a write landing between the read and the transaction cancels it.
func (t *Tenant) ApplyBatch(ctx context.Context, muts []engine.Mutation) ([]uint64, error) {
	if len(muts) == 0 {
		return nil, nil
	}

	current := make([]*record, len(muts))
	for i, m := range muts {
		r, err := t.store.get(ctx, t.name, m.Item.ID)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", m.Item.ID, err)
		}
		if err := checkMutation(m, r); err != nil {
			return nil, err
		}
		current[i] = r
	}

	top, err := t.store.allocateSeqs(ctx, t.name, len(muts))
	if err != nil {
		return nil, err
	}
	seqs := make([]uint64, len(muts))
	for i := range muts {
		seqs[i] = top - uint64(len(muts)-1-i)
	}

	plan, err := t.store.planBatch(t.name, muts, current, seqs)
	if err != nil {
		return nil, err
	}
	if len(plan.items) > maxTransactItems {
		return nil, fmt.Errorf("%w: %d actions", ErrBatchTooLarge, len(plan.items))
	}

	_, err = t.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: plan.items,
	})
	if err := plan.mapError(err); err != nil {
		return nil, err
	}
	return seqs, nil
}

// checkMutation validates m against the stored record r.
func checkMutation(m engine.Mutation, r *record) error {
	var seq uint64
	if r != nil {
		seq = r.Seq
	}
	if seq != m.Expected {
		return fmt.Errorf("%w: %q has seq %d, expected %d", engine.ErrConcurrentModification, m.Item.ID, seq, m.Expected)
	}
	switch m.Kind {
	case item.KindAppend:
		return nil
	case item.KindModify, item.KindRemove:
		if !r.live() {
			return fmt.Errorf("%w: %q", engine.ErrItemNotFound, m.Item.ID)
		}
		return nil
	default:
		return engine.ErrUnsupportedMutation
	}
}

// allocateSeqs reserves n seqs from the tenant counter and returns the
// highest one.
func (s *Store) allocateSeqs(ctx context.Context, tenant string, n int) (uint64, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.config.CountersTable),
		Key:                      map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: tenant}},
		UpdateExpression:         aws.String("ADD #seq :n"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate seq: %w", err)
	}
	v, ok := result.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("allocate seq: %w: counter missing", ErrCorruptRecord)
	}
	return strconv.ParseUint(v.Value, 10, 64)
}

// batchPlan is a transaction together with what each action checks.
type batchPlan struct {
	items []types.TransactWriteItem

	// parentChecks maps action indexes to the parent they check.
	parentChecks map[int]string
}

// planBatch builds the transaction for muts. Parents are checked unless
// the batch itself keeps them live.
func (s *Store) planBatch(tenant string, muts []engine.Mutation, current []*record, seqs []uint64) (*batchPlan, error) {
	plan := &batchPlan{parentChecks: make(map[int]string)}
	now := s.now()

	written := make(map[string]bool, len(muts))
	for _, m := range muts {
		written[m.Item.ID] = m.Kind != item.KindRemove
	}
	checked := make(map[string]bool)

	for i, m := range muts {
		cur := current[i]
		switch m.Kind {
		case item.KindAppend:
			parent := m.Item.ParentID
			if parent != "" && !checked[parent] {
				if live, inBatch := written[parent]; !inBatch || !live {
					plan.parentChecks[len(plan.items)] = parent
					plan.items = append(plan.items, s.parentCheck(tenant, parent))
				}
				checked[parent] = true
			}
			r, err := newRecord(tenant, m.Item, seqs[i])
			if err != nil {
				return nil, err
			}
			if err := plan.putRecord(s.config.ItemsTable, r, m.Expected, false); err != nil {
				return nil, err
			}
			if cur != nil && cur.ParentID != parent {
				plan.items = append(plan.items, types.TransactWriteItem{
					Delete: &types.Delete{
						TableName: aws.String(s.config.ChildrenTable),
						Key:       s.childKey(tenant, cur.ParentID, m.Item.ID),
					},
				})
			}
			if err := plan.putChild(s, tenant, parent, childEntry{ChildID: m.Item.ID, Seq: seqs[i]}); err != nil {
				return nil, err
			}

		case item.KindModify:
			it := m.Item
			it.ParentID = cur.ParentID
			r, err := newRecord(tenant, it, seqs[i])
			if err != nil {
				return nil, err
			}
			if err := plan.putRecord(s.config.ItemsTable, r, m.Expected, true); err != nil {
				return nil, err
			}
			if err := plan.putChild(s, tenant, cur.ParentID, childEntry{ChildID: it.ID, Seq: seqs[i]}); err != nil {
				return nil, err
			}

		case item.KindRemove:
			expiry := tombstoneExpiry(now, s.config.TombstoneRetention)
			r := record{
				PK:        itemPK(tenant, cur.ID),
				Tenant:    tenant,
				ID:        cur.ID,
				ParentID:  cur.ParentID,
				Seq:       seqs[i],
				RemovedAt: now.Unix(),
				TTL:       expiry,
			}
			if err := plan.putRecord(s.config.ItemsTable, r, m.Expected, true); err != nil {
				return nil, err
			}
			entry := childEntry{ChildID: cur.ID, Seq: seqs[i], Removed: true, TTL: expiry}
			if err := plan.putChild(s, tenant, cur.ParentID, entry); err != nil {
				return nil, err
			}

		default:
			return nil, engine.ErrUnsupportedMutation
		}
	}
	return plan, nil
}

func (s *Store) parentCheck(tenant, parentID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(s.config.ItemsTable),
			Key:                 itemKey(tenant, parentID),
			ConditionExpression: aws.String(LiveCondition()),
		},
	}
}

// putRecord adds a conditional Put of r. requireLive additionally
// demands that the stored item is not removed.
func (p *batchPlan) putRecord(table string, r record, expected uint64, requireLive bool) error {
	av, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal record %q: %w", r.ID, err)
	}
	cond, values := SeqCondition(expected)
	var names map[string]string
	if expected != 0 {
		names = map[string]string{"#seq": "seq"}
	}
	if requireLive {
		cond += " AND attribute_not_exists(removed_at)"
	}
	p.items = append(p.items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(table),
			Item:                      av,
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		},
	})
	return nil
}

func (p *batchPlan) putChild(s *Store, tenant, parentID string, e childEntry) error {
	e.PK = shard.ChildrenPK(tenant, parentID, e.ChildID, s.config.NumShards)
	av, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal child entry %q: %w", e.ChildID, err)
	}
	p.items = append(p.items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(s.config.ChildrenTable),
			Item:      av,
		},
	})
	return nil
}

// mapError maps a TransactWriteItems failure to the engine's errors.
func (p *batchPlan) mapError(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				if parent, ok := p.parentChecks[i]; ok {
					return fmt.Errorf("%w: %q", engine.ErrParentNotFound, parent)
				}
				return engine.ErrConcurrentModification
			case "TransactionConflict":
				return engine.ErrConcurrentModification
			}
		}
	}
	return err
}

// Children returns the recorded children of parentID in tenant,
// removed ones included.
func (s *Store) Children(ctx context.Context, tenant, parentID string) ([]Child, error) {
	return s.queryChildren(ctx, tenant, parentID, 0)
}

// RemoveLive tombstones id at whatever seq it currently has. Items that
// are missing or already removed are left alone.
func (s *Store) RemoveLive(ctx context.Context, tenant, id string) error {
	t := s.Tenant(tenant)
	for attempt := 0; ; attempt++ {
		r, err := s.get(ctx, tenant, id)
		if err != nil {
			return fmt.Errorf("read %q: %w", id, err)
		}
		if !r.live() {
			return nil
		}
		_, err = t.RemoveItem(ctx, id, r.Seq)
		switch {
		case err == nil, errors.Is(err, engine.ErrItemNotFound):
			return nil
		case errors.Is(err, engine.ErrConcurrentModification) && attempt < removeRetries:
			continue
		default:
			return err
		}
	}
}

// queryChildren returns children of parentID whose entry seq exceeds
// since, ordered by seq.
func (s *Store) queryChildren(ctx context.Context, tenant, parentID string, since uint64) ([]Child, error) {
	pks := shard.ChildrenPKs(tenant, parentID, s.config.NumShards)

	// Fast path for single shard (default)
	if len(pks) == 1 {
		children, err := s.queryChildShard(ctx, pks[0], since)
		if err != nil {
			return nil, err
		}
		sortChildren(children)
		return children, nil
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var all []Child
	var wg sync.WaitGroup
	errs := make(chan error, len(pks))

	for _, pk := range pks {
		wg.Add(1)
		go func(pk string) {
			defer wg.Done()
			children, err := s.queryChildShard(ctx, pk, since)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", pk, err)
				return
			}
			mu.Lock()
			all = append(all, children...)
			mu.Unlock()
		}(pk)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sortChildren(all)
	return all, nil
}

func (s *Store) queryChildShard(ctx context.Context, pk string, since uint64) ([]Child, error) {
	var children []Child
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.config.ChildrenTable),
		KeyConditionExpression:   aws.String("pk = :pk"),
		FilterExpression:         aws.String("#seq > :since"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: pk},
			":since": &types.AttributeValueMemberN{Value: strconv.FormatUint(since, 10)},
		},
		ConsistentRead: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var e childEntry
			if err := attributevalue.UnmarshalMap(raw, &e); err != nil {
				return nil, fmt.Errorf("%w: child entry: %v", ErrCorruptRecord, err)
			}
			children = append(children, Child{ID: e.ChildID, Seq: e.Seq, Removed: e.Removed})
		}
	}
	return children, nil
}

func sortChildren(children []Child) {
	sort.Slice(children, func(i, j int) bool { return children[i].Seq < children[j].Seq })
}

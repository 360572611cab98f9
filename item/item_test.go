package item_test

import (
	"errors"
	"testing"

	"github.com/jacentio/arbor/internal/codec"
	"github.com/jacentio/arbor/item"
)

func TestFieldMissingReturnsNull(t *testing.T) {
	it := item.New("c1", "root", 3)

	v := it.Field("title")
	if !v.IsNull() {
		t.Errorf("expected null value for missing field, got %v", v)
	}
	if v.Kind() != item.NullValue {
		t.Errorf("expected kind null, got %v", v.Kind())
	}
}

func TestSetFieldUpserts(t *testing.T) {
	var it item.Item
	it.SetField("title", item.String("a"))
	it.SetField("title", item.String("b"))

	s, ok := it.Field("title").AsString()
	if !ok || s != "b" {
		t.Errorf("expected title 'b', got %q (ok=%v)", s, ok)
	}
	if len(it.Fields) != 1 {
		t.Errorf("expected 1 field, got %d", len(it.Fields))
	}
}

func TestMerge(t *testing.T) {
	left := item.New("c1", "root", 3)
	left.SetField("title", item.String("old"))
	left.SetField("done", item.Bool(false))

	right := item.New("c1", "root", 7)
	right.SetField("title", item.String("new"))
	right.SetField("priority", item.Int(2))

	if err := left.Merge(right); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if left.Seq != 7 {
		t.Errorf("expected seq 7, got %d", left.Seq)
	}
	want := map[string]item.Value{
		"title":    item.String("new"),
		"done":     item.Bool(false),
		"priority": item.Int(2),
	}
	if len(left.Fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(left.Fields))
	}
	for name, v := range want {
		if !left.Field(name).Equal(v) {
			t.Errorf("field %q: expected %v, got %v", name, v, left.Field(name))
		}
	}
}

func TestMergeDifferentIDs(t *testing.T) {
	left := item.New("c1", "root", 3)
	left.SetField("title", item.String("keep"))
	right := item.New("c2", "root", 9)
	right.SetField("title", item.String("drop"))

	err := left.Merge(right)
	if !errors.Is(err, item.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if left.Seq != 3 {
		t.Errorf("expected seq unchanged at 3, got %d", left.Seq)
	}
	if s, _ := left.Field("title").AsString(); s != "keep" {
		t.Errorf("expected title unchanged, got %q", s)
	}
}

func TestCloneDoesNotShareFields(t *testing.T) {
	orig := item.New("c1", "", 1)
	orig.SetField("title", item.String("a"))

	clone := orig.Clone()
	clone.SetField("title", item.String("b"))

	if s, _ := orig.Field("title").AsString(); s != "a" {
		t.Errorf("expected original untouched, got %q", s)
	}
}

func TestShortRoundTrip(t *testing.T) {
	it := item.New("c1", "root", 5)
	it.SetField("title", item.String("x"))

	short := it.Short()
	if short.ID != "c1" || short.ParentID != "root" || short.Seq != 5 {
		t.Errorf("unexpected short item %+v", short)
	}
	back := short.Item()
	if back.Fields != nil {
		t.Errorf("expected no fields on short projection, got %v", back.Fields)
	}
}

func TestOperationAdd(t *testing.T) {
	op := item.NewOperation(item.KindFetch)

	a := item.New("a", "root", 1)
	a.SetField("title", item.String("a1"))
	b := item.New("b", "root", 2)
	a2 := item.New("a", "root", 4)
	a2.SetField("done", item.Bool(true))

	op.Add(a)
	op.Add(b)
	op.Add(a2)

	if len(op.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(op.Items))
	}
	if op.Items[0].ID != "a" || op.Items[1].ID != "b" {
		t.Errorf("expected order [a b], got [%s %s]", op.Items[0].ID, op.Items[1].ID)
	}
	if op.Items[0].Seq != 4 {
		t.Errorf("expected merged seq 4, got %d", op.Items[0].Seq)
	}
	if done, _ := op.Items[0].Field("done").AsBool(); !done {
		t.Error("expected merged field done=true")
	}
	if s, _ := op.Items[0].Field("title").AsString(); s != "a1" {
		t.Errorf("expected title kept, got %q", s)
	}
}

func TestKindText(t *testing.T) {
	tests := []struct {
		kind item.Kind
		name string
	}{
		{item.KindList, "list"},
		{item.KindFetch, "fetch"},
		{item.KindAppend, "append"},
		{item.KindModify, "modify"},
		{item.KindRemove, "remove"},
		{item.KindRefetch, "refetch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.kind.String() != tt.name {
				t.Errorf("expected %q, got %q", tt.name, tt.kind.String())
			}
			parsed, err := item.ParseKind(tt.name)
			if err != nil {
				t.Fatalf("ParseKind: %v", err)
			}
			if parsed != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, parsed)
			}
		})
	}

	if _, err := item.ParseKind("upsert"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := item.Kind(0).MarshalText(); err == nil {
		t.Error("expected error encoding zero kind")
	}
}

func TestOperationCBOR(t *testing.T) {
	it := item.New("c1", "root", 6)
	it.SetField("title", item.String("x"))
	it.SetField("count", item.Int(-3))
	it.SetField("ratio", item.Float(0.5))
	it.SetField("blob", item.Bytes([]byte{1, 2}))
	it.SetField("gone", item.Null())
	ops := []item.Operation{item.NewOperation(item.KindModify, it)}

	data, err := codec.Marshal(ops)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded []item.Operation
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(decoded) != 1 || decoded[0].Kind != item.KindModify {
		t.Fatalf("unexpected operations %+v", decoded)
	}
	got := decoded[0].Items[0]
	if got.ID != "c1" || got.ParentID != "root" || got.Seq != 6 {
		t.Errorf("unexpected identity %+v", got.Short())
	}
	for name, v := range it.Fields {
		if !got.Field(name).Equal(v) {
			t.Errorf("field %q: expected %v, got %v", name, v, got.Field(name))
		}
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		kind    item.ValueKind
		wantErr bool
	}{
		{"nil", nil, item.NullValue, false},
		{"string", "s", item.StringValue, false},
		{"int64", int64(-1), item.IntValue, false},
		{"uint64", uint64(10), item.IntValue, false},
		{"uint64 overflow", uint64(1 << 63), 0, true},
		{"bool", true, item.BoolValue, false},
		{"float32", float32(1.5), item.FloatValue, false},
		{"bytes", []byte("b"), item.BytesValue, false},
		{"map", map[string]any{}, 0, true},
		{"array", []any{1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := item.ValueOf(tt.in)
			if tt.wantErr {
				if !errors.Is(err, item.ErrUnsupportedValue) {
					t.Errorf("expected ErrUnsupportedValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValueOf: %v", err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, v.Kind())
			}
		})
	}
}

func TestValueRejectsNestedCBOR(t *testing.T) {
	data, err := codec.Marshal(map[string]any{"nested": []any{1, 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]item.Value
	if err := codec.Unmarshal(data, &fields); err == nil {
		t.Error("expected error decoding nested field value")
	}
}

package shard

import (
	"fmt"
	"strings"
	"testing"
)

func TestScoped(t *testing.T) {
	tests := []struct {
		tenant, key string
		expected    string
	}{
		{"alice", "note", "5:alice|note"},
		{"", "", "0:|"},
		{"a|b", "c", "3:a|b|c"},
	}
	for _, tt := range tests {
		if got := Scoped(tt.tenant, tt.key); got != tt.expected {
			t.Errorf("Scoped(%q, %q) = %q, want %q", tt.tenant, tt.key, got, tt.expected)
		}
	}
}

func TestScoped_NoCollisions(t *testing.T) {
	// Without the length prefix these pairs would produce the same key.
	a := Scoped("a|b", "c")
	b := Scoped("a", "b|c")
	if a == b {
		t.Errorf("expected distinct keys, both were %q", a)
	}
}

func TestChildrenPK_SingleShard(t *testing.T) {
	tests := []struct {
		parentID string
		childID  string
		expected string
	}{
		{"p1", "c1", "1:t|p1#00"},
		{"p1", "c2", "1:t|p1#00"},
		{"", "c1", "1:t|#00"},
	}
	for _, tt := range tests {
		result := ChildrenPK("t", tt.parentID, tt.childID, 1)
		if result != tt.expected {
			t.Errorf("ChildrenPK(%q, %q, 1) = %q, want %q", tt.parentID, tt.childID, result, tt.expected)
		}
	}
}

func TestChildrenPK_ZeroShards(t *testing.T) {
	for _, n := range []int{0, -1} {
		if result := ChildrenPK("t", "p", "c", n); result != "1:t|p#00" {
			t.Errorf("numShards=%d: expected '1:t|p#00', got %q", n, result)
		}
	}
}

func TestChildrenPK_Distribution(t *testing.T) {
	shards := make(map[string]int)
	for i := 0; i < 1000; i++ {
		pk := ChildrenPK("t", "p", fmt.Sprintf("child-%d", i), 16)
		if !strings.HasPrefix(pk, "1:t|p#") {
			t.Fatalf("unexpected prefix in %q", pk)
		}
		shards[pk]++
	}
	if len(shards) != 16 {
		t.Errorf("expected all 16 shards to be used, got %d", len(shards))
	}
}

func TestChildrenPK_Deterministic(t *testing.T) {
	first := ChildrenPK("t", "p", "c", 256)
	for i := 0; i < 100; i++ {
		if result := ChildrenPK("t", "p", "c", 256); result != first {
			t.Fatalf("expected deterministic result %q, got %q", first, result)
		}
	}
}

func TestChildrenPK_SameChildDifferentParent(t *testing.T) {
	a := ChildrenPK("t", "p1", "c", 16)
	b := ChildrenPK("t", "p2", "c", 16)
	if a[len(a)-2:] != b[len(b)-2:] {
		t.Errorf("expected same shard suffix for the same child, got %q and %q", a, b)
	}
}

func TestChildrenPKs_CoverEveryShard(t *testing.T) {
	pks := ChildrenPKs("t", "p", 16)
	if len(pks) != 16 {
		t.Fatalf("expected 16 partitions, got %d", len(pks))
	}
	seen := make(map[string]bool)
	for _, pk := range pks {
		seen[pk] = true
	}
	for i := 0; i < 100; i++ {
		pk := ChildrenPK("t", "p", fmt.Sprintf("c%d", i), 16)
		if !seen[pk] {
			t.Errorf("ChildrenPK %q is not among ChildrenPKs", pk)
		}
	}
}

func TestChildrenPKs_Clamped(t *testing.T) {
	if n := len(ChildrenPKs("t", "p", 0)); n != 1 {
		t.Errorf("expected 1 partition, got %d", n)
	}
	if n := len(ChildrenPKs("t", "p", 1000)); n != MaxShards {
		t.Errorf("expected %d partitions, got %d", MaxShards, n)
	}
}

func TestOf_HexRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := Of(fmt.Sprintf("k%d", i), 256)
		if s < 0 || s >= 256 {
			t.Fatalf("shard %d out of range", s)
		}
	}
}

func BenchmarkChildrenPK_SingleShard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ChildrenPK("tenant", "parent", "child", 1)
	}
}

func BenchmarkChildrenPK_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ChildrenPK("tenant", "parent", "child", 256)
	}
}

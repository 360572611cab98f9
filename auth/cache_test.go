package auth

import (
	"fmt"
	"testing"
	"time"
)

var testHash = []byte("$2a$04$stored-hash")

func TestCredentialCache(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newCredentialCache(time.Minute)
	c.now = func() time.Time { return now }

	if c.get("alice", "pw", testHash) {
		t.Fatal("expected empty cache to miss")
	}

	c.put("alice", "pw", testHash)
	if !c.get("alice", "pw", testHash) {
		t.Error("expected hit after put")
	}
	if c.get("alice", "other", testHash) {
		t.Error("expected miss for a different password")
	}
	if c.get("alice", "pw", []byte("$2a$04$new-hash")) {
		t.Error("expected miss once the stored hash changed")
	}

	now = now.Add(time.Minute)
	if c.get("alice", "pw", testHash) {
		t.Error("expected expired entry to miss")
	}
	if len(c.entries) != 0 {
		t.Errorf("expected expired entry to be dropped, got %d entries", len(c.entries))
	}
}

func TestCredentialCache_Disabled(t *testing.T) {
	c := newCredentialCache(0)
	c.put("alice", "pw", testHash)
	if c.get("alice", "pw", testHash) {
		t.Error("expected disabled cache to miss")
	}
}

func TestCredentialCache_DigestSeparatesFields(t *testing.T) {
	c := newCredentialCache(time.Minute)
	if c.digest("ab", "c", testHash) == c.digest("a", "bc", testHash) {
		t.Error("expected different digests for different login/password splits")
	}
	if c.digest("a", "bc", nil) == c.digest("a", "b", []byte("c")) {
		t.Error("expected different digests for different password/hash splits")
	}
	if c.digest("a", "b", testHash) != c.digest("a", "b", testHash) {
		t.Error("expected digest to be deterministic")
	}

	other := newCredentialCache(time.Minute)
	if c.digest("a", "b", testHash) == other.digest("a", "b", testHash) {
		t.Error("expected caches to use different keys")
	}
}

func TestCredentialCache_Sweep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newCredentialCache(time.Minute)
	c.now = func() time.Time { return now }

	for i := 0; i < 1100; i++ {
		c.put(fmt.Sprintf("user-%d", i), "pw", testHash)
	}
	now = now.Add(2 * time.Minute)
	c.put("fresh", "pw", testHash)

	if len(c.entries) != 1 {
		t.Errorf("expected only the fresh entry after sweeping, got %d entries", len(c.entries))
	}
}

package auth

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// credentialCache remembers verified credentials for a while so that
// bcrypt runs once per TTL per login/password pair. Entries are keyed by
// a keyed BLAKE3 hash of the login, the password and the stored bcrypt
// hash, so removing an account or changing its password invalidates
// them. Passwords are never stored.
type credentialCache struct {
	mu      sync.Mutex
	key     [32]byte
	ttl     time.Duration
	entries map[[32]byte]time.Time
	now     func() time.Time
}

func newCredentialCache(ttl time.Duration) *credentialCache {
	c := &credentialCache{
		ttl:     ttl,
		entries: make(map[[32]byte]time.Time),
		now:     time.Now,
	}
	if _, err := rand.Read(c.key[:]); err != nil {
		panic("auth: reading random cache key: " + err.Error())
	}
	return c
}

func (c *credentialCache) digest(login, password string, hash []byte) [32]byte {
	hasher, err := blake3.NewKeyed(c.key[:])
	if err != nil {
		panic("auth: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	// Length-prefix the variable fields so that no two triples hash the
	// same input.
	writeField(hasher, []byte(login))
	writeField(hasher, []byte(password))
	hasher.Write(hash)

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

func writeField(hasher *blake3.Hasher, field []byte) {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(field)))
	hasher.Write(prefix[:])
	hasher.Write(field)
}

// get reports whether the triple was verified and has not expired.
func (c *credentialCache) get(login, password string, hash []byte) bool {
	if c.ttl <= 0 {
		return false
	}
	k := c.digest(login, password, hash)

	c.mu.Lock()
	defer c.mu.Unlock()
	expires, ok := c.entries[k]
	if !ok {
		return false
	}
	if !c.now().Before(expires) {
		delete(c.entries, k)
		return false
	}
	return true
}

func (c *credentialCache) put(login, password string, hash []byte) {
	if c.ttl <= 0 {
		return
	}
	k := c.digest(login, password, hash)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = now.Add(c.ttl)
	c.sweepLocked(now)
}

// sweepLocked drops expired entries once the map has grown.
func (c *credentialCache) sweepLocked(now time.Time) {
	if len(c.entries) < 1024 {
		return
	}
	for k, expires := range c.entries {
		if !now.Before(expires) {
			delete(c.entries, k)
		}
	}
}

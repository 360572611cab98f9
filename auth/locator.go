package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jacentio/arbor/engine"
)

// Credentials are the Login and Password header fields of a request.
type Credentials struct {
	Login    string
	Password string
}

// Locator resolves credentials to the store of their tenant. Failures
// caused by the credentials wrap ErrAuthFailed.
type Locator interface {
	Locate(ctx context.Context, creds Credentials) (engine.Store, error)
}

// Backend hands out per-tenant stores.
type Backend interface {
	Tenant(name string) engine.Store
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(name string) engine.Store

// Tenant calls f(name).
func (f BackendFunc) Tenant(name string) engine.Store { return f(name) }

// DirectoryLocator resolves credentials through a Directory and caches
// successful verifications.
type DirectoryLocator struct {
	dir     *Directory
	backend Backend
	cache   *credentialCache
	logger  *slog.Logger
}

var _ Locator = (*DirectoryLocator)(nil)

// NewLocator creates a locator. A cacheTTL of zero verifies every
// request against the directory.
func NewLocator(dir *Directory, backend Backend, cacheTTL time.Duration, logger *slog.Logger) *DirectoryLocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryLocator{
		dir:     dir,
		backend: backend,
		cache:   newCredentialCache(cacheTTL),
		logger:  logger,
	}
}

// Locate returns the store of the tenant creds belong to. The account
// row is read on every call; only the bcrypt comparison is cached, so
// removed accounts and changed passwords take effect at once.
func (l *DirectoryLocator) Locate(ctx context.Context, creds Credentials) (engine.Store, error) {
	if creds.Login == "" {
		return nil, ErrAuthFailed
	}

	acct, err := l.dir.lookup(ctx, creds.Login)
	if err == nil && !l.cache.get(creds.Login, creds.Password, acct.hash) {
		if bcrypt.CompareHashAndPassword(acct.hash, []byte(creds.Password)) != nil {
			err = ErrAuthFailed
		} else {
			l.cache.put(creds.Login, creds.Password, acct.hash)
		}
	}
	if err != nil {
		l.logger.Debug("authentication failed",
			"login", creds.Login,
			"error", err,
		)
		return nil, err
	}
	if acct.tenant == "" {
		return nil, fmt.Errorf("%w: no tenant for %q", ErrAuthFailed, creds.Login)
	}
	return l.backend.Tenant(acct.tenant), nil
}

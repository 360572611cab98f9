// Package auth resolves request credentials to a tenant's store.
//
// Accounts live in a [Directory], a SQLite database mapping each login to
// a bcrypt password hash and a tenant name. A [DirectoryLocator] verifies
// the Login and Password header fields of a request against it and hands
// out the tenant's store from a [Backend]:
//
//	dir, err := auth.OpenDirectory(auth.DirectoryConfig{Path: "accounts.db"})
//	...
//	loc := auth.NewLocator(dir, auth.BackendFunc(func(tenant string) engine.Store {
//		return items.Tenant(tenant)
//	}), time.Minute, logger)
//
// Verified credentials are cached for the given TTL so that bcrypt runs
// once per TTL per credential pair. Removing a user takes effect for
// cached credentials once their entry expires.
package auth

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jacentio/arbor/internal/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	login  TEXT PRIMARY KEY,
	hash   BLOB NOT NULL,
	tenant TEXT NOT NULL
) WITHOUT ROWID;
`

// User is an account of the directory.
type User struct {
	Login  string
	Tenant string
}

// DirectoryConfig configures a Directory.
type DirectoryConfig struct {
	// Path is the SQLite database file.
	// Default: "accounts.db"
	Path string

	// PoolSize is the number of SQLite connections.
	// Default: 2
	PoolSize int

	// BcryptCost is the cost of new password hashes.
	// Default: bcrypt.DefaultCost
	BcryptCost int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *DirectoryConfig) validate() {
	if c.Path == "" {
		c.Path = "accounts.db"
	}
	if c.PoolSize < 1 {
		c.PoolSize = 2
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.BcryptCost < bcrypt.MinCost {
		c.BcryptCost = bcrypt.MinCost
	}
	if c.BcryptCost > bcrypt.MaxCost {
		c.BcryptCost = bcrypt.MaxCost
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Directory maps logins to tenants. Passwords are kept as bcrypt hashes.
type Directory struct {
	pool   *sqlitepool.Pool
	cost   int
	logger *slog.Logger
}

// OpenDirectory opens or creates the account database.
func OpenDirectory(config DirectoryConfig) (*Directory, error) {
	config.validate()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return &Directory{pool: pool, cost: config.BcryptCost, logger: config.Logger}, nil
}

// Close closes the account database.
func (d *Directory) Close() error {
	return d.pool.Close()
}

// AddUser creates an account for login with the given tenant.
func (d *Directory) AddUser(ctx context.Context, login, password, tenant string) error {
	if login == "" || password == "" || tenant == "" {
		return ErrInvalidUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}

	err = d.pool.Write(ctx, func(conn *sqlite.Conn) error {
		exists := false
		err := sqlitex.Execute(conn, `SELECT 1 FROM users WHERE login = ?`, &sqlitex.ExecOptions{
			Args: []any{login},
			ResultFunc: func(*sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
		if err != nil {
			return err
		}
		if exists {
			return ErrUserExists
		}
		return sqlitex.Execute(conn, `INSERT INTO users (login, hash, tenant) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{login, hash, tenant}})
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return fmt.Errorf("%w: %q", ErrUserExists, login)
		}
		return fmt.Errorf("auth: add %q: %w", login, err)
	}

	d.logger.Info("user added",
		"login", login,
		"tenant", tenant,
	)
	return nil
}

// RemoveUser deletes the account of login. The tenant's items are kept.
func (d *Directory) RemoveUser(ctx context.Context, login string) error {
	err := d.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM users WHERE login = ?`,
			&sqlitex.ExecOptions{Args: []any{login}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: %q", ErrUserNotFound, login)
		}
		return fmt.Errorf("auth: remove %q: %w", login, err)
	}

	d.logger.Info("user removed", "login", login)
	return nil
}

// Users lists every account, ordered by login.
func (d *Directory) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := d.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT login, tenant FROM users ORDER BY login`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				users = append(users, User{Login: stmt.ColumnText(0), Tenant: stmt.ColumnText(1)})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	return users, nil
}

// Verify checks password against the stored hash of login and returns
// the login's tenant. Mismatches fail with ErrAuthFailed.
func (d *Directory) Verify(ctx context.Context, login, password string) (string, error) {
	acct, err := d.lookup(ctx, login)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return "", ErrAuthFailed
	}
	return acct.tenant, nil
}

// account is the stored row of a login.
type account struct {
	hash   []byte
	tenant string
}

// lookup reads the row of login. Unknown logins fail with ErrAuthFailed.
func (d *Directory) lookup(ctx context.Context, login string) (account, error) {
	var (
		acct  account
		found bool
	)
	err := d.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT hash, tenant FROM users WHERE login = ?`, &sqlitex.ExecOptions{
			Args: []any{login},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				acct.hash = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, acct.hash)
				acct.tenant = stmt.ColumnText(1)
				return nil
			},
		})
	})
	if err != nil {
		return account{}, fmt.Errorf("auth: lookup %q: %w", login, err)
	}
	if !found {
		return account{}, ErrAuthFailed
	}
	return acct, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUnknownDriver = errors.New("unknown driver")
	ErrNotConfigured = errors.New("transactor is not configured")
)

// driverNames are the driver identifiers this transactor accepts. Anything
// else fails construction before any pool configuration happens.
var driverNames = map[string]bool{
	"pgx":        true,
	"postgres":   true,
	"postgresql": true,
}

// Transactor runs units of work in pooled transactions. The backing pool is
// either supplied ready-made or described by a stored config and built
// lazily on first use, so construction itself performs no I/O.
type Transactor struct {
	mu       sync.Mutex
	pool     *pgxpool.Pool
	config   *pgxpool.Config // pending; consumed on first WithTx
	ownsPool bool
}

// NewTransactor wraps an already-configured pool. The caller keeps ownership
// of the pool; Close is a no-op.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// NewUnconfiguredTransactor allocates a transactor with no backing pool.
// Configure must be called before the first WithTx.
func NewUnconfiguredTransactor() *Transactor {
	return &Transactor{ownsPool: true}
}

// TransactorFromCredentials builds a transactor from a driver name, URL, and
// credentials. The driver name is validated first; an unknown driver fails
// before the URL is even parsed. The pool is connected on first WithTx.
func TransactorFromCredentials(driver, databaseURL, user, password string) (*Transactor, error) {
	if !driverNames[driver] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	t := NewUnconfiguredTransactor()
	if err := t.Configure(databaseURL, user, password); err != nil {
		return nil, err
	}
	return t, nil
}

// Configure parses databaseURL and applies user and password onto the pool
// config. Empty user or password keep the values from the URL. Configuring
// an already-connected transactor is an error.
func (t *Transactor) Configure(databaseURL, user, password string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pool != nil {
		return errors.New("transactor already has a pool")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parsing database URL: %w", err)
	}
	if user != "" {
		config.ConnConfig.User = user
	}
	if password != "" {
		config.ConnConfig.Password = password
	}

	t.config = config
	return nil
}

// SetPoolSettings applies pool tuning onto a pending config. It has no
// effect once the pool is connected.
func (t *Transactor) SetPoolSettings(settings PoolSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.config != nil {
		settings.apply(t.config)
	}
}

// WithTx acquires a pooled connection, begins a transaction, runs fn, and
// commits on success or rolls back on error. The first call connects a
// lazily-configured pool.
func (t *Transactor) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	pool, err := t.ensurePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *Transactor) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pool != nil {
		return t.pool, nil
	}
	if t.config == nil {
		return nil, ErrNotConfigured
	}

	pool, err := pgxpool.NewWithConfig(ctx, t.config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	t.pool = pool
	t.config = nil
	return pool, nil
}

// Close releases the pool if this transactor built it. Pools supplied via
// NewTransactor stay open.
func (t *Transactor) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ownsPool && t.pool != nil {
		t.pool.Close()
		t.pool = nil
	}
}

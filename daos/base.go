// Package daos is the data access layer: a guarded front door onto a single
// SQLite database. It owns path sandboxing, statement classification, value
// marshaling, and every operation that touches the connection handle.
package daos

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Options tunes how connections are opened.
type Options struct {
	Driver      string // "sqlite3" (default) or "libsql"
	BusyTimeout int    // busy timeout in seconds (sqlite3 driver only)
	MaxRows     int    // per-query result row cap, 0 = unlimited
}

// Dao owns the single mutable connection handle. At most one connection is
// ever open; a successful Connect closes and replaces any prior handle. All
// access to the handle is serialized through one mutex, which sidesteps
// SQLite's own concurrency restrictions entirely rather than managing them.
type Dao struct {
	opts Options
	box  Sandbox

	mu   sync.Mutex
	db   *sqlx.DB
	path string
}

// New returns a disconnected Dao confined to the given sandbox.
func New(box Sandbox, opts Options) *Dao {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5
	}
	return &Dao{opts: opts, box: box}
}

// ConnectInfo describes a freshly opened database.
type ConnectInfo struct {
	Success      bool   `json:"success"`
	Path         string `json:"path"`
	DatabaseSize int64  `json:"database_size"`
	PageCount    int64  `json:"page_count,omitempty"`
	PageSize     int64  `json:"page_size,omitempty"`
	JournalMode  string `json:"journal_mode,omitempty"`
}

// Connect validates the path, opens the database, and installs it as the
// current handle, closing any previous one. With createIfMissing false the
// file must already exist; with readonly true the handle rejects writes.
// Readonly mode requires the sqlite3 driver: the libsql file DSN carries no
// access-mode flag, so rather than silently opening read-write the request
// fails with ErrReadonlyUnsupported.
func (d *Dao) Connect(ctx context.Context, rawPath string, createIfMissing, readonly bool) (ConnectInfo, error) {
	info, err := d.box.Validate(rawPath, PurposeDatabase)
	if err != nil {
		return ConnectInfo{}, err
	}
	if readonly && d.opts.Driver != DriverSQLite {
		return ConnectInfo{}, fmt.Errorf("%w: %s", ErrReadonlyUnsupported, d.opts.Driver)
	}
	if !createIfMissing && !info.Existed {
		return ConnectInfo{}, fmt.Errorf("%w: %s", ErrDatabaseNotFound, rawPath)
	}

	db, err := sqlx.ConnectContext(ctx, d.opts.Driver, d.dsn(info.Path, createIfMissing, readonly))
	if err != nil {
		return ConnectInfo{}, engineErr("opening database", err)
	}
	// SQLite supports one writer; a single connection also keeps session
	// state (pragmas, transactions) on the handle operations actually use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Gather metadata while the handle is still private to this call.
	res := ConnectInfo{Success: true, Path: info.Path}
	if st, err := os.Stat(info.Path); err == nil {
		res.DatabaseSize = st.Size()
	}
	db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&res.PageCount)
	db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&res.PageSize)
	db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&res.JournalMode)

	d.mu.Lock()
	if d.db != nil {
		d.db.Close()
	}
	d.db = db
	d.path = info.Path
	d.mu.Unlock()

	return res, nil
}

// dsn builds the driver-specific connection string.
func (d *Dao) dsn(path string, createIfMissing, readonly bool) string {
	if d.opts.Driver == DriverLibsql {
		return "file:" + path
	}
	mode := "rw"
	switch {
	case readonly:
		mode = "ro"
	case createIfMissing:
		mode = "rwc"
	}
	return fmt.Sprintf("file:%s?mode=%s&_busy_timeout=%d&_foreign_keys=on",
		path, mode, d.opts.BusyTimeout*1000)
}

// conn returns the open handle. Callers must hold d.mu.
func (d *Dao) conn() (*sqlx.DB, error) {
	if d.db == nil {
		return nil, ErrNotConnected
	}
	return d.db, nil
}

// Path returns the canonical path of the current database, if connected.
func (d *Dao) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Close releases the current handle, if any.
func (d *Dao) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	d.path = ""
	return err
}

// HealthInfo reports the status of the current connection.
type HealthInfo struct {
	Connected     bool   `json:"connected"`
	DatabasePath  string `json:"database_path,omitempty"`
	DatabaseSize  int64  `json:"database_size,omitempty"`
	TableCount    int    `json:"table_count"`
	LastModified  string `json:"last_modified,omitempty"`
	EngineVersion string `json:"engine_version,omitempty"`
}

// Health reports connection status and basic database metadata. A
// disconnected Dao is not an error here; Connected is simply false.
func (d *Dao) Health(ctx context.Context) (HealthInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return HealthInfo{Connected: false}, nil
	}

	res := HealthInfo{Connected: true, DatabasePath: d.path}
	if st, err := os.Stat(d.path); err == nil {
		res.DatabaseSize = st.Size()
		res.LastModified = st.ModTime().UTC().Format(time.RFC3339)
	}

	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'",
	).Scan(&res.TableCount)
	if err != nil {
		return HealthInfo{}, engineErr("counting tables", err)
	}

	if err := d.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&res.EngineVersion); err != nil {
		return HealthInfo{}, engineErr("reading engine version", err)
	}

	return res, nil
}

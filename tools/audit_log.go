package tools

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/8agana/uni-sqlite/config"
)

// AuditEntry is a single request audit record.
type AuditEntry struct {
	Time       time.Time
	Method     string
	Path       string
	Status     int
	DurationMs int64
	ClientIP   string
	RequestID  string
}

// AuditLogger batches request records and writes them to a separate SQLite
// database, kept apart from whatever database the server is administering.
type AuditLogger struct {
	db         *sqlx.DB
	insertStmt *sqlx.Stmt

	mu        sync.Mutex
	batch     []*AuditEntry
	batchSize int
	debounce  time.Duration
	timer     *time.Timer

	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

var (
	auditLogger *AuditLogger
	auditOnce   sync.Once
)

// InitAuditLogger opens the audit database if auditing is configured.
// With an empty audit_log_path auditing stays disabled.
func InitAuditLogger() error {
	if config.Cfg.AuditLogPath == "" {
		return nil
	}

	var initErr error
	auditOnce.Do(func() {
		initErr = initAuditLoggerInternal()
	})
	return initErr
}

func initAuditLoggerInternal() error {
	dir := filepath.Dir(config.Cfg.AuditLogPath)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	db, err := sqlx.Open("sqlite3", "file:"+config.Cfg.AuditLogPath)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`)
	if err != nil {
		db.Close()
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			client_ip TEXT,
			request_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_log(status);
	`)
	if err != nil {
		db.Close()
		return err
	}

	insertStmt, err := db.Preparex(`
		INSERT INTO audit_log (created_at, method, path, status, duration_ms, client_ip, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return err
	}

	auditLogger = &AuditLogger{
		db:         db,
		insertStmt: insertStmt,
		batch:      make([]*AuditEntry, 0, 200),
		batchSize:  200,
		debounce:   3 * time.Second,
		done:       make(chan struct{}),
	}

	if config.Cfg.AuditLogRetention > 0 {
		auditLogger.wg.Add(1)
		go auditLogger.retentionCleanup()
	}

	return nil
}

// RecordAudit queues one request record for the audit database. It is a
// no-op when auditing is disabled.
func RecordAudit(entry AuditEntry) {
	l := auditLogger
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.batch = append(l.batch, &entry)

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.flushLocked()
	})

	if len(l.batch) >= l.batchSize {
		l.flushLocked()
	}
}

// flushLocked writes all batched records to the database. Must hold l.mu.
func (l *AuditLogger) flushLocked() {
	if len(l.batch) == 0 {
		return
	}

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	tx, err := l.db.Beginx()
	if err != nil {
		Logger.Error("failed to begin audit log transaction", "error", err)
		return
	}

	stmt := tx.Stmtx(l.insertStmt)
	for _, entry := range l.batch {
		_, err := stmt.Exec(
			entry.Time.Format(time.RFC3339),
			entry.Method,
			entry.Path,
			entry.Status,
			entry.DurationMs,
			entry.ClientIP,
			entry.RequestID,
		)
		if err != nil {
			Logger.Error("failed to insert audit log entry", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		Logger.Error("failed to commit audit log transaction", "error", err)
	}

	l.batch = l.batch[:0]
}

// Flush writes all pending records to the database.
func (l *AuditLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

// retentionCleanup periodically removes entries older than the configured
// retention window.
func (l *AuditLogger) retentionCleanup() {
	defer l.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	l.runCleanup()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

func (l *AuditLogger) runCleanup() {
	retention := config.Cfg.AuditLogRetention
	if retention <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retention).Format(time.RFC3339)
	result, err := l.db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		Logger.Error("failed to clean up audit log", "error", err)
		return
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		Logger.Info("cleaned up old audit log entries", "rows_deleted", rows)
	}
}

// CloseAuditLogger flushes pending records and shuts the audit logger down.
func CloseAuditLogger() {
	l := auditLogger
	if l == nil {
		return
	}

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.Flush()

	close(l.done)
	l.wg.Wait()

	if l.insertStmt != nil {
		l.insertStmt.Close()
	}
	if l.db != nil {
		l.db.Close()
	}
}

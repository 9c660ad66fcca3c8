// store exports parsed traces to a SQLite database
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite"

	"github.com/omaskery/qnxtally/pkg/events"
	qio "github.com/omaskery/qnxtally/pkg/io"
)

var (
	ErrDuplicateTrace = errors.New("trace already stored")
)

type StoreOption = func(s *SQLiteStore)

func WithLogger(logger logr.Logger) StoreOption {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// SQLiteStore writes bundles into a SQLite database, one row set per trace name
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger logr.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath. When clean is set any existing file is
// removed first.
func NewSQLiteStore(dbPath string, clean bool, options ...StoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{logger: logr.Discard()}
	for _, opt := range options {
		opt(s)
	}

	if clean {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove old database: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps in-memory databases alive across statements
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			s.logger.Info("failed to set pragma", "pragma", p, "error", err.Error())
		}
	}

	s.db = db
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.V(1).Info("sqlite store initialized", "db", dbPath)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(traceSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if n == 0 {
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return tx.Commit()
}

// SaveBundle stores every table of a bundle under the given trace name in a single transaction
func (s *SQLiteStore) SaveBundle(name string, b *qio.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for trace '%s': %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRow("SELECT COUNT(*) FROM traces WHERE name = ?", name).Scan(&existing); err != nil {
		return fmt.Errorf("failed to look up trace '%s': %w", name, err)
	}
	if existing > 0 {
		return fmt.Errorf("'%s': %w", name, ErrDuplicateTrace)
	}

	res, err := tx.Exec("INSERT INTO traces (name, lines, cpus) VALUES (?, ?, ?)",
		name, b.Stats().Lines, len(b.Cpus()))
	if err != nil {
		return fmt.Errorf("failed to insert trace '%s': %w", name, err)
	}
	traceID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read trace id: %w", err)
	}

	var processes, threads, counts, cpuCounts, threadCounts, cpuEvents, running [][]interface{}

	for _, pid := range b.Processes() {
		var pname interface{}
		if n, ok := b.ProcessName(pid); ok {
			pname = n
		}
		processes = append(processes, []interface{}{traceID, string(pid), pname})
	}

	for _, thread := range b.Threads() {
		threads = append(threads, []interface{}{traceID, string(thread.PID), string(thread.TID), b.ThreadName(thread)})
		for _, kind := range events.EventKinds() {
			if n := b.EventCount(kind, thread); n > 0 {
				counts = append(counts, []interface{}{traceID, string(kind), string(thread.PID), string(thread.TID), n})
			}
		}
	}

	for _, call := range b.KernelCalls() {
		for _, cpu := range b.Cpus() {
			if n := b.CpuKernelCount(call, cpu); n > 0 {
				cpuCounts = append(cpuCounts, []interface{}{traceID, call, string(cpu), n})
			}
		}
	}

	for _, thread := range b.KernelThreads() {
		for _, call := range b.AttributedKernelCalls() {
			if n := b.ThreadKernelCount(thread, call); n > 0 {
				threadCounts = append(threadCounts, []interface{}{traceID, string(thread.PID), string(thread.TID), call, n})
			}
		}
		for seq, c := range b.ThreadCpuEvents(thread) {
			cpuEvents = append(cpuEvents, []interface{}{traceID, string(thread.PID), string(thread.TID), seq, string(c.CPU), c.Call})
		}
	}

	for _, thread := range b.RunningThreads() {
		rt, _ := b.RunningTime(thread)
		running = append(running, []interface{}{traceID, string(thread.PID), string(thread.TID),
			rt.TotalMicroseconds, rt.TotalMilliseconds, rt.CpuUsage})
	}

	inserts := []struct {
		table string
		query string
		rows  [][]interface{}
	}{
		{"processes", "INSERT INTO processes (trace_id, pid, name) VALUES (?, ?, ?)", processes},
		{"threads", "INSERT INTO threads (trace_id, pid, tid, name) VALUES (?, ?, ?, ?)", threads},
		{"event_counts", "INSERT INTO event_counts (trace_id, kind, pid, tid, count) VALUES (?, ?, ?, ?, ?)", counts},
		{"cpu_kernel_counts", "INSERT INTO cpu_kernel_counts (trace_id, call, cpu, count) VALUES (?, ?, ?, ?)", cpuCounts},
		{"thread_kernel_counts", "INSERT INTO thread_kernel_counts (trace_id, pid, tid, call, count) VALUES (?, ?, ?, ?, ?)", threadCounts},
		{"thread_cpu_events", "INSERT INTO thread_cpu_events (trace_id, pid, tid, seq, cpu, call) VALUES (?, ?, ?, ?, ?, ?)", cpuEvents},
		{"running_time", "INSERT INTO running_time (trace_id, pid, tid, total_us, total_ms, cpu_usage) VALUES (?, ?, ?, ?, ?, ?)", running},
	}
	for _, ins := range inserts {
		if err := bulkInsert(tx, ins.query, ins.rows); err != nil {
			return fmt.Errorf("failed to insert %s for trace '%s': %w", ins.table, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace '%s': %w", name, err)
	}
	s.logger.V(1).Info("stored trace", "trace", name, "threads", len(threads), "cpuEvents", len(cpuEvents))
	return nil
}

func bulkInsert(tx *sql.Tx, query string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.Exec(row...); err != nil {
			return err
		}
	}
	return nil
}

// TraceNames lists the stored traces in insertion order
func (s *SQLiteStore) TraceNames() ([]string, error) {
	rows, err := s.Query("SELECT name FROM traces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan trace name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Query runs an arbitrary read query against the database
func (s *SQLiteStore) Query(query string, args ...interface{}) (*sql.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Query(query, args...)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

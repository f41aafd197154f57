package audit

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event represents one cluster-management action: a transaction
// lifecycle step, a node membership change, a primary move, or a
// standby transition.
type Event struct {
	Timestamp int64
	Node      string // node the action concerns, empty for cluster-wide actions
	Action    string
	TxnID     string
	Details   string
	Success   bool
}

// BufferedLogger implements batched audit logging for high-performance SQLite
type BufferedLogger struct {
	db            *sql.DB
	buffer        []Event
	bufferMutex   sync.Mutex
	flushTicker   *time.Ticker
	stopChan      chan struct{}
	maxBuffer     int
	flushInterval time.Duration
	hmacKey       []byte // 32-byte key for audit chain integrity; nil = chain disabled
}

// NewBufferedLogger creates a new buffered audit logger
//
// - Batches audit logs to reduce SQLite I/O
// - Flushes every flushInterval (5 seconds by default) once Start is
//   called, OR when buffer reaches maxBuffer
func NewBufferedLogger(db *sql.DB, maxBuffer int, flushInterval time.Duration, hmacKey []byte) *BufferedLogger {
	if maxBuffer <= 0 {
		maxBuffer = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	bl := &BufferedLogger{
		db:            db,
		buffer:        make([]Event, 0, maxBuffer),
		maxBuffer:     maxBuffer,
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
		hmacKey:       hmacKey,
	}

	return bl
}

// Start begins the background flushing goroutine
func (bl *BufferedLogger) Start() {
	bl.flushTicker = time.NewTicker(bl.flushInterval)

	go func() {
		for {
			select {
			case <-bl.flushTicker.C:
				if err := bl.Flush(); err != nil {
					log.Printf("audit: periodic flush: %v", err)
				}
			case <-bl.stopChan:
				bl.flushTicker.Stop()
				if err := bl.Flush(); err != nil {
					log.Printf("audit: final flush: %v", err)
				}
				return
			}
		}
	}()
}

// Stop gracefully stops the buffered logger
func (bl *BufferedLogger) Stop() {
	close(bl.stopChan)
}

// CriticalActions lists action strings that must bypass the buffer and
// write directly to SQLite. These events must never be lost on crash or
// SIGKILL: they mark membership and primary changes an operator will
// need to reconstruct cluster history from.
var CriticalActions = map[string]bool{
	"move_primary":  true,
	"enter_standby": true,
	"commit_txn":    true,
	"rollback_txn":  true,
}

// Log adds an event to the buffer. Critical events bypass the buffer
// and are written directly to SQLite so they survive a hard crash.
//
// Thread-safe: can be called from multiple goroutines.
func (bl *BufferedLogger) Log(event Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	if CriticalActions[event.Action] {
		return bl.writeDirect([]Event{event})
	}

	bl.bufferMutex.Lock()
	bl.buffer = append(bl.buffer, event)
	needFlush := len(bl.buffer) >= bl.maxBuffer
	bl.bufferMutex.Unlock()

	// Flush outside the lock — Flush() manages its own locking.
	if needFlush {
		return bl.Flush()
	}
	return nil
}

// writeDirect writes events synchronously to SQLite, bypassing the buffer.
func (bl *BufferedLogger) writeDirect(events []Event) error {
	tx, err := bl.db.Begin()
	if err != nil {
		return fmt.Errorf("audit direct write: begin: %w", err)
	}
	defer tx.Rollback()

	var prevHash string
	if bl.hmacKey != nil {
		_ = tx.QueryRow(
			`SELECT COALESCE(row_hash,'') FROM audit_logs ORDER BY id DESC LIMIT 1`,
		).Scan(&prevHash)
	}

	stmt, err := tx.Prepare(`INSERT INTO audit_logs
		(timestamp, node, action, txn_id, details, success, prev_hash, row_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("audit direct write: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		rowHash := computeRowHash(bl.hmacKey, prevHash, e)
		if _, err := stmt.Exec(e.Timestamp, e.Node, e.Action, e.TxnID, e.Details, e.Success, prevHash, rowHash); err != nil {
			log.Printf("audit direct write: exec: %v", err)
			continue
		}
		prevHash = rowHash
	}
	return tx.Commit()
}

// Flush writes all buffered events to SQLite in a single transaction.
func (bl *BufferedLogger) Flush() error {
	bl.bufferMutex.Lock()

	if len(bl.buffer) == 0 {
		bl.bufferMutex.Unlock()
		return nil
	}

	events := make([]Event, len(bl.buffer))
	copy(events, bl.buffer)
	bl.buffer = bl.buffer[:0]

	bl.bufferMutex.Unlock()

	tx, err := bl.db.Begin()
	if err != nil {
		return fmt.Errorf("audit flush: begin: %w", err)
	}
	defer tx.Rollback()

	var prevHash string
	if bl.hmacKey != nil {
		_ = tx.QueryRow(
			`SELECT COALESCE(row_hash,'') FROM audit_logs ORDER BY id DESC LIMIT 1`,
		).Scan(&prevHash)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO audit_logs (
			timestamp, node, action, txn_id, details, success,
			prev_hash, row_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("audit flush: prepare: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		rowHash := computeRowHash(bl.hmacKey, prevHash, event)
		_, err := stmt.Exec(
			event.Timestamp,
			event.Node,
			event.Action,
			event.TxnID,
			event.Details,
			event.Success,
			prevHash,
			rowHash,
		)
		if err != nil {
			log.Printf("audit flush: insert failed: %v", err)
			continue
		}
		prevHash = rowHash
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit flush: commit: %w", err)
	}
	return nil
}

// Stats returns buffer statistics, useful for a status endpoint.
func (bl *BufferedLogger) Stats() map[string]interface{} {
	bl.bufferMutex.Lock()
	defer bl.bufferMutex.Unlock()

	return map[string]interface{}{
		"buffer_size":     len(bl.buffer),
		"max_buffer":      bl.maxBuffer,
		"flush_interval":  bl.flushInterval.String(),
		"buffer_capacity": cap(bl.buffer),
	}
}

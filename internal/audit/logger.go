// Package audit records cluster-management actions (transaction
// lifecycle, node activation/deactivation, primary moves, standby
// transitions) to an HMAC-chained SQLite table, so an operator can
// reconstruct exactly what the daemon decided and when.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
)

// Schema is the DDL for the audit_logs table. Run once at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	node      TEXT NOT NULL DEFAULT '',
	action    TEXT NOT NULL,
	txn_id    TEXT NOT NULL DEFAULT '',
	details   TEXT NOT NULL DEFAULT '',
	success   BOOLEAN NOT NULL DEFAULT 1,
	prev_hash TEXT NOT NULL DEFAULT '',
	row_hash  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_txn_id ON audit_logs(txn_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
`

// Recorder is the cluster-facing entry point: clusterbackend.Backend
// calls its methods directly, rather than building Event values itself.
type Recorder struct {
	logger *BufferedLogger
}

// NewRecorder wraps an already-started BufferedLogger.
func NewRecorder(logger *BufferedLogger) *Recorder {
	return &Recorder{logger: logger}
}

func (r *Recorder) emit(e Event) {
	if r == nil || r.logger == nil {
		return
	}
	if err := r.logger.Log(e); err != nil {
		// The audit trail is best-effort: a write failure must never
		// block cluster management.
		fmt.Fprintf(os.Stderr, "audit: log failed: %v\n", err)
	}
}

// LogStartTransaction records the beginning of a cluster transaction.
func (r *Recorder) LogStartTransaction(txnID string, nodesAdded, nodesRemoved []string) {
	r.emit(Event{
		Action:  "start_txn",
		TxnID:   txnID,
		Details: fmt.Sprintf("added=%v removed=%v", nodesAdded, nodesRemoved),
		Success: true,
	})
}

// LogActivateNode records an attempt to activate a node.
func (r *Recorder) LogActivateNode(txnID, node string, err error) {
	r.emit(nodeEvent(txnID, node, "activate_node", err))
}

// LogDeactivateNode records an attempt to deactivate a node.
func (r *Recorder) LogDeactivateNode(txnID, node string, err error) {
	r.emit(nodeEvent(txnID, node, "deactivate_node", err))
}

// LogMovePrimary records a primary-node move.
func (r *Recorder) LogMovePrimary(txnID, newPrimary string, err error) {
	r.emit(nodeEvent(txnID, newPrimary, "move_primary", err))
}

// LogEnterStandby records the cluster dropping quorum and quiescing.
func (r *Recorder) LogEnterStandby(self string, err error) {
	r.emit(nodeEvent("", self, "enter_standby", err))
}

// LogCommit records a successful transaction commit.
func (r *Recorder) LogCommit(txnID string, eventCount int) {
	r.emit(Event{
		Action:  "commit_txn",
		TxnID:   txnID,
		Details: fmt.Sprintf("events=%d", eventCount),
		Success: true,
	})
}

// LogRollback records a transaction rollback, with the error that caused it.
func (r *Recorder) LogRollback(txnID string, eventCount int, cause error) {
	details := fmt.Sprintf("events=%d", eventCount)
	if cause != nil {
		details += ": " + cause.Error()
	}
	r.emit(Event{
		Action:  "rollback_txn",
		TxnID:   txnID,
		Details: details,
		Success: false,
	})
}

func nodeEvent(txnID, node, action string, err error) Event {
	e := Event{
		Action:  action,
		TxnID:   txnID,
		Node:    node,
		Success: err == nil,
	}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// Default is a process-wide Recorder so packages that don't hold a
// reference to the wiring (e.g. a package-level helper invoked from
// many call sites) can still emit audit events. Everywhere else in this
// module prefers an injected dependency; the audit trail is the one
// exception, mirroring how the rest of the cluster daemon always has
// exactly one of it per process regardless of which component is
// recording to it.
var (
	defaultMu  sync.RWMutex
	defaultRec *Recorder
)

// SetDefault installs the process-wide Recorder. Call once at startup
// after opening the database and creating the schema.
func SetDefault(r *Recorder) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRec = r
}

// Default returns the process-wide Recorder, or a no-op Recorder if
// SetDefault was never called.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultRec == nil {
		return &Recorder{}
	}
	return defaultRec
}

// OpenSink is a convenience constructor: opens (or reuses) db, applies
// the schema, builds a BufferedLogger with the given HMAC key, starts
// its flush loop, and returns a ready Recorder.
func OpenSink(db *sql.DB, hmacKey []byte) (*Recorder, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("audit: applying schema: %w", err)
	}
	logger := NewBufferedLogger(db, 100, 0, hmacKey)
	logger.Start()
	return NewRecorder(logger), nil
}

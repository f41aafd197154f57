package audit

import (
	"database/sql"
	"fmt"
)

// VerifyResult reports the outcome of walking the HMAC chain in
// audit_logs from the oldest row forward.
type VerifyResult struct {
	TotalRows      int
	CheckedRows    int
	SkippedRows    int // rows written with chaining disabled (empty row_hash)
	Valid          bool
	FirstBrokenID  int64
}

// VerifyChain re-derives every row_hash in audit_logs from the HMAC key
// and confirms the chain is unbroken. Rows written while the key was
// unavailable (row_hash == "") are counted but skipped; verification
// resumes from the first chained row after them. A non-nil error means
// the query itself failed, not that the chain is broken — check
// Valid/FirstBrokenID for that.
//
// This gives the write-side chaining in BufferedLogger.writeDirect and
// Flush an actual consumer: without it the prev_hash/row_hash columns
// are never read back, so tampering with a row would go undetected
// forever.
func VerifyChain(db *sql.DB, key []byte) (VerifyResult, error) {
	var result VerifyResult
	if len(key) == 0 {
		return result, fmt.Errorf("audit: verify chain: no HMAC key available")
	}

	rows, err := db.Query(`
		SELECT id, timestamp, node, action, txn_id, details, success, prev_hash, row_hash
		FROM audit_logs
		ORDER BY id ASC
	`)
	if err != nil {
		return result, fmt.Errorf("audit: verify chain: query: %w", err)
	}
	defer rows.Close()

	result.Valid = true
	prevHashSeen := ""
	chainStarted := false

	for rows.Next() {
		var (
			id             int64
			e              Event
			successInt     int
			storedPrevHash string
			storedRowHash  string
		)
		if err := rows.Scan(&id, &e.Timestamp, &e.Node, &e.Action, &e.TxnID, &e.Details, &successInt, &storedPrevHash, &storedRowHash); err != nil {
			return result, fmt.Errorf("audit: verify chain: scan: %w", err)
		}
		e.Success = successInt != 0
		result.TotalRows++

		if storedRowHash == "" {
			result.SkippedRows++
			continue
		}

		if !chainStarted {
			chainStarted = true
			prevHashSeen = storedPrevHash
		}

		computed := computeRowHash(key, prevHashSeen, e)
		if computed != storedRowHash {
			result.Valid = false
			if result.FirstBrokenID == 0 {
				result.FirstBrokenID = id
			}
		}
		prevHashSeen = storedRowHash
		result.CheckedRows++
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("audit: verify chain: rows: %w", err)
	}

	return result, nil
}

// Package ledger provides an append-only history of commands sent to the
// vendor cloud. It backs auditing of failed writes against observed device
// behavior.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry represents a single recorded command
type Entry struct {
	RecordID      string
	DeviceID      string
	FunctionClass string
	Payload       any
	Error         string
	Timestamp     time.Time
}

// Ledger provides append-only command logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends a command to the ledger. It satisfies the client's recorder
// hook; failures are logged and swallowed so a broken ledger never blocks
// device control.
func (l *Ledger) Record(deviceID, functionClass string, payload any, callErr error) {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			log.Warn().Err(err).Str("device", deviceID).Msg("Ledger payload marshal failed")
			payloadJSON = nil
		}
	}

	errText := ""
	if callErr != nil {
		errText = callErr.Error()
	}

	_, err := l.db.Exec(`
		INSERT INTO command_ledger (record_id, device_id, function_class, payload, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), deviceID, functionClass, string(payloadJSON), errText, time.Now().UTC().Unix())
	if err != nil {
		log.Warn().Err(err).Str("device", deviceID).Msg("Ledger append failed")
	}
}

// ForDevice returns the most recent commands recorded for a device
func (l *Ledger) ForDevice(deviceID string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT record_id, device_id, function_class, payload, error, timestamp
		FROM command_ledger
		WHERE device_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// Failed returns the most recent commands whose cloud call returned an error
func (l *Ledger) Failed(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT record_id, device_id, function_class, payload, error, timestamp
		FROM command_ledger
		WHERE error != ''
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM command_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, errText sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.RecordID, &entry.DeviceID, &entry.FunctionClass, &payloadStr, &errText, &timestamp,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if errText.Valid {
			entry.Error = errText.String
		}
		if payloadStr.Valid && payloadStr.String != "" {
			var payload any
			if err := json.Unmarshal([]byte(payloadStr.String), &payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
			entry.Payload = payload
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Package transfer moves data across the boundary: JSON backups, CSV
// import/export and the printable report.
package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/devfinance/internal/ledger"
)

// backupVersion is stamped into every export.
const backupVersion = "1.0"

// Backup is the on-disk backup shape: the collections plus provenance.
type Backup struct {
	ledger.Snapshot
	ExportDate time.Time `json:"exportDate"`
	Version    string    `json:"version"`
}

// ExportJSON serializes a snapshot as an indented backup document.
func ExportJSON(snap ledger.Snapshot, now time.Time) ([]byte, error) {
	b := Backup{Snapshot: snap, ExportDate: now, Version: backupVersion}
	out, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	return out, nil
}

// rawBackup mirrors the backup shape untyped, for structural validation
// before the real decode.
type rawBackup struct {
	Transactions   json.RawMessage `json:"transactions"`
	CreditCards    json.RawMessage `json:"creditCards"`
	FinancialGoals json.RawMessage `json:"financialGoals"`
	Debts          json.RawMessage `json:"debts"`
	EmergencyFund  json.RawMessage `json:"emergencyFund"`
}

// ParseBackup validates and decodes a backup document. Collections present
// in the document must be arrays; each transaction must carry a date,
// a description and an amount. Absent collections stay nil so imports can
// leave them untouched.
func ParseBackup(data []byte) (ledger.Snapshot, error) {
	var raw rawBackup
	if err := json.Unmarshal(data, &raw); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("invalid backup document: %w", err)
	}

	arrays := []struct {
		name  string
		field json.RawMessage
	}{
		{"transactions", raw.Transactions},
		{"creditCards", raw.CreditCards},
		{"financialGoals", raw.FinancialGoals},
		{"debts", raw.Debts},
	}
	for _, a := range arrays {
		if a.field != nil && !isJSONArray(a.field) {
			return ledger.Snapshot{}, fmt.Errorf("backup field %q must be an array", a.name)
		}
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode backup: %w", err)
	}

	for i, tx := range snap.Transactions {
		if tx.Date.IsZero() {
			return ledger.Snapshot{}, fmt.Errorf("transaction %d: missing date", i)
		}
		if tx.Description == "" {
			return ledger.Snapshot{}, fmt.Errorf("transaction %d: missing description", i)
		}
	}
	return snap, nil
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '['
		}
	}
	return false
}

// Package storage is the durable key-value layer. Each key is one JSON file
// wrapped in a schema-versioned envelope; per-key migration chains bring
// older payloads forward exactly once, at read time.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Collection keys. One file per key under the data directory.
const (
	KeyTransactions         = "devfinance_transactions"
	KeyCreditCards          = "devfinance_credit_cards"
	KeyFinancialGoals       = "devfinance_financial_goals"
	KeyDebts                = "devfinance_debts"
	KeyEmergencyFund        = "devfinance_emergency_fund"
	KeyBudgets              = "devfinance_budgets"
	KeyCustomCategories     = "devfinance_custom_categories"
	KeyNotifications        = "devfinance_notifications"
	KeyNotificationsEnabled = "devfinance_notifications_enabled"
	KeyExchangeRates        = "devfinance_exchange_rates"
	KeyAutoBackupEnabled    = "devfinance_auto_backup_enabled"
	KeyAutoBackupFrequency  = "devfinance_auto_backup_frequency"
	KeyLastBackup           = "devfinance_last_backup"
	KeyUserProfile          = "devfinance_user_profile"
)

// MigrationFunc rewrites a payload from one schema version to the next.
type MigrationFunc func(raw json.RawMessage) (json.RawMessage, error)

type migration struct {
	from int
	fn   MigrationFunc
}

// envelope wraps every persisted value.
type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	Data          json.RawMessage `json:"data"`
}

// probe is used to detect whether a raw file already carries an envelope.
type probe struct {
	SchemaVersion *int            `json:"schemaVersion"`
	Data          json.RawMessage `json:"data"`
}

// Store persists JSON values under string keys in a directory.
// It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	dir        string
	log        zerolog.Logger
	migrations map[string][]migration
}

// Open creates the data directory if needed and returns a store.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return &Store{
		dir:        dir,
		log:        log,
		migrations: make(map[string][]migration),
	}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// RegisterMigration adds a step that rewrites key's payload from schema
// version `from` to `from+1`. Unversioned legacy payloads are treated as
// version 1, so the first real migration registers from=1.
func (s *Store) RegisterMigration(key string, from int, fn MigrationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.migrations[key] = append(s.migrations[key], migration{from: from, fn: fn})
	sort.Slice(s.migrations[key], func(i, j int) bool {
		return s.migrations[key][i].from < s.migrations[key][j].from
	})
}

// currentVersion is 1 plus the highest registered migration source.
func (s *Store) currentVersion(key string) int {
	version := 1
	for _, m := range s.migrations[key] {
		if m.from+1 > version {
			version = m.from + 1
		}
	}
	return version
}

// Get reads key into out. The bool reports whether a usable value existed.
// A malformed file is logged and reported as absent rather than failing the
// load: every collection degrades to empty.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return false, nil
	}

	version, data := s.unwrap(key, raw)

	migrated, version, err := s.migrate(key, version, data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Migration failed, treating value as empty")
		return false, nil
	}

	if err := json.Unmarshal(migrated, out); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt value, treating as empty")
		return false, nil
	}

	// Persist the rewrapped payload so migrations run once.
	if version != s.versionOf(raw) {
		if err := s.write(key, envelope{SchemaVersion: version, Data: migrated}); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to persist migrated value")
		}
	}

	return true, nil
}

// Put wraps v at the current schema version and writes it atomically.
func (s *Store) Put(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.write(key, envelope{SchemaVersion: s.currentVersion(key), Data: data})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// unwrap extracts (version, payload) from a raw file. Three shapes exist in
// the wild: the envelope, a bare JSON payload from pre-envelope releases,
// and a plain unquoted string from the earliest releases.
func (s *Store) unwrap(key string, raw []byte) (int, json.RawMessage) {
	var p probe
	if err := json.Unmarshal(raw, &p); err == nil && p.SchemaVersion != nil && p.Data != nil {
		return *p.SchemaVersion, p.Data
	}
	if json.Valid(raw) {
		return 1, json.RawMessage(raw)
	}
	quoted, err := json.Marshal(strings.TrimSpace(string(raw)))
	if err != nil {
		return 1, json.RawMessage("null")
	}
	s.log.Info().Str("key", key).Msg("Wrapping legacy plain-string value")
	return 1, json.RawMessage(quoted)
}

// versionOf reports the version a raw file was stored at, or 0 when it was
// not in envelope form.
func (s *Store) versionOf(raw []byte) int {
	var p probe
	if err := json.Unmarshal(raw, &p); err == nil && p.SchemaVersion != nil {
		return *p.SchemaVersion
	}
	return 0
}

// migrate runs the registered chain from version up to current.
func (s *Store) migrate(key string, version int, data json.RawMessage) (json.RawMessage, int, error) {
	for _, m := range s.migrations[key] {
		if m.from < version {
			continue
		}
		if m.from > version {
			return nil, 0, fmt.Errorf("migration gap for %s: at version %d, next step is from %d", key, version, m.from)
		}
		next, err := m.fn(data)
		if err != nil {
			return nil, 0, fmt.Errorf("migrate %s from v%d: %w", key, m.from, err)
		}
		data = next
		version = m.from + 1
	}
	return data, version, nil
}

// write performs an atomic temp-file-and-rename write.
func (s *Store) write(key string, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", key, err)
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp for %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

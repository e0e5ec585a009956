// Package backup runs scheduled snapshot exports to a pluggable target.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/storage"
)

// Frequency gates how often an automatic backup fires.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Never   Frequency = "never"
)

// minDays is the elapsed-days gate per frequency.
var minDays = map[Frequency]int{
	Daily:   1,
	Weekly:  7,
	Monthly: 30,
}

// checkInterval is how often the loop re-evaluates the gate.
const checkInterval = time.Hour

// Target stores one named backup document.
type Target interface {
	Store(ctx context.Context, name string, data []byte) error
}

// Source produces the backup document.
type Source func(now time.Time) ([]byte, error)

// Scheduler owns the auto-backup settings and the run loop. Settings
// persist across restarts.
type Scheduler struct {
	mu      sync.Mutex
	storage *storage.Store
	log     zerolog.Logger
	target  Target
	source  Source

	enabled    bool
	frequency  Frequency
	lastBackup time.Time
}

// NewScheduler loads the persisted settings. Frequency defaults to weekly,
// enabled to off.
func NewScheduler(st *storage.Store, log zerolog.Logger, target Target, source Source) (*Scheduler, error) {
	s := &Scheduler{storage: st, log: log, target: target, source: source, frequency: Weekly}

	if _, err := st.Get(storage.KeyAutoBackupEnabled, &s.enabled); err != nil {
		return nil, fmt.Errorf("load backup flag: %w", err)
	}
	var freq Frequency
	if found, err := st.Get(storage.KeyAutoBackupFrequency, &freq); err != nil {
		return nil, fmt.Errorf("load backup frequency: %w", err)
	} else if found && minDaysKnown(freq) {
		s.frequency = freq
	}
	if _, err := st.Get(storage.KeyLastBackup, &s.lastBackup); err != nil {
		return nil, fmt.Errorf("load last backup time: %w", err)
	}
	return s, nil
}

func minDaysKnown(f Frequency) bool {
	_, ok := minDays[f]
	return ok || f == Never
}

// Enabled reports whether automatic backups are on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled flips and persists the auto-backup flag.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.persist(storage.KeyAutoBackupEnabled, enabled)
}

// Frequency returns the configured cadence.
func (s *Scheduler) Frequency() Frequency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// SetFrequency persists a new cadence. Unknown values are rejected.
func (s *Scheduler) SetFrequency(f Frequency) error {
	if !minDaysKnown(f) {
		return fmt.Errorf("unknown backup frequency %q", f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = f
	s.persist(storage.KeyAutoBackupFrequency, f)
	return nil
}

// LastBackup returns when the last successful backup ran.
func (s *Scheduler) LastBackup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBackup
}

// ShouldBackup reports whether enough days elapsed since the last backup
// for the configured frequency. A never-backed-up store is always due.
func (s *Scheduler) ShouldBackup(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.frequency == Never {
		return false
	}
	if s.lastBackup.IsZero() {
		return true
	}
	elapsed := int(now.Sub(s.lastBackup).Hours() / 24)
	return elapsed >= minDays[s.frequency]
}

// RunOnce performs one backup immediately, regardless of the gate.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	data, err := s.source(now)
	if err != nil {
		return fmt.Errorf("serialize backup: %w", err)
	}

	name := fmt.Sprintf("devfinance_auto_backup_%s.json", now.Format("2006-01-02"))
	if err := s.target.Store(ctx, name, data); err != nil {
		return fmt.Errorf("store backup %s: %w", name, err)
	}

	s.mu.Lock()
	s.lastBackup = now
	s.persist(storage.KeyLastBackup, now)
	s.mu.Unlock()

	s.log.Info().Str("object", name).Int("bytes", len(data)).Msg("Backup stored")
	return nil
}

// Start runs the backup loop until the context ends, re-checking the gate
// every hour.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	s.log.Info().Str("frequency", string(s.Frequency())).Msg("Backup scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Backup scheduler stopped")
			return
		case now := <-ticker.C:
			if !s.ShouldBackup(now) {
				continue
			}
			if err := s.RunOnce(ctx, now); err != nil {
				s.log.Error().Err(err).Msg("Scheduled backup failed")
			}
		}
	}
}

func (s *Scheduler) persist(key string, v interface{}) {
	if err := s.storage.Put(key, v); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Failed to persist backup setting")
	}
}

// LocalDirTarget writes backups into a directory.
type LocalDirTarget struct {
	dir string
}

// NewLocalDirTarget creates the directory if needed.
func NewLocalDirTarget(dir string) (*LocalDirTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %q: %w", dir, err)
	}
	return &LocalDirTarget{dir: dir}, nil
}

// Store implements Target.
func (t *LocalDirTarget) Store(_ context.Context, name string, data []byte) error {
	return os.WriteFile(filepath.Join(t.dir, name), data, 0o644)
}

// GCSTarget uploads backups to a Cloud Storage bucket.
type GCSTarget struct {
	client *gcs.Client
	bucket string
}

// NewGCSTarget connects using ambient credentials.
func NewGCSTarget(ctx context.Context, bucket string) (*GCSTarget, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSTarget{client: client, bucket: bucket}, nil
}

// Store implements Target.
func (t *GCSTarget) Store(ctx context.Context, name string, data []byte) error {
	w := t.client.Bucket(t.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", t.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", t.bucket, name, err)
	}
	return nil
}

// Close releases the GCS client.
func (t *GCSTarget) Close() error {
	return t.client.Close()
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
)

// snapshotFile is the on-disk shape of a persisted active set.
type snapshotFile struct {
	GeneratedAt time.Time      `json:"generated_at"`
	AlertCount  int            `json:"alert_count"`
	Alerts      []domain.Alert `json:"alerts"`
}

// Save writes the active set as a JSON snapshot, atomically via a temp file.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	file := snapshotFile{
		GeneratedAt: s.clock.Now().UTC(),
		Alerts:      s.snapshotLocked(),
	}
	s.mu.Unlock()
	file.AlertCount = len(file.Alerts)

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Restore loads a snapshot written by Save, skipping alerts that expired
// while the process was down. A missing file restores nothing.
func (s *Store) Restore(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	restored := 0
	for i := range file.Alerts {
		a := file.Alerts[i]
		if a.IsExpired(now) {
			continue
		}
		if _, ok := s.alerts[a.ProductID]; ok {
			continue
		}
		cp := a
		s.alerts[cp.ProductID] = &cp
		if cp.VTEC != nil {
			s.byEvent[cp.VTEC.Key()] = cp.ProductID
		}
		s.pushExpiry(&cp)
		s.emitLocked(EventNew, &cp, "")
		restored++
	}
	return restored, nil
}

func (s *Store) persist() {
	if err := s.Save(s.persistPath); err != nil {
		s.logger.Error("persisting snapshot failed", "error", err)
	}
}

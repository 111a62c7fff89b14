/*
 * This file is part of gi-talker (https://github.com/lickelon/gi-talker).
 * Copyright (C) 2025 gi-talker contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package prefs persists per-user speaker overrides across restarts.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/logging"
)

// userRecord is one user's stored preferences. Extra fields survive a
// round trip so newer versions can add settings without breaking readers.
type userRecord struct {
	Speaker string `json:"speaker,omitempty"`
}

// Store is a write-through per-user preference file. Every mutation
// rewrites the whole file; mutations are serialized by an internal mutex
// so concurrent commands for different users cannot drop each other's
// writes.
type Store struct {
	path string

	mu   sync.Mutex
	data map[string]userRecord
}

// Open loads the preference file at path, creating parent directories as
// needed. A missing or corrupt file yields an empty store: losing a
// convenience setting is preferred over failing startup.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory: %w", err)
	}

	s := &Store{
		path: path,
		data: make(map[string]userRecord),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read preferences: %w", err)
		}
		return s, nil
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		logging.LogWarn("Preference file is corrupt, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		s.data = make(map[string]userRecord)
	}

	return s, nil
}

// GetSpeaker returns the user's stored speaker name, or "" when none is
// set.
func (s *Store) GetSpeaker(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[userID].Speaker
}

// SetSpeaker upserts the user's speaker and persists immediately.
func (s *Store) SetSpeaker(userID, speaker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.data[userID]
	record.Speaker = speaker
	s.data[userID] = record

	return s.saveLocked()
}

// ClearSpeaker removes the user's override and persists immediately.
// Returns false when there was nothing to clear.
func (s *Store) ClearSpeaker(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[userID]
	if !ok || record.Speaker == "" {
		return false, nil
	}

	delete(s.data, userID)
	if err := s.saveLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// saveLocked rewrites the backing file in full. Must be called with the
// mutex held. The write goes through a temp file and rename so a crash
// mid-write cannot corrupt the store.
func (s *Store) saveLocked() error {
	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

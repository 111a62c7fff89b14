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

package tts

import (
	"strings"
	"sync"
)

// MockEngine is an in-memory Engine for tests. It applies the same
// speaker resolution rules as the real backends against a fixed catalog
// and returns a short silent waveform.
type MockEngine struct {
	Catalog        SpeakerCatalog
	SampleRate     int
	DefaultSpeaker string
	LoadErr        error
	SynthesizeErr  error

	mu         sync.Mutex
	loadCalls  int
	synthCalls []SynthesisRequest
}

// NewMockEngine creates a mock with a tiny default catalog.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Catalog:    SpeakerCatalog{"Alice": 0, "Bob": 1},
		SampleRate: 24000,
	}
}

func (m *MockEngine) Load() error {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()
	return m.LoadErr
}

func (m *MockEngine) AvailableSpeakers() (SpeakerCatalog, error) {
	if err := m.Load(); err != nil {
		return nil, err
	}
	if len(m.Catalog) == 0 {
		return nil, ErrBackendUnavailable
	}
	return m.Catalog, nil
}

func (m *MockEngine) Synthesize(req SynthesisRequest) (*SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if err := m.Load(); err != nil {
		return nil, err
	}

	if _, err := resolveSpeaker(req, m.Catalog, m.DefaultSpeaker, false); err != nil {
		return nil, err
	}

	if m.SynthesizeErr != nil {
		return nil, m.SynthesizeErr
	}

	m.mu.Lock()
	m.synthCalls = append(m.synthCalls, req)
	m.mu.Unlock()

	// 100 ms of silence.
	return &SynthesisResult{
		PCM:        make([]byte, m.SampleRate/10*2),
		SampleRate: m.SampleRate,
	}, nil
}

func (m *MockEngine) Close() error {
	return nil
}

// LoadCalls reports how many times Load ran.
func (m *MockEngine) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// SynthesizeCalls returns every request that reached inference.
func (m *MockEngine) SynthesizeCalls() []SynthesisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SynthesisRequest(nil), m.synthCalls...)
}

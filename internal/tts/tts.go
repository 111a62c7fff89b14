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

// Package tts turns text into playback-ready PCM audio behind a single
// Engine contract. Two backends implement it: a Kokoro ONNX model run
// in-process and a MeloTTS inference subprocess.
package tts

import "sort"

// SpeakerCatalog maps speaker display names to backend-internal ids.
type SpeakerCatalog map[string]int

// Names returns the catalog's speaker names in sorted order.
func (c SpeakerCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SynthesisRequest describes one synthesis call. Nil optional fields fall
// back to the engine's configured defaults.
type SynthesisRequest struct {
	Text      string
	Speaker   string // Speaker display name; empty means unspecified
	SpeakerID *int   // Raw backend speaker id; wins over Speaker when set
	Speed     *float64

	// Backend-specific quality parameters, passed through after a range
	// check. The Kokoro backend ignores them.
	SDPRatio    *float64
	NoiseScale  *float64
	NoiseScaleW *float64
}

// SynthesisResult is one complete synthesized utterance: raw 16-bit signed
// little-endian mono PCM plus its sample rate. Ownership passes to the
// caller; the engine keeps no reference.
type SynthesisResult struct {
	PCM        []byte
	SampleRate int
}

// Engine is the contract shared by all TTS backends.
type Engine interface {
	// Load performs lazy one-time initialization of backend model state.
	// Safe to call concurrently; only one caller performs the actual load.
	Load() error

	// AvailableSpeakers returns the speaker catalog, loading the backend
	// first if needed. The catalog is non-empty on success.
	AvailableSpeakers() (SpeakerCatalog, error)

	// Synthesize resolves the request against the engine's defaults and
	// produces a complete waveform. Validation errors are returned before
	// any inference runs.
	Synthesize(req SynthesisRequest) (*SynthesisResult, error)

	// Close releases backend resources.
	Close() error
}

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
	"encoding/base64"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lickelon/gi-talker/internal/config"
)

func writeSpeakersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speakers.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func encodeSamples(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// newTestMeloEngine builds a Melo engine whose inference subprocess is
// replaced with a fake returning 100 ms of silence at 44.1 kHz.
func newTestMeloEngine(t *testing.T, defaults config.EngineConfig, meloCfg config.MeloConfig) (*MeloEngine, *atomic.Int32) {
	t.Helper()

	if meloCfg.Command == "" {
		meloCfg.Command = "true" // resolvable on any PATH
	}
	if meloCfg.SpeakersPath == "" {
		meloCfg.SpeakersPath = writeSpeakersFile(t, `{"Alice": 0, "Bob": 1}`)
	}

	engine, err := NewMeloEngine(meloCfg, defaults)
	require.NoError(t, err)

	var inferCalls atomic.Int32
	engine.run = func(req meloRequest) (*meloResponse, error) {
		inferCalls.Add(1)
		return &meloResponse{
			SamplesBase64: encodeSamples(make([]float32, 4410)),
			SampleRate:    44100,
		}, nil
	}
	return engine, &inferCalls
}

func TestMeloEngine_Synthesize(t *testing.T) {
	t.Run("request resolves against catalog", func(t *testing.T) {
		engine, _ := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		var captured meloRequest
		engine.run = func(req meloRequest) (*meloResponse, error) {
			captured = req
			return &meloResponse{
				SamplesBase64: encodeSamples(make([]float32, 4410)),
				SampleRate:    44100,
			}, nil
		}

		result, err := engine.Synthesize(SynthesisRequest{
			Text:    "hello",
			Speaker: "Alice",
			Speed:   floatPtr(1.0),
		})
		require.NoError(t, err)

		assert.Equal(t, 0, captured.SpeakerID)
		assert.Equal(t, 1.0, captured.Speed)
		assert.Equal(t, 44100, result.SampleRate)
		assert.NotEmpty(t, result.PCM)
	})

	t.Run("no speaker and no default fails before inference", func(t *testing.T) {
		engine, inferCalls := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrNoSpeakerConfigured)
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("unknown speaker lists available names", func(t *testing.T) {
		engine, inferCalls := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello", Speaker: "Mallory"})

		var unknown *UnknownSpeakerError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "Mallory", unknown.Speaker)
		assert.Equal(t, []string{"Alice", "Bob"}, unknown.Available)
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("numeric speaker name is a raw id", func(t *testing.T) {
		engine, _ := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		var captured meloRequest
		engine.run = func(req meloRequest) (*meloResponse, error) {
			captured = req
			return &meloResponse{
				SamplesBase64: encodeSamples(make([]float32, 441)),
				SampleRate:    44100,
			}, nil
		}

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello", Speaker: "5"})
		require.NoError(t, err)
		assert.Equal(t, 5, captured.SpeakerID)
	})

	t.Run("non-positive speed rejected before inference", func(t *testing.T) {
		engine, inferCalls := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		for _, speed := range []float64{0, -0.5} {
			_, err := engine.Synthesize(SynthesisRequest{
				Text:    "hello",
				Speaker: "Alice",
				Speed:   floatPtr(speed),
			})

			var invalid *InvalidParameterError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "speed", invalid.Name)
		}
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("quality params pass through with overrides", func(t *testing.T) {
		engine, _ := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{
			SDPRatio:    0.2,
			NoiseScale:  0.6,
			NoiseScaleW: 0.8,
		})

		var captured meloRequest
		engine.run = func(req meloRequest) (*meloResponse, error) {
			captured = req
			return &meloResponse{
				SamplesBase64: encodeSamples(make([]float32, 441)),
				SampleRate:    44100,
			}, nil
		}

		_, err := engine.Synthesize(SynthesisRequest{
			Text:     "hello",
			Speaker:  "Alice",
			SDPRatio: floatPtr(0.5),
		})
		require.NoError(t, err)

		assert.Equal(t, 0.5, captured.SDPRatio)   // request override
		assert.Equal(t, 0.6, captured.NoiseScale) // engine default
		assert.Equal(t, 0.8, captured.NoiseScaleW)
	})

	t.Run("out-of-range quality param rejected", func(t *testing.T) {
		engine, inferCalls := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{
			NoiseScale: 0.6, NoiseScaleW: 0.8,
		})

		_, err := engine.Synthesize(SynthesisRequest{
			Text:     "hello",
			Speaker:  "Alice",
			SDPRatio: floatPtr(1.5),
		})

		var invalid *InvalidParameterError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "sdp_ratio", invalid.Name)
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("empty text rejected", func(t *testing.T) {
		engine, _ := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{})

		_, err := engine.Synthesize(SynthesisRequest{Text: "   "})
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("configured default id used only without names", func(t *testing.T) {
		engine, _ := newTestMeloEngine(t, config.EngineConfig{DefaultSpeed: 1.0}, config.MeloConfig{
			DefaultSpeakerID: intPtr(1),
			NoiseScale:       0.6,
			NoiseScaleW:      0.8,
		})

		var captured meloRequest
		engine.run = func(req meloRequest) (*meloResponse, error) {
			captured = req
			return &meloResponse{
				SamplesBase64: encodeSamples(make([]float32, 441)),
				SampleRate:    44100,
			}, nil
		}

		// No speaker anywhere: the configured id applies.
		_, err := engine.Synthesize(SynthesisRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, 1, captured.SpeakerID)

		// A name-based request drops the configured id.
		_, err = engine.Synthesize(SynthesisRequest{Text: "hello", Speaker: "Alice"})
		require.NoError(t, err)
		assert.Equal(t, 0, captured.SpeakerID)
	})
}

func TestMeloEngine_Load(t *testing.T) {
	t.Run("missing speakers file", func(t *testing.T) {
		engine, err := NewMeloEngine(config.MeloConfig{
			Command:      "true",
			SpeakersPath: filepath.Join(t.TempDir(), "nope.json"),
		}, config.EngineConfig{DefaultSpeed: 1.0})
		require.NoError(t, err)

		assert.ErrorIs(t, engine.Load(), ErrMissingArtifact)
	})

	t.Run("missing inference command", func(t *testing.T) {
		engine, err := NewMeloEngine(config.MeloConfig{
			Command:      "definitely-not-a-real-binary-4141",
			SpeakersPath: writeSpeakersFile(t, `{"Alice": 0}`),
		}, config.EngineConfig{DefaultSpeed: 1.0})
		require.NoError(t, err)

		assert.ErrorIs(t, engine.Load(), ErrMissingArtifact)
	})

	t.Run("empty catalog", func(t *testing.T) {
		engine, err := NewMeloEngine(config.MeloConfig{
			Command:      "true",
			SpeakersPath: writeSpeakersFile(t, `{}`),
		}, config.EngineConfig{DefaultSpeed: 1.0})
		require.NoError(t, err)

		assert.ErrorIs(t, engine.Load(), ErrBackendUnavailable)
	})

	t.Run("concurrent load is idempotent", func(t *testing.T) {
		path := writeSpeakersFile(t, `{"Alice": 0, "Bob": 1}`)
		engine, err := NewMeloEngine(config.MeloConfig{
			Command:      "true",
			SpeakersPath: path,
		}, config.EngineConfig{DefaultSpeed: 1.0})
		require.NoError(t, err)

		const callers = 16
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = engine.Load()
			}(i)
		}
		wg.Wait()

		// The catalog must survive the file disappearing: it was read once.
		require.NoError(t, os.Remove(path))

		for i := 0; i < callers; i++ {
			assert.NoError(t, errs[i])
		}

		catalog, err := engine.AvailableSpeakers()
		require.NoError(t, err)
		assert.Equal(t, SpeakerCatalog{"Alice": 0, "Bob": 1}, catalog)
	})
}

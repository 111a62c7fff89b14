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
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
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

// npyBytes serializes a float32 array the way numpy does, shaped
// (frames, 1, width).
func npyBytes(frames, width int, fill float32) []byte {
	var buf bytes.Buffer
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, 1, %d), }\n", frames, width)

	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(header)))
	buf.Write(lenBytes)
	buf.WriteString(header)

	sample := make([]byte, 4)
	binary.LittleEndian.PutUint32(sample, math.Float32bits(fill))
	for i := 0; i < frames*width; i++ {
		buf.Write(sample)
	}
	return buf.Bytes()
}

func writeVoicesArchive(t *testing.T, dir string, voices ...string) string {
	t.Helper()

	path := filepath.Join(dir, "voices.bin")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	archive := zip.NewWriter(file)
	for _, voice := range voices {
		entry, err := archive.Create(voice + ".npy")
		require.NoError(t, err)
		_, err = entry.Write(npyBytes(8, 4, 0.25))
		require.NoError(t, err)
	}
	require.NoError(t, archive.Close())
	return path
}

// newTestKokoroEngine builds a Kokoro engine with a real voices archive
// but a fake ONNX session and inference function.
func newTestKokoroEngine(t *testing.T, defaults config.EngineConfig) (*KokoroEngine, *atomic.Int32) {
	t.Helper()

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))

	engine := NewKokoroEngine(config.KokoroConfig{
		ModelPath:  modelPath,
		VoicesPath: writeVoicesArchive(t, dir, "af_bella", "am_adam"),
	}, defaults)

	engine.createSession = func() error { return nil }

	var inferCalls atomic.Int32
	engine.infer = func(tokens []int64, style []float32, speed float32) ([]float32, error) {
		inferCalls.Add(1)
		return make([]float32, 2400), nil
	}
	return engine, &inferCalls
}

func TestKokoroEngine_AvailableSpeakers(t *testing.T) {
	engine, _ := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

	catalog, err := engine.AvailableSpeakers()
	require.NoError(t, err)

	// Ids are positions in the sorted name list.
	assert.Equal(t, SpeakerCatalog{"af_bella": 0, "am_adam": 1}, catalog)
}

func TestKokoroEngine_Synthesize(t *testing.T) {
	t.Run("named voice produces audio", func(t *testing.T) {
		engine, _ := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		var gotStyle []float32
		engine.infer = func(tokens []int64, style []float32, speed float32) ([]float32, error) {
			gotStyle = style
			return make([]float32, 2400), nil
		}

		result, err := engine.Synthesize(SynthesisRequest{Text: "hello", Speaker: "af_bella"})
		require.NoError(t, err)

		assert.Equal(t, kokoroSampleRate, result.SampleRate)
		assert.NotEmpty(t, result.PCM)
		assert.Len(t, gotStyle, 4) // one style frame
	})

	t.Run("positional id maps back to a voice", func(t *testing.T) {
		engine, inferCalls := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello", SpeakerID: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, int32(1), inferCalls.Load())

		_, err = engine.Synthesize(SynthesisRequest{Text: "hello", SpeakerID: intPtr(9)})
		var unknown *UnknownSpeakerError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, int32(1), inferCalls.Load())
	})

	t.Run("speed outside accepted range", func(t *testing.T) {
		engine, inferCalls := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		for _, speed := range []float64{0.4, 2.1, -1} {
			_, err := engine.Synthesize(SynthesisRequest{
				Text:    "hello",
				Speaker: "af_bella",
				Speed:   floatPtr(speed),
			})

			var invalid *InvalidParameterError
			require.ErrorAs(t, err, &invalid, "speed %v", speed)
		}
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("no speaker and no default", func(t *testing.T) {
		engine, inferCalls := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrNoSpeakerConfigured)
		assert.Zero(t, inferCalls.Load())
	})

	t.Run("default speaker applies", func(t *testing.T) {
		engine, _ := newTestKokoroEngine(t, config.EngineConfig{
			DefaultSpeaker: "am_adam",
			DefaultSpeed:   1.0,
		})

		result, err := engine.Synthesize(SynthesisRequest{Text: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.PCM)
	})

	t.Run("inference failure wraps cause", func(t *testing.T) {
		engine, _ := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		cause := fmt.Errorf("ort: bad graph")
		engine.infer = func([]int64, []float32, float32) ([]float32, error) {
			return nil, cause
		}

		_, err := engine.Synthesize(SynthesisRequest{Text: "hello", Speaker: "af_bella"})

		var synthErr *SynthesisError
		require.ErrorAs(t, err, &synthErr)
		assert.ErrorIs(t, err, cause)
	})
}

func TestKokoroEngine_Load(t *testing.T) {
	t.Run("missing model file", func(t *testing.T) {
		dir := t.TempDir()
		engine := NewKokoroEngine(config.KokoroConfig{
			ModelPath:  filepath.Join(dir, "nope.onnx"),
			VoicesPath: writeVoicesArchive(t, dir, "af_bella"),
		}, config.EngineConfig{DefaultSpeed: 1.0})
		engine.createSession = func() error { return nil }

		assert.ErrorIs(t, engine.Load(), ErrMissingArtifact)
	})

	t.Run("empty voices archive", func(t *testing.T) {
		dir := t.TempDir()
		modelPath := filepath.Join(dir, "model.onnx")
		require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))

		engine := NewKokoroEngine(config.KokoroConfig{
			ModelPath:  modelPath,
			VoicesPath: writeVoicesArchive(t, dir),
		}, config.EngineConfig{DefaultSpeed: 1.0})
		engine.createSession = func() error { return nil }

		assert.ErrorIs(t, engine.Load(), ErrBackendUnavailable)
	})

	t.Run("concurrent load runs session setup once", func(t *testing.T) {
		engine, _ := newTestKokoroEngine(t, config.EngineConfig{DefaultSpeed: 1.0})

		var sessionCalls atomic.Int32
		engine.createSession = func() error {
			sessionCalls.Add(1)
			return nil
		}

		const callers = 16
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, engine.Load())
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), sessionCalls.Load())

		catalog, err := engine.AvailableSpeakers()
		require.NoError(t, err)
		assert.Len(t, catalog, 2)
	})
}

func TestKokoroTokenize(t *testing.T) {
	tokens := kokoroTokenize("Hi!")

	// Boundary pads on both ends, letters lowercased, all runes in the
	// inventory retained.
	require.Len(t, tokens, 5)
	assert.Equal(t, int64(0), tokens[0])
	assert.Equal(t, int64(0), tokens[len(tokens)-1])

	withUnknown := kokoroTokenize("a☃b")
	assert.Len(t, withUnknown, 4) // snowman dropped
}

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
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/config"
	"github.com/lickelon/gi-talker/internal/logging"
)

// Kokoro models emit 24 kHz mono audio.
const kokoroSampleRate = 24000

// The model clamps outside this range, so reject early instead.
var kokoroSpeedRange = floatRange{min: 0.5, max: 2.0}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initONNXRuntime initializes the shared onnxruntime environment once per
// process. ONNXRUNTIME_SHARED_LIBRARY overrides the library lookup path.
func initONNXRuntime() error {
	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// KokoroEngine runs a Kokoro-82M ONNX model in-process. One model, many
// voices: the catalog comes from the style embeddings in the voices
// archive, and ids are positions in the sorted name list.
type KokoroEngine struct {
	modelPath      string
	voicesPath     string
	defaultSpeaker string
	defaultSpeed   float64

	mu      sync.Mutex
	loaded  atomic.Bool
	catalog SpeakerCatalog
	voices  *voicePack
	session *ort.DynamicAdvancedSession

	// Replaceable in tests; default to the real ONNX session.
	createSession func() error
	infer         func(tokens []int64, style []float32, speed float32) ([]float32, error)
}

// NewKokoroEngine creates a Kokoro engine. No model state is touched until
// the first Load, AvailableSpeakers, or Synthesize call.
func NewKokoroEngine(cfg config.KokoroConfig, defaults config.EngineConfig) *KokoroEngine {
	e := &KokoroEngine{
		modelPath:      cfg.ModelPath,
		voicesPath:     cfg.VoicesPath,
		defaultSpeaker: defaults.DefaultSpeaker,
		defaultSpeed:   defaults.DefaultSpeed,
	}
	e.createSession = e.initSession
	e.infer = e.runModel
	return e
}

// initSession initializes the shared runtime and opens the model.
func (e *KokoroEngine) initSession() error {
	if err := initONNXRuntime(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(e.modelPath,
		[]string{"tokens", "style", "speed"}, []string{"audio"}, nil)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return nil
}

// Load initializes the ONNX session and voice catalog. Idempotent and safe
// under concurrent first use: the loaded flag is double-checked so exactly
// one caller performs the work while the rest wait on the mutex.
func (e *KokoroEngine) Load() error {
	if e.loaded.Load() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded.Load() {
		return nil
	}

	for _, path := range []string{e.modelPath, e.voicesPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
	}

	start := time.Now()

	voices, err := loadVoicePack(e.voicesPath)
	if err != nil {
		return fmt.Errorf("%w: %s (%v)", ErrMissingArtifact, e.voicesPath, err)
	}

	names := voices.names()
	if len(names) == 0 {
		return fmt.Errorf("%w: voices archive %s is empty", ErrBackendUnavailable, e.voicesPath)
	}

	catalog := make(SpeakerCatalog, len(names))
	for i, name := range names {
		catalog[name] = i
	}

	if err := e.createSession(); err != nil {
		return err
	}

	e.voices = voices
	e.catalog = catalog
	e.loaded.Store(true)

	logging.LogTTSOperation("model_loaded",
		zap.String("backend", "kokoro"),
		zap.String("model", e.modelPath),
		zap.Int("voices", len(names)),
		zap.Duration("load_time", time.Since(start)),
	)

	return nil
}

// AvailableSpeakers returns the voice catalog, loading the model first if
// needed.
func (e *KokoroEngine) AvailableSpeakers() (SpeakerCatalog, error) {
	if err := e.Load(); err != nil {
		return nil, err
	}

	catalog := make(SpeakerCatalog, len(e.catalog))
	for name, id := range e.catalog {
		catalog[name] = id
	}
	return catalog, nil
}

// Synthesize resolves the request and runs one inference pass.
func (e *KokoroEngine) Synthesize(req SynthesisRequest) (*SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	if err := e.Load(); err != nil {
		return nil, err
	}

	speaker, err := resolveSpeaker(req, e.catalog, e.defaultSpeaker, false)
	if err != nil {
		return nil, err
	}

	// A raw id override is positional here; map it back to a name so the
	// style lookup works.
	name := speaker.Name
	if name == "" {
		names := e.catalog.Names()
		if speaker.ID < 0 || speaker.ID >= len(names) {
			return nil, &UnknownSpeakerError{
				Speaker:   strconv.Itoa(speaker.ID),
				Available: names,
			}
		}
		name = names[speaker.ID]
	}

	speed := resolveFloat(req.Speed, e.defaultSpeed)
	if err := kokoroSpeedRange.validate("speed", speed); err != nil {
		return nil, err
	}

	tokens := kokoroTokenize(req.Text)
	style := e.voices.styleFor(name, len(tokens))

	logging.LogTTSOperation("synthesis_start",
		zap.String("backend", "kokoro"),
		zap.String("speaker", name),
		zap.Float64("speed", speed),
		zap.Int("text_length", len(req.Text)),
	)

	start := time.Now()
	samples, err := e.infer(tokens, style, float32(speed))
	if err != nil {
		logging.LogError(err, "Kokoro inference failed", zap.String("speaker", name))
		return nil, &SynthesisError{Cause: err}
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("backend", "kokoro"),
		zap.String("speaker", name),
		zap.Int("samples", len(samples)),
		zap.Duration("processing_time", time.Since(start)),
	)

	return &SynthesisResult{
		PCM:        EncodePCM(samples),
		SampleRate: kokoroSampleRate,
	}, nil
}

// Close destroys the ONNX session.
func (e *KokoroEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy ONNX session: %w", err)
		}
		e.session = nil
	}
	return nil
}

// runModel feeds one tokenized utterance through the ONNX session.
func (e *KokoroEngine) runModel(tokens []int64, style []float32, speed float32) ([]float32, error) {
	tokenTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create token tensor: %w", err)
	}
	defer tokenTensor.Destroy()

	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(style))), style)
	if err != nil {
		return nil, fmt.Errorf("failed to create style tensor: %w", err)
	}
	defer styleTensor.Destroy()

	speedTensor, err := ort.NewTensor(ort.NewShape(1), []float32{speed})
	if err != nil {
		return nil, fmt.Errorf("failed to create speed tensor: %w", err)
	}
	defer speedTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{tokenTensor, styleTensor, speedTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference run failed: %w", err)
	}

	audio, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer audio.Destroy()

	samples := make([]float32, len(audio.GetData()))
	copy(samples, audio.GetData())
	return samples, nil
}

// kokoroTokenize maps text onto the model's character vocabulary. Runes
// outside the inventory are dropped, and the sequence is padded with the
// boundary token on both ends as the model expects.
func kokoroTokenize(text string) []int64 {
	tokens := []int64{0}
	for _, r := range strings.ToLower(text) {
		if id, ok := kokoroVocab[r]; ok {
			tokens = append(tokens, id)
		}
	}
	return append(tokens, 0)
}

var kokoroVocab = buildKokoroVocab()

func buildKokoroVocab() map[rune]int64 {
	// Position in this inventory is the token id; id 0 is the boundary pad.
	const inventory = ` !"#$%&'()*+,-./0123456789:;<=>?@abcdefghijklmnopqrstuvwxyz`
	vocab := make(map[rune]int64, len(inventory))
	for i, r := range inventory {
		vocab[r] = int64(i + 1)
	}
	return vocab
}

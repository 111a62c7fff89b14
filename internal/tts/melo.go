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
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/config"
	"github.com/lickelon/gi-talker/internal/logging"
)

// Parameter ranges accepted by the MeloTTS backend. Speed only has to be
// positive; the model slows down or speeds up arbitrarily.
var (
	meloSpeedRange   = floatRange{min: 0, exclusiveMin: true}
	meloSDPRange     = floatRange{min: 0, max: 1}
	meloNoiseRange   = floatRange{min: 0, max: 5, exclusiveMin: true}
	meloInferTimeout = 60 * time.Second
)

// meloRequest is the JSON payload written to the inference process.
type meloRequest struct {
	Text        string  `json:"text"`
	SpeakerID   int     `json:"speaker_id"`
	Speed       float64 `json:"speed"`
	SDPRatio    float64 `json:"sdp_ratio"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseScaleW float64 `json:"noise_scale_w"`
}

// meloResponse is the JSON payload read back: float32 little-endian
// samples in [-1, 1], base64 encoded.
type meloResponse struct {
	SamplesBase64 string `json:"samples_base64"`
	SampleRate    int    `json:"sample_rate"`
	Error         string `json:"error,omitempty"`
}

// MeloEngine drives a MeloTTS inference subprocess: one JSON request on
// stdin, one JSON response on stdout per invocation. The speaker catalog
// comes from a JSON file next to the model, so speakers can be renamed
// without touching the checkpoint.
type MeloEngine struct {
	command          []string
	speakersPath     string
	defaultSpeaker   string
	defaultSpeakerID *int
	defaultSpeed     float64
	defaultSDPRatio  float64
	defaultNoise     float64
	defaultNoiseW    float64

	mu      sync.Mutex
	loaded  atomic.Bool
	catalog SpeakerCatalog

	// Replaceable in tests; defaults to runProcess.
	run func(req meloRequest) (*meloResponse, error)
}

// NewMeloEngine creates a Melo engine. The inference command line is
// parsed up front so a malformed configuration fails fast; model state is
// not touched until first use.
func NewMeloEngine(cfg config.MeloConfig, defaults config.EngineConfig) (*MeloEngine, error) {
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse melo command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("melo command is empty")
	}

	e := &MeloEngine{
		command:          args,
		speakersPath:     cfg.SpeakersPath,
		defaultSpeaker:   defaults.DefaultSpeaker,
		defaultSpeakerID: cfg.DefaultSpeakerID,
		defaultSpeed:     defaults.DefaultSpeed,
		defaultSDPRatio:  cfg.SDPRatio,
		defaultNoise:     cfg.NoiseScale,
		defaultNoiseW:    cfg.NoiseScaleW,
	}
	e.run = e.runProcess
	return e, nil
}

// Load resolves the inference binary and reads the speaker catalog.
// Double-checked so concurrent first use performs the work exactly once.
func (e *MeloEngine) Load() error {
	if e.loaded.Load() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded.Load() {
		return nil
	}

	if _, err := exec.LookPath(e.command[0]); err != nil {
		return fmt.Errorf("%w: inference command %q not found", ErrMissingArtifact, e.command[0])
	}

	raw, err := os.ReadFile(e.speakersPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingArtifact, e.speakersPath)
	}

	var catalog SpeakerCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("%w: malformed speaker catalog %s (%v)", ErrBackendUnavailable, e.speakersPath, err)
	}
	if len(catalog) == 0 {
		return fmt.Errorf("%w: speaker catalog %s is empty", ErrBackendUnavailable, e.speakersPath)
	}

	e.catalog = catalog
	e.loaded.Store(true)

	logging.LogTTSOperation("model_loaded",
		zap.String("backend", "melo"),
		zap.String("command", e.command[0]),
		zap.Int("speakers", len(catalog)),
	)

	return nil
}

// AvailableSpeakers returns the speaker catalog, loading it first if
// needed.
func (e *MeloEngine) AvailableSpeakers() (SpeakerCatalog, error) {
	if err := e.Load(); err != nil {
		return nil, err
	}

	catalog := make(SpeakerCatalog, len(e.catalog))
	for name, id := range e.catalog {
		catalog[name] = id
	}
	return catalog, nil
}

// Synthesize resolves the request and invokes the inference process.
func (e *MeloEngine) Synthesize(req SynthesisRequest) (*SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	if err := e.Load(); err != nil {
		return nil, err
	}

	// Engine-level default id applies only when no name resolves; a
	// name-based request or default always wins over the configured id.
	effective := req
	if effective.SpeakerID == nil && effective.Speaker == "" && e.defaultSpeaker == "" {
		effective.SpeakerID = e.defaultSpeakerID
	}

	speaker, err := resolveSpeaker(effective, e.catalog, e.defaultSpeaker, true)
	if err != nil {
		return nil, err
	}

	speed := resolveFloat(req.Speed, e.defaultSpeed)
	if err := meloSpeedRange.validate("speed", speed); err != nil {
		return nil, err
	}

	sdpRatio := resolveFloat(req.SDPRatio, e.defaultSDPRatio)
	if err := meloSDPRange.validate("sdp_ratio", sdpRatio); err != nil {
		return nil, err
	}

	noiseScale := resolveFloat(req.NoiseScale, e.defaultNoise)
	if err := meloNoiseRange.validate("noise_scale", noiseScale); err != nil {
		return nil, err
	}

	noiseScaleW := resolveFloat(req.NoiseScaleW, e.defaultNoiseW)
	if err := meloNoiseRange.validate("noise_scale_w", noiseScaleW); err != nil {
		return nil, err
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("backend", "melo"),
		zap.String("speaker", speaker.Name),
		zap.Int("speaker_id", speaker.ID),
		zap.Float64("speed", speed),
		zap.Int("text_length", len(req.Text)),
	)

	start := time.Now()
	response, err := e.run(meloRequest{
		Text:        req.Text,
		SpeakerID:   speaker.ID,
		Speed:       speed,
		SDPRatio:    sdpRatio,
		NoiseScale:  noiseScale,
		NoiseScaleW: noiseScaleW,
	})
	if err != nil {
		logging.LogError(err, "Melo inference failed", zap.Int("speaker_id", speaker.ID))
		return nil, &SynthesisError{Cause: err}
	}

	samples, err := decodeFloat32Samples(response.SamplesBase64)
	if err != nil {
		return nil, &SynthesisError{Cause: fmt.Errorf("malformed inference output: %w", err)}
	}
	if response.SampleRate <= 0 {
		return nil, &SynthesisError{Cause: fmt.Errorf("inference reported sample rate %d", response.SampleRate)}
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("backend", "melo"),
		zap.Int("speaker_id", speaker.ID),
		zap.Int("samples", len(samples)),
		zap.Duration("processing_time", time.Since(start)),
	)

	return &SynthesisResult{
		PCM:        EncodePCM(samples),
		SampleRate: response.SampleRate,
	}, nil
}

// Close is a no-op; each inference runs in its own short-lived process.
func (e *MeloEngine) Close() error {
	return nil
}

// runProcess performs one inference round trip with the subprocess.
func (e *MeloEngine) runProcess(req meloRequest) (*meloResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	cmd := exec.Command(e.command[0], e.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start inference process: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("inference process failed: %w (stderr: %s)",
				err, strings.TrimSpace(stderr.String()))
		}
	case <-time.After(meloInferTimeout):
		_ = cmd.Process.Kill()
		<-done
		return nil, fmt.Errorf("inference process timed out after %s", meloInferTimeout)
	}

	var response meloResponse
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("inference reported: %s", response.Error)
	}

	return &response, nil
}

// decodeFloat32Samples unpacks base64-encoded little-endian float32
// samples.
func decodeFloat32Samples(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("bad base64 payload: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("sample payload length %d is not float32 aligned", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

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

// Package bot wires the Discord gateway, slash commands, and the speak
// request pipeline together.
package bot

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/events"
	"github.com/lickelon/gi-talker/internal/logging"
	"github.com/lickelon/gi-talker/internal/prefs"
	"github.com/lickelon/gi-talker/internal/tts"
	"github.com/lickelon/gi-talker/internal/voice"
)

// ErrNoChannelAvailable means the caller is not in a voice channel and
// no fallback channel is configured.
var ErrNoChannelAvailable = errors.New("no voice channel available")

// Player plays one complete PCM buffer, blocking until it finishes.
// Satisfied by *voice.Session.
type Player interface {
	Play(pcm []byte, sampleRate int) error
}

// SessionProvider returns a live playback session for a guild and
// channel, connecting or rebinding as needed.
type SessionProvider func(guildID, channelID string) (Player, error)

// ChannelResolver reports the voice channel the user currently sits in,
// or empty when they are not in voice.
type ChannelResolver func(guildID, userID string) string

// EventRecorder persists playback history. A nil recorder disables
// history without affecting the speak path.
type EventRecorder interface {
	Insert(event *events.PlaybackEvent) error
}

// Orchestrator turns a speak command into synthesized audio on a voice
// connection: channel resolution, preference lookup, synthesis, then
// playback.
type Orchestrator struct {
	engine  tts.Engine
	backend string
	prefs   *prefs.Store

	sessions    SessionProvider
	userChannel ChannelResolver
	recorder    EventRecorder

	defaultChannelID string
	defaultSpeaker   string
}

// NewOrchestrator wires the speak pipeline. recorder may be nil.
func NewOrchestrator(engine tts.Engine, backend string, store *prefs.Store,
	sessions SessionProvider, userChannel ChannelResolver, recorder EventRecorder,
	defaultChannelID, defaultSpeaker string) *Orchestrator {
	return &Orchestrator{
		engine:           engine,
		backend:          backend,
		prefs:            store,
		sessions:         sessions,
		userChannel:      userChannel,
		recorder:         recorder,
		defaultChannelID: defaultChannelID,
		defaultSpeaker:   defaultSpeaker,
	}
}

// SpeakResult reports what a successful speak did, for the user-facing
// reply.
type SpeakResult struct {
	Speaker string
	// ClearedStale holds a preferred speaker name that was dropped
	// because it no longer exists in the catalog.
	ClearedStale string
}

// ResolveChannel picks the target voice channel: the caller's current
// channel, else the configured default.
func (o *Orchestrator) ResolveChannel(guildID, userID string) (string, error) {
	if channelID := o.userChannel(guildID, userID); channelID != "" {
		return channelID, nil
	}
	if o.defaultChannelID != "" {
		return o.defaultChannelID, nil
	}
	return "", ErrNoChannelAvailable
}

// Speak runs the full pipeline for one command. All validation and
// backend errors come back to the caller for a user-visible reply;
// nothing is retried.
func (o *Orchestrator) Speak(guildID, userID, text string) (*SpeakResult, error) {
	channelID, err := o.ResolveChannel(guildID, userID)
	if err != nil {
		return nil, err
	}

	event := events.NewPlaybackEvent(guildID, channelID, userID)

	session, err := o.sessions(guildID, channelID)
	if err != nil {
		o.record(event, err)
		return nil, err
	}

	speaker, clearedStale, err := o.resolveSpeaker(userID)
	if err != nil {
		o.record(event, err)
		return nil, err
	}

	// Name only. A name-based preference must go through catalog
	// lookup, so no numeric id override is attached here.
	req := tts.SynthesisRequest{
		Text:    text,
		Speaker: speaker,
	}

	result, err := o.engine.Synthesize(req)
	if err != nil {
		o.record(event, err)
		return nil, err
	}

	spoken := speaker
	if spoken == "" {
		spoken = o.defaultSpeaker
	}
	event.SetSynthesis(o.backend, spoken, len(text), result.SampleRate, len(result.PCM))

	if err := session.Play(result.PCM, result.SampleRate); err != nil {
		o.record(event, err)
		return nil, err
	}

	event.Finish()
	o.record(event, nil)

	return &SpeakResult{Speaker: spoken, ClearedStale: clearedStale}, nil
}

// resolveSpeaker looks up the caller's preferred speaker and validates
// it against the live catalog. A stale preference is cleared and the
// engine default takes over.
func (o *Orchestrator) resolveSpeaker(userID string) (speaker, clearedStale string, err error) {
	preferred := o.prefs.GetSpeaker(userID)
	if preferred == "" {
		return "", "", nil
	}

	catalog, err := o.engine.AvailableSpeakers()
	if err != nil {
		return "", "", err
	}

	if _, ok := catalog[preferred]; ok {
		return preferred, "", nil
	}

	if _, clearErr := o.prefs.ClearSpeaker(userID); clearErr != nil {
		logging.LogWarn("Failed to clear stale speaker preference",
			zap.String("user_id", userID),
			zap.Error(clearErr),
		)
	}
	logging.LogCommand("say", userID,
		zap.String("stale_speaker", preferred),
	)
	return "", preferred, nil
}

// record persists the playback event. Persistence failures are logged
// and never block the speak path.
func (o *Orchestrator) record(event *events.PlaybackEvent, cause error) {
	if cause != nil {
		event.SetError(cause)
	}
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Insert(event); err != nil {
		logging.LogError(err, "Failed to record playback event",
			zap.String("uuid", event.UUID),
		)
	}
}

// userMessage maps pipeline errors to the reply shown to the caller.
// Backend internals stay in the logs.
func userMessage(err error) string {
	var unknownSpeaker *tts.UnknownSpeakerError
	var invalidParam *tts.InvalidParameterError
	var synthesis *tts.SynthesisError
	var playback *voice.PlaybackError

	switch {
	case errors.Is(err, ErrNoChannelAvailable):
		return "Join a voice channel first, or configure a default channel."
	case errors.Is(err, tts.ErrEmptyText):
		return "There is nothing to say."
	case errors.Is(err, tts.ErrNoSpeakerConfigured):
		return "No voice is set. Pick one with /set_voice."
	case errors.As(err, &unknownSpeaker):
		return fmt.Sprintf("Unknown voice %q. Try /set_voice to pick an available one.", unknownSpeaker.Speaker)
	case errors.As(err, &invalidParam):
		return fmt.Sprintf("Invalid setting: %v.", invalidParam)
	case errors.Is(err, tts.ErrMissingArtifact), errors.Is(err, tts.ErrBackendUnavailable):
		return "The speech backend is not available right now."
	case errors.As(err, &synthesis):
		return "Speech synthesis failed. Please try again."
	case errors.As(err, &playback):
		return "Playback failed. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

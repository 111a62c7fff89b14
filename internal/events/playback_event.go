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

// Package events defines the playback history record kept for each speak
// command.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlaybackEvent captures one /say request end to end: who asked, which
// speaker was used, and how playback went.
type PlaybackEvent struct {
	UUID      string    `json:"uuid" db:"uuid"`
	GuildID   string    `json:"guild_id" db:"guild_id"`
	ChannelID string    `json:"channel_id" db:"channel_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Synthesis metadata
	Backend    string `json:"backend" db:"backend"`
	Speaker    string `json:"speaker" db:"speaker"`
	TextLength int    `json:"text_length" db:"text_length"`
	SampleRate int    `json:"sample_rate" db:"sample_rate"`

	// Playback outcome
	AudioDuration  float64 `json:"audio_duration" db:"audio_duration"`
	ProcessingTime int64   `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool    `json:"success" db:"success"`
	ErrorMessage   string  `json:"error_message,omitempty" db:"error_message"`
}

// NewPlaybackEvent creates a PlaybackEvent with a fresh UUID and the
// current timestamp.
func NewPlaybackEvent(guildID, channelID, userID string) *PlaybackEvent {
	return &PlaybackEvent{
		UUID:      uuid.NewString(),
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: time.Now(),
		Success:   true,
	}
}

// SetSynthesis records the resolved synthesis parameters and result shape.
func (e *PlaybackEvent) SetSynthesis(backend, speaker string, textLength int, sampleRate int, pcmBytes int) {
	e.Backend = backend
	e.Speaker = speaker
	e.TextLength = textLength
	e.SampleRate = sampleRate
	if sampleRate > 0 {
		// 16-bit mono PCM.
		e.AudioDuration = float64(pcmBytes/2) / float64(sampleRate)
	}
}

// SetError marks the event as failed and stamps the processing time.
func (e *PlaybackEvent) SetError(err error) {
	e.Success = false
	e.ErrorMessage = err.Error()
	e.ProcessingTime = time.Since(e.Timestamp).Milliseconds()
}

// Finish stamps the processing time on a successful event.
func (e *PlaybackEvent) Finish() {
	e.ProcessingTime = time.Since(e.Timestamp).Milliseconds()
}

// IsValid checks the fields the database schema requires.
func (e *PlaybackEvent) IsValid() error {
	if e.UUID == "" {
		return fmt.Errorf("playback event missing uuid")
	}
	if e.GuildID == "" {
		return fmt.Errorf("playback event missing guild id")
	}
	if e.UserID == "" {
		return fmt.Errorf("playback event missing user id")
	}
	return nil
}

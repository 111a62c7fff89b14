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

// Package voice owns the live voice connections and serializes audio
// playback over them.
package voice

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"layeh.com/gopus"

	"github.com/lickelon/gi-talker/internal/logging"
)

const (
	// Discord expects 48 kHz stereo Opus in 20 ms frames.
	playbackSampleRate = 48000
	playbackChannels   = 2
	frameSamples       = 960 // per channel, 20 ms at 48 kHz
	maxOpusFrameBytes  = 3840

	sendTimeout = 5 * time.Second
)

// Connection is the slice of a live voice connection the session needs.
// The production implementation wraps *discordgo.VoiceConnection.
type Connection interface {
	// Speaking toggles the speaking indicator. It must be on while
	// frames are being sent.
	Speaking(on bool) error
	// OpusSend returns the channel Opus frames are written to.
	OpusSend() chan<- []byte
	// Disconnect tears down the connection.
	Disconnect() error
}

// PlaybackError wraps a transport failure during playback.
type PlaybackError struct {
	Cause error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed: %v", e.Cause)
}

func (e *PlaybackError) Unwrap() error { return e.Cause }

// Session binds one guild to one voice channel and guarantees at most
// one in-flight playback. A second Play call on the same session blocks
// until the first finishes; there is no queueing beyond the mutex.
type Session struct {
	guildID   string
	channelID string
	conn      Connection

	playMu sync.Mutex

	// encode turns one 20 ms stereo frame into an Opus packet.
	// Replaceable in tests.
	encode func(frame []int16) ([]byte, error)
}

func newSession(guildID, channelID string, conn Connection) (*Session, error) {
	encoder, err := gopus.NewEncoder(playbackSampleRate, playbackChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &Session{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
		encode: func(frame []int16) ([]byte, error) {
			return encoder.Encode(frame, frameSamples, maxOpusFrameBytes)
		},
	}, nil
}

// ChannelID returns the voice channel this session is bound to.
func (s *Session) ChannelID() string {
	return s.channelID
}

// Play transcodes mono 16-bit PCM to 48 kHz stereo Opus and sends it
// over the connection, blocking until every frame has been handed off.
// The speaking indicator is cleared even when playback fails.
func (s *Session) Play(pcm []byte, sampleRate int) error {
	s.playMu.Lock()
	defer s.playMu.Unlock()

	if sampleRate <= 0 {
		return &PlaybackError{Cause: fmt.Errorf("invalid sample rate %d", sampleRate)}
	}

	samples := resampleToStereo48k(pcm, sampleRate)

	start := time.Now()
	logging.LogPlayback(s.guildID, "start",
		zap.String("channel_id", s.channelID),
		zap.Int("source_sample_rate", sampleRate),
		zap.Int("frames", (len(samples)+frameSamples*playbackChannels-1)/(frameSamples*playbackChannels)),
	)

	if err := s.conn.Speaking(true); err != nil {
		return &PlaybackError{Cause: fmt.Errorf("failed to set speaking state: %w", err)}
	}
	defer func() {
		if err := s.conn.Speaking(false); err != nil {
			logging.LogWarn("Failed to clear speaking state",
				zap.String("guild_id", s.guildID),
				zap.Error(err),
			)
		}
	}()

	if err := s.sendFrames(samples); err != nil {
		return err
	}

	logging.LogPlayback(s.guildID, "complete",
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Session) sendFrames(samples []int16) error {
	frameLen := frameSamples * playbackChannels
	send := s.conn.OpusSend()

	for offset := 0; offset < len(samples); offset += frameLen {
		end := offset + frameLen
		frame := make([]int16, frameLen)
		if end > len(samples) {
			// Final partial frame, zero padded.
			copy(frame, samples[offset:])
		} else {
			copy(frame, samples[offset:end])
		}

		packet, err := s.encode(frame)
		if err != nil {
			return &PlaybackError{Cause: fmt.Errorf("opus encode failed: %w", err)}
		}

		select {
		case send <- packet:
		case <-time.After(sendTimeout):
			return &PlaybackError{Cause: fmt.Errorf("timed out sending audio frame")}
		}
	}

	return nil
}

// Disconnect tears down the underlying connection. Safe to call more
// than once; the second call reports the transport's error, if any.
func (s *Session) Disconnect() error {
	logging.LogPlayback(s.guildID, "disconnect",
		zap.String("channel_id", s.channelID),
	)
	return s.conn.Disconnect()
}

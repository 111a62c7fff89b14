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

package voice

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/logging"
)

// Dialer establishes a voice connection to a channel. The production
// dialer wraps discordgo's ChannelVoiceJoin.
type Dialer func(guildID, channelID string) (Connection, error)

// Manager tracks at most one Session per guild. Sessions in different
// guilds are independent and may play concurrently.
type Manager struct {
	mu       sync.Mutex
	dial     Dialer
	sessions map[string]*Session
}

// NewManager creates a Manager that dials with the given Dialer.
func NewManager(dial Dialer) *Manager {
	return &Manager{
		dial:     dial,
		sessions: make(map[string]*Session),
	}
}

// NewDiscordManager creates a Manager that joins voice channels through
// the given discordgo session.
func NewDiscordManager(session *discordgo.Session) *Manager {
	return NewManager(func(guildID, channelID string) (Connection, error) {
		vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err != nil {
			return nil, err
		}
		return &discordConnection{vc: vc}, nil
	})
}

// discordConnection adapts *discordgo.VoiceConnection to Connection.
type discordConnection struct {
	vc *discordgo.VoiceConnection
}

func (c *discordConnection) Speaking(on bool) error  { return c.vc.Speaking(on) }
func (c *discordConnection) OpusSend() chan<- []byte { return c.vc.OpusSend }
func (c *discordConnection) Disconnect() error       { return c.vc.Disconnect() }

// Ensure returns the session for guildID, connecting if necessary. An
// existing session bound to the same channel is reused; one bound to a
// different channel is torn down and replaced.
func (m *Manager) Ensure(guildID, channelID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[guildID]; ok {
		if existing.ChannelID() == channelID {
			return existing, nil
		}

		logging.LogPlayback(guildID, "rebind",
			zap.String("old_channel_id", existing.ChannelID()),
			zap.String("new_channel_id", channelID),
		)
		if err := existing.Disconnect(); err != nil {
			logging.LogWarn("Failed to disconnect stale voice session",
				zap.String("guild_id", guildID),
				zap.Error(err),
			)
		}
		delete(m.sessions, guildID)
	}

	conn, err := m.dial(guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}

	session, err := newSession(guildID, channelID, conn)
	if err != nil {
		if derr := conn.Disconnect(); derr != nil {
			logging.LogWarn("Failed to disconnect after session setup error",
				zap.String("guild_id", guildID),
				zap.Error(derr),
			)
		}
		return nil, err
	}

	m.sessions[guildID] = session
	logging.LogPlayback(guildID, "connect",
		zap.String("channel_id", channelID),
	)
	return session, nil
}

// Get returns the live session for guildID, if any.
func (m *Manager) Get(guildID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[guildID]
	return session, ok
}

// Disconnect tears down the session for guildID. It reports whether a
// session existed.
func (m *Manager) Disconnect(guildID string) (bool, error) {
	m.mu.Lock()
	session, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, session.Disconnect()
}

// DisconnectAll tears down every live session. Used at shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for guildID, session := range sessions {
		if err := session.Disconnect(); err != nil {
			logging.LogWarn("Failed to disconnect voice session",
				zap.String("guild_id", guildID),
				zap.Error(err),
			)
		}
	}
}

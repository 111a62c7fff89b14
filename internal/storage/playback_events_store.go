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

package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/events"
	"github.com/lickelon/gi-talker/internal/logging"
)

// PlaybackEventsStore handles database operations for playback events
type PlaybackEventsStore struct {
	db *Database
}

// NewPlaybackEventsStore creates a new playback events store
func NewPlaybackEventsStore(db *Database) *PlaybackEventsStore {
	return &PlaybackEventsStore{db: db}
}

// Insert stores a new playback event in the database
func (s *PlaybackEventsStore) Insert(event *events.PlaybackEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid playback event: %w", err)
	}

	query := `
		INSERT INTO playback_events (
			uuid, guild_id, channel_id, user_id, timestamp,
			backend, speaker, text_length, sample_rate,
			audio_duration, processing_time_ms, success, error_message
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)`

	_, err := s.db.DB().Exec(query,
		event.UUID, event.GuildID, event.ChannelID, event.UserID, event.Timestamp,
		event.Backend, event.Speaker, event.TextLength, event.SampleRate,
		event.AudioDuration, event.ProcessingTime, event.Success, event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playback event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "playback_events",
		zap.String("uuid", event.UUID),
		zap.String("guild_id", event.GuildID),
		zap.Bool("success", event.Success),
	)
	return nil
}

// GetByUUID retrieves a playback event by its UUID
func (s *PlaybackEventsStore) GetByUUID(uuid string) (*events.PlaybackEvent, error) {
	query := selectColumns + ` WHERE uuid = ?`
	return s.scanPlaybackEvent(s.db.DB().QueryRow(query, uuid))
}

// RecentByGuild retrieves the most recent events for a guild, newest
// first.
func (s *PlaybackEventsStore) RecentByGuild(guildID string, limit int) ([]*events.PlaybackEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := selectColumns + ` WHERE guild_id = ? ORDER BY timestamp DESC LIMIT ?`
	rows, err := s.db.DB().Query(query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback events: %w", err)
	}
	defer rows.Close()

	var list []*events.PlaybackEvent
	for rows.Next() {
		event, err := s.scanPlaybackEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playback event: %w", err)
		}
		list = append(list, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playback events: %w", err)
	}

	return list, nil
}

// CountByUser returns how many events a user has recorded.
func (s *PlaybackEventsStore) CountByUser(userID string) (int64, error) {
	var count int64
	err := s.db.DB().QueryRow(
		`SELECT COUNT(*) FROM playback_events WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count playback events: %w", err)
	}
	return count, nil
}

const selectColumns = `
	SELECT uuid, guild_id, channel_id, user_id, timestamp,
	       backend, speaker, text_length, sample_rate,
	       audio_duration, processing_time_ms, success, error_message
	FROM playback_events`

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *PlaybackEventsStore) scanPlaybackEvent(row scanner) (*events.PlaybackEvent, error) {
	var event events.PlaybackEvent
	err := row.Scan(
		&event.UUID, &event.GuildID, &event.ChannelID, &event.UserID, &event.Timestamp,
		&event.Backend, &event.Speaker, &event.TextLength, &event.SampleRate,
		&event.AudioDuration, &event.ProcessingTime, &event.Success, &event.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("playback event not found")
		}
		return nil, err
	}
	return &event, nil
}

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

package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/logging"
)

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.dispatchCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
	}
}

func (b *Bot) dispatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	userID := interactionUserID(i)
	logging.LogCommand(data.Name, userID,
		zap.String("guild_id", i.GuildID),
	)

	switch data.Name {
	case "ping":
		b.handlePing(s, i)
	case "join":
		b.handleJoin(s, i)
	case "leave":
		b.handleLeave(s, i)
	case "say":
		b.handleSay(s, i)
	case "set_voice":
		b.handleSetVoice(s, i)
	case "reset_voice":
		b.handleResetVoice(s, i)
	default:
		reply(s, i, "Unknown command.")
	}
}

func (b *Bot) handlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	reply(s, i, fmt.Sprintf("Pong! Gateway latency: %dms",
		s.HeartbeatLatency().Milliseconds()))
}

func (b *Bot) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := b.orchestrator.ResolveChannel(i.GuildID, interactionUserID(i))
	if err != nil {
		reply(s, i, userMessage(err))
		return
	}

	if _, err := b.manager.Ensure(i.GuildID, channelID); err != nil {
		logging.LogError(err, "Failed to join voice channel",
			zap.String("guild_id", i.GuildID),
			zap.String("channel_id", channelID),
		)
		reply(s, i, "Could not join the voice channel.")
		return
	}
	reply(s, i, fmt.Sprintf("Joined <#%s>.", channelID))
}

func (b *Bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	existed, err := b.manager.Disconnect(i.GuildID)
	if err != nil {
		logging.LogWarn("Voice disconnect reported an error",
			zap.String("guild_id", i.GuildID),
			zap.Error(err),
		)
	}
	if !existed {
		reply(s, i, "Not connected to a voice channel.")
		return
	}
	reply(s, i, "Left the voice channel.")
}

func (b *Bot) handleSay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	text := stringOption(i, "text")
	userID := interactionUserID(i)

	// Synthesis plus playback easily exceeds the three second
	// interaction deadline, so defer and edit.
	if err := deferReply(s, i); err != nil {
		logging.LogError(err, "Failed to defer interaction response")
		return
	}

	go func() {
		result, err := b.orchestrator.Speak(i.GuildID, userID, text)
		if err != nil {
			logging.LogError(err, "Speak command failed",
				zap.String("guild_id", i.GuildID),
				zap.String("user_id", userID),
			)
			editReply(s, i, userMessage(err))
			return
		}

		msg := "Done."
		if result.Speaker != "" {
			msg = fmt.Sprintf("Spoke with voice %q.", result.Speaker)
		}
		if result.ClearedStale != "" {
			msg += fmt.Sprintf(" Your saved voice %q no longer exists and was reset.", result.ClearedStale)
		}
		editReply(s, i, msg)
	}()
}

func (b *Bot) handleSetVoice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	speaker := stringOption(i, "speaker")
	userID := interactionUserID(i)

	catalog, err := b.engine.AvailableSpeakers()
	if err != nil {
		logging.LogError(err, "Failed to load speaker catalog")
		reply(s, i, userMessage(err))
		return
	}

	if _, ok := catalog[speaker]; !ok {
		reply(s, i, fmt.Sprintf("Unknown voice %q. Pick one from the autocomplete list.", speaker))
		return
	}

	if err := b.prefs.SetSpeaker(userID, speaker); err != nil {
		logging.LogError(err, "Failed to save speaker preference",
			zap.String("user_id", userID),
		)
		reply(s, i, "Could not save your voice preference.")
		return
	}
	reply(s, i, fmt.Sprintf("Your voice is now %q.", speaker))
}

func (b *Bot) handleResetVoice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	cleared, err := b.prefs.ClearSpeaker(userID)
	if err != nil {
		logging.LogError(err, "Failed to clear speaker preference",
			zap.String("user_id", userID),
		)
		reply(s, i, "Could not reset your voice preference.")
		return
	}

	if !cleared {
		reply(s, i, "You had no voice set.")
		return
	}
	reply(s, i, "Your voice was reset to the default.")
}

func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "set_voice" {
		return
	}

	catalog, err := b.engine.AvailableSpeakers()
	if err != nil {
		// An empty list is the only thing autocomplete can show here.
		catalog = nil
	}

	choices := speakerChoices(catalog, stringOption(i, "speaker"))
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		logging.LogWarn("Failed to send autocomplete choices", zap.Error(err))
	}
}

// interactionUserID works for guild (Member) and DM (User) invocations.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// stringOption fetches a string option by name, empty if absent.
func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// Replies are ephemeral: command chatter stays out of the channel.

func reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.LogWarn("Failed to respond to interaction", zap.Error(err))
	}
}

func deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		logging.LogWarn("Failed to edit interaction response", zap.Error(err))
	}
}

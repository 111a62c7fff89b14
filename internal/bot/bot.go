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

	"github.com/lickelon/gi-talker/internal/config"
	"github.com/lickelon/gi-talker/internal/logging"
	"github.com/lickelon/gi-talker/internal/prefs"
	"github.com/lickelon/gi-talker/internal/tts"
	"github.com/lickelon/gi-talker/internal/voice"
)

// Bot owns the Discord gateway connection, routes slash commands, and
// holds the speak pipeline together.
type Bot struct {
	session      *discordgo.Session
	cfg          config.Discord
	engine       tts.Engine
	prefs        *prefs.Store
	manager      *voice.Manager
	orchestrator *Orchestrator
}

// New builds the bot around an already-constructed engine, preference
// store, and optional playback recorder.
func New(cfg *config.Config, engine tts.Engine, store *prefs.Store, recorder EventRecorder) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	manager := voice.NewDiscordManager(session)

	b := &Bot{
		session: session,
		cfg:     cfg.Discord,
		engine:  engine,
		prefs:   store,
		manager: manager,
	}

	b.orchestrator = NewOrchestrator(
		engine,
		cfg.Engine.Backend,
		store,
		func(guildID, channelID string) (Player, error) {
			return manager.Ensure(guildID, channelID)
		},
		b.userVoiceChannel,
		recorder,
		cfg.Discord.DefaultVoiceChannelID,
		cfg.Engine.DefaultSpeaker,
	)

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logging.Sugar.Infof("🤖 Logged in as %s#%s", r.User.Username, r.User.Discriminator)
	})
	session.AddHandler(b.onInteraction)

	return b, nil
}

// Start opens the gateway and syncs slash commands. Command sync is
// guild-scoped when guild ids are configured, global otherwise.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		if cerr := b.session.Close(); cerr != nil {
			logging.LogWarn("Failed to close gateway after registration error", zap.Error(cerr))
		}
		return err
	}

	return nil
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	definitions := commandDefinitions()

	scopes := b.cfg.CommandGuildIDs
	if len(scopes) == 0 {
		// Global sync. Discord propagates these slowly, which is fine
		// for production; guild scoping exists for development.
		scopes = []string{""}
	}

	for _, guildID := range scopes {
		if _, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, definitions); err != nil {
			return fmt.Errorf("failed to register commands (guild %q): %w", guildID, err)
		}
		logging.Sugar.Infof("✅ Registered %d slash commands (guild: %s)",
			len(definitions), scopeLabel(guildID))
	}
	return nil
}

func scopeLabel(guildID string) string {
	if guildID == "" {
		return "global"
	}
	return guildID
}

// Stop disconnects every voice session and closes the gateway.
func (b *Bot) Stop() {
	b.manager.DisconnectAll()
	if err := b.session.Close(); err != nil {
		logging.LogWarn("Failed to close discord gateway", zap.Error(err))
	}
}

// userVoiceChannel reports the voice channel the user is currently in,
// or empty.
func (b *Bot) userVoiceChannel(guildID, userID string) string {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

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

package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lickelon/gi-talker/internal/bot"
	"github.com/lickelon/gi-talker/internal/config"
	"github.com/lickelon/gi-talker/internal/logging"
	"github.com/lickelon/gi-talker/internal/prefs"
	"github.com/lickelon/gi-talker/internal/storage"
	"github.com/lickelon/gi-talker/internal/tts"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize structured logging
	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.LogError(err, "Invalid configuration")
		log.Fatalf("Invalid configuration: %v", err)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		logging.LogError(err, "Failed to create TTS engine")
		log.Fatalf("Failed to create TTS engine: %v", err)
	}

	store, err := prefs.Open(cfg.Discord.PreferencesPath)
	if err != nil {
		logging.LogError(err, "Failed to open preference store")
		log.Fatalf("Failed to open preference store: %v", err)
	}

	var recorder bot.EventRecorder
	db, err := storage.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		// Playback history is a convenience. The bot speaks without it.
		logging.LogWarn("Playback history disabled", zap.Error(err))
	} else {
		defer db.Close()
		recorder = storage.NewPlaybackEventsStore(db)
	}

	b, err := bot.New(cfg, engine, store, recorder)
	if err != nil {
		logging.LogError(err, "Failed to create bot")
		log.Fatalf("Failed to create bot: %v", err)
	}

	logging.Sugar.Infow("🚀 gi-talker starting",
		"backend", cfg.Engine.Backend,
		"db_path", cfg.Storage.DBPath,
		"guilds", cfg.Discord.CommandGuildIDs,
	)

	if err := b.Start(); err != nil {
		logging.LogError(err, "Failed to start bot")
		log.Fatalf("Failed to start bot: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Sugar.Info("👋 Shutting down")
	b.Stop()
	if err := engine.Close(); err != nil {
		logging.LogWarn("Failed to close TTS engine", zap.Error(err))
	}
}

func buildEngine(cfg *config.Config) (tts.Engine, error) {
	switch cfg.Engine.Backend {
	case config.BackendKokoro:
		return tts.NewKokoroEngine(cfg.Kokoro, cfg.Engine), nil
	case config.BackendMelo:
		return tts.NewMeloEngine(cfg.Melo, cfg.Engine)
	default:
		return nil, fmt.Errorf("unknown TTS backend %q", cfg.Engine.Backend)
	}
}

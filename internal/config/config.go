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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Engine variant names accepted by EngineConfig.Backend.
const (
	BackendKokoro = "kokoro"
	BackendMelo   = "melo"
)

// Config holds all configuration for the bot
type Config struct {
	Discord Discord
	Engine  EngineConfig
	Kokoro  KokoroConfig
	Melo    MeloConfig
	Storage StorageConfig
	Logging LoggingConfig
}

// Discord holds gateway and command registration configuration
type Discord struct {
	Token                 string
	CommandGuildIDs       []string // Scope slash command sync to these guilds; empty = global
	DefaultVoiceChannelID string   // Fallback channel when the caller is not in voice
	PreferencesPath       string   // Per-user speaker preference file
}

// EngineConfig selects the TTS backend and its shared defaults
type EngineConfig struct {
	Backend        string  // "kokoro" or "melo"
	DefaultSpeaker string  // Default speaker name; empty means none configured
	DefaultSpeed   float64 // Speech speed (1.0 = normal)
}

// KokoroConfig holds the ONNX single-model backend configuration
type KokoroConfig struct {
	ModelPath  string // Path to the .onnx model
	VoicesPath string // Path to the voice embedding archive
}

// MeloConfig holds the multi-speaker subprocess backend configuration
type MeloConfig struct {
	Command          string // Inference command line, e.g. "melotts-infer --model ./models/melo"
	SpeakersPath     string // JSON speaker catalog file
	DefaultSpeakerID *int   // Optional numeric speaker override
	SDPRatio         float64
	NoiseScale       float64
	NoiseScaleW      float64
}

// StorageConfig holds playback history database configuration
type StorageConfig struct {
	DBPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Discord: Discord{
			Token:                 getEnvString("DISCORD_BOT_TOKEN", ""),
			CommandGuildIDs:       getEnvStringList("COMMAND_GUILD_IDS"),
			DefaultVoiceChannelID: getEnvString("DEFAULT_VOICE_CHANNEL_ID", ""),
			PreferencesPath:       getEnvString("PREFERENCES_PATH", "./data/preferences.json"),
		},
		Engine: EngineConfig{
			Backend:        getEnvString("TTS_BACKEND", BackendKokoro),
			DefaultSpeaker: getEnvString("TTS_DEFAULT_SPEAKER", ""),
			DefaultSpeed:   getEnvFloat64("TTS_DEFAULT_SPEED", 1.0),
		},
		Kokoro: KokoroConfig{
			ModelPath:  getEnvString("KOKORO_MODEL_PATH", "./models/kokoro-82m.onnx"),
			VoicesPath: getEnvString("KOKORO_VOICES_PATH", "./models/voices-v1.0.bin"),
		},
		Melo: MeloConfig{
			Command:          getEnvString("MELO_COMMAND", "melotts-infer"),
			SpeakersPath:     getEnvString("MELO_SPEAKERS_PATH", "./models/melo-speakers.json"),
			DefaultSpeakerID: getEnvOptionalInt("MELO_DEFAULT_SPEAKER_ID"),
			SDPRatio:         getEnvFloat64("MELO_SDP_RATIO", 0.2),
			NoiseScale:       getEnvFloat64("MELO_NOISE_SCALE", 0.6),
			NoiseScaleW:      getEnvFloat64("MELO_NOISE_SCALE_W", 0.8),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "./data/gi-talker.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN must be provided")
	}

	switch c.Engine.Backend {
	case BackendKokoro, BackendMelo:
	default:
		return fmt.Errorf("unknown TTS backend: %q", c.Engine.Backend)
	}

	if c.Engine.DefaultSpeed <= 0 {
		return fmt.Errorf("TTS default speed must be positive: %f", c.Engine.DefaultSpeed)
	}

	if c.Engine.Backend == BackendKokoro {
		if c.Kokoro.ModelPath == "" {
			return fmt.Errorf("kokoro model path must be provided")
		}
		if c.Kokoro.VoicesPath == "" {
			return fmt.Errorf("kokoro voices path must be provided")
		}
	}

	if c.Engine.Backend == BackendMelo && c.Melo.Command == "" {
		return fmt.Errorf("melo inference command must be provided")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvStringList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvOptionalInt(key string) *int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return &intValue
		}
	}
	return nil
}

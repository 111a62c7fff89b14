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
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Discord.Token != "test-token" {
		t.Errorf("Discord.Token = %q, want %q", cfg.Discord.Token, "test-token")
	}
	if cfg.Discord.PreferencesPath != "./data/preferences.json" {
		t.Errorf("Discord.PreferencesPath = %q, want %q", cfg.Discord.PreferencesPath, "./data/preferences.json")
	}
	if len(cfg.Discord.CommandGuildIDs) != 0 {
		t.Errorf("Discord.CommandGuildIDs = %v, want empty", cfg.Discord.CommandGuildIDs)
	}

	if cfg.Engine.Backend != BackendKokoro {
		t.Errorf("Engine.Backend = %q, want %q", cfg.Engine.Backend, BackendKokoro)
	}
	if cfg.Engine.DefaultSpeed != 1.0 {
		t.Errorf("Engine.DefaultSpeed = %f, want %f", cfg.Engine.DefaultSpeed, 1.0)
	}

	if cfg.Kokoro.ModelPath != "./models/kokoro-82m.onnx" {
		t.Errorf("Kokoro.ModelPath = %q, want %q", cfg.Kokoro.ModelPath, "./models/kokoro-82m.onnx")
	}
	if cfg.Kokoro.VoicesPath != "./models/voices-v1.0.bin" {
		t.Errorf("Kokoro.VoicesPath = %q, want %q", cfg.Kokoro.VoicesPath, "./models/voices-v1.0.bin")
	}

	if cfg.Melo.SDPRatio != 0.2 {
		t.Errorf("Melo.SDPRatio = %f, want %f", cfg.Melo.SDPRatio, 0.2)
	}
	if cfg.Melo.DefaultSpeakerID != nil {
		t.Errorf("Melo.DefaultSpeakerID = %v, want nil", *cfg.Melo.DefaultSpeakerID)
	}

	if cfg.Storage.DBPath != "./data/gi-talker.db" {
		t.Errorf("Storage.DBPath = %q, want %q", cfg.Storage.DBPath, "./data/gi-talker.db")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "Backend selection",
			envVars: map[string]string{
				"TTS_BACKEND":        "melo",
				"MELO_COMMAND":       "melotts-infer --model ./m",
				"MELO_SPEAKERS_PATH": "./m/speakers.json",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Engine.Backend != BackendMelo {
					t.Errorf("Engine.Backend = %q, want %q", cfg.Engine.Backend, BackendMelo)
				}
				if cfg.Melo.Command != "melotts-infer --model ./m" {
					t.Errorf("Melo.Command = %q, want %q", cfg.Melo.Command, "melotts-infer --model ./m")
				}
			},
		},
		{
			name: "Guild id list",
			envVars: map[string]string{
				"COMMAND_GUILD_IDS": "123, 456,789",
			},
			validate: func(t *testing.T, cfg *Config) {
				want := []string{"123", "456", "789"}
				if len(cfg.Discord.CommandGuildIDs) != len(want) {
					t.Fatalf("CommandGuildIDs = %v, want %v", cfg.Discord.CommandGuildIDs, want)
				}
				for i, id := range want {
					if cfg.Discord.CommandGuildIDs[i] != id {
						t.Errorf("CommandGuildIDs[%d] = %q, want %q", i, cfg.Discord.CommandGuildIDs[i], id)
					}
				}
			},
		},
		{
			name: "Speaker defaults",
			envVars: map[string]string{
				"TTS_DEFAULT_SPEAKER":     "Alice",
				"TTS_DEFAULT_SPEED":       "1.3",
				"MELO_DEFAULT_SPEAKER_ID": "2",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Engine.DefaultSpeaker != "Alice" {
					t.Errorf("Engine.DefaultSpeaker = %q, want %q", cfg.Engine.DefaultSpeaker, "Alice")
				}
				if cfg.Engine.DefaultSpeed != 1.3 {
					t.Errorf("Engine.DefaultSpeed = %f, want %f", cfg.Engine.DefaultSpeed, 1.3)
				}
				if cfg.Melo.DefaultSpeakerID == nil || *cfg.Melo.DefaultSpeakerID != 2 {
					t.Errorf("Melo.DefaultSpeakerID = %v, want 2", cfg.Melo.DefaultSpeakerID)
				}
			},
		},
		{
			name: "Invalid numeric values keep defaults",
			envVars: map[string]string{
				"TTS_DEFAULT_SPEED":       "fast",
				"MELO_DEFAULT_SPEAKER_ID": "two",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Engine.DefaultSpeed != 1.0 {
					t.Errorf("Engine.DefaultSpeed = %f, want %f", cfg.Engine.DefaultSpeed, 1.0)
				}
				if cfg.Melo.DefaultSpeakerID != nil {
					t.Errorf("Melo.DefaultSpeakerID = %v, want nil", *cfg.Melo.DefaultSpeakerID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DISCORD_BOT_TOKEN", "test-token")
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name:    "Missing token",
			envVars: map[string]string{},
		},
		{
			name: "Unknown backend",
			envVars: map[string]string{
				"DISCORD_BOT_TOKEN": "test-token",
				"TTS_BACKEND":       "espeak",
			},
		},
		{
			name: "Non-positive speed",
			envVars: map[string]string{
				"DISCORD_BOT_TOKEN": "test-token",
				"TTS_DEFAULT_SPEED": "-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			if _, err := Load(); err == nil {
				t.Error("Load() expected error but got none")
			}
		})
	}
}

// clearEnv blanks every variable Load reads so tests don't observe the
// host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DISCORD_BOT_TOKEN", "COMMAND_GUILD_IDS", "DEFAULT_VOICE_CHANNEL_ID",
		"PREFERENCES_PATH", "TTS_BACKEND", "TTS_DEFAULT_SPEAKER",
		"TTS_DEFAULT_SPEED", "KOKORO_MODEL_PATH", "KOKORO_VOICES_PATH",
		"MELO_COMMAND", "MELO_SPEAKERS_PATH", "MELO_DEFAULT_SPEAKER_ID",
		"MELO_SDP_RATIO", "MELO_NOISE_SCALE", "MELO_NOISE_SCALE_W",
		"DB_PATH", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

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
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/lickelon/gi-talker/internal/tts"
)

// maxAutocompleteChoices is Discord's cap on autocomplete results.
const maxAutocompleteChoices = 25

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:        "join",
			Description: "Join your current voice channel",
		},
		{
			Name:        "leave",
			Description: "Leave the voice channel",
		},
		{
			Name:        "say",
			Description: "Speak the given text in the voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "What to say",
					Required:    true,
				},
			},
		},
		{
			Name:        "set_voice",
			Description: "Choose the voice used for your messages",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "speaker",
					Description:  "Voice name",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "reset_voice",
			Description: "Go back to the default voice",
		},
	}
}

// speakerChoices filters the catalog for autocomplete: case-insensitive
// substring match, sorted, capped at Discord's limit.
func speakerChoices(catalog tts.SpeakerCatalog, query string) []*discordgo.ApplicationCommandOptionChoice {
	query = strings.ToLower(query)

	var names []string
	for name := range catalog {
		if query == "" || strings.Contains(strings.ToLower(name), query) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) > maxAutocompleteChoices {
		names = names[:maxAutocompleteChoices]
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(names))
	for i, name := range names {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name}
	}
	return choices
}

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

package tts

import "strconv"

// resolvedSpeaker is the outcome of speaker resolution: a catalog id plus
// the display name it came from (empty for raw id overrides).
type resolvedSpeaker struct {
	Name string
	ID   int
}

// resolveSpeaker picks the effective speaker for a request.
//
// Precedence: an explicit raw id wins; then the requested name is matched
// case-sensitively against the catalog (or, when numericNames is set,
// parsed as a raw id); then the engine's configured default name applies.
// With nothing to go on the request fails with ErrNoSpeakerConfigured.
func resolveSpeaker(req SynthesisRequest, catalog SpeakerCatalog, defaultSpeaker string, numericNames bool) (resolvedSpeaker, error) {
	if req.SpeakerID != nil {
		return resolvedSpeaker{ID: *req.SpeakerID}, nil
	}

	name := req.Speaker
	if name == "" {
		name = defaultSpeaker
	}
	if name == "" {
		return resolvedSpeaker{}, ErrNoSpeakerConfigured
	}

	if id, ok := catalog[name]; ok {
		return resolvedSpeaker{Name: name, ID: id}, nil
	}

	if numericNames {
		if id, err := strconv.Atoi(name); err == nil {
			return resolvedSpeaker{ID: id}, nil
		}
	}

	return resolvedSpeaker{}, &UnknownSpeakerError{
		Speaker:   name,
		Available: catalog.Names(),
	}
}

// resolveFloat applies the request-over-default rule for one parameter.
func resolveFloat(override *float64, defaultValue float64) float64 {
	if override != nil {
		return *override
	}
	return defaultValue
}

// floatRange validates a parameter against a closed interval. A max of 0
// means unbounded above; exclusiveMin rejects the lower endpoint itself.
type floatRange struct {
	min, max     float64
	exclusiveMin bool
}

func (r floatRange) validate(name string, value float64) error {
	if r.exclusiveMin && value <= r.min {
		return &InvalidParameterError{
			Name:   name,
			Value:  value,
			Reason: "must be greater than " + strconv.FormatFloat(r.min, 'g', -1, 64),
		}
	}
	if !r.exclusiveMin && value < r.min {
		return &InvalidParameterError{
			Name:   name,
			Value:  value,
			Reason: "must be at least " + strconv.FormatFloat(r.min, 'g', -1, 64),
		}
	}
	if r.max != 0 && value > r.max {
		return &InvalidParameterError{
			Name:   name,
			Value:  value,
			Reason: "must be at most " + strconv.FormatFloat(r.max, 'g', -1, 64),
		}
	}
	return nil
}

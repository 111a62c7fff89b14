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

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the synthesis pipeline.
var (
	// ErrMissingArtifact means a required model or voice file is absent on
	// disk. Fatal to the engine instance until the file is restored.
	ErrMissingArtifact = errors.New("required model artifact is missing")

	// ErrBackendUnavailable means the backend loaded but produced no usable
	// speakers. A configuration error, not a transient one.
	ErrBackendUnavailable = errors.New("backend produced no usable speakers")

	// ErrNoSpeakerConfigured means the request named no speaker and the
	// engine has no configured default.
	ErrNoSpeakerConfigured = errors.New("no speaker requested and no default configured")

	// ErrEmptyText rejects requests with nothing to say.
	ErrEmptyText = errors.New("text must not be empty")
)

// UnknownSpeakerError reports a speaker name absent from the catalog.
type UnknownSpeakerError struct {
	Speaker   string
	Available []string
}

func (e *UnknownSpeakerError) Error() string {
	return fmt.Sprintf("unknown speaker %q (available: %s)",
		e.Speaker, strings.Join(e.Available, ", "))
}

// InvalidParameterError reports a synthesis parameter outside the
// backend's accepted range.
type InvalidParameterError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Name, e.Value, e.Reason)
}

// SynthesisError wraps an opaque backend inference failure. The cause is
// preserved for logging; callers show a generic message.
type SynthesisError struct {
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

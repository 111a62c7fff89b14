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
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// voicePack holds the style embeddings shipped with a Kokoro model. The
// voices file is an npz archive: one float32 npy entry per voice, shaped
// (frames, 1, width), indexed at inference time by token count.
type voicePack struct {
	styles map[string]*voiceStyle
}

type voiceStyle struct {
	data   []float32
	frames int
	width  int
}

// styleFor returns the style frame for a voice given the token count of
// the text being synthesized. The frame index saturates at the last frame.
func (p *voicePack) styleFor(name string, tokenCount int) []float32 {
	style, ok := p.styles[name]
	if !ok {
		return nil
	}
	frame := tokenCount
	if frame >= style.frames {
		frame = style.frames - 1
	}
	if frame < 0 {
		frame = 0
	}
	return style.data[frame*style.width : (frame+1)*style.width]
}

func (p *voicePack) names() []string {
	catalog := make(SpeakerCatalog, len(p.styles))
	for name := range p.styles {
		catalog[name] = 0
	}
	return catalog.Names()
}

// loadVoicePack reads every voice embedding from the archive.
func loadVoicePack(path string) (*voicePack, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open voices archive: %w", err)
	}
	defer archive.Close()

	pack := &voicePack{styles: make(map[string]*voiceStyle)}
	for _, entry := range archive.File {
		name := strings.TrimSuffix(entry.Name, ".npy")
		if name == entry.Name || name == "" {
			continue // not a voice embedding
		}

		reader, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open voice %q: %w", name, err)
		}
		style, err := readNPYFloat32(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse voice %q: %w", name, err)
		}
		pack.styles[name] = style
	}

	return pack, nil
}

// readNPYFloat32 parses a version 1.0 npy array of little-endian float32
// values. Only the layouts Kokoro ships are supported: (frames, 1, width)
// or (frames, width).
func readNPYFloat32(r io.Reader) (*voiceStyle, error) {
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("short npy header: %w", err)
	}
	if string(header[:6]) != "\x93NUMPY" {
		return nil, fmt.Errorf("not an npy file")
	}

	headerLen := int(binary.LittleEndian.Uint16(header[8:10]))
	descriptor := make([]byte, headerLen)
	if _, err := io.ReadFull(r, descriptor); err != nil {
		return nil, fmt.Errorf("short npy descriptor: %w", err)
	}

	descr := string(descriptor)
	if !strings.Contains(descr, "'<f4'") {
		return nil, fmt.Errorf("unsupported npy dtype in %q", descr)
	}
	if strings.Contains(descr, "'fortran_order': True") {
		return nil, fmt.Errorf("fortran-ordered npy arrays are not supported")
	}

	shape, err := parseNPYShape(descr)
	if err != nil {
		return nil, err
	}

	total := 1
	for _, dim := range shape {
		total *= dim
	}

	raw := make([]byte, total*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("short npy payload: %w", err)
	}

	data := make([]float32, total)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	frames, width := 1, total
	if len(shape) >= 2 {
		frames = shape[0]
		width = total / frames
	}

	return &voiceStyle{data: data, frames: frames, width: width}, nil
}

func parseNPYShape(descr string) ([]int, error) {
	start := strings.Index(descr, "'shape':")
	if start < 0 {
		return nil, fmt.Errorf("npy descriptor missing shape: %q", descr)
	}
	open := strings.Index(descr[start:], "(")
	end := strings.Index(descr[start:], ")")
	if open < 0 || end < 0 || end < open {
		return nil, fmt.Errorf("malformed npy shape in %q", descr)
	}

	var shape []int
	for _, part := range strings.Split(descr[start+open+1:start+end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed npy shape dimension %q", part)
		}
		shape = append(shape, dim)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("empty npy shape in %q", descr)
	}
	return shape, nil
}

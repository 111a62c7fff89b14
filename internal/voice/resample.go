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

package voice

import "encoding/binary"

// resampleToStereo48k converts mono 16-bit little-endian PCM at an
// arbitrary sample rate into interleaved stereo samples at 48 kHz using
// linear interpolation. Synthesis backends emit 22.05 or 24 kHz mono.
func resampleToStereo48k(pcm []byte, sampleRate int) []int16 {
	mono := make([]int16, len(pcm)/2)
	for i := range mono {
		mono[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	if len(mono) == 0 {
		return nil
	}

	if sampleRate == playbackSampleRate {
		out := make([]int16, len(mono)*playbackChannels)
		for i, s := range mono {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	}

	outLen := int(int64(len(mono)) * playbackSampleRate / int64(sampleRate))
	if outLen == 0 {
		outLen = 1
	}

	out := make([]int16, outLen*playbackChannels)
	ratio := float64(sampleRate) / float64(playbackSampleRate)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(mono)-1 {
			s := mono[len(mono)-1]
			out[i*2] = s
			out[i*2+1] = s
			continue
		}
		frac := pos - float64(idx)
		s := int16(float64(mono[idx])*(1-frac) + float64(mono[idx+1])*frac)
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

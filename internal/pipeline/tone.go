/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
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


// Package pipeline provides ready-made typed stream callbacks
package pipeline

import (
	"math"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

// Tone is an output callback playing a sine wave on every channel
type Tone[T audio.IsSample, C audio.IsFrameChannels] struct {
	frequency float64
	amplitude float64
	phase     float64
}

// NewTone creates a generator for frequency Hz at amplitude in [0, 1]
func NewTone[T audio.IsSample, C audio.IsFrameChannels](frequency, amplitude float64) *Tone[T, C] {
	return &Tone[T, C]{frequency: frequency, amplitude: min(max(amplitude, 0), 1)}
}

func (g *Tone[T, C]) OnAudioReady(stream audio.StreamInfo, frames audio.OutputFrames[T, C]) audio.DataCallbackResult {
	g.Fill(frames.Samples(), frames.Channels(), stream.Config().SampleRate)
	return audio.DataCallbackResultContinue
}

// Fill writes whole frames of the tone into interleaved samples, continuing
// the phase of the previous call
func (g *Tone[T, C]) Fill(samples []T, channels int, sampleRate int32) {
	if channels <= 0 || sampleRate <= 0 {
		clear(samples)
		return
	}
	step := 2 * math.Pi * g.frequency / float64(sampleRate)
	for i := 0; i+channels <= len(samples); i += channels {
		v := fromUnit[T](g.amplitude * math.Sin(g.phase))
		for ch := 0; ch < channels; ch++ {
			samples[i+ch] = v
		}
		g.phase = math.Mod(g.phase+step, 2*math.Pi)
	}
}

// fromUnit converts a value in [-1, 1] to the sample type
func fromUnit[T audio.IsSample](v float64) T {
	var zero T
	switch any(zero).(type) {
	case int16:
		return T(int16(v * math.MaxInt16))
	default:
		return T(float32(v))
	}
}

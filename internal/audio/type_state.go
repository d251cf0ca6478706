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

package audio

// Marker types for the builder's type axes. They carry no data; the builder
// reads their runtime tag from the zero value.

// Input marks a capture stream.
type Input struct{}

// Output marks a playback stream.
type Output struct{}

// Unspecified marks a channel count or sample format left to the platform.
type Unspecified struct{}

// Mono marks single channel frames.
type Mono struct{}

// Stereo marks two channel interleaved frames.
type Stereo struct{}

// IsDirection is satisfied only by the direction markers.
type IsDirection interface {
	Input | Output
}

// IsChannelCount is satisfied by the channel count markers, including Unspecified.
type IsChannelCount interface {
	Unspecified | Mono | Stereo
}

// IsFormat is satisfied by the sample types the builder can narrow to,
// including Unspecified.
type IsFormat interface {
	Unspecified | int16 | float32
}

// IsFrameChannels is the concrete subset of IsChannelCount.
type IsFrameChannels interface {
	Mono | Stereo
}

// IsSample is the concrete subset of IsFormat.
type IsSample interface {
	int16 | float32
}

func directionOf[D IsDirection]() Direction {
	var d D
	if _, ok := any(d).(Input); ok {
		return DirectionInput
	}
	return DirectionOutput
}

func channelCountOf[C IsChannelCount]() ChannelCount {
	var c C
	switch any(c).(type) {
	case Mono:
		return ChannelCountMono
	case Stereo:
		return ChannelCountStereo
	default:
		return ChannelCountUnspecified
	}
}

func formatOf[T IsFormat]() AudioFormat {
	var t T
	switch any(t).(type) {
	case int16:
		return FormatI16
	case float32:
		return FormatFloat
	default:
		return FormatUnspecified
	}
}

// FrameType returns the runtime tags for a concrete frame type.
func FrameType[T IsSample, C IsFrameChannels]() (AudioFormat, ChannelCount) {
	return formatOf[T](), channelCountOf[C]()
}

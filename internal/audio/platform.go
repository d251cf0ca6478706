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

import "time"

// Platform is the native audio service that negotiates and opens streams.
// This enables dependency injection and makes testing hardware-independent.
type Platform interface {
	// OpenStream negotiates cfg and returns an opened native stream whose
	// Config reports the values actually in effect. The call may block
	// while the platform allocates resources.
	OpenStream(cfg StreamConfig) (NativeStream, error)

	// IsAAudioSupported reports whether the AAudio backend exists here.
	IsAAudioSupported() bool

	// IsAAudioRecommended reports whether AAudio should be preferred when
	// the caller has no backend preference.
	IsAAudioRecommended() bool
}

// StreamInfo is the read-only view of a stream handed to callbacks.
type StreamInfo interface {
	// Config returns the negotiated configuration.
	Config() StreamConfig

	// State returns the current lifecycle state.
	State() StreamState
}

// NativeStream is an opened platform stream handle.
type NativeStream interface {
	StreamInfo

	// RequestStart starts the stream.
	RequestStart() error

	// RequestStop stops the stream. Once it returns the platform makes no
	// further data callback invocations until restarted.
	RequestStop() error

	// Close releases the native resources. Once it returns the platform
	// makes no further callback invocations.
	Close() error

	// Read fills buf with up to numFrames frames from an input stream.
	Read(buf []byte, numFrames int32, timeout time.Duration) (int32, error)

	// Write queues numFrames frames from buf on an output stream.
	Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error)
}

// RawCallback is the platform-facing callback entry point. audioData holds
// numFrames interleaved frames in the negotiated format: captured data for
// input streams, a buffer to fill for output streams.
type RawCallback interface {
	OnAudioReady(stream StreamInfo, audioData []byte, numFrames int32) DataCallbackResult
	OnErrorBeforeClose(stream StreamInfo, err error)
	OnErrorAfterClose(stream StreamInfo, err error)
}

// FrameTyped is implemented by callbacks that declare the frame type they
// handle.
type FrameTyped interface {
	FrameType() (AudioFormat, ChannelCount)
}

// DirectionTyped is implemented by callbacks bound to one direction.
type DirectionTyped interface {
	Direction() Direction
}

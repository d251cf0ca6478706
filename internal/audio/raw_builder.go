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

import (
	"fmt"
	"time"
)

// RawBuilder configures a stream from runtime values, for configuration
// loaded from files or flags. It trades the compile-time guarantees of
// StreamBuilder for runtime checks at SetCallback and Open.
type RawBuilder struct {
	platform Platform
	cfg      StreamConfig
	consumed bool
}

// NewRawBuilder creates a runtime-tagged builder with the default configuration.
func NewRawBuilder(platform Platform) *RawBuilder {
	return &RawBuilder{platform: platform, cfg: DefaultStreamConfig()}
}

// NewRawBuilderFromConfig creates a runtime-tagged builder starting from cfg.
// Any callback in cfg is dropped.
func NewRawBuilderFromConfig(platform Platform, cfg StreamConfig) *RawBuilder {
	return &RawBuilder{platform: platform, cfg: cfg.WithoutCallback()}
}

func (b *RawBuilder) SetDirection(d Direction) *RawBuilder {
	b.cfg.Direction = d
	return b
}

func (b *RawBuilder) SetChannelCount(c ChannelCount) *RawBuilder {
	b.cfg.ChannelCount = c
	return b
}

func (b *RawBuilder) SetFormat(f AudioFormat) *RawBuilder {
	b.cfg.Format = f
	return b
}

func (b *RawBuilder) SetSampleRate(rate int32) *RawBuilder {
	b.cfg.SampleRate = rate
	return b
}

func (b *RawBuilder) SetFramesPerCallback(frames int32) *RawBuilder {
	b.cfg.FramesPerCallback = frames
	return b
}

func (b *RawBuilder) SetBufferCapacityInFrames(frames int32) *RawBuilder {
	b.cfg.BufferCapacityInFrames = frames
	return b
}

func (b *RawBuilder) SetAudioAPI(api AudioAPI) *RawBuilder {
	b.cfg.AudioAPI = api
	return b
}

func (b *RawBuilder) SetSharingMode(mode SharingMode) *RawBuilder {
	b.cfg.SharingMode = mode
	return b
}

func (b *RawBuilder) SetPerformanceMode(mode PerformanceMode) *RawBuilder {
	b.cfg.PerformanceMode = mode
	return b
}

func (b *RawBuilder) SetUsage(usage Usage) *RawBuilder {
	b.cfg.Usage = usage
	return b
}

func (b *RawBuilder) SetContentType(contentType ContentType) *RawBuilder {
	b.cfg.ContentType = contentType
	return b
}

func (b *RawBuilder) SetInputPreset(preset InputPreset) *RawBuilder {
	b.cfg.InputPreset = preset
	return b
}

func (b *RawBuilder) SetSessionID(id SessionID) *RawBuilder {
	b.cfg.SessionID = id
	return b
}

func (b *RawBuilder) SetDeviceID(id int32) *RawBuilder {
	b.cfg.DeviceID = id
	return b
}

func (b *RawBuilder) SetChannelConversionAllowed(allowed bool) *RawBuilder {
	b.cfg.ChannelConversionAllowed = allowed
	return b
}

func (b *RawBuilder) SetFormatConversionAllowed(allowed bool) *RawBuilder {
	b.cfg.FormatConversionAllowed = allowed
	return b
}

func (b *RawBuilder) SetSampleRateConversionQuality(quality SampleRateConversionQuality) *RawBuilder {
	b.cfg.SampleRateConversionQuality = quality
	return b
}

// SetCallback binds cb after checking that it declares the builder's
// current frame type and, if it declares one, direction. cb must implement
// FrameTyped; RawInputCallback and RawOutputCallback produce callbacks that do.
func (b *RawBuilder) SetCallback(cb RawCallback) error {
	if cb == nil {
		b.cfg.callback = nil
		return nil
	}
	if err := checkCallbackBinding(b.cfg, cb); err != nil {
		return err
	}
	b.cfg.callback = cb
	return nil
}

func (b *RawBuilder) Config() StreamConfig {
	return b.cfg
}

func (b *RawBuilder) WillUseAAudio() bool {
	return WillUseAAudio(b.cfg.AudioAPI, b.platform.IsAAudioSupported(), b.platform.IsAAudioRecommended())
}

// Open validates the configuration and negotiates it with the platform. A
// callback bound before a later format or channel change is rejected here.
func (b *RawBuilder) Open() (*RawStream, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true

	cfg := b.cfg
	var gate *callbackGate
	if cb := cfg.callback; cb != nil {
		gate = newCallbackGate(cb, cfg.Direction)
		cfg.callback = gate
	}

	native, err := negotiate(b.platform, cfg, gate != nil)
	if err != nil {
		if gate != nil {
			gate.close()
		}
		return nil, err
	}
	return &RawStream{stream: newStream(native, gate)}, nil
}

// RawStream is an opened stream addressed with byte buffers in the
// negotiated format.
type RawStream struct {
	*stream
}

// IsAsync reports whether the stream is callback driven.
func (s *RawStream) IsAsync() bool {
	return s.gate != nil
}

// ReadBytes reads up to numFrames frames from an input stream into buf.
func (s *RawStream) ReadBytes(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkBlockingIO(DirectionInput, buf, numFrames); err != nil {
		return 0, err
	}
	return s.read(buf, numFrames, timeout)
}

// WriteBytes writes numFrames frames from buf to an output stream.
func (s *RawStream) WriteBytes(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkBlockingIO(DirectionOutput, buf, numFrames); err != nil {
		return 0, err
	}
	return s.write(buf, numFrames, timeout)
}

func (s *RawStream) checkBlockingIO(dir Direction, buf []byte, numFrames int32) error {
	cfg := s.Config()
	if cfg.Direction != dir {
		return fmt.Errorf("%w: %s on %s stream", ErrInvalidConfiguration, dir, cfg.Direction)
	}
	if s.gate != nil {
		return fmt.Errorf("%w: blocking I/O on a callback stream", ErrInvalidConfiguration)
	}
	if frameSize := cfg.BytesPerFrame(); frameSize > 0 && len(buf) < int(numFrames)*frameSize {
		return ErrInvalidBuffer
	}
	return nil
}

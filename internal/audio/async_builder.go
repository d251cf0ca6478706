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

// AsyncStreamBuilder is a StreamBuilder with a bound data callback. Its
// direction, channel count and format are fixed by the callback's type.
type AsyncStreamBuilder[D IsDirection, C IsFrameChannels, T IsSample] struct {
	platform Platform
	cfg      *StreamConfig
	gate     *callbackGate
}

// SetInputCallback binds cb to an input builder whose frame type matches
// the callback. b is consumed.
func SetInputCallback[C IsFrameChannels, T IsSample](b *StreamBuilder[Input, C, T], cb InputCallback[T, C]) *AsyncStreamBuilder[Input, C, T] {
	return bindCallback[Input, C, T](b.platform, b.take(), &inputAdapter[T, C]{cb: cb})
}

// SetOutputCallback binds cb to an output builder whose frame type matches
// the callback. b is consumed.
func SetOutputCallback[C IsFrameChannels, T IsSample](b *StreamBuilder[Output, C, T], cb OutputCallback[T, C]) *AsyncStreamBuilder[Output, C, T] {
	return bindCallback[Output, C, T](b.platform, b.take(), &outputAdapter[T, C]{cb: cb})
}

func bindCallback[D IsDirection, C IsFrameChannels, T IsSample](platform Platform, cfg *StreamConfig, adapter RawCallback) *AsyncStreamBuilder[D, C, T] {
	gate := newCallbackGate(adapter, cfg.Direction)
	cfg.callback = gate
	return &AsyncStreamBuilder[D, C, T]{platform: platform, cfg: cfg, gate: gate}
}

func (b *AsyncStreamBuilder[D, C, T]) live() *StreamConfig {
	if b.cfg == nil {
		panic("audio: use of consumed AsyncStreamBuilder")
	}
	return b.cfg
}

func (b *AsyncStreamBuilder[D, C, T]) SetSampleRate(rate int32) *AsyncStreamBuilder[D, C, T] {
	b.live().SampleRate = rate
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetFramesPerCallback(frames int32) *AsyncStreamBuilder[D, C, T] {
	b.live().FramesPerCallback = frames
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetBufferCapacityInFrames(frames int32) *AsyncStreamBuilder[D, C, T] {
	b.live().BufferCapacityInFrames = frames
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetAudioAPI(api AudioAPI) *AsyncStreamBuilder[D, C, T] {
	b.live().AudioAPI = api
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetSharingMode(mode SharingMode) *AsyncStreamBuilder[D, C, T] {
	b.live().SharingMode = mode
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetPerformanceMode(mode PerformanceMode) *AsyncStreamBuilder[D, C, T] {
	b.live().PerformanceMode = mode
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetUsage(usage Usage) *AsyncStreamBuilder[D, C, T] {
	b.live().Usage = usage
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetContentType(contentType ContentType) *AsyncStreamBuilder[D, C, T] {
	b.live().ContentType = contentType
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetInputPreset(preset InputPreset) *AsyncStreamBuilder[D, C, T] {
	b.live().InputPreset = preset
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetSessionID(id SessionID) *AsyncStreamBuilder[D, C, T] {
	b.live().SessionID = id
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetDeviceID(id int32) *AsyncStreamBuilder[D, C, T] {
	b.live().DeviceID = id
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetChannelConversionAllowed(allowed bool) *AsyncStreamBuilder[D, C, T] {
	b.live().ChannelConversionAllowed = allowed
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetFormatConversionAllowed(allowed bool) *AsyncStreamBuilder[D, C, T] {
	b.live().FormatConversionAllowed = allowed
	return b
}

func (b *AsyncStreamBuilder[D, C, T]) SetSampleRateConversionQuality(quality SampleRateConversionQuality) *AsyncStreamBuilder[D, C, T] {
	b.live().SampleRateConversionQuality = quality
	return b
}

// Config returns a copy of the configuration accumulated so far.
func (b *AsyncStreamBuilder[D, C, T]) Config() StreamConfig {
	return *b.live()
}

func (b *AsyncStreamBuilder[D, C, T]) WillUseAAudio() bool {
	return WillUseAAudio(b.live().AudioAPI, b.platform.IsAAudioSupported(), b.platform.IsAAudioRecommended())
}

// Open negotiates the configuration and returns a callback-driven stream
// that owns the callback. If Open fails the callback is released without
// ever having been reachable from a live stream.
func (b *AsyncStreamBuilder[D, C, T]) Open() (*AsyncStream[D, C, T], error) {
	if b.cfg == nil {
		return nil, ErrBuilderConsumed
	}
	cfg, gate := b.cfg, b.gate
	b.cfg, b.gate = nil, nil

	native, err := negotiate(b.platform, *cfg, true)
	if err != nil {
		gate.close()
		return nil, err
	}
	return &AsyncStream[D, C, T]{stream: newStream(native, gate)}, nil
}

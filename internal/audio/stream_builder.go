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

// StreamBuilder accumulates a stream configuration whose direction, channel
// count and sample format are tracked in its type.
//
// Setters that change a type axis move the configuration into a new builder
// and leave the receiver consumed. Calling a setter on a consumed builder
// panics; Open on a consumed builder returns ErrBuilderConsumed. A builder
// must not be used from more than one goroutine.
type StreamBuilder[D IsDirection, C IsChannelCount, T IsFormat] struct {
	platform Platform
	cfg      *StreamConfig
}

// NewStreamBuilder creates a builder with the default configuration.
func NewStreamBuilder(platform Platform) *StreamBuilder[Output, Unspecified, Unspecified] {
	cfg := DefaultStreamConfig()
	return &StreamBuilder[Output, Unspecified, Unspecified]{platform: platform, cfg: &cfg}
}

func (b *StreamBuilder[D, C, T]) live() *StreamConfig {
	if b.cfg == nil {
		panic("audio: use of consumed StreamBuilder")
	}
	return b.cfg
}

func (b *StreamBuilder[D, C, T]) take() *StreamConfig {
	cfg := b.live()
	b.cfg = nil
	return cfg
}

// SetDirection moves b into a builder for direction X.
func SetDirection[X IsDirection, D IsDirection, C IsChannelCount, T IsFormat](b *StreamBuilder[D, C, T]) *StreamBuilder[X, C, T] {
	cfg := b.take()
	cfg.Direction = directionOf[X]()
	return &StreamBuilder[X, C, T]{platform: b.platform, cfg: cfg}
}

// SetChannelCount moves b into a builder for channel count X.
func SetChannelCount[X IsChannelCount, D IsDirection, C IsChannelCount, T IsFormat](b *StreamBuilder[D, C, T]) *StreamBuilder[D, X, T] {
	cfg := b.take()
	cfg.ChannelCount = channelCountOf[X]()
	return &StreamBuilder[D, X, T]{platform: b.platform, cfg: cfg}
}

// SetFormat moves b into a builder for sample type X.
func SetFormat[X IsFormat, D IsDirection, C IsChannelCount, T IsFormat](b *StreamBuilder[D, C, T]) *StreamBuilder[D, C, X] {
	cfg := b.take()
	cfg.Format = formatOf[X]()
	return &StreamBuilder[D, C, X]{platform: b.platform, cfg: cfg}
}

func (b *StreamBuilder[D, C, T]) SetInput() *StreamBuilder[Input, C, T] {
	return SetDirection[Input](b)
}

func (b *StreamBuilder[D, C, T]) SetOutput() *StreamBuilder[Output, C, T] {
	return SetDirection[Output](b)
}

func (b *StreamBuilder[D, C, T]) SetMono() *StreamBuilder[D, Mono, T] {
	return SetChannelCount[Mono](b)
}

func (b *StreamBuilder[D, C, T]) SetStereo() *StreamBuilder[D, Stereo, T] {
	return SetChannelCount[Stereo](b)
}

func (b *StreamBuilder[D, C, T]) SetI16() *StreamBuilder[D, C, int16] {
	return SetFormat[int16](b)
}

func (b *StreamBuilder[D, C, T]) SetF32() *StreamBuilder[D, C, float32] {
	return SetFormat[float32](b)
}

// SetSampleRate requests a sample rate in Hz. Zero leaves it to the platform.
func (b *StreamBuilder[D, C, T]) SetSampleRate(rate int32) *StreamBuilder[D, C, T] {
	b.live().SampleRate = rate
	return b
}

// SetFramesPerCallback requests a fixed callback size. Zero lets the
// platform pick the optimal size for each callback.
func (b *StreamBuilder[D, C, T]) SetFramesPerCallback(frames int32) *StreamBuilder[D, C, T] {
	b.live().FramesPerCallback = frames
	return b
}

// SetBufferCapacityInFrames requests the total buffer capacity.
func (b *StreamBuilder[D, C, T]) SetBufferCapacityInFrames(frames int32) *StreamBuilder[D, C, T] {
	b.live().BufferCapacityInFrames = frames
	return b
}

// SetAudioAPI requests a backend. AAudio is only honoured where supported.
func (b *StreamBuilder[D, C, T]) SetAudioAPI(api AudioAPI) *StreamBuilder[D, C, T] {
	b.live().AudioAPI = api
	return b
}

func (b *StreamBuilder[D, C, T]) SetSharingMode(mode SharingMode) *StreamBuilder[D, C, T] {
	b.live().SharingMode = mode
	return b
}

func (b *StreamBuilder[D, C, T]) SetShared() *StreamBuilder[D, C, T] {
	return b.SetSharingMode(SharingModeShared)
}

// SetExclusive requests exclusive device access. Not every device or
// backend grants it; check the negotiated configuration.
func (b *StreamBuilder[D, C, T]) SetExclusive() *StreamBuilder[D, C, T] {
	return b.SetSharingMode(SharingModeExclusive)
}

func (b *StreamBuilder[D, C, T]) SetPerformanceMode(mode PerformanceMode) *StreamBuilder[D, C, T] {
	b.live().PerformanceMode = mode
	return b
}

func (b *StreamBuilder[D, C, T]) SetUsage(usage Usage) *StreamBuilder[D, C, T] {
	b.live().Usage = usage
	return b
}

func (b *StreamBuilder[D, C, T]) SetContentType(contentType ContentType) *StreamBuilder[D, C, T] {
	b.live().ContentType = contentType
	return b
}

// SetInputPreset selects the capture processing chain. Ignored for output streams.
func (b *StreamBuilder[D, C, T]) SetInputPreset(preset InputPreset) *StreamBuilder[D, C, T] {
	b.live().InputPreset = preset
	return b
}

// SetSessionID requests an effects session. SessionIDAllocate asks the
// platform for a new one; read it back from the opened stream.
func (b *StreamBuilder[D, C, T]) SetSessionID(id SessionID) *StreamBuilder[D, C, T] {
	b.live().SessionID = id
	return b
}

// SetDeviceID routes the stream to a device id from AudioDeviceInfo. The
// OpenSL ES backend ignores it and reports the device as unspecified.
func (b *StreamBuilder[D, C, T]) SetDeviceID(id int32) *StreamBuilder[D, C, T] {
	b.live().DeviceID = id
	return b
}

func (b *StreamBuilder[D, C, T]) SetChannelConversionAllowed(allowed bool) *StreamBuilder[D, C, T] {
	b.live().ChannelConversionAllowed = allowed
	return b
}

func (b *StreamBuilder[D, C, T]) SetFormatConversionAllowed(allowed bool) *StreamBuilder[D, C, T] {
	b.live().FormatConversionAllowed = allowed
	return b
}

func (b *StreamBuilder[D, C, T]) SetSampleRateConversionQuality(quality SampleRateConversionQuality) *StreamBuilder[D, C, T] {
	b.live().SampleRateConversionQuality = quality
	return b
}

// Config returns a copy of the configuration accumulated so far.
func (b *StreamBuilder[D, C, T]) Config() StreamConfig {
	return *b.live()
}

// AudioAPI returns the requested backend.
func (b *StreamBuilder[D, C, T]) AudioAPI() AudioAPI {
	return b.live().AudioAPI
}

func (b *StreamBuilder[D, C, T]) IsAAudioSupported() bool {
	return b.platform.IsAAudioSupported()
}

func (b *StreamBuilder[D, C, T]) IsAAudioRecommended() bool {
	return b.platform.IsAAudioRecommended()
}

// WillUseAAudio reports whether Open is expected to use the AAudio backend.
func (b *StreamBuilder[D, C, T]) WillUseAAudio() bool {
	return WillUseAAudio(b.live().AudioAPI, b.platform.IsAAudioSupported(), b.platform.IsAAudioRecommended())
}

// Open negotiates the configuration with the platform and returns a
// blocking stream. The builder is consumed whether or not Open succeeds.
func (b *StreamBuilder[D, C, T]) Open() (*SyncStream[D, C, T], error) {
	if b.cfg == nil {
		return nil, ErrBuilderConsumed
	}
	cfg := b.take()

	native, err := negotiate(b.platform, *cfg, true)
	if err != nil {
		return nil, err
	}
	return &SyncStream[D, C, T]{stream: newStream(native, nil)}, nil
}

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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultBuilder(t *testing.T) {
	b := NewStreamBuilder(NewMockPlatform())
	cfg := b.Config()

	assert.Equal(t, DirectionOutput, cfg.Direction, "default direction should be output")
	assert.Equal(t, ChannelCountUnspecified, cfg.ChannelCount)
	assert.Equal(t, FormatUnspecified, cfg.Format)
	assert.Equal(t, SharingModeShared, cfg.SharingMode)
	assert.True(t, cfg.ChannelConversionAllowed)
	assert.True(t, cfg.FormatConversionAllowed)
	assert.Equal(t, SampleRateConversionQualityNone, cfg.SampleRateConversionQuality)
	assert.Equal(t, SessionIDNone, cfg.SessionID)
	assert.Equal(t, AudioAPIUnspecified, cfg.AudioAPI)
	assert.Equal(t, PerformanceModeNone, cfg.PerformanceMode)
	assert.Equal(t, UnspecifiedValue, cfg.SampleRate)
	assert.Equal(t, UnspecifiedValue, cfg.DeviceID)
	assert.False(t, cfg.HasCallback())
	assert.NoError(t, cfg.Validate(), "default configuration should be valid")
}

func TestOrthogonalSettersLastWriteWins(t *testing.T) {
	t.Run("same_field_overwritten", func(t *testing.T) {
		b := NewStreamBuilder(NewMockPlatform()).
			SetSampleRate(44100).
			SetSampleRate(16000).
			SetSampleRate(48000)
		assert.Equal(t, int32(48000), b.Config().SampleRate)
	})

	t.Run("interleaved_fields", func(t *testing.T) {
		b := NewStreamBuilder(NewMockPlatform())
		b.SetFramesPerCallback(96).
			SetSharingMode(SharingModeExclusive).
			SetFramesPerCallback(192).
			SetPerformanceMode(PerformanceModePowerSaving).
			SetShared().
			SetPerformanceMode(PerformanceModeLowLatency).
			SetExclusive()

		cfg := b.Config()
		assert.Equal(t, int32(192), cfg.FramesPerCallback)
		assert.Equal(t, SharingModeExclusive, cfg.SharingMode)
		assert.Equal(t, PerformanceModeLowLatency, cfg.PerformanceMode)
	})

	t.Run("order_across_fields_is_irrelevant", func(t *testing.T) {
		a := NewStreamBuilder(NewMockPlatform()).
			SetUsage(UsageGame).
			SetContentType(ContentTypeSpeech).
			SetDeviceID(7).
			SetSessionID(SessionIDAllocate)
		b := NewStreamBuilder(NewMockPlatform()).
			SetSessionID(SessionIDAllocate).
			SetDeviceID(7).
			SetContentType(ContentTypeSpeech).
			SetUsage(UsageGame)
		assert.Equal(t, a.Config(), b.Config())
	})

	t.Run("every_orthogonal_field", func(t *testing.T) {
		b := NewStreamBuilder(NewMockPlatform()).
			SetSampleRate(22050).
			SetFramesPerCallback(64).
			SetBufferCapacityInFrames(1024).
			SetAudioAPI(AudioAPIOpenSLES).
			SetSharingMode(SharingModeExclusive).
			SetPerformanceMode(PerformanceModeLowLatency).
			SetUsage(UsageVoiceCommunication).
			SetContentType(ContentTypeSpeech).
			SetInputPreset(InputPresetUnprocessed).
			SetSessionID(SessionID(42)).
			SetDeviceID(3).
			SetChannelConversionAllowed(false).
			SetFormatConversionAllowed(false).
			SetSampleRateConversionQuality(SampleRateConversionQualityBest)

		cfg := b.Config()
		assert.Equal(t, int32(22050), cfg.SampleRate)
		assert.Equal(t, int32(64), cfg.FramesPerCallback)
		assert.Equal(t, int32(1024), cfg.BufferCapacityInFrames)
		assert.Equal(t, AudioAPIOpenSLES, cfg.AudioAPI)
		assert.Equal(t, AudioAPIOpenSLES, b.AudioAPI())
		assert.Equal(t, SharingModeExclusive, cfg.SharingMode)
		assert.Equal(t, PerformanceModeLowLatency, cfg.PerformanceMode)
		assert.Equal(t, UsageVoiceCommunication, cfg.Usage)
		assert.Equal(t, ContentTypeSpeech, cfg.ContentType)
		assert.Equal(t, InputPresetUnprocessed, cfg.InputPreset)
		assert.Equal(t, SessionID(42), cfg.SessionID)
		assert.Equal(t, int32(3), cfg.DeviceID)
		assert.False(t, cfg.ChannelConversionAllowed)
		assert.False(t, cfg.FormatConversionAllowed)
		assert.Equal(t, SampleRateConversionQualityBest, cfg.SampleRateConversionQuality)
	})
}

func TestTypeNarrowingTags(t *testing.T) {
	p := NewMockPlatform()

	t.Run("direction", func(t *testing.T) {
		assert.Equal(t, DirectionInput, NewStreamBuilder(p).SetInput().Config().Direction)
		assert.Equal(t, DirectionOutput, NewStreamBuilder(p).SetInput().SetOutput().Config().Direction)
		assert.Equal(t, DirectionInput, SetDirection[Input](NewStreamBuilder(p)).Config().Direction)
		assert.Equal(t, DirectionOutput, SetDirection[Output](NewStreamBuilder(p)).Config().Direction)
	})

	t.Run("channel_count", func(t *testing.T) {
		assert.Equal(t, ChannelCountMono, NewStreamBuilder(p).SetMono().Config().ChannelCount)
		assert.Equal(t, ChannelCountStereo, NewStreamBuilder(p).SetStereo().Config().ChannelCount)
		assert.Equal(t, ChannelCountUnspecified,
			SetChannelCount[Unspecified](NewStreamBuilder(p).SetStereo()).Config().ChannelCount)
	})

	t.Run("format", func(t *testing.T) {
		assert.Equal(t, FormatI16, NewStreamBuilder(p).SetI16().Config().Format)
		assert.Equal(t, FormatFloat, NewStreamBuilder(p).SetF32().Config().Format)
		assert.Equal(t, FormatUnspecified, SetFormat[Unspecified](NewStreamBuilder(p).SetI16()).Config().Format)
	})

	t.Run("narrowing_keeps_orthogonal_fields", func(t *testing.T) {
		b := NewStreamBuilder(p).
			SetSampleRate(16000).
			SetDeviceID(2).
			SetInput().
			SetMono().
			SetI16()
		cfg := b.Config()
		assert.Equal(t, int32(16000), cfg.SampleRate)
		assert.Equal(t, int32(2), cfg.DeviceID)
		assert.Equal(t, DirectionInput, cfg.Direction)
		assert.Equal(t, ChannelCountMono, cfg.ChannelCount)
		assert.Equal(t, FormatI16, cfg.Format)
	})

	t.Run("frame_type_helper", func(t *testing.T) {
		format, channels := FrameType[int16, Stereo]()
		assert.Equal(t, FormatI16, format)
		assert.Equal(t, ChannelCountStereo, channels)
		format, channels = FrameType[float32, Mono]()
		assert.Equal(t, FormatFloat, format)
		assert.Equal(t, ChannelCountMono, channels)
	})
}

func TestBuilderConsumption(t *testing.T) {
	p := NewMockPlatform()

	t.Run("narrowing_consumes_source", func(t *testing.T) {
		b := NewStreamBuilder(p)
		_ = b.SetInput()
		assert.Panics(t, func() { b.SetSampleRate(48000) }, "setter on consumed builder should panic")

		_, err := b.Open()
		assert.ErrorIs(t, err, ErrBuilderConsumed)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("open_consumes_builder", func(t *testing.T) {
		b := NewStreamBuilder(p).SetOutput().SetStereo().SetF32()
		s, err := b.Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		_, err = b.Open()
		assert.ErrorIs(t, err, ErrBuilderConsumed, "second open should fail")
	})

	t.Run("failed_open_consumes_builder", func(t *testing.T) {
		failing := NewMockPlatform()
		failing.SetOpenError(StatusErrorUnavailable)
		b := NewStreamBuilder(failing).SetInput()

		_, err := b.Open()
		require.ErrorIs(t, err, ErrPlatformOpen)

		_, err = b.Open()
		assert.ErrorIs(t, err, ErrBuilderConsumed)
		assert.Equal(t, 1, failing.OpenAttempts(), "consumed builder must not reach the platform")
	})
}

func TestWillUseAAudio(t *testing.T) {
	tests := []struct {
		name        string
		api         AudioAPI
		supported   bool
		recommended bool
		want        bool
	}{
		{name: "aaudio_supported_recommended", api: AudioAPIAAudio, supported: true, recommended: true, want: true},
		{name: "aaudio_supported_not_recommended", api: AudioAPIAAudio, supported: true, recommended: false, want: true},
		{name: "aaudio_unsupported_recommended", api: AudioAPIAAudio, supported: false, recommended: true, want: false},
		{name: "aaudio_unsupported_not_recommended", api: AudioAPIAAudio, supported: false, recommended: false, want: false},
		{name: "unspecified_supported_recommended", api: AudioAPIUnspecified, supported: true, recommended: true, want: true},
		{name: "unspecified_supported_not_recommended", api: AudioAPIUnspecified, supported: true, recommended: false, want: false},
		{name: "unspecified_unsupported_recommended", api: AudioAPIUnspecified, supported: false, recommended: true, want: true},
		{name: "unspecified_unsupported_not_recommended", api: AudioAPIUnspecified, supported: false, recommended: false, want: false},
		{name: "opensles_supported_recommended", api: AudioAPIOpenSLES, supported: true, recommended: true, want: false},
		{name: "opensles_unsupported_not_recommended", api: AudioAPIOpenSLES, supported: false, recommended: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WillUseAAudio(tt.api, tt.supported, tt.recommended))

			p := NewMockPlatform()
			p.SetAAudioSupported(tt.supported)
			p.SetAAudioRecommended(tt.recommended)
			b := NewStreamBuilder(p).SetAudioAPI(tt.api)
			assert.Equal(t, tt.want, b.WillUseAAudio(), "builder predicate should match the rule")

			s, err := b.Open()
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			wantAPI := AudioAPIOpenSLES
			if tt.want {
				wantAPI = AudioAPIAAudio
			}
			assert.Equal(t, wantAPI, s.AudioAPI(), "platform choice should mirror the predicate")
		})
	}
}

func TestAAudioUnsupportedFallback(t *testing.T) {
	p := NewMockPlatform()
	p.SetAAudioSupported(false)

	b := NewStreamBuilder(p).SetAudioAPI(AudioAPIAAudio).SetOutput().SetStereo().SetF32()
	assert.False(t, b.IsAAudioSupported())
	assert.False(t, b.WillUseAAudio(), "AAudio is not supported so the fallback is expected")

	s, err := b.Open()
	require.NoError(t, err, "open should still succeed on the fallback backend")
	defer func() { _ = s.Close() }()

	assert.Equal(t, AudioAPIOpenSLES, s.AudioAPI())
	assert.Equal(t, StreamStateOpen, s.State())
}

func TestInputMonoI16Scenario(t *testing.T) {
	p := NewMockPlatform()

	s, err := NewStreamBuilder(p).
		SetInput().
		SetMono().
		SetI16().
		SetSampleRate(16000).
		Open()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cfg := s.Config()
	assert.Equal(t, DirectionInput, cfg.Direction)
	assert.Equal(t, ChannelCountMono, cfg.ChannelCount)
	assert.Equal(t, FormatI16, cfg.Format)
	assert.Equal(t, int32(16000), cfg.SampleRate)
}

func TestOpenSLESNegotiationRules(t *testing.T) {
	p := NewMockPlatform()

	s, err := NewStreamBuilder(p).
		SetAudioAPI(AudioAPIOpenSLES).
		SetDeviceID(5).
		SetExclusive().
		Open()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	cfg := s.Config()
	assert.Equal(t, AudioAPIOpenSLES, cfg.AudioAPI)
	assert.Equal(t, UnspecifiedValue, cfg.DeviceID, "OpenSL ES reports the device as unspecified")
	assert.Equal(t, SharingModeShared, cfg.SharingMode, "OpenSL ES does not grant exclusive mode")
	assert.Equal(t, ChannelCountStereo, cfg.ChannelCount, "unspecified output channels default to stereo")
	assert.Equal(t, FormatFloat, cfg.Format)
	assert.Equal(t, int32(48000), cfg.SampleRate)
}

// heldNative parks the first Write until release is closed and records a
// Close that lands while the transfer is still inside the platform.
type heldNative struct {
	NativeStream
	entered        chan struct{}
	release        chan struct{}
	inWrite        atomic.Bool
	closedInsideIO atomic.Bool
}

func (h *heldNative) Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	h.inWrite.Store(true)
	defer h.inWrite.Store(false)
	close(h.entered)
	<-h.release
	return h.NativeStream.Write(buf, numFrames, timeout)
}

func (h *heldNative) Close() error {
	if h.inWrite.Load() {
		h.closedInsideIO.Store(true)
	}
	return h.NativeStream.Close()
}

type heldPlatform struct {
	*MockPlatform
	native *heldNative
}

func (p *heldPlatform) OpenStream(cfg StreamConfig) (NativeStream, error) {
	n, err := p.MockPlatform.OpenStream(cfg)
	if err != nil {
		return n, err
	}
	p.native.NativeStream = n
	return p.native, nil
}

func TestCloseWaitsForBlockingWrite(t *testing.T) {
	native := &heldNative{entered: make(chan struct{}), release: make(chan struct{})}
	p := &heldPlatform{MockPlatform: NewMockPlatform(), native: native}

	s, err := NewStreamBuilder(p).SetStereo().SetF32().Open()
	require.NoError(t, err)
	require.NoError(t, s.Start())

	written := make(chan error, 1)
	go func() {
		_, err := Write(s, make([]float32, 2*480), time.Second)
		written <- err
	}()
	<-native.entered

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a Write was still in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(native.release)
	require.NoError(t, <-written)
	require.NoError(t, <-closed)
	assert.False(t, native.closedInsideIO.Load(), "native handle released under an active transfer")

	_, err = Write(s, make([]float32, 2*480), time.Second)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

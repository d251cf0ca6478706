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


package miniaudio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

func TestFormatMapping(t *testing.T) {
	for _, f := range []audio.AudioFormat{audio.FormatI16, audio.FormatI24, audio.FormatI32, audio.FormatFloat} {
		t.Run(f.String(), func(t *testing.T) {
			assert.Equal(t, f, formatFromMalgo(formatToMalgo(f)))
		})
	}
	assert.Equal(t, malgo.FormatUnknown, formatToMalgo(audio.FormatUnspecified))
	assert.Equal(t, audio.FormatInvalid, formatFromMalgo(malgo.FormatU8))
}

func TestAttributeMapping(t *testing.T) {
	assert.Equal(t, malgo.AAudioUsageGame, usageToMalgo(audio.UsageGame))
	assert.Equal(t, malgo.AAudioUsageDefault, usageToMalgo(audio.Usage(99)))
	assert.Equal(t, malgo.AAudioContentTypeSpeech, contentTypeToMalgo(audio.ContentTypeSpeech))
	assert.Equal(t, malgo.AAudioInputPresetVoiceRecognition, inputPresetToMalgo(audio.InputPresetVoiceRecognition))
	assert.Equal(t, malgo.AAudioInputPresetDefault, inputPresetToMalgo(audio.InputPreset(0)))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want audio.Status
	}{
		{name: "format", err: malgo.ErrFormatNotSupported, want: audio.StatusErrorInvalidFormat},
		{name: "no_device", err: malgo.ErrNoDevice, want: audio.StatusErrorUnavailable},
		{name: "exclusive_refused", err: malgo.ErrShareModeNotSupported, want: audio.StatusErrorUnavailable},
		{name: "memory", err: malgo.ErrOutOfMemory, want: audio.StatusErrorNoMemory},
		{name: "bad_config", err: malgo.ErrInvalidDeviceConfig, want: audio.StatusErrorIllegalArgument},
		{name: "not_started", err: malgo.ErrDeviceNotStarted, want: audio.StatusErrorInvalidState},
		{name: "foreign", err: errors.New("boom"), want: audio.StatusErrorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError(tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseSDKVersion(t *testing.T) {
	assert.Equal(t, 34, parseSDKVersion("34\n"))
	assert.Equal(t, 0, parseSDKVersion(""))
	assert.Equal(t, 0, parseSDKVersion("unknown"))
}

func TestBackendSelection(t *testing.T) {
	t.Run("android_maps_api_to_backend", func(t *testing.T) {
		p := &Platform{android: true}
		assert.Equal(t, []malgo.Backend{malgo.BackendAaudio}, p.backends(audio.AudioAPIAAudio))
		assert.Equal(t, []malgo.Backend{malgo.BackendOpensl}, p.backends(audio.AudioAPIOpenSLES))
	})

	t.Run("desktop_uses_host_backends", func(t *testing.T) {
		p := NewWithBackends(malgo.BackendNull)
		p.android = false
		assert.Equal(t, []malgo.Backend{malgo.BackendNull}, p.backends(audio.AudioAPIAAudio))
		assert.False(t, p.IsAAudioSupported())
		assert.False(t, p.IsAAudioRecommended())
		assert.False(t, audio.NewStreamBuilder(p).SetAudioAPI(audio.AudioAPIAAudio).WillUseAAudio())
	})
}

func TestDeviceConfig(t *testing.T) {
	cfg := audio.DefaultStreamConfig()
	cfg.Direction = audio.DirectionInput
	cfg.ChannelCount = audio.ChannelCountMono
	cfg.Format = audio.FormatI16
	cfg.SampleRate = 16000
	cfg.FramesPerCallback = 160
	cfg.BufferCapacityInFrames = 500
	cfg.SharingMode = audio.SharingModeExclusive
	cfg.PerformanceMode = audio.PerformanceModeLowLatency

	dc := deviceConfig(cfg, malgo.Capture)
	assert.Equal(t, malgo.FormatS16, dc.Capture.Format)
	assert.Equal(t, uint32(1), dc.Capture.Channels)
	assert.Equal(t, malgo.Exclusive, dc.Capture.ShareMode)
	assert.Equal(t, uint32(16000), dc.SampleRate)
	assert.Equal(t, uint32(160), dc.PeriodSizeInFrames)
	assert.Equal(t, uint32(4), dc.Periods, "capacity rounds up to whole periods")
	assert.Equal(t, malgo.LowLatency, dc.PerformanceProfile)
	assert.Equal(t, malgo.AAudioInputPresetVoiceRecognition, dc.AAudio.InputPreset)
}

type countingSine struct {
	calls atomic.Int64
}

func (c *countingSine) OnAudioReady(_ audio.StreamInfo, frames audio.OutputFrames[float32, audio.Stereo]) audio.DataCallbackResult {
	c.calls.Add(1)
	frames.Fill(0.1)
	return audio.DataCallbackResultContinue
}

// nullPlatform returns a platform on miniaudio's null backend, which runs a
// real device thread without audio hardware
func nullPlatform(t *testing.T) *Platform {
	t.Helper()
	p := NewWithBackends(malgo.BackendNull)
	p.android = false

	ctx, err := malgo.InitContext(p.hostBackends, malgo.ContextConfig{}, nil)
	if err != nil {
		t.Skipf("miniaudio null backend unavailable: %v", err)
	}
	releaseContext(ctx)
	return p
}

func TestNullBackendStreams(t *testing.T) {
	p := nullPlatform(t)

	t.Run("callback_output", func(t *testing.T) {
		cb := &countingSine{}
		s, err := audio.SetOutputCallback(audio.NewStreamBuilder(p).SetStereo().SetF32(), cb).
			SetSampleRate(48000).
			SetFramesPerCallback(480).
			Open()
		require.NoError(t, err)

		assert.Equal(t, audio.AudioAPIOpenSLES, s.AudioAPI())
		assert.Equal(t, int32(48000), s.Config().SampleRate)

		require.NoError(t, s.Start())
		require.Eventually(t, func() bool { return cb.calls.Load() > 2 }, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, s.Close())

		calls := cb.calls.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, calls, cb.calls.Load(), "no invocations after close")
	})

	t.Run("blocking_input", func(t *testing.T) {
		s, err := audio.NewStreamBuilder(p).SetInput().SetMono().SetI16().SetSampleRate(16000).Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Start())
		buf := make([]int16, 160)
		n, err := audio.Read(s, buf, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int32(160), n)
	})

	t.Run("blocking_output", func(t *testing.T) {
		s, err := audio.NewStreamBuilder(p).SetStereo().SetI16().SetSessionID(audio.SessionIDAllocate).Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		assert.Greater(t, int32(s.SessionID()), int32(0))
		n, err := audio.Write(s, make([]int16, 2*256), time.Second)
		require.NoError(t, err)
		assert.Equal(t, int32(256), n, "ring buffer accepts frames before start")

		require.NoError(t, s.Start())
		require.NoError(t, s.Stop())
		assert.Equal(t, audio.StreamStateStopped, s.State())
	})
}

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


package portaudio

import (
	"errors"
	"os"
	"testing"
	"time"

	pa "github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

func testDevice() *pa.DeviceInfo {
	return &pa.DeviceInfo{
		Index:                    3,
		Name:                     "USB Audio",
		MaxInputChannels:         1,
		MaxOutputChannels:        2,
		DefaultLowInputLatency:   5 * time.Millisecond,
		DefaultLowOutputLatency:  5 * time.Millisecond,
		DefaultHighInputLatency:  40 * time.Millisecond,
		DefaultHighOutputLatency: 40 * time.Millisecond,
		DefaultSampleRate:        44100,
	}
}

func TestPlatformProbes(t *testing.T) {
	p := New()
	assert.False(t, p.IsAAudioSupported())
	assert.False(t, p.IsAAudioRecommended())
}

func TestNegotiate(t *testing.T) {
	p := New()
	dev := testDevice()

	t.Run("fills_unspecified_from_device", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		n, params, err := p.negotiate(cfg, dev)
		require.NoError(t, err)

		assert.Equal(t, audio.AudioAPIOpenSLES, n.AudioAPI)
		assert.Equal(t, audio.FormatFloat, n.Format)
		assert.Equal(t, audio.ChannelCountStereo, n.ChannelCount)
		assert.Equal(t, int32(44100), n.SampleRate)
		assert.Equal(t, 2, params.Output.Channels)
		assert.Nil(t, params.Input.Device)
		assert.Equal(t, defaultFramesPerBuffer, params.FramesPerBuffer)
	})

	t.Run("aaudio_request_falls_back", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		cfg.AudioAPI = audio.AudioAPIAAudio
		cfg.DeviceID = 9
		cfg.SharingMode = audio.SharingModeExclusive

		n, _, err := p.negotiate(cfg, dev)
		require.NoError(t, err)
		assert.Equal(t, audio.AudioAPIOpenSLES, n.AudioAPI)
		assert.Equal(t, audio.UnspecifiedValue, n.DeviceID)
		assert.Equal(t, audio.SharingModeShared, n.SharingMode)
	})

	t.Run("input_mono_low_latency", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		cfg.Direction = audio.DirectionInput
		cfg.Format = audio.FormatI16
		cfg.SampleRate = 16000
		cfg.FramesPerCallback = 160
		cfg.PerformanceMode = audio.PerformanceModeLowLatency

		n, params, err := p.negotiate(cfg, dev)
		require.NoError(t, err)
		assert.Equal(t, audio.ChannelCountMono, n.ChannelCount)
		assert.Equal(t, 1, params.Input.Channels)
		assert.Equal(t, 5*time.Millisecond, params.Input.Latency)
		assert.InDelta(t, 16000, params.SampleRate, 0.1)
		assert.Equal(t, 160, params.FramesPerBuffer)
	})

	t.Run("too_many_channels", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		cfg.Direction = audio.DirectionInput
		cfg.ChannelCount = audio.ChannelCountStereo

		_, _, err := p.negotiate(cfg, dev)
		assert.ErrorIs(t, err, audio.StatusErrorInvalidFormat)
	})

	t.Run("unsupported_format", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		cfg.Format = audio.FormatI24

		_, _, err := p.negotiate(cfg, dev)
		assert.ErrorIs(t, err, audio.StatusErrorInvalidFormat)
	})

	t.Run("session_allocation", func(t *testing.T) {
		cfg := audio.DefaultStreamConfig()
		cfg.SessionID = audio.SessionIDAllocate

		first, _, err := p.negotiate(cfg, dev)
		require.NoError(t, err)
		second, _, err := p.negotiate(cfg, dev)
		require.NoError(t, err)
		assert.Greater(t, int32(first.SessionID), int32(0))
		assert.NotEqual(t, first.SessionID, second.SessionID)
	})
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want audio.Status
	}{
		{name: "invalid_rate", err: pa.InvalidSampleRate, want: audio.StatusErrorInvalidRate},
		{name: "busy_device", err: pa.DeviceUnavailable, want: audio.StatusErrorUnavailable},
		{name: "no_default_input", err: pa.NoDefaultInputDevice, want: audio.StatusErrorUnavailable},
		{name: "bad_format", err: pa.SampleFormatNotSupported, want: audio.StatusErrorInvalidFormat},
		{name: "not_initialized", err: pa.NotInitialized, want: audio.StatusErrorInvalidState},
		{name: "timeout", err: pa.TimedOut, want: audio.StatusErrorTimeout},
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

func TestOpenWithoutInitialize(t *testing.T) {
	_, err := New().OpenStream(audio.DefaultStreamConfig())
	assert.ErrorIs(t, err, audio.StatusErrorInvalidState)
	assert.Contains(t, err.Error(), "not initialized")
}

// TestPortAudioHardware exercises a real default output device
func TestPortAudioHardware(t *testing.T) {
	if isCIEnvironment() {
		t.Skip("Skipping PortAudio tests in CI environment")
	}

	p := New()
	if err := p.Initialize(); err != nil {
		t.Skipf("PortAudio initialization failed (may be expected): %v", err)
	}
	defer func() { _ = p.Terminate() }() // Ignore errors during test cleanup

	t.Run("double_initialization", func(t *testing.T) {
		assert.NoError(t, p.Initialize(), "double initialization should be safe")
	})

	t.Run("blocking_output", func(t *testing.T) {
		s, err := audio.NewStreamBuilder(p).SetStereo().SetF32().SetSampleRate(48000).Open()
		if err != nil {
			t.Skipf("no usable output device (may be expected): %v", err)
		}
		defer func() { _ = s.Close() }()

		assert.Equal(t, audio.AudioAPIOpenSLES, s.AudioAPI())
		require.NoError(t, s.Start())
		n, err := audio.Write(s, make([]float32, 2*480), time.Second)
		require.NoError(t, err)
		assert.Equal(t, int32(480), n)
		require.NoError(t, s.Stop())
	})

	t.Run("close_during_blocking_write", func(t *testing.T) {
		s, err := audio.NewStreamBuilder(p).SetStereo().SetF32().SetSampleRate(48000).Open()
		if err != nil {
			t.Skipf("no usable output device (may be expected): %v", err)
		}
		require.NoError(t, s.Start())

		done := make(chan error, 1)
		go func() {
			_, err := audio.Write(s, make([]float32, 2*48000), 2*time.Second)
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)

		assert.NoError(t, s.Close())
		<-done // the transfer may end early once the stream stops
		assert.Equal(t, audio.StreamStateClosed, s.State())
	})
}

func TestTransferRefusedOnceClosing(t *testing.T) {
	cfg := audio.DefaultStreamConfig()
	cfg.ChannelCount = audio.ChannelCountMono
	cfg.Format = audio.FormatI16

	for _, state := range []audio.StreamState{audio.StreamStateClosing, audio.StreamStateClosed} {
		t.Run(state.String(), func(t *testing.T) {
			s := &stream{cfg: cfg, state: state, store: make([]byte, 64*cfg.BytesPerFrame())}
			called := false
			n, err := s.transfer(make([]byte, 32*cfg.BytesPerFrame()), 32, func() error {
				called = true
				return nil
			}, false)
			assert.ErrorIs(t, err, audio.StatusErrorClosed)
			assert.Zero(t, n)
			assert.False(t, called, "no PortAudio transfer may start on a closing stream")
		})
	}
}

func TestTerminateWithoutInit(t *testing.T) {
	assert.NoError(t, New().Terminate(), "should handle terminate without init")
}

// isCIEnvironment detects if we're running in a CI environment
func isCIEnvironment() bool {
	ciEnvVars := []string{
		"CI", // Generic CI indicator
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS", // GitHub Actions
		"GITLAB_CI",      // GitLab CI
		"JENKINS_URL",    // Jenkins
		"BUILDKITE",      // Buildkite
	}
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

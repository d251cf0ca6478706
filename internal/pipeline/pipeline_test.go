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


package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestToneFill(t *testing.T) {
	t.Run("float_stereo_channels_match", func(t *testing.T) {
		tone := NewTone[float32, audio.Stereo](1000, 0.5)
		samples := make([]float32, 2*48)
		tone.Fill(samples, 2, 48000)

		assert.InDelta(t, 0, samples[0], 1e-6, "starts at zero phase")
		for i := 0; i < len(samples); i += 2 {
			assert.Equal(t, samples[i], samples[i+1], "frame %d", i/2)
			assert.LessOrEqual(t, math.Abs(float64(samples[i])), 0.5+1e-6)
		}
		// a quarter period of 1 kHz at 48 kHz is 12 frames
		assert.InDelta(t, 0.5, samples[24], 1e-4)
	})

	t.Run("phase_continues_across_calls", func(t *testing.T) {
		whole := make([]int16, 64)
		NewTone[int16, audio.Mono](440, 1).Fill(whole, 1, 16000)

		split := NewTone[int16, audio.Mono](440, 1)
		first, second := make([]int16, 32), make([]int16, 32)
		split.Fill(first, 1, 16000)
		split.Fill(second, 1, 16000)

		assert.Equal(t, whole, append(first, second...))
	})

	t.Run("amplitude_clamped", func(t *testing.T) {
		samples := make([]int16, 400)
		NewTone[int16, audio.Mono](100, 3).Fill(samples, 1, 400)
		assert.Equal(t, int16(math.MaxInt16), samples[1])
	})

	t.Run("unknown_rate_is_silent", func(t *testing.T) {
		samples := []float32{1, 1, 1, 1}
		NewTone[float32, audio.Stereo](440, 1).Fill(samples, 2, 0)
		assert.Equal(t, []float32{0, 0, 0, 0}, samples)
	})
}

func TestPlayerFill(t *testing.T) {
	t.Run("spans_queued_buffers", func(t *testing.T) {
		p := NewPlayer[int16, audio.Mono](4)
		require.True(t, p.Enqueue([]int16{1, 2, 3}))
		require.True(t, p.Enqueue([]int16{4, 5}))

		out := make([]int16, 4)
		p.Fill(out)
		assert.Equal(t, []int16{1, 2, 3, 4}, out)
		assert.Zero(t, p.Underruns())

		p.Fill(out)
		assert.Equal(t, []int16{5, 0, 0, 0}, out, "remainder then silence")
		assert.Equal(t, uint64(1), p.Underruns())
	})

	t.Run("underrun_plays_silence", func(t *testing.T) {
		p := NewPlayer[float32, audio.Stereo](1)
		out := []float32{9, 9, 9, 9}
		p.Fill(out)
		assert.Equal(t, []float32{0, 0, 0, 0}, out)
		assert.Equal(t, uint64(1), p.Underruns())
	})

	t.Run("full_queue_rejects", func(t *testing.T) {
		p := NewPlayer[int16, audio.Mono](1)
		assert.True(t, p.Enqueue([]int16{1}))
		assert.False(t, p.Enqueue([]int16{2}))
		assert.Equal(t, 1, p.Queued())
	})
}

func TestPlayerOnMockStream(t *testing.T) {
	platform := audio.NewMockPlatform()
	player := NewPlayer[float32, audio.Stereo](8)
	queued := []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3, 0.4, -0.4}
	require.True(t, player.Enqueue(queued))

	b := audio.NewStreamBuilder(platform).SetOutput().SetStereo().SetF32()
	stream, err := audio.SetOutputCallback(b, player).SetFramesPerCallback(4).Open()
	require.NoError(t, err)
	require.NoError(t, stream.Start())

	require.Eventually(t, func() bool {
		return len(platform.GetPlaybackAudioData()) >= 2
	}, time.Second, time.Millisecond)
	require.NoError(t, stream.Close())

	played := platform.GetPlaybackAudioData()
	first, err := transport.DecodeSamples[float32](played[0])
	require.NoError(t, err)
	assert.Equal(t, queued, first)

	second, err := transport.DecodeSamples[float32](played[1])
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), second)
	assert.NotZero(t, player.Underruns())
}

func TestTapOnMockStream(t *testing.T) {
	platform := audio.NewMockPlatform()
	platform.SetSimulateCallbacks(false)
	tap := NewTap[int16, audio.Mono](1)

	b := audio.NewStreamBuilder(platform).SetInput().SetMono().SetI16()
	stream, err := audio.SetInputCallback(b, tap).SetSampleRate(16000).Open()
	require.NoError(t, err)
	require.NoError(t, stream.Start())
	mock := platform.Streams()[0]

	t.Run("copies_captured_frames", func(t *testing.T) {
		mock.InvokeCallback(160)
		select {
		case samples := <-tap.Samples():
			require.Len(t, samples, 160)
			assert.Zero(t, samples[0], "sine starts at zero")
			assert.NotZero(t, samples[10])
		case <-time.After(time.Second):
			t.Fatal("no samples delivered")
		}
	})

	t.Run("drops_when_full", func(t *testing.T) {
		mock.InvokeCallback(160)
		mock.InvokeCallback(160)
		assert.Equal(t, uint64(1), tap.Dropped())
		<-tap.Samples()
	})

	t.Run("disconnect_closes_done", func(t *testing.T) {
		mock.Disconnect()
		select {
		case <-tap.Done():
		case <-time.After(time.Second):
			t.Fatal("tap not notified")
		}
		require.ErrorIs(t, tap.Err(), audio.StatusErrorDisconnected)
	})

	require.NoError(t, stream.Close())
}

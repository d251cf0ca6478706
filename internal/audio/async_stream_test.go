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
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOutput struct {
	calls  atomic.Int64
	value  float32
	result DataCallbackResult
}

func (c *countingOutput) OnAudioReady(_ StreamInfo, frames OutputFrames[float32, Stereo]) DataCallbackResult {
	c.calls.Add(1)
	frames.Fill(c.value)
	return c.result
}

type capturingInput struct {
	mu      sync.Mutex
	samples []int16
	frames  int
	errs    []string
}

func (c *capturingInput) OnAudioReady(_ StreamInfo, frames InputFrames[int16, Mono]) DataCallbackResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames += frames.Len()
	for i := 0; i < frames.Len(); i++ {
		c.samples = append(c.samples, frames.At(i, 0))
	}
	return DataCallbackResultContinue
}

func (c *capturingInput) OnErrorBeforeClose(_ StreamInfo, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, "before:"+err.Error())
}

func (c *capturingInput) OnErrorAfterClose(_ StreamInfo, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, "after:"+err.Error())
}

func (c *capturingInput) snapshot() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames, append([]string(nil), c.errs...)
}

func onlyStream(t *testing.T, p *MockPlatform) *MockStream {
	t.Helper()
	streams := p.Streams()
	require.Len(t, streams, 1, "expected exactly one open mock stream")
	return streams[0]
}

func TestAsyncCloseStopsInvocations(t *testing.T) {
	p := NewMockPlatform()
	cb := &countingOutput{value: 0.25}

	b := SetOutputCallback(NewStreamBuilder(p).SetOutput().SetStereo().SetF32(), cb)
	s, err := b.Open()
	require.NoError(t, err)

	native := onlyStream(t, p)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return cb.calls.Load() >= 3 }, time.Second, time.Millisecond,
		"platform should drive the callback while started")

	require.NoError(t, s.Close())
	assert.Equal(t, StreamStateClosed, s.State())
	callsAtClose := cb.calls.Load()

	result := native.InvokeCallback(mockFramesPerBurst)
	assert.Equal(t, DataCallbackResultStop, result, "late invocation should be told to stop")
	assert.Equal(t, callsAtClose, cb.calls.Load(), "no invocation may reach the callback after close")
	assert.Equal(t, uint64(1), s.CallbacksDropped())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, callsAtClose, cb.calls.Load(), "simulated audio thread must be gone after close")
}

func TestAsyncOutputFillsPlatformBuffer(t *testing.T) {
	p := NewMockPlatform()
	cb := &countingOutput{value: 0.5, result: DataCallbackResultStop}

	s, err := SetOutputCallback(NewStreamBuilder(p).SetStereo().SetF32(), cb).
		SetFramesPerCallback(4).
		Open()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.State() == StreamStateStopped }, time.Second, time.Millisecond,
		"returning stop should stop the stream")
	assert.Equal(t, int64(1), cb.calls.Load())

	played := p.GetPlaybackAudioData()
	require.Len(t, played, 1)
	require.Len(t, played[0], 4*2*4, "4 stereo float frames")
	for off := 0; off < len(played[0]); off += 4 {
		assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(played[0][off:])))
	}
}

func TestAsyncInputDeliversTypedFrames(t *testing.T) {
	p := NewMockPlatform()
	cb := &capturingInput{}

	s, err := SetInputCallback(NewStreamBuilder(p).SetInput().SetMono().SetI16(), cb).
		SetSampleRate(16000).
		SetFramesPerCallback(160).
		Open()
	require.NoError(t, err)

	native := onlyStream(t, p)
	native.SetAudioDataGenerator(func(buf []byte) {
		for i := 0; i+1 < len(buf); i += 2 {
			binary.LittleEndian.PutUint16(buf[i:], uint16(int16(i/2)))
		}
	})

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		frames, _ := cb.snapshot()
		return frames >= 320
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Close())

	cb.mu.Lock()
	defer cb.mu.Unlock()
	require.GreaterOrEqual(t, len(cb.samples), 160)
	for i := 0; i < 160; i++ {
		assert.Equal(t, int16(i), cb.samples[i])
	}
}

func TestAsyncErrorCallbacks(t *testing.T) {
	t.Run("disconnect_reaches_error_callbacks", func(t *testing.T) {
		p := NewMockPlatform()
		p.SetSimulateCallbacks(false)
		cb := &capturingInput{}

		s, err := SetInputCallback(NewStreamBuilder(p).SetInput().SetMono().SetI16(), cb).Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		onlyStream(t, p).Disconnect()

		_, errs := cb.snapshot()
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0], "before:")
		assert.Contains(t, errs[1], "after:")
		assert.Equal(t, StreamStateDisconnected, s.State())
	})

	t.Run("no_error_callbacks_after_close", func(t *testing.T) {
		p := NewMockPlatform()
		p.SetSimulateCallbacks(false)
		cb := &capturingInput{}

		s, err := SetInputCallback(NewStreamBuilder(p).SetInput().SetMono().SetI16(), cb).Open()
		require.NoError(t, err)

		native := onlyStream(t, p)
		require.NoError(t, s.Close())
		native.Disconnect()

		_, errs := cb.snapshot()
		assert.Empty(t, errs, "closed stream must not report errors to the callback")
		assert.Equal(t, uint64(2), s.CallbacksDropped())
	})
}

func TestAsyncOpenFailureReleasesCallback(t *testing.T) {
	p := NewMockPlatform()
	p.SetOpenError(StatusErrorNoFreeHandles)
	p.SetLeakOnError(true)
	cb := &countingOutput{}

	b := SetOutputCallback(NewStreamBuilder(p).SetStereo().SetF32(), cb)
	gate := b.gate

	_, err := b.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatformOpen)
	assert.ErrorIs(t, err, StatusErrorNoFreeHandles)
	assert.Empty(t, p.Streams(), "leaked native stream should have been closed")

	assert.Equal(t, DataCallbackResultStop, gate.OnAudioReady(nil, nil, 0))
	assert.Zero(t, cb.calls.Load(), "callback must be unreachable after a failed open")
}

func TestAsyncBuilderSetters(t *testing.T) {
	p := NewMockPlatform()
	b := SetInputCallback(NewStreamBuilder(p).SetInput().SetStereo().SetF32(), stereoSink()).
		SetSampleRate(44100).
		SetFramesPerCallback(256).
		SetBufferCapacityInFrames(2048).
		SetAudioAPI(AudioAPIAAudio).
		SetSharingMode(SharingModeExclusive).
		SetPerformanceMode(PerformanceModeLowLatency).
		SetUsage(UsageGame).
		SetContentType(ContentTypeSpeech).
		SetInputPreset(InputPresetVoiceCommunication).
		SetSessionID(SessionIDAllocate).
		SetDeviceID(4).
		SetChannelConversionAllowed(false).
		SetFormatConversionAllowed(false).
		SetSampleRateConversionQuality(SampleRateConversionQualityHigh)

	cfg := b.Config()
	assert.True(t, cfg.HasCallback())
	assert.Equal(t, DirectionInput, cfg.Direction)
	assert.Equal(t, ChannelCountStereo, cfg.ChannelCount)
	assert.Equal(t, FormatFloat, cfg.Format)
	assert.Equal(t, int32(44100), cfg.SampleRate)
	assert.Equal(t, int32(256), cfg.FramesPerCallback)
	assert.Equal(t, InputPresetVoiceCommunication, cfg.InputPreset)
	assert.True(t, b.WillUseAAudio())

	s, err := b.Open()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Greater(t, int32(s.SessionID()), int32(0), "allocated session id should be concrete")
	assert.False(t, s.Config().HasCallback(), "negotiated config must not expose the callback")
}

type stereoFloatSink struct{}

func (stereoFloatSink) OnAudioReady(StreamInfo, InputFrames[float32, Stereo]) DataCallbackResult {
	return DataCallbackResultContinue
}

func stereoSink() InputCallback[float32, Stereo] {
	return stereoFloatSink{}
}

func TestCallbackGateWaitsForInFlightInvocation(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := RawOutputCallback[float32, Mono](blockingOutput{entered: entered, release: release})
	gate := newCallbackGate(inner, DirectionOutput)

	go gate.OnAudioReady(nil, make([]byte, 4), 1)
	<-entered

	closed := make(chan struct{})
	go func() {
		gate.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while an invocation was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return after the invocation finished")
	}
	assert.Equal(t, DataCallbackResultStop, gate.OnAudioReady(nil, make([]byte, 4), 1))
}

type blockingOutput struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingOutput) OnAudioReady(StreamInfo, OutputFrames[float32, Mono]) DataCallbackResult {
	close(b.entered)
	<-b.release
	return DataCallbackResultContinue
}

func TestSyncReadWrite(t *testing.T) {
	t.Run("read_input_frames", func(t *testing.T) {
		p := NewMockPlatform()
		s, err := NewStreamBuilder(p).SetInput().SetMono().SetI16().SetSampleRate(16000).Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		buf := make([]int16, 160)
		_, err = Read(s, buf, time.Second)
		assert.ErrorIs(t, err, StatusErrorInvalidState, "read before start should fail")

		require.NoError(t, s.Start())
		n, err := Read(s, buf, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int32(160), n)

		nonZero := 0
		for _, v := range buf {
			if v != 0 {
				nonZero++
			}
		}
		assert.Greater(t, nonZero, 100, "mock should capture a sine wave")
	})

	t.Run("write_output_frames", func(t *testing.T) {
		p := NewMockPlatform()
		s, err := NewStreamBuilder(p).SetStereo().SetF32().Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		samples := []float32{0.1, -0.1, 0.2, -0.2}
		n, err := Write(s, samples, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int32(2), n)

		played := p.GetPlaybackAudioData()
		require.Len(t, played, 1)
		assert.Len(t, played[0], 16)
	})

	t.Run("partial_frame_rejected", func(t *testing.T) {
		s, err := NewStreamBuilder(NewMockPlatform()).SetStereo().SetI16().Open()
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		_, err = Write(s, []int16{1, 2, 3}, time.Second)
		assert.ErrorIs(t, err, ErrInvalidBuffer)
	})

	t.Run("io_after_close", func(t *testing.T) {
		s, err := NewStreamBuilder(NewMockPlatform()).SetStereo().SetI16().Open()
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "close should be idempotent")

		_, err = Write(s, []int16{1, 2}, time.Second)
		assert.ErrorIs(t, err, ErrStreamClosed)
		assert.ErrorIs(t, s.Start(), ErrStreamClosed)
	})
}

func TestStreamCloseReportsNativeError(t *testing.T) {
	p := NewMockPlatform()
	s, err := NewStreamBuilder(p).Open()
	require.NoError(t, err)

	native := onlyStream(t, p)
	closeErr := errors.New("driver busy")
	native.SetCloseError(closeErr)

	err = s.Close()
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, StreamStateClosed, s.State())

	native.SetCloseError(nil)
	require.NoError(t, native.Close())
}

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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

const (
	// minRingDuration bounds the blocking I/O ring buffer from below
	minRingDuration = 250 * time.Millisecond
	pollInterval    = time.Millisecond
)

// stream implements audio.NativeStream for a miniaudio device. Blocking
// streams exchange data with the device thread through a ring buffer.
type stream struct {
	opMu sync.Mutex // serializes Start, Stop and Close
	mu   sync.Mutex
	cfg  audio.StreamConfig

	state    audio.StreamState
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	ring     *ringbuffer.RingBuffer
	stopping atomic.Bool
	xruns    atomic.Uint64
}

func (s *stream) Config() audio.StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *stream) State() audio.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stream) setState(state audio.StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// readBack replaces requested values with what the device actually opened
func (s *stream) readBack(deviceType malgo.DeviceType, dc malgo.DeviceConfig) error {
	format := s.device.PlaybackFormat()
	channels := s.device.PlaybackChannels()
	if deviceType == malgo.Capture {
		format = s.device.CaptureFormat()
		channels = s.device.CaptureChannels()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Format = formatFromMalgo(format)
	if s.cfg.Format == audio.FormatInvalid {
		return fmt.Errorf("%w: device opened with unsupported sample format %d", audio.StatusErrorInvalidFormat, format)
	}
	s.cfg.ChannelCount = audio.ChannelCount(channels)
	s.cfg.SampleRate = int32(s.device.SampleRate())
	if dc.PeriodSizeInFrames > 0 && dc.Periods > 0 {
		s.cfg.BufferCapacityInFrames = int32(dc.PeriodSizeInFrames * dc.Periods)
	}
	return nil
}

func (s *stream) allocateRing() {
	frames := max(s.cfg.BufferCapacityInFrames, int32(float64(s.cfg.SampleRate)*minRingDuration.Seconds()))
	s.ring = ringbuffer.New(int(frames) * s.cfg.BytesPerFrame())
}

func (s *stream) RequestStart() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	switch s.State() {
	case audio.StreamStateClosed, audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case audio.StreamStateDisconnected:
		return audio.StatusErrorDisconnected
	case audio.StreamStateStarted:
		return nil
	}

	s.stopping.Store(false)
	s.setState(audio.StreamStateStarting)
	if err := s.device.Start(); err != nil {
		s.setState(audio.StreamStateStopped)
		return statusError(err)
	}
	s.setState(audio.StreamStateStarted)
	return nil
}

func (s *stream) RequestStop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop()
}

// stop must be called with opMu held
func (s *stream) stop() error {
	switch s.State() {
	case audio.StreamStateClosed, audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case audio.StreamStateStarted, audio.StreamStateStarting:
	default:
		return nil
	}
	s.setState(audio.StreamStateStopping)
	if err := s.device.Stop(); err != nil {
		s.setState(audio.StreamStateStarted)
		return statusError(err)
	}
	s.setState(audio.StreamStateStopped)
	return nil
}

// Close uninitializes the device, which waits for the device thread, and
// then releases the context.
func (s *stream) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() == audio.StreamStateClosed {
		return nil
	}
	s.setState(audio.StreamStateClosing)
	s.release()
	s.setState(audio.StreamStateClosed)
	if n := s.xruns.Load(); n > 0 {
		logger.Debug("Stream closed with ring buffer xruns", "count", n)
	}
	return nil
}

func (s *stream) release() {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		releaseContext(s.ctx)
		s.ctx = nil
	}
}

// onData runs on the miniaudio device thread
func (s *stream) onData(output, input []byte, frameCount uint32) {
	if s.cfg.HasCallback() {
		s.deliver(output, input, frameCount)
		return
	}

	if s.cfg.Direction == audio.DirectionInput {
		frameSize := s.cfg.BytesPerFrame()
		n := min(len(input), s.ring.Free()/frameSize*frameSize)
		if n > 0 {
			_, _ = s.ring.Write(input[:n])
		}
		if n < len(input) {
			s.xruns.Add(1)
		}
		return
	}

	n := s.readRing(output)
	if n < len(output) {
		clear(output[n:])
		s.xruns.Add(1)
	}
}

func (s *stream) deliver(output, input []byte, frameCount uint32) {
	data := output
	if s.cfg.Direction == audio.DirectionInput {
		data = input
	}
	if s.stopping.Load() {
		clear(output)
		return
	}

	if s.cfg.Callback().OnAudioReady(s, data, int32(frameCount)) == audio.DataCallbackResultStop {
		s.stopping.Store(true)
		go func() {
			if err := s.RequestStop(); err != nil && !errors.Is(err, audio.StatusErrorClosed) {
				logger.Warn("Failed to stop miniaudio stream after callback stop", "error", err)
			}
		}()
	}
}

// onStop runs when the device stops. A stop nobody asked for means the
// device went away.
func (s *stream) onStop() {
	s.mu.Lock()
	unexpected := s.state == audio.StreamStateStarted
	if unexpected {
		s.state = audio.StreamStateDisconnected
	}
	cb := s.cfg.Callback()
	s.mu.Unlock()

	if !unexpected || cb == nil {
		return
	}
	logger.Warn("Audio device stopped unexpectedly", "direction", s.cfg.Direction.String())
	cb.OnErrorBeforeClose(s, audio.StatusErrorDisconnected)
	cb.OnErrorAfterClose(s, audio.StatusErrorDisconnected)
}

func (s *stream) readRing(dst []byte) int {
	frameSize := s.cfg.BytesPerFrame()
	n := min(len(dst), s.ring.Length()/frameSize*frameSize)
	if n == 0 {
		return 0
	}
	read, err := s.ring.Read(dst[:n])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0
	}
	return read
}

// Read waits up to timeout for numFrames captured frames and returns the
// number of frames copied into buf.
func (s *stream) Read(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkIO(audio.DirectionInput, buf, numFrames); err != nil {
		return 0, err
	}
	frameSize := s.cfg.BytesPerFrame()
	want := int(numFrames) * frameSize
	done := 0
	deadline := time.Now().Add(timeout)
	for {
		done += s.readRing(buf[done:want])
		if done >= want || !time.Now().Before(deadline) {
			return int32(done / frameSize), nil
		}
		if err := s.checkStarted(); err != nil {
			return int32(done / frameSize), err
		}
		time.Sleep(pollInterval)
	}
}

// Write waits up to timeout for room to queue numFrames frames and returns
// the number of frames queued.
func (s *stream) Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkIO(audio.DirectionOutput, buf, numFrames); err != nil {
		return 0, err
	}
	frameSize := s.cfg.BytesPerFrame()
	want := int(numFrames) * frameSize
	done := 0
	deadline := time.Now().Add(timeout)
	for {
		if n := min(want-done, s.ring.Free()/frameSize*frameSize); n > 0 {
			written, err := s.ring.Write(buf[done : done+n])
			if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
				return int32(done / frameSize), fmt.Errorf("%w: %w", audio.StatusErrorInternal, err)
			}
			done += written
		}
		if done >= want || !time.Now().Before(deadline) {
			return int32(done / frameSize), nil
		}
		time.Sleep(pollInterval)
	}
}

func (s *stream) checkIO(dir audio.Direction, buf []byte, numFrames int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == audio.StreamStateClosed || s.state == audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case s.state == audio.StreamStateDisconnected:
		return audio.StatusErrorDisconnected
	case s.cfg.Direction != dir:
		return audio.StatusErrorUnimplemented
	case s.ring == nil:
		return audio.StatusErrorInvalidState
	case numFrames < 0 || len(buf) < int(numFrames)*s.cfg.BytesPerFrame():
		return audio.StatusErrorIllegalArgument
	}
	if dir == audio.DirectionInput && s.state != audio.StreamStateStarted {
		return audio.StatusErrorInvalidState
	}
	return nil
}

func (s *stream) checkStarted() error {
	switch s.State() {
	case audio.StreamStateStarted:
		return nil
	case audio.StreamStateDisconnected:
		return audio.StatusErrorDisconnected
	case audio.StreamStateClosed, audio.StreamStateClosing:
		return audio.StatusErrorClosed
	default:
		return audio.StatusErrorInvalidState
	}
}

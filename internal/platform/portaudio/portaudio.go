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


// Package portaudio implements audio.Platform on top of PortAudio. It is the
// compatibility backend: AAudio is never reported as available, so every
// request takes the fallback path and is serviced as OpenSL ES.
package portaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	pa "github.com/gordonklaus/portaudio"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

const defaultFramesPerBuffer = 256

// Platform implements audio.Platform using the PortAudio library
type Platform struct {
	mu          sync.Mutex
	initialized bool
	sessions    atomic.Int32
}

// New creates a PortAudio platform. Initialize must be called before
// streams are opened.
func New() *Platform {
	return &Platform{}
}

// Initialize initializes the PortAudio subsystem
func (p *Platform) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *Platform) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}

	err := pa.Terminate()
	p.initialized = false
	return err
}

func (p *Platform) IsAAudioSupported() bool {
	return false
}

func (p *Platform) IsAAudioRecommended() bool {
	return false
}

// OpenStream opens the default device for cfg.Direction. Device ids and
// exclusive sharing are not available on this backend and are negotiated
// away.
func (p *Platform) OpenStream(cfg audio.StreamConfig) (audio.NativeStream, error) {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("%w: PortAudio not initialized", audio.StatusErrorInvalidState)
	}

	device, err := defaultDevice(cfg.Direction)
	if err != nil {
		return nil, statusError(err)
	}

	negotiated, params, err := p.negotiate(cfg, device)
	if err != nil {
		return nil, err
	}

	s := &stream{cfg: negotiated, state: audio.StreamStateOpen}
	var args []any
	if negotiated.HasCallback() {
		args = []any{s.callbackFunc()}
	} else {
		args = []any{s.blockingBuffer()}
	}

	native, err := pa.OpenStream(params, args...)
	if err != nil {
		return nil, statusError(err)
	}
	s.native = native

	if info := native.Info(); info != nil {
		s.cfg.SampleRate = int32(info.SampleRate)
		latency := info.OutputLatency
		if negotiated.Direction == audio.DirectionInput {
			latency = info.InputLatency
		}
		if frames := int32(latency.Seconds() * info.SampleRate); frames > 0 {
			s.cfg.BufferCapacityInFrames = frames
		}
	}

	logger.Debug("Opened PortAudio stream",
		"device", device.Name,
		"host_api", hostAPIName(device),
		"direction", s.cfg.Direction.String(),
		"rate", s.cfg.SampleRate,
		"format", s.cfg.Format.String())
	return s, nil
}

// negotiate resolves cfg against device and builds the PortAudio parameters
func (p *Platform) negotiate(cfg audio.StreamConfig, device *pa.DeviceInfo) (audio.StreamConfig, pa.StreamParameters, error) {
	n := cfg
	n.AudioAPI = audio.SelectAudioAPI(cfg.AudioAPI, p.IsAAudioSupported(), p.IsAAudioRecommended())
	n.DeviceID = audio.UnspecifiedValue
	n.SharingMode = audio.SharingModeShared

	if n.Format == audio.FormatUnspecified {
		n.Format = audio.FormatFloat
	}
	switch n.Format {
	case audio.FormatI16, audio.FormatFloat, audio.FormatI32:
	default:
		return n, pa.StreamParameters{}, fmt.Errorf("%w: %s not supported by PortAudio backend",
			audio.StatusErrorInvalidFormat, n.Format)
	}

	maxChannels := device.MaxOutputChannels
	if n.Direction == audio.DirectionInput {
		maxChannels = device.MaxInputChannels
	}
	if n.ChannelCount == audio.ChannelCountUnspecified {
		n.ChannelCount = audio.ChannelCountMono
		if n.Direction == audio.DirectionOutput && maxChannels >= 2 {
			n.ChannelCount = audio.ChannelCountStereo
		}
	}
	if int(n.ChannelCount) > maxChannels {
		return n, pa.StreamParameters{}, fmt.Errorf("%w: device %q has %d channels, %s requested",
			audio.StatusErrorInvalidFormat, device.Name, maxChannels, n.ChannelCount)
	}

	if n.SampleRate == audio.UnspecifiedValue {
		n.SampleRate = int32(device.DefaultSampleRate)
	}
	if n.SessionID == audio.SessionIDAllocate {
		n.SessionID = audio.SessionID(p.sessions.Add(1))
	}

	return n, streamParameters(n, device), nil
}

// streamParameters maps a negotiated configuration onto PortAudio stream
// parameters for device
func streamParameters(cfg audio.StreamConfig, device *pa.DeviceInfo) pa.StreamParameters {
	var in, out *pa.DeviceInfo
	if cfg.Direction == audio.DirectionInput {
		in = device
	} else {
		out = device
	}

	var params pa.StreamParameters
	if cfg.PerformanceMode == audio.PerformanceModeLowLatency {
		params = pa.LowLatencyParameters(in, out)
	} else {
		params = pa.HighLatencyParameters(in, out)
	}

	if in != nil {
		params.Input.Channels = int(cfg.ChannelCount)
	} else {
		params.Output.Channels = int(cfg.ChannelCount)
	}
	params.SampleRate = float64(cfg.SampleRate)

	params.FramesPerBuffer = pa.FramesPerBufferUnspecified
	switch {
	case cfg.FramesPerCallback > 0:
		params.FramesPerBuffer = int(cfg.FramesPerCallback)
	case !cfg.HasCallback():
		params.FramesPerBuffer = defaultFramesPerBuffer
	}
	return params
}

func defaultDevice(dir audio.Direction) (*pa.DeviceInfo, error) {
	if dir == audio.DirectionInput {
		return pa.DefaultInputDevice()
	}
	return pa.DefaultOutputDevice()
}

func hostAPIName(device *pa.DeviceInfo) string {
	if device.HostApi == nil {
		return ""
	}
	return device.HostApi.Name
}

// statusError attaches the closest audio.Status to a PortAudio error
func statusError(err error) error {
	var paErr pa.Error
	if !errors.As(err, &paErr) {
		return fmt.Errorf("%w: %w", audio.StatusErrorInternal, err)
	}

	status := audio.StatusErrorInternal
	switch paErr {
	case pa.NotInitialized, pa.StreamIsStopped, pa.StreamIsNotStopped:
		status = audio.StatusErrorInvalidState
	case pa.InvalidChannelCount, pa.SampleFormatNotSupported:
		status = audio.StatusErrorInvalidFormat
	case pa.InvalidSampleRate:
		status = audio.StatusErrorInvalidRate
	case pa.InvalidDevice, pa.DeviceUnavailable, pa.NoDefaultInputDevice, pa.NoDefaultOutputDevice,
		pa.HostApiNotFound, pa.InvalidHostApi:
		status = audio.StatusErrorUnavailable
	case pa.InsufficientMemory:
		status = audio.StatusErrorNoMemory
	case pa.TimedOut:
		status = audio.StatusErrorTimeout
	case pa.BufferTooBig, pa.BufferTooSmall, pa.InvalidFlag, pa.BadIODeviceCombination:
		status = audio.StatusErrorIllegalArgument
	case pa.CanNotReadFromACallbackStream, pa.CanNotWriteToACallbackStream,
		pa.CanNotReadFromAnOutputOnlyStream, pa.CanNotWriteToAnInputOnlyStream:
		status = audio.StatusErrorUnimplemented
	}
	return fmt.Errorf("%w: %w", status, err)
}

// stream implements audio.NativeStream for a PortAudio stream
type stream struct {
	opMu     sync.Mutex // serializes Start, Stop and Close
	mu       sync.Mutex
	native   *pa.Stream
	cfg      audio.StreamConfig
	state    audio.StreamState
	stopping atomic.Bool

	// io16, io32 and ioI32 view store and are registered with PortAudio as
	// the blocking buffer. They are re-sliced before every Read or Write so
	// that PortAudio transfers exactly the requested number of frames.
	ioMu  sync.Mutex
	store []byte
	io16  []int16
	io32  []float32
	ioI32 []int32
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

func (s *stream) RequestStart() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	switch s.State() {
	case audio.StreamStateClosed, audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case audio.StreamStateStarted:
		return nil
	}
	s.stopping.Store(false)
	s.setState(audio.StreamStateStarting)
	if err := s.native.Start(); err != nil {
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

// stop must be called with opMu held. The state lock is released while
// PortAudio drains, since the callback may query the stream.
func (s *stream) stop() error {
	switch s.State() {
	case audio.StreamStateClosed, audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case audio.StreamStateStarted, audio.StreamStateStarting:
	default:
		return nil
	}
	s.setState(audio.StreamStateStopping)
	if err := s.native.Stop(); err != nil && !errors.Is(err, pa.StreamIsStopped) {
		s.setState(audio.StreamStateStarted)
		return statusError(err)
	}
	s.setState(audio.StreamStateStopped)
	return nil
}

// Close stops the stream if needed and releases it. PortAudio does not
// return from Stop until the last callback has finished.
func (s *stream) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() == audio.StreamStateClosed {
		return nil
	}
	if err := s.stop(); err != nil {
		logger.Warn("Failed to stop PortAudio stream before close", "error", err)
	}
	s.setState(audio.StreamStateClosing)

	// Pa_CloseStream must not run under a blocking Pa_ReadStream or
	// Pa_WriteStream.
	s.ioMu.Lock()
	err := s.native.Close()
	s.ioMu.Unlock()
	s.setState(audio.StreamStateClosed)
	if err != nil {
		return statusError(err)
	}
	return nil
}

func (s *stream) Read(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkIO(audio.DirectionInput, buf, numFrames); err != nil {
		return 0, err
	}
	return s.transfer(buf, numFrames, s.native.Read, true)
}

func (s *stream) Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if err := s.checkIO(audio.DirectionOutput, buf, numFrames); err != nil {
		return 0, err
	}
	return s.transfer(buf, numFrames, s.native.Write, false)
}

func (s *stream) checkIO(dir audio.Direction, buf []byte, numFrames int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == audio.StreamStateClosed || s.state == audio.StreamStateClosing:
		return audio.StatusErrorClosed
	case s.cfg.Direction != dir:
		return audio.StatusErrorUnimplemented
	case s.cfg.HasCallback():
		return audio.StatusErrorInvalidState
	case s.state != audio.StreamStateStarted:
		return audio.StatusErrorInvalidState
	case numFrames < 0 || len(buf) < int(numFrames)*s.cfg.BytesPerFrame():
		return audio.StatusErrorIllegalArgument
	}
	return nil
}

// transfer moves numFrames frames through the registered buffer in chunks
// no larger than its capacity
func (s *stream) transfer(buf []byte, numFrames int32, op func() error, input bool) (int32, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if state := s.State(); state == audio.StreamStateClosing || state == audio.StreamStateClosed {
		return 0, audio.StatusErrorClosed
	}

	frameSize := s.cfg.BytesPerFrame()
	chunk := len(s.store) / frameSize
	var done int32
	for done < numFrames {
		n := min(int(numFrames-done), chunk)
		data := buf[int(done)*frameSize : (int(done)+n)*frameSize]
		s.resize(n)
		if !input {
			copy(s.store, data)
		}
		if err := op(); err != nil && !errors.Is(err, pa.InputOverflowed) && !errors.Is(err, pa.OutputUnderflowed) {
			return done, statusError(err)
		}
		if input {
			copy(data, s.store[:len(data)])
		}
		done += int32(n)
	}
	return done, nil
}

// blockingBuffer allocates the byte store and returns a pointer to the typed
// view PortAudio reads the sample format and frame count from
func (s *stream) blockingBuffer() any {
	frames := int(s.cfg.FramesPerCallback)
	if frames <= 0 {
		frames = defaultFramesPerBuffer
	}
	samples := frames * int(s.cfg.ChannelCount)
	s.store = make([]byte, samples*s.cfg.Format.BytesPerSample())
	s.resize(frames)

	switch s.cfg.Format {
	case audio.FormatI16:
		return &s.io16
	case audio.FormatI32:
		return &s.ioI32
	default:
		return &s.io32
	}
}

func (s *stream) resize(frames int) {
	samples := frames * int(s.cfg.ChannelCount)
	ptr := unsafe.Pointer(unsafe.SliceData(s.store))
	switch s.cfg.Format {
	case audio.FormatI16:
		s.io16 = unsafe.Slice((*int16)(ptr), samples)
	case audio.FormatI32:
		s.ioI32 = unsafe.Slice((*int32)(ptr), samples)
	default:
		s.io32 = unsafe.Slice((*float32)(ptr), samples)
	}
}

func (s *stream) callbackFunc() any {
	switch s.cfg.Format {
	case audio.FormatI16:
		return dataCallback[int16](s)
	case audio.FormatI32:
		return dataCallback[int32](s)
	default:
		return dataCallback[float32](s)
	}
}

// dataCallback returns the PortAudio callback that forwards each buffer to
// the bound audio callback as bytes
func dataCallback[T int16 | int32 | float32](s *stream) func([]T) {
	cb := s.cfg.Callback()
	channels := int(s.cfg.ChannelCount)
	return func(samples []T) {
		if s.stopping.Load() {
			clear(samples)
			return
		}
		var data []byte
		if len(samples) > 0 {
			var zero T
			data = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(samples))), len(samples)*int(unsafe.Sizeof(zero)))
		}
		if cb.OnAudioReady(s, data, int32(len(samples)/channels)) == audio.DataCallbackResultStop {
			s.stopping.Store(true)
			go func() {
				if err := s.RequestStop(); err != nil && !errors.Is(err, audio.StatusErrorClosed) {
					logger.Warn("Failed to stop PortAudio stream after callback stop", "error", err)
				}
			}()
		}
	}
}

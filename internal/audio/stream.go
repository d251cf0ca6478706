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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/metrics"
)

// stream owns a native handle and, for callback streams, the callback gate.
// Blocking transfers hold io for reading so the native handle is never
// released under them.
type stream struct {
	mu     sync.Mutex
	io     sync.RWMutex
	native NativeStream
	gate   *callbackGate
	closed bool
}

func newStream(native NativeStream, gate *callbackGate) *stream {
	metrics.StreamOpenCount(1)
	return &stream{native: native, gate: gate}
}

// Config returns the negotiated configuration. It is the only source of
// actual stream parameters after open.
func (s *stream) Config() StreamConfig {
	return s.native.Config().WithoutCallback()
}

func (s *stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StreamStateClosed
	}
	return s.native.State()
}

// SessionID returns the negotiated session id.
func (s *stream) SessionID() SessionID {
	return s.native.Config().SessionID
}

// AudioAPI returns the backend servicing the stream.
func (s *stream) AudioAPI() AudioAPI {
	return s.native.Config().AudioAPI
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.native.RequestStart(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.native.RequestStop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

// Close stops and closes the native stream, then waits for any callback
// invocation still in flight and releases the callback. A blocking Read or
// Write in progress completes before the native handle is released. Once
// Close returns the callback is never invoked again. Close is idempotent and
// must not be called from the stream's own callback.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var errs []error
	if state := s.native.State(); state == StreamStateStarting || state == StreamStateStarted {
		if err := s.native.RequestStop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop stream: %w", err))
		}
	}
	s.mu.Unlock()

	// A Read or Write already past the closed check finishes before the
	// handle goes away.
	s.io.Lock()
	err := s.native.Close()
	s.io.Unlock()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
	}
	if s.gate != nil {
		s.gate.close()
		if dropped := s.gate.Dropped(); dropped > 0 {
			logger.Debug("Callback invocations refused before close", "count", dropped)
		}
	}
	metrics.StreamOpenCount(-1)
	return errors.Join(errs...)
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) read(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	s.io.RLock()
	defer s.io.RUnlock()
	if s.isClosed() {
		return 0, ErrStreamClosed
	}
	return s.native.Read(buf, numFrames, timeout)
}

func (s *stream) write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	s.io.RLock()
	defer s.io.RUnlock()
	if s.isClosed() {
		return 0, ErrStreamClosed
	}
	return s.native.Write(buf, numFrames, timeout)
}

func (s *stream) String() string {
	return fmt.Sprintf("Stream{%s state=%s}", s.Config(), s.State())
}

// SyncStream is an opened stream used with blocking Read or Write.
type SyncStream[D IsDirection, C IsChannelCount, T IsFormat] struct {
	*stream
}

// AsyncStream is an opened stream driven by its bound callback. It owns the
// callback until Close returns.
type AsyncStream[D IsDirection, C IsFrameChannels, T IsSample] struct {
	*stream
}

// CallbacksDropped returns how many platform invocations arrived after
// Close and were not forwarded to the callback.
func (s *AsyncStream[D, C, T]) CallbacksDropped() uint64 {
	return s.gate.Dropped()
}

// Read blocks until samples is filled with whole frames, the timeout
// elapses or an error occurs. It returns the number of frames read.
func Read[C IsFrameChannels, T IsSample](s *SyncStream[Input, C, T], samples []T, timeout time.Duration) (int32, error) {
	channels := channelsOf[C]()
	if len(samples)%channels != 0 {
		return 0, ErrInvalidBuffer
	}
	return s.read(bytesFromSamples(samples), int32(len(samples)/channels), timeout)
}

// Write blocks until every frame in samples is queued, the timeout elapses
// or an error occurs. It returns the number of frames written.
func Write[C IsFrameChannels, T IsSample](s *SyncStream[Output, C, T], samples []T, timeout time.Duration) (int32, error) {
	channels := channelsOf[C]()
	if len(samples)%channels != 0 {
		return 0, ErrInvalidBuffer
	}
	return s.write(bytesFromSamples(samples), int32(len(samples)/channels), timeout)
}

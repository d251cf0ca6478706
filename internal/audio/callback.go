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
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/loqalabs/loqa-stream-go/internal/metrics"
)

// InputCallback consumes captured frames. It runs on a platform audio
// thread and must not block or close its own stream; return
// DataCallbackResultStop to end the stream instead.
type InputCallback[T IsSample, C IsFrameChannels] interface {
	OnAudioReady(stream StreamInfo, frames InputFrames[T, C]) DataCallbackResult
}

// OutputCallback fills frames for playback. The same threading rules as
// InputCallback apply.
type OutputCallback[T IsSample, C IsFrameChannels] interface {
	OnAudioReady(stream StreamInfo, frames OutputFrames[T, C]) DataCallbackResult
}

// ErrorCallback may be implemented by input or output callbacks to learn
// about stream errors such as device disconnection.
type ErrorCallback interface {
	OnErrorBeforeClose(stream StreamInfo, err error)
	OnErrorAfterClose(stream StreamInfo, err error)
}

// InputFrames is a read-only view of interleaved captured frames. It is only
// valid for the duration of the callback.
type InputFrames[T IsSample, C IsFrameChannels] struct {
	samples []T
}

// Len returns the number of frames.
func (f InputFrames[T, C]) Len() int {
	return len(f.samples) / channelsOf[C]()
}

func (f InputFrames[T, C]) Channels() int {
	return channelsOf[C]()
}

// At returns the sample for channel ch of frame i.
func (f InputFrames[T, C]) At(i, ch int) T {
	return f.samples[i*channelsOf[C]()+ch]
}

// Frame returns the samples of frame i.
func (f InputFrames[T, C]) Frame(i int) []T {
	n := channelsOf[C]()
	return f.samples[i*n : (i+1)*n : (i+1)*n]
}

// CopyTo copies the interleaved samples into dst and returns the count.
func (f InputFrames[T, C]) CopyTo(dst []T) int {
	return copy(dst, f.samples)
}

// OutputFrames is a writable view of interleaved frames to be played. It is
// only valid for the duration of the callback.
type OutputFrames[T IsSample, C IsFrameChannels] struct {
	samples []T
}

func (f OutputFrames[T, C]) Len() int {
	return len(f.samples) / channelsOf[C]()
}

func (f OutputFrames[T, C]) Channels() int {
	return channelsOf[C]()
}

func (f OutputFrames[T, C]) At(i, ch int) T {
	return f.samples[i*channelsOf[C]()+ch]
}

// Set writes the sample for channel ch of frame i.
func (f OutputFrames[T, C]) Set(i, ch int, v T) {
	f.samples[i*channelsOf[C]()+ch] = v
}

// SetFrame writes v to every channel of frame i.
func (f OutputFrames[T, C]) SetFrame(i int, v T) {
	n := channelsOf[C]()
	for ch := 0; ch < n; ch++ {
		f.samples[i*n+ch] = v
	}
}

// Fill writes v to every sample.
func (f OutputFrames[T, C]) Fill(v T) {
	for i := range f.samples {
		f.samples[i] = v
	}
}

// Samples returns the underlying interleaved buffer.
func (f OutputFrames[T, C]) Samples() []T {
	return f.samples
}

func channelsOf[C IsFrameChannels]() int {
	return int(channelCountOf[C]())
}

// samplesFromBytes reinterprets a platform buffer as numFrames frames of T.
func samplesFromBytes[T IsSample](buf []byte, numFrames int32, channels int) []T {
	n := int(numFrames) * channels
	if n <= 0 || len(buf) == 0 {
		return nil
	}
	var zero T
	if limit := len(buf) / int(unsafe.Sizeof(zero)); n > limit {
		n = limit
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n)
}

// bytesFromSamples is the inverse of samplesFromBytes.
func bytesFromSamples[T IsSample](samples []T) []byte {
	if len(samples) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(samples))), len(samples)*int(unsafe.Sizeof(zero)))
}

type inputAdapter[T IsSample, C IsFrameChannels] struct {
	cb InputCallback[T, C]
}

// RawInputCallback adapts a typed input callback to the platform entry
// point, for use with RawBuilder.
func RawInputCallback[T IsSample, C IsFrameChannels](cb InputCallback[T, C]) RawCallback {
	return &inputAdapter[T, C]{cb: cb}
}

func (a *inputAdapter[T, C]) OnAudioReady(stream StreamInfo, audioData []byte, numFrames int32) DataCallbackResult {
	frames := InputFrames[T, C]{samples: samplesFromBytes[T](audioData, numFrames, channelsOf[C]())}
	return a.cb.OnAudioReady(stream, frames)
}

func (a *inputAdapter[T, C]) OnErrorBeforeClose(stream StreamInfo, err error) {
	if ec, ok := a.cb.(ErrorCallback); ok {
		ec.OnErrorBeforeClose(stream, err)
	}
}

func (a *inputAdapter[T, C]) OnErrorAfterClose(stream StreamInfo, err error) {
	if ec, ok := a.cb.(ErrorCallback); ok {
		ec.OnErrorAfterClose(stream, err)
	}
}

func (a *inputAdapter[T, C]) FrameType() (AudioFormat, ChannelCount) {
	return FrameType[T, C]()
}

func (a *inputAdapter[T, C]) Direction() Direction {
	return DirectionInput
}

type outputAdapter[T IsSample, C IsFrameChannels] struct {
	cb OutputCallback[T, C]
}

// RawOutputCallback adapts a typed output callback to the platform entry
// point, for use with RawBuilder.
func RawOutputCallback[T IsSample, C IsFrameChannels](cb OutputCallback[T, C]) RawCallback {
	return &outputAdapter[T, C]{cb: cb}
}

func (a *outputAdapter[T, C]) OnAudioReady(stream StreamInfo, audioData []byte, numFrames int32) DataCallbackResult {
	frames := OutputFrames[T, C]{samples: samplesFromBytes[T](audioData, numFrames, channelsOf[C]())}
	return a.cb.OnAudioReady(stream, frames)
}

func (a *outputAdapter[T, C]) OnErrorBeforeClose(stream StreamInfo, err error) {
	if ec, ok := a.cb.(ErrorCallback); ok {
		ec.OnErrorBeforeClose(stream, err)
	}
}

func (a *outputAdapter[T, C]) OnErrorAfterClose(stream StreamInfo, err error) {
	if ec, ok := a.cb.(ErrorCallback); ok {
		ec.OnErrorAfterClose(stream, err)
	}
}

func (a *outputAdapter[T, C]) FrameType() (AudioFormat, ChannelCount) {
	return FrameType[T, C]()
}

func (a *outputAdapter[T, C]) Direction() Direction {
	return DirectionOutput
}

// callbackGate is what the platform actually invokes. Every invocation
// holds the read lock; close takes the write lock, so once close returns
// no invocation is running and none will reach the user callback again.
type callbackGate struct {
	mu        sync.RWMutex
	closed    bool
	inner     RawCallback
	direction string
	dropped   atomic.Uint64
}

func newCallbackGate(inner RawCallback, direction Direction) *callbackGate {
	return &callbackGate{inner: inner, direction: direction.String()}
}

func (g *callbackGate) OnAudioReady(stream StreamInfo, audioData []byte, numFrames int32) DataCallbackResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.drop()
		return DataCallbackResultStop
	}
	metrics.CallbackInvoked(g.direction)
	return g.inner.OnAudioReady(stream, audioData, numFrames)
}

func (g *callbackGate) OnErrorBeforeClose(stream StreamInfo, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.drop()
		return
	}
	g.inner.OnErrorBeforeClose(stream, err)
}

func (g *callbackGate) OnErrorAfterClose(stream StreamInfo, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.drop()
		return
	}
	g.inner.OnErrorAfterClose(stream, err)
}

func (g *callbackGate) FrameType() (AudioFormat, ChannelCount) {
	if ft, ok := g.inner.(FrameTyped); ok {
		return ft.FrameType()
	}
	return FormatUnspecified, ChannelCountUnspecified
}

func (g *callbackGate) drop() {
	g.dropped.Add(1)
	metrics.CallbackDropped()
}

// close waits for in-flight invocations and releases the user callback.
func (g *callbackGate) close() {
	g.mu.Lock()
	g.closed = true
	g.inner = nil
	g.mu.Unlock()
}

// Dropped returns the number of invocations refused after close.
func (g *callbackGate) Dropped() uint64 {
	return g.dropped.Load()
}

// checkCallbackBinding verifies that a frame-typed callback matches the
// configuration's direction, format and channel count.
func checkCallbackBinding(cfg StreamConfig, cb RawCallback) error {
	if g, ok := cb.(*callbackGate); ok {
		g.mu.RLock()
		inner := g.inner
		g.mu.RUnlock()
		if inner == nil {
			return fmt.Errorf("%w: callback already released", ErrInvalidConfiguration)
		}
		cb = inner
	}

	ft, ok := cb.(FrameTyped)
	if !ok {
		return fmt.Errorf("%w: callback does not declare a frame type", ErrCallbackTypeMismatch)
	}
	format, channels := ft.FrameType()
	if format != cfg.Format || channels != cfg.ChannelCount {
		return fmt.Errorf("%w: callback handles %s/%s, stream is %s/%s",
			ErrCallbackTypeMismatch, format, channels, cfg.Format, cfg.ChannelCount)
	}
	if dt, ok := cb.(DirectionTyped); ok && dt.Direction() != cfg.Direction {
		return fmt.Errorf("%w: %s callback on %s stream",
			ErrCallbackTypeMismatch, dt.Direction(), cfg.Direction)
	}
	return nil
}

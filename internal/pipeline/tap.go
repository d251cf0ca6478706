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
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

// Tap is an input callback copying each captured buffer onto a channel.
// Buffers are dropped rather than blocking the audio thread.
type Tap[T audio.IsSample, C audio.IsFrameChannels] struct {
	out       chan []T
	dropped   atomic.Uint64
	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	done      chan struct{}
}

// NewTap creates a tap buffering up to depth captured buffers
func NewTap[T audio.IsSample, C audio.IsFrameChannels](depth int) *Tap[T, C] {
	return &Tap[T, C]{
		out:  make(chan []T, depth),
		done: make(chan struct{}),
	}
}

// Samples returns the channel of captured interleaved samples
func (t *Tap[T, C]) Samples() <-chan []T {
	return t.out
}

// Dropped returns how many captured buffers found the channel full
func (t *Tap[T, C]) Dropped() uint64 {
	return t.dropped.Load()
}

// Done is closed once the stream has reported an error and closed
func (t *Tap[T, C]) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the stream reported, if any
func (t *Tap[T, C]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tap[T, C]) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Tap[T, C]) OnAudioReady(_ audio.StreamInfo, frames audio.InputFrames[T, C]) audio.DataCallbackResult {
	buf := make([]T, frames.Len()*frames.Channels())
	frames.CopyTo(buf)

	select {
	case t.out <- buf:
	default:
		t.dropped.Add(1)
	}
	return audio.DataCallbackResultContinue
}

func (t *Tap[T, C]) OnErrorBeforeClose(stream audio.StreamInfo, err error) {
	t.setErr(err)
	logger.Warn("capture stream error", "state", stream.State(), "error", err)
}

func (t *Tap[T, C]) OnErrorAfterClose(_ audio.StreamInfo, err error) {
	t.setErr(err)
	t.closeOnce.Do(func() { close(t.done) })
}

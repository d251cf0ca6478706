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

// Player is an output callback playing queued interleaved samples. When the
// queue runs dry it plays silence and counts an underrun.
type Player[T audio.IsSample, C audio.IsFrameChannels] struct {
	queue     chan []T
	pending   []T
	underruns atomic.Uint64
	done      chan struct{}
	doneOnce  sync.Once
}

// NewPlayer creates a player holding up to depth queued buffers
func NewPlayer[T audio.IsSample, C audio.IsFrameChannels](depth int) *Player[T, C] {
	return &Player[T, C]{
		queue: make(chan []T, depth),
		done:  make(chan struct{}),
	}
}

// Enqueue queues samples for playback without blocking. It reports false
// when the queue is full.
func (p *Player[T, C]) Enqueue(samples []T) bool {
	select {
	case p.queue <- samples:
		return true
	default:
		return false
	}
}

// Queued returns the number of buffers waiting to be played
func (p *Player[T, C]) Queued() int {
	return len(p.queue)
}

// Underruns returns how many callbacks were padded with silence
func (p *Player[T, C]) Underruns() uint64 {
	return p.underruns.Load()
}

// Done is closed when the stream reports an error
func (p *Player[T, C]) Done() <-chan struct{} {
	return p.done
}

func (p *Player[T, C]) OnAudioReady(_ audio.StreamInfo, frames audio.OutputFrames[T, C]) audio.DataCallbackResult {
	p.Fill(frames.Samples())
	return audio.DataCallbackResultContinue
}

// Fill copies queued samples into out and zeroes whatever is left. It is
// meant to be called from a single audio thread.
func (p *Player[T, C]) Fill(out []T) {
	n := 0
	for n < len(out) {
		if len(p.pending) == 0 {
			select {
			case next := <-p.queue:
				p.pending = next
				continue
			default:
			}
			break
		}
		c := copy(out[n:], p.pending)
		p.pending = p.pending[c:]
		n += c
	}
	if n < len(out) {
		clear(out[n:])
		p.underruns.Add(1)
	}
}

func (p *Player[T, C]) OnErrorBeforeClose(stream audio.StreamInfo, err error) {
	logger.Warn("playback stream error", "state", stream.State(), "error", err)
}

func (p *Player[T, C]) OnErrorAfterClose(_ audio.StreamInfo, _ error) {
	p.doneOnce.Do(func() { close(p.done) })
}

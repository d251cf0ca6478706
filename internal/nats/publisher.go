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


package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/metrics"
	"github.com/loqalabs/loqa-stream-go/internal/transport"
)

// Publisher sends the PCM of one stream as a sequence of frames tagged with
// a fresh stream id
type Publisher struct {
	conn     Connection
	subject  string
	streamID uuid.UUID
	format   audio.StreamConfig

	mu       sync.Mutex
	sequence uint32
	ended    bool
	now      func() time.Time
}

// NewPublisher creates a publisher for a stream negotiated as cfg. The
// format must be concrete.
func NewPublisher(conn Connection, subject string, cfg audio.StreamConfig) (*Publisher, error) {
	if cfg.BytesPerFrame() == 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: publisher needs a negotiated format, got %s/%d ch/%d Hz",
			audio.ErrInvalidConfiguration, cfg.Format, cfg.ChannelCount, cfg.SampleRate)
	}
	return &Publisher{
		conn:     conn,
		subject:  subject,
		streamID: uuid.New(),
		format:   cfg.WithoutCallback(),
		now:      time.Now,
	}, nil
}

// StreamID identifies this publisher's frames on the subject
func (p *Publisher) StreamID() uuid.UUID {
	return p.streamID
}

// Publish sends pcm, which must hold whole frames, splitting it so no
// frame exceeds the transport payload limit
func (p *Publisher) Publish(pcm []byte) error {
	bpf := p.format.BytesPerFrame()
	if len(pcm)%bpf != 0 {
		return transport.ErrPartialFrame
	}
	chunk := (transport.MaxDataSize / bpf) * bpf

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return fmt.Errorf("publisher for stream %s already ended", p.streamID)
	}

	for len(pcm) > 0 {
		n := min(chunk, len(pcm))
		f := transport.NewAudioFrame(p.streamID, p.sequence, p.timestamp(), p.format, pcm[:n])
		if err := p.send(f); err != nil {
			return err
		}
		metrics.FramesRelayed("publish", n/bpf)
		pcm = pcm[n:]
	}
	return nil
}

// End sends the end-of-stream frame. Later calls to Publish fail.
func (p *Publisher) End() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return nil
	}
	p.ended = true
	return p.send(&transport.Frame{
		Type:      transport.FrameTypeAudioEnd,
		StreamID:  p.streamID,
		Sequence:  p.sequence,
		Timestamp: p.timestamp(),
	})
}

func (p *Publisher) send(f *transport.Frame) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish frame %d to %s: %w", f.Sequence, p.subject, err)
	}
	p.sequence++
	logger.Debug("published frame", "stream", p.streamID, "type", f.Type, "seq", f.Sequence, "bytes", len(f.Data))
	return nil
}

func (p *Publisher) timestamp() uint64 {
	return uint64(p.now().UnixMicro()) //nolint:gosec // G115: wall clock is after 1970
}

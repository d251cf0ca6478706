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

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/transport"
)

// Subscriber receives frames from a subject and queues them for playback
type Subscriber struct {
	conn    Connection
	subject string
	frames  chan *transport.Frame

	mu      sync.Mutex
	dropped uint64
	bad     uint64
}

// NewSubscriber creates a subscriber buffering up to capacity frames
func NewSubscriber(conn Connection, subject string, capacity int) *Subscriber {
	return &Subscriber{
		conn:    conn,
		subject: subject,
		frames:  make(chan *transport.Frame, capacity),
	}
}

// Start begins listening on the subject
func (s *Subscriber) Start() error {
	if _, err := s.conn.Subscribe(s.subject, s.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	logger.Info("subscribed to audio frames", "subject", s.subject)
	return nil
}

func (s *Subscriber) handleMessage(msg *nats.Msg) {
	frame, err := transport.DeserializeFrame(msg.Data)
	if err != nil {
		s.mu.Lock()
		s.bad++
		s.mu.Unlock()
		logger.Warn("discarding malformed frame", "subject", msg.Subject, "error", err)
		return
	}
	if frame.Type == transport.FrameTypeHeartbeat {
		return
	}

	select {
	case s.frames <- frame:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		logger.Warn("frame queue full, dropping frame", "stream", frame.StreamID, "seq", frame.Sequence)
	}
}

// Frames returns the queue of received audio and end-of-stream frames
func (s *Subscriber) Frames() <-chan *transport.Frame {
	return s.frames
}

// Stats returns the number of frames dropped on a full queue and the
// number discarded as malformed
func (s *Subscriber) Stats() (dropped, malformed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped, s.bad
}

// Close closes the NATS connection
func (s *Subscriber) Close() {
	if s.conn != nil {
		s.conn.Close()
		logger.Info("NATS connection closed", "subject", s.subject)
	}
}

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


package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

// Binary frame protocol for moving PCM between streams over a message bus.
// Every frame carries the negotiated format of the stream it came from, so
// a receiver can check it against its own stream before playing it.

// FrameType represents the type of frame being transmitted
type FrameType uint8

const (
	FrameTypeAudioData FrameType = 0x01
	FrameTypeAudioEnd  FrameType = 0x02

	FrameTypeHeartbeat FrameType = 0x10
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeAudioData:
		return "audio_data"
	case FrameTypeAudioEnd:
		return "audio_end"
	case FrameTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("FrameType(0x%02X)", uint8(t))
	}
}

// Frame represents a binary frame in the protocol
type Frame struct {
	Type         FrameType
	StreamID     uuid.UUID
	Sequence     uint32
	Timestamp    uint64 // Unix microseconds
	Format       audio.AudioFormat
	ChannelCount audio.ChannelCount
	SampleRate   int32
	Data         []byte
}

// FrameHeader is the fixed-size frame header (44 bytes), big-endian on the wire
type FrameHeader struct {
	Magic      uint32    // 0x4C515343 ("LQSC")
	Type       FrameType // 1 byte
	Format     uint8     // audio.AudioFormat
	Channels   uint8
	Reserved   uint8
	SampleRate uint32
	Length     uint32 // payload length
	Sequence   uint32
	Timestamp  uint64
	StreamID   uuid.UUID
}

const (
	FrameMagic = 0x4C515343

	HeaderSize  = 44
	MaxDataSize = 64 * 1024
)

var (
	// ErrInvalidFrame is wrapped by every decoding failure
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrPartialFrame is returned when an audio payload is not a whole
	// number of PCM frames
	ErrPartialFrame = fmt.Errorf("%w: payload is not a whole number of audio frames", ErrInvalidFrame)
)

// NewAudioFrame creates an audio data frame stamped with the format of cfg
func NewAudioFrame(streamID uuid.UUID, sequence uint32, timestamp uint64, cfg audio.StreamConfig, data []byte) *Frame {
	return &Frame{
		Type:         FrameTypeAudioData,
		StreamID:     streamID,
		Sequence:     sequence,
		Timestamp:    timestamp,
		Format:       cfg.Format,
		ChannelCount: cfg.ChannelCount,
		SampleRate:   cfg.SampleRate,
		Data:         data,
	}
}

// Validate checks the payload size and, for audio data, that the format is
// concrete and the payload holds whole frames
func (f *Frame) Validate() error {
	if len(f.Data) > MaxDataSize {
		return fmt.Errorf("%w: data too large: %d bytes (max %d)", ErrInvalidFrame, len(f.Data), MaxDataSize)
	}
	if f.Type != FrameTypeAudioData {
		return nil
	}
	if f.Format.BytesPerSample() == 0 || f.ChannelCount <= 0 || f.ChannelCount > 255 || f.SampleRate <= 0 {
		return fmt.Errorf("%w: audio format %s/%d ch/%d Hz", ErrInvalidFrame, f.Format, f.ChannelCount, f.SampleRate)
	}
	if len(f.Data)%f.BytesPerFrame() != 0 {
		return ErrPartialFrame
	}
	return nil
}

// BytesPerFrame returns the size of one PCM frame in the payload
func (f *Frame) BytesPerFrame() int {
	return f.Format.BytesPerSample() * int(f.ChannelCount)
}

// NumFrames returns the number of PCM frames carried
func (f *Frame) NumFrames() int {
	if n := f.BytesPerFrame(); n > 0 {
		return len(f.Data) / n
	}
	return 0
}

// Matches reports whether the frame can be played on a stream negotiated as cfg
func (f *Frame) Matches(cfg audio.StreamConfig) bool {
	return f.Format == cfg.Format && f.ChannelCount == cfg.ChannelCount && f.SampleRate == cfg.SampleRate
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// Serialize converts a frame to binary format
func (f *Frame) Serialize() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	header := FrameHeader{
		Magic:      FrameMagic,
		Type:       f.Type,
		Format:     uint8(f.Format),       //nolint:gosec // G115: validated above
		Channels:   uint8(f.ChannelCount), //nolint:gosec // G115: validated above
		SampleRate: uint32(f.SampleRate),  //nolint:gosec // G115: validated above
		Length:     uint32(len(f.Data)),   //nolint:gosec // G115: bounded by MaxDataSize
		Sequence:   f.Sequence,
		Timestamp:  f.Timestamp,
		StreamID:   f.StreamID,
	}

	buf := bytes.NewBuffer(make([]byte, 0, f.Size()))
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}
	buf.Write(f.Data)
	return buf.Bytes(), nil
}

// DeserializeFrame converts binary data to a frame
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: too small: %d bytes (min %d)", ErrInvalidFrame, len(data), HeaderSize)
	}

	header, err := parseFrameHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	expected := HeaderSize + int(header.Length)
	if len(data) != expected {
		return nil, fmt.Errorf("%w: size mismatch: got %d bytes, expected %d", ErrInvalidFrame, len(data), expected)
	}

	frame := header.frame()
	if header.Length > 0 {
		frame.Data = make([]byte, header.Length)
		copy(frame.Data, data[HeaderSize:])
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// ReadFrame reads one frame from r, header first and then the payload
func ReadFrame(r io.Reader) (*Frame, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	header, err := parseFrameHeader(raw)
	if err != nil {
		return nil, err
	}

	frame := header.frame()
	if header.Length > 0 {
		frame.Data = make([]byte, header.Length)
		if _, err := io.ReadFull(r, frame.Data); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// WriteFrame serializes f to w
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func parseFrameHeader(raw []byte) (*FrameHeader, error) {
	if len(raw) != HeaderSize {
		return nil, fmt.Errorf("%w: header size %d bytes (expected %d)", ErrInvalidFrame, len(raw), HeaderSize)
	}

	var header FrameHeader
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}
	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("%w: magic 0x%08X (expected 0x%08X)", ErrInvalidFrame, header.Magic, FrameMagic)
	}
	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("%w: data too large: %d bytes (max %d)", ErrInvalidFrame, header.Length, MaxDataSize)
	}
	return &header, nil
}

func (h *FrameHeader) frame() *Frame {
	return &Frame{
		Type:         h.Type,
		StreamID:     h.StreamID,
		Sequence:     h.Sequence,
		Timestamp:    h.Timestamp,
		Format:       audio.AudioFormat(h.Format),
		ChannelCount: audio.ChannelCount(h.Channels),
		SampleRate:   int32(h.SampleRate), //nolint:gosec // G115: rates fit in int32
	}
}

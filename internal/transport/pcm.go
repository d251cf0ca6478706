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
	"encoding/binary"
	"fmt"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

// EncodeSamples packs interleaved samples as little-endian PCM
func EncodeSamples[T audio.IsSample](samples []T) []byte {
	out, _ := binary.Append(make([]byte, 0, binary.Size(samples)), binary.LittleEndian, samples)
	return out
}

// DecodeSamples unpacks little-endian PCM into samples of T
func DecodeSamples[T audio.IsSample](data []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d byte samples", ErrInvalidFrame, len(data), size)
	}
	samples := make([]T, len(data)/size)
	if _, err := binary.Decode(data, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}
	return samples, nil
}

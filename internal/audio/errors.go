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
)

var (
	// ErrInvalidConfiguration is returned when a configuration cannot be
	// opened as given. The typed builder never produces one; the runtime
	// builder and consumed builders can.
	ErrInvalidConfiguration = errors.New("invalid stream configuration")

	// ErrBuilderConsumed is returned by Open on a builder that was already
	// opened or narrowed into another builder.
	ErrBuilderConsumed = fmt.Errorf("%w: builder already consumed", ErrInvalidConfiguration)

	// ErrInvalidBuffer is returned by Read and Write when the buffer does not
	// hold a whole number of frames.
	ErrInvalidBuffer = fmt.Errorf("%w: buffer is not a whole number of frames", ErrInvalidConfiguration)

	// ErrCallbackTypeMismatch is returned when a callback's frame type or
	// direction does not match the stream configuration.
	ErrCallbackTypeMismatch = errors.New("callback frame type does not match stream")

	// ErrPlatformOpen matches every *PlatformOpenError.
	ErrPlatformOpen = errors.New("platform failed to open stream")

	// ErrStreamClosed is returned by operations on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// PlatformOpenError reports a rejected open request together with the raw
// platform status.
type PlatformOpenError struct {
	Status Status
	Err    error
}

func (e *PlatformOpenError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, e.Status) {
		return fmt.Sprintf("%s: %s: %v", ErrPlatformOpen, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrPlatformOpen, e.Status)
}

// Is matches ErrPlatformOpen and the carried status.
func (e *PlatformOpenError) Is(target error) bool {
	if target == ErrPlatformOpen {
		return true
	}
	if s, ok := target.(Status); ok {
		return s == e.Status
	}
	return false
}

func (e *PlatformOpenError) Unwrap() error {
	return e.Err
}

// statusOf extracts a platform status from err, defaulting to
// StatusErrorInternal.
func statusOf(err error) Status {
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusErrorInternal
}

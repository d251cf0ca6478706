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

	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/metrics"
)

var errSessionNotAllocated = errors.New("session id was not allocated")

// negotiate hands cfg to the platform and returns the opened handle. On
// any failure no native resource survives. fixedFrame is set when the
// caller's sample type or callback pins the frame layout, in which case a
// substituted format or channel count cannot be represented and fails the
// open.
func negotiate(platform Platform, cfg StreamConfig, fixedFrame bool) (NativeStream, error) {
	if platform == nil {
		return nil, fmt.Errorf("%w: no platform", ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	native, err := platform.OpenStream(cfg)
	if err != nil {
		if native != nil {
			closeQuietly(native)
		}
		return nil, openFailed(cfg, &PlatformOpenError{Status: statusOf(err), Err: err})
	}
	if native == nil {
		return nil, openFailed(cfg, &PlatformOpenError{Status: StatusErrorNull})
	}

	actual := native.Config()
	if err := checkNegotiated(cfg, actual, fixedFrame); err != nil {
		closeQuietly(native)
		return nil, openFailed(cfg, err)
	}

	logSubstitutions(cfg, actual)
	metrics.StreamOpened(actual.AudioAPI.String(), actual.Direction.String())
	return native, nil
}

// checkNegotiated rejects negotiated values the caller cannot address.
// Other substitutions are reported, not rejected.
func checkNegotiated(requested, actual StreamConfig, fixedFrame bool) error {
	if actual.Direction != requested.Direction {
		return &PlatformOpenError{
			Status: StatusErrorInternal,
			Err:    fmt.Errorf("requested %s stream, platform opened %s", requested.Direction, actual.Direction),
		}
	}
	if fixedFrame && requested.Format != FormatUnspecified && actual.Format != requested.Format {
		return &PlatformOpenError{
			Status: StatusErrorInvalidFormat,
			Err:    fmt.Errorf("requested format %s, platform negotiated %s", requested.Format, actual.Format),
		}
	}
	if fixedFrame && requested.ChannelCount != ChannelCountUnspecified && actual.ChannelCount != requested.ChannelCount {
		return &PlatformOpenError{
			Status: StatusErrorInvalidFormat,
			Err:    fmt.Errorf("requested %s, platform negotiated %s", requested.ChannelCount, actual.ChannelCount),
		}
	}
	if requested.SessionID == SessionIDAllocate && actual.SessionID <= SessionIDAllocate {
		return &PlatformOpenError{Status: StatusErrorUnavailable, Err: errSessionNotAllocated}
	}
	return nil
}

func openFailed(cfg StreamConfig, err error) error {
	var perr *PlatformOpenError
	status := StatusErrorInternal
	if errors.As(err, &perr) {
		status = perr.Status
	}
	metrics.StreamOpenFailed(status.String(), cfg.Direction.String())
	logger.Warn("Stream open failed",
		"direction", cfg.Direction.String(),
		"api", cfg.AudioAPI.String(),
		"status", status.String(),
		"error", err)
	return err
}

func closeQuietly(native NativeStream) {
	if err := native.Close(); err != nil {
		logger.Warn("Failed to release native stream after open failure", "error", err)
	}
}

func logSubstitutions(requested, actual StreamConfig) {
	type field struct {
		name      string
		requested any
		actual    any
		changed   bool
	}
	fields := []field{
		{"sample_rate", requested.SampleRate, actual.SampleRate,
			requested.SampleRate != UnspecifiedValue && requested.SampleRate != actual.SampleRate},
		{"frames_per_callback", requested.FramesPerCallback, actual.FramesPerCallback,
			requested.FramesPerCallback != UnspecifiedValue && requested.FramesPerCallback != actual.FramesPerCallback},
		{"buffer_capacity", requested.BufferCapacityInFrames, actual.BufferCapacityInFrames,
			requested.BufferCapacityInFrames != UnspecifiedValue && requested.BufferCapacityInFrames != actual.BufferCapacityInFrames},
		{"audio_api", requested.AudioAPI.String(), actual.AudioAPI.String(),
			requested.AudioAPI != AudioAPIUnspecified && requested.AudioAPI != actual.AudioAPI},
		{"sharing_mode", requested.SharingMode.String(), actual.SharingMode.String(),
			requested.SharingMode != actual.SharingMode},
		{"performance_mode", requested.PerformanceMode.String(), actual.PerformanceMode.String(),
			requested.PerformanceMode != actual.PerformanceMode},
		{"format", requested.Format.String(), actual.Format.String(),
			requested.Format != FormatUnspecified && requested.Format != actual.Format},
		{"channel_count", requested.ChannelCount.String(), actual.ChannelCount.String(),
			requested.ChannelCount != ChannelCountUnspecified && requested.ChannelCount != actual.ChannelCount},
		{"device_id", requested.DeviceID, actual.DeviceID,
			requested.DeviceID != UnspecifiedValue && requested.DeviceID != actual.DeviceID},
	}

	for _, f := range fields {
		if f.changed {
			logger.Info("Platform substituted stream parameter",
				"field", f.name, "requested", f.requested, "actual", f.actual)
		}
	}

	logger.Debug("Stream negotiated",
		"direction", actual.Direction.String(),
		"api", actual.AudioAPI.String(),
		"format", actual.Format.String(),
		"channels", actual.ChannelCount.String(),
		"sample_rate", actual.SampleRate,
		"session", actual.SessionID.String())
}

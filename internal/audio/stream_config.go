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
	"strings"
)

// StreamConfig holds every negotiable stream parameter. Before open it is
// a request; the StreamConfig returned by an opened stream holds the values
// the platform actually negotiated.
type StreamConfig struct {
	Direction              Direction
	ChannelCount           ChannelCount
	Format                 AudioFormat
	SampleRate             int32
	FramesPerCallback      int32
	BufferCapacityInFrames int32
	AudioAPI               AudioAPI
	SharingMode            SharingMode
	PerformanceMode        PerformanceMode
	Usage                  Usage
	ContentType            ContentType
	InputPreset            InputPreset
	SessionID              SessionID
	DeviceID               int32

	ChannelConversionAllowed    bool
	FormatConversionAllowed     bool
	SampleRateConversionQuality SampleRateConversionQuality

	callback RawCallback
}

// DefaultStreamConfig returns the "no preference" configuration the
// platform itself starts from.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Direction:                   DirectionOutput,
		ChannelCount:                ChannelCountUnspecified,
		Format:                      FormatUnspecified,
		SampleRate:                  UnspecifiedValue,
		FramesPerCallback:           UnspecifiedValue,
		BufferCapacityInFrames:      UnspecifiedValue,
		AudioAPI:                    AudioAPIUnspecified,
		SharingMode:                 SharingModeShared,
		PerformanceMode:             PerformanceModeNone,
		Usage:                       UsageMedia,
		ContentType:                 ContentTypeMusic,
		InputPreset:                 InputPresetVoiceRecognition,
		SessionID:                   SessionIDNone,
		DeviceID:                    UnspecifiedValue,
		ChannelConversionAllowed:    true,
		FormatConversionAllowed:     true,
		SampleRateConversionQuality: SampleRateConversionQualityNone,
	}
}

// Callback returns the platform-facing callback bound to this
// configuration, or nil for blocking streams.
func (c StreamConfig) Callback() RawCallback {
	return c.callback
}

// HasCallback reports whether a callback is bound.
func (c StreamConfig) HasCallback() bool {
	return c.callback != nil
}

// WithoutCallback returns a copy with the callback slot cleared. Platforms
// use it when reporting negotiated values.
func (c StreamConfig) WithoutCallback() StreamConfig {
	c.callback = nil
	return c
}

// BytesPerFrame returns the frame size for concrete formats and channel
// counts, or 0 otherwise.
func (c StreamConfig) BytesPerFrame() int {
	return c.Format.BytesPerSample() * int(c.ChannelCount)
}

// Validate reports whether the configuration can be handed to a platform.
func (c StreamConfig) Validate() error {
	var problems []string

	if c.Direction != DirectionInput && c.Direction != DirectionOutput {
		problems = append(problems, fmt.Sprintf("direction %d", int32(c.Direction)))
	}
	if c.ChannelCount < ChannelCountUnspecified {
		problems = append(problems, fmt.Sprintf("channel count %d", int32(c.ChannelCount)))
	}
	switch c.Format {
	case FormatUnspecified, FormatI16, FormatFloat, FormatI24, FormatI32:
	default:
		problems = append(problems, fmt.Sprintf("format %d", int32(c.Format)))
	}
	if c.SampleRate < 0 {
		problems = append(problems, fmt.Sprintf("sample rate %d", c.SampleRate))
	}
	if c.FramesPerCallback < 0 {
		problems = append(problems, fmt.Sprintf("frames per callback %d", c.FramesPerCallback))
	}
	if c.BufferCapacityInFrames < 0 {
		problems = append(problems, fmt.Sprintf("buffer capacity %d", c.BufferCapacityInFrames))
	}
	switch c.AudioAPI {
	case AudioAPIUnspecified, AudioAPIOpenSLES, AudioAPIAAudio:
	default:
		problems = append(problems, fmt.Sprintf("audio api %d", int32(c.AudioAPI)))
	}
	if c.SharingMode != SharingModeShared && c.SharingMode != SharingModeExclusive {
		problems = append(problems, fmt.Sprintf("sharing mode %d", int32(c.SharingMode)))
	}
	if c.PerformanceMode < PerformanceModeNone || c.PerformanceMode > PerformanceModeLowLatency {
		problems = append(problems, fmt.Sprintf("performance mode %d", int32(c.PerformanceMode)))
	}
	if c.SessionID < SessionIDNone {
		problems = append(problems, fmt.Sprintf("session id %d", int32(c.SessionID)))
	}
	if c.DeviceID < 0 {
		problems = append(problems, fmt.Sprintf("device id %d", c.DeviceID))
	}
	if c.SampleRateConversionQuality < SampleRateConversionQualityNone ||
		c.SampleRateConversionQuality > SampleRateConversionQualityBest {
		problems = append(problems, fmt.Sprintf("sample rate conversion quality %d", int32(c.SampleRateConversionQuality)))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, ", "))
	}

	if c.callback != nil {
		if err := checkCallbackBinding(c, c.callback); err != nil {
			return err
		}
	}
	return nil
}

func (c StreamConfig) String() string {
	return fmt.Sprintf(
		"StreamConfig{direction=%s channels=%s format=%s rate=%d framesPerCallback=%d capacity=%d "+
			"api=%s sharing=%s performance=%s usage=%s content=%s preset=%s session=%s device=%d "+
			"channelConversion=%t formatConversion=%t srcQuality=%s callback=%t}",
		c.Direction, c.ChannelCount, c.Format, c.SampleRate, c.FramesPerCallback, c.BufferCapacityInFrames,
		c.AudioAPI, c.SharingMode, c.PerformanceMode, c.Usage, c.ContentType, c.InputPreset, c.SessionID, c.DeviceID,
		c.ChannelConversionAllowed, c.FormatConversionAllowed, c.SampleRateConversionQuality, c.callback != nil,
	)
}

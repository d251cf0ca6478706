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

import "fmt"

// UnspecifiedValue means "no preference" on integer fields such as sample
// rate, frames per callback and device id.
const UnspecifiedValue int32 = 0

// Direction of a stream.
type Direction int32

const (
	DirectionOutput Direction = 0
	DirectionInput  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionOutput:
		return "output"
	case DirectionInput:
		return "input"
	default:
		return fmt.Sprintf("Direction(%d)", int32(d))
	}
}

// AudioFormat is the sample format of a stream.
type AudioFormat int32

const (
	FormatInvalid     AudioFormat = -1
	FormatUnspecified AudioFormat = 0
	FormatI16         AudioFormat = 1
	FormatFloat       AudioFormat = 2
	FormatI24         AudioFormat = 3
	FormatI32         AudioFormat = 4
)

func (f AudioFormat) String() string {
	switch f {
	case FormatInvalid:
		return "invalid"
	case FormatUnspecified:
		return "unspecified"
	case FormatI16:
		return "i16"
	case FormatFloat:
		return "f32"
	case FormatI24:
		return "i24"
	case FormatI32:
		return "i32"
	default:
		return fmt.Sprintf("AudioFormat(%d)", int32(f))
	}
}

// BytesPerSample returns the packed size of one sample, or 0 when the
// format is not concrete.
func (f AudioFormat) BytesPerSample() int {
	switch f {
	case FormatI16:
		return 2
	case FormatI24:
		return 3
	case FormatFloat, FormatI32:
		return 4
	default:
		return 0
	}
}

// ChannelCount is the number of interleaved channels in a frame.
type ChannelCount int32

const (
	ChannelCountUnspecified ChannelCount = 0
	ChannelCountMono        ChannelCount = 1
	ChannelCountStereo      ChannelCount = 2
)

func (c ChannelCount) String() string {
	switch c {
	case ChannelCountUnspecified:
		return "unspecified"
	case ChannelCountMono:
		return "mono"
	case ChannelCountStereo:
		return "stereo"
	default:
		return fmt.Sprintf("ChannelCount(%d)", int32(c))
	}
}

// AudioAPI selects the native backend servicing a stream. AAudio is the
// preferred low latency backend; OpenSL ES is the compatibility fallback.
type AudioAPI int32

const (
	AudioAPIUnspecified AudioAPI = 0
	AudioAPIOpenSLES    AudioAPI = 1
	AudioAPIAAudio      AudioAPI = 2
)

func (a AudioAPI) String() string {
	switch a {
	case AudioAPIUnspecified:
		return "unspecified"
	case AudioAPIOpenSLES:
		return "opensles"
	case AudioAPIAAudio:
		return "aaudio"
	default:
		return fmt.Sprintf("AudioAPI(%d)", int32(a))
	}
}

// SharingMode controls whether the stream may share the device.
type SharingMode int32

const (
	SharingModeExclusive SharingMode = 0
	SharingModeShared    SharingMode = 1
)

func (s SharingMode) String() string {
	switch s {
	case SharingModeExclusive:
		return "exclusive"
	case SharingModeShared:
		return "shared"
	default:
		return fmt.Sprintf("SharingMode(%d)", int32(s))
	}
}

// PerformanceMode is a latency/power hint.
type PerformanceMode int32

const (
	PerformanceModeNone        PerformanceMode = 10
	PerformanceModePowerSaving PerformanceMode = 11
	PerformanceModeLowLatency  PerformanceMode = 12
)

func (p PerformanceMode) String() string {
	switch p {
	case PerformanceModeNone:
		return "none"
	case PerformanceModePowerSaving:
		return "power_saving"
	case PerformanceModeLowLatency:
		return "low_latency"
	default:
		return fmt.Sprintf("PerformanceMode(%d)", int32(p))
	}
}

// Usage describes why the stream plays audio. The platform uses it for
// routing, volume and focus decisions.
type Usage int32

const (
	UsageMedia                        Usage = 1
	UsageVoiceCommunication           Usage = 2
	UsageVoiceCommunicationSignalling Usage = 3
	UsageAlarm                        Usage = 4
	UsageNotification                 Usage = 5
	UsageNotificationRingtone         Usage = 6
	UsageNotificationEvent            Usage = 10
	UsageAssistanceAccessibility      Usage = 11
	UsageAssistanceNavigationGuidance Usage = 12
	UsageAssistanceSonification       Usage = 13
	UsageGame                         Usage = 14
	UsageAssistant                    Usage = 16
)

var usageNames = map[Usage]string{
	UsageMedia:                        "media",
	UsageVoiceCommunication:           "voice_communication",
	UsageVoiceCommunicationSignalling: "voice_communication_signalling",
	UsageAlarm:                        "alarm",
	UsageNotification:                 "notification",
	UsageNotificationRingtone:         "notification_ringtone",
	UsageNotificationEvent:            "notification_event",
	UsageAssistanceAccessibility:      "assistance_accessibility",
	UsageAssistanceNavigationGuidance: "assistance_navigation_guidance",
	UsageAssistanceSonification:       "assistance_sonification",
	UsageGame:                         "game",
	UsageAssistant:                    "assistant",
}

func (u Usage) String() string {
	if name, ok := usageNames[u]; ok {
		return name
	}
	return fmt.Sprintf("Usage(%d)", int32(u))
}

// ContentType describes what the stream carries.
type ContentType int32

const (
	ContentTypeSpeech       ContentType = 1
	ContentTypeMusic        ContentType = 2
	ContentTypeMovie        ContentType = 3
	ContentTypeSonification ContentType = 4
)

var contentTypeNames = map[ContentType]string{
	ContentTypeSpeech:       "speech",
	ContentTypeMusic:        "music",
	ContentTypeMovie:        "movie",
	ContentTypeSonification: "sonification",
}

func (c ContentType) String() string {
	if name, ok := contentTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ContentType(%d)", int32(c))
}

// InputPreset selects the capture processing chain for input streams.
type InputPreset int32

const (
	InputPresetGeneric            InputPreset = 1
	InputPresetCamcorder          InputPreset = 5
	InputPresetVoiceRecognition   InputPreset = 6
	InputPresetVoiceCommunication InputPreset = 7
	InputPresetUnprocessed        InputPreset = 9
	InputPresetVoicePerformance   InputPreset = 10
)

var inputPresetNames = map[InputPreset]string{
	InputPresetGeneric:            "generic",
	InputPresetCamcorder:          "camcorder",
	InputPresetVoiceRecognition:   "voice_recognition",
	InputPresetVoiceCommunication: "voice_communication",
	InputPresetUnprocessed:        "unprocessed",
	InputPresetVoicePerformance:   "voice_performance",
}

func (p InputPreset) String() string {
	if name, ok := inputPresetNames[p]; ok {
		return name
	}
	return fmt.Sprintf("InputPreset(%d)", int32(p))
}

// SessionID identifies an effects session. Values above zero are concrete
// ids allocated by the platform.
type SessionID int32

const (
	SessionIDNone     SessionID = -1
	SessionIDAllocate SessionID = 0
)

func (s SessionID) String() string {
	switch s {
	case SessionIDNone:
		return "none"
	case SessionIDAllocate:
		return "allocate"
	default:
		return fmt.Sprintf("%d", int32(s))
	}
}

// SampleRateConversionQuality is the resampler quality the platform may use
// when the requested rate differs from the device rate.
type SampleRateConversionQuality int32

const (
	SampleRateConversionQualityNone    SampleRateConversionQuality = 0
	SampleRateConversionQualityFastest SampleRateConversionQuality = 1
	SampleRateConversionQualityLow     SampleRateConversionQuality = 2
	SampleRateConversionQualityMedium  SampleRateConversionQuality = 3
	SampleRateConversionQualityHigh    SampleRateConversionQuality = 4
	SampleRateConversionQualityBest    SampleRateConversionQuality = 5
)

func (q SampleRateConversionQuality) String() string {
	switch q {
	case SampleRateConversionQualityNone:
		return "none"
	case SampleRateConversionQualityFastest:
		return "fastest"
	case SampleRateConversionQualityLow:
		return "low"
	case SampleRateConversionQualityMedium:
		return "medium"
	case SampleRateConversionQualityHigh:
		return "high"
	case SampleRateConversionQualityBest:
		return "best"
	default:
		return fmt.Sprintf("SampleRateConversionQuality(%d)", int32(q))
	}
}

// DataCallbackResult tells the platform whether to keep invoking a data callback.
type DataCallbackResult int32

const (
	DataCallbackResultContinue DataCallbackResult = 0
	DataCallbackResultStop     DataCallbackResult = 1
)

func (r DataCallbackResult) String() string {
	if r == DataCallbackResultStop {
		return "stop"
	}
	return "continue"
}

// StreamState is the lifecycle state reported by a native stream.
type StreamState int32

const (
	StreamStateUninitialized StreamState = 0
	StreamStateUnknown       StreamState = 1
	StreamStateOpen          StreamState = 2
	StreamStateStarting      StreamState = 3
	StreamStateStarted       StreamState = 4
	StreamStatePausing       StreamState = 5
	StreamStatePaused        StreamState = 6
	StreamStateFlushing      StreamState = 7
	StreamStateFlushed       StreamState = 8
	StreamStateStopping      StreamState = 9
	StreamStateStopped       StreamState = 10
	StreamStateClosing       StreamState = 11
	StreamStateClosed        StreamState = 12
	StreamStateDisconnected  StreamState = 13
)

var streamStateNames = [...]string{
	"uninitialized", "unknown", "open", "starting", "started", "pausing", "paused",
	"flushing", "flushed", "stopping", "stopped", "closing", "closed", "disconnected",
}

func (s StreamState) String() string {
	if s >= 0 && int(s) < len(streamStateNames) {
		return streamStateNames[s]
	}
	return fmt.Sprintf("StreamState(%d)", int32(s))
}

// Status is a result code returned across the platform boundary.
type Status int32

const (
	StatusOK                   Status = 0
	StatusErrorDisconnected    Status = -899
	StatusErrorIllegalArgument Status = -898
	StatusErrorInternal        Status = -896
	StatusErrorInvalidState    Status = -895
	StatusErrorInvalidHandle   Status = -892
	StatusErrorUnimplemented   Status = -890
	StatusErrorUnavailable     Status = -889
	StatusErrorNoFreeHandles   Status = -888
	StatusErrorNoMemory        Status = -887
	StatusErrorNull            Status = -886
	StatusErrorTimeout         Status = -885
	StatusErrorWouldBlock      Status = -884
	StatusErrorInvalidFormat   Status = -883
	StatusErrorOutOfRange      Status = -882
	StatusErrorNoService       Status = -881
	StatusErrorInvalidRate     Status = -880
	StatusErrorClosed          Status = -869
)

var statusNames = map[Status]string{
	StatusOK:                   "ok",
	StatusErrorDisconnected:    "disconnected",
	StatusErrorIllegalArgument: "illegal argument",
	StatusErrorInternal:        "internal error",
	StatusErrorInvalidState:    "invalid state",
	StatusErrorInvalidHandle:   "invalid handle",
	StatusErrorUnimplemented:   "unimplemented",
	StatusErrorUnavailable:     "unavailable",
	StatusErrorNoFreeHandles:   "no free handles",
	StatusErrorNoMemory:        "no memory",
	StatusErrorNull:            "null",
	StatusErrorTimeout:         "timeout",
	StatusErrorWouldBlock:      "would block",
	StatusErrorInvalidFormat:   "invalid format",
	StatusErrorOutOfRange:      "out of range",
	StatusErrorNoService:       "no service",
	StatusErrorInvalidRate:     "invalid rate",
	StatusErrorClosed:          "closed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Error makes Status usable as an error value.
func (s Status) Error() string {
	return fmt.Sprintf("audio status %d: %s", int32(s), s.String())
}

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


package miniaudio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
)

func formatToMalgo(f audio.AudioFormat) malgo.FormatType {
	switch f {
	case audio.FormatI16:
		return malgo.FormatS16
	case audio.FormatI24:
		return malgo.FormatS24
	case audio.FormatI32:
		return malgo.FormatS32
	case audio.FormatFloat:
		return malgo.FormatF32
	default:
		return malgo.FormatUnknown
	}
}

func formatFromMalgo(f malgo.FormatType) audio.AudioFormat {
	switch f {
	case malgo.FormatS16:
		return audio.FormatI16
	case malgo.FormatS24:
		return audio.FormatI24
	case malgo.FormatS32:
		return audio.FormatI32
	case malgo.FormatF32:
		return audio.FormatFloat
	default:
		return audio.FormatInvalid
	}
}

var usages = map[audio.Usage]malgo.AAudioUsage{
	audio.UsageMedia:                        malgo.AAudioUsageMedia,
	audio.UsageVoiceCommunication:           malgo.AAudioUsageVoiceCommunication,
	audio.UsageVoiceCommunicationSignalling: malgo.AAudioUsageVoiceCommunicationSignalling,
	audio.UsageAlarm:                        malgo.AAudioUsageAlarm,
	audio.UsageNotification:                 malgo.AAudioUsageNotification,
	audio.UsageNotificationRingtone:         malgo.AAudioUsageNotificationRingtone,
	audio.UsageNotificationEvent:            malgo.AAudioUsageNotificationEvent,
	audio.UsageAssistanceAccessibility:      malgo.AAudioUsageAssistanceAccessibility,
	audio.UsageAssistanceNavigationGuidance: malgo.AAudioUsageAssistanceNavigationGuidance,
	audio.UsageAssistanceSonification:       malgo.AAudioUsageAssistanceSonification,
	audio.UsageGame:                         malgo.AAudioUsageGame,
	audio.UsageAssistant:                    malgo.AAudioUsageAssitant,
}

func usageToMalgo(u audio.Usage) malgo.AAudioUsage {
	if v, ok := usages[u]; ok {
		return v
	}
	return malgo.AAudioUsageDefault
}

func contentTypeToMalgo(c audio.ContentType) malgo.AAudioContentType {
	switch c {
	case audio.ContentTypeSpeech:
		return malgo.AAudioContentTypeSpeech
	case audio.ContentTypeMusic:
		return malgo.AAudioContentTypeMusic
	case audio.ContentTypeMovie:
		return malgo.AAudioContentTypeMovie
	case audio.ContentTypeSonification:
		return malgo.AAudioContentTypeSonification
	default:
		return malgo.AAudioContentTypeDefault
	}
}

func inputPresetToMalgo(p audio.InputPreset) malgo.AAudioInputPreset {
	switch p {
	case audio.InputPresetGeneric:
		return malgo.AAudioInputPresetGeneric
	case audio.InputPresetCamcorder:
		return malgo.AAudioInputPresetCamcorder
	case audio.InputPresetVoiceRecognition:
		return malgo.AAudioInputPresetVoiceRecognition
	case audio.InputPresetVoiceCommunication:
		return malgo.AAudioInputPresetVoiceCommunication
	case audio.InputPresetUnprocessed:
		return malgo.AAudioInputPresetUnprocessed
	case audio.InputPresetVoicePerformance:
		return malgo.AAudioInputPresetVoicePerformance
	default:
		return malgo.AAudioInputPresetDefault
	}
}

// statusError attaches the closest audio.Status to a miniaudio error
func statusError(err error) error {
	var result malgo.Result
	if !errors.As(err, &result) {
		return fmt.Errorf("%w: %w", audio.StatusErrorInternal, err)
	}

	status := audio.StatusErrorInternal
	switch result {
	case malgo.ErrFormatNotSupported:
		status = audio.StatusErrorInvalidFormat
	case malgo.ErrNoBackend, malgo.ErrNoDevice, malgo.ErrUnavailable, malgo.ErrAPINotFound,
		malgo.ErrDeviceTypeNotSupported, malgo.ErrShareModeNotSupported, malgo.ErrFailedToInitBackend,
		malgo.ErrFailedToOpenBackendDevice, malgo.ErrAccessDenied, malgo.ErrBusy, malgo.ErrAlreadyInUse:
		status = audio.StatusErrorUnavailable
	case malgo.ErrOutOfMemory:
		status = audio.StatusErrorNoMemory
	case malgo.ErrInvalidArgs, malgo.ErrInvalidDeviceConfig:
		status = audio.StatusErrorIllegalArgument
	case malgo.ErrOutOfRange:
		status = audio.StatusErrorOutOfRange
	case malgo.ErrTimeout:
		status = audio.StatusErrorTimeout
	case malgo.ErrNotImplemented:
		status = audio.StatusErrorUnimplemented
	case malgo.ErrInvalidOperation, malgo.ErrDeviceNotInitialized, malgo.ErrDeviceNotStarted,
		malgo.ErrDeviceNotStopped, malgo.ErrFailedToStartBackendDevice, malgo.ErrFailedToStopBackendDevice:
		status = audio.StatusErrorInvalidState
	}
	return fmt.Errorf("%w: %w", status, err)
}

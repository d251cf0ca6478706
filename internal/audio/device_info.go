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

// AudioDeviceInfo describes a physical audio device. Device enumeration
// lives outside this package; ids from it are passed to SetDeviceID.
type AudioDeviceInfo struct {
	ID            int32
	DeviceType    AudioDeviceType
	Direction     AudioDeviceDirection
	Address       string
	ProductName   string
	ChannelCounts []int32
	SampleRates   []int32
	Formats       []AudioFormat
}

func (d AudioDeviceInfo) String() string {
	return fmt.Sprintf("%d %q (%s, %s)", d.ID, d.ProductName, d.DeviceType, d.Direction)
}

// SupportsSampleRate reports whether rate is listed. An empty list means
// the device accepts any rate.
func (d AudioDeviceInfo) SupportsSampleRate(rate int32) bool {
	if len(d.SampleRates) == 0 {
		return true
	}
	for _, r := range d.SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// AudioDeviceType is the physical category of a device.
type AudioDeviceType int32

const (
	DeviceTypeUnknown            AudioDeviceType = 0
	DeviceTypeBuiltinEarpiece    AudioDeviceType = 1
	DeviceTypeBuiltinSpeaker     AudioDeviceType = 2
	DeviceTypeWiredHeadset       AudioDeviceType = 3
	DeviceTypeWiredHeadphones    AudioDeviceType = 4
	DeviceTypeLineAnalog         AudioDeviceType = 5
	DeviceTypeLineDigital        AudioDeviceType = 6
	DeviceTypeBluetoothSCO       AudioDeviceType = 7
	DeviceTypeBluetoothA2DP      AudioDeviceType = 8
	DeviceTypeHDMI               AudioDeviceType = 9
	DeviceTypeHDMIArc            AudioDeviceType = 10
	DeviceTypeUSBDevice          AudioDeviceType = 11
	DeviceTypeUSBAccessory       AudioDeviceType = 12
	DeviceTypeDock               AudioDeviceType = 13
	DeviceTypeFM                 AudioDeviceType = 14
	DeviceTypeBuiltinMic         AudioDeviceType = 15
	DeviceTypeFMTuner            AudioDeviceType = 16
	DeviceTypeTVTuner            AudioDeviceType = 17
	DeviceTypeTelephony          AudioDeviceType = 18
	DeviceTypeAuxLine            AudioDeviceType = 19
	DeviceTypeIP                 AudioDeviceType = 20
	DeviceTypeBus                AudioDeviceType = 21
	DeviceTypeUSBHeadset         AudioDeviceType = 22
	DeviceTypeHearingAid         AudioDeviceType = 23
	DeviceTypeBuiltinSpeakerSafe AudioDeviceType = 24
)

var deviceTypeNames = [...]string{
	"unknown", "builtin_earpiece", "builtin_speaker", "wired_headset", "wired_headphones",
	"line_analog", "line_digital", "bluetooth_sco", "bluetooth_a2dp", "hdmi", "hdmi_arc",
	"usb_device", "usb_accessory", "dock", "fm", "builtin_mic", "fm_tuner", "tv_tuner",
	"telephony", "aux_line", "ip", "bus", "usb_headset", "hearing_aid", "builtin_speaker_safe",
}

func (t AudioDeviceType) String() string {
	if t >= 0 && int(t) < len(deviceTypeNames) {
		return deviceTypeNames[t]
	}
	return fmt.Sprintf("AudioDeviceType(%d)", int32(t))
}

// AudioDeviceDirection says whether a device is a source, a sink, or both.
type AudioDeviceDirection int32

const (
	DeviceDirectionInput       AudioDeviceDirection = 1
	DeviceDirectionOutput      AudioDeviceDirection = 2
	DeviceDirectionInputOutput AudioDeviceDirection = 3
)

// NewAudioDeviceDirection combines input and output capability flags. It
// returns 0 when neither is set.
func NewAudioDeviceDirection(isInput, isOutput bool) AudioDeviceDirection {
	var d AudioDeviceDirection
	if isInput {
		d |= DeviceDirectionInput
	}
	if isOutput {
		d |= DeviceDirectionOutput
	}
	return d
}

func (d AudioDeviceDirection) IsInput() bool {
	return d&DeviceDirectionInput != 0
}

func (d AudioDeviceDirection) IsOutput() bool {
	return d&DeviceDirectionOutput != 0
}

// Serves reports whether a device with this direction can carry a stream
// in dir.
func (d AudioDeviceDirection) Serves(dir Direction) bool {
	if dir == DirectionInput {
		return d.IsInput()
	}
	return d.IsOutput()
}

func (d AudioDeviceDirection) String() string {
	switch d {
	case DeviceDirectionInput:
		return "input"
	case DeviceDirectionOutput:
		return "output"
	case DeviceDirectionInputOutput:
		return "input_output"
	default:
		return fmt.Sprintf("AudioDeviceDirection(%d)", int32(d))
	}
}

// Android AudioFormat encodings reported by device enumeration.
const (
	EncodingPCM16Bit = 2
	EncodingPCMFloat = 4
)

// AudioFormatFromEncoding maps a platform encoding to an AudioFormat.
func AudioFormatFromEncoding(encoding int32) AudioFormat {
	switch encoding {
	case EncodingPCM16Bit:
		return FormatI16
	case EncodingPCMFloat:
		return FormatFloat
	default:
		return FormatInvalid
	}
}

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


// Package miniaudio implements audio.Platform on top of miniaudio. On
// Android AAudio and OpenSL ES are selected explicitly; on other hosts the
// host-native backend services every request as the fallback backend.
package miniaudio

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

// aaudioRecommendedSDK is the first Android release on which AAudio is
// preferred over OpenSL ES.
const aaudioRecommendedSDK = 28

// Platform implements audio.Platform using miniaudio
type Platform struct {
	hostBackends []malgo.Backend
	android      bool
	sdkVersion   func() int

	probeOnce         sync.Once
	aaudioSupported   bool
	aaudioRecommended bool

	sessions atomic.Int32
}

// New creates a platform using miniaudio's default backend order on
// desktop hosts.
func New() *Platform {
	return NewWithBackends()
}

// NewWithBackends creates a platform that restricts desktop hosts to the
// given backends, e.g. malgo.BackendNull for hardware-free operation.
func NewWithBackends(backends ...malgo.Backend) *Platform {
	return &Platform{
		hostBackends: backends,
		android:      runtime.GOOS == "android",
		sdkVersion:   androidSDKVersion,
	}
}

func (p *Platform) IsAAudioSupported() bool {
	p.probe()
	return p.aaudioSupported
}

func (p *Platform) IsAAudioRecommended() bool {
	p.probe()
	return p.aaudioRecommended
}

// probe checks once whether an AAudio context can be created
func (p *Platform) probe() {
	p.probeOnce.Do(func() {
		if !p.android {
			return
		}
		ctx, err := malgo.InitContext([]malgo.Backend{malgo.BackendAaudio}, malgo.ContextConfig{}, nil)
		if err != nil {
			logger.Debug("AAudio backend unavailable", "error", err)
			return
		}
		releaseContext(ctx)

		p.aaudioSupported = true
		p.aaudioRecommended = p.sdkVersion() >= aaudioRecommendedSDK
	})
}

// backends returns the miniaudio backend list for api
func (p *Platform) backends(api audio.AudioAPI) []malgo.Backend {
	if !p.android {
		return p.hostBackends
	}
	if api == audio.AudioAPIAAudio {
		return []malgo.Backend{malgo.BackendAaudio}
	}
	return []malgo.Backend{malgo.BackendOpensl}
}

// OpenStream initializes a context and device for cfg and reads the
// negotiated values back from the device. Every failure releases what was
// created before it.
func (p *Platform) OpenStream(cfg audio.StreamConfig) (audio.NativeStream, error) {
	n := cfg
	n.AudioAPI = audio.SelectAudioAPI(cfg.AudioAPI, p.IsAAudioSupported(), p.IsAAudioRecommended())
	if n.AudioAPI == audio.AudioAPIOpenSLES {
		n.DeviceID = audio.UnspecifiedValue
		n.SharingMode = audio.SharingModeShared
	}
	if n.Format == audio.FormatUnspecified {
		n.Format = audio.FormatFloat
	}

	ctx, err := malgo.InitContext(p.backends(n.AudioAPI), malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, statusError(err)
	}

	deviceType := malgo.Playback
	if n.Direction == audio.DirectionInput {
		deviceType = malgo.Capture
	}

	deviceCfg := deviceConfig(n, deviceType)
	if n.DeviceID != audio.UnspecifiedValue {
		id, ok := lookupDevice(ctx, deviceType, n.DeviceID)
		if ok {
			deviceCfg.Playback.DeviceID = id.Pointer()
			deviceCfg.Capture.DeviceID = id.Pointer()
		} else {
			logger.Info("Requested device not found, using default", "device_id", n.DeviceID)
			n.DeviceID = audio.UnspecifiedValue
		}
	}

	s := &stream{cfg: n, state: audio.StreamStateOpen, ctx: ctx}
	device, err := malgo.InitDevice(ctx.Context, deviceCfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		releaseContext(ctx)
		return nil, statusError(err)
	}
	s.device = device

	if err := s.readBack(deviceType, deviceCfg); err != nil {
		s.release()
		return nil, err
	}
	if n.SessionID == audio.SessionIDAllocate {
		s.cfg.SessionID = audio.SessionID(p.sessions.Add(1))
	}
	if !s.cfg.HasCallback() {
		s.allocateRing()
	}

	logger.Debug("Opened miniaudio stream",
		"api", s.cfg.AudioAPI.String(),
		"direction", s.cfg.Direction.String(),
		"format", s.cfg.Format.String(),
		"channels", int32(s.cfg.ChannelCount),
		"rate", s.cfg.SampleRate)
	return s, nil
}

// deviceConfig maps a stream configuration onto a miniaudio device config
func deviceConfig(cfg audio.StreamConfig, deviceType malgo.DeviceType) malgo.DeviceConfig {
	dc := malgo.DefaultDeviceConfig(deviceType)

	sub := malgo.SubConfig{
		Format:    formatToMalgo(cfg.Format),
		Channels:  uint32(max(cfg.ChannelCount, 0)),
		ShareMode: malgo.Shared,
	}
	if cfg.SharingMode == audio.SharingModeExclusive {
		sub.ShareMode = malgo.Exclusive
	}
	if deviceType == malgo.Capture {
		sub.ChannelMap = dc.Capture.ChannelMap
		dc.Capture = sub
	} else {
		sub.ChannelMap = dc.Playback.ChannelMap
		dc.Playback = sub
	}

	dc.SampleRate = uint32(max(cfg.SampleRate, 0))
	if cfg.FramesPerCallback > 0 {
		dc.PeriodSizeInFrames = uint32(cfg.FramesPerCallback)
		if cfg.BufferCapacityInFrames > cfg.FramesPerCallback {
			dc.Periods = uint32((cfg.BufferCapacityInFrames + cfg.FramesPerCallback - 1) / cfg.FramesPerCallback)
		}
	}

	dc.PerformanceProfile = malgo.Conservative
	if cfg.PerformanceMode == audio.PerformanceModeLowLatency {
		dc.PerformanceProfile = malgo.LowLatency
	}

	dc.AAudio.Usage = usageToMalgo(cfg.Usage)
	dc.AAudio.ContentType = contentTypeToMalgo(cfg.ContentType)
	dc.AAudio.InputPreset = inputPresetToMalgo(cfg.InputPreset)
	return dc
}

// lookupDevice resolves a 1-based device id against the enumerated devices
func lookupDevice(ctx *malgo.AllocatedContext, deviceType malgo.DeviceType, id int32) (*malgo.DeviceID, bool) {
	infos, err := ctx.Devices(deviceType)
	if err != nil {
		logger.Warn("Failed to enumerate devices", "error", err)
		return nil, false
	}
	if id < 1 || int(id) > len(infos) {
		return nil, false
	}
	return &infos[id-1].ID, true
}

func releaseContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		logger.Warn("Failed to uninitialize miniaudio context", "error", err)
	}
	ctx.Free()
}

// androidSDKVersion reads ro.build.version.sdk, returning 0 if unknown
func androidSDKVersion() int {
	out, err := exec.Command("getprop", "ro.build.version.sdk").Output()
	if err != nil {
		return 0
	}
	return parseSDKVersion(string(out))
}

func parseSDKVersion(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

func (p *Platform) String() string {
	return fmt.Sprintf("miniaudio(android=%t backends=%v)", p.android, p.hostBackends)
}

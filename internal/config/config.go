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


// Package config loads loqa-stream settings from a YAML file and
// LOQA_STREAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g.
// LOQA_STREAM_STREAM_SAMPLE_RATE=16000
const EnvPrefix = "LOQA_STREAM"

// Platform names accepted by the platform key
const (
	PlatformMock      = "mock"
	PlatformMiniaudio = "miniaudio"
	PlatformPortAudio = "portaudio"
)

// Config is the complete application configuration
type Config struct {
	Platform string         `mapstructure:"platform"`
	Stream   StreamSettings `mapstructure:"stream"`
	Logging  logger.Config  `mapstructure:"logging"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// StreamSettings is the file form of audio.StreamConfig. Enumerations are
// given by name, case-insensitively; numeric values are accepted too.
type StreamSettings struct {
	Direction                   string `mapstructure:"direction"`
	ChannelCount                int32  `mapstructure:"channel_count"`
	Format                      string `mapstructure:"format"`
	SampleRate                  int32  `mapstructure:"sample_rate"`
	FramesPerCallback           int32  `mapstructure:"frames_per_callback"`
	BufferCapacityInFrames      int32  `mapstructure:"buffer_capacity_in_frames"`
	AudioAPI                    string `mapstructure:"audio_api"`
	SharingMode                 string `mapstructure:"sharing_mode"`
	PerformanceMode             string `mapstructure:"performance_mode"`
	Usage                       string `mapstructure:"usage"`
	ContentType                 string `mapstructure:"content_type"`
	InputPreset                 string `mapstructure:"input_preset"`
	SessionID                   string `mapstructure:"session_id"`
	DeviceID                    int32  `mapstructure:"device_id"`
	ChannelConversionAllowed    bool   `mapstructure:"channel_conversion_allowed"`
	FormatConversionAllowed     bool   `mapstructure:"format_conversion_allowed"`
	SampleRateConversionQuality string `mapstructure:"sample_rate_conversion_quality"`
}

// NATSConfig configures the frame publisher and subscriber
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Subject        string        `mapstructure:"subject"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
}

// MetricsConfig configures the Prometheus listener. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads the configuration from path, or from config.yaml in the
// default search paths when path is empty. A missing default file is not
// an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range []string{".", "./config", "/etc/loqa-stream"} {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := audio.DefaultStreamConfig()

	v.SetDefault("platform", PlatformMiniaudio)

	v.SetDefault("stream.direction", d.Direction.String())
	v.SetDefault("stream.channel_count", int32(d.ChannelCount))
	v.SetDefault("stream.format", d.Format.String())
	v.SetDefault("stream.sample_rate", d.SampleRate)
	v.SetDefault("stream.frames_per_callback", d.FramesPerCallback)
	v.SetDefault("stream.buffer_capacity_in_frames", d.BufferCapacityInFrames)
	v.SetDefault("stream.audio_api", d.AudioAPI.String())
	v.SetDefault("stream.sharing_mode", d.SharingMode.String())
	v.SetDefault("stream.performance_mode", d.PerformanceMode.String())
	v.SetDefault("stream.usage", d.Usage.String())
	v.SetDefault("stream.content_type", d.ContentType.String())
	v.SetDefault("stream.input_preset", d.InputPreset.String())
	v.SetDefault("stream.session_id", d.SessionID.String())
	v.SetDefault("stream.device_id", d.DeviceID)
	v.SetDefault("stream.channel_conversion_allowed", d.ChannelConversionAllowed)
	v.SetDefault("stream.format_conversion_allowed", d.FormatConversionAllowed)
	v.SetDefault("stream.sample_rate_conversion_quality", d.SampleRateConversionQuality.String())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stderr"})
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "loqa.stream.pcm")
	v.SetDefault("nats.connect_retries", 5)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("metrics.listen", "")
}

// Validate checks the platform name and every stream setting
func (c *Config) Validate() error {
	switch strings.ToLower(c.Platform) {
	case PlatformMock, PlatformMiniaudio, PlatformPortAudio:
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	if _, err := c.Stream.ToConfig(); err != nil {
		return err
	}
	return nil
}

// ToConfig parses the settings into a stream configuration record
func (s StreamSettings) ToConfig() (audio.StreamConfig, error) {
	cfg := audio.DefaultStreamConfig()
	var errs []error
	parse := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.Direction, err = parseEnum("direction", s.Direction, cfg.Direction, directions, nil)
	parse(err)
	cfg.Format, err = parseEnum("format", s.Format, cfg.Format, formats, formatAliases)
	parse(err)
	cfg.AudioAPI, err = parseEnum("audio_api", s.AudioAPI, cfg.AudioAPI, audioAPIs, nil)
	parse(err)
	cfg.SharingMode, err = parseEnum("sharing_mode", s.SharingMode, cfg.SharingMode, sharingModes, nil)
	parse(err)
	cfg.PerformanceMode, err = parseEnum("performance_mode", s.PerformanceMode, cfg.PerformanceMode, performanceModes, nil)
	parse(err)
	cfg.Usage, err = parseEnum("usage", s.Usage, cfg.Usage, usages, nil)
	parse(err)
	cfg.ContentType, err = parseEnum("content_type", s.ContentType, cfg.ContentType, contentTypes, nil)
	parse(err)
	cfg.InputPreset, err = parseEnum("input_preset", s.InputPreset, cfg.InputPreset, inputPresets, nil)
	parse(err)
	cfg.SessionID, err = parseEnum("session_id", s.SessionID, cfg.SessionID, sessionIDs, nil)
	parse(err)
	cfg.SampleRateConversionQuality, err = parseEnum("sample_rate_conversion_quality",
		s.SampleRateConversionQuality, cfg.SampleRateConversionQuality, qualities, nil)
	parse(err)

	cfg.ChannelCount = audio.ChannelCount(s.ChannelCount)
	cfg.SampleRate = s.SampleRate
	cfg.FramesPerCallback = s.FramesPerCallback
	cfg.BufferCapacityInFrames = s.BufferCapacityInFrames
	cfg.DeviceID = s.DeviceID
	cfg.ChannelConversionAllowed = s.ChannelConversionAllowed
	cfg.FormatConversionAllowed = s.FormatConversionAllowed

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", audio.ErrInvalidConfiguration, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Apply copies the settings onto b
func (s StreamSettings) Apply(b *audio.RawBuilder) error {
	cfg, err := s.ToConfig()
	if err != nil {
		return err
	}
	b.SetDirection(cfg.Direction).
		SetChannelCount(cfg.ChannelCount).
		SetFormat(cfg.Format).
		SetSampleRate(cfg.SampleRate).
		SetFramesPerCallback(cfg.FramesPerCallback).
		SetBufferCapacityInFrames(cfg.BufferCapacityInFrames).
		SetAudioAPI(cfg.AudioAPI).
		SetSharingMode(cfg.SharingMode).
		SetPerformanceMode(cfg.PerformanceMode).
		SetUsage(cfg.Usage).
		SetContentType(cfg.ContentType).
		SetInputPreset(cfg.InputPreset).
		SetSessionID(cfg.SessionID).
		SetDeviceID(cfg.DeviceID).
		SetChannelConversionAllowed(cfg.ChannelConversionAllowed).
		SetFormatConversionAllowed(cfg.FormatConversionAllowed).
		SetSampleRateConversionQuality(cfg.SampleRateConversionQuality)
	return nil
}

// FromConfig is the inverse of ToConfig
func FromConfig(cfg audio.StreamConfig) StreamSettings {
	return StreamSettings{
		Direction:                   cfg.Direction.String(),
		ChannelCount:                int32(cfg.ChannelCount),
		Format:                      cfg.Format.String(),
		SampleRate:                  cfg.SampleRate,
		FramesPerCallback:           cfg.FramesPerCallback,
		BufferCapacityInFrames:      cfg.BufferCapacityInFrames,
		AudioAPI:                    cfg.AudioAPI.String(),
		SharingMode:                 cfg.SharingMode.String(),
		PerformanceMode:             cfg.PerformanceMode.String(),
		Usage:                       cfg.Usage.String(),
		ContentType:                 cfg.ContentType.String(),
		InputPreset:                 cfg.InputPreset.String(),
		SessionID:                   cfg.SessionID.String(),
		DeviceID:                    cfg.DeviceID,
		ChannelConversionAllowed:    cfg.ChannelConversionAllowed,
		FormatConversionAllowed:     cfg.FormatConversionAllowed,
		SampleRateConversionQuality: cfg.SampleRateConversionQuality.String(),
	}
}

type enum interface {
	~int32
	String() string
}

// parseEnum resolves name against the String form of values, then aliases,
// then as a number. An empty name yields def.
func parseEnum[T enum](key, name string, def T, values []T, aliases map[string]T) (T, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return def, nil
	}
	for _, v := range values {
		if v.String() == name {
			return v, nil
		}
	}
	if v, ok := aliases[name]; ok {
		return v, nil
	}
	if n, err := strconv.ParseInt(name, 10, 32); err == nil {
		return T(n), nil
	}
	return def, fmt.Errorf("%s: unknown value %q", key, name)
}

var (
	directions    = []audio.Direction{audio.DirectionOutput, audio.DirectionInput}
	formats       = []audio.AudioFormat{audio.FormatUnspecified, audio.FormatI16, audio.FormatFloat, audio.FormatI24, audio.FormatI32}
	formatAliases = map[string]audio.AudioFormat{
		"float":   audio.FormatFloat,
		"float32": audio.FormatFloat,
		"int16":   audio.FormatI16,
		"pcm16":   audio.FormatI16,
	}
	audioAPIs        = []audio.AudioAPI{audio.AudioAPIUnspecified, audio.AudioAPIOpenSLES, audio.AudioAPIAAudio}
	sharingModes     = []audio.SharingMode{audio.SharingModeExclusive, audio.SharingModeShared}
	performanceModes = []audio.PerformanceMode{audio.PerformanceModeNone, audio.PerformanceModePowerSaving, audio.PerformanceModeLowLatency}
	usages           = []audio.Usage{
		audio.UsageMedia, audio.UsageVoiceCommunication, audio.UsageVoiceCommunicationSignalling,
		audio.UsageAlarm, audio.UsageNotification, audio.UsageNotificationRingtone,
		audio.UsageNotificationEvent, audio.UsageAssistanceAccessibility,
		audio.UsageAssistanceNavigationGuidance, audio.UsageAssistanceSonification,
		audio.UsageGame, audio.UsageAssistant,
	}
	contentTypes = []audio.ContentType{
		audio.ContentTypeSpeech, audio.ContentTypeMusic, audio.ContentTypeMovie, audio.ContentTypeSonification,
	}
	inputPresets = []audio.InputPreset{
		audio.InputPresetGeneric, audio.InputPresetCamcorder, audio.InputPresetVoiceRecognition,
		audio.InputPresetVoiceCommunication, audio.InputPresetUnprocessed, audio.InputPresetVoicePerformance,
	}
	sessionIDs = []audio.SessionID{audio.SessionIDNone, audio.SessionIDAllocate}
	qualities  = []audio.SampleRateConversionQuality{
		audio.SampleRateConversionQualityNone, audio.SampleRateConversionQualityFastest,
		audio.SampleRateConversionQualityLow, audio.SampleRateConversionQualityMedium,
		audio.SampleRateConversionQualityHigh, audio.SampleRateConversionQualityBest,
	}
)

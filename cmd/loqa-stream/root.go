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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/config"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/metrics"
	"github.com/loqalabs/loqa-stream-go/internal/platform/miniaudio"
	"github.com/loqalabs/loqa-stream-go/internal/platform/portaudio"
)

// app holds what every subcommand shares once the root command has loaded
// the configuration
type app struct {
	configPath    string
	platformName  string
	metricsListen string

	cfg           *config.Config
	platform      audio.Platform
	release       func()
	metricsServer *http.Server
}

func newApp() *app {
	return &app{release: func() {}}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "loqa-stream",
		Short:         "Negotiate, open and drive low-latency audio streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file (default: search ., ./config, /etc/loqa-stream)")
	flags.StringVar(&a.platformName, "platform", "", "Audio platform: mock, miniaudio or portaudio (overrides config)")
	flags.StringVar(&a.metricsListen, "metrics", "", "Serve Prometheus metrics on this address, e.g. :9100 (overrides config)")

	root.AddCommand(
		probeCommand(a),
		negotiateCommand(a),
		toneCommand(a),
		recordCommand(a),
		publishCommand(a),
		relayCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("platform") {
		cfg.Platform = a.platformName
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Listen = a.metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if cfg.Metrics.Listen != "" {
		a.startMetrics(cfg.Metrics.Listen)
	}

	platform, release, err := openPlatform(cfg.Platform)
	if err != nil {
		return err
	}
	a.platform, a.release = platform, release
	logger.Debug("platform ready", "platform", cfg.Platform)
	return nil
}

// teardown releases what setup acquired. It is safe to call more than once
// and after a failed setup.
func (a *app) teardown() error {
	a.release()
	a.release = func() {}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
		a.metricsServer = nil
	}
	return logger.Close()
}

// execute runs the command line args and tears the app down afterwards
func execute(ctx context.Context, a *app, args []string, out io.Writer) error {
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

func (a *app) startMetrics(addr string) {
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

// openPlatform returns the named platform and a function releasing it
func openPlatform(name string) (audio.Platform, func(), error) {
	switch strings.ToLower(name) {
	case config.PlatformMock:
		return audio.NewMockPlatform(), func() {}, nil
	case config.PlatformMiniaudio:
		return miniaudio.New(), func() {}, nil
	case config.PlatformPortAudio:
		p := portaudio.New()
		if err := p.Initialize(); err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Terminate(); err != nil {
				logger.Warn("PortAudio terminate failed", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown platform %q", name)
	}
}

// configure copies the non-typed settings of cfg onto a typed builder
func configure[D audio.IsDirection, C audio.IsChannelCount, T audio.IsFormat](b *audio.StreamBuilder[D, C, T], cfg audio.StreamConfig) *audio.StreamBuilder[D, C, T] {
	return b.SetSampleRate(cfg.SampleRate).
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
}

// streamConfig returns the configured stream settings
func (a *app) streamConfig() (audio.StreamConfig, error) {
	return a.cfg.Stream.ToConfig()
}

// wait blocks until ctx is done, d has passed or done is closed. A zero d
// or a nil done never fires.
func wait(ctx context.Context, d time.Duration, done <-chan struct{}) {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-done:
	}
}

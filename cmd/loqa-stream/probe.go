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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

func probeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report backend availability and the API a stream would use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.streamConfig()
			if err != nil {
				return err
			}
			supported := a.platform.IsAAudioSupported()
			recommended := a.platform.IsAAudioRecommended()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "platform:           %s\n", a.cfg.Platform)
			fmt.Fprintf(w, "aaudio supported:   %t\n", supported)
			fmt.Fprintf(w, "aaudio recommended: %t\n", recommended)
			fmt.Fprintf(w, "requested api:      %s\n", cfg.AudioAPI)
			fmt.Fprintf(w, "will use aaudio:    %t\n", audio.WillUseAAudio(cfg.AudioAPI, supported, recommended))
			fmt.Fprintf(w, "selected api:       %s\n", audio.SelectAudioAPI(cfg.AudioAPI, supported, recommended))
			return nil
		},
	}
}

func negotiateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "negotiate",
		Short: "Open the configured stream and print what the platform granted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := audio.NewRawBuilder(a.platform)
			if err := a.cfg.Stream.Apply(b); err != nil {
				return err
			}
			requested := b.Config()

			stream, err := b.Open()
			if err != nil {
				return fmt.Errorf("open failed: %w", err)
			}
			granted := stream.Config()
			if err := stream.Close(); err != nil {
				logger.Warn("close failed", "error", err)
			}

			printNegotiation(cmd, requested, granted)
			return nil
		},
	}
}

func printNegotiation(cmd *cobra.Command, requested, granted audio.StreamConfig) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tREQUESTED\tNEGOTIATED")
	rows := []struct {
		name     string
		req, got any
	}{
		{"direction", requested.Direction, granted.Direction},
		{"audio_api", requested.AudioAPI, granted.AudioAPI},
		{"format", requested.Format, granted.Format},
		{"channel_count", requested.ChannelCount, granted.ChannelCount},
		{"sample_rate", requested.SampleRate, granted.SampleRate},
		{"frames_per_callback", requested.FramesPerCallback, granted.FramesPerCallback},
		{"buffer_capacity_in_frames", requested.BufferCapacityInFrames, granted.BufferCapacityInFrames},
		{"sharing_mode", requested.SharingMode, granted.SharingMode},
		{"performance_mode", requested.PerformanceMode, granted.PerformanceMode},
		{"device_id", requested.DeviceID, granted.DeviceID},
		{"session_id", requested.SessionID, granted.SessionID},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%v\t%v\n", r.name, r.req, r.got)
	}
	_ = w.Flush()
}

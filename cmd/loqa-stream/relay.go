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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/metrics"
	loqanats "github.com/loqalabs/loqa-stream-go/internal/nats"
	"github.com/loqalabs/loqa-stream-go/internal/pipeline"
	"github.com/loqalabs/loqa-stream-go/internal/transport"
)

const frameQueueDepth = 32

func publishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Capture mono 16-bit audio and publish it as frames on NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := loqanats.Connect(a.cfg.NATS)
			if err != nil {
				return err
			}
			defer conn.Close()
			return a.publish(cmd.Context(), conn)
		},
	}
}

func relayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Play mono 16-bit frames received from NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := loqanats.Connect(a.cfg.NATS)
			if err != nil {
				return err
			}
			sub := loqanats.NewSubscriber(conn, a.cfg.NATS.Subject, frameQueueDepth)
			defer sub.Close()
			return a.relay(cmd.Context(), sub)
		},
	}
}

// publish streams captured audio to conn until ctx is done or the capture
// stream fails
func (a *app) publish(ctx context.Context, conn loqanats.Connection) error {
	cfg, err := a.streamConfig()
	if err != nil {
		return err
	}

	tap := pipeline.NewTap[int16, audio.Mono](frameQueueDepth)
	b := configure(audio.NewStreamBuilder(a.platform).SetInput().SetMono().SetI16(), cfg)
	stream, err := audio.SetInputCallback(b, tap).Open()
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}
	defer closeStream(stream)

	pub, err := loqanats.NewPublisher(conn, a.cfg.NATS.Subject, stream.Config())
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		return err
	}
	logger.Info("publishing", "subject", a.cfg.NATS.Subject, "stream", pub.StreamID(), "rate", stream.Config().SampleRate)

	for {
		select {
		case samples := <-tap.Samples():
			if err := pub.Publish(transport.EncodeSamples(samples)); err != nil {
				return err
			}
		case <-tap.Done():
			return tap.Err()
		case <-ctx.Done():
			if dropped := tap.Dropped(); dropped > 0 {
				logger.Warn("capture buffers dropped", "count", dropped)
			}
			return pub.End()
		}
	}
}

// relay plays frames from sub until ctx is done or the playback stream fails.
// Frames in a different format from the negotiated stream are skipped.
func (a *app) relay(ctx context.Context, sub *loqanats.Subscriber) error {
	cfg, err := a.streamConfig()
	if err != nil {
		return err
	}

	player := pipeline.NewPlayer[int16, audio.Mono](frameQueueDepth)
	b := configure(audio.NewStreamBuilder(a.platform).SetOutput().SetMono().SetI16(), cfg)
	stream, err := audio.SetOutputCallback(b, player).Open()
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}
	defer closeStream(stream)

	if err := sub.Start(); err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		return err
	}
	negotiated := stream.Config()

	for {
		select {
		case f := <-sub.Frames():
			a.play(player, negotiated, f)
		case <-player.Done():
			return fmt.Errorf("playback stream failed: %w", audio.StatusErrorDisconnected)
		case <-ctx.Done():
			logger.Info("relay stopped", "underruns", player.Underruns())
			return nil
		}
	}
}

func (a *app) play(player *pipeline.Player[int16, audio.Mono], negotiated audio.StreamConfig, f *transport.Frame) {
	if f.Type == transport.FrameTypeAudioEnd {
		logger.Info("remote stream ended", "stream", f.StreamID, "messages", f.Sequence)
		return
	}
	if !f.Matches(negotiated) {
		logger.Warn("skipping frame in a different format",
			"stream", f.StreamID, "format", f.Format, "channels", f.ChannelCount, "rate", f.SampleRate)
		return
	}
	samples, err := transport.DecodeSamples[int16](f.Data)
	if err != nil {
		logger.Warn("undecodable frame", "stream", f.StreamID, "error", err)
		return
	}
	if !player.Enqueue(samples) {
		logger.Warn("playback queue full, dropping frame", "stream", f.StreamID, "seq", f.Sequence)
		return
	}
	metrics.FramesRelayed("relay", f.NumFrames())
}

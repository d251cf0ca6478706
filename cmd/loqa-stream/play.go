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
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-stream-go/internal/audio"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
	"github.com/loqalabs/loqa-stream-go/internal/pipeline"
)

func toneCommand(a *app) *cobra.Command {
	var (
		frequency float64
		amplitude float64
		duration  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine tone on a stereo float output stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.streamConfig()
			if err != nil {
				return err
			}

			tone := pipeline.NewTone[float32, audio.Stereo](frequency, amplitude)
			b := configure(audio.NewStreamBuilder(a.platform).SetOutput().SetStereo().SetF32(), cfg)
			stream, err := audio.SetOutputCallback(b, tone).Open()
			if err != nil {
				return fmt.Errorf("open failed: %w", err)
			}
			defer closeStream(stream)

			if err := stream.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "playing %.0f Hz on %s\n", frequency, stream)
			wait(cmd.Context(), duration, nil)
			return stream.Stop()
		},
	}
	cmd.Flags().Float64Var(&frequency, "frequency", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.2, "Tone amplitude between 0 and 1")
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "How long to play; 0 plays until interrupted")
	return cmd
}

func recordCommand(a *app) *cobra.Command {
	var (
		duration time.Duration
		out      string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record mono 16-bit audio from a blocking input stream to a WAV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.streamConfig()
			if err != nil {
				return err
			}

			b := configure(audio.NewStreamBuilder(a.platform).SetInput().SetMono().SetI16(), cfg)
			stream, err := b.Open()
			if err != nil {
				return fmt.Errorf("open failed: %w", err)
			}
			defer closeStream(stream)

			samples, err := capture(cmd, stream, duration)
			if err != nil {
				return err
			}
			rate := int(stream.Config().SampleRate)
			if err := writeWAV(out, samples, rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames at %d Hz to %s\n", len(samples), rate, out)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "Recording length")
	cmd.Flags().StringVar(&out, "out", "recording.wav", "Output WAV path")
	return cmd
}

// capture reads from stream until duration worth of frames has arrived or
// the command is cancelled
func capture(cmd *cobra.Command, stream *audio.SyncStream[audio.Input, audio.Mono, int16], duration time.Duration) ([]int16, error) {
	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			logger.Warn("stop failed", "error", err)
		}
	}()

	rate := int(stream.Config().SampleRate)
	total := int(duration.Seconds() * float64(rate))
	chunk := make([]int16, max(rate/50, 1))
	samples := make([]int16, 0, total)

	for len(samples) < total {
		if err := cmd.Context().Err(); err != nil {
			break
		}
		want := min(len(chunk), total-len(samples))
		n, err := audio.Read(stream, chunk[:want], 100*time.Millisecond)
		if err != nil {
			return samples, fmt.Errorf("read failed after %d frames: %w", len(samples), err)
		}
		samples = append(samples, chunk[:n]...)
	}
	return samples, nil
}

func writeWAV(path string, samples []int16, rate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return enc.Close()
}

type closer interface {
	Close() error
	String() string
}

func closeStream(s closer) {
	if err := s.Close(); err != nil {
		logger.Warn("close failed", "stream", s.String(), "error", err)
	}
}

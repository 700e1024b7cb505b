package waveform

import (
	"fmt"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// monoFormat returns the 16-bit mono format clips are written in.
func monoFormat(sampleRate int) beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2}
}

// Float32Stream replays mono float32 samples as a beep.Streamer.
type Float32Stream struct {
	Samples []float32
	cur     int
}

func (s *Float32Stream) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.cur >= len(s.Samples) {
			return i, i > 0
		}
		sample := float64(s.Samples[s.cur])
		samples[i][0], samples[i][1] = sample, sample
		s.cur++
	}
	return len(samples), true
}

func (s *Float32Stream) Err() error {
	return nil
}

// StreamAll32 drains streamer and mixes each frame down to one float32.
func StreamAll32(streamer beep.Streamer) ([]float32, error) {
	var all []float32
	buffer := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(buffer)
		for i := 0; i < n; i++ {
			all = append(all, float32((buffer[i][0]+buffer[i][1])/2))
		}
		if !ok {
			if err := streamer.Err(); err != nil {
				return nil, err
			}
			return all, nil
		}
	}
}

// WriteMonoWAV encodes samples as a 16-bit mono WAV file at path.
func WriteMonoWAV(path string, samples []float32, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := wav.Encode(file, &Float32Stream{Samples: samples}, monoFormat(sampleRate)); err != nil {
		_ = file.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	return file.Close()
}

// ReadMonoWAV decodes a WAV file into mono float32 samples and its sample rate.
func ReadMonoWAV(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	streamer, format, err := wav.Decode(file)
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav %s: %w", path, err)
	}
	defer streamer.Close()

	samples, err := StreamAll32(streamer)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav %s: %w", path, err)
	}
	return samples, int(format.SampleRate), nil
}

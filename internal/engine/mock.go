package engine

import (
	"context"
	"math"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
	delay      time.Duration
}

// NewMockSynth produces a deterministic tone whose length scales with the
// text. The optional delay simulates model latency and is the cancellation
// checkpoint, so tests can cancel mid-call.
func NewMockSynth(sampleRate, channels int, delay time.Duration) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels, delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, p Params) (*RawAudio, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ~10ms of audio per character, stretched by the inverse of speed.
	frames := len([]rune(p.Text)) * m.sampleRate / 100
	if frames == 0 {
		frames = m.sampleRate / 100
	}
	if p.Speed > 0 {
		frames = int(float64(frames) / p.Speed)
	}
	total := frames * m.channels
	samples := make([]float32, total)
	for i := 0; i < total; i++ {
		t := float64(i/m.channels) / float64(m.sampleRate)
		samples[i] = float32(0.1 * math.Sin(2*math.Pi*220*t))
	}
	return &RawAudio{Samples: samples, SampleRate: m.sampleRate, Channels: m.channels}, nil
}

package engine

import (
	"context"

	"github.com/Shidfar/sirius/internal/voicemix"
)

// Params are the resolved inputs for one synthesis call. Voice weights are
// normalized before they reach the engine.
type Params struct {
	Text   string
	Voices []voicemix.Entry
	Lang   string
	Speed  float64
}

// RawAudio is the uncontainered result of one synthesis call. Ownership of
// the sample buffer passes to the receiver; the engine keeps no reference.
type RawAudio struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DurationSecs reports the playback length of the buffer.
func (a *RawAudio) DurationSecs() float64 {
	if a == nil || a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate*a.Channels)
}

// SynthesisError carries an engine-reported failure reason. It is never
// retried automatically.
type SynthesisError struct {
	Reason string
}

func (e *SynthesisError) Error() string { return "synthesis failed: " + e.Reason }

// Synthesizer is the boundary to the loaded model. Implementations must be
// safe for concurrent calls from multiple workers and must observe ctx
// cancellation at their own checkpoints, returning ctx.Err() without partial
// audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, p Params) (*RawAudio, error)
}

package protocol

import "encoding/json"

// Frame type tags exchanged over a session. Requests arrive as a tagged
// envelope with the payload under "data"; responses are flat objects.
const (
	TypeSynthesize = "Synthesize"
	TypePing       = "Ping"
	TypeAudioReady = "AudioReady"
	TypePong       = "Pong"
	TypeError      = "Error"
)

// Machine-readable error kinds carried on Error frames. Callers use these to
// tell "retry later" (busy, timeout) from "fix the request"
// (malformed_request, validation_error) from upstream failures.
const (
	KindMalformedRequest  = "malformed_request"
	KindValidationError   = "validation_error"
	KindBusy              = "busy"
	KindAlreadyInProgress = "already_in_progress"
	KindTimeout           = "timeout"
	KindSynthesisFailure  = "synthesis_failure"
	KindCancelled         = "cancelled"
)

// RequestEnvelope is the outer shape of every inbound text frame.
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SynthesizeData is the payload of a Synthesize request. Pointer fields
// distinguish "omitted, apply the default" from an explicit zero value.
type SynthesizeData struct {
	Text  *string  `json:"text"`
	Voice string   `json:"voice"`
	Lang  string   `json:"lang"`
	Speed *float64 `json:"speed"`
}

// AudioReady announces that one binary WAV frame follows immediately.
type AudioReady struct {
	Type         string  `json:"type"`
	DurationSecs float64 `json:"duration_secs"`
	SampleRate   int     `json:"sample_rate"`
	Channels     int     `json:"channels"`
	SizeBytes    int     `json:"size_bytes"`
}

// Pong answers a Ping request.
type Pong struct {
	Type string `json:"type"`
}

// ErrorFrame reports a failed or rejected request. No binary frame follows.
type ErrorFrame struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

package request

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Shidfar/sirius/internal/protocol"
	"github.com/Shidfar/sirius/internal/voicemix"
)

// SynthesisRequest is a fully validated synthesis command. Instances are
// built only by the Decoder and never mutated afterwards.
type SynthesisRequest struct {
	Text   string
	Voices []voicemix.Entry
	Lang   string
	Speed  float64
}

// MalformedError reports an inbound frame that is not a recognized request
// shape. Distinct from ValidationError, which means the shape was fine but a
// field value was not.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed request: " + e.Reason }

// ValidationError names the field that failed a constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

// Limits bounds what the decoder accepts.
type Limits struct {
	MaxTextLen int
	MinSpeed   float64
	MaxSpeed   float64
}

// Defaults fill omitted request fields, mirroring the wire protocol defaults.
type Defaults struct {
	Voice string
	Lang  string
	Speed float64
}

// Decoder validates Synthesize payloads against the engine's voice registry
// and the configured limits. It has no side effects and touches neither the
// network nor the scheduler.
type Decoder struct {
	registry  voicemix.Registry
	languages map[string]struct{}
	limits    Limits
	defaults  Defaults
}

func NewDecoder(reg voicemix.Registry, languages []string, limits Limits, defaults Defaults) *Decoder {
	langs := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		langs[l] = struct{}{}
	}
	return &Decoder{registry: reg, languages: langs, limits: limits, defaults: defaults}
}

// DecodeSynthesize turns the data payload of a Synthesize envelope into a
// validated SynthesisRequest.
func (d *Decoder) DecodeSynthesize(data []byte) (*SynthesisRequest, error) {
	if len(data) == 0 {
		return nil, &MalformedError{Reason: "missing data payload"}
	}
	var payload protocol.SynthesizeData
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}
	if payload.Text == nil {
		return nil, &MalformedError{Reason: "missing field text"}
	}

	text := *payload.Text
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if d.limits.MaxTextLen > 0 && len(text) > d.limits.MaxTextLen {
		return nil, &ValidationError{Field: "text", Reason: fmt.Sprintf("exceeds %d bytes", d.limits.MaxTextLen)}
	}

	voice := payload.Voice
	if voice == "" {
		voice = d.defaults.Voice
	}
	voices, err := voicemix.Parse(voice, d.registry)
	if err != nil {
		return nil, &ValidationError{Field: "voice", Reason: err.Error()}
	}

	lang := payload.Lang
	if lang == "" {
		lang = d.defaults.Lang
	}
	if _, ok := d.languages[lang]; !ok {
		return nil, &ValidationError{Field: "lang", Reason: fmt.Sprintf("unsupported language %q", lang)}
	}

	speed := d.defaults.Speed
	if payload.Speed != nil {
		speed = *payload.Speed
	}
	if speed < d.limits.MinSpeed || speed > d.limits.MaxSpeed {
		return nil, &ValidationError{Field: "speed", Reason: fmt.Sprintf("must be between %g and %g", d.limits.MinSpeed, d.limits.MaxSpeed)}
	}

	return &SynthesisRequest{Text: text, Voices: voices, Lang: lang, Speed: speed}, nil
}

package engine

import (
	"sort"

	"github.com/Shidfar/sirius/internal/config"
	"github.com/Shidfar/sirius/internal/voicemix"
)

// Registry is the fixed set of voice identifiers the loaded model can blend.
type Registry struct {
	ids map[string]struct{}
}

var _ voicemix.Registry = (*Registry)(nil)

func NewRegistry(ids []string) *Registry {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &Registry{ids: set}
}

func (r *Registry) IsValid(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Names lists the known identifiers in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ids))
	for id := range r.ids {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// New builds the synthesizer and voice registry for the configured mode.
func New(cfg config.EngineConfig) (Synthesizer, *Registry, error) {
	reg := NewRegistry(cfg.Voices)
	switch cfg.Mode {
	case "exec":
		synth, err := NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, nil, err
		}
		return synth, reg, nil
	default:
		return NewMockSynth(cfg.SampleRate, cfg.Channels, 0), reg, nil
	}
}

package engine

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to an external synthesis command per call. The command
// receives one JSON request on stdin and answers with newline-delimited JSON
// chunks carrying base64 float32 little-endian samples. Each call spawns its
// own process, so concurrent workers never share state.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
}

type execRequest struct {
	Text       string      `json:"text"`
	Voices     []execVoice `json:"voices"`
	Lang       string      `json:"lang"`
	Speed      float64     `json:"speed"`
	SampleRate int         `json:"sample_rate"`
	Channels   int         `json:"channels"`
}

type execVoice struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

type execResponse struct {
	SamplesBase64 string `json:"samples_base64"`
	Error         string `json:"error,omitempty"`
	Final         bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, p Params) (*RawAudio, error) {
	voices := make([]execVoice, 0, len(p.Voices))
	for _, v := range p.Voices {
		voices = append(voices, execVoice{ID: v.ID, Weight: v.Weight})
	}
	payload, err := json.Marshal(execRequest{
		Text:       p.Text,
		Voices:     voices,
		Lang:       p.Lang,
		Speed:      p.Speed,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if _, err := stdin.Write(payload); err != nil {
		_ = cmd.Wait()
		return nil, err
	}
	stdin.Close()

	var samples []float32
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return nil, fmt.Errorf("decode engine chunk: %w", err)
		}
		if resp.Error != "" {
			_ = cmd.Wait()
			return nil, &SynthesisError{Reason: resp.Error}
		}
		raw, err := base64.StdEncoding.DecodeString(resp.SamplesBase64)
		if err != nil {
			_ = cmd.Wait()
			return nil, fmt.Errorf("decode engine samples: %w", err)
		}
		samples = append(samples, bytesToFloat32(raw)...)
		if resp.Final {
			break
		}
	}
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		// partial output is discarded; the caller only sees the cancellation
		return nil, ctxErr
	}
	if waitErr != nil {
		return nil, &SynthesisError{Reason: waitErr.Error()}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, &SynthesisError{Reason: scanErr.Error()}
	}
	return &RawAudio{Samples: samples, SampleRate: e.sampleRate, Channels: e.channels}, nil
}

func bytesToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// Package whisper shells out to a whisper.cpp binary for speech recognition.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/shortpipe/shortpipe/internal/ports"
	"github.com/shortpipe/shortpipe/internal/types"
)

type Adapter struct {
	bin       string
	model     string
	beamSize  int
	threads   int
	vadFilter bool
}

var _ ports.ASR = (*Adapter)(nil)

func New(binPath, modelPath string, beamSize, threads int, vadFilter bool) *Adapter {
	return &Adapter{
		bin:       binPath,
		model:     modelPath,
		beamSize:  beamSize,
		threads:   threads,
		vadFilter: vadFilter,
	}
}

// resultJSON is the shape of whisper.cpp's -oj output. Offsets are
// milliseconds from the start of the audio.
type resultJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs the model over a mono 16 kHz WAV file. language is a hint;
// empty means auto-detect. The JSON sidecar is written next to the input and
// removed afterwards. Failures (unreadable audio, model OOM) surface as one
// error with the tool's own message attached; there is no partial-transcript
// fallback.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, language string) (types.Transcript, error) {
	outPrefix := wavPath[:len(wavPath)-len(filepath.Ext(wavPath))]
	lang := language
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-l", lang,
		"-oj",
		"-of", outPrefix,
		"-bs", strconv.Itoa(a.beamSize),
		"-t", strconv.Itoa(a.threads),
	}
	if a.vadFilter {
		args = append(args, "--vad")
	}

	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w\n%s", err, string(b))
	}

	jsonPath := outPrefix + ".json"
	jb, err := os.ReadFile(jsonPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper output: %w", err)
	}
	defer os.Remove(jsonPath)

	return ParseResult(jb)
}

// ParseResult converts whisper.cpp JSON output into a normalized transcript.
func ParseResult(b []byte) (types.Transcript, error) {
	var raw resultJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.Transcript{}, fmt.Errorf("parse whisper json: %w", err)
	}

	tr := types.Transcript{Language: raw.Result.Language}
	for _, seg := range raw.Transcription {
		tr.Utterances = append(tr.Utterances, types.Utterance{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  seg.Text,
		})
	}
	tr.Normalize()
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper produced unusable transcript: %w", err)
	}
	return tr, nil
}

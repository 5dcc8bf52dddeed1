package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Transcript is the artifact produced by the transcribe stage. Timestamps are
// floating-point seconds with sub-second precision. Utterances are serialized
// under "segments" to keep the on-disk format stable for external tooling.
type Transcript struct {
	VideoID             string      `json:"video_id"`
	VideoPath           string      `json:"video_path"`
	Language            string      `json:"language"`
	LanguageProbability float64     `json:"language_probability,omitempty"`
	Duration            float64     `json:"duration"`
	Utterances          []Utterance `json:"segments"`
}

type Utterance struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Normalize sorts utterances by start, trims text, drops empty or zero-length
// entries and clamps overlaps so that Validate holds afterwards. ASR output is
// occasionally sloppy at utterance boundaries.
func (t *Transcript) Normalize() {
	kept := make([]Utterance, 0, len(t.Utterances))
	for _, u := range t.Utterances {
		u.Text = strings.TrimSpace(u.Text)
		if u.Text == "" || u.End <= u.Start {
			continue
		}
		if u.Start < 0 {
			u.Start = 0
		}
		kept = append(kept, u)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })

	out := kept[:0]
	for _, u := range kept {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if u.Start < prev.End {
				u.Start = prev.End
			}
			if u.End <= u.Start {
				continue
			}
		}
		u.ID = len(out)
		out = append(out, u)
	}
	t.Utterances = out
}

// Validate checks the transcript timeline invariants: start < end for every
// utterance, starts strictly increasing, windows non-overlapping.
func (t *Transcript) Validate() error {
	if len(t.Utterances) == 0 {
		return errors.New("transcript has no utterances")
	}
	for i, u := range t.Utterances {
		if u.Start < 0 {
			return fmt.Errorf("utterance %d: negative start %.3f", i, u.Start)
		}
		if u.End <= u.Start {
			return fmt.Errorf("utterance %d: start %.3f >= end %.3f", i, u.Start, u.End)
		}
		if i > 0 {
			prev := t.Utterances[i-1]
			if u.Start <= prev.Start {
				return fmt.Errorf("utterance %d: start %.3f not increasing", i, u.Start)
			}
			if u.Start < prev.End {
				return fmt.Errorf("utterance %d: overlaps previous (%.3f < %.3f)", i, u.Start, prev.End)
			}
		}
	}
	return nil
}

// Cut is one proposed segment as returned by the selection model and stored
// in the analysis artifact. Score is a bounded rank in [0,10], used only for
// ordering and filtering.
type Cut struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Duration    float64 `json:"duration"`
	Score       float64 `json:"viral_score"`
	Title       string  `json:"title,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
}

// Analysis is the artifact produced by the analyze stage.
type Analysis struct {
	VideoID        string         `json:"video_id"`
	TranscriptPath string         `json:"transcript_path"`
	Config         AnalysisConfig `json:"config"`
	Cuts           []Cut          `json:"cuts"`
	Stats          AnalysisStats  `json:"stats"`
}

// AnalysisConfig records the bounds in effect when the analysis ran, so later
// stages can be audited against them.
type AnalysisConfig struct {
	MinDuration float64 `json:"min_duration"`
	MaxDuration float64 `json:"max_duration"`
	MinScore    float64 `json:"min_score"`
	MaxCuts     int     `json:"max_cuts"`
}

type AnalysisStats struct {
	TotalProposed int     `json:"total_proposed"`
	Rejected      int     `json:"rejected"`
	Selected      int     `json:"selected"`
	AvgScore      float64 `json:"avg_score"`
}

// Package cuts holds the pure selection logic applied on top of the model's
// proposed segments: clamping, bound checks, score filtering and ordering.
package cuts

import (
	"sort"

	"github.com/shortpipe/shortpipe/internal/types"
)

// Bounds are the segment constraints from the settings document.
type Bounds struct {
	MinDuration float64
	MaxDuration float64
	MinScore    float64
	MaxCuts     int
}

// Validate filters the proposed cuts against the source duration and the
// configured bounds. Windows reaching outside [0, duration] are clamped; a
// cut whose window is malformed (end <= start), whose clamped duration falls
// outside [MinDuration, MaxDuration] (bounds inclusive) or whose score is
// below MinScore is dropped with a warning. Invalid individual cuts never
// fail the batch. The result is sorted by score descending and capped at
// MaxCuts.
func Validate(proposed []types.Cut, duration float64, b Bounds, warnf func(format string, args ...any)) []types.Cut {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	valid := make([]types.Cut, 0, len(proposed))
	for _, c := range proposed {
		if c.End <= c.Start {
			warnf("dropping cut %.1fs-%.1fs: end not after start", c.Start, c.End)
			continue
		}
		if c.Start < 0 {
			warnf("clamping cut start %.1fs to 0", c.Start)
			c.Start = 0
		}
		if duration > 0 && c.End > duration {
			warnf("clamping cut end %.1fs to source duration %.1fs", c.End, duration)
			c.End = duration
		}
		c.Duration = c.End - c.Start
		if c.Duration < b.MinDuration || c.Duration > b.MaxDuration {
			warnf("dropping cut %.1fs-%.1fs: duration %.1fs outside [%.1fs, %.1fs]",
				c.Start, c.End, c.Duration, b.MinDuration, b.MaxDuration)
			continue
		}
		if c.Score < b.MinScore {
			warnf("dropping cut %.1fs-%.1fs: score %.1f below minimum %.1f",
				c.Start, c.End, c.Score, b.MinScore)
			continue
		}
		valid = append(valid, c)
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Score > valid[j].Score })
	if b.MaxCuts > 0 && len(valid) > b.MaxCuts {
		warnf("keeping top %d of %d valid cuts", b.MaxCuts, len(valid))
		valid = valid[:b.MaxCuts]
	}
	return valid
}

// Stats summarizes a validation pass for the analysis artifact.
func Stats(proposed, selected []types.Cut) types.AnalysisStats {
	s := types.AnalysisStats{
		TotalProposed: len(proposed),
		Selected:      len(selected),
		Rejected:      len(proposed) - len(selected),
	}
	if len(selected) > 0 {
		var sum float64
		for _, c := range selected {
			sum += c.Score
		}
		s.AvgScore = sum / float64(len(selected))
	}
	return s
}

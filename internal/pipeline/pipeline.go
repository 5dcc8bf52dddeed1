// Package pipeline sequences the five stages and owns the file-mediated
// handoff between them. Each stage reads the previous stage's artifact from
// the fixed layout path and writes its own; stages are independently
// re-runnable from their persisted inputs.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shortpipe/shortpipe/internal/artifact"
	"github.com/shortpipe/shortpipe/internal/config"
	"github.com/shortpipe/shortpipe/internal/domain/cuts"
	"github.com/shortpipe/shortpipe/internal/ports"
	"github.com/shortpipe/shortpipe/internal/state"
	"github.com/shortpipe/shortpipe/internal/types"
)

type Deps struct {
	Downloader ports.Downloader
	ASR        ports.ASR
	Selector   ports.Selector
	Media      ports.MediaTool
	States     *state.Store
}

type Runner struct {
	cfg    *config.Config
	layout artifact.Layout
	d      Deps
	logf   func(format string, args ...any)
}

func New(cfg *config.Config, layout artifact.Layout, d Deps, logf func(format string, args ...any)) *Runner {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Runner{cfg: cfg, layout: layout, d: d, logf: logf}
}

// Download acquires the source video and returns its id. The id doubles as
// the artifact key for every later stage.
func (r *Runner) Download(ctx context.Context, url string) (string, error) {
	videoID, err := artifact.ExtractVideoID(url)
	if err != nil {
		return "", stageErr(StageDownload, "", err)
	}

	out := r.layout.RawVideo(videoID)
	r.logf("[download] %s -> %s", url, out)
	if err := r.d.Downloader.Download(ctx, url, out); err != nil {
		return "", stageErr(StageDownload, videoID, err)
	}
	return videoID, nil
}

// Transcribe extracts mono 16 kHz audio from the raw video, runs the speech
// model over it and writes the transcript artifact. language overrides the
// configured hint; empty means auto-detect.
func (r *Runner) Transcribe(ctx context.Context, videoID, language string) error {
	src := r.layout.RawVideo(videoID)
	if _, err := os.Stat(src); err != nil {
		return stageErrf(StageTranscribe, videoID, "source video missing: %v", err)
	}
	if language == "" {
		language = r.cfg.Whisper.Language
	}

	wav := r.layout.Audio(videoID)
	r.logf("[transcribe] extracting audio from %s", src)
	if err := r.d.Media.ExtractAudioMono16k(ctx, src, wav); err != nil {
		return stageErr(StageTranscribe, videoID, err)
	}
	defer os.Remove(wav)

	r.logf("[transcribe] running speech model (language=%s)", orAuto(language))
	tr, err := r.d.ASR.Transcribe(ctx, wav, language)
	if err != nil {
		return stageErr(StageTranscribe, videoID, err)
	}

	duration, err := r.d.Media.ProbeDuration(ctx, src)
	if err != nil {
		return stageErr(StageTranscribe, videoID, err)
	}

	tr.VideoID = videoID
	tr.VideoPath = src
	tr.Duration = duration
	if err := tr.Validate(); err != nil {
		return stageErr(StageTranscribe, videoID, err)
	}

	out := r.layout.Transcript(videoID)
	if err := writeJSON(out, tr); err != nil {
		return stageErr(StageTranscribe, videoID, err)
	}
	r.logf("[transcribe] %d utterances, %.1fs, language=%s -> %s",
		len(tr.Utterances), tr.Duration, tr.Language, out)
	return nil
}

// Analyze sends the transcript to the selection service, validates the
// proposed cuts against the configured bounds and writes the analysis
// artifact. Invalid individual cuts are dropped with a warning; only service
// or parse failures abort the stage.
func (r *Runner) Analyze(ctx context.Context, videoID string) error {
	// Credential check runs before the client is ever exercised.
	if err := r.cfg.RequireAPIKey(); err != nil {
		return err
	}

	trPath := r.layout.Transcript(videoID)
	var tr types.Transcript
	if err := readJSON(trPath, &tr); err != nil {
		return stageErr(StageAnalyze, videoID, err)
	}

	bounds := cuts.Bounds{
		MinDuration: r.cfg.Cuts.MinDuration,
		MaxDuration: r.cfg.Cuts.MaxDuration,
		MinScore:    r.cfg.Cuts.MinScore,
		MaxCuts:     r.cfg.Cuts.MaxCuts,
	}

	r.logf("[analyze] asking %s for cut proposals", r.cfg.Claude.Model)
	proposed, err := r.d.Selector.Select(ctx, tr, bounds)
	if err != nil {
		return stageErr(StageAnalyze, videoID, err)
	}

	warnf := func(format string, args ...any) {
		r.logf("[analyze] warn: "+format, args...)
	}
	selected := cuts.Validate(proposed, tr.Duration, bounds, warnf)

	analysis := types.Analysis{
		VideoID:        videoID,
		TranscriptPath: trPath,
		Config: types.AnalysisConfig{
			MinDuration: bounds.MinDuration,
			MaxDuration: bounds.MaxDuration,
			MinScore:    bounds.MinScore,
			MaxCuts:     bounds.MaxCuts,
		},
		Cuts:  selected,
		Stats: cuts.Stats(proposed, selected),
	}

	out := r.layout.Analysis(videoID)
	if err := writeJSON(out, analysis); err != nil {
		return stageErr(StageAnalyze, videoID, err)
	}
	r.logf("[analyze] %d proposed, %d selected (avg score %.1f) -> %s",
		analysis.Stats.TotalProposed, analysis.Stats.Selected, analysis.Stats.AvgScore, out)
	return nil
}

// Cut trims one clip per selected segment. Per-segment failures are terminal
// for that segment only; siblings keep going. A segment already in state cut
// with its clip on disk is skipped unless force is set.
func (r *Runner) Cut(ctx context.Context, videoID string, force bool) error {
	src := r.layout.RawVideo(videoID)
	if _, err := os.Stat(src); err != nil {
		return stageErrf(StageCut, videoID, "source video missing: %v", err)
	}

	var analysis types.Analysis
	if err := readJSON(r.layout.Analysis(videoID), &analysis); err != nil {
		return stageErr(StageCut, videoID, err)
	}
	if len(analysis.Cuts) == 0 {
		r.logf("[cut] analysis holds no cuts, nothing to do")
		return nil
	}

	if force {
		if err := r.d.States.Reset(ctx, videoID); err != nil {
			return stageErr(StageCut, videoID, err)
		}
	}

	// The selector already validated the windows; this re-check guards
	// against a stale analysis artifact paired with a different source file.
	duration, err := r.d.Media.ProbeDuration(ctx, src)
	if err != nil {
		return stageErr(StageCut, videoID, err)
	}

	var done, failed int
	for i, c := range analysis.Cuts {
		out := r.layout.Clip(videoID, i)

		status, err := r.d.States.Get(ctx, videoID, i)
		if err != nil {
			return stageErr(StageCut, videoID, err)
		}
		if status == state.StatusCut && fileExists(out) && !force {
			r.logf("[cut] segment %02d already cut, skipping", i)
			done++
			continue
		}

		if c.Start < 0 || c.End <= c.Start || c.End > duration+0.1 {
			r.logf("[cut] segment %02d window [%.1fs, %.1fs] out of range for %.1fs source",
				i, c.Start, c.End, duration)
			if err := r.d.States.MarkFailed(ctx, videoID, i, "window out of range"); err != nil {
				return stageErr(StageCut, videoID, err)
			}
			failed++
			continue
		}

		if err := r.d.States.MarkCutting(ctx, videoID, i); err != nil {
			return stageErr(StageCut, videoID, err)
		}

		r.logf("[cut] segment %02d: %.1fs - %.1fs (%.1fs)", i, c.Start, c.End, c.End-c.Start)
		if err := r.d.Media.Cut(ctx, src, out, c.Start, c.End, r.cfg.Video.StreamCopy); err != nil {
			r.logf("[cut] segment %02d failed: %v", i, err)
			if serr := r.d.States.MarkFailed(ctx, videoID, i, err.Error()); serr != nil {
				return stageErr(StageCut, videoID, serr)
			}
			failed++
			continue
		}
		if err := r.d.States.MarkCut(ctx, videoID, i); err != nil {
			return stageErr(StageCut, videoID, err)
		}
		done++
	}

	r.logf("[cut] %d cut, %d failed", done, failed)
	if done == 0 {
		return stageErrf(StageCut, videoID, "all %d segments failed", failed)
	}
	return nil
}

// Export re-encodes every successfully cut clip into the vertical target
// format. Unlike the cut stage, an export failure is fatal: emitting a
// corrupt or silently mangled short is worse than stopping.
func (r *Runner) Export(ctx context.Context, videoID string) error {
	idxs, err := r.d.States.ListByStatus(ctx, videoID, state.StatusCut)
	if err != nil {
		return stageErr(StageExport, videoID, err)
	}
	if len(idxs) == 0 {
		return stageErrf(StageExport, videoID, "no cut segments to export")
	}

	w, h, err := config.ParseResolution(r.cfg.Video.Resolution)
	if err != nil {
		return stageErr(StageExport, videoID, err)
	}
	params := ports.ExportParams{
		Width:        w,
		Height:       h,
		VideoCodec:   r.cfg.Video.VideoCodec,
		Preset:       r.cfg.Video.Preset,
		CRF:          r.cfg.Video.CRF,
		VideoBitrate: r.cfg.Video.VideoBitrate,
		FPS:          r.cfg.Video.FPS,
		AudioCodec:   r.cfg.Video.AudioCodec,
		AudioBitrate: r.cfg.Video.AudioBitrate,
		ScaleMode:    r.cfg.Video.ScaleMode,
	}

	for _, i := range idxs {
		in := r.layout.Clip(videoID, i)
		if !fileExists(in) {
			return stageErrf(StageExport, videoID, "clip %02d marked cut but missing at %s", i, in)
		}
		out := r.layout.Short(videoID, i)
		r.logf("[export] segment %02d -> %s (%s, %s)", i, out, r.cfg.Video.Resolution, params.ScaleMode)
		if err := r.d.Media.ExportVertical(ctx, in, out, params); err != nil {
			return stageErr(StageExport, videoID, err)
		}
	}
	r.logf("[export] %d shorts written to %s", len(idxs), r.layout.ShortsDir())
	return nil
}

// RunOptions controls full-pipeline execution.
type RunOptions struct {
	// Resume skips stages whose checkpoint artifact already exists.
	Resume bool
	// Skip names stages to skip unconditionally.
	Skip map[Stage]bool
	// ContinueOnError keeps going after a fatal stage error.
	ContinueOnError bool
	// Force re-cuts segments that are already in state cut.
	Force bool
	// Language overrides the configured transcription language hint.
	Language string
}

// Run executes the whole pipeline for one video, strictly sequentially: a
// stage starts only after the previous one has persisted its artifact.
func (r *Runner) Run(ctx context.Context, url string, opts RunOptions) error {
	videoID, err := artifact.ExtractVideoID(url)
	if err != nil {
		return stageErr(StageDownload, "", err)
	}
	r.logf("video id: %s", videoID)

	start := time.Now()
	times := make(map[Stage]time.Duration, len(Stages))

	for _, stage := range Stages {
		if opts.Skip[stage] {
			r.logf("[%s] skipped by request", stage)
			continue
		}
		if opts.Resume && r.checkpointExists(stage, videoID) {
			r.logf("[%s] checkpoint found, skipping", stage)
			continue
		}

		stageStart := time.Now()
		var err error
		switch stage {
		case StageDownload:
			_, err = r.Download(ctx, url)
		case StageTranscribe:
			err = r.Transcribe(ctx, videoID, opts.Language)
		case StageAnalyze:
			err = r.Analyze(ctx, videoID)
		case StageCut:
			err = r.Cut(ctx, videoID, opts.Force)
		case StageExport:
			err = r.Export(ctx, videoID)
		}
		times[stage] = time.Since(stageStart)

		if err != nil {
			if !opts.ContinueOnError {
				return err
			}
			r.logf("[%s] error (continuing): %v", stage, err)
		}
	}

	r.logf("pipeline finished for %s in %s", videoID, time.Since(start).Round(time.Second))
	for _, stage := range Stages {
		if d, ok := times[stage]; ok {
			r.logf("  %s: %s", stage, d.Round(100*time.Millisecond))
		}
	}
	r.report(videoID)
	return nil
}

// report summarizes the produced shorts: score, title and file size per
// segment, when the analysis artifact is available.
func (r *Runner) report(videoID string) {
	var analysis types.Analysis
	if err := readJSON(r.layout.Analysis(videoID), &analysis); err != nil {
		return
	}
	for i, c := range analysis.Cuts {
		line := fmt.Sprintf("  %02d: score %.1f, %.1fs", i, c.Score, c.End-c.Start)
		if c.Title != "" {
			line += " " + fmt.Sprintf("%q", c.Title)
		}
		if fi, err := os.Stat(r.layout.Short(videoID, i)); err == nil {
			line += fmt.Sprintf(" (%.1f MB)", float64(fi.Size())/(1<<20))
		}
		r.logf("%s", line)
	}
}

func (r *Runner) checkpointExists(stage Stage, videoID string) bool {
	switch stage {
	case StageDownload:
		return fileExists(r.layout.RawVideo(videoID))
	case StageTranscribe:
		return fileExists(r.layout.Transcript(videoID))
	case StageAnalyze:
		return fileExists(r.layout.Analysis(videoID))
	case StageCut:
		return fileExists(r.layout.Clip(videoID, 0))
	case StageExport:
		return fileExists(r.layout.Short(videoID, 0))
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func orAuto(s string) string {
	if s == "" {
		return "auto"
	}
	return s
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shortpipe/shortpipe/internal/artifact"
	"github.com/shortpipe/shortpipe/internal/config"
	"github.com/shortpipe/shortpipe/internal/pipeline"
	"github.com/shortpipe/shortpipe/internal/ports/adapters/anthropic"
	"github.com/shortpipe/shortpipe/internal/ports/adapters/ffmpeg"
	"github.com/shortpipe/shortpipe/internal/ports/adapters/whisper"
	"github.com/shortpipe/shortpipe/internal/ports/adapters/ytdlp"
	"github.com/shortpipe/shortpipe/internal/state"
	"github.com/shortpipe/shortpipe/internal/watcher"
)

// app wires the configuration, adapters and artifact layout for one command
// invocation. Everything is built from the loaded settings; there is no
// ambient global state.
type app struct {
	cfg    *config.Config
	layout artifact.Layout
	states *state.Store
	runner *pipeline.Runner
	logf   func(format string, args ...any)
}

func newApp(cmd *cobra.Command) (*app, func(), error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, nil, err
	}

	layout := artifact.NewLayout(cfg.Paths.Data)
	logf := func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}

	states, err := state.Open(layout.StateDB())
	if err != nil {
		return nil, nil, err
	}

	media := ffmpeg.New("ffmpeg", "ffprobe")
	deps := pipeline.Deps{
		Downloader: ytdlp.New(cfg.Download.Binary, cfg.Download.Format),
		ASR: whisper.New(
			cfg.Whisper.Binary,
			cfg.Whisper.Model,
			cfg.Whisper.BeamSize,
			cfg.Whisper.Threads,
			cfg.Whisper.VADFilter,
		),
		Selector: anthropic.New(cfg.APIKey, anthropic.Options{
			Model:         cfg.Claude.Model,
			BaseURL:       cfg.Claude.BaseURL,
			MaxTokens:     cfg.Claude.MaxTokens,
			Temperature:   cfg.Claude.Temperature,
			MaxInputChars: cfg.Claude.MaxInputChars,
			SystemPrompt:  loadPromptOverride(cfg.Paths.Prompts),
			Logf:          logf,
		}),
		Media:  media,
		States: states,
	}

	a := &app{
		cfg:    cfg,
		layout: layout,
		states: states,
		runner: pipeline.New(cfg, layout, deps, logf),
		logf:   logf,
	}
	return a, func() { states.Close() }, nil
}

// applyOverrides maps the shared CLI flags onto the loaded settings and
// re-validates, so a bad flag value fails the same way a bad settings field
// does.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if n, _ := cmd.Flags().GetInt("max-cuts"); n > 0 {
		cfg.Cuts.MaxCuts = n
	}
	if s, _ := cmd.Flags().GetFloat64("min-score"); s >= 0 {
		cfg.Cuts.MinScore = s
	}
	if r, _ := cmd.Flags().GetString("resolution"); r != "" {
		cfg.Video.Resolution = r
	}
	return cfg.Validate()
}

// loadPromptOverride reads prompts/analysis_prompt.txt when present; an
// absent file means the built-in prompt is used.
func loadPromptOverride(promptsDir string) string {
	b, err := os.ReadFile(filepath.Join(promptsDir, "analysis_prompt.txt"))
	if err != nil {
		return ""
	}
	return string(b)
}

// resolveVideoID returns the explicit id argument, or derives one from the
// most recently modified upstream artifact when the argument is omitted.
func (a *app) resolveVideoID(args []string, dir, pattern string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	latest, err := artifact.LatestByPattern(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("no video id given and %w", err)
	}
	videoID := artifact.VideoIDFromArtifact(latest)
	a.logf("using most recent artifact: %s (video id %s)", latest, videoID)
	return videoID, nil
}

// watch runs the transcribe-to-export tail for every video dropped into the
// raw directory.
func (a *app) watch(ctx context.Context) error {
	if err := os.MkdirAll(a.layout.RawDir(), 0o755); err != nil {
		return err
	}
	w, err := watcher.New(a.layout.RawDir(), func(ctx context.Context, videoID string) error {
		if err := a.runner.Transcribe(ctx, videoID, ""); err != nil {
			return err
		}
		if err := a.runner.Analyze(ctx, videoID); err != nil {
			return err
		}
		if err := a.runner.Cut(ctx, videoID, false); err != nil {
			return err
		}
		return a.runner.Export(ctx, videoID)
	}, a.logf)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Start(ctx)
}

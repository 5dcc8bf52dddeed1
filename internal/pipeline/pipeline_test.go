package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortpipe/shortpipe/internal/artifact"
	"github.com/shortpipe/shortpipe/internal/config"
	"github.com/shortpipe/shortpipe/internal/domain/cuts"
	"github.com/shortpipe/shortpipe/internal/ports"
	"github.com/shortpipe/shortpipe/internal/state"
	"github.com/shortpipe/shortpipe/internal/types"
)

const testVideoID = "abc123def45"

type fakeDownloader struct{ calls int }

func (f *fakeDownloader) Download(_ context.Context, _, outPath string) error {
	f.calls++
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("video"), 0o644)
}

type fakeASR struct{ tr types.Transcript }

func (f fakeASR) Transcribe(_ context.Context, _, _ string) (types.Transcript, error) {
	return f.tr, nil
}

type fakeSelector struct {
	cuts   []types.Cut
	called int
}

func (f *fakeSelector) Select(_ context.Context, _ types.Transcript, _ cuts.Bounds) ([]types.Cut, error) {
	f.called++
	return f.cuts, nil
}

// fakeMedia records invocations and materializes output files so downstream
// existence checks behave like the real transcoder.
type fakeMedia struct {
	duration    float64
	failCutSub  string
	cutCalls    []string
	exportCalls []string
}

func (f *fakeMedia) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	if err := os.MkdirAll(filepath.Dir(outWav), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeMedia) Cut(_ context.Context, _, outPath string, _, _ float64, _ bool) error {
	f.cutCalls = append(f.cutCalls, filepath.Base(outPath))
	if f.failCutSub != "" && strings.Contains(outPath, f.failCutSub) {
		return fmt.Errorf("ffmpeg exit status 1")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("clip"), 0o644)
}

func (f *fakeMedia) ExportVertical(_ context.Context, _, outPath string, _ ports.ExportParams) error {
	f.exportCalls = append(f.exportCalls, filepath.Base(outPath))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("short"), 0o644)
}

func (f *fakeMedia) ProbeDuration(_ context.Context, _ string) (float64, error) {
	return f.duration, nil
}

func (f *fakeMedia) ProbeDimensions(_ context.Context, _ string) (int, int, error) {
	return 1920, 1080, nil
}

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := &config.Config{APIKey: "sk-test"}
	cfg.Paths.Data = dataDir
	cfg.Whisper.Model = "models/ggml-base.bin"
	cfg.Claude.Model = "claude-sonnet-4-20250514"
	cfg.Claude.MaxTokens = 1024
	cfg.Cuts.MinDuration = 15
	cfg.Cuts.MaxDuration = 90
	cfg.Cuts.MinScore = 0
	cfg.Cuts.MaxCuts = 5
	require.NoError(t, cfg.Validate())
	return cfg
}

// testTranscript returns 40 well-ordered utterances over a 600 s video.
func testTranscript() types.Transcript {
	tr := types.Transcript{Language: "en"}
	for i := 0; i < 40; i++ {
		start := float64(i) * 15
		tr.Utterances = append(tr.Utterances, types.Utterance{
			ID:    i,
			Start: start,
			End:   start + 14,
			Text:  fmt.Sprintf("utterance %d", i),
		})
	}
	return tr
}

type testEnv struct {
	runner   *Runner
	layout   artifact.Layout
	states   *state.Store
	media    *fakeMedia
	selector *fakeSelector
	download *fakeDownloader
	logs     *[]string
}

func newTestEnv(t *testing.T, proposed []types.Cut) *testEnv {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	cfg := testConfig(t, dataDir)
	layout := artifact.NewLayout(dataDir)

	states, err := state.Open(layout.StateDB())
	require.NoError(t, err)
	t.Cleanup(func() { states.Close() })

	var logs []string
	logf := func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	}

	media := &fakeMedia{duration: 600}
	selector := &fakeSelector{cuts: proposed}
	download := &fakeDownloader{}

	runner := New(cfg, layout, Deps{
		Downloader: download,
		ASR:        fakeASR{tr: testTranscript()},
		Selector:   selector,
		Media:      media,
		States:     states,
	}, logf)

	return &testEnv{
		runner:   runner,
		layout:   layout,
		states:   states,
		media:    media,
		selector: selector,
		download: download,
		logs:     &logs,
	}
}

func (e *testEnv) logText() string { return strings.Join(*e.logs, "\n") }

func proposedFiveCuts() []types.Cut {
	return []types.Cut{
		{Start: 10, End: 40, Score: 9.1, Title: "one"},
		{Start: 100, End: 160, Score: 8.7, Title: "two"},
		{Start: 200, End: 400, Score: 9.9, Title: "oversized"}, // 200 s > max 90 s
		{Start: 420, End: 450, Score: 8.0, Title: "four"},
		{Start: 500, End: 560, Score: 7.4, Title: "five"},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t, proposedFiveCuts())
	url := "https://www.youtube.com/watch?v=" + testVideoID

	err := env.runner.Run(context.Background(), url, RunOptions{})
	require.NoError(t, err)

	// The oversized candidate is rejected during analysis and absent from
	// every downstream artifact.
	var analysis types.Analysis
	require.NoError(t, readJSON(env.layout.Analysis(testVideoID), &analysis))
	assert.Equal(t, 5, analysis.Stats.TotalProposed)
	assert.Equal(t, 4, analysis.Stats.Selected)
	require.Len(t, analysis.Cuts, 4)
	for _, c := range analysis.Cuts {
		assert.NotEqual(t, "oversized", c.Title)
	}
	assert.Contains(t, env.logText(), "outside")

	// Exactly 4 clips and 4 shorts.
	for i := 0; i < 4; i++ {
		assert.FileExists(t, env.layout.Clip(testVideoID, i))
		assert.FileExists(t, env.layout.Short(testVideoID, i))
	}
	assert.NoFileExists(t, env.layout.Clip(testVideoID, 4))
	assert.Len(t, env.media.cutCalls, 4)
	assert.Len(t, env.media.exportCalls, 4)

	// Cuts are ordered by score descending in the artifact.
	for i := 1; i < len(analysis.Cuts); i++ {
		assert.GreaterOrEqual(t, analysis.Cuts[i-1].Score, analysis.Cuts[i].Score)
	}
}

func TestRun_ResumeSkipsCompletedStages(t *testing.T) {
	env := newTestEnv(t, proposedFiveCuts())
	url := "https://www.youtube.com/watch?v=" + testVideoID

	require.NoError(t, env.runner.Run(context.Background(), url, RunOptions{}))
	firstSelectCalls := env.selector.called

	require.NoError(t, env.runner.Run(context.Background(), url, RunOptions{Resume: true}))
	assert.Equal(t, 1, env.download.calls, "download should not repeat")
	assert.Equal(t, firstSelectCalls, env.selector.called, "analyze should not repeat")
}

func TestCut_PartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t, []types.Cut{
		{Start: 10, End: 40, Score: 9},
		{Start: 100, End: 160, Score: 8},
		{Start: 200, End: 260, Score: 7},
	})
	ctx := context.Background()

	require.NoError(t, (&fakeDownloader{}).Download(ctx, "", env.layout.RawVideo(testVideoID)))
	require.NoError(t, env.runner.Transcribe(ctx, testVideoID, ""))
	require.NoError(t, env.runner.Analyze(ctx, testVideoID))

	// Segment 01 fails; siblings must proceed.
	env.media.failCutSub = "_cut_01"
	require.NoError(t, env.runner.Cut(ctx, testVideoID, false))

	cut, err := env.states.ListByStatus(ctx, testVideoID, state.StatusCut)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, cut)
	failed, err := env.states.ListByStatus(ctx, testVideoID, state.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, failed)

	// The exporter runs only over the segments that reached cut state.
	require.NoError(t, env.runner.Export(ctx, testVideoID))
	assert.Len(t, env.media.exportCalls, 2)
	assert.FileExists(t, env.layout.Short(testVideoID, 0))
	assert.NoFileExists(t, env.layout.Short(testVideoID, 1))
	assert.FileExists(t, env.layout.Short(testVideoID, 2))
}

func TestCut_IdempotentSkipUnlessForced(t *testing.T) {
	env := newTestEnv(t, []types.Cut{{Start: 10, End: 40, Score: 9}})
	ctx := context.Background()

	require.NoError(t, (&fakeDownloader{}).Download(ctx, "", env.layout.RawVideo(testVideoID)))
	require.NoError(t, env.runner.Transcribe(ctx, testVideoID, ""))
	require.NoError(t, env.runner.Analyze(ctx, testVideoID))

	require.NoError(t, env.runner.Cut(ctx, testVideoID, false))
	require.Len(t, env.media.cutCalls, 1)

	// Re-run without force: no new transcoder invocation, no error.
	require.NoError(t, env.runner.Cut(ctx, testVideoID, false))
	assert.Len(t, env.media.cutCalls, 1)

	// Force re-cuts the segment.
	require.NoError(t, env.runner.Cut(ctx, testVideoID, true))
	assert.Len(t, env.media.cutCalls, 2)
}

func TestCut_OutOfRangeWindowFailsSegmentOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, (&fakeDownloader{}).Download(ctx, "", env.layout.RawVideo(testVideoID)))
	// A stale analysis pointing past the probed source duration.
	analysis := types.Analysis{
		VideoID: testVideoID,
		Cuts: []types.Cut{
			{Start: 10, End: 40, Score: 9},
			{Start: 550, End: 700, Score: 9}, // beyond the 600 s source
		},
	}
	require.NoError(t, writeJSON(env.layout.Analysis(testVideoID), analysis))

	require.NoError(t, env.runner.Cut(ctx, testVideoID, false))
	assert.Len(t, env.media.cutCalls, 1)

	failed, err := env.states.ListByStatus(ctx, testVideoID, state.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, failed)
}

func TestAnalyze_MissingAPIKeyFailsBeforeAnyCall(t *testing.T) {
	env := newTestEnv(t, proposedFiveCuts())
	ctx := context.Background()

	require.NoError(t, (&fakeDownloader{}).Download(ctx, "", env.layout.RawVideo(testVideoID)))
	require.NoError(t, env.runner.Transcribe(ctx, testVideoID, ""))

	env.runner.cfg.APIKey = ""
	err := env.runner.Analyze(ctx, testVideoID)
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Zero(t, env.selector.called, "selector must not be invoked without a credential")
}

func TestExport_NothingCutIsAnError(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.runner.Export(context.Background(), testVideoID)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageExport, serr.Stage)
}

func TestStageError_Message(t *testing.T) {
	err := stageErrf(StageCut, testVideoID, "ffmpeg exit status 1")
	assert.Equal(t, "cut abc123def45: ffmpeg exit status 1", err.Error())

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, testVideoID, serr.VideoID)
}

func TestTranscribe_WritesValidArtifact(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, (&fakeDownloader{}).Download(ctx, "", env.layout.RawVideo(testVideoID)))
	require.NoError(t, env.runner.Transcribe(ctx, testVideoID, "en"))

	var tr types.Transcript
	require.NoError(t, readJSON(env.layout.Transcript(testVideoID), &tr))
	assert.Equal(t, testVideoID, tr.VideoID)
	assert.Equal(t, 600.0, tr.Duration)
	assert.Len(t, tr.Utterances, 40)
	assert.NoError(t, tr.Validate())

	// The intermediate WAV is cleaned up.
	assert.NoFileExists(t, env.layout.Audio(testVideoID))
}

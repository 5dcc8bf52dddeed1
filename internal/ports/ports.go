package ports

import (
	"context"

	"github.com/shortpipe/shortpipe/internal/domain/cuts"
	"github.com/shortpipe/shortpipe/internal/types"
)

// Downloader fetches a source video to a local file.
type Downloader interface {
	// Download fetches url and writes the media file to outPath.
	Download(ctx context.Context, url, outPath string) error
}

// ASR turns a mono 16 kHz WAV file into a time-aligned transcript. The
// underlying model holds an exclusive accelerator, so callers must not run
// two transcriptions concurrently.
type ASR interface {
	Transcribe(ctx context.Context, wavPath, language string) (types.Transcript, error)
}

// Selector asks the hosted text-generation service for cut proposals. The
// returned cuts are structurally well-formed but not yet validated against
// the source duration or bounds; that is the caller's job.
type Selector interface {
	Select(ctx context.Context, tr types.Transcript, b cuts.Bounds) ([]types.Cut, error)
}

// MediaTool wraps the external transcoder.
type MediaTool interface {
	ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error
	Cut(ctx context.Context, inPath, outPath string, start, end float64, streamCopy bool) error
	ExportVertical(ctx context.Context, inPath, outPath string, p ExportParams) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ProbeDimensions(ctx context.Context, path string) (w, h int, err error)
}

// ExportParams are the target format parameters for the export stage.
type ExportParams struct {
	Width        int
	Height       int
	VideoCodec   string
	Preset       string
	CRF          int
	VideoBitrate string
	FPS          int
	AudioCodec   string
	AudioBitrate string
	// ScaleMode is "crop", "pad" or "none". With "none" a source whose
	// aspect ratio differs from the target is rejected instead of cropped.
	ScaleMode string
}

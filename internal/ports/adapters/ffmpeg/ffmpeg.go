// Package ffmpeg wraps ffmpeg/ffprobe invocations for audio extraction,
// cutting and vertical export.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shortpipe/shortpipe/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

var _ ports.MediaTool = (*Adapter)(nil)

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error {
	if err := os.MkdirAll(filepath.Dir(outWav), 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// Cut writes the [start, end) window of inPath to outPath. With streamCopy
// the source streams are copied without re-encoding, which is fast but snaps
// to keyframes; otherwise the window is re-encoded for frame accuracy.
func (a *Adapter) Cut(ctx context.Context, inPath, outPath string, start, end float64, streamCopy bool) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	duration := end - start
	if duration <= 0 {
		return fmt.Errorf("invalid cut window [%.3f, %.3f)", start, end)
	}

	args := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", inPath,
		"-t", fmtSeconds(duration),
	}
	if streamCopy {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "1")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-c:a", "aac",
			"-b:a", "192k",
		)
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut: %w\n%s", err, string(b))
	}
	return nil
}

// ExportVertical re-encodes a clip to the target resolution. With scale mode
// "none" the source aspect ratio must already match the target; a mismatch is
// an error rather than a silent crop.
func (a *Adapter) ExportVertical(ctx context.Context, inPath, outPath string, p ports.ExportParams) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	if p.ScaleMode == "none" {
		w, h, err := a.ProbeDimensions(ctx, inPath)
		if err != nil {
			return err
		}
		if w*p.Height != h*p.Width {
			return fmt.Errorf("source %dx%d does not match target aspect %dx%d and scale_mode is none",
				w, h, p.Width, p.Height)
		}
	}

	args := []string{
		"-y",
		"-i", inPath,
		"-vf", ScaleFilter(p.Width, p.Height, p.ScaleMode),
		"-c:v", p.VideoCodec,
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-b:v", p.VideoBitrate,
		"-r", strconv.Itoa(p.FPS),
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-movflags", "+faststart",
		outPath,
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg export: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func (a *Adapter) ProbeDimensions(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions: %w\n%s", err, string(b))
	}
	var w, h int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(b)), "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("parse dimensions %q: %w", strings.TrimSpace(string(b)), err)
	}
	return w, h, nil
}

// ScaleFilter builds the -vf expression for the target frame. "crop" scales
// up to cover and crops the overflow; "pad" scales down to fit and letterboxes
// the rest; "none" assumes the aspect already matches and only scales.
func ScaleFilter(w, h int, mode string) string {
	switch mode {
	case "pad":
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
	case "none":
		return fmt.Sprintf("scale=%d:%d", w, h)
	default:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", w, h, w, h)
	}
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

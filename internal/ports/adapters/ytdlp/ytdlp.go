// Package ytdlp shells out to yt-dlp for video acquisition.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shortpipe/shortpipe/internal/ports"
)

type Adapter struct {
	bin    string
	format string
}

var _ ports.Downloader = (*Adapter)(nil)

func New(binPath, format string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath, format: format}
}

// Download fetches url into outPath. The output template is derived from
// outPath so yt-dlp writes exactly where the artifact layout expects; the
// container is forced to mp4 so downstream ffmpeg invocations see a uniform
// input. Transient network failures are surfaced, not retried.
func (a *Adapter) Download(ctx context.Context, url, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	template := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".%(ext)s"
	args := []string{
		"-o", template,
		"--merge-output-format", "mp4",
		"--no-playlist",
	}
	if a.format != "" {
		args = append(args, "-f", a.format)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp: %w\n%s", err, tail(string(b), 1000))
	}

	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("yt-dlp finished but %s is missing: %w", outPath, err)
	}
	return nil
}

// tail keeps the last n bytes of tool output; yt-dlp puts the actual error at
// the end of a long progress log.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Layout maps a video id (and, for per-segment artifacts, a zero-based
// segment index) to fixed paths under the data root. The path convention is
// the inter-stage protocol: every stage locates its input purely by these
// paths, so they must stay stable.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	if root == "" {
		root = "data"
	}
	return Layout{Root: root}
}

func (l Layout) RawDir() string        { return filepath.Join(l.Root, "raw") }
func (l Layout) TranscriptDir() string { return filepath.Join(l.Root, "transcripts") }
func (l Layout) AnalysisDir() string   { return filepath.Join(l.Root, "analysis") }
func (l Layout) OutputDir() string     { return filepath.Join(l.Root, "output") }
func (l Layout) ShortsDir() string     { return filepath.Join(l.Root, "output", "shorts") }
func (l Layout) TempDir() string       { return filepath.Join(l.Root, "temp") }

func (l Layout) RawVideo(videoID string) string {
	return filepath.Join(l.RawDir(), videoID+".mp4")
}

func (l Layout) Transcript(videoID string) string {
	return filepath.Join(l.TranscriptDir(), videoID+"_transcript.json")
}

func (l Layout) Analysis(videoID string) string {
	return filepath.Join(l.AnalysisDir(), videoID+"_analysis.json")
}

func (l Layout) Clip(videoID string, index int) string {
	return filepath.Join(l.OutputDir(), fmt.Sprintf("%s_cut_%02d.mp4", videoID, index))
}

func (l Layout) Short(videoID string, index int) string {
	return filepath.Join(l.ShortsDir(), fmt.Sprintf("%s_cut_%02d_short.mp4", videoID, index))
}

func (l Layout) StateDB() string {
	return filepath.Join(l.Root, "state.db")
}

func (l Layout) Audio(videoID string) string {
	return filepath.Join(l.TempDir(), videoID+".wav")
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`^([0-9A-Za-z_-]{11})$`),
}

// ExtractVideoID derives the stable artifact key from a YouTube URL or a bare
// 11-character id.
func ExtractVideoID(url string) (string, error) {
	s := strings.TrimSpace(url)
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no video id found in %q", url)
}

// LatestByPattern returns the most recently modified file matching the glob
// pattern. Single-stage invocations use this to locate the newest upstream
// artifact when no video id is given.
func LatestByPattern(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	var latest string
	var latestMod int64
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		if mod := fi.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = m
			latestMod = mod
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no files match %s", pattern)
	}
	return latest, nil
}

// VideoIDFromArtifact recovers the video id from an artifact file name by
// stripping the known stage suffixes.
func VideoIDFromArtifact(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, suffix := range []string{"_transcript", "_analysis"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

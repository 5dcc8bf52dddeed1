package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error is a configuration failure: a missing or out-of-range field, or a
// missing credential. It is always fatal and reported before any stage work
// starts.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

func errField(field, msg string) error { return &Error{Field: field, Msg: msg} }

// Config is the structured settings document. Loaded once at process start
// and passed explicitly to every stage; there is no ambient global.
type Config struct {
	Paths    Paths    `yaml:"paths"`
	Download Download `yaml:"download"`
	Whisper  Whisper  `yaml:"whisper"`
	Claude   Claude   `yaml:"claude"`
	Video    Video    `yaml:"video"`
	Cuts     Cuts     `yaml:"cuts"`

	// APIKey is read from the environment, never from the settings file.
	APIKey string `yaml:"-"`
}

type Paths struct {
	Data    string `yaml:"data"`
	Prompts string `yaml:"prompts"`
	Models  string `yaml:"models"`
}

type Download struct {
	Binary string `yaml:"binary"`
	Format string `yaml:"format"`
}

type Whisper struct {
	Binary    string `yaml:"binary"`
	Model     string `yaml:"model"`
	Language  string `yaml:"language"`
	BeamSize  int    `yaml:"beam_size"`
	Threads   int    `yaml:"threads"`
	VADFilter bool   `yaml:"vad_filter"`
}

type Claude struct {
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	MaxInputChars int     `yaml:"max_input_chars"`
	BaseURL       string  `yaml:"base_url"`
}

type Video struct {
	Resolution   string `yaml:"resolution"`
	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	VideoBitrate string `yaml:"video_bitrate"`
	FPS          int    `yaml:"fps"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	ScaleMode    string `yaml:"scale_mode"`
	StreamCopy   bool   `yaml:"stream_copy"`
}

type Cuts struct {
	MinDuration float64 `yaml:"min_duration"`
	MaxDuration float64 `yaml:"max_duration"`
	MinScore    float64 `yaml:"min_score"`
	MaxCuts     int     `yaml:"max_cuts"`
}

// Load reads the YAML settings file, applies defaults for optional fields and
// validates the rest. The ANTHROPIC_API_KEY environment variable is captured
// here but only enforced by RequireAPIKey, since the download/cut/export
// stages work without it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("parse %s: %v", path, err)}
	}
	cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Whisper.Model == "" {
		return errField("whisper.model", "is required")
	}
	if c.Claude.Model == "" {
		return errField("claude.model", "is required")
	}
	if c.Claude.MaxTokens <= 0 {
		return errField("claude.max_tokens", "must be > 0")
	}
	if c.Claude.Temperature < 0 || c.Claude.Temperature > 1 {
		return errField("claude.temperature", "must be in [0,1]")
	}
	if err := validateBaseURL(c.Claude.BaseURL); err != nil {
		return err
	}
	if _, _, err := ParseResolution(c.Video.Resolution); err != nil {
		return errField("video.resolution", err.Error())
	}
	switch c.Video.ScaleMode {
	case "crop", "pad", "none":
	default:
		return errField("video.scale_mode", fmt.Sprintf("unknown mode %q (crop, pad or none)", c.Video.ScaleMode))
	}
	if c.Cuts.MinDuration <= 0 {
		return errField("cuts.min_duration", "must be > 0")
	}
	if c.Cuts.MaxDuration <= c.Cuts.MinDuration {
		return errField("cuts.max_duration", "must be > cuts.min_duration")
	}
	if c.Cuts.MinScore < 0 || c.Cuts.MinScore > 10 {
		return errField("cuts.min_score", "must be in [0,10]")
	}
	if c.Cuts.MaxCuts <= 0 {
		return errField("cuts.max_cuts", "must be > 0")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Paths.Data == "" {
		c.Paths.Data = "data"
	}
	if c.Paths.Prompts == "" {
		c.Paths.Prompts = "prompts"
	}
	if c.Download.Binary == "" {
		c.Download.Binary = "yt-dlp"
	}
	if c.Download.Format == "" {
		c.Download.Format = "bestvideo[height<=1080]+bestaudio/best"
	}
	if c.Whisper.Binary == "" {
		c.Whisper.Binary = "whisper-cli"
	}
	if c.Whisper.BeamSize == 0 {
		c.Whisper.BeamSize = 5
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}
	if c.Claude.MaxInputChars == 0 {
		c.Claude.MaxInputChars = 120_000
	}
	if c.Claude.BaseURL == "" {
		c.Claude.BaseURL = "https://api.anthropic.com"
	}
	if c.Video.Resolution == "" {
		c.Video.Resolution = "1080x1920"
	}
	if c.Video.VideoCodec == "" {
		c.Video.VideoCodec = "libx264"
	}
	if c.Video.Preset == "" {
		c.Video.Preset = "fast"
	}
	if c.Video.CRF == 0 {
		c.Video.CRF = 23
	}
	if c.Video.VideoBitrate == "" {
		c.Video.VideoBitrate = "5M"
	}
	if c.Video.FPS == 0 {
		c.Video.FPS = 30
	}
	if c.Video.AudioCodec == "" {
		c.Video.AudioCodec = "aac"
	}
	if c.Video.AudioBitrate == "" {
		c.Video.AudioBitrate = "192k"
	}
	if c.Video.ScaleMode == "" {
		c.Video.ScaleMode = "crop"
	}
}

// RequireAPIKey fails fast when the text-generation credential is missing.
// Called before the analyze stage builds its client, so no network call is
// ever attempted without a key.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errField("ANTHROPIC_API_KEY", "environment variable is not set")
	}
	return nil
}

// ParseResolution splits "1080x1920" into width and height.
func ParseResolution(s string) (w, h int, err error) {
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("want WIDTHxHEIGHT, got %q", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("dimensions must be positive, got %q", s)
	}
	return w, h, nil
}

var allowedLLMHosts = map[string]struct{}{
	"api.anthropic.com": {},
	"localhost":         {},
	"127.0.0.1":         {},
}

func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return errField("claude.base_url", err.Error())
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return errField("claude.base_url", "absolute URL with host is required")
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := allowedLLMHosts[host]; !ok {
		return errField("claude.base_url", fmt.Sprintf("host %q is not allowed", host))
	}
	if host == "api.anthropic.com" && u.Scheme != "https" {
		return errField("claude.base_url", "https is required")
	}
	return nil
}

// Package anthropic calls the Anthropic Messages API to pick cut-worthy
// segments from a transcript.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shortpipe/shortpipe/internal/domain/cuts"
	"github.com/shortpipe/shortpipe/internal/ports"
	"github.com/shortpipe/shortpipe/internal/types"
)

var _ ports.Selector = (*Adapter)(nil)

const (
	apiVersion     = "2023-06-01"
	requestTimeout = 120 * time.Second
)

type Adapter struct {
	key         string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	maxInput    int
	system      string
	client      *http.Client
	logf        func(format string, args ...any)
}

type Options struct {
	Model         string
	BaseURL       string
	MaxTokens     int
	Temperature   float64
	MaxInputChars int
	// SystemPrompt overrides the built-in analysis prompt.
	SystemPrompt string
	Logf         func(format string, args ...any)
}

func New(apiKey string, opts Options) *Adapter {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	system := opts.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Adapter{
		key:         apiKey,
		model:       opts.Model,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		maxInput:    opts.MaxInputChars,
		system:      system,
		client:      &http.Client{Timeout: 5 * time.Minute},
		logf:        logf,
	}
}

const defaultSystemPrompt = `You analyze a video transcript and identify the moments most likely to work as standalone vertical shorts.

For each cut provide start and end timestamps in seconds, a retention score from 0 to 10, a short title and the reason it would hold attention. Cuts must be self-contained and require no prior context.

Return ONLY valid JSON in this shape, no markdown and no commentary:
{"cuts": [{"start": 0.0, "end": 30.0, "viral_score": 8.5, "title": "...", "reason": "...", "content_type": "..."}]}`

// Select serializes the transcript into a prompt, calls the service and
// parses the structured reply. A cut with missing or inverted timestamps is
// dropped with a warning instead of failing the batch; everything else
// (transport errors, auth failures, unparseable replies) is fatal.
func (a *Adapter) Select(ctx context.Context, tr types.Transcript, b cuts.Bounds) ([]types.Cut, error) {
	user := buildUserMessage(tr, b, a.maxInput)

	payload := map[string]any{
		"model":       a.model,
		"max_tokens":  a.maxTokens,
		"temperature": a.temperature,
		"system":      a.system,
		"messages": []map[string]any{
			{"role": "user", "content": user},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", a.key)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("anthropic timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("anthropic status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, c := range raw.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return a.parseCuts(text.String())
}

// parseCuts extracts the JSON payload from the model reply. The service may
// return a bare array or an object with a "cuts" key, possibly wrapped in
// markdown fences.
func (a *Adapter) parseCuts(content string) ([]types.Cut, error) {
	clean, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var proposed []rawCut
	if strings.HasPrefix(clean, "[") {
		if err := json.Unmarshal([]byte(clean), &proposed); err != nil {
			return nil, fmt.Errorf("parse cuts array: %w", err)
		}
	} else {
		var obj struct {
			Cuts []rawCut `json:"cuts"`
		}
		if err := json.Unmarshal([]byte(clean), &obj); err != nil {
			return nil, fmt.Errorf("parse cuts object: %w", err)
		}
		proposed = obj.Cuts
	}

	out := make([]types.Cut, 0, len(proposed))
	for _, rc := range proposed {
		if rc.Start == nil || rc.End == nil {
			a.logf("warn: dropping cut without timestamps: %s", truncate(rc.Title, 60))
			continue
		}
		if *rc.End <= *rc.Start {
			a.logf("warn: dropping malformed cut %.1fs-%.1fs", *rc.Start, *rc.End)
			continue
		}
		out = append(out, types.Cut{
			Start:       *rc.Start,
			End:         *rc.End,
			Duration:    *rc.End - *rc.Start,
			Score:       rc.score(),
			Title:       strings.TrimSpace(rc.Title),
			Reason:      strings.TrimSpace(firstNonEmpty(rc.Reason, rc.Rationale)),
			ContentType: rc.ContentType,
		})
	}
	return out, nil
}

// rawCut tolerates the field-name drift the model exhibits between runs:
// viral_score vs retention_score, reason vs rationale.
type rawCut struct {
	Start          *float64 `json:"start"`
	End            *float64 `json:"end"`
	ViralScore     *float64 `json:"viral_score"`
	RetentionScore *float64 `json:"retention_score"`
	Title          string   `json:"title"`
	Reason         string   `json:"reason"`
	Rationale      string   `json:"rationale"`
	ContentType    string   `json:"content_type"`
}

func (rc rawCut) score() float64 {
	if rc.ViralScore != nil {
		return *rc.ViralScore
	}
	if rc.RetentionScore != nil {
		return *rc.RetentionScore
	}
	return 0
}

func buildUserMessage(tr types.Transcript, b cuts.Bounds, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video ID: %s\n", tr.VideoID)
	fmt.Fprintf(&sb, "Total duration: %.1fs\n", tr.Duration)
	fmt.Fprintf(&sb, "Language: %s\n\n", tr.Language)
	fmt.Fprintf(&sb, "CONSTRAINTS:\n")
	fmt.Fprintf(&sb, "- minimum duration: %.0fs\n", b.MinDuration)
	fmt.Fprintf(&sb, "- maximum duration: %.0fs\n", b.MaxDuration)
	fmt.Fprintf(&sb, "- minimum score: %.1f\n", b.MinScore)
	fmt.Fprintf(&sb, "- at most %d cuts\n\n", b.MaxCuts)
	sb.WriteString("TRANSCRIPT:\n")

	budget := maxChars - sb.Len()
	truncated := false
	for _, u := range tr.Utterances {
		line := fmt.Sprintf("[%.1fs - %.1fs]: %s\n", u.Start, u.End, u.Text)
		if budget-len(line) < 0 {
			truncated = true
			break
		}
		sb.WriteString(line)
		budget -= len(line)
	}
	if truncated {
		sb.WriteString("\n(transcript truncated to fit the input budget)\n")
	}
	return sb.String()
}

func extractJSON(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("empty model response")
	}
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Take whichever JSON value opens first; a bare array must not be
	// mistaken for its first element.
	objStart := strings.Index(t, "{")
	arrStart := strings.Index(t, "[")
	pair := [2]string{"{", "}"}
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		pair = [2]string{"[", "]"}
	}
	start := strings.Index(t, pair[0])
	end := strings.LastIndex(t, pair[1])
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON found in model response: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;"]+)`)

func redactSecrets(s, apiKey string) string {
	if apiKey != "" {
		s = strings.ReplaceAll(s, apiKey, "[REDACTED]")
	}
	return apiKeyFieldRE.ReplaceAllString(s, "${1}[REDACTED]")
}

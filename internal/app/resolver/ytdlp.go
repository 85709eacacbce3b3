package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// YtdlpProviderConfig configures the yt-dlp provider.
type YtdlpProviderConfig struct {
	Binary     string `yaml:"binary" mapstructure:"binary" default:"yt-dlp"`
	Format     string `yaml:"format" mapstructure:"format" default:"bestaudio/best"`
	TimeoutSec int    `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"20" validate:"gte=1"`
}

// YtdlpProvider resolves page URLs and search queries to stream URLs
// by shelling out to yt-dlp.
type YtdlpProvider struct {
	config *YtdlpProviderConfig
}

// ytdlpEntry is the subset of yt-dlp's JSON output we consume.
type ytdlpEntry struct {
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Thumbnail  string       `json:"thumbnail"`
	Duration   float64      `json:"duration"`
	WebpageURL string       `json:"webpage_url"`
	Entries    []ytdlpEntry `json:"entries"`
}

// NewYtdlpProvider creates a YtdlpProvider from provider settings.
func NewYtdlpProvider(settings map[string]any) (*YtdlpProvider, error) {
	var cfg YtdlpProviderConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode ytdlp provider settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid ytdlp provider settings")
	}
	return &YtdlpProvider{config: &cfg}, nil
}

// Name returns the provider name.
func (p *YtdlpProvider) Name() string {
	return "ytdlp"
}

// Resolve extracts a playable stream URL for the reference. A plain
// query (no scheme) is treated as a single-result search.
func (p *YtdlpProvider) Resolve(ctx context.Context, ref string) (*Track, error) {
	target := ref
	if !looksLikeURL(ref) {
		target = fmt.Sprintf("ytsearch1:%s", ref)
	}

	entries, err := p.extract(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Wrapf(ErrResolve, "no result for %q", ref)
	}

	t := entryToTrack(entries[0], ref)
	return &t, nil
}

// Search runs a bounded ytsearch and returns the candidates.
func (p *YtdlpProvider) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 5
	}

	entries, err := p.extract(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, entryToTrack(e, e.WebpageURL))
	}
	return tracks, nil
}

// extract invokes yt-dlp once and parses its JSON dump. No retries:
// a failed extraction is the engine's signal to skip the track.
func (p *YtdlpProvider) extract(ctx context.Context, target string) ([]ytdlpEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.config.TimeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.config.Binary,
		"-J",
		"--no-playlist",
		"-f", p.config.Format,
	)
	cmd.Args = append(cmd.Args, target)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(ErrResolve, "yt-dlp failed: %v: %s", err, firstLine(stderr.String()))
	}

	var root ytdlpEntry
	if err := json.Unmarshal(stdout.Bytes(), &root); err != nil {
		return nil, errors.Wrapf(ErrResolve, "unparseable yt-dlp output: %v", err)
	}

	if len(root.Entries) > 0 {
		return root.Entries, nil
	}
	return []ytdlpEntry{root}, nil
}

func entryToTrack(e ytdlpEntry, sourceURL string) Track {
	return Track{
		StreamURL: e.URL,
		SourceURL: sourceURL,
		Title:     e.Title,
		Thumbnail: e.Thumbnail,
		Duration:  int(e.Duration),
	}
}

func looksLikeURL(ref string) bool {
	return len(ref) > 8 && (ref[:7] == "http://" || ref[:8] == "https://")
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

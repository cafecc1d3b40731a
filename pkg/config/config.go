// Package config holds the explicit runtime configuration for a
// conversion run. It is constructed once by the CLI and passed by
// pointer into every component; there is no ambient global state.
package config

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/kerbaras/folder2cbz/pkg/comic"
)

// Mode selects one of the three mutually exclusive source drivers.
type Mode string

const (
	// ModeFolder converts everything under the input dir once and exits.
	ModeFolder Mode = "folder"
	// ModeWatch polls the input dir for gate-filed units, moving
	// converted sources to finished/.
	ModeWatch Mode = "watch"
	// ModeTarGz polls the input dir for .tar.gz archives, extracting
	// and converting each one.
	ModeTarGz Mode = "targz"
)

var validPresets = map[string]bool{
	"default": true,
	"picture": true,
	"drawing": true,
	"icon":    true,
	"text":    true,
}

// Config is the full parameter set for one run.
type Config struct {
	InputDir  string
	OutputDir string

	// Transcoding parameters.
	Quality       int          // CRF (avif) or quality (webp)
	MaxResolution int          // pixel budget per page, width*height
	Format        comic.Format // avif or webp
	Preset        string       // libwebp preset, ignored for avif
	ColorDepth    int          // 8, 10 or 12; selects the avif pixel format

	// Batch behavior.
	MaxWorkers     int
	OrganizeByDate bool

	// Watch mode: gate filename that marks a unit ready for conversion.
	// Empty leaves watch mode disabled.
	GalleryInfoName string

	// TarGz mode.
	TarGz             bool
	DeleteSourceTarGz bool

	// PublishDir receives finished archives in targz mode and mirrors
	// them in watch mode when the output path carries the deploy marker.
	PublishDir string

	Env Env
}

// Env is the environment-variable block: library server credentials for
// the rescan trigger plus the transcoder thread override. The Komga
// variables are validated by the notification client, not here, so runs
// that never notify do not need them.
type Env struct {
	KomgaBaseURL   string `env:"KOMGA_BASE_URL"`
	KomgaLibraryID string `env:"KOMGA_LIBRARY_ID"`
	KomgaAPIKey    string `env:"KOMGA_API_KEY"`

	// FFmpegThreads caps the transcoder's internal thread count so it
	// does not oversubscribe against the batch worker pool.
	FFmpegThreads int `env:"FFMPEG_THREADS" envDefault:"1"`
}

// Default returns a Config with the original defaults: WEBP at quality
// 80, a 4K pixel budget, drawing preset, one worker per CPU.
func Default() Config {
	return Config{
		Quality:       80,
		MaxResolution: 3840 * 2160,
		Format:        comic.FormatWEBP,
		Preset:        "drawing",
		ColorDepth:    8,
		MaxWorkers:    runtime.NumCPU(),
	}
}

// LoadEnv parses the environment block into cfg.
func (c *Config) LoadEnv() error {
	if err := env.Parse(&c.Env); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks enum fields and mode exclusivity.
func (c *Config) Validate() error {
	if c.InputDir == "" || c.OutputDir == "" {
		return fmt.Errorf("input and output directories are required")
	}
	if c.Format != comic.FormatAVIF && c.Format != comic.FormatWEBP {
		return fmt.Errorf("unsupported format %q (want avif or webp)", c.Format)
	}
	if !validPresets[c.Preset] {
		return fmt.Errorf("unsupported preset %q", c.Preset)
	}
	switch c.ColorDepth {
	case 8, 10, 12:
	default:
		return fmt.Errorf("unsupported color depth %d (want 8, 10 or 12)", c.ColorDepth)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("quality %d out of range", c.Quality)
	}
	if c.MaxResolution <= 0 {
		return fmt.Errorf("max resolution must be positive")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}
	if c.TarGz && c.GalleryInfoName != "" {
		return fmt.Errorf("--targz and --gallery_info select different run modes and cannot be combined")
	}
	return nil
}

// Mode derives the run mode from the mode-selecting options.
func (c *Config) Mode() Mode {
	switch {
	case c.TarGz:
		return ModeTarGz
	case c.GalleryInfoName != "":
		return ModeWatch
	default:
		return ModeFolder
	}
}

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerbaras/folder2cbz/pkg/app"
	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/config"
	"github.com/kerbaras/folder2cbz/pkg/komga"
	"github.com/kerbaras/folder2cbz/pkg/services"
	"github.com/kerbaras/folder2cbz/pkg/tools"
	"github.com/kerbaras/folder2cbz/pkg/watch"
	"github.com/mattn/go-isatty"
	"github.com/robinjoseph08/golib/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "folder2cbz input_dir output_dir",
	Short: "Convert comic folders to AVIF/WebP CBZ archives",
	Long: "Convert directories of comic page images into CBZ archives, " +
		"re-encoding pages through ffmpeg and embedding ComicInfo.xml metadata. " +
		"Can also watch a source tree for gate-filed folders or tar.gz drops.",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	d := config.Default()
	f.Int("quality", d.Quality, "CRF/quality value for AVIF/WebP conversion")
	f.Int("max_resolution", d.MaxResolution, "maximum pixel count (width*height) per page")
	f.String("format", string(d.Format), "output image format: avif or webp")
	f.String("preset", d.Preset, "libwebp preset: default, picture, drawing, icon or text")
	f.Int("max_workers", d.MaxWorkers, "parallel unit conversions")
	f.String("gallery_info", "", "gate filename enabling watch mode (e.g. galleryinfo.txt)")
	f.Int("color_depth", d.ColorDepth, "AVIF color depth: 8, 10 or 12")
	f.Bool("organize_by_date", false, "nest archives under YYYY/MM by unit date")
	f.Bool("targz", false, "poll the input dir for .tar.gz archives instead of folders")
	f.Bool("delete_source_targz", false, "delete tar.gz inputs after successful conversion")
	f.String("publish_dir", "", "publication directory mirrored to in watch mode")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.InputDir = args[0]
	cfg.OutputDir = args[1]

	f := cmd.Flags()
	cfg.Quality, _ = f.GetInt("quality")
	cfg.MaxResolution, _ = f.GetInt("max_resolution")
	format, _ := f.GetString("format")
	cfg.Format = comic.Format(format)
	cfg.Preset, _ = f.GetString("preset")
	cfg.MaxWorkers, _ = f.GetInt("max_workers")
	cfg.GalleryInfoName, _ = f.GetString("gallery_info")
	cfg.ColorDepth, _ = f.GetInt("color_depth")
	cfg.OrganizeByDate, _ = f.GetBool("organize_by_date")
	cfg.TarGz, _ = f.GetBool("targz")
	cfg.DeleteSourceTarGz, _ = f.GetBool("delete_source_targz")
	cfg.PublishDir, _ = f.GetString("publish_dir")

	if err := cfg.LoadEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return err
	}

	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	ts := tools.NewToolset(cfg.Env.FFmpegThreads)
	sched := services.NewScheduler(services.NewConverter(ts), cfg.MaxWorkers)
	defer sched.Close()

	w := watch.New(&cfg, sched, buildNotifier(&cfg, log))

	switch cfg.Mode() {
	case config.ModeWatch:
		return ignoreCancel(w.RunWatch(ctx))
	case config.ModeTarGz:
		return ignoreCancel(w.RunTarGz(ctx, ts.Extract))
	default:
		return runFolder(ctx, w, sched, log)
	}
}

// runFolder converts the tree once, behind the interactive progress
// display when stdout is a terminal.
func runFolder(ctx context.Context, w *watch.Watcher, sched *services.Scheduler, log logger.Logger) error {
	var stats services.BatchStats
	if isatty.IsTerminal(os.Stdout.Fd()) {
		var err error
		stats, err = app.RunBatch(ctx, w, sched)
		if err != nil {
			return err
		}
	} else {
		stats = w.RunOnce(ctx)
	}

	log.Info("batch finished", logger.Data{
		"total":     stats.Total,
		"converted": stats.Converted,
		"failed":    stats.Failed,
	})
	return nil
}

// buildNotifier wires the Komga rescan client when its environment is
// configured. A missing configuration only disables the notification
// feature; it never aborts conversions.
func buildNotifier(cfg *config.Config, log logger.Logger) watch.Notifier {
	if cfg.Mode() == config.ModeFolder {
		return nil
	}
	client, err := komga.NewClient(cfg.Env.KomgaBaseURL, cfg.Env.KomgaLibraryID, cfg.Env.KomgaAPIKey)
	if err != nil {
		log.Err(err).Warn("library rescan notifications disabled")
		return nil
	}
	return client
}

// ignoreCancel maps a context-cancel shutdown to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"trackforge/cache"
	"trackforge/config"
	"trackforge/logger"
	"trackforge/model"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Preview the rendered site locally",
	Long:         `Serves the output directory over HTTP. With --watch, changes under the tracks directory trigger an incremental rebuild and connected browsers reload.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := newLivereloadHub()

		r := mux.NewRouter()
		r.HandleFunc("/livereload", hub.handler)
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.OutputDir)))

		srv := &http.Server{Addr: serveAddr, Handler: r}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		if serveWatch {
			go watchAndRebuild(ctx, cfg, hub)
		}

		logger.Info("preview server listening",
			logger.String("addr", serveAddr),
			logger.String("dir", cfg.OutputDir),
			logger.Bool("watch", serveWatch))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// watchAndRebuild re-runs the pipeline when the tracks tree changes. Events
// are debounced so one saved file (editors often write several events)
// causes one rebuild.
func watchAndRebuild(ctx context.Context, cfg *config.Config, hub *livereloadHub) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watch disabled", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	addTrackDirs(watcher, cfg.TracksDir)

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	rebuild := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// New track directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watcher.Add(event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", logger.ErrorField(err))
		case <-rebuild:
			runWatchBuild(ctx, cfg)
			hub.broadcastReload()
		}
	}
}

func addTrackDirs(watcher *fsnotify.Watcher, root string) {
	if err := watcher.Add(root); err != nil {
		logger.Warn("cannot watch tracks root", logger.String("dir", root), logger.ErrorField(err))
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			watcher.Add(filepath.Join(root, entry.Name()))
		}
	}
}

// runWatchBuild performs one bounded pipeline run and logs the outcome
// instead of exiting; the server keeps running either way.
func runWatchBuild(ctx context.Context, cfg *config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	manifest := cache.Load(cfg.CacheFile)
	p, err := newPipeline(cfg, manifest)
	if err != nil {
		logger.Error("rebuild setup failed", logger.ErrorField(err))
		return
	}
	results, err := p.Run(runCtx)
	if err != nil {
		logger.Error("rebuild failed", logger.ErrorField(err))
		return
	}
	sum := model.Summarize(results)
	logger.Info("rebuild finished",
		logger.Int("published", sum.Published),
		logger.Int("skipped", sum.Skipped),
		logger.Int("failed", sum.Failed),
		logger.Int("invalid", sum.Invalid))
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild on track changes and livereload")
	rootCmd.AddCommand(serveCmd)
}

package cmd

import (
	"path/filepath"
	"time"

	"trackforge/cache"
	"trackforge/config"
	"trackforge/core/encoder"
	"trackforge/core/pipeline"
	"trackforge/core/site"
	"trackforge/core/syncer"
	"trackforge/logger"
	"trackforge/retry"
	"trackforge/storage"
)

// initLogging wires the zap logger from config. Called by every subcommand;
// the logger package makes repeat calls harmless.
func initLogging(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

// newPipeline assembles the full publish pipeline from config. When object
// storage is not configured the sync stage is left out and the build only
// encodes and renders.
func newPipeline(cfg *config.Config, manifest *cache.Manifest) (*pipeline.Pipeline, error) {
	enc := encoder.NewFFmpegEncoder(
		cfg.FFmpegPath,
		cfg.MP3Bitrate,
		cfg.MP3Quality,
		filepath.Join(cfg.WorkDir, "encoded"),
		cfg.EncodeTimeout,
		retry.Policy{Attempts: cfg.EncodeRetries, Backoff: cfg.RetryBackoff},
		manifest,
	)

	var syncStage pipeline.SyncStage
	if cfg.StorageConfigured() {
		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		syncStage = syncer.New(store, manifest,
			retry.Policy{Attempts: cfg.UploadRetries, Backoff: cfg.RetryBackoff})
	} else {
		logger.Warn("object storage not configured; audio will not be mirrored",
			logger.String("hint", "set STORAGE_ENDPOINT, STORAGE_BUCKET and STORAGE_BASE_URL"))
	}

	gen, err := site.NewGenerator(site.Options{
		TemplatesDir:    cfg.TemplatesDir,
		AssetsDir:       cfg.AssetsDir,
		SiteTitle:       cfg.SiteTitle,
		SiteDescription: cfg.SiteDescription,
		SiteAuthor:      cfg.SiteAuthor,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(cfg.TracksDir, cfg.OutputDir, cfg.Workers, manifest, enc, syncStage, gen), nil
}

// runTimeout bounds one full build in watch mode so a wedged external tool
// cannot stall rebuilds forever.
const runTimeout = 30 * time.Minute

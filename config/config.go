package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the full pipeline configuration. Every knob can be set
// through the environment (or a .env file); defaults are chosen so that
// `trackforge build` works from a checkout with only the storage
// credentials filled in.
type Config struct {
	// Source and output layout.
	TracksDir    string // one subdirectory per track: audio + metadata + cover
	OutputDir    string // rendered site root, replaced atomically on success
	TemplatesDir string // optional template override dir; embedded templates used when empty
	AssetsDir    string // static assets copied verbatim into the site
	WorkDir      string // build state: encoded artifacts and the cache manifest
	CacheFile    string // cache manifest path, WorkDir/manifest.json by default

	// Encoder settings.
	FFmpegPath    string
	MP3Bitrate    string // kbit/s, e.g. "192"
	MP3Quality    string // libmp3lame -q:a value, e.g. "2"
	EncodeTimeout time.Duration

	// Object storage (MinIO or any S3-compatible endpoint).
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
	StorageUseSSL    bool
	StorageBaseURL   string // public base URL the bucket is served from
	UploadTimeout    time.Duration

	// Concurrency and retry budgets.
	Workers       int
	EncodeRetries int
	UploadRetries int
	RetryBackoff  time.Duration

	// Site identity.
	SiteTitle       string
	SiteDescription string
	SiteAuthor      string

	// Logging.
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration or returns a
// default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8 // encoding is heavy; more workers just thrash the disk
	}
	return n
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	workDir := getEnv("WORK_DIR", ".trackforge")

	return &Config{
		TracksDir:    getEnv("TRACKS_DIR", "tracks"),
		OutputDir:    getEnv("OUTPUT_DIR", "docs"),
		TemplatesDir: getEnv("TEMPLATES_DIR", ""),
		AssetsDir:    getEnv("ASSETS_DIR", "assets"),
		WorkDir:      workDir,
		CacheFile:    getEnv("CACHE_FILE", filepath.Join(workDir, "manifest.json")),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		MP3Bitrate:    getEnv("MP3_BITRATE", "192"),
		MP3Quality:    getEnv("MP3_QUALITY", "2"),
		EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 5*time.Minute),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"), // no hardcoded default for secrets
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:    getEnvBool("STORAGE_USE_SSL", true),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", ""),
		UploadTimeout:    getEnvDuration("UPLOAD_TIMEOUT", 2*time.Minute),

		Workers:       getEnvInt("WORKERS", defaultWorkers()),
		EncodeRetries: getEnvInt("ENCODE_RETRIES", 3),
		UploadRetries: getEnvInt("UPLOAD_RETRIES", 3),
		RetryBackoff:  getEnvDuration("RETRY_BACKOFF", 2*time.Second),

		SiteTitle:       getEnv("SITE_TITLE", "My Music Portfolio"),
		SiteDescription: getEnv("SITE_DESCRIPTION", "A collection of my music tracks"),
		SiteAuthor:      getEnv("SITE_AUTHOR", "Artist"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}

// StorageConfigured reports whether enough storage settings are present to
// attempt uploads. Without them the pipeline still encodes and renders; it
// just cannot mirror audio remotely.
func (c *Config) StorageConfigured() bool {
	return c.StorageEndpoint != "" && c.StorageBucket != "" && c.StorageBaseURL != ""
}

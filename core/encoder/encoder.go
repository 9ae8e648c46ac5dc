// Package encoder derives the streaming-quality mp3 artifact for a track by
// invoking ffmpeg. Encoding is non-destructive: the source audio is read,
// never modified, and artifacts are written under the work directory.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"trackforge/cache"
	"trackforge/logger"
	"trackforge/model"
	"trackforge/retry"
)

// Artifact describes an encoded file ready for upload.
type Artifact struct {
	Path             string
	Fingerprint      cache.Fingerprint // of the encoded artifact
	AudioFingerprint cache.Fingerprint // of the source audio it came from
	Skipped          bool              // true when served from the cache without invoking ffmpeg
}

// runFunc is the exec seam; tests replace it to avoid a real ffmpeg.
type runFunc func(ctx context.Context, name string, args []string) error

// FFmpegEncoder implements the encode stage with the external ffmpeg binary.
type FFmpegEncoder struct {
	ffmpegPath string
	bitrate    string // kbit/s without suffix, e.g. "192"
	quality    string // -q:a value
	outDir     string
	timeout    time.Duration
	policy     retry.Policy
	manifest   *cache.Manifest
	run        runFunc
}

// NewFFmpegEncoder creates an encoder writing artifacts into outDir.
func NewFFmpegEncoder(ffmpegPath, bitrate, quality, outDir string, timeout time.Duration, policy retry.Policy, manifest *cache.Manifest) *FFmpegEncoder {
	e := &FFmpegEncoder{
		ffmpegPath: ffmpegPath,
		bitrate:    bitrate,
		quality:    quality,
		outDir:     outDir,
		timeout:    timeout,
		policy:     policy,
		manifest:   manifest,
	}
	e.run = e.runFFmpeg
	return e
}

// Encode produces the track's artifact. When the source audio fingerprint
// matches the cache and the previously encoded file still exists, the cached
// artifact is returned without touching ffmpeg.
func (e *FFmpegEncoder) Encode(ctx context.Context, track *model.Track) (*Artifact, error) {
	audioFP, err := cache.FileFingerprint(track.AudioPath)
	if err != nil {
		return nil, &model.TrackError{Slug: track.Slug, Op: "encode",
			Err: fmt.Errorf("fingerprinting source audio: %w", err)}
	}

	if entry, ok := e.manifest.Get(track.Slug); ok &&
		entry.AudioFingerprint == audioFP && entry.ArtifactPath != "" {
		if _, statErr := os.Stat(entry.ArtifactPath); statErr == nil {
			artifactFP, fpErr := cache.FileFingerprint(entry.ArtifactPath)
			if fpErr == nil {
				logger.Debug("encode skipped, source unchanged",
					logger.String("slug", track.Slug))
				return &Artifact{
					Path:             entry.ArtifactPath,
					Fingerprint:      artifactFP,
					AudioFingerprint: audioFP,
					Skipped:          true,
				}, nil
			}
		}
	}

	if err := os.MkdirAll(e.outDir, 0755); err != nil {
		return nil, &model.TrackError{Slug: track.Slug, Op: "encode", Err: err}
	}
	dest := filepath.Join(e.outDir, track.Slug+".mp3")

	start := time.Now()
	err = e.policy.Do(ctx, func() error {
		return e.encodeOnce(ctx, track.AudioPath, dest)
	})
	if err != nil {
		return nil, &model.TrackError{Slug: track.Slug, Op: "encode", Err: err}
	}

	artifactFP, err := cache.FileFingerprint(dest)
	if err != nil {
		return nil, &model.TrackError{Slug: track.Slug, Op: "encode",
			Err: fmt.Errorf("fingerprinting artifact: %w", err)}
	}

	e.manifest.SetEncoded(track.Slug, audioFP, dest)
	logger.Info("encoded track",
		logger.String("slug", track.Slug),
		logger.Duration("took", time.Since(start)))

	return &Artifact{
		Path:             dest,
		Fingerprint:      artifactFP,
		AudioFingerprint: audioFP,
	}, nil
}

// encodeOnce performs a single ffmpeg attempt under the configured timeout
// and classifies the outcome for the retry policy.
func (e *FFmpegEncoder) encodeOnce(parent context.Context, src, dest string) error {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	args := []string{
		"-i", src,
		"-codec:a", "libmp3lame",
		"-b:a", e.bitrate + "k",
		"-q:a", e.quality,
		"-y",
		dest,
	}

	err := e.run(ctx, e.ffmpegPath, args)
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		// A missing binary won't fix itself between attempts.
		return fmt.Errorf("ffmpeg not found at %q: %w", e.ffmpegPath, err)
	}
	if ctx.Err() == context.DeadlineExceeded {
		return model.Transient(fmt.Errorf("ffmpeg timed out after %s encoding %s", e.timeout, src))
	}
	return model.Transient(err)
}

// runFFmpeg shells out to ffmpeg with stderr captured into the error.
func (e *FFmpegEncoder) runFFmpeg(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w\nFFmpeg Error: %s", err, stderr.String())
	}
	return nil
}

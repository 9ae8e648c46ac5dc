// Package syncer mirrors a track's published files to object storage. Each
// file role (encoded stream copy, lossless source, cover image) is skipped
// or uploaded independently: idempotence is decided locally from the cached
// fingerprints before any network call is made.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"trackforge/cache"
	"trackforge/core/encoder"
	"trackforge/logger"
	"trackforge/model"
	"trackforge/retry"
)

// ObjectStore is the remote side of the sync stage. storage.MinioStore is
// the production implementation.
type ObjectStore interface {
	Put(ctx context.Context, key, path, contentType string) (string, error)
}

// Locations holds the remote URLs assigned to a track's files.
type Locations struct {
	StreamURL string
	SourceURL string
	CoverURL  string
}

// Outcome is the result of syncing one track. Uploads counts the network
// calls actually made; 0 means every role was fingerprint-skipped.
type Outcome struct {
	Locations Locations
	Uploads   int // uploads performed, 0 means everything was cached
}

// Syncer pushes track files to an ObjectStore with per-role retry.
type Syncer struct {
	store    ObjectStore
	manifest *cache.Manifest
	policy   retry.Policy
}

// New creates a sync stage.
func New(store ObjectStore, manifest *cache.Manifest, policy retry.Policy) *Syncer {
	return &Syncer{store: store, manifest: manifest, policy: policy}
}

// Sync uploads whichever of the track's files changed since the cache was
// last updated. A failure in one role does not block the others; the
// returned error joins the per-role failures while Locations still carries
// every URL that is known good.
func (s *Syncer) Sync(ctx context.Context, track *model.Track, artifact *encoder.Artifact) (Outcome, error) {
	var out Outcome
	var errs []error

	entry, _ := s.manifest.Get(track.Slug)

	// Encoded stream copy.
	if entry.StreamURL != "" && entry.ArtifactFingerprint == artifact.Fingerprint {
		out.Locations.StreamURL = entry.StreamURL
		logger.Debug("stream upload skipped", logger.String("slug", track.Slug))
	} else {
		key := track.Slug + "/" + track.Slug + ".mp3"
		url, err := s.put(ctx, key, artifact.Path, "audio/mpeg")
		if err != nil {
			errs = append(errs, &model.TrackError{Slug: track.Slug, Op: "sync:stream", Err: err})
		} else {
			out.Locations.StreamURL = url
			out.Uploads++
			s.manifest.SetStreamUploaded(track.Slug, artifact.Fingerprint, url)
		}
	}

	// Lossless source.
	if entry.SourceURL != "" && entry.SourceFingerprint == artifact.AudioFingerprint {
		out.Locations.SourceURL = entry.SourceURL
		logger.Debug("source upload skipped", logger.String("slug", track.Slug))
	} else {
		key := track.Slug + "/" + track.Slug + ".wav"
		url, err := s.put(ctx, key, track.AudioPath, "audio/wav")
		if err != nil {
			errs = append(errs, &model.TrackError{Slug: track.Slug, Op: "sync:source", Err: err})
		} else {
			out.Locations.SourceURL = url
			out.Uploads++
			s.manifest.SetSourceUploaded(track.Slug, artifact.AudioFingerprint, url)
		}
	}

	// Cover image.
	coverFP, err := cache.FileFingerprint(track.CoverPath)
	if err != nil {
		errs = append(errs, &model.TrackError{Slug: track.Slug, Op: "sync:cover",
			Err: fmt.Errorf("fingerprinting cover: %w", err)})
	} else if entry.CoverURL != "" && entry.CoverFingerprint == coverFP {
		out.Locations.CoverURL = entry.CoverURL
		logger.Debug("cover upload skipped", logger.String("slug", track.Slug))
	} else {
		key := track.Slug + "/" + filepath.Base(track.CoverPath)
		url, err := s.put(ctx, key, track.CoverPath, coverContentType(track.CoverPath))
		if err != nil {
			errs = append(errs, &model.TrackError{Slug: track.Slug, Op: "sync:cover", Err: err})
		} else {
			out.Locations.CoverURL = url
			out.Uploads++
			s.manifest.SetCoverUploaded(track.Slug, coverFP, url)
		}
	}

	return out, errors.Join(errs...)
}

// put performs one upload under the retry policy, classifying every storage
// error as transient until the budget runs out.
func (s *Syncer) put(ctx context.Context, key, path, contentType string) (string, error) {
	var url string
	err := s.policy.Do(ctx, func() error {
		u, err := s.store.Put(ctx, key, path, contentType)
		if err != nil {
			return model.Transient(err)
		}
		url = u
		return nil
	})
	return url, err
}

func coverContentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

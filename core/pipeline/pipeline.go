// Package pipeline drives the end-to-end publish run: load the cache, load
// and validate tracks, fan encode-then-sync units over a bounded worker
// pool, persist the cache once, and hand the surviving tracks to the site
// generator. Per-track errors are captured as BuildResults and never unwind
// past this package; only fatal run errors propagate.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"trackforge/cache"
	"trackforge/core/encoder"
	"trackforge/core/loader"
	"trackforge/core/syncer"
	"trackforge/logger"
	"trackforge/model"
)

// EncodeStage produces a track's streaming artifact, skipping via the cache.
type EncodeStage interface {
	Encode(ctx context.Context, track *model.Track) (*encoder.Artifact, error)
}

// SyncStage mirrors a track's files to remote storage, skipping via the cache.
type SyncStage interface {
	Sync(ctx context.Context, track *model.Track, artifact *encoder.Artifact) (syncer.Outcome, error)
}

// Renderer writes the static site atomically.
type Renderer interface {
	Render(tracks []*model.Track, outputRoot, runID string) error
}

// Pipeline owns one publish run.
type Pipeline struct {
	tracksDir string
	outputDir string
	workers   int
	manifest  *cache.Manifest
	encode    EncodeStage
	sync      SyncStage // nil when storage is not configured; uploads are skipped
	render    Renderer
	runID     string
}

// New assembles a pipeline. sync may be nil when object storage is not
// configured; the run then encodes and renders without mirroring.
func New(tracksDir, outputDir string, workers int, manifest *cache.Manifest, encode EncodeStage, sync SyncStage, render Renderer) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		tracksDir: tracksDir,
		outputDir: outputDir,
		workers:   workers,
		manifest:  manifest,
		encode:    encode,
		sync:      sync,
		render:    render,
		runID:     uuid.NewString()[:8],
	}
}

// RunID identifies this run in logs and staging directory names.
func (p *Pipeline) RunID() string { return p.runID }

// Run executes the full pipeline. The returned results always cover every
// discovered track, even when the run ends in a fatal error. Cancelling ctx
// lets in-flight units finish, drains the queue, saves the cache and skips
// site generation.
func (p *Pipeline) Run(ctx context.Context) ([]model.BuildResult, error) {
	logger.Info("build started",
		logger.String("runId", p.runID),
		logger.Int("workers", p.workers))

	tracks, invalid, err := loader.Scan(p.tracksDir)
	if err != nil {
		return nil, model.Fatal("loading tracks", err)
	}

	results := make([]model.BuildResult, 0, len(tracks)+len(invalid))
	for _, verr := range invalid {
		logger.Warn("invalid track", logger.String("slug", verr.Slug), logger.String("reason", verr.Reason))
		results = append(results, model.BuildResult{
			Slug: verr.Slug, Kind: model.ResultInvalid, Reason: verr.Reason,
		})
	}

	trackResults := p.runUnits(ctx, tracks)
	results = append(results, trackResults...)

	// The cache reflects only completed sub-operations, and is written even
	// after cancellation so finished work is not redone next run.
	if err := p.manifest.Save(); err != nil {
		return results, model.Fatal("saving cache manifest", err)
	}

	if ctx.Err() != nil {
		logger.Warn("run interrupted, previous site left untouched",
			logger.String("runId", p.runID))
		return results, nil
	}

	renderable := p.renderableTracks(tracks, trackResults)
	if err := p.render.Render(renderable, p.outputDir, p.runID); err != nil {
		return results, err
	}
	return results, nil
}

// runUnits fans one encode-then-sync unit per track over the worker pool
// and collects one BuildResult per track. Cancelling ctx only stops new
// units from starting; a unit already underway runs on a detached context
// so its encode and uploads complete and the cache stays consistent. The
// per-call encoder and storage timeouts still bound the detached work.
func (p *Pipeline) runUnits(ctx context.Context, tracks []*model.Track) []model.BuildResult {
	jobs := make(chan *model.Track)
	results := make([]model.BuildResult, 0, len(tracks))

	unitCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for track := range jobs {
				var res model.BuildResult
				if ctx.Err() != nil {
					// Queue is drained without starting new units.
					res = model.BuildResult{Slug: track.Slug, Title: track.Title,
						Kind: model.ResultCancelled, Reason: "run interrupted"}
				} else {
					res = p.runUnit(unitCtx, track)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	for _, track := range tracks {
		jobs <- track
	}
	close(jobs)
	wg.Wait()

	return results
}

// runUnit performs the encode-then-sync sequence for one track. Sync depends
// on the encode's output, so the two are sequential within a track.
func (p *Pipeline) runUnit(ctx context.Context, track *model.Track) model.BuildResult {
	artifact, err := p.encode.Encode(ctx, track)
	if err != nil {
		logger.Error("encode failed", logger.String("slug", track.Slug), logger.ErrorField(err))
		return model.BuildResult{Slug: track.Slug, Title: track.Title,
			Kind: model.ResultFailed, Reason: err.Error()}
	}

	var outcome syncer.Outcome
	if p.sync != nil {
		outcome, err = p.sync.Sync(ctx, track, artifact)
		// URLs recorded before a partial failure are still good; publish
		// them onto the track in case the cache needs them next run.
		track.StreamURL = outcome.Locations.StreamURL
		track.SourceURL = outcome.Locations.SourceURL
		track.CoverURL = outcome.Locations.CoverURL
		if err != nil {
			logger.Error("sync failed", logger.String("slug", track.Slug), logger.ErrorField(err))
			return model.BuildResult{Slug: track.Slug, Title: track.Title,
				Kind: model.ResultFailed, Reason: err.Error()}
		}
	}

	if artifact.Skipped && outcome.Uploads == 0 {
		return model.BuildResult{Slug: track.Slug, Title: track.Title, Kind: model.ResultSkipped}
	}
	return model.BuildResult{Slug: track.Slug, Title: track.Title, Kind: model.ResultPublished}
}

// renderableTracks keeps input order and drops tracks whose unit failed or
// never ran. Skipped-unchanged tracks are included.
func (p *Pipeline) renderableTracks(tracks []*model.Track, results []model.BuildResult) []*model.Track {
	excluded := make(map[string]bool)
	for _, r := range results {
		if r.Kind == model.ResultFailed || r.Kind == model.ResultCancelled {
			excluded[r.Slug] = true
		}
	}
	out := make([]*model.Track, 0, len(tracks))
	for _, track := range tracks {
		if !excluded[track.Slug] {
			out = append(out, track)
		}
	}
	return out
}

package model

// ResultKind classifies the outcome of one track's trip through the pipeline.
type ResultKind string

const (
	// ResultPublished means at least one encode or upload was performed and
	// every needed sub-operation succeeded.
	ResultPublished ResultKind = "published"
	// ResultSkipped means all fingerprints matched the cache; no external
	// call was made.
	ResultSkipped ResultKind = "skipped"
	// ResultFailed means encoding or syncing failed after retries; the track
	// is excluded from the rendered site.
	ResultFailed ResultKind = "failed"
	// ResultInvalid means the track never entered the pool: missing files,
	// bad metadata or a duplicate slug.
	ResultInvalid ResultKind = "invalid"
	// ResultCancelled means the run was interrupted before the track's unit
	// of work started.
	ResultCancelled ResultKind = "cancelled"
)

// BuildResult is the per-track outcome collected by the orchestrator.
// Only the orchestrator mutates the aggregate list.
type BuildResult struct {
	Slug   string
	Title  string
	Kind   ResultKind
	Reason string // populated for failed/invalid/cancelled
}

// Summary aggregates BuildResults into the counts reported at the end of a
// run.
type Summary struct {
	Published int
	Skipped   int
	Failed    int
	Invalid   int
	Cancelled int
}

// Summarize counts results by kind.
func Summarize(results []BuildResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Kind {
		case ResultPublished:
			s.Published++
		case ResultSkipped:
			s.Skipped++
		case ResultFailed:
			s.Failed++
		case ResultInvalid:
			s.Invalid++
		case ResultCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Failure reports whether the run as a whole should exit non-zero: only when
// nothing was published although at least one track actually needed work.
// A single bad track among successes is a warning, not a run failure.
func (s Summary) Failure() bool {
	attempted := s.Published + s.Failed
	return s.Published == 0 && attempted > 0
}

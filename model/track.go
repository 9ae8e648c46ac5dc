package model

import (
	"fmt"
	"path/filepath"
)

// TrackStatus is the publication state declared in a track's front matter.
type TrackStatus string

const (
	StatusDraft          TrackStatus = "draft"
	StatusWorkInProgress TrackStatus = "work-in-progress"
	StatusFinal          TrackStatus = "final"
)

// ParseTrackStatus validates a front-matter status value. An empty value
// defaults to final; anything else outside the enum is an error rather than
// a silent fallback.
func ParseTrackStatus(s string) (TrackStatus, error) {
	switch TrackStatus(s) {
	case "":
		return StatusFinal, nil
	case StatusDraft, StatusWorkInProgress, StatusFinal:
		return TrackStatus(s), nil
	default:
		return "", fmt.Errorf("unknown status %q (want draft, work-in-progress or final)", s)
	}
}

// Track represents one published work: source audio, metadata and cover art
// discovered in a single track directory.
type Track struct {
	Slug        string      `json:"slug"` // stable identifier derived from the directory name
	Dir         string      `json:"-"`    // absolute path of the source directory
	Title       string      `json:"title"`
	Year        int         `json:"year,omitempty"`
	Category    string      `json:"category,omitempty"`
	Status      TrackStatus `json:"status"`
	Tags        []string    `json:"tags,omitempty"`
	Created     string      `json:"created,omitempty"`
	Modified    string      `json:"modified,omitempty"`
	AudioPath   string      `json:"-"` // source audio file (wav)
	CoverPath   string      `json:"-"` // primary cover image, first of ImagePaths
	ImagePaths  []string    `json:"-"` // all images, sorted by name
	Body        string      `json:"-"` // free-form markdown below the front matter

	// Remote locations, filled in by the sync stage (or from the cache for
	// unchanged tracks) before rendering.
	StreamURL string `json:"streamUrl,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
	CoverURL  string `json:"coverUrl,omitempty"`
}

// CoverFilename is the slug-prefixed name the primary cover is published
// under, so covers from different tracks cannot collide in the site tree.
func (t *Track) CoverFilename() string {
	if t.CoverPath == "" {
		return ""
	}
	return t.Slug + "-" + filepath.Base(t.CoverPath)
}

// ImageFilenames returns the published names of all of the track's images.
func (t *Track) ImageFilenames() []string {
	names := make([]string, 0, len(t.ImagePaths))
	for _, p := range t.ImagePaths {
		names = append(names, t.Slug+"-"+filepath.Base(p))
	}
	return names
}

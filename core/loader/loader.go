// Package loader scans the tracks root and turns each subdirectory into a
// validated Track record. The scan is read-only; a directory that fails
// validation produces a per-track error, never a pipeline abort.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"trackforge/model"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes a directory name into a stable track identifier.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugCleaner.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// Scan walks the immediate subdirectories of root in sorted order and
// returns the valid tracks plus one validation error per rejected
// directory. The returned error is non-nil only when root itself is
// unreadable.
func Scan(root string) ([]*model.Track, []*model.ValidationError, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading tracks root %s: %w", root, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var (
		tracks  []*model.Track
		invalid []*model.ValidationError
		seen    = make(map[string]string) // slug -> directory that claimed it
	)
	for _, name := range names {
		slug := Slugify(name)
		if slug == "" {
			invalid = append(invalid, &model.ValidationError{
				Slug:   name,
				Reason: "directory name yields an empty identifier",
			})
			continue
		}
		if prev, dup := seen[slug]; dup {
			invalid = append(invalid, &model.ValidationError{
				Slug:   slug,
				Reason: fmt.Sprintf("duplicate identifier: %s and %s both map to %q", prev, name, slug),
			})
			continue
		}

		track, verr := loadTrack(filepath.Join(root, name), slug)
		if verr != nil {
			invalid = append(invalid, verr)
			continue
		}
		seen[slug] = name
		tracks = append(tracks, track)
	}
	return tracks, invalid, nil
}

// loadTrack validates one track directory: exactly one audio file, exactly
// one metadata file, at least one image, and well-formed front matter.
func loadTrack(dir, slug string) (*model.Track, *model.ValidationError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &model.ValidationError{Slug: slug, Reason: fmt.Sprintf("unreadable directory: %v", err)}
	}

	var audio, metadata []string
	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch ext := strings.ToLower(filepath.Ext(name)); {
		case ext == ".wav":
			audio = append(audio, name)
		case ext == ".md":
			metadata = append(metadata, name)
		case imageExtensions[ext]:
			images = append(images, name)
		}
	}

	if len(audio) != 1 {
		return nil, &model.ValidationError{Slug: slug,
			Reason: fmt.Sprintf("want exactly one audio (.wav) file, found %d", len(audio))}
	}
	if len(metadata) != 1 {
		return nil, &model.ValidationError{Slug: slug,
			Reason: fmt.Sprintf("want exactly one metadata (.md) file, found %d", len(metadata))}
	}
	if len(images) == 0 {
		return nil, &model.ValidationError{Slug: slug, Reason: "no cover image found"}
	}
	sort.Strings(images)

	content, err := os.ReadFile(filepath.Join(dir, metadata[0]))
	if err != nil {
		return nil, &model.ValidationError{Slug: slug, Reason: fmt.Sprintf("reading %s: %v", metadata[0], err)}
	}
	header, body, err := splitFrontMatter(string(content))
	if err != nil {
		return nil, &model.ValidationError{Slug: slug, Reason: err.Error()}
	}
	fm, err := parseFrontMatter(header)
	if err != nil {
		return nil, &model.ValidationError{Slug: slug, Reason: err.Error()}
	}
	if strings.TrimSpace(fm.Title) == "" {
		return nil, &model.ValidationError{Slug: slug, Reason: "front matter is missing required field: title"}
	}
	status, err := model.ParseTrackStatus(fm.Status)
	if err != nil {
		return nil, &model.ValidationError{Slug: slug, Reason: err.Error()}
	}

	imagePaths := make([]string, len(images))
	for i, img := range images {
		imagePaths[i] = filepath.Join(dir, img)
	}

	return &model.Track{
		Slug:       slug,
		Dir:        dir,
		Title:      strings.TrimSpace(fm.Title),
		Year:       fm.Year,
		Category:   fm.Category,
		Status:     status,
		Tags:       dedupeTags(fm.Tags),
		Created:    fm.Created,
		Modified:   fm.Modified,
		AudioPath:  filepath.Join(dir, audio[0]),
		CoverPath:  imagePaths[0],
		ImagePaths: imagePaths,
		Body:       body,
	}, nil
}

// dedupeTags collapses duplicates while keeping first-seen order.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

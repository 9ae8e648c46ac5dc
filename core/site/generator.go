// Package site renders the static output tree: an index page, one page per
// track, copied cover images and static assets. Output is staged in a fresh
// directory and swapped into place atomically, so a reader never observes a
// half-written site and a failed render leaves the previous site live.
package site

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"trackforge/logger"
	"trackforge/model"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

// Generator renders tracks into a self-contained static directory.
type Generator struct {
	tmpl            *template.Template
	assetsDir       string
	siteTitle       string
	siteDescription string
	siteAuthor      string
}

// Options configures a Generator.
type Options struct {
	TemplatesDir    string // override dir; embedded templates when empty
	AssetsDir       string // copied verbatim into the site; optional
	SiteTitle       string
	SiteDescription string
	SiteAuthor      string
}

// NewGenerator parses templates (embedded by default, from TemplatesDir
// when overridden).
func NewGenerator(opts Options) (*Generator, error) {
	var tmpl *template.Template
	var err error
	if opts.TemplatesDir != "" {
		tmpl, err = template.ParseGlob(filepath.Join(opts.TemplatesDir, "*.html"))
	} else {
		tmpl, err = template.ParseFS(defaultTemplates, "templates/*.html")
	}
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Generator{
		tmpl:            tmpl,
		assetsDir:       opts.AssetsDir,
		siteTitle:       opts.SiteTitle,
		siteDescription: opts.SiteDescription,
		siteAuthor:      opts.SiteAuthor,
	}, nil
}

type pageData struct {
	SiteTitle       string
	SiteDescription string
	SiteAuthor      string
	Tracks          []*trackView
	Track           *trackView // set on track pages
}

type trackView struct {
	*model.Track
	CoverFile string        // site-relative cover path
	Images    []string      // site-relative gallery paths
	BodyHTML  template.HTML // rendered markdown
}

// Render writes the whole site for tracks (already in display order) and
// atomically replaces outputRoot. Any error aborts before the swap, leaving
// the existing output untouched.
func (g *Generator) Render(tracks []*model.Track, outputRoot, runID string) error {
	staging := outputRoot + ".staging-" + runID
	if err := g.renderInto(tracks, staging); err != nil {
		os.RemoveAll(staging)
		return model.Fatal("site generation", err)
	}
	if err := swap(staging, outputRoot, runID); err != nil {
		os.RemoveAll(staging)
		return model.Fatal("site publish", err)
	}
	logger.Info("site rendered",
		logger.Int("tracks", len(tracks)),
		logger.String("output", outputRoot))
	return nil
}

func (g *Generator) renderInto(tracks []*model.Track, root string) error {
	for _, dir := range []string{root, filepath.Join(root, "tracks"), filepath.Join(root, "covers")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if g.assetsDir != "" {
		if _, err := os.Stat(g.assetsDir); err == nil {
			if err := copyTree(g.assetsDir, filepath.Join(root, "assets")); err != nil {
				return fmt.Errorf("copying assets: %w", err)
			}
		}
	}

	views := make([]*trackView, 0, len(tracks))
	for _, track := range tracks {
		view, err := g.buildView(track, root)
		if err != nil {
			return err
		}
		views = append(views, view)
	}

	for _, view := range views {
		path := filepath.Join(root, "tracks", view.Slug+".html")
		if err := g.renderPage(path, "track.html", pageData{
			SiteTitle:       g.siteTitle,
			SiteDescription: g.siteDescription,
			SiteAuthor:      g.siteAuthor,
			Track:           view,
		}); err != nil {
			return err
		}
	}

	return g.renderPage(filepath.Join(root, "index.html"), "index.html", pageData{
		SiteTitle:       g.siteTitle,
		SiteDescription: g.siteDescription,
		SiteAuthor:      g.siteAuthor,
		Tracks:          views,
	})
}

// buildView renders the markdown body and copies the track's images into
// the staging tree under slug-prefixed names.
func (g *Generator) buildView(track *model.Track, root string) (*trackView, error) {
	body, err := renderMarkdown(track.Body)
	if err != nil {
		return nil, fmt.Errorf("rendering body for %s: %w", track.Slug, err)
	}

	view := &trackView{Track: track, BodyHTML: body}
	for _, img := range track.ImagePaths {
		name := track.Slug + "-" + filepath.Base(img)
		if err := copyFile(img, filepath.Join(root, "covers", name)); err != nil {
			return nil, fmt.Errorf("copying image for %s: %w", track.Slug, err)
		}
		view.Images = append(view.Images, "covers/"+name)
	}
	view.CoverFile = "covers/" + track.CoverFilename()
	return view, nil
}

func (g *Generator) renderPage(path, name string, data pageData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := g.tmpl.ExecuteTemplate(f, name, data); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	return f.Close()
}

// swap replaces dest with staging in two renames, keeping the old tree
// until the new one is in place.
func swap(staging, dest, runID string) error {
	old := dest + ".old-" + runID
	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, old); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(staging, dest); err != nil {
		// Put the previous site back; the failed staging dir is removed by
		// the caller.
		os.Rename(old, dest)
		return err
	}
	os.RemoveAll(old)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

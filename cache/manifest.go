package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"trackforge/logger"
)

// Entry is the persisted per-track record: the fingerprints observed at the
// last successful encode/upload and the remote locations assigned. Entries
// are created on a track's first successful operation and updated in place;
// they are never removed automatically (see Prune).
type Entry struct {
	AudioFingerprint    Fingerprint `json:"audioFingerprint,omitempty"`    // at last successful encode
	ArtifactFingerprint Fingerprint `json:"artifactFingerprint,omitempty"` // at last successful stream upload
	SourceFingerprint   Fingerprint `json:"sourceFingerprint,omitempty"`   // at last successful source upload
	CoverFingerprint    Fingerprint `json:"coverFingerprint,omitempty"`    // at last successful cover upload
	ArtifactPath        string      `json:"artifactPath,omitempty"`
	StreamURL           string      `json:"streamUrl,omitempty"`
	SourceURL           string      `json:"sourceUrl,omitempty"`
	CoverURL            string      `json:"coverUrl,omitempty"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Manifest is the fingerprint cache: the single source of cross-run state.
// It is loaded once at pipeline start, mutated in memory by worker
// completions (one writer at a time, guarded by the mutex) and saved exactly
// once after all units finish.
type Manifest struct {
	mu      sync.Mutex
	path    string
	entries map[string]*Entry
}

// Load reads the manifest at path. A missing or undecodable file is treated
// as an empty cache (full rebuild), never as a run failure.
func Load(path string) *Manifest {
	m := &Manifest{path: path, entries: make(map[string]*Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cache manifest unreadable, rebuilding from scratch",
				logger.String("path", path), logger.ErrorField(err))
		}
		return m
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		logger.Warn("cache manifest corrupt, rebuilding from scratch",
			logger.String("path", path), logger.ErrorField(err))
		m.entries = make(map[string]*Entry)
	}
	return m
}

// Get returns a copy of the entry for slug, or ok=false when absent.
// Returning a copy keeps workers from aliasing the shared map values.
func (m *Manifest) Get(slug string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[slug]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Slugs returns all cached slugs in sorted order.
func (m *Manifest) Slugs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	slugs := make([]string, 0, len(m.entries))
	for slug := range m.entries {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Len returns the number of cached entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manifest) upsert(slug string, update func(*Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[slug]
	if !ok {
		e = &Entry{}
		m.entries[slug] = e
	}
	update(e)
	e.UpdatedAt = time.Now().UTC()
}

// SetEncoded records a successful encode: the source audio fingerprint the
// artifact was derived from and where the artifact lives. The artifact
// fingerprint is deliberately not touched here; it tracks the last
// successful upload, not the last encode.
func (m *Manifest) SetEncoded(slug string, audio Fingerprint, artifactPath string) {
	m.upsert(slug, func(e *Entry) {
		e.AudioFingerprint = audio
		e.ArtifactPath = artifactPath
	})
}

// SetStreamUploaded records a successful upload of the encoded artifact.
func (m *Manifest) SetStreamUploaded(slug string, artifact Fingerprint, url string) {
	m.upsert(slug, func(e *Entry) {
		e.ArtifactFingerprint = artifact
		e.StreamURL = url
	})
}

// SetSourceUploaded records a successful upload of the lossless source.
func (m *Manifest) SetSourceUploaded(slug string, source Fingerprint, url string) {
	m.upsert(slug, func(e *Entry) {
		e.SourceFingerprint = source
		e.SourceURL = url
	})
}

// SetCoverUploaded records a successful upload of the cover image.
func (m *Manifest) SetCoverUploaded(slug string, cover Fingerprint, url string) {
	m.upsert(slug, func(e *Entry) {
		e.CoverFingerprint = cover
		e.CoverURL = url
	})
}

// Remove drops the entry for slug, if any. Used only by manual pruning.
func (m *Manifest) Remove(slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, slug)
}

// Save writes the manifest atomically: temp file in the same directory, then
// rename. A crash mid-save leaves the previous manifest intact, so the cache
// never claims work that did not finish.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".manifest-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, m.path)
}

package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trackforge/cache"
	"trackforge/core/encoder"
	"trackforge/model"
	"trackforge/retry"
)

// fakeStore is an in-memory ObjectStore recording every put.
type fakeStore struct {
	mu      sync.Mutex
	puts    []string
	failKey string // keys containing this substring fail
}

func (f *fakeStore) Put(ctx context.Context, key, path, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKey != "" && strings.Contains(key, f.failKey) {
		return "", errors.New("storage unavailable")
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	f.puts = append(f.puts, key)
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func testFixture(t *testing.T) (*model.Track, *encoder.Artifact, *cache.Manifest) {
	t.Helper()
	dir := t.TempDir()

	audio := filepath.Join(dir, "mix.wav")
	coverPath := filepath.Join(dir, "cover.png")
	artifactPath := filepath.Join(dir, "demo.mp3")
	for path, data := range map[string]string{
		audio:        "wav-bytes",
		coverPath:    "png-bytes",
		artifactPath: "mp3-bytes",
	} {
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	track := &model.Track{Slug: "demo", Title: "Demo", AudioPath: audio, CoverPath: coverPath}

	audioFP, err := cache.FileFingerprint(audio)
	if err != nil {
		t.Fatal(err)
	}
	artifactFP, err := cache.FileFingerprint(artifactPath)
	if err != nil {
		t.Fatal(err)
	}
	artifact := &encoder.Artifact{Path: artifactPath, Fingerprint: artifactFP, AudioFingerprint: audioFP}

	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	return track, artifact, manifest
}

func policy() retry.Policy {
	return retry.Policy{Attempts: 2, Backoff: time.Millisecond}
}

func TestSyncUploadsAllRolesFirstRun(t *testing.T) {
	track, artifact, manifest := testFixture(t)
	store := &fakeStore{}
	s := New(store, manifest, policy())

	out, err := s.Sync(context.Background(), track, artifact)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Uploads != 3 {
		t.Fatalf("uploads = %d, want 3", out.Uploads)
	}
	if out.Locations.StreamURL != "https://cdn.example.com/demo/demo.mp3" {
		t.Errorf("stream url = %q", out.Locations.StreamURL)
	}
	if out.Locations.SourceURL != "https://cdn.example.com/demo/demo.wav" {
		t.Errorf("source url = %q", out.Locations.SourceURL)
	}
	if out.Locations.CoverURL != "https://cdn.example.com/demo/cover.png" {
		t.Errorf("cover url = %q", out.Locations.CoverURL)
	}

	entry, ok := manifest.Get("demo")
	if !ok {
		t.Fatal("no cache entry after sync")
	}
	if entry.ArtifactFingerprint != artifact.Fingerprint || entry.CoverFingerprint == "" {
		t.Fatal("fingerprints not recorded at upload time")
	}
}

func TestSyncSkipsUnchangedRoles(t *testing.T) {
	track, artifact, manifest := testFixture(t)
	store := &fakeStore{}
	s := New(store, manifest, policy())

	if _, err := s.Sync(context.Background(), track, artifact); err != nil {
		t.Fatal(err)
	}
	out, err := s.Sync(context.Background(), track, artifact)
	if err != nil {
		t.Fatal(err)
	}
	if out.Uploads != 0 {
		t.Fatalf("uploads = %d, second sync of unchanged files must be free", out.Uploads)
	}
	if store.putCount() != 3 {
		t.Fatalf("store puts = %d, want 3 total", store.putCount())
	}
	if out.Locations.StreamURL == "" || out.Locations.CoverURL == "" || out.Locations.SourceURL == "" {
		t.Fatal("skipped roles must still report their recorded URLs")
	}
}

func TestSyncCoverChangeUploadsOnlyCover(t *testing.T) {
	track, artifact, manifest := testFixture(t)
	store := &fakeStore{}
	s := New(store, manifest, policy())

	if _, err := s.Sync(context.Background(), track, artifact); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(track.CoverPath, []byte("new-png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := s.Sync(context.Background(), track, artifact)
	if err != nil {
		t.Fatal(err)
	}
	if out.Uploads != 1 {
		t.Fatalf("uploads = %d, want only the cover", out.Uploads)
	}
	last := store.puts[len(store.puts)-1]
	if last != "demo/cover.png" {
		t.Fatalf("last put = %q, want the cover key", last)
	}
}

func TestSyncPartialFailureDoesNotBlockOtherRoles(t *testing.T) {
	track, artifact, manifest := testFixture(t)
	store := &fakeStore{failKey: "cover"}
	s := New(store, manifest, policy())

	out, err := s.Sync(context.Background(), track, artifact)
	if err == nil {
		t.Fatal("expected cover failure to surface")
	}
	var trackErr *model.TrackError
	if !errors.As(err, &trackErr) || trackErr.Op != "sync:cover" {
		t.Fatalf("expected sync:cover TrackError, got %v", err)
	}
	if out.Locations.StreamURL == "" || out.Locations.SourceURL == "" {
		t.Fatal("audio roles must succeed despite cover failure")
	}

	// Cover failure must not poison the cache; a retry run uploads only the
	// cover.
	store.failKey = ""
	out, err = s.Sync(context.Background(), track, artifact)
	if err != nil {
		t.Fatal(err)
	}
	if out.Uploads != 1 {
		t.Fatalf("uploads = %d, want only the previously failed cover", out.Uploads)
	}
}

func TestSyncRetriesTransientStorageErrors(t *testing.T) {
	track, artifact, manifest := testFixture(t)

	attempts := 0
	flaky := storeFunc(func(ctx context.Context, key, path, contentType string) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("connection reset")
		}
		return "https://cdn.example.com/" + key, nil
	})
	s := New(flaky, manifest, policy())

	if _, err := s.Sync(context.Background(), track, artifact); err != nil {
		t.Fatalf("Sync should recover from a transient storage error: %v", err)
	}
}

type storeFunc func(ctx context.Context, key, path, contentType string) (string, error)

func (f storeFunc) Put(ctx context.Context, key, path, contentType string) (string, error) {
	return f(ctx, key, path, contentType)
}

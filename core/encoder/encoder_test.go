package encoder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"trackforge/cache"
	"trackforge/model"
	"trackforge/retry"
)

func testTrack(t *testing.T, audioContent string) *model.Track {
	t.Helper()
	dir := t.TempDir()
	audio := filepath.Join(dir, "mix.wav")
	if err := os.WriteFile(audio, []byte(audioContent), 0644); err != nil {
		t.Fatal(err)
	}
	return &model.Track{Slug: "demo", Dir: dir, Title: "Demo", AudioPath: audio}
}

func newTestEncoder(t *testing.T, manifest *cache.Manifest) (*FFmpegEncoder, *int) {
	t.Helper()
	outDir := filepath.Join(t.TempDir(), "encoded")
	enc := NewFFmpegEncoder("ffmpeg", "192", "2", outDir, time.Minute,
		retry.Policy{Attempts: 3, Backoff: time.Millisecond}, manifest)
	calls := 0
	enc.run = func(ctx context.Context, name string, args []string) error {
		calls++
		// Last arg is the destination; behave like ffmpeg and write it.
		return os.WriteFile(args[len(args)-1], []byte("mp3-bytes"), 0644)
	}
	return enc, &calls
}

func TestEncodeInvokesFFmpegAndUpdatesCache(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, calls := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	artifact, err := enc.Encode(context.Background(), track)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", *calls)
	}
	if artifact.Skipped {
		t.Fatal("first encode must not be a skip")
	}
	if artifact.Fingerprint == "" || artifact.AudioFingerprint == "" {
		t.Fatal("artifact fingerprints not computed")
	}

	entry, ok := manifest.Get("demo")
	if !ok {
		t.Fatal("cache entry not created")
	}
	if entry.AudioFingerprint != artifact.AudioFingerprint {
		t.Fatal("audio fingerprint not recorded")
	}
	if entry.ArtifactPath != artifact.Path {
		t.Fatal("artifact path not recorded")
	}
	if entry.ArtifactFingerprint != "" {
		t.Fatal("artifact fingerprint belongs to the sync stage, not the encoder")
	}
}

func TestEncodeSkipsWhenSourceUnchanged(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, calls := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatal(err)
	}
	artifact, err := enc.Encode(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if *calls != 1 {
		t.Fatalf("ffmpeg calls = %d, second encode should skip", *calls)
	}
	if !artifact.Skipped {
		t.Fatal("expected skip for unchanged source")
	}
}

func TestEncodeReencodesWhenSourceChanges(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, calls := newTestEncoder(t, manifest)
	track := testTrack(t, "take one")

	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(track.AudioPath, []byte("take two"), 0644); err != nil {
		t.Fatal(err)
	}
	artifact, err := enc.Encode(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if *calls != 2 {
		t.Fatalf("ffmpeg calls = %d, want 2", *calls)
	}
	if artifact.Skipped {
		t.Fatal("changed source must re-encode")
	}
}

func TestEncodeReencodesWhenArtifactMissing(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, calls := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	first, err := enc.Encode(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(first.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatal(err)
	}
	if *calls != 2 {
		t.Fatalf("ffmpeg calls = %d, missing artifact must re-encode", *calls)
	}
}

func TestEncodeRetriesTransientFailures(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, _ := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	calls := 0
	enc.run = func(ctx context.Context, name string, args []string) error {
		calls++
		if calls < 2 {
			return errors.New("exit status 1")
		}
		return os.WriteFile(args[len(args)-1], []byte("mp3-bytes"), 0644)
	}

	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatalf("Encode should recover after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("ffmpeg calls = %d, want 2", calls)
	}
}

func TestEncodeFailsTerminallyAfterBudget(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, _ := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	calls := 0
	enc.run = func(ctx context.Context, name string, args []string) error {
		calls++
		return errors.New("exit status 1")
	}

	_, err := enc.Encode(context.Background(), track)
	if err == nil {
		t.Fatal("expected terminal error")
	}
	var trackErr *model.TrackError
	if !errors.As(err, &trackErr) {
		t.Fatalf("expected TrackError, got %T", err)
	}
	if calls != 3 {
		t.Fatalf("ffmpeg calls = %d, want full retry budget of 3", calls)
	}
	if _, ok := manifest.Get("demo"); ok {
		t.Fatal("failed encode must not create a cache entry")
	}
}

func TestEncodeDoesNotRetryMissingBinary(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, _ := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	calls := 0
	enc.run = func(ctx context.Context, name string, args []string) error {
		calls++
		return exec.ErrNotFound
	}

	if _, err := enc.Encode(context.Background(), track); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("ffmpeg calls = %d, missing binary must not retry", calls)
	}
}

func TestEncodeSkipSurvivesManifestReload(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	manifest := cache.Load(manifestPath)
	enc, calls := newTestEncoder(t, manifest)
	track := testTrack(t, "wav-bytes")

	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatal(err)
	}
	if err := manifest.Save(); err != nil {
		t.Fatal(err)
	}

	// A fresh process loading the saved manifest must still skip.
	reloaded := cache.Load(manifestPath)
	enc2 := NewFFmpegEncoder("ffmpeg", "192", "2", enc.outDir, time.Minute,
		retry.Policy{Attempts: 3, Backoff: time.Millisecond}, reloaded)
	enc2.run = enc.run

	artifact, err := enc2.Encode(context.Background(), track)
	if err != nil {
		t.Fatal(err)
	}
	if !artifact.Skipped || *calls != 1 {
		t.Fatalf("skip must survive a manifest save/load cycle (calls=%d)", *calls)
	}
}

func TestEncodePreservesSourceAudio(t *testing.T) {
	manifest := cache.Load(filepath.Join(t.TempDir(), "manifest.json"))
	enc, _ := newTestEncoder(t, manifest)
	track := testTrack(t, "original wav bytes")

	if _, err := enc.Encode(context.Background(), track); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(track.AudioPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original wav bytes" {
		t.Fatal("source audio was modified by encoding")
	}
}

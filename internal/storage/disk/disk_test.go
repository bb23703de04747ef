package disk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/mediad/api"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	store, err := New(Config{Roots: map[api.PathType]string{
		api.PathTypeVideo: filepath.Join(base, "videos"),
		api.PathTypeImage: filepath.Join(base, "images"),
		api.PathTypeAudio: filepath.Join(base, "audio"),
	}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestWriteStreamReadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("abcdef"), 4096)

	display, written, err := store.WriteStream(ctx, api.PathTypeVideo, "clip.mp4", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("write stream: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("written = %d, want %d", written, len(payload))
	}
	if !strings.HasSuffix(display, "clip.mp4") {
		t.Fatalf("display path %q does not end with filename", display)
	}

	got, err := store.Read(ctx, api.PathTypeVideo, "clip.mp4")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read bytes differ from written bytes")
	}

	info, err := store.Stat(ctx, api.PathTypeVideo, "clip.mp4")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.SizeBytes != int64(len(payload)) || info.Name != "clip.mp4" {
		t.Fatalf("stat = %+v", info)
	}
	if info.ModifiedUnix == 0 {
		t.Fatalf("expected modified time")
	}
}

type failingReader struct {
	data []byte
	read int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.read >= len(r.data) {
		return 0, errors.New("stream interrupted")
	}
	n := copy(p, r.data[r.read:])
	r.read += n
	return n, nil
}

func TestWriteStreamFailureLeavesNoArtifact(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.WriteStream(ctx, api.PathTypeVideo, "broken.mp4", &failingReader{data: []byte("partial content")})
	if err == nil {
		t.Fatalf("expected stream failure")
	}
	if ok, err := store.Exists(ctx, api.PathTypeVideo, "broken.mp4"); err != nil || ok {
		t.Fatalf("partial write must not be visible, ok=%v err=%v", ok, err)
	}
	// No temp litter either.
	sb := store.sandboxes[api.PathTypeVideo]
	entries, err := os.ReadDir(sb.Root())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, found %d entries", len(entries))
	}
}

func TestWriteStreamCancelledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := store.WriteStream(ctx, api.PathTypeVideo, "cancelled.mp4", bytes.NewReader(bytes.Repeat([]byte("x"), 1<<20)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), api.PathTypeVideo, "cancelled.mp4"); ok {
		t.Fatalf("cancelled write must not be visible")
	}
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.Read(context.Background(), api.PathTypeVideo, "absent.mp4"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSecurityErrorsPropagate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Read(ctx, api.PathTypeVideo, "../../etc/passwd"); !errors.Is(err, api.ErrPathTraversal) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}

	outside := filepath.Join(t.TempDir(), "target.png")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}
	sb := store.sandboxes[api.PathTypeImage]
	if err := os.Symlink(outside, filepath.Join(sb.Root(), "link.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := store.Read(ctx, api.PathTypeImage, "link.png"); !errors.Is(err, api.ErrSymlinkRejected) {
		t.Fatalf("expected symlink rejection, got %v", err)
	}
	if _, err := store.Exists(ctx, api.PathTypeImage, "link.png"); !errors.Is(err, api.ErrSymlinkRejected) {
		t.Fatalf("exists must propagate symlink rejection, got %v", err)
	}
}

func TestListFiltersAndSkipsSymlinks(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"a.mp4", "b.webm", "sora_c.mp4", "notes.txt"} {
		if _, _, err := store.WriteStream(ctx, api.PathTypeVideo, name, strings.NewReader("content")); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	sb := store.sandboxes[api.PathTypeVideo]
	linkErr := os.Symlink(filepath.Join(sb.Root(), "a.mp4"), filepath.Join(sb.Root(), "link.mp4"))

	infos, err := store.List(ctx, api.PathTypeVideo, "", []string{"mp4"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 mp4 files, got %d", len(infos))
	}
	if infos[0].Name != "a.mp4" || infos[1].Name != "sora_c.mp4" {
		t.Fatalf("unexpected order: %v", infos)
	}
	if linkErr == nil {
		for _, info := range infos {
			if info.Name == "link.mp4" {
				t.Fatalf("symlink must not be listed")
			}
		}
	}

	infos, err = store.List(ctx, api.PathTypeVideo, "sora*", nil)
	if err != nil {
		t.Fatalf("list with pattern: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "sora_c.mp4" {
		t.Fatalf("pattern filter failed: %v", infos)
	}
}

func TestScopedLocal(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if _, _, err := store.WriteStream(ctx, api.PathTypeImage, "ref.png", strings.NewReader("png bytes")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var seen string
	err := store.ScopedLocal(ctx, api.PathTypeImage, "ref.png", false, func(localPath string) error {
		seen = localPath
		data, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		if string(data) != "png bytes" {
			return errors.New("unexpected content")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scoped local: %v", err)
	}
	if !strings.HasSuffix(seen, "ref.png") {
		t.Fatalf("unexpected local path %q", seen)
	}

	// Write scope: fn writes the destination directly.
	err = store.ScopedLocal(ctx, api.PathTypeImage, "out.png", true, func(localPath string) error {
		return os.WriteFile(localPath, []byte("written"), 0o644)
	})
	if err != nil {
		t.Fatalf("scoped local write: %v", err)
	}
	got, err := store.Read(ctx, api.PathTypeImage, "out.png")
	if err != nil || string(got) != "written" {
		t.Fatalf("read back: %q err=%v", got, err)
	}
}

func TestWriteStreamOverwritesAtomically(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if _, _, err := store.WriteStream(ctx, api.PathTypeVideo, "v.mp4", strings.NewReader("old")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := store.WriteStream(ctx, api.PathTypeVideo, "v.mp4", strings.NewReader("new content")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Read(ctx, api.PathTypeVideo, "v.mp4")
	if err != nil || string(got) != "new content" {
		t.Fatalf("read back: %q err=%v", got, err)
	}
}

func TestUnknownPathType(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.Read(context.Background(), api.PathType("documents"), "a.txt"); !errors.Is(err, api.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

var _ io.Reader = (*failingReader)(nil)

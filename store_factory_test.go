package mediad

import (
	"context"
	"strings"
	"testing"

	"pkt.systems/mediad/api"
)

func TestOpenBackendDisk(t *testing.T) {
	t.Parallel()

	cfg := Config{StoreURL: "disk://" + t.TempDir()}
	backend, err := OpenBackend(cfg, nil)
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	if _, _, err := backend.WriteStream(ctx, api.PathTypeVideo, "sample.mp4", strings.NewReader("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, err := backend.Exists(ctx, api.PathTypeVideo, "sample.mp4"); err != nil || !ok {
		t.Fatalf("exists = %v err=%v", ok, err)
	}
}

func TestOpenBackendRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	if _, err := OpenBackend(Config{StoreURL: "redis://localhost"}, nil); err == nil {
		t.Fatalf("expected scheme rejection")
	}
}

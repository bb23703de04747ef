package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"pkt.systems/mediad"
	"pkt.systems/pslog"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestBindConfigDefaults(t *testing.T) {
	resetViper(t)
	newRootCommand(pslog.NewStructured(context.Background(), io.Discard))

	var cfg mediad.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.APIBaseURL != mediad.DefaultAPIBase {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.StoreURL != mediad.DefaultStoreURL {
		t.Fatalf("StoreURL = %q", cfg.StoreURL)
	}
	if cfg.Transport != mediad.DefaultTransport {
		t.Fatalf("Transport = %q", cfg.Transport)
	}
	if cfg.ChunkMaxBytes <= 0 {
		t.Fatalf("ChunkMaxBytes = %d", cfg.ChunkMaxBytes)
	}
	if cfg.WorkerPoolSize <= 0 {
		t.Fatalf("WorkerPoolSize = %d", cfg.WorkerPoolSize)
	}
}

func TestBindConfigParsesHumanizedChunkMax(t *testing.T) {
	resetViper(t)
	newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	viper.Set("chunk-max", "4MiB")

	var cfg mediad.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.ChunkMaxBytes != 4*1024*1024 {
		t.Fatalf("ChunkMaxBytes = %d", cfg.ChunkMaxBytes)
	}

	viper.Set("chunk-max", "not-a-size")
	if err := bindConfig(&cfg); err == nil {
		t.Fatalf("expected chunk-max parse error")
	}
}

func TestBindConfigAPIKeyEnvFallback(t *testing.T) {
	resetViper(t)
	newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	var cfg mediad.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.APIKey != "sk-fallback" {
		t.Fatalf("APIKey = %q", cfg.APIKey)
	}

	viper.Set("api-key", "sk-explicit")
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.APIKey != "sk-explicit" {
		t.Fatalf("explicit key should win, got %q", cfg.APIKey)
	}
}

func TestBindConfigStoreOverrides(t *testing.T) {
	resetViper(t)
	newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	viper.Set("store", "s3://artifacts/media")
	viper.Set("s3-endpoint", "localhost:9000")
	viper.Set("s3-insecure", true)
	viper.Set("s3-force-path-style", true)
	viper.Set("disable-image-api", true)

	var cfg mediad.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.StoreURL != "s3://artifacts/media" || cfg.S3Endpoint != "localhost:9000" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.S3Insecure || !cfg.S3ForcePathStyle || !cfg.DisableImageAPI {
		t.Fatalf("cfg = %+v", cfg)
	}
	caps := mediad.DetectCapabilities(cfg)
	if caps.Image || !caps.RemoteStorage {
		t.Fatalf("caps = %+v", caps)
	}
}

func TestVersionCommandPrintsModule(t *testing.T) {
	resetViper(t)
	cmd := newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "pkt.systems/mediad") {
		t.Fatalf("output = %q", out.String())
	}
}

package mediad

import (
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"pkt.systems/mediad/api"
)

// Defaults for the server configuration.
const (
	DefaultStoreURL  = "disk://./media"
	DefaultAPIBase   = "https://api.openai.com/v1"
	DefaultMCPPath   = "/mcp"
	DefaultListen    = "127.0.0.1:8632"
	DefaultTransport = "stdio"
)

// Config is the explicit runtime configuration of a mediad server. It is
// built once at startup (CLI flags, environment, config file) and passed by
// reference; nothing about it is derived lazily or cached keyed on user
// input.
type Config struct {
	// APIBaseURL is the generation API endpoint.
	APIBaseURL string
	// APIKey authenticates against the generation API.
	APIKey string

	// StoreURL selects the artifact storage backend: disk://<root> for a
	// local sandbox tree or s3://<bucket>[/<prefix>] for object storage.
	StoreURL string
	// VideoRoot/ImageRoot/AudioRoot override the per-namespace directories
	// derived from a disk StoreURL.
	VideoRoot string
	ImageRoot string
	AudioRoot string

	// S3 connection details, used when StoreURL has the s3 scheme.
	S3Endpoint       string
	S3Region         string
	S3Insecure       bool
	S3ForcePathStyle bool

	// DisableImageAPI removes the image generation tool surface.
	DisableImageAPI bool

	// Transport is stdio or http; Listen and MCPPath apply to http.
	Transport string
	Listen    string
	MCPPath   string

	// WorkerPoolSize bounds concurrent CPU-bound transforms. Zero means the
	// number of CPUs.
	WorkerPoolSize int
	// ChunkMaxBytes caps a caller-requested transfer chunk size. Zero keeps
	// the built-in cap.
	ChunkMaxBytes int64

	// OTLPEndpoint enables trace export when set: host[:port] for insecure
	// gRPC, or a grpc(s):// / http(s):// URL.
	OTLPEndpoint string
	// MetricsListen serves prometheus metrics on /metrics when set.
	MetricsListen string
	// PprofListen serves the pprof handlers when set.
	PprofListen string
	// EnableProfilingMetrics adds Go runtime metrics to the meter provider.
	// Requires MetricsListen.
	EnableProfilingMetrics bool
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBase
	}
	if strings.TrimSpace(c.StoreURL) == "" {
		c.StoreURL = DefaultStoreURL
	}
	if strings.TrimSpace(c.Transport) == "" {
		c.Transport = DefaultTransport
	}
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if strings.TrimSpace(c.MCPPath) == "" {
		c.MCPPath = DefaultMCPPath
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = runtime.NumCPU()
	}
}

// Validate checks the configuration for startup-fatal problems.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("config: api key is required")
	}
	u, err := url.Parse(c.StoreURL)
	if err != nil {
		return fmt.Errorf("config: parse store URL: %w", err)
	}
	switch u.Scheme {
	case "disk":
		if diskRoot(u) == "" {
			return fmt.Errorf("config: disk store URL needs a root path")
		}
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("config: s3 store URL needs a bucket")
		}
	default:
		return fmt.Errorf("config: unsupported store scheme %q (expected disk or s3)", u.Scheme)
	}
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: transport must be stdio or http, got %q", c.Transport)
	}
	return nil
}

// PathRoots maps each sandbox namespace to its directory for a disk store:
// videos/, images/ and audio/ under the store root, unless overridden
// per namespace.
func (c Config) PathRoots() (map[api.PathType]string, error) {
	u, err := url.Parse(c.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("config: parse store URL: %w", err)
	}
	if u.Scheme != "disk" {
		return nil, fmt.Errorf("config: path roots only apply to disk stores")
	}
	base := diskRoot(u)
	roots := map[api.PathType]string{
		api.PathTypeVideo: filepath.Join(base, "videos"),
		api.PathTypeImage: filepath.Join(base, "images"),
		api.PathTypeAudio: filepath.Join(base, "audio"),
	}
	if c.VideoRoot != "" {
		roots[api.PathTypeVideo] = c.VideoRoot
	}
	if c.ImageRoot != "" {
		roots[api.PathTypeImage] = c.ImageRoot
	}
	if c.AudioRoot != "" {
		roots[api.PathTypeAudio] = c.AudioRoot
	}
	return roots, nil
}

// diskRoot extracts the filesystem path from a disk:// URL. Both
// disk:///abs/path and disk://relative/path parse usefully.
func diskRoot(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	if u.Host != "" {
		return filepath.Join(u.Host, filepath.FromSlash(strings.TrimPrefix(u.Path, "/")))
	}
	return filepath.FromSlash(u.Path)
}

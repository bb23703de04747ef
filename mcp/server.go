// Package mcp exposes mediad's media-generation, storage and transfer
// operations as MCP tools over stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/mediad"
	"pkt.systems/mediad/internal/imaging"
	"pkt.systems/mediad/internal/jobs"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/mediad/internal/transfer"
	"pkt.systems/pslog"
)

// Config controls the MCP server runtime behavior.
type Config struct {
	// Transport is stdio or http.
	Transport string
	// Listen and MCPPath apply to the http transport.
	Listen  string
	MCPPath string
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
}

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config       Config
	Controller   *jobs.Controller
	Storage      storage.Backend
	Transfer     *transfer.Server
	Preparer     *imaging.Preparer
	Capabilities mediad.Capabilities
	Logger       pslog.Logger
}

type server struct {
	cfg          Config
	caps         mediad.Capabilities
	controller   *jobs.Controller
	store        storage.Backend
	transfer     *transfer.Server
	preparer     *imaging.Preparer
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolLog      pslog.Logger
	mcpHTTPPath  string
}

// NewServer constructs the mediad MCP facade service.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if req.Controller == nil {
		return nil, fmt.Errorf("mcp: job controller is required")
	}
	if req.Storage == nil {
		return nil, fmt.Errorf("mcp: storage backend is required")
	}
	if req.Transfer == nil {
		return nil, fmt.Errorf("mcp: transfer server is required")
	}
	if req.Preparer == nil {
		return nil, fmt.Errorf("mcp: reference preparer is required")
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "mediad")
	}

	return &server{
		cfg:          cfg,
		caps:         req.Capabilities,
		controller:   req.Controller,
		store:        req.Storage,
		transfer:     req.Transfer,
		preparer:     req.Preparer,
		logger:       logger,
		lifecycleLog: loggingutil.WithSubsystem(logger, "server.lifecycle.mcp"),
		toolLog:      loggingutil.WithSubsystem(logger, "mcp.tools"),
		mcpHTTPPath:  cleanHTTPPath(cfg.MCPPath),
	}, nil
}

func (s *server) Run(ctx context.Context) error {
	mcpSrv := s.buildMCPServer()
	if s.cfg.Transport == "stdio" {
		s.lifecycleLog.Info("starting mediad MCP server", "transport", "stdio")
		return mcpSrv.Run(ctx, &mcpsdk.StdioTransport{})
	}

	s.lifecycleLog.Info("starting mediad MCP server",
		"transport", "http", "listen", s.cfg.Listen, "mcp_path", s.mcpHTTPPath)
	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)
	mux := http.NewServeMux()
	// otelhttp records spans and request metrics against the globally
	// configured providers; without telemetry it is pass-through.
	mux.Handle(s.mcpHTTPPath, otelhttp.NewHandler(streamable, "mcp"))
	httpServer := &http.Server{Addr: s.cfg.Listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) buildMCPServer() *mcpsdk.Server {
	mcpSrv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "mediad",
		Version: "0.1.0",
	}, &mcpsdk.ServerOptions{
		Instructions: defaultServerInstructions(s.caps),
	})
	s.registerTools(mcpSrv)
	return mcpSrv
}

// registerTools binds the tool surface. The capability set was fixed at
// startup; tools for disabled capabilities are simply never registered.
func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.caps)
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	if s.caps.Video {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{
			Name:        toolVideoCreate,
			Description: desc(toolVideoCreate),
		}, withStructuredToolErrors(s.handleVideoCreateTool))
		mcpsdk.AddTool(srv, &mcpsdk.Tool{
			Name:        toolVideoRemix,
			Description: desc(toolVideoRemix),
		}, withStructuredToolErrors(s.handleVideoRemixTool))
	}
	if s.caps.Image {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{
			Name:        toolImageCreate,
			Description: desc(toolImageCreate),
		}, withStructuredToolErrors(s.handleImageCreateTool))
	}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolJobStatus,
		Description: desc(toolJobStatus),
	}, withStructuredToolErrors(s.handleJobStatusTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolJobDownload,
		Description: desc(toolJobDownload),
	}, withStructuredToolErrors(s.handleJobDownloadTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolJobDelete,
		Description: desc(toolJobDelete),
	}, withStructuredToolErrors(s.handleJobDeleteTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolJobList,
		Description: desc(toolJobList),
	}, withStructuredToolErrors(s.handleJobListTool))

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolMediaView,
		Description: desc(toolMediaView),
	}, withStructuredToolErrors(s.handleMediaViewTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolMediaGetData,
		Description: desc(toolMediaGetData),
	}, withStructuredToolErrors(s.handleMediaGetDataTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolMediaListLocal,
		Description: desc(toolMediaListLocal),
	}, withStructuredToolErrors(s.handleMediaListLocalTool))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolMediaPrepareReference,
		Description: desc(toolMediaPrepareReference),
	}, withStructuredToolErrors(s.handleMediaPrepareReferenceTool))
}

func defaultServerInstructions(caps mediad.Capabilities) string {
	lines := []string{
		"mediad MCP server operating manual:",
		"- Generation workflow: mediad.video.create (or mediad.image.create) -> poll mediad.job.status until status is completed or failed -> mediad.job.download to persist the artifact.",
		"- Jobs are asynchronous; status moves queued -> in_progress -> completed|failed and progress never decreases. Failed jobs stay failed.",
		"- Polling cadence is yours: on a retryable error back off and try again; nothing is retried server-side.",
		"- Artifact transfer: mediad.media.get_data returns base64 chunks with offset/total_size/is_last. Start at offset 0 and advance by chunk_size until is_last.",
		"- Filenames are flat names inside a path_type namespace (video, image, audio); path separators and '..' are rejected.",
		"- Reference images for video jobs must already exist in the image namespace (jpg, jpeg, png or webp); mediad.media.prepare_reference resizes one to the exact video frame size first.",
	}
	if !caps.Image {
		lines = append(lines, "- Image generation is disabled on this server.")
	}
	if caps.RemoteStorage {
		lines = append(lines, "- Artifacts are stored in a remote object store; display paths are s3:// URIs.")
	}
	return strings.Join(lines, "\n")
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Transport) == "" {
		cfg.Transport = "stdio"
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:8632"
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("mcp: transport must be stdio or http, got %q", cfg.Transport)
	}
	if cfg.Transport == "http" && strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("mcp: listen address required for http transport")
	}
	return nil
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

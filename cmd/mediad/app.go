package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/mediad"
	"pkt.systems/mediad/internal/imaging"
	"pkt.systems/mediad/internal/jobs"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/transfer"
	"pkt.systems/mediad/internal/workpool"
	mediadmcp "pkt.systems/mediad/mcp"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("MEDIAD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "mediad")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			loggingutil.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg mediad.Config

	cmd := &cobra.Command{
		Use:           "mediad",
		Short:         "mediad is an MCP server for AI media generation with sandboxed artifact storage and chunked transfer",
		SilenceErrors: true,
		Example: `
  # Serve over stdio with artifacts under ./media (expects MEDIAD_API_KEY or OPENAI_API_KEY)
  mediad

  # Streamable HTTP transport
  mediad --transport http --listen 127.0.0.1:8632 --mcp-path /mcp

  # Keep artifacts in MinIO (expects MINIO_ACCESS_KEY / MINIO_SECRET_KEY or AWS credentials)
  mediad --store s3://mediad-artifacts/media --s3-endpoint localhost:9000 --s3-insecure --s3-force-path-style

  # Video generation only
  mediad --disable-image-api
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := loggingutil.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true
			loggingutil.WithSubsystem(logger, "server.lifecycle.init").Info(
				"welcome to mediad",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			if err := bindConfig(&cfg); err != nil {
				return err
			}
			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
			}

			return runServer(ctx, cfg, logger)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")

	flags := cmd.Flags()
	flags.String("api-base", mediad.DefaultAPIBase, "generation API base URL")
	flags.String("api-key", "", "generation API key (or MEDIAD_API_KEY / OPENAI_API_KEY)")
	flags.String("store", mediad.DefaultStoreURL, "artifact store URL (disk://<root> or s3://bucket[/prefix])")
	flags.String("video-root", "", "override directory for the video namespace (disk store only)")
	flags.String("image-root", "", "override directory for the image namespace (disk store only)")
	flags.String("audio-root", "", "override directory for the audio namespace (disk store only)")
	flags.String("s3-endpoint", "", "S3 endpoint host[:port] (blank uses AWS)")
	flags.String("s3-region", "", "S3 region")
	flags.Bool("s3-insecure", false, "use plain HTTP towards the S3 endpoint")
	flags.Bool("s3-force-path-style", false, "force path-style S3 bucket addressing (MinIO)")
	flags.Bool("disable-image-api", false, "disable the image generation tool surface")
	flags.String("transport", mediad.DefaultTransport, "MCP transport (stdio or http)")
	flags.StringP("listen", "l", mediad.DefaultListen, "listen address for the http transport")
	flags.String("mcp-path", mediad.DefaultMCPPath, "HTTP path for the MCP streamable endpoint")
	flags.Int("worker-pool-size", 0, "concurrent encoding workers (0 uses the CPU count)")
	chunkMaxDefault := humanizeBytes(transfer.MaxChunkBytes)
	flags.String("chunk-max", chunkMaxDefault, "maximum transfer chunk size before base64 encoding")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317; empty disables tracing)")
	flags.String("metrics-listen", "", "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		var flag *pflag.Flag
		if flag = flags.Lookup(name); flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		mustBindFlag(name, flag)
	}

	viper.SetEnvPrefix("MEDIAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	names := []string{
		"config",
		"api-base", "api-key", "store", "video-root", "image-root", "audio-root",
		"s3-endpoint", "s3-region", "s3-insecure", "s3-force-path-style",
		"disable-image-api", "transport", "listen", "mcp-path",
		"worker-pool-size", "chunk-max",
		"otlp-endpoint", "metrics-listen", "pprof-listen", "enable-profiling-metrics",
		"log-level",
	}
	for _, name := range names {
		bindFlag(name)
	}

	cmd.AddCommand(newVersionCommand())

	return cmd
}

func mustBindFlag(name string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag %q not found", name))
	}
	if err := viper.BindPFlag(name, flag); err != nil {
		panic(err)
	}
}

func bindConfig(cfg *mediad.Config) error {
	cfg.APIBaseURL = strings.TrimSpace(viper.GetString("api-base"))
	cfg.APIKey = strings.TrimSpace(viper.GetString("api-key"))
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	cfg.StoreURL = strings.TrimSpace(viper.GetString("store"))
	cfg.VideoRoot = strings.TrimSpace(viper.GetString("video-root"))
	cfg.ImageRoot = strings.TrimSpace(viper.GetString("image-root"))
	cfg.AudioRoot = strings.TrimSpace(viper.GetString("audio-root"))
	cfg.S3Endpoint = strings.TrimSpace(viper.GetString("s3-endpoint"))
	cfg.S3Region = strings.TrimSpace(viper.GetString("s3-region"))
	cfg.S3Insecure = viper.GetBool("s3-insecure")
	cfg.S3ForcePathStyle = viper.GetBool("s3-force-path-style")
	cfg.DisableImageAPI = viper.GetBool("disable-image-api")
	cfg.Transport = strings.TrimSpace(viper.GetString("transport"))
	cfg.Listen = strings.TrimSpace(viper.GetString("listen"))
	cfg.MCPPath = strings.TrimSpace(viper.GetString("mcp-path"))
	cfg.WorkerPoolSize = viper.GetInt("worker-pool-size")
	cfg.OTLPEndpoint = strings.TrimSpace(viper.GetString("otlp-endpoint"))
	cfg.MetricsListen = strings.TrimSpace(viper.GetString("metrics-listen"))
	cfg.PprofListen = strings.TrimSpace(viper.GetString("pprof-listen"))
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	if chunkMax := strings.TrimSpace(viper.GetString("chunk-max")); chunkMax != "" {
		size, err := humanize.ParseBytes(chunkMax)
		if err != nil {
			return fmt.Errorf("parse chunk-max: %w", err)
		}
		cfg.ChunkMaxBytes = int64(size)
	}
	cfg.ApplyDefaults()
	return nil
}

func runServer(ctx context.Context, cfg mediad.Config, logger pslog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	caps := mediad.DetectCapabilities(cfg)

	telemetry, err := mediad.SetupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			loggingutil.WithSubsystem(logger, "telemetry").Error("shutdown failed", "error", err)
		}
	}()

	store, err := mediad.OpenBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			loggingutil.WithSubsystem(logger, "storage").Error("close failed", "error", err)
		}
	}()

	client, err := jobs.NewHTTPClient(jobs.HTTPClientConfig{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	controller, err := jobs.NewController(jobs.ControllerConfig{
		Client:  client,
		Storage: store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	pool := workpool.New(cfg.WorkerPoolSize)
	transferSrv, err := transfer.NewServer(transfer.ServerConfig{
		Storage:       store,
		Pool:          pool,
		MaxChunkBytes: cfg.ChunkMaxBytes,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	preparer, err := imaging.NewPreparer(imaging.PreparerConfig{
		Storage: store,
		Pool:    pool,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	svc, err := mediadmcp.NewServer(mediadmcp.NewServerRequest{
		Config: mediadmcp.Config{
			Transport: cfg.Transport,
			Listen:    cfg.Listen,
			MCPPath:   cfg.MCPPath,
		},
		Controller:   controller,
		Storage:      store,
		Transfer:     transferSrv,
		Preparer:     preparer,
		Capabilities: caps,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

// Package transfer implements the stateless chunked artifact protocol. The
// server keeps no per-client cursor: every chunk response carries enough
// information (offset, actual size, total, is_last) for the caller to drive
// the next request, and concatenating decoded chunks from offset zero
// reproduces the artifact byte for byte.
package transfer

import (
	"context"
	"encoding/base64"
	"fmt"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/mediad/internal/workpool"
	"pkt.systems/pslog"
)

// DefaultChunkBytes is the raw chunk size before base64. 2 MiB inflates to
// roughly 2.7 MiB encoded, leaving headroom under typical MCP message
// ceilings.
const DefaultChunkBytes = 2 * 1024 * 1024

// MaxChunkBytes caps a caller-requested chunk size.
const MaxChunkBytes = 8 * 1024 * 1024

// ServerConfig wires the chunk server.
type ServerConfig struct {
	Storage storage.Backend
	Pool    *workpool.Pool
	// MaxChunkBytes overrides the request-size cap. Zero means MaxChunkBytes.
	MaxChunkBytes int64
	Logger        pslog.Logger
}

// Server serves artifact slices. Safe for concurrent use.
type Server struct {
	store    storage.Backend
	pool     *workpool.Pool
	maxChunk int64
	logger   pslog.Logger
	metrics  *transferMetrics
}

// NewServer validates the wiring and returns the server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("transfer: storage backend is required")
	}
	pool := cfg.Pool
	if pool == nil {
		pool = workpool.New(0)
	}
	maxChunk := cfg.MaxChunkBytes
	if maxChunk <= 0 {
		maxChunk = MaxChunkBytes
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "transfer")
	return &Server{
		store:    cfg.Storage,
		pool:     pool,
		maxChunk: maxChunk,
		logger:   logger,
		metrics:  newTransferMetrics(logger),
	}, nil
}

// FetchChunk returns one slice of the artifact starting at offset. A size of
// zero selects the default chunk size; requests above the cap are clamped,
// never rejected. Offsets past the end are OutOfRange; an offset exactly at
// the end yields the empty final chunk, which only occurs for the degenerate
// zero-byte artifact when chunks are fetched per the protocol.
func (s *Server) FetchChunk(ctx context.Context, pathType api.PathType, filename string, offset, size int64) (api.ChunkResponse, error) {
	if offset < 0 {
		return api.ChunkResponse{}, fmt.Errorf("transfer: negative offset %d: %w", offset, api.ErrInvalidParameter)
	}
	if size < 0 {
		return api.ChunkResponse{}, fmt.Errorf("transfer: negative chunk size %d: %w", size, api.ErrInvalidParameter)
	}
	if size == 0 {
		size = DefaultChunkBytes
	}
	if size > s.maxChunk {
		size = s.maxChunk
	}

	data, err := s.store.Read(ctx, pathType, filename)
	if err != nil {
		return api.ChunkResponse{}, err
	}
	total := int64(len(data))
	if offset > total {
		return api.ChunkResponse{}, fmt.Errorf("transfer: offset %d beyond artifact size %d: %w", offset, total, api.ErrOutOfRange)
	}

	end := offset + size
	if end > total {
		end = total
	}
	chunk := data[offset:end]

	// Encoding multi-megabyte chunks is the CPU-heavy part; bound it.
	var encoded string
	if err := s.pool.Do(ctx, func() error {
		encoded = base64.StdEncoding.EncodeToString(chunk)
		return nil
	}); err != nil {
		return api.ChunkResponse{}, err
	}

	resp := api.ChunkResponse{
		Data:      encoded,
		Offset:    offset,
		ChunkSize: int64(len(chunk)),
		TotalSize: total,
		IsLast:    end == total,
		MimeType:  storage.MimeType(filename, pathType),
	}
	s.logger.Debug("chunk served",
		"path_type", string(pathType), "filename", filename,
		"offset", offset, "chunk_size", resp.ChunkSize, "total", total, "is_last", resp.IsLast)
	s.metrics.recordChunk(ctx, pathType, resp.ChunkSize, resp.IsLast)
	return resp, nil
}

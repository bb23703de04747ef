package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"pkt.systems/mediad/api"
)

// ChunkFetcher is the server-side surface the assembler drives. *Server
// implements it directly; tests and the MCP client wrap their transports.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, pathType api.PathType, filename string, offset, size int64) (api.ChunkResponse, error)
}

// Assembler reconstructs an artifact by fetching chunks from offset zero
// until is_last. The session is ephemeral; nothing persists across calls and
// any error aborts the transfer.
type Assembler struct {
	fetcher    ChunkFetcher
	chunkBytes int64
	onProgress func(done, total int64)
}

// NewAssembler returns an assembler requesting chunkBytes per fetch (zero
// selects the server default). onProgress, when non-nil, is invoked after
// every chunk with decoded bytes so far and the declared total.
func NewAssembler(fetcher ChunkFetcher, chunkBytes int64, onProgress func(done, total int64)) *Assembler {
	return &Assembler{fetcher: fetcher, chunkBytes: chunkBytes, onProgress: onProgress}
}

// Fetch downloads and verifies the whole artifact.
func (a *Assembler) Fetch(ctx context.Context, pathType api.PathType, filename string) ([]byte, error) {
	var (
		buf    bytes.Buffer
		offset int64
		total  int64 = -1
	)
	for {
		resp, err := a.fetcher.FetchChunk(ctx, pathType, filename, offset, a.chunkBytes)
		if err != nil {
			return nil, err
		}
		if resp.Offset != offset {
			return nil, fmt.Errorf("transfer: server returned offset %d, expected %d", resp.Offset, offset)
		}
		if total >= 0 && resp.TotalSize != total {
			return nil, fmt.Errorf("transfer: total size changed mid-transfer (%d -> %d)", total, resp.TotalSize)
		}
		total = resp.TotalSize

		decoded, err := base64.StdEncoding.DecodeString(resp.Data)
		if err != nil {
			return nil, fmt.Errorf("transfer: decode chunk at offset %d: %w", offset, err)
		}
		if int64(len(decoded)) != resp.ChunkSize {
			return nil, fmt.Errorf("transfer: chunk at offset %d decoded to %d bytes, header says %d", offset, len(decoded), resp.ChunkSize)
		}
		buf.Write(decoded)
		offset += resp.ChunkSize
		if a.onProgress != nil {
			a.onProgress(offset, total)
		}
		if resp.IsLast {
			if offset != total {
				return nil, fmt.Errorf("transfer: final chunk ends at %d, total is %d", offset, total)
			}
			return buf.Bytes(), nil
		}
		if resp.ChunkSize == 0 {
			return nil, fmt.Errorf("transfer: empty non-final chunk at offset %d", offset)
		}
	}
}

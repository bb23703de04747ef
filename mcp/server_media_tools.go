package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/imaging"
	"pkt.systems/mediad/internal/jobs"
	"pkt.systems/mediad/internal/storage"
)

func parsePathTypeInput(raw string) (api.PathType, error) {
	pathType, ok := api.ParsePathType(raw)
	if !ok {
		return "", fmt.Errorf("mcp: path_type %q must be video, image or audio: %w", raw, api.ErrInvalidParameter)
	}
	return pathType, nil
}

type mediaViewToolInput struct {
	PathType string `json:"path_type" jsonschema:"Namespace of the artifact: video, image or audio"`
	Filename string `json:"filename" jsonschema:"Artifact filename (flat, no directories)"`
}

type mediaViewToolOutput struct {
	PathType     string `json:"path_type"`
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
	ModifiedUnix int64  `json:"modified_unix,omitempty"`
	MimeType     string `json:"mime_type"`
	DisplayPath  string `json:"display_path,omitempty"`
}

func (s *server) handleMediaViewTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input mediaViewToolInput) (*mcpsdk.CallToolResult, mediaViewToolOutput, error) {
	pathType, err := parsePathTypeInput(input.PathType)
	if err != nil {
		return nil, mediaViewToolOutput{}, err
	}
	info, err := s.store.Stat(ctx, pathType, input.Filename)
	if err != nil {
		return nil, mediaViewToolOutput{}, err
	}
	display, err := s.store.DisplayPath(pathType, info.Name)
	if err != nil {
		return nil, mediaViewToolOutput{}, err
	}
	return nil, mediaViewToolOutput{
		PathType:     string(pathType),
		Filename:     info.Name,
		SizeBytes:    info.SizeBytes,
		ModifiedUnix: info.ModifiedUnix,
		MimeType:     storage.MimeType(info.Name, pathType),
		DisplayPath:  display,
	}, nil
}

type mediaGetDataToolInput struct {
	PathType  string `json:"path_type" jsonschema:"Namespace of the artifact: video, image or audio"`
	Filename  string `json:"filename" jsonschema:"Artifact filename (flat, no directories)"`
	Offset    int64  `json:"offset,omitempty" jsonschema:"Byte offset to read from (default 0)"`
	ChunkSize int64  `json:"chunk_size,omitempty" jsonschema:"Raw bytes per chunk before base64 (default 2097152; oversized requests are clamped)"`
}

type mediaGetDataToolOutput struct {
	Data      string `json:"data"`
	Offset    int64  `json:"offset"`
	ChunkSize int64  `json:"chunk_size"`
	TotalSize int64  `json:"total_size"`
	IsLast    bool   `json:"is_last"`
	MimeType  string `json:"mime_type"`
}

func (s *server) handleMediaGetDataTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input mediaGetDataToolInput) (*mcpsdk.CallToolResult, mediaGetDataToolOutput, error) {
	pathType, err := parsePathTypeInput(input.PathType)
	if err != nil {
		return nil, mediaGetDataToolOutput{}, err
	}
	chunk, err := s.transfer.FetchChunk(ctx, pathType, input.Filename, input.Offset, input.ChunkSize)
	if err != nil {
		return nil, mediaGetDataToolOutput{}, err
	}
	return nil, mediaGetDataToolOutput{
		Data:      chunk.Data,
		Offset:    chunk.Offset,
		ChunkSize: chunk.ChunkSize,
		TotalSize: chunk.TotalSize,
		IsLast:    chunk.IsLast,
		MimeType:  chunk.MimeType,
	}, nil
}

type mediaListLocalToolInput struct {
	PathType   string   `json:"path_type" jsonschema:"Namespace to list: video, image or audio"`
	Pattern    string   `json:"pattern,omitempty" jsonschema:"Glob pattern to filter filenames, e.g. sora*"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"Extension filter, e.g. [\"mp4\",\"webm\"]"`
	SortBy     string   `json:"sort_by,omitempty" jsonschema:"Sort criterion: name, size or modified (default modified)"`
	Order      string   `json:"order,omitempty" jsonschema:"Sort order: asc or desc (default desc)"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Maximum results (default 50)"`
}

type mediaFileEntry struct {
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
	ModifiedUnix int64  `json:"modified_unix,omitempty"`
	MimeType     string `json:"mime_type"`
}

type mediaListLocalToolOutput struct {
	PathType string           `json:"path_type"`
	Files    []mediaFileEntry `json:"files"`
}

const defaultListLocalLimit = 50

func (s *server) handleMediaListLocalTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input mediaListLocalToolInput) (*mcpsdk.CallToolResult, mediaListLocalToolOutput, error) {
	pathType, err := parsePathTypeInput(input.PathType)
	if err != nil {
		return nil, mediaListLocalToolOutput{}, err
	}
	sortKey := storage.SortByModified
	switch strings.ToLower(strings.TrimSpace(input.SortBy)) {
	case "", "modified":
	case "name":
		sortKey = storage.SortByName
	case "size":
		sortKey = storage.SortBySize
	default:
		return nil, mediaListLocalToolOutput{}, fmt.Errorf("mcp: sort_by %q must be name, size or modified: %w", input.SortBy, api.ErrInvalidParameter)
	}
	descending := true
	switch strings.ToLower(strings.TrimSpace(input.Order)) {
	case "", "desc":
	case "asc":
		descending = false
	default:
		return nil, mediaListLocalToolOutput{}, fmt.Errorf("mcp: order %q must be asc or desc: %w", input.Order, api.ErrInvalidParameter)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLocalLimit
	}

	infos, err := s.store.List(ctx, pathType, strings.TrimSpace(input.Pattern), input.Extensions)
	if err != nil {
		return nil, mediaListLocalToolOutput{}, err
	}
	storage.SortFileInfos(infos, sortKey, descending)
	if len(infos) > limit {
		infos = infos[:limit]
	}

	out := mediaListLocalToolOutput{PathType: string(pathType), Files: make([]mediaFileEntry, 0, len(infos))}
	for _, info := range infos {
		out.Files = append(out.Files, mediaFileEntry{
			Filename:     info.Name,
			SizeBytes:    info.SizeBytes,
			ModifiedUnix: info.ModifiedUnix,
			MimeType:     storage.MimeType(info.Name, pathType),
		})
	}
	return nil, out, nil
}

type mediaPrepareReferenceToolInput struct {
	InputFilename  string `json:"input_filename" jsonschema:"Source image in the image namespace (jpg, jpeg, png or webp)"`
	TargetSize     string `json:"target_size" jsonschema:"Video frame size to produce: 720x1280, 1280x720, 1024x1792 or 1792x1024"`
	OutputFilename string `json:"output_filename,omitempty" jsonschema:"Output filename (default <input stem>_<target_size>.png)"`
	ResizeMode     string `json:"resize_mode,omitempty" jsonschema:"crop (cover and trim), pad (fit with black bars) or rescale (stretch); default crop"`
}

type mediaPrepareReferenceToolOutput struct {
	OutputFilename string `json:"output_filename"`
	DisplayPath    string `json:"display_path,omitempty"`
	OriginalSize   string `json:"original_size"`
	TargetSize     string `json:"target_size"`
	ResizeMode     string `json:"resize_mode"`
}

func (s *server) handleMediaPrepareReferenceTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input mediaPrepareReferenceToolInput) (*mcpsdk.CallToolResult, mediaPrepareReferenceToolOutput, error) {
	if !jobs.ValidVideoSize(strings.TrimSpace(input.TargetSize)) {
		return nil, mediaPrepareReferenceToolOutput{}, fmt.Errorf("mcp: target_size %q must be 720x1280, 1280x720, 1024x1792 or 1792x1024: %w", input.TargetSize, api.ErrInvalidParameter)
	}
	res, err := s.preparer.PrepareReference(ctx, imaging.PrepareRequest{
		InputFilename:  input.InputFilename,
		TargetSize:     strings.TrimSpace(input.TargetSize),
		OutputFilename: input.OutputFilename,
		Mode:           input.ResizeMode,
	})
	if err != nil {
		return nil, mediaPrepareReferenceToolOutput{}, err
	}
	return nil, mediaPrepareReferenceToolOutput{
		OutputFilename: res.OutputFilename,
		DisplayPath:    res.DisplayPath,
		OriginalSize:   fmt.Sprintf("%dx%d", res.OriginalWidth, res.OriginalHeight),
		TargetSize:     fmt.Sprintf("%dx%d", res.TargetWidth, res.TargetHeight),
		ResizeMode:     string(res.Mode),
	}, nil
}

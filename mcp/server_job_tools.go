package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mediad/api"
)

type jobStatusToolInput struct {
	JobID string `json:"job_id" jsonschema:"Job ID from a create or remix call"`
}

func (s *server) handleJobStatusTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input jobStatusToolInput) (*mcpsdk.CallToolResult, jobToolOutput, error) {
	job, err := s.controller.Poll(ctx, strings.TrimSpace(input.JobID))
	if err != nil {
		return nil, jobToolOutput{}, err
	}
	return nil, jobOutput(job), nil
}

type jobDownloadToolInput struct {
	JobID    string `json:"job_id" jsonschema:"Job ID of a completed job"`
	Variant  string `json:"variant,omitempty" jsonschema:"Video asset variant: video (default), thumbnail or spritesheet"`
	Filename string `json:"filename,omitempty" jsonschema:"Target filename (flat, no directories); auto-generated when omitted"`
}

type jobDownloadToolOutput struct {
	PathType    string `json:"path_type"`
	Filename    string `json:"filename"`
	DisplayPath string `json:"display_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type,omitempty"`
	Variant     string `json:"variant"`
}

func (s *server) handleJobDownloadTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input jobDownloadToolInput) (*mcpsdk.CallToolResult, jobDownloadToolOutput, error) {
	variant, ok := api.ParseDownloadVariant(input.Variant)
	if !ok {
		return nil, jobDownloadToolOutput{}, fmt.Errorf("mcp: variant %q must be video, thumbnail or spritesheet: %w", input.Variant, api.ErrInvalidParameter)
	}
	artifact, err := s.controller.Materialize(ctx, strings.TrimSpace(input.JobID), variant, strings.TrimSpace(input.Filename))
	if err != nil {
		return nil, jobDownloadToolOutput{}, err
	}
	return nil, jobDownloadToolOutput{
		PathType:    string(artifact.PathType),
		Filename:    artifact.Filename,
		DisplayPath: artifact.DisplayPath,
		SizeBytes:   artifact.SizeBytes,
		MimeType:    artifact.MimeType,
		Variant:     string(variant),
	}, nil
}

type jobDeleteToolInput struct {
	JobID string `json:"job_id" jsonschema:"Job ID to delete from the remote service"`
}

type jobDeleteToolOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *server) handleJobDeleteTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input jobDeleteToolInput) (*mcpsdk.CallToolResult, jobDeleteToolOutput, error) {
	id := strings.TrimSpace(input.JobID)
	if err := s.controller.Delete(ctx, id); err != nil {
		return nil, jobDeleteToolOutput{}, err
	}
	return nil, jobDeleteToolOutput{ID: id, Deleted: true}, nil
}

type jobListToolInput struct {
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum jobs to return (default 20, max 100)"`
	After string `json:"after,omitempty" jsonschema:"Pagination cursor: last job ID of the previous page"`
	Order string `json:"order,omitempty" jsonschema:"Sort order by creation time: desc (default) or asc"`
}

type jobListToolOutput struct {
	Jobs    []jobToolOutput `json:"jobs"`
	HasMore bool            `json:"has_more"`
	Last    string          `json:"last,omitempty"`
}

func (s *server) handleJobListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input jobListToolInput) (*mcpsdk.CallToolResult, jobListToolOutput, error) {
	page, err := s.controller.List(ctx, input.Limit, strings.TrimSpace(input.After), strings.TrimSpace(input.Order))
	if err != nil {
		return nil, jobListToolOutput{}, err
	}
	out := jobListToolOutput{HasMore: page.HasMore, Last: page.Last, Jobs: make([]jobToolOutput, 0, len(page.Jobs))}
	for _, job := range page.Jobs {
		out.Jobs = append(out.Jobs, jobOutput(job))
	}
	return nil, out, nil
}

package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/jobs"
)

// jobToolOutput is the shared job document returned by every tool that
// creates or inspects a job.
type jobToolOutput struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Model         string `json:"model,omitempty"`
	Size          string `json:"size,omitempty"`
	Seconds       string `json:"seconds,omitempty"`
	CreatedAtUnix int64  `json:"created_at_unix,omitempty"`
	RemixedFromID string `json:"remixed_from_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func jobOutput(job api.Job) jobToolOutput {
	return jobToolOutput{
		ID:            job.ID,
		Kind:          string(job.Kind),
		Status:        string(job.Status),
		Progress:      job.Progress,
		Model:         job.Model,
		Size:          job.Size,
		Seconds:       job.Seconds,
		CreatedAtUnix: job.CreatedAtUnix,
		RemixedFromID: job.RemixedFromID,
		FailureReason: job.FailureReason,
	}
}

type videoCreateToolInput struct {
	Prompt                 string `json:"prompt" jsonschema:"Text description of the video content"`
	Model                  string `json:"model,omitempty" jsonschema:"Video model: sora-2 (default) or sora-2-pro"`
	Seconds                string `json:"seconds,omitempty" jsonschema:"Clip duration in seconds: 4, 8 or 12"`
	Size                   string `json:"size,omitempty" jsonschema:"Resolution WxH: 720x1280, 1280x720, 1024x1792 or 1792x1024 (the last two need sora-2-pro)"`
	InputReferenceFilename string `json:"input_reference_filename,omitempty" jsonschema:"Filename of a reference image already stored in the image namespace"`
}

func (s *server) handleVideoCreateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input videoCreateToolInput) (*mcpsdk.CallToolResult, jobToolOutput, error) {
	job, err := s.controller.Submit(ctx, jobs.VideoParams{
		Prompt:         input.Prompt,
		Model:          strings.TrimSpace(input.Model),
		Seconds:        strings.TrimSpace(input.Seconds),
		Size:           strings.TrimSpace(input.Size),
		ReferenceImage: strings.TrimSpace(input.InputReferenceFilename),
	})
	if err != nil {
		return nil, jobToolOutput{}, err
	}
	return nil, jobOutput(job), nil
}

type videoRemixToolInput struct {
	VideoID string `json:"video_id" jsonschema:"ID of the completed video job to remix"`
	Prompt  string `json:"prompt" jsonschema:"New prompt guiding the remix"`
}

func (s *server) handleVideoRemixTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input videoRemixToolInput) (*mcpsdk.CallToolResult, jobToolOutput, error) {
	job, err := s.controller.Remix(ctx, strings.TrimSpace(input.VideoID), input.Prompt)
	if err != nil {
		return nil, jobToolOutput{}, err
	}
	return nil, jobOutput(job), nil
}

type imageCreateToolInput struct {
	Prompt       string `json:"prompt" jsonschema:"Text description of the image to generate"`
	Model        string `json:"model,omitempty" jsonschema:"Image model: gpt-image-1 or gpt-image-1.5 (default)"`
	Size         string `json:"size,omitempty" jsonschema:"Image dimensions: auto (default), 1024x1024, 1536x1024 or 1024x1536"`
	Quality      string `json:"quality,omitempty" jsonschema:"Generation quality: auto (default), low, medium or high"`
	Background   string `json:"background,omitempty" jsonschema:"Background type: auto (default), transparent or opaque"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"Output format: png (default), jpeg or webp"`
}

func (s *server) handleImageCreateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input imageCreateToolInput) (*mcpsdk.CallToolResult, jobToolOutput, error) {
	job, err := s.controller.Submit(ctx, jobs.ImageParams{
		Prompt:       input.Prompt,
		Model:        strings.TrimSpace(input.Model),
		Size:         strings.TrimSpace(input.Size),
		Quality:      strings.TrimSpace(input.Quality),
		Background:   strings.TrimSpace(input.Background),
		OutputFormat: strings.TrimSpace(input.OutputFormat),
	})
	if err != nil {
		return nil, jobToolOutput{}, err
	}
	return nil, jobOutput(job), nil
}

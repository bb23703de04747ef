package mcp

import (
	"fmt"
	"strings"

	"pkt.systems/mediad"
	"pkt.systems/mediad/internal/transfer"
)

const (
	toolVideoCreate           = "mediad.video.create"
	toolVideoRemix            = "mediad.video.remix"
	toolImageCreate           = "mediad.image.create"
	toolJobStatus             = "mediad.job.status"
	toolJobDownload           = "mediad.job.download"
	toolJobDelete             = "mediad.job.delete"
	toolJobList               = "mediad.job.list"
	toolMediaView             = "mediad.media.view"
	toolMediaGetData          = "mediad.media.get_data"
	toolMediaListLocal        = "mediad.media.list_local"
	toolMediaPrepareReference = "mediad.media.prepare_reference"
)

var mcpToolNames = []string{
	toolVideoCreate,
	toolVideoRemix,
	toolImageCreate,
	toolJobStatus,
	toolJobDownload,
	toolJobDelete,
	toolJobList,
	toolMediaView,
	toolMediaGetData,
	toolMediaListLocal,
	toolMediaPrepareReference,
}

type toolContract struct {
	Top      []string
	Purpose  string
	UseWhen  string
	Requires string
	Effects  string
	Retry    string
	Next     string
}

func formatToolDescription(spec toolContract) string {
	lines := make([]string, 0, len(spec.Top)+6)
	for _, line := range spec.Top {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, []string{
		"Purpose: " + spec.Purpose,
		"Use when: " + spec.UseWhen,
		"Requires: " + spec.Requires,
		"Effects: " + spec.Effects,
		"Retry: " + spec.Retry,
		"Next: " + spec.Next,
	}...)
	return strings.Join(lines, "\n")
}

const (
	asyncJobLine     = "ASYNC: This returns a queued job, not a finished asset. Poll mediad.job.status until status is completed or failed."
	terminalJobLine  = "TERMINAL: Completed and failed are final states; a failed job never recovers and cannot be downloaded."
	flatFilenameLine = "FILENAMES: Filenames are flat names inside one path_type namespace; path separators and '..' are rejected."
	chunkedDataLine  = "CHUNKED: Responses carry base64 data with offset/chunk_size/total_size/is_last; keep fetching from offset+chunk_size until is_last."
)

func buildToolDescriptions(caps mediad.Capabilities) map[string]string {
	chunkDefault := fmt.Sprintf("%d", int64(transfer.DefaultChunkBytes))

	return map[string]string{
		toolVideoCreate: formatToolDescription(toolContract{
			Top:      []string{asyncJobLine},
			Purpose:  "Submit a new video generation job to the remote generation API.",
			UseWhen:  "The user wants a brand new video from a text prompt, optionally guided by a reference image.",
			Requires: "`prompt`. Optional `model` (sora-2, sora-2-pro), `seconds` (4|8|12), `size` (720x1280|1280x720|1024x1792|1792x1024; the portrait/landscape 1024x1792 and 1792x1024 sizes need sora-2-pro), `input_reference_filename` (jpg/jpeg/png/webp already stored in the image namespace).",
			Effects:  "Creates a remote job in status queued. No local files are written.",
			Retry:    "Invalid parameters are never retryable. remote_error with retryable=true may be resubmitted after backoff, but may create duplicate jobs.",
			Next:     "Poll `mediad.job.status` with the returned id, then `mediad.job.download` once completed.",
		}),
		toolVideoRemix: formatToolDescription(toolContract{
			Top:      []string{asyncJobLine},
			Purpose:  "Create a new video job derived from an existing completed video.",
			UseWhen:  "The user wants a variation of a previous result without starting from scratch.",
			Requires: "`video_id` of the source job and a new `prompt`.",
			Effects:  "Creates a NEW remote job with its own id; the source job is never modified.",
			Retry:    "Same rules as mediad.video.create.",
			Next:     "Poll `mediad.job.status` with the NEW id returned here, not the source id.",
		}),
		toolImageCreate: formatToolDescription(toolContract{
			Top:      []string{asyncJobLine},
			Purpose:  "Submit a new image generation job to the remote generation API.",
			UseWhen:  "The user wants a generated image (also useful for producing reference frames for video jobs).",
			Requires: "`prompt`. Optional `model` (gpt-image-1, gpt-image-1.5), `size` (auto|1024x1024|1536x1024|1024x1536), `quality` (auto|low|medium|high), `background` (auto|transparent|opaque), `output_format` (png|jpeg|webp).",
			Effects:  "Creates a remote job in status queued. No local files are written.",
			Retry:    "Invalid parameters are never retryable; retryable remote errors may be resubmitted after backoff.",
			Next:     "Poll `mediad.job.status`, then `mediad.job.download`; downloaded images land in the image namespace.",
		}),
		toolJobStatus: formatToolDescription(toolContract{
			Top:      []string{terminalJobLine},
			Purpose:  "Report the current status and progress of a generation job.",
			UseWhen:  "After submitting or remixing, to decide whether the artifact is ready to download.",
			Requires: "`job_id` from a create or remix call.",
			Effects:  "Read-only. Performs at most one remote status check; known-terminal jobs are answered from memory.",
			Retry:    "Safe to call repeatedly; poll with backoff while status is queued or in_progress.",
			Next:     "On completed -> `mediad.job.download`. On failed -> inspect failure_reason; the job will never complete.",
		}),
		toolJobDownload: formatToolDescription(toolContract{
			Top:      []string{flatFilenameLine},
			Purpose:  "Persist one asset of a completed job into sandboxed storage.",
			UseWhen:  "mediad.job.status reported status completed.",
			Requires: "`job_id`. Optional `variant` for video jobs (video|thumbnail|spritesheet) and `filename` (auto-generated when omitted).",
			Effects:  "Streams the remote asset into the video or image namespace and reports the stored filename, size and display path.",
			Retry:    "not_ready means poll status again later (or never, if the job failed). integrity_error and retryable remote errors may be retried.",
			Next:     "Use `mediad.media.view` for metadata or `mediad.media.get_data` to fetch the bytes.",
		}),
		toolJobDelete: formatToolDescription(toolContract{
			Top:      []string{"NON-IDEMPOTENT: Deleting twice reports not_found on the second call."},
			Purpose:  "Permanently delete a job and its assets from the remote generation service.",
			UseWhen:  "The remote copy is no longer needed, typically after a successful download.",
			Requires: "`job_id`.",
			Effects:  "Removes the remote job. Locally stored artifacts are not touched.",
			Retry:    "Only on retryable remote errors.",
			Next:     "Nothing; locally downloaded files remain available through the media tools.",
		}),
		toolJobList: formatToolDescription(toolContract{
			Top:      []string{},
			Purpose:  "List video generation jobs known to the remote service, newest first by default.",
			UseWhen:  "Recovering a lost job id or surveying recent activity.",
			Requires: "Nothing. Optional `limit` (default 20, max 100), `after` (cursor: last id of the previous page), `order` (asc|desc).",
			Effects:  "Read-only remote listing.",
			Retry:    "Safe to call repeatedly.",
			Next:     "Feed `last` back as `after` while `has_more` is true.",
		}),
		toolMediaView: formatToolDescription(toolContract{
			Top:      []string{flatFilenameLine},
			Purpose:  "Report metadata (size, mime type, modified time, display path) for a stored artifact.",
			UseWhen:  "Checking that an artifact exists and sizing a transfer before fetching bytes.",
			Requires: "`path_type` (video|image|audio) and `filename`.",
			Effects:  "Read-only.",
			Retry:    "Safe to call repeatedly.",
			Next:     "Fetch content with `mediad.media.get_data` using total size to plan chunk count.",
		}),
		toolMediaGetData: formatToolDescription(toolContract{
			Top:      []string{chunkedDataLine, flatFilenameLine},
			Purpose:  "Return one base64 chunk of a stored artifact.",
			UseWhen:  "Transferring artifact bytes to the client, chunk by chunk.",
			Requires: "`path_type` and `filename`. Optional `offset` (default 0) and `chunk_size` (default " + chunkDefault + " bytes; oversized requests are clamped).",
			Effects:  "Read-only and stateless; the server keeps no transfer cursor.",
			Retry:    "Any chunk may be re-fetched at the same offset; out_of_range means the offset is past the end.",
			Next:     "Concatenate decoded chunks in offset order; stop after is_last.",
		}),
		toolMediaListLocal: formatToolDescription(toolContract{
			Top:      []string{},
			Purpose:  "List stored artifacts in one namespace with optional glob, extension filter, sorting and limit.",
			UseWhen:  "Finding previously downloaded files or checking what a namespace holds.",
			Requires: "`path_type`. Optional `pattern` (glob, e.g. sora*), `extensions` (e.g. [\"mp4\"]), `sort_by` (name|size|modified, default modified), `order` (asc|desc, default desc), `limit` (default 50).",
			Effects:  "Read-only.",
			Retry:    "Safe to call repeatedly.",
			Next:     "Use `mediad.media.view` or `mediad.media.get_data` on a listed filename.",
		}),
		toolMediaPrepareReference: formatToolDescription(toolContract{
			Top:      []string{flatFilenameLine},
			Purpose:  "Resize a stored image to an exact video frame size and save it as PNG, for use as a video reference image.",
			UseWhen:  "An image in the image namespace does not match the frame size of the video job it should guide.",
			Requires: "`input_filename` (jpg/jpeg/png/webp in the image namespace) and `target_size` (720x1280|1280x720|1024x1792|1792x1024). Optional `resize_mode` (crop|pad|rescale, default crop) and `output_filename` (default <input stem>_<target_size>.png).",
			Effects:  "Writes a new PNG into the image namespace; the input file is never modified.",
			Retry:    "Invalid parameters are never retryable; the operation is idempotent for the same inputs.",
			Next:     "Pass the returned filename as `input_reference_filename` to `mediad.video.create`.",
		}),
	}
}

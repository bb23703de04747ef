// Package api defines the wire-level types and error taxonomy shared by the
// mediad server, its MCP facade, and the Go client helpers.
package api

import "strings"

// JobKind identifies the generation job family.
type JobKind string

// Supported job kinds.
const (
	JobKindVideo JobKind = "video"
	JobKindImage JobKind = "image"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

// Job lifecycle states. The only legal transitions are
// queued -> in_progress -> {completed, failed}; in_progress may repeat with
// increasing progress. Terminal states never change.
const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Rank orders statuses along the state machine so callers can reject
// regressions reported by a flaky remote.
func (s JobStatus) Rank() int {
	switch s {
	case JobQueued:
		return 0
	case JobInProgress:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Job is the tracked view of an externally hosted generation job. The ID is
// assigned by the remote service and treated as opaque.
type Job struct {
	ID            string    `json:"id"`
	Kind          JobKind   `json:"kind"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	Model         string    `json:"model,omitempty"`
	Size          string    `json:"size,omitempty"`
	Seconds       string    `json:"seconds,omitempty"`
	CreatedAtUnix int64     `json:"created_at_unix,omitempty"`
	RemixedFromID string    `json:"remixed_from_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// ListPage is one page of remote job listings.
type ListPage struct {
	Jobs    []Job  `json:"jobs"`
	HasMore bool   `json:"has_more"`
	Last    string `json:"last,omitempty"`
}

// PathType partitions the storage sandbox namespaces.
type PathType string

// Sandbox namespaces. Each maps to exactly one validated root directory (or
// object-store prefix) and filenames inside each are flat.
const (
	PathTypeVideo PathType = "video"
	PathTypeImage PathType = "image"
	PathTypeAudio PathType = "audio"
)

// PathTypes returns every sandbox namespace in registration order.
func PathTypes() []PathType {
	return []PathType{PathTypeVideo, PathTypeImage, PathTypeAudio}
}

// ParsePathType validates a user-supplied namespace string.
func ParsePathType(raw string) (PathType, bool) {
	switch PathType(strings.TrimSpace(strings.ToLower(raw))) {
	case PathTypeVideo:
		return PathTypeVideo, true
	case PathTypeImage:
		return PathTypeImage, true
	case PathTypeAudio:
		return PathTypeAudio, true
	default:
		return "", false
	}
}

// StoredArtifact describes a persisted binary output addressed by
// (PathType, Filename).
type StoredArtifact struct {
	PathType    PathType `json:"path_type"`
	Filename    string   `json:"filename"`
	DisplayPath string   `json:"display_path,omitempty"`
	SizeBytes   int64    `json:"size_bytes"`
	MimeType    string   `json:"mime_type,omitempty"`
}

// FileInfo is backend-agnostic file metadata. ModifiedUnix is zero when the
// backend cannot supply a modification time.
type FileInfo struct {
	Name         string `json:"name"`
	SizeBytes    int64  `json:"size_bytes"`
	ModifiedUnix int64  `json:"modified_unix,omitempty"`
}

// ChunkResponse is one self-describing slice of an artifact. The server keeps
// no cursor: concatenating the decoded Data of successive responses starting
// at offset 0, advancing by ChunkSize each time, reproduces the artifact
// byte for byte. Exactly one response per artifact has IsLast set, and for it
// Offset+ChunkSize == TotalSize.
type ChunkResponse struct {
	Data      string `json:"data"`
	Offset    int64  `json:"offset"`
	ChunkSize int64  `json:"chunk_size"`
	TotalSize int64  `json:"total_size"`
	IsLast    bool   `json:"is_last"`
	MimeType  string `json:"mime_type"`
}

// DownloadVariant selects which asset of a completed video job to fetch.
type DownloadVariant string

// Download variants supported by the generation API.
const (
	VariantVideo       DownloadVariant = "video"
	VariantThumbnail   DownloadVariant = "thumbnail"
	VariantSpritesheet DownloadVariant = "spritesheet"
)

// Suffix returns the filename extension used when auto-naming a downloaded
// variant.
func (v DownloadVariant) Suffix() string {
	switch v {
	case VariantThumbnail:
		return ".webp"
	case VariantSpritesheet:
		return ".jpg"
	default:
		return ".mp4"
	}
}

// ParseDownloadVariant validates a user-supplied variant, defaulting to the
// primary video asset.
func ParseDownloadVariant(raw string) (DownloadVariant, bool) {
	switch DownloadVariant(strings.TrimSpace(strings.ToLower(raw))) {
	case "", VariantVideo:
		return VariantVideo, true
	case VariantThumbnail:
		return VariantThumbnail, true
	case VariantSpritesheet:
		return VariantSpritesheet, true
	default:
		return "", false
	}
}

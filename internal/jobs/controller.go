// Package jobs tracks externally hosted media-generation jobs: submission,
// polling against the remote state machine, and materializing completed
// artifacts into sandboxed storage.
package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/pslog"
)

// List pagination bounds, matching the remote API's limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	Client  GenerationClient
	Storage storage.Backend
	Logger  pslog.Logger
}

// Controller coordinates the job lifecycle. It owns the in-memory registry;
// Poll is the only writer for any given job ID.
type Controller struct {
	client   GenerationClient
	store    storage.Backend
	registry *registry
	logger   pslog.Logger
	metrics  *jobMetrics
}

// NewController validates the wiring and returns the controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("jobs: generation client is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("jobs: storage backend is required")
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "jobs")
	return &Controller{
		client:   cfg.Client,
		store:    cfg.Storage,
		registry: newRegistry(),
		logger:   logger,
		metrics:  newJobMetrics(logger),
	}, nil
}

// Submit validates params and creates the remote job. Validation failures
// return before any network traffic. A video reference image is read through
// the sandboxed image namespace, so traversal and symlink rejections surface
// here unchanged.
func (c *Controller) Submit(ctx context.Context, params Params) (api.Job, error) {
	if params == nil {
		return api.Job{}, fmt.Errorf("jobs: parameters are required: %w", api.ErrInvalidParameter)
	}
	if err := params.Validate(); err != nil {
		return api.Job{}, err
	}
	var (
		job api.Job
		err error
	)
	switch p := params.(type) {
	case VideoParams:
		var reference *ReferenceImage
		if p.ReferenceImage != "" {
			mime, merr := ReferenceImageMime(p.ReferenceImage)
			if merr != nil {
				return api.Job{}, merr
			}
			data, rerr := c.store.Read(ctx, api.PathTypeImage, p.ReferenceImage)
			if rerr != nil {
				return api.Job{}, rerr
			}
			reference = &ReferenceImage{Filename: p.ReferenceImage, Data: data, MimeType: mime}
		}
		job, err = c.client.CreateVideo(ctx, p, reference)
	case ImageParams:
		job, err = c.client.CreateImage(ctx, p)
	default:
		return api.Job{}, fmt.Errorf("jobs: unsupported parameter variant %T: %w", params, api.ErrInvalidParameter)
	}
	if err != nil {
		return api.Job{}, err
	}
	job.Kind = params.Kind()
	c.logger.Info("job submitted", "id", job.ID, "kind", string(job.Kind), "status", string(job.Status))
	c.metrics.recordSubmitted(ctx, job.Kind, "create")
	return c.registry.merge(job), nil
}

// Poll returns the job's current state with exactly one remote status check,
// and none at all once the job is known terminal.
func (c *Controller) Poll(ctx context.Context, jobID string) (api.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return api.Job{}, fmt.Errorf("jobs: job id is required: %w", api.ErrInvalidParameter)
	}
	cached, known := c.registry.get(jobID)
	if known && cached.Status.Terminal() {
		return cached, nil
	}
	kind := api.JobKindVideo
	if known {
		kind = cached.Kind
	}
	remote, err := c.client.Retrieve(ctx, kind, jobID)
	if err != nil {
		return api.Job{}, err
	}
	remote.Kind = kind
	merged := c.registry.merge(remote)
	// The terminal short-circuit above means a terminal merge here is the
	// first observation of that transition.
	if merged.Status.Terminal() {
		c.metrics.recordTerminal(ctx, merged.Kind, merged.Status)
	}
	return merged, nil
}

// Materialize downloads one asset of a completed job into storage. Anything
// short of completed, including failed, is NotReady. The written byte count
// must agree with the remote's declared length or the result is an integrity
// failure.
func (c *Controller) Materialize(ctx context.Context, jobID string, variant api.DownloadVariant, filename string) (api.StoredArtifact, error) {
	job, err := c.Poll(ctx, jobID)
	if err != nil {
		return api.StoredArtifact{}, err
	}
	if job.Status != api.JobCompleted {
		return api.StoredArtifact{}, fmt.Errorf("jobs: job %s is %s: %w", jobID, job.Status, api.ErrNotReady)
	}
	if job.Kind != api.JobKindVideo {
		variant = ""
	}

	body, declared, mimeType, err := c.client.Content(ctx, job.Kind, jobID, variant)
	if err != nil {
		return api.StoredArtifact{}, err
	}
	defer body.Close()

	pathType := api.PathTypeVideo
	if job.Kind == api.JobKindImage {
		pathType = api.PathTypeImage
	}
	if filename == "" {
		filename = autoFilename(jobID, job.Kind, variant, mimeType)
	}

	display, written, err := c.store.WriteStream(ctx, pathType, filename, body)
	if err != nil {
		return api.StoredArtifact{}, err
	}
	if declared >= 0 && written != declared {
		return api.StoredArtifact{}, fmt.Errorf("jobs: %q: wrote %s, remote declared %s: %w",
			filename, humanize.IBytes(uint64(written)), humanize.IBytes(uint64(declared)), api.ErrIntegrity)
	}
	if mimeType == "" {
		mimeType = storage.MimeType(filename, pathType)
	}
	c.logger.Info("artifact materialized",
		"id", jobID, "filename", filename, "variant", string(variant), "bytes", written)
	c.metrics.recordMaterialized(ctx, pathType, written)
	return api.StoredArtifact{
		PathType:    pathType,
		Filename:    filename,
		DisplayPath: display,
		SizeBytes:   written,
		MimeType:    mimeType,
	}, nil
}

// Remix creates a new job derived from a completed video. The source job is
// never mutated.
func (c *Controller) Remix(ctx context.Context, jobID string, prompt string) (api.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return api.Job{}, fmt.Errorf("jobs: job id is required: %w", api.ErrInvalidParameter)
	}
	if strings.TrimSpace(prompt) == "" {
		return api.Job{}, fmt.Errorf("jobs: remix prompt is required: %w", api.ErrInvalidParameter)
	}
	job, err := c.client.Remix(ctx, jobID, prompt)
	if err != nil {
		return api.Job{}, err
	}
	job.Kind = api.JobKindVideo
	if job.RemixedFromID == "" {
		job.RemixedFromID = jobID
	}
	c.logger.Info("remix submitted", "id", job.ID, "from", jobID)
	c.metrics.recordSubmitted(ctx, job.Kind, "remix")
	return c.registry.merge(job), nil
}

// Delete removes the remote job and drops it from the registry.
func (c *Controller) Delete(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("jobs: job id is required: %w", api.ErrInvalidParameter)
	}
	kind := api.JobKindVideo
	if cached, ok := c.registry.get(jobID); ok {
		kind = cached.Kind
	}
	if err := c.client.Delete(ctx, kind, jobID); err != nil {
		return err
	}
	c.registry.forget(jobID)
	c.logger.Info("job deleted", "id", jobID)
	return nil
}

// List pages through remote jobs. Order is asc or desc by creation time.
func (c *Controller) List(ctx context.Context, limit int, after string, order string) (api.ListPage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	switch order {
	case "", "asc", "desc":
		if order == "" {
			order = "desc"
		}
	default:
		return api.ListPage{}, fmt.Errorf("jobs: order must be asc or desc: %w", api.ErrInvalidParameter)
	}
	return c.client.List(ctx, limit, after, order)
}

// autoFilename derives a collision-free artifact name from the job ID. The
// ID is sanitized to the filename-safe alphabet first; it came from the
// remote and is not trusted as a path.
func autoFilename(jobID string, kind api.JobKind, variant api.DownloadVariant, mimeType string) string {
	base := sanitizeID(jobID)
	suffix := variant.Suffix()
	if kind == api.JobKindImage {
		suffix = imageSuffix(mimeType)
	}
	return base + "_" + xid.New().String() + suffix
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}

func imageSuffix(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

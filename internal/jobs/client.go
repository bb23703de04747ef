package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/uuidv7"
	"pkt.systems/pslog"
)

// ReferenceImage is an in-memory reference frame uploaded alongside a video
// creation request.
type ReferenceImage struct {
	Filename string
	Data     []byte
	MimeType string
}

// GenerationClient is the remote media-generation API. Implementations never
// retry; retryable failures are surfaced as *api.RemoteError so the caller
// decides.
type GenerationClient interface {
	CreateVideo(ctx context.Context, params VideoParams, reference *ReferenceImage) (api.Job, error)
	CreateImage(ctx context.Context, params ImageParams) (api.Job, error)
	Retrieve(ctx context.Context, kind api.JobKind, jobID string) (api.Job, error)
	// Content opens the asset stream of a completed job. Size is the remote's
	// declared length, -1 when unknown.
	Content(ctx context.Context, kind api.JobKind, jobID string, variant api.DownloadVariant) (body io.ReadCloser, size int64, mimeType string, err error)
	Remix(ctx context.Context, jobID string, prompt string) (api.Job, error)
	Delete(ctx context.Context, kind api.JobKind, jobID string) error
	List(ctx context.Context, limit int, after string, order string) (api.ListPage, error)
}

// HTTPClientConfig configures the REST client.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     pslog.Logger
}

// HTTPClient implements GenerationClient against a Sora-style REST surface:
// POST /videos, GET /videos/{id}, GET /videos/{id}/content, POST
// /videos/{id}/remix, DELETE /videos/{id}, GET /videos, and the same shape
// under /images for image jobs. The surface is treated as opaque; only the
// job document fields mediad tracks are decoded.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  pslog.Logger
}

// NewHTTPClient validates the configuration and returns the client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("jobs: api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("jobs: parse base url: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("jobs: api key is required")
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpc:   httpc,
		logger:  loggingutil.WithSubsystem(cfg.Logger, "genapi"),
	}, nil
}

func kindPath(kind api.JobKind) string {
	if kind == api.JobKindImage {
		return "images"
	}
	return "videos"
}

// jobDocument is the remote job representation. Unknown fields are ignored.
type jobDocument struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Progress           int    `json:"progress"`
	Model              string `json:"model,omitempty"`
	Size               string `json:"size,omitempty"`
	Seconds            string `json:"seconds,omitempty"`
	CreatedAt          int64  `json:"created_at,omitempty"`
	RemixedFromVideoID string `json:"remixed_from_video_id,omitempty"`
	Error              *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

func (d jobDocument) toJob(kind api.JobKind) api.Job {
	job := api.Job{
		ID:            d.ID,
		Kind:          kind,
		Status:        api.JobStatus(d.Status),
		Progress:      d.Progress,
		Model:         d.Model,
		Size:          d.Size,
		Seconds:       d.Seconds,
		CreatedAtUnix: d.CreatedAt,
		RemixedFromID: d.RemixedFromVideoID,
	}
	if d.Error != nil {
		job.FailureReason = d.Error.Message
	}
	return job
}

// CreateVideo submits a video generation job, as multipart when a reference
// image rides along and JSON otherwise.
func (h *HTTPClient) CreateVideo(ctx context.Context, params VideoParams, reference *ReferenceImage) (api.Job, error) {
	endpoint := h.baseURL + "/videos"
	var (
		req *http.Request
		err error
	)
	if reference != nil {
		body := new(bytes.Buffer)
		writer := multipart.NewWriter(body)
		fields := map[string]string{
			"model":  params.EffectiveModel(),
			"prompt": params.Prompt,
		}
		if params.Seconds != "" {
			fields["seconds"] = params.Seconds
		}
		if params.Size != "" {
			fields["size"] = params.Size
		}
		for key, value := range fields {
			if werr := writer.WriteField(key, value); werr != nil {
				return api.Job{}, fmt.Errorf("jobs: multipart field %s: %w", key, werr)
			}
		}
		part, werr := writer.CreateFormFile("input_reference", reference.Filename)
		if werr != nil {
			return api.Job{}, fmt.Errorf("jobs: multipart reference: %w", werr)
		}
		if _, werr := part.Write(reference.Data); werr != nil {
			return api.Job{}, fmt.Errorf("jobs: multipart reference: %w", werr)
		}
		if werr := writer.Close(); werr != nil {
			return api.Job{}, fmt.Errorf("jobs: multipart close: %w", werr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err == nil {
			req.Header.Set("Content-Type", writer.FormDataContentType())
		}
	} else {
		payload := map[string]string{
			"model":  params.EffectiveModel(),
			"prompt": params.Prompt,
		}
		if params.Seconds != "" {
			payload["seconds"] = params.Seconds
		}
		if params.Size != "" {
			payload["size"] = params.Size
		}
		req, err = h.jsonRequest(ctx, http.MethodPost, endpoint, payload)
	}
	if err != nil {
		return api.Job{}, fmt.Errorf("jobs: build create request: %w", err)
	}
	return h.doJob(req, api.JobKindVideo)
}

// CreateImage submits an image generation job.
func (h *HTTPClient) CreateImage(ctx context.Context, params ImageParams) (api.Job, error) {
	payload := map[string]string{
		"model":  params.EffectiveModel(),
		"prompt": params.Prompt,
	}
	for key, value := range map[string]string{
		"size":          params.Size,
		"quality":       params.Quality,
		"background":    params.Background,
		"output_format": params.OutputFormat,
	} {
		if value != "" {
			payload[key] = value
		}
	}
	req, err := h.jsonRequest(ctx, http.MethodPost, h.baseURL+"/images", payload)
	if err != nil {
		return api.Job{}, fmt.Errorf("jobs: build create request: %w", err)
	}
	return h.doJob(req, api.JobKindImage)
}

// Retrieve fetches the current job document.
func (h *HTTPClient) Retrieve(ctx context.Context, kind api.JobKind, jobID string) (api.Job, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", h.baseURL, kindPath(kind), url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return api.Job{}, fmt.Errorf("jobs: build retrieve request: %w", err)
	}
	return h.doJob(req, kind)
}

// Content streams the asset of a completed job. The caller owns the body.
func (h *HTTPClient) Content(ctx context.Context, kind api.JobKind, jobID string, variant api.DownloadVariant) (io.ReadCloser, int64, string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/content", h.baseURL, kindPath(kind), url.PathEscape(jobID))
	if kind == api.JobKindVideo && variant != "" {
		endpoint += "?variant=" + url.QueryEscape(string(variant))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("jobs: build content request: %w", err)
	}
	h.authorize(req)
	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, 0, "", &api.RemoteError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, 0, "", h.remoteError(resp)
	}
	return resp.Body, resp.ContentLength, resp.Header.Get("Content-Type"), nil
}

// Remix creates a new video job derived from an existing one.
func (h *HTTPClient) Remix(ctx context.Context, jobID string, prompt string) (api.Job, error) {
	endpoint := fmt.Sprintf("%s/videos/%s/remix", h.baseURL, url.PathEscape(jobID))
	req, err := h.jsonRequest(ctx, http.MethodPost, endpoint, map[string]string{"prompt": prompt})
	if err != nil {
		return api.Job{}, fmt.Errorf("jobs: build remix request: %w", err)
	}
	return h.doJob(req, api.JobKindVideo)
}

// Delete removes the remote job and its assets.
func (h *HTTPClient) Delete(ctx context.Context, kind api.JobKind, jobID string) error {
	endpoint := fmt.Sprintf("%s/%s/%s", h.baseURL, kindPath(kind), url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("jobs: build delete request: %w", err)
	}
	h.authorize(req)
	resp, err := h.httpc.Do(req)
	if err != nil {
		return &api.RemoteError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return h.remoteError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// List pages through remote video jobs.
func (h *HTTPClient) List(ctx context.Context, limit int, after string, order string) (api.ListPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		query.Set("after", after)
	}
	if order != "" {
		query.Set("order", order)
	}
	endpoint := h.baseURL + "/videos"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return api.ListPage{}, fmt.Errorf("jobs: build list request: %w", err)
	}
	h.authorize(req)
	resp, err := h.httpc.Do(req)
	if err != nil {
		return api.ListPage{}, &api.RemoteError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.ListPage{}, h.remoteError(resp)
	}
	var doc struct {
		Data    []jobDocument `json:"data"`
		HasMore bool          `json:"has_more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return api.ListPage{}, fmt.Errorf("jobs: decode list response: %w", err)
	}
	page := api.ListPage{HasMore: doc.HasMore}
	for _, item := range doc.Data {
		page.Jobs = append(page.Jobs, item.toJob(api.JobKindVideo))
	}
	if n := len(page.Jobs); n > 0 {
		page.Last = page.Jobs[n-1].ID
	}
	return page, nil
}

func (h *HTTPClient) jsonRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (h *HTTPClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Accept", "application/json")
	// Time-ordered request ID for log correlation.
	req.Header.Set("X-Request-Id", uuidv7.NewString())
}

func (h *HTTPClient) doJob(req *http.Request, kind api.JobKind) (api.Job, error) {
	h.authorize(req)
	resp, err := h.httpc.Do(req)
	if err != nil {
		return api.Job{}, &api.RemoteError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.Job{}, h.remoteError(resp)
	}
	var doc jobDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return api.Job{}, fmt.Errorf("jobs: decode job document: %w", err)
	}
	h.logger.Debug("job document", "id", doc.ID, "status", doc.Status, "progress", doc.Progress)
	return doc.toJob(kind), nil
}

// remoteError maps a non-2xx response to the error taxonomy. 404 becomes
// ErrNotFound; everything else a RemoteError carrying status, the remote's
// error code and message, and any Retry-After hint.
func (h *HTTPClient) remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("jobs: remote job: %w", api.ErrNotFound)
	}
	remote := &api.RemoteError{Status: resp.StatusCode}
	var doc struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err == nil && doc.Error.Message != "" {
		remote.Code = doc.Error.Code
		remote.Detail = doc.Error.Message
	} else {
		remote.Detail = strings.TrimSpace(string(body))
	}
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, err := strconv.Atoi(after); err == nil && seconds > 0 {
			remote.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return remote
}

var _ GenerationClient = (*HTTPClient)(nil)

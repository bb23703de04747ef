package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/storage/disk"
)

type fakeClient struct {
	mu            sync.Mutex
	createCalls   int
	retrieveCalls int
	contentCalls  int

	createdParams    Params
	createdReference *ReferenceImage

	// statusScript is consumed one entry per Retrieve call; the last entry
	// repeats once exhausted.
	statusScript []api.Job

	content      []byte
	declaredSize int64
	mimeType     string

	remixed  api.Job
	deleted  []string
	listPage api.ListPage
	failWith error
}

func (f *fakeClient) CreateVideo(_ context.Context, params VideoParams, reference *ReferenceImage) (api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.createdParams = params
	f.createdReference = reference
	if f.failWith != nil {
		return api.Job{}, f.failWith
	}
	return api.Job{ID: "video_123", Kind: api.JobKindVideo, Status: api.JobQueued}, nil
}

func (f *fakeClient) CreateImage(_ context.Context, params ImageParams) (api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.createdParams = params
	if f.failWith != nil {
		return api.Job{}, f.failWith
	}
	return api.Job{ID: "img_456", Kind: api.JobKindImage, Status: api.JobQueued}, nil
}

func (f *fakeClient) Retrieve(_ context.Context, _ api.JobKind, jobID string) (api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++
	if f.failWith != nil {
		return api.Job{}, f.failWith
	}
	if len(f.statusScript) == 0 {
		return api.Job{}, errors.New("fake: no script")
	}
	job := f.statusScript[0]
	if len(f.statusScript) > 1 {
		f.statusScript = f.statusScript[1:]
	}
	job.ID = jobID
	return job, nil
}

func (f *fakeClient) Content(_ context.Context, _ api.JobKind, _ string, _ api.DownloadVariant) (io.ReadCloser, int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentCalls++
	if f.failWith != nil {
		return nil, 0, "", f.failWith
	}
	return io.NopCloser(bytes.NewReader(f.content)), f.declaredSize, f.mimeType, nil
}

func (f *fakeClient) Remix(_ context.Context, jobID string, _ string) (api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return api.Job{}, f.failWith
	}
	f.remixed = api.Job{ID: "video_remix", Kind: api.JobKindVideo, Status: api.JobQueued, RemixedFromID: jobID}
	return f.remixed, nil
}

func (f *fakeClient) Delete(_ context.Context, _ api.JobKind, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, jobID)
	return f.failWith
}

func (f *fakeClient) List(_ context.Context, _ int, _ string, _ string) (api.ListPage, error) {
	if f.failWith != nil {
		return api.ListPage{}, f.failWith
	}
	return f.listPage, nil
}

func (f *fakeClient) calls() (create, retrieve, content int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.retrieveCalls, f.contentCalls
}

func newTestController(t *testing.T, client GenerationClient) *Controller {
	t.Helper()
	base := t.TempDir()
	store, err := disk.New(disk.Config{Roots: map[api.PathType]string{
		api.PathTypeVideo: filepath.Join(base, "videos"),
		api.PathTypeImage: filepath.Join(base, "images"),
		api.PathTypeAudio: filepath.Join(base, "audio"),
	}})
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	ctrl, err := NewController(ControllerConfig{Client: client, Storage: store})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctrl
}

func TestSubmitValidatesBeforeNetwork(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	tests := []struct {
		name   string
		params Params
	}{
		{name: "empty prompt", params: VideoParams{}},
		{name: "bad model", params: VideoParams{Prompt: "p", Model: "sora-9"}},
		{name: "bad seconds", params: VideoParams{Prompt: "p", Seconds: "6"}},
		{name: "bad size", params: VideoParams{Prompt: "p", Size: "640x480"}},
		{name: "pro size on base model", params: VideoParams{Prompt: "p", Size: "1024x1792"}},
		{name: "bad reference extension", params: VideoParams{Prompt: "p", ReferenceImage: "ref.gif"}},
		{name: "image bad quality", params: ImageParams{Prompt: "p", Quality: "ultra"}},
		{name: "image bad format", params: ImageParams{Prompt: "p", OutputFormat: "bmp"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ctrl.Submit(ctx, tc.params); !errors.Is(err, api.ErrInvalidParameter) {
				t.Fatalf("expected invalid parameter, got %v", err)
			}
		})
	}
	if create, _, _ := fake.calls(); create != 0 {
		t.Fatalf("validation failures must not reach the remote, saw %d calls", create)
	}
}

func TestSubmitProSizeAccepted(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	ctrl := newTestController(t, fake)
	job, err := ctrl.Submit(context.Background(), VideoParams{Prompt: "p", Model: "sora-2-pro", Size: "1792x1024"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID != "video_123" || job.Status != api.JobQueued {
		t.Fatalf("job = %+v", job)
	}
}

func TestSubmitWithReferenceImage(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	if _, _, err := ctrl.store.WriteStream(ctx, api.PathTypeImage, "frame.png", strings.NewReader("png data")); err != nil {
		t.Fatalf("seed reference: %v", err)
	}
	if _, err := ctrl.Submit(ctx, VideoParams{Prompt: "p", ReferenceImage: "frame.png"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fake.createdReference == nil {
		t.Fatalf("reference image not forwarded")
	}
	if fake.createdReference.MimeType != "image/png" || string(fake.createdReference.Data) != "png data" {
		t.Fatalf("reference = %+v", fake.createdReference)
	}

	// Traversal in the reference name must fail before any network call.
	before, _, _ := fake.calls()
	if _, err := ctrl.Submit(ctx, VideoParams{Prompt: "p", ReferenceImage: "../secret.png"}); !errors.Is(err, api.ErrPathTraversal) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
	if after, _, _ := fake.calls(); after != before {
		t.Fatalf("traversal rejection must not reach the remote")
	}
}

func TestPollProgressNeverRegresses(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{statusScript: []api.Job{
		{Kind: api.JobKindVideo, Status: api.JobInProgress, Progress: 40},
		{Kind: api.JobKindVideo, Status: api.JobInProgress, Progress: 20},
		{Kind: api.JobKindVideo, Status: api.JobQueued, Progress: 0},
		{Kind: api.JobKindVideo, Status: api.JobCompleted, Progress: 90},
	}}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	job, err := ctrl.Poll(ctx, "video_a")
	if err != nil || job.Progress != 40 || job.Status != api.JobInProgress {
		t.Fatalf("first poll = %+v err=%v", job, err)
	}
	job, _ = ctrl.Poll(ctx, "video_a")
	if job.Progress != 40 {
		t.Fatalf("progress regressed to %d", job.Progress)
	}
	job, _ = ctrl.Poll(ctx, "video_a")
	if job.Status != api.JobInProgress {
		t.Fatalf("status regressed to %s", job.Status)
	}
	job, _ = ctrl.Poll(ctx, "video_a")
	if job.Status != api.JobCompleted || job.Progress != 100 {
		t.Fatalf("completed poll = %+v", job)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{statusScript: []api.Job{
		{Kind: api.JobKindVideo, Status: api.JobFailed, FailureReason: "moderation"},
		{Kind: api.JobKindVideo, Status: api.JobInProgress, Progress: 50},
	}}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	job, err := ctrl.Poll(ctx, "video_b")
	if err != nil || job.Status != api.JobFailed {
		t.Fatalf("poll = %+v err=%v", job, err)
	}
	_, retrieveAfterFirst, _ := fake.calls()

	for i := 0; i < 3; i++ {
		job, err = ctrl.Poll(ctx, "video_b")
		if err != nil || job.Status != api.JobFailed {
			t.Fatalf("poll %d = %+v err=%v", i, job, err)
		}
		if _, err := ctrl.Materialize(ctx, "video_b", api.VariantVideo, ""); !errors.Is(err, api.ErrNotReady) {
			t.Fatalf("materialize of failed job must stay not ready, got %v", err)
		}
	}
	if _, retrieve, _ := fake.calls(); retrieve != retrieveAfterFirst {
		t.Fatalf("terminal job polled the remote again (%d -> %d)", retrieveAfterFirst, retrieve)
	}
	if job.FailureReason != "moderation" {
		t.Fatalf("failure reason lost: %+v", job)
	}
}

func TestMaterializeNotReadyBeforeCompletion(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{statusScript: []api.Job{
		{Kind: api.JobKindVideo, Status: api.JobInProgress, Progress: 10},
	}}
	ctrl := newTestController(t, fake)
	if _, err := ctrl.Materialize(context.Background(), "video_c", api.VariantVideo, ""); !errors.Is(err, api.ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if _, _, content := fake.calls(); content != 0 {
		t.Fatalf("content must not be fetched before completion")
	}
}

func TestMaterializeWritesArtifact(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("frame"), 2048)
	fake := &fakeClient{
		statusScript: []api.Job{{Kind: api.JobKindVideo, Status: api.JobCompleted, Progress: 100}},
		content:      payload,
		declaredSize: int64(len(payload)),
		mimeType:     "video/mp4",
	}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	artifact, err := ctrl.Materialize(ctx, "video_d", api.VariantVideo, "")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if artifact.PathType != api.PathTypeVideo || artifact.SizeBytes != int64(len(payload)) {
		t.Fatalf("artifact = %+v", artifact)
	}
	if !strings.HasPrefix(artifact.Filename, "video_d_") || !strings.HasSuffix(artifact.Filename, ".mp4") {
		t.Fatalf("auto filename = %q", artifact.Filename)
	}
	got, err := ctrl.store.Read(ctx, api.PathTypeVideo, artifact.Filename)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("stored bytes differ, err=%v", err)
	}

	thumb, err := ctrl.Materialize(ctx, "video_d", api.VariantThumbnail, "")
	if err != nil {
		t.Fatalf("materialize thumbnail: %v", err)
	}
	if !strings.HasSuffix(thumb.Filename, ".webp") {
		t.Fatalf("thumbnail filename = %q", thumb.Filename)
	}
}

func TestMaterializeIntegrityMismatch(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{
		statusScript: []api.Job{{Kind: api.JobKindVideo, Status: api.JobCompleted, Progress: 100}},
		content:      []byte("short"),
		declaredSize: 1000,
		mimeType:     "video/mp4",
	}
	ctrl := newTestController(t, fake)
	if _, err := ctrl.Materialize(context.Background(), "video_e", api.VariantVideo, "out.mp4"); !errors.Is(err, api.ErrIntegrity) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestMaterializeImageSuffixFromMime(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{
		statusScript: []api.Job{{Kind: api.JobKindImage, Status: api.JobCompleted, Progress: 100}},
		content:      []byte("webp bytes"),
		declaredSize: int64(len("webp bytes")),
		mimeType:     "image/webp",
	}
	ctrl := newTestController(t, fake)
	ctx := context.Background()
	if _, err := ctrl.Submit(ctx, ImageParams{Prompt: "p"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	artifact, err := ctrl.Materialize(ctx, "img_456", api.VariantVideo, "")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if artifact.PathType != api.PathTypeImage || !strings.HasSuffix(artifact.Filename, ".webp") {
		t.Fatalf("artifact = %+v", artifact)
	}
}

func TestRemixCreatesNewJob(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	if _, err := ctrl.Remix(ctx, "video_f", ""); !errors.Is(err, api.ErrInvalidParameter) {
		t.Fatalf("empty prompt must be rejected, got %v", err)
	}
	job, err := ctrl.Remix(ctx, "video_f", "make it rain")
	if err != nil {
		t.Fatalf("remix: %v", err)
	}
	if job.ID == "video_f" || job.RemixedFromID != "video_f" || job.Status != api.JobQueued {
		t.Fatalf("remix job = %+v", job)
	}
}

func TestDeleteForgetsJob(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{statusScript: []api.Job{
		{Kind: api.JobKindVideo, Status: api.JobFailed},
		{Kind: api.JobKindVideo, Status: api.JobInProgress, Progress: 5},
	}}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	if _, err := ctrl.Poll(ctx, "video_g"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := ctrl.Delete(ctx, "video_g"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "video_g" {
		t.Fatalf("deleted = %v", fake.deleted)
	}
	// Forgotten: the next poll hits the remote again.
	job, err := ctrl.Poll(ctx, "video_g")
	if err != nil || job.Status != api.JobInProgress {
		t.Fatalf("poll after delete = %+v err=%v", job, err)
	}
}

func TestListValidation(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{listPage: api.ListPage{Jobs: []api.Job{{ID: "v1"}}, HasMore: false}}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	if _, err := ctrl.List(ctx, 10, "", "sideways"); !errors.Is(err, api.ErrInvalidParameter) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	page, err := ctrl.List(ctx, 0, "", "")
	if err != nil || len(page.Jobs) != 1 {
		t.Fatalf("list = %+v err=%v", page, err)
	}
}

func TestRemoteErrorsSurfaceUnretried(t *testing.T) {
	t.Parallel()

	remote := &api.RemoteError{Status: 429, Detail: "rate limited"}
	fake := &fakeClient{failWith: remote}
	ctrl := newTestController(t, fake)
	ctx := context.Background()

	_, err := ctrl.Poll(ctx, "video_h")
	if !api.IsRetryable(err) {
		t.Fatalf("expected retryable remote error, got %v", err)
	}
	if _, retrieve, _ := fake.calls(); retrieve != 1 {
		t.Fatalf("remote errors must not be retried internally, saw %d calls", retrieve)
	}
}

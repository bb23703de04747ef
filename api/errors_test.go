package api

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRemoteErrorRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *RemoteError
		want bool
	}{
		{name: "rate limited", err: &RemoteError{Status: 429}, want: true},
		{name: "server error", err: &RemoteError{Status: 503}, want: true},
		{name: "request timeout", err: &RemoteError{Status: 408}, want: true},
		{name: "retry after header", err: &RemoteError{Status: 400, RetryAfter: time.Second}, want: true},
		{name: "transport failure", err: &RemoteError{Err: errors.New("connection reset")}, want: true},
		{name: "bad request", err: &RemoteError{Status: 400}, want: false},
		{name: "not found status", err: &RemoteError{Status: 404}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.err.Retryable(); got != tc.want {
				t.Fatalf("Retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsRetryableUnwrapsChains(t *testing.T) {
	t.Parallel()

	remote := &RemoteError{Status: 500, Detail: "upstream exploded"}
	wrapped := fmt.Errorf("poll job abc: %w", remote)
	if !IsRetryable(wrapped) {
		t.Fatalf("expected wrapped remote error to be retryable")
	}
	if IsRetryable(fmt.Errorf("boom: %w", ErrNotFound)) {
		t.Fatalf("sentinel not-found must not be retryable")
	}
}

func TestStatusRankAndTerminal(t *testing.T) {
	t.Parallel()

	if JobQueued.Rank() >= JobInProgress.Rank() {
		t.Fatalf("queued must rank below in_progress")
	}
	if JobInProgress.Rank() >= JobCompleted.Rank() {
		t.Fatalf("in_progress must rank below completed")
	}
	if JobCompleted.Rank() != JobFailed.Rank() {
		t.Fatalf("terminal states must share a rank")
	}
	for _, s := range []JobStatus{JobQueued, JobInProgress} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobCompleted, JobFailed} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestParsePathType(t *testing.T) {
	t.Parallel()

	if pt, ok := ParsePathType(" Video "); !ok || pt != PathTypeVideo {
		t.Fatalf("expected video, got %q ok=%v", pt, ok)
	}
	if _, ok := ParsePathType("documents"); ok {
		t.Fatalf("unknown path type must not parse")
	}
}

func TestDownloadVariantSuffix(t *testing.T) {
	t.Parallel()

	cases := map[DownloadVariant]string{
		VariantVideo:       ".mp4",
		VariantThumbnail:   ".webp",
		VariantSpritesheet: ".jpg",
	}
	for variant, want := range cases {
		if got := variant.Suffix(); got != want {
			t.Fatalf("suffix(%s) = %q, want %q", variant, got, want)
		}
	}
	if _, ok := ParseDownloadVariant("gif"); ok {
		t.Fatalf("unknown variant must not parse")
	}
	if v, ok := ParseDownloadVariant(""); !ok || v != VariantVideo {
		t.Fatalf("empty variant must default to video")
	}
}

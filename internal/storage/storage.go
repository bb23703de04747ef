// Package storage defines the byte-storage contract shared by the local disk
// and S3 backends, plus the listing and mime helpers built on top of it.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"pkt.systems/mediad/api"
)

// ContentTypeOctetStream is the default content type for artifact payloads.
const ContentTypeOctetStream = "application/octet-stream"

// Backend is the storage contract. All filenames are flat and relative to the
// backend's namespace root for the given path type; implementations reject
// traversal and symlink escapes on every call.
type Backend interface {
	// Read returns the whole file. Intended for small artifacts and for the
	// chunk server, which slices in memory.
	Read(ctx context.Context, pathType api.PathType, filename string) ([]byte, error)
	// WriteStream consumes body until EOF and persists it. A partial write
	// surfaces as an error and leaves no artifact visible under filename.
	WriteStream(ctx context.Context, pathType api.PathType, filename string, body io.Reader) (displayPath string, written int64, err error)
	// Stat returns file metadata. ModifiedUnix is zero when the backend
	// cannot supply it.
	Stat(ctx context.Context, pathType api.PathType, filename string) (api.FileInfo, error)
	// List enumerates files matching pattern (shell glob, empty means all)
	// and the optional extension filter, ordered by name.
	List(ctx context.Context, pathType api.PathType, pattern string, extensions []string) ([]api.FileInfo, error)
	// Exists reports presence without error for missing files. Security
	// rejections still surface as errors.
	Exists(ctx context.Context, pathType api.PathType, filename string) (bool, error)
	// ScopedLocal invokes fn with a real filesystem path for libraries that
	// need one. Remote backends download to a temporary file first and, when
	// upload is set, push the result back on successful return. The
	// temporary file never outlives fn, whether fn returns, fails, or the
	// context is cancelled.
	ScopedLocal(ctx context.Context, pathType api.PathType, filename string, upload bool, fn func(localPath string) error) error
	// DisplayPath renders a human-readable location for tool results.
	DisplayPath(pathType api.PathType, filename string) (string, error)
	// Close releases backend resources.
	Close() error
}

// NormalizeExtensions lowercases and dot-prefixes an extension filter.
func NormalizeExtensions(extensions []string) []string {
	if len(extensions) == 0 {
		return nil
	}
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// MatchName applies the glob pattern and extension filter to one filename.
// The pattern follows path.Match syntax; an empty pattern matches everything.
func MatchName(name, pattern string, extensions []string) (bool, error) {
	if len(extensions) > 0 {
		ext := strings.ToLower(path.Ext(name))
		found := false
		for _, allowed := range extensions {
			if ext == allowed {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	if pattern == "" || pattern == "*" {
		return true, nil
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false, fmt.Errorf("storage: invalid pattern %q: %w", pattern, api.ErrInvalidParameter)
	}
	return ok, nil
}

// SortKey selects the ordering criterion for listings.
type SortKey string

// Supported listing sort keys.
const (
	SortByName     SortKey = "name"
	SortBySize     SortKey = "size"
	SortByModified SortKey = "modified"
)

// SortFileInfos orders infos in place. Descending order puts the largest or
// newest entries first.
func SortFileInfos(infos []api.FileInfo, key SortKey, descending bool) {
	less := func(a, b api.FileInfo) bool { return a.Name < b.Name }
	switch key {
	case SortBySize:
		less = func(a, b api.FileInfo) bool { return a.SizeBytes < b.SizeBytes }
	case SortByModified:
		less = func(a, b api.FileInfo) bool { return a.ModifiedUnix < b.ModifiedUnix }
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if descending {
			return less(infos[j], infos[i])
		}
		return less(infos[i], infos[j])
	})
}

// MimeType guesses a content type from the filename extension with a
// per-namespace fallback, so chunk responses always carry a usable type.
func MimeType(filename string, pathType api.PathType) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	}
	switch pathType {
	case api.PathTypeVideo:
		return "video/mp4"
	case api.PathTypeImage:
		return "image/png"
	case api.PathTypeAudio:
		return "audio/mpeg"
	default:
		return ContentTypeOctetStream
	}
}

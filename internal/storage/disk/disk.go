// Package disk implements storage.Backend on the local filesystem, one
// sandboxed directory per path type.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/xid"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/pathsandbox"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/pslog"
)

// Config captures the tunables for the disk backend.
type Config struct {
	// Roots maps each path type to its sandbox root directory. Missing
	// directories are created.
	Roots  map[api.PathType]string
	Logger pslog.Logger
}

// Store implements storage.Backend backed by the local filesystem. Writes go
// through a temp file plus rename so a failed stream never leaves a
// truncated artifact visible under its final name.
type Store struct {
	sandboxes map[api.PathType]*pathsandbox.Sandbox
	logger    pslog.Logger
}

// New validates every configured root once and returns the store.
func New(cfg Config) (*Store, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("disk: at least one path root required")
	}
	sandboxes := make(map[api.PathType]*pathsandbox.Sandbox, len(cfg.Roots))
	for pathType, root := range cfg.Roots {
		sb, err := pathsandbox.New(root)
		if err != nil {
			return nil, fmt.Errorf("disk: %s root: %w", pathType, err)
		}
		sandboxes[pathType] = sb
	}
	return &Store{
		sandboxes: sandboxes,
		logger:    loggingutil.EnsureLogger(cfg.Logger),
	}, nil
}

func (s *Store) sandbox(pathType api.PathType) (*pathsandbox.Sandbox, error) {
	sb, ok := s.sandboxes[pathType]
	if !ok {
		return nil, fmt.Errorf("disk: unknown path type %q: %w", pathType, api.ErrInvalidParameter)
	}
	return sb, nil
}

// Read returns the whole file.
func (s *Store) Read(ctx context.Context, pathType api.PathType, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sb, err := s.sandbox(pathType)
	if err != nil {
		return nil, err
	}
	target, err := sb.Resolve(filename, true)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("disk: %q: %w", filename, api.ErrNotFound)
		}
		return nil, fmt.Errorf("disk: read %q: %w", filename, err)
	}
	return data, nil
}

// WriteStream copies body into a temp file in the same directory and renames
// it over the target on success. On any failure the temp file is removed and
// the target is untouched.
func (s *Store) WriteStream(ctx context.Context, pathType api.PathType, filename string, body io.Reader) (string, int64, error) {
	sb, err := s.sandbox(pathType)
	if err != nil {
		return "", 0, err
	}
	target, err := sb.Resolve(filename, false)
	if err != nil {
		return "", 0, err
	}
	tmp := target + ".tmp-" + xid.New().String()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("disk: create temp for %q: %w", filename, err)
	}
	written, err := io.Copy(f, &contextReader{ctx: ctx, r: body})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("disk: write %q: %w", filename, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("disk: finalize %q: %w", filename, err)
	}
	s.logger.Debug("disk.write_stream", "path_type", string(pathType), "filename", filename, "bytes", written)
	return target, written, nil
}

// Stat returns metadata for one file.
func (s *Store) Stat(ctx context.Context, pathType api.PathType, filename string) (api.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return api.FileInfo{}, err
	}
	sb, err := s.sandbox(pathType)
	if err != nil {
		return api.FileInfo{}, err
	}
	target, err := sb.Resolve(filename, true)
	if err != nil {
		return api.FileInfo{}, err
	}
	fi, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.FileInfo{}, fmt.Errorf("disk: %q: %w", filename, api.ErrNotFound)
		}
		return api.FileInfo{}, fmt.Errorf("disk: stat %q: %w", filename, err)
	}
	return api.FileInfo{
		Name:         filepath.Base(target),
		SizeBytes:    fi.Size(),
		ModifiedUnix: fi.ModTime().Unix(),
	}, nil
}

// List enumerates regular files in the namespace. Symlinks and directories
// are skipped, never followed.
func (s *Store) List(ctx context.Context, pathType api.PathType, pattern string, extensions []string) ([]api.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sb, err := s.sandbox(pathType)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(sb.Root())
	if err != nil {
		return nil, fmt.Errorf("disk: list %s: %w", pathType, err)
	}
	exts := storage.NormalizeExtensions(extensions)
	var infos []api.FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ok, err := storage.MatchName(entry.Name(), pattern, exts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, api.FileInfo{
			Name:         entry.Name(),
			SizeBytes:    fi.Size(),
			ModifiedUnix: fi.ModTime().Unix(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Exists reports file presence. Traversal and symlink rejections propagate.
func (s *Store) Exists(ctx context.Context, pathType api.PathType, filename string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sb, err := s.sandbox(pathType)
	if err != nil {
		return false, err
	}
	_, err = sb.Resolve(filename, true)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, api.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ScopedLocal hands fn the real path; no temp copy is needed locally. The
// upload flag only affects whether the target must already exist.
func (s *Store) ScopedLocal(ctx context.Context, pathType api.PathType, filename string, upload bool, fn func(localPath string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sb, err := s.sandbox(pathType)
	if err != nil {
		return err
	}
	target, err := sb.Resolve(filename, !upload)
	if err != nil {
		return err
	}
	return fn(target)
}

// DisplayPath renders the absolute path for tool output.
func (s *Store) DisplayPath(pathType api.PathType, filename string) (string, error) {
	sb, err := s.sandbox(pathType)
	if err != nil {
		return "", err
	}
	return sb.Resolve(filename, false)
}

// Close is a no-op for the disk backend.
func (s *Store) Close() error { return nil }

// contextReader aborts a long copy when the context is cancelled, so an
// abandoned upload cannot pin the stream forever.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

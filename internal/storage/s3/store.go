// Package s3 implements storage.Backend on S3-compatible object storage via
// minio-go. Object keys are <prefix>/<pathType>/<filename>; filenames stay
// flat, validated with the same rejection taxonomy as the disk sandbox.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/xid"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/pslog"
)

// Config controls the behaviour of the S3 storage backend. Credentials come
// from the standard AWS/MinIO environment chain unless CustomCreds is set.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	PartSize       int64
	CustomCreds    *credentials.Credentials
	Transport      http.RoundTripper
	Logger         pslog.Logger
}

// Store implements storage.Backend backed by S3-compatible object storage.
type Store struct {
	client *minio.Client
	cfg    Config
	logger pslog.Logger
}

const defaultPartSize = 16 << 20 // 16 MiB multipart parts for streaming puts

// New constructs a Store using the provided configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	creds := cfg.CustomCreds
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: init client: %w", err)
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = defaultPartSize
	}
	return &Store{
		client: client,
		cfg:    cfg,
		logger: loggingutil.EnsureLogger(cfg.Logger),
	}, nil
}

// validateFlatName applies the sandbox taxonomy to object names. Object
// storage has no symlinks, so only shape checks apply here.
func validateFlatName(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", fmt.Errorf("s3: empty filename: %w", api.ErrInvalidParameter)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", fmt.Errorf("s3: %q: %w", filename, api.ErrPathTraversal)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("s3: %q: %w", filename, api.ErrPathTraversal)
	}
	if strings.ContainsAny(name, "/\\") {
		// Dot segments mean escape attempts; anything else is just nesting,
		// which flat names do not allow. Dots inside a single segment are
		// fine ("clip..final.mp4" is a valid name).
		for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
			if seg == "." || seg == ".." {
				return "", fmt.Errorf("s3: %q: %w", filename, api.ErrPathTraversal)
			}
		}
		return "", fmt.Errorf("s3: %q: nested paths are not allowed: %w", filename, api.ErrInvalidParameter)
	}
	return name, nil
}

func (s *Store) objectKey(pathType api.PathType, name string) string {
	parts := []string{}
	if prefix := strings.Trim(s.cfg.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, string(pathType), name)
	return path.Join(parts...)
}

func (s *Store) dirPrefix(pathType api.PathType) string {
	key := s.objectKey(pathType, "x")
	return strings.TrimSuffix(key, "x")
}

// Read returns the whole object.
func (s *Store) Read(ctx context.Context, pathType api.PathType, filename string) ([]byte, error) {
	name, err := validateFlatName(filename)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(pathType, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(err, filename)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapError(err, filename)
	}
	return data, nil
}

// WriteStream uploads body as one object. minio streams multipart parts, so
// the payload is never buffered whole in memory. A failed upload is aborted
// by the SDK and leaves no visible object.
func (s *Store) WriteStream(ctx context.Context, pathType api.PathType, filename string, body io.Reader) (string, int64, error) {
	name, err := validateFlatName(filename)
	if err != nil {
		return "", 0, err
	}
	key := s.objectKey(pathType, name)
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: storage.MimeType(name, pathType),
		PartSize:    uint64(s.cfg.PartSize),
	})
	if err != nil {
		return "", 0, s.wrapError(err, filename)
	}
	s.logger.Debug("s3.write_stream", "bucket", s.cfg.Bucket, "key", key, "bytes", info.Size)
	return s.displayPath(key), info.Size, nil
}

// Stat returns object metadata.
func (s *Store) Stat(ctx context.Context, pathType api.PathType, filename string) (api.FileInfo, error) {
	name, err := validateFlatName(filename)
	if err != nil {
		return api.FileInfo{}, err
	}
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, s.objectKey(pathType, name), minio.StatObjectOptions{})
	if err != nil {
		return api.FileInfo{}, s.wrapError(err, filename)
	}
	modified := int64(0)
	if !info.LastModified.IsZero() {
		modified = info.LastModified.Unix()
	}
	return api.FileInfo{Name: name, SizeBytes: info.Size, ModifiedUnix: modified}, nil
}

// List enumerates objects directly under the namespace prefix.
func (s *Store) List(ctx context.Context, pathType api.PathType, pattern string, extensions []string) ([]api.FileInfo, error) {
	prefix := s.dirPrefix(pathType)
	exts := storage.NormalizeExtensions(extensions)
	var infos []api.FileInfo
	for object := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if object.Err != nil {
			return nil, s.wrapError(object.Err, string(pathType))
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		ok, err := storage.MatchName(name, pattern, exts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		modified := int64(0)
		if !object.LastModified.IsZero() {
			modified = object.LastModified.Unix()
		}
		infos = append(infos, api.FileInfo{Name: name, SizeBytes: object.Size, ModifiedUnix: modified})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Exists reports object presence.
func (s *Store) Exists(ctx context.Context, pathType api.PathType, filename string) (bool, error) {
	_, err := s.Stat(ctx, pathType, filename)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, api.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ScopedLocal downloads the object to a temporary file, hands it to fn, and
// removes it afterwards. With upload set the temporary file's final content
// is pushed back on fn's success; the temp file is removed in every outcome.
func (s *Store) ScopedLocal(ctx context.Context, pathType api.PathType, filename string, upload bool, fn func(localPath string) error) error {
	name, err := validateFlatName(filename)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp("", "mediad-s3-*-"+xid.New().String()+path.Ext(name))
	if err != nil {
		return fmt.Errorf("s3: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if !upload {
		obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(pathType, name), minio.GetObjectOptions{})
		if err != nil {
			tmp.Close()
			return s.wrapError(err, filename)
		}
		_, err = io.Copy(tmp, obj)
		obj.Close()
		if err != nil {
			tmp.Close()
			return s.wrapError(err, filename)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("s3: close temp: %w", err)
	}

	if err := fn(tmpPath); err != nil {
		return err
	}
	if !upload {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("s3: reopen temp: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3: stat temp: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(pathType, name), f, fi.Size(), minio.PutObjectOptions{
		ContentType: storage.MimeType(name, pathType),
	})
	if err != nil {
		return s.wrapError(err, filename)
	}
	return nil
}

// DisplayPath renders the object URI for tool output.
func (s *Store) DisplayPath(pathType api.PathType, filename string) (string, error) {
	name, err := validateFlatName(filename)
	if err != nil {
		return "", err
	}
	return s.displayPath(s.objectKey(pathType, name)), nil
}

func (s *Store) displayPath(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

// Close releases idle connections held by the transport.
func (s *Store) Close() error {
	if t, ok := s.cfg.Transport.(*http.Transport); ok && t != nil {
		t.CloseIdleConnections()
	}
	return nil
}

func (s *Store) wrapError(err error, filename string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("s3: %q: %w", filename, api.ErrNotFound)
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		remote := &api.RemoteError{
			Status: resp.StatusCode,
			Code:   resp.Code,
			Detail: resp.Message,
			Err:    err,
		}
		return fmt.Errorf("s3: %q: %w", filename, remote)
	}
	if isRetryable(err) {
		return fmt.Errorf("s3: %q: %w", filename, &api.RemoteError{Err: err})
	}
	return fmt.Errorf("s3: %q: %w", filename, err)
}

func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound
	}
	return false
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

var _ storage.Backend = (*Store)(nil)

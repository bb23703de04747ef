package mediad

import (
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/mediad/internal/storage"
	"pkt.systems/mediad/internal/storage/disk"
	"pkt.systems/mediad/internal/storage/s3"
	"pkt.systems/pslog"
)

// OpenBackend constructs the storage backend named by cfg.StoreURL.
func OpenBackend(cfg Config, logger pslog.Logger) (storage.Backend, error) {
	u, err := url.Parse(cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	switch u.Scheme {
	case "disk":
		roots, err := cfg.PathRoots()
		if err != nil {
			return nil, err
		}
		return disk.New(disk.Config{Roots: roots, Logger: logger})
	case "s3":
		return s3.New(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			Bucket:         u.Host,
			Prefix:         strings.Trim(u.Path, "/"),
			Insecure:       cfg.S3Insecure,
			ForcePathStyle: cfg.S3ForcePathStyle,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

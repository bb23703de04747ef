package mediad

import "strings"

// Capabilities is the static feature set of a running server. It is derived
// from the configuration exactly once at startup and consulted by tool
// registration; there is no runtime feature probing.
type Capabilities struct {
	// Video generation tools. Always on; it is the core surface.
	Video bool
	// Image generation tools.
	Image bool
	// Audio artifact namespace (storage and transfer only; mediad runs no
	// audio generation jobs).
	Audio bool
	// RemoteStorage is set when artifacts live in an object store rather
	// than on local disk.
	RemoteStorage bool
}

// DetectCapabilities derives the capability set from the configuration.
func DetectCapabilities(cfg Config) Capabilities {
	return Capabilities{
		Video:         true,
		Image:         !cfg.DisableImageAPI,
		Audio:         true,
		RemoteStorage: strings.HasPrefix(cfg.StoreURL, "s3://"),
	}
}

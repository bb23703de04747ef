// Package pathsandbox confines user-supplied filenames to a validated root
// directory. Filenames arrive from an LLM-driven caller and are treated as
// hostile on every call: only the root itself is validated once, at
// construction.
package pathsandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/mediad/api"
)

// Sandbox resolves flat filenames beneath one validated root. Errors echo
// only the offending filename, never a resolved absolute path.
type Sandbox struct {
	root string
}

// New validates root once: it must be an existing, absolute, non-symlink
// directory. The directory is created when absent so first use of a
// namespace does not require manual setup.
func New(root string) (*Sandbox, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("pathsandbox: root path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pathsandbox: resolve root: %w", err)
	}
	abs = filepath.Clean(abs)
	fi, err := os.Lstat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("pathsandbox: create root: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("pathsandbox: stat root: %w", err)
	case fi.Mode()&os.ModeSymlink != 0:
		return nil, fmt.Errorf("pathsandbox: root must not be a symbolic link")
	case !fi.IsDir():
		return nil, fmt.Errorf("pathsandbox: root is not a directory")
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the validated absolute root directory.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps an untrusted filename to a trusted absolute path inside the
// root, or rejects it. The checks run in full on every call:
//
//   - empty or whitespace-only names fail with ErrInvalidParameter
//   - absolute names and names that normalize outside the root fail with
//     ErrPathTraversal
//   - names containing path separators after normalization fail with
//     ErrInvalidParameter (filenames are flat by contract)
//   - a symbolic link at any component below the root fails with
//     ErrSymlinkRejected, whatever it points at
//   - a missing target fails with ErrNotFound when mustExist is set
func (s *Sandbox) Resolve(filename string, mustExist bool) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", fmt.Errorf("pathsandbox: empty filename: %w", api.ErrInvalidParameter)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", fmt.Errorf("pathsandbox: %q: %w", filename, api.ErrPathTraversal)
	}

	candidate := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("pathsandbox: %q: %w", filename, api.ErrPathTraversal)
	}
	if strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("pathsandbox: %q: nested paths are not allowed: %w", filename, api.ErrInvalidParameter)
	}

	// Lstat every component below the root. With flat names that is the leaf
	// alone, but the loop stays general so a future relaxation of the
	// flatness rule cannot silently skip intermediate links.
	current := s.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		fi, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			if mustExist {
				return "", fmt.Errorf("pathsandbox: %q: %w", filename, api.ErrNotFound)
			}
			break
		}
		if err != nil {
			return "", fmt.Errorf("pathsandbox: inspect %q: %w", filename, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("pathsandbox: %q: %w", filename, api.ErrSymlinkRejected)
		}
	}
	return candidate, nil
}

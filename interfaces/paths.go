package interfaces

import (
	"fmt"
	"path"
	"strings"
)

// CleanBundlePath resolves p relative to the bundle root. Absolute paths,
// paths leaving the root and the root itself are rejected.
func CleanBundlePath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

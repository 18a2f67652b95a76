// Package security guards file arguments given to the CLI.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve returns the absolute form of target, rejecting it when it
// escapes boundary through ".." segments.
func Resolve(boundary, target string) (string, error) {
	absBoundary, err := filepath.Abs(boundary)
	if err != nil {
		return "", fmt.Errorf("failed to resolve boundary path %q: %w", boundary, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBoundary, target)
	}
	absTarget := filepath.Clean(target)

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return "", fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes boundary %q", target, boundary)
	}
	return absTarget, nil
}

// ValidatePathWithinBoundary reports whether target stays inside boundary.
func ValidatePathWithinBoundary(boundary, target string) error {
	_, err := Resolve(boundary, target)
	return err
}

// ResolveAll resolves every target, failing on the first that escapes.
func ResolveAll(boundary string, targets ...string) ([]string, error) {
	out := make([]string, 0, len(targets))
	for _, target := range targets {
		abs, err := Resolve(boundary, target)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

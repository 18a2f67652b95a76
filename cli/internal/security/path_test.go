package security

import (
	"path/filepath"
	"testing"
)

func TestResolve_Inside(t *testing.T) {
	boundary := "/srv/project"
	tests := map[string]string{
		"/srv/project":                     "/srv/project",
		"/srv/project/workflows/a.yaml":    "/srv/project/workflows/a.yaml",
		"workflows/a.yaml":                 "/srv/project/workflows/a.yaml",
		"./out/page.html":                  "/srv/project/out/page.html",
		"..hidden/file":                    "/srv/project/..hidden/file",
		"/srv/project/a/../b/workflow.yml": "/srv/project/b/workflow.yml",
	}

	for target, want := range tests {
		got, err := Resolve(boundary, target)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", target, err)
			continue
		}
		if got != filepath.FromSlash(want) {
			t.Errorf("Resolve(%q) = %q, want %q", target, got, want)
		}
	}
}

func TestResolve_Traversal(t *testing.T) {
	boundary := "/srv/project"
	malicious := []string{
		"/srv/project/../../../etc/passwd",
		"/srv/project/../other-project",
		"/srv",
		"/etc/passwd",
		"../",
		"../../etc",
	}

	for _, target := range malicious {
		if err := ValidatePathWithinBoundary(boundary, target); err == nil {
			t.Errorf("Expected %q to be rejected, but it was allowed", target)
		}
	}
}

func TestResolveAll(t *testing.T) {
	got, err := ResolveAll("/srv/project", "a.yaml", "b/c.yaml")
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(got) != 2 || got[1] != filepath.FromSlash("/srv/project/b/c.yaml") {
		t.Errorf("ResolveAll = %v", got)
	}

	if _, err := ResolveAll("/srv/project", "a.yaml", "../../etc/passwd"); err == nil {
		t.Error("Expected error when one path escapes")
	}
}

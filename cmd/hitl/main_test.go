package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitWorkspaces(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "/home/dev/app", want: []string{"/home/dev/app"}},
		{name: "multiple", raw: "/a,/b,/c", want: []string{"/a", "/b", "/c"}},
		{name: "spaces trimmed", raw: " /a , /b ", want: []string{"/a", "/b"}},
		{name: "blank parts dropped", raw: "/a,,  ,/b", want: []string{"/a", "/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitWorkspaces(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("splitWorkspaces(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nHITL_TEST_FRESH=from-file\nHITL_TEST_TAKEN=from-file\n\n=novalue\nBROKENLINE\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("HITL_TEST_TAKEN", "from-env")
	t.Setenv("HITL_TEST_FRESH", "")
	_ = os.Unsetenv("HITL_TEST_FRESH")

	loadDotEnv(path)

	if got := os.Getenv("HITL_TEST_FRESH"); got != "from-file" {
		t.Fatalf("fresh var = %q, want %q", got, "from-file")
	}
	if got := os.Getenv("HITL_TEST_TAKEN"); got != "from-env" {
		t.Fatalf("already-set var = %q, want %q", got, "from-env")
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	// Must be a no-op, not a crash.
	loadDotEnv(filepath.Join(t.TempDir(), "does-not-exist.env"))
}

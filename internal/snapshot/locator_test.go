package snapshot

import (
	"context"
	"testing"
)

func TestResolveLocalPath(t *testing.T) {
	root := t.TempDir()
	got, cleanup, err := Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer cleanup()
	if got != root {
		t.Fatalf("got %q, want %q", got, root)
	}
}

func TestResolveMissingPath(t *testing.T) {
	if _, _, err := Resolve(context.Background(), "/no/such/checkout"); err == nil {
		t.Fatal("missing path must be an error")
	}
}

func TestIsGitURL(t *testing.T) {
	tests := []struct {
		locator string
		want    bool
	}{
		{"https://github.com/acme/model.git", true},
		{"http://internal.host/repo", true},
		{"git@github.com:acme/model.git", true},
		{"/var/checkouts/model.git", true},
		{"/var/checkouts/model", false},
		{"relative/path", false},
	}
	for _, tt := range tests {
		if got := isGitURL(tt.locator); got != tt.want {
			t.Fatalf("isGitURL(%q) = %v, want %v", tt.locator, got, tt.want)
		}
	}
}

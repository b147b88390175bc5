package snapshot

import (
	"context"
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"

	"cardcheck/internal/logging"
)

// Resolve turns a snapshot locator into a local directory. Git URLs are
// cloned (depth 1) into a temp dir; the returned cleanup removes it. Local
// paths pass through with a no-op cleanup.
func Resolve(ctx context.Context, locator string) (string, func(), error) {
	if !isGitURL(locator) {
		if _, err := os.Stat(locator); err != nil {
			return "", nil, fmt.Errorf("snapshot locator %q: %w", locator, err)
		}
		return locator, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "cardcheck-snapshot-*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir for clone: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	logging.Get(logging.CategorySnapshot).Infof("cloning %s", locator)
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          locator,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("clone %s: %w", locator, err)
	}
	return dir, cleanup, nil
}

func isGitURL(locator string) bool {
	return strings.HasPrefix(locator, "http://") ||
		strings.HasPrefix(locator, "https://") ||
		strings.HasPrefix(locator, "git@") ||
		strings.HasSuffix(locator, ".git")
}

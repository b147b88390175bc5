package search

import (
	"fmt"
	"path"
	"strings"

	"cardcheck/internal/logging"
)

// Artifact checks for the existence of named files without opening them.
// The pattern is a glob matched against the full relative path and against
// the base name, so both "models/*.pkl" and "model.pkl" work.
func (t *Toolkit) Artifact(pattern string) (*Result, error) {
	if pattern == "" {
		return &Result{}, nil
	}

	res := &Result{}
	for _, f := range t.snap.Files() {
		matched, err := path.Match(pattern, f.Path)
		if err != nil {
			return nil, fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
		}
		if !matched {
			base := path.Base(f.Path)
			if matched, _ = path.Match(pattern, base); !matched {
				matched = strings.EqualFold(base, pattern)
			}
		}
		if matched {
			res.add(Match{
				File:    f.Path,
				Snippet: fmt.Sprintf("%s (%s, %d bytes)", f.Path, f.Kind, f.Size),
			}, t.maxMatches)
		}
	}
	logging.SearchDebug("artifact search %q: %d hits", pattern, res.Count)
	return res, nil
}

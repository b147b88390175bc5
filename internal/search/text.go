package search

import (
	"fmt"
	"regexp"
	"strings"

	"cardcheck/internal/logging"
	"cardcheck/internal/snapshot"
)

// Text searches all loaded source and notebook files for a literal
// substring, case-insensitive.
func (t *Toolkit) Text(query string) (*Result, error) {
	if query == "" {
		return &Result{}, nil
	}
	needle := strings.ToLower(query)
	return t.scanText(func(line string) bool {
		return strings.Contains(strings.ToLower(line), needle)
	})
}

// TextRegex searches with a regular expression instead of a literal.
func (t *Toolkit) TextRegex(pattern string) (*Result, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	return t.scanText(re.MatchString)
}

// scanText walks loaded file contents line by line.
func (t *Toolkit) scanText(matches func(string) bool) (*Result, error) {
	res := &Result{}
	for _, f := range t.snap.Files() {
		if f.Kind == snapshot.KindArtifact {
			continue
		}
		content, ok := t.snap.Content(f.Path)
		if !ok {
			continue
		}
		for i, line := range strings.Split(string(content), "\n") {
			if matches(line) {
				res.add(Match{
					File:    f.Path,
					Line:    i + 1,
					Snippet: strings.TrimSpace(line),
				}, t.maxMatches)
			}
		}
	}
	logging.SearchDebug("text search: %d hits (truncated=%v)", res.Count, res.Truncated)
	return res, nil
}

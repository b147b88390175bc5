// Package search implements the four read-only evidence query primitives
// used by generated verification programs: text search, structural search,
// notebook search, and artifact search. All queries run against an immutable
// snapshot and are safe to call concurrently.
package search

// snippetLimit bounds the stored text of a single match.
const snippetLimit = 200

// Match is one evidence hit with its source location.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Cell    int    `json:"cell,omitempty"`
	Snippet string `json:"snippet"`
}

// Result is the structured outcome of one query. Count equals len(Details)
// unless Truncated is set, in which case Count keeps the full hit count.
type Result struct {
	Found     bool    `json:"found"`
	Count     int     `json:"count"`
	Details   []Match `json:"details"`
	Truncated bool    `json:"truncated,omitempty"`
}

// add records a hit, capping Details at max and flagging truncation.
func (r *Result) add(m Match, max int) {
	r.Found = true
	r.Count++
	if len(r.Details) >= max {
		r.Truncated = true
		return
	}
	m.Snippet = clipSnippet(m.Snippet)
	r.Details = append(r.Details, m)
}

// Merge combines results from several queries into one. Truncation and
// found-ness propagate; counts sum.
func Merge(results ...*Result) *Result {
	merged := &Result{}
	for _, r := range results {
		if r == nil {
			continue
		}
		merged.Found = merged.Found || r.Found
		merged.Count += r.Count
		merged.Truncated = merged.Truncated || r.Truncated
		merged.Details = append(merged.Details, r.Details...)
	}
	return merged
}

func clipSnippet(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	return s[:snippetLimit] + "..."
}

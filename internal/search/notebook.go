package search

import (
	"strings"

	"cardcheck/internal/logging"
	"cardcheck/internal/snapshot"
)

// Notebook searches code cell sources for a literal substring.
func (t *Toolkit) Notebook(query string) (*Result, error) {
	return t.scanCells(query, false)
}

// NotebookOutputs searches recorded cell outputs instead of sources, so
// claims about computed results (metrics, printed scores) can be checked.
func (t *Toolkit) NotebookOutputs(query string) (*Result, error) {
	return t.scanCells(query, true)
}

func (t *Toolkit) scanCells(query string, outputs bool) (*Result, error) {
	res := &Result{}
	if query == "" {
		return res, nil
	}
	needle := strings.ToLower(query)

	for _, f := range t.snap.Files() {
		if f.Kind != snapshot.KindNotebook {
			continue
		}
		nb, ok := t.snap.NotebookFor(f.Path)
		if !ok {
			continue
		}
		for _, cell := range nb.Cells {
			if cell.Type != "code" {
				continue
			}
			if outputs {
				for _, out := range cell.Outputs {
					if line, ok := findLine(out, needle); ok {
						res.add(Match{File: f.Path, Cell: cell.Index, Snippet: line}, t.maxMatches)
					}
				}
			} else if line, ok := findLine(cell.Source, needle); ok {
				res.add(Match{File: f.Path, Cell: cell.Index, Snippet: line}, t.maxMatches)
			}
		}
	}
	logging.SearchDebug("notebook search (outputs=%v): %d hits", outputs, res.Count)
	return res, nil
}

// findLine returns the first line of text containing needle.
func findLine(text, needle string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

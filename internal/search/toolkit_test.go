package search

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cardcheck/internal/snapshot"
)

const trainPy = `import pandas as pd
from sklearn.ensemble import RandomForestClassifier

class FraudModel:
    def __init__(self, n_estimators=200):
        self.clf = RandomForestClassifier(n_estimators=n_estimators)

    def fit(self, X, y):
        self.clf.fit(X, y)

def load_data(path):
    return pd.read_csv(path)
`

const metricsIpynb = `{
  "nbformat": 4,
  "cells": [
    {
      "cell_type": "markdown",
      "source": ["# Evaluation results"]
    },
    {
      "cell_type": "code",
      "source": ["from train import FraudModel\n", "acc = evaluate(model)\n", "print(f\"Accuracy: {acc}\")"],
      "outputs": [
        {"output_type": "stream", "text": ["Accuracy: 0.92\n"]},
        {"output_type": "execute_result", "data": {"text/plain": ["0.9213"]}}
      ]
    }
  ]
}`

// fixtureToolkit builds a toolkit over a small checkout with a Python
// source, a notebook, and a couple of artifacts.
func fixtureToolkit(t *testing.T, maxMatches int) *Toolkit {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"train.py":         trainPy,
		"metrics.ipynb":    metricsIpynb,
		"README.md":        "A fraud detection model trained on transaction data.\n",
		"models/model.pkl": "\x80\x04binary",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := snapshot.Load(root)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return NewToolkit(snap, maxMatches)
}

func TestText(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	res, err := tk.Text("randomforestclassifier")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !res.Found || res.Count != 2 {
		t.Fatalf("case-insensitive search: found=%v count=%d, want 2 hits", res.Found, res.Count)
	}
	for _, m := range res.Details {
		if m.File != "train.py" || m.Line == 0 {
			t.Fatalf("bad match location: %+v", m)
		}
	}

	res, err = tk.Text("no such string anywhere")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if res.Found || res.Count != 0 {
		t.Fatalf("want empty result, got %+v", res)
	}

	// Notebooks are plain files for text search too.
	res, err = tk.Text("fraud detection")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !res.Found {
		t.Fatal("README text not searchable")
	}
}

func TestTextEmptyQuery(t *testing.T) {
	tk := fixtureToolkit(t, 50)
	res, err := tk.Text("")
	if err != nil || res.Found {
		t.Fatalf("empty query: res=%+v err=%v", res, err)
	}
}

func TestTextRegex(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	res, err := tk.TextRegex(`n_estimators\s*=\s*\d+`)
	if err != nil {
		t.Fatalf("TextRegex: %v", err)
	}
	if !res.Found {
		t.Fatal("pattern should match the estimator count")
	}

	if _, err := tk.TextRegex(`([unclosed`); err == nil {
		t.Fatal("bad pattern must return an error")
	}
}

func TestStructural(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	tests := []struct {
		kind string
		name string
		want string // expected file of the first hit
	}{
		{KindClass, "FraudModel", "train.py"},
		{KindFunction, "load_data", "train.py"},
		{KindCall, "RandomForestClassifier", "train.py"},
		{KindImport, "sklearn", "train.py"},
		{KindImport, "train", "metrics.ipynb"}, // notebook cells parse as python
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.name, func(t *testing.T) {
			res, err := tk.Structural(tt.kind, tt.name)
			if err != nil {
				t.Fatalf("Structural: %v", err)
			}
			if !res.Found {
				t.Fatalf("no hits for kind=%s name=%s", tt.kind, tt.name)
			}
			hit := false
			for _, m := range res.Details {
				if m.File == tt.want {
					hit = true
				}
			}
			if !hit {
				t.Fatalf("no hit in %s: %+v", tt.want, res.Details)
			}
		})
	}
}

func TestStructuralNotebookCellIndex(t *testing.T) {
	tk := fixtureToolkit(t, 50)
	res, err := tk.Structural(KindCall, "evaluate")
	if err != nil {
		t.Fatalf("Structural: %v", err)
	}
	if !res.Found {
		t.Fatal("call in notebook cell not found")
	}
	if res.Details[0].File != "metrics.ipynb" || res.Details[0].Cell != 1 {
		t.Fatalf("wrong location: %+v", res.Details[0])
	}
}

func TestStructuralUnknownKind(t *testing.T) {
	tk := fixtureToolkit(t, 50)
	if _, err := tk.Structural("lambda", "x"); err == nil {
		t.Fatal("unknown kind must return an error")
	}
}

func TestNotebook(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	res, err := tk.Notebook("evaluate(model)")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	if !res.Found || res.Details[0].Cell != 1 {
		t.Fatalf("code cell search failed: %+v", res)
	}

	// Markdown cells are not code.
	res, err = tk.Notebook("Evaluation results")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	if res.Found {
		t.Fatalf("markdown matched as code: %+v", res)
	}
}

func TestNotebookOutputs(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	res, err := tk.NotebookOutputs("accuracy: 0.92")
	if err != nil {
		t.Fatalf("NotebookOutputs: %v", err)
	}
	if !res.Found {
		t.Fatal("stream output not found")
	}

	res, err = tk.NotebookOutputs("0.9213")
	if err != nil {
		t.Fatalf("NotebookOutputs: %v", err)
	}
	if !res.Found {
		t.Fatal("execute_result output not found")
	}

	// Output text is not code-cell source.
	res, err = tk.Notebook("0.9213")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	if res.Found {
		t.Fatalf("output text matched as source: %+v", res)
	}
}

func TestArtifact(t *testing.T) {
	tk := fixtureToolkit(t, 50)

	tests := []struct {
		pattern string
		found   bool
	}{
		{"models/*.pkl", true},
		{"*.pkl", true},       // base-name glob
		{"model.pkl", true},   // exact base name
		{"MODEL.PKL", true},   // case-insensitive base name
		{"*.onnx", false},
		{"", false},
	}
	for _, tt := range tests {
		res, err := tk.Artifact(tt.pattern)
		if err != nil {
			t.Fatalf("Artifact(%q): %v", tt.pattern, err)
		}
		if res.Found != tt.found {
			t.Fatalf("Artifact(%q) found=%v, want %v", tt.pattern, res.Found, tt.found)
		}
	}

	if _, err := tk.Artifact("[bad"); err == nil {
		t.Fatal("malformed glob must return an error")
	}
}

func TestResultTruncation(t *testing.T) {
	tk := fixtureToolkit(t, 2)

	// "self" appears more than twice in train.py.
	res, err := tk.Text("self")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation: %+v", res)
	}
	if len(res.Details) != 2 {
		t.Fatalf("details not capped: %d", len(res.Details))
	}
	if res.Count <= 2 {
		t.Fatalf("count must keep the full total, got %d", res.Count)
	}
}

func TestMerge(t *testing.T) {
	a := &Result{Found: true, Count: 2, Details: []Match{{File: "a"}, {File: "b"}}}
	b := &Result{}
	c := &Result{Found: true, Count: 1, Truncated: true, Details: []Match{{File: "c"}}}

	merged := Merge(a, b, nil, c)
	if !merged.Found || merged.Count != 3 || !merged.Truncated {
		t.Fatalf("merged = %+v", merged)
	}
	if len(merged.Details) != 3 {
		t.Fatalf("details = %d, want 3", len(merged.Details))
	}
}

func TestSnippetClipped(t *testing.T) {
	root := t.TempDir()
	long := "x = \"" + strings.Repeat("a", 500) + "\"\n"
	if err := os.WriteFile(filepath.Join(root, "long.py"), []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := snapshot.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	tk := NewToolkit(snap, 50)

	res, err := tk.Text("aaaa")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !res.Found || len(res.Details[0].Snippet) > snippetLimit+3 {
		t.Fatalf("snippet not clipped: %d chars", len(res.Details[0].Snippet))
	}
}

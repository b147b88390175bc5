// Package snapshot loads a read-only view of the implementation being
// checked: source files, computational notebooks, and opaque artifacts.
// Nothing in this package or its consumers ever writes to the snapshot.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cardcheck/internal/logging"
)

// FileKind classifies a snapshot entry.
type FileKind int

const (
	KindSource   FileKind = iota // parseable source code
	KindNotebook                 // .ipynb computational notebook
	KindArtifact                 // everything else: models, reports, data
)

func (k FileKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindNotebook:
		return "notebook"
	default:
		return "artifact"
	}
}

// File describes one snapshot entry. Paths are relative to the snapshot root
// and slash-separated.
type File struct {
	Path     string
	Kind     FileKind
	Size     int64
	Language string // tree-sitter language name for sources, "" otherwise
}

// Snapshot is an immutable listing of an implementation checkout with
// eagerly loaded text content. Safe for concurrent readers.
type Snapshot struct {
	root      string
	files     []File
	contents  map[string][]byte
	notebooks map[string]*Notebook
}

// maxReadable bounds how much of a single file is loaded into memory.
const maxReadable = 2 << 20

var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".ipynb_checkpoints": true,
}

var sourceLanguages = map[string]string{
	".go": "go",
	".py": "python",
	".js": "javascript",
	".mjs": "javascript",
	".jsx": "javascript",
}

// textualExtensions are non-parseable files still worth text search.
var textualExtensions = map[string]bool{
	".md": true, ".txt": true, ".yaml": true, ".yml": true,
	".toml": true, ".cfg": true, ".ini": true, ".json": true,
	".sh": true, ".r": true, ".ts": true, ".tsx": true,
}

// Load walks root and builds a snapshot. Source and notebook content is read
// up front so later queries never touch the filesystem.
func Load(root string) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot root %s is not a directory", root)
	}

	s := &Snapshot{
		root:      root,
		contents:  make(map[string][]byte),
		notebooks: make(map[string]*Notebook),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		f := File{Path: rel, Size: fi.Size(), Kind: KindArtifact}
		ext := strings.ToLower(filepath.Ext(rel))

		switch {
		case ext == ".ipynb":
			f.Kind = KindNotebook
		case sourceLanguages[ext] != "":
			f.Kind = KindSource
			f.Language = sourceLanguages[ext]
		case textualExtensions[ext]:
			f.Kind = KindSource
		}

		if f.Kind != KindArtifact && fi.Size() <= maxReadable {
			data, err := os.ReadFile(path)
			if err != nil {
				logging.Get(logging.CategorySnapshot).Warnf("skipping unreadable file %s: %v", rel, err)
				f.Kind = KindArtifact
			} else {
				s.contents[rel] = data
				if f.Kind == KindNotebook {
					nb, err := ParseNotebook(data)
					if err != nil {
						logging.Get(logging.CategorySnapshot).Warnf("unparseable notebook %s: %v", rel, err)
					} else {
						s.notebooks[rel] = nb
					}
				}
			}
		}

		s.files = append(s.files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk snapshot: %w", err)
	}

	logging.Get(logging.CategorySnapshot).Infof("loaded snapshot %s: %d files", root, len(s.files))
	return s, nil
}

// Root returns the snapshot root directory.
func (s *Snapshot) Root() string { return s.root }

// Files returns the full listing. Callers must not mutate the slice.
func (s *Snapshot) Files() []File { return s.files }

// Content returns a file's bytes when loaded.
func (s *Snapshot) Content(path string) ([]byte, bool) {
	b, ok := s.contents[path]
	return b, ok
}

// NotebookFor returns the parsed notebook for a path.
func (s *Snapshot) NotebookFor(path string) (*Notebook, bool) {
	nb, ok := s.notebooks[path]
	return nb, ok
}

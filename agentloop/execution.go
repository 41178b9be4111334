package agentloop

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Workspace is the filesystem view the core tools operate on.
type Workspace interface {
	ReadFile(path string, offset, limit int) (string, error)
	// ListDirectory walks path up to depth levels; depth 1 lists only the
	// directory itself. visit is called once per directory read.
	ListDirectory(path string, depth int, visit func(dir string)) ([]DirEntry, error)

	WorkingDirectory() string
	Platform() string
	OSVersion() string
}

// LocalWorkspace reads from the local machine. Relative paths resolve
// against the working directory.
type LocalWorkspace struct {
	workingDir string
	platform   string
	osVersion  string
}

// NewLocalWorkspace creates a workspace rooted at workingDir, or at the
// process working directory when empty.
func NewLocalWorkspace(workingDir string) *LocalWorkspace {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalWorkspace{
		workingDir: workingDir,
		platform:   runtime.GOOS,
		osVersion:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (w *LocalWorkspace) WorkingDirectory() string { return w.workingDir }
func (w *LocalWorkspace) Platform() string         { return w.platform }
func (w *LocalWorkspace) OSVersion() string        { return w.osVersion }

func (w *LocalWorkspace) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.workingDir, path)
}

// maxLineBytes bounds a single line returned by ReadFile.
const maxLineBytes = 1 << 20

// ReadFile returns lines of the file prefixed with their 1-based number.
// offset is the first line to return; limit 0 means no limit. Reading
// stops once the window is filled.
func (w *LocalWorkspace) ReadFile(path string, offset, limit int) (string, error) {
	f, err := os.Open(w.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	defer f.Close()

	first := max(offset, 1)
	var sb strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for n := 1; sc.Scan(); n++ {
		if n < first {
			continue
		}
		if limit > 0 && n >= first+limit {
			break
		}
		fmt.Fprintf(&sb, "%d | %s\n", n, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return sb.String(), nil
}

// ListDirectory returns entries relative to path in walk order: lexical
// within a directory, each directory followed by its contents.
func (w *LocalWorkspace) ListDirectory(path string, depth int, visit func(dir string)) ([]DirEntry, error) {
	depth = max(depth, 1)
	root := w.resolvePath(path)
	var result []DirEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			if !d.IsDir() {
				return fmt.Errorf("%s is not a directory", path)
			}
			if visit != nil {
				visit(p)
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		entry := DirEntry{Path: rel, IsDir: d.IsDir()}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				entry.Size = info.Size()
			}
		}
		result = append(result, entry)
		if d.IsDir() {
			if strings.Count(rel, "/")+1 >= depth {
				return fs.SkipDir
			}
			if visit != nil {
				visit(p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list_directory: %w", err)
	}
	return result, nil
}

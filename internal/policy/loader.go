package policy

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

//go:embed rego/*.rego
var defaultFS embed.FS

// File is a loaded Rego module.
type File struct {
	// Path identifies the module in OPA error messages.
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Defaults returns the embedded admission policy.
func Defaults() ([]*File, error) {
	entries, err := defaultFS.ReadDir("rego")
	if err != nil {
		return nil, fmt.Errorf("read embedded policies: %w", err)
	}
	files := make([]*File, 0, len(entries))
	for _, e := range entries {
		data, err := defaultFS.ReadFile("rego/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded policy %s: %w", e.Name(), err)
		}
		files = append(files, &File{
			Path:    "embedded/" + e.Name(),
			Name:    strings.TrimSuffix(e.Name(), ".rego"),
			Content: string(data),
		})
	}
	return files, nil
}

// Loader scans a directory for .rego files. Use afero.NewMemMapFs() in
// tests.
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader creates a loader over fs rooted at baseDir.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	return &Loader{fs: fs, baseDir: baseDir}
}

// LoadAll loads every .rego file below the directory, sorted by path. A
// missing directory yields no files.
func (l *Loader) LoadAll() ([]*File, error) {
	if l.baseDir == "" {
		return nil, nil
	}
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check policies directory: %w", err)
	}
	if !exists {
		return nil, nil
	}

	var files []*File
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		f, err := l.loadFile(path)
		if err != nil {
			return fmt.Errorf("load policy %s: %w", path, err)
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (l *Loader) loadFile(path string) (*File, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &File{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Content: string(content),
	}, nil
}

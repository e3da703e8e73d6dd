// Package results keeps the on-disk artifacts of every task, one directory
// per task id.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/memory"
	"github.com/spf13/afero"
)

// Files inside a task directory.
const (
	InputFile     = "input.jsonl"
	ResultFile    = "result.jsonl"
	DoneFile      = "done.txt"
	NodesFile     = "records/nodes.json"
	MemoryFile    = "memory.json"
	WorkspaceFile = "workspace.md"
	ReportFile    = "report.md"
	LogFile       = "engine.log"
)

// ErrNotFound is returned when a task directory or one of its files is missing.
var ErrNotFound = errors.New("not found")

// Input is the job request as stored in input.jsonl. API keys are never
// part of it.
type Input struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	Kind         string    `json:"kind"`
	Model        string    `json:"model"`
	SearchEngine string    `json:"search_engine,omitempty"`
	EnableSearch bool      `json:"enable_search"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result is a finished job's output as stored in result.jsonl.
type Result struct {
	ID           string    `json:"id"`
	Result       string    `json:"result"`
	Model        string    `json:"model"`
	SearchEngine string    `json:"search_engine,omitempty"`
	Steps        int       `json:"steps"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store reads and writes task directories under a base path.
type Store struct {
	fs   afero.Fs
	base string
}

// New returns a store on fs rooted at base. Use afero.NewMemMapFs() in tests.
func New(fs afero.Fs, base string) *Store {
	return &Store{fs: fs, base: base}
}

// NewOs returns a store on the operating system filesystem.
func NewOs(base string) *Store {
	return New(afero.NewOsFs(), base)
}

// Base returns the directory holding all task directories.
func (s *Store) Base() string { return s.base }

// Dir returns the directory of a task.
func (s *Store) Dir(taskID string) string { return filepath.Join(s.base, taskID) }

// Path returns the path of a file inside a task directory.
func (s *Store) Path(taskID, file string) string {
	return filepath.Join(s.Dir(taskID), filepath.FromSlash(file))
}

// Exists reports whether the task directory exists.
func (s *Store) Exists(taskID string) bool {
	ok, err := afero.DirExists(s.fs, s.Dir(taskID))
	return err == nil && ok
}

// Create makes the task directory and writes input.jsonl.
func (s *Store) Create(in Input) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.Path(in.ID, NodesFile)), 0o755); err != nil {
		return fmt.Errorf("create task dir: %w", err)
	}
	return s.writeJSONL(in.ID, InputFile, in, false)
}

// Input reads input.jsonl.
func (s *Store) Input(taskID string) (Input, error) {
	var in Input
	err := s.readLastJSONL(taskID, InputFile, &in)
	return in, err
}

// List returns the ids of every task directory, sorted.
func (s *Store) List() ([]string, error) {
	ok, err := afero.DirExists(s.fs, s.base)
	if err != nil {
		return nil, fmt.Errorf("check results dir: %w", err)
	}
	if !ok {
		return []string{}, nil
	}
	infos, err := afero.ReadDir(s.fs, s.base)
	if err != nil {
		return nil, fmt.Errorf("list results dir: %w", err)
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			ids = append(ids, info.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes the task directory.
func (s *Store) Remove(taskID string) error {
	if !s.Exists(taskID) {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return s.fs.RemoveAll(s.Dir(taskID))
}

// Checkpoint writes the tree to records/nodes.json and the memory snapshot
// to memory.json.
func (s *Store) Checkpoint(taskID string, root *graph.Node, mem *memory.Memory) error {
	if err := s.writeJSON(taskID, NodesFile, root.Record()); err != nil {
		return err
	}
	if mem == nil {
		return nil
	}
	return s.writeJSON(taskID, MemoryFile, mem.Snapshot())
}

// Nodes reads records/nodes.json.
func (s *Store) Nodes(taskID string) (*graph.Record, error) {
	data, err := s.read(taskID, NodesFile)
	if err != nil {
		return nil, err
	}
	var rec graph.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	return &rec, nil
}

// ModTime returns a file's modification time.
func (s *Store) ModTime(taskID, file string) (time.Time, error) {
	info, err := s.fs.Stat(s.Path(taskID, file))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%s/%s: %w", taskID, file, ErrNotFound)
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// WriteWorkspace stores the article written so far.
func (s *Store) WriteWorkspace(taskID, article string) error {
	return s.write(taskID, WorkspaceFile, []byte(article))
}

// Workspace returns the article written so far. Before workspace.md exists
// it falls back to the article in memory.json.
func (s *Store) Workspace(taskID string) (string, error) {
	data, err := s.read(taskID, WorkspaceFile)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	data, err = s.read(taskID, MemoryFile)
	if err != nil {
		return "", err
	}
	mem, err := memory.Restore(data)
	if err != nil {
		return "", err
	}
	return mem.Article(), nil
}

// WriteResult appends to result.jsonl and writes the text to report.md.
func (s *Store) WriteResult(r Result) error {
	if err := s.writeJSONL(r.ID, ResultFile, r, true); err != nil {
		return err
	}
	return s.write(r.ID, ReportFile, []byte(r.Result))
}

// Result reads the latest line of result.jsonl.
func (s *Store) Result(taskID string) (Result, error) {
	var r Result
	err := s.readLastJSONL(taskID, ResultFile, &r)
	return r, err
}

// MarkDone writes done.txt. Its presence means the job will not run again.
func (s *Store) MarkDone(taskID, message string) error {
	return s.write(taskID, DoneFile, []byte(message))
}

// Done returns the content of done.txt and whether it exists.
func (s *Store) Done(taskID string) (string, bool) {
	data, err := s.read(taskID, DoneFile)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// OpenLog opens engine.log for appending.
func (s *Store) OpenLog(taskID string) (io.WriteCloser, error) {
	f, err := s.fs.OpenFile(s.Path(taskID, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open engine log: %w", err)
	}
	return f, nil
}

func (s *Store) read(taskID, file string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Path(taskID, file))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", taskID, file, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}

// write replaces a file through a temporary sibling so readers never see a
// partial file.
func (s *Store) write(taskID, file string, data []byte) error {
	path := s.Path(taskID, file)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", file, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", file, err)
	}
	return nil
}

func (s *Store) writeJSON(taskID, file string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", file, err)
	}
	return s.write(taskID, file, data)
}

func (s *Store) writeJSONL(taskID, file string, v any, appendLine bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", file, err)
	}
	if !appendLine {
		return s.write(taskID, file, buf.Bytes())
	}
	f, err := s.fs.OpenFile(s.Path(taskID, file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %s: %w", file, err)
	}
	return nil
}

func (s *Store) readLastJSONL(taskID, file string, v any) error {
	data, err := s.read(taskID, file)
	if err != nil {
		return err
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", file, err)
	}
	if last == "" {
		return fmt.Errorf("%s/%s is empty: %w", taskID, file, ErrNotFound)
	}
	if err := json.Unmarshal([]byte(last), v); err != nil {
		return fmt.Errorf("decode %s: %w", file, err)
	}
	return nil
}

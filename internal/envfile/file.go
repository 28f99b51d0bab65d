package envfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xmazu/cryptoenv/internal/storage"
)

var ErrNotFound = errors.New("env file not found")

// File is an env file held in memory as an ordered sequence of lines.
type File struct {
	path    string
	matcher *Matcher
	lines   []Line
}

// Change records a line rewritten by Toggle.
type Change struct {
	Name    string
	Enabled bool
}

func New(path string, matcher *Matcher) *File {
	if matcher == nil {
		matcher = NewMatcher(DefaultPrefix)
	}
	return &File{path: path, matcher: matcher}
}

// Load reads path. A missing file yields an error wrapping ErrNotFound.
func Load(path string, matcher *Matcher) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f := New(path, matcher)
	f.lines = f.parse(string(data))
	return f, nil
}

// LoadOrNew is Load with a missing file treated as an empty one.
func LoadOrNew(path string, matcher *Matcher) (*File, error) {
	f, err := Load(path, matcher)
	if errors.Is(err, ErrNotFound) {
		return New(path, matcher), nil
	}
	return f, err
}

func (f *File) parse(content string) []Line {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}

	raw := strings.Split(content, "\n")
	lines := make([]Line, 0, len(raw))
	for _, r := range raw {
		line, _ := f.matcher.Match(strings.TrimSuffix(r, "\r"))
		lines = append(lines, line)
	}
	return lines
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Matcher() *Matcher {
	return f.matcher
}

func (f *File) Lines() []Line {
	out := make([]Line, len(f.lines))
	copy(out, f.lines)
	return out
}

// Variables maps names to ciphertexts for every encrypted line. Later lines
// win on duplicate names. Disabled lines are skipped when activeOnly is set.
func (f *File) Variables(activeOnly bool) map[string]string {
	vars := make(map[string]string)
	for _, line := range f.lines {
		if !line.Encrypted() {
			continue
		}
		if activeOnly && !line.Enabled {
			continue
		}
		vars[line.Name] = line.Value
	}
	return vars
}

// HasDisabled reports whether any matching line carries the disabled marker.
func (f *File) HasDisabled() bool {
	for _, line := range f.lines {
		if line.Matched && !line.Enabled {
			return true
		}
	}
	return false
}

// Upsert stores ciphertext under name. The first line already holding name
// is rewritten in place and keeps its enabled state; otherwise a new enabled
// line is appended. It reports whether a line was appended.
func (f *File) Upsert(name, ciphertext string) bool {
	for i, line := range f.lines {
		if line.Matched && line.Name == name {
			f.lines[i], _ = f.matcher.Match(f.matcher.Format(name, ciphertext, line.Enabled))
			return false
		}
	}

	line, _ := f.matcher.Match(f.matcher.Format(name, ciphertext, true))
	f.lines = append(f.lines, line)
	return true
}

// Toggle applies dir to every encrypted line whose name selected accepts. A
// nil selector selects every line.
func (f *File) Toggle(dir Direction, selected func(name string) bool) []Change {
	var changes []Change
	for i, line := range f.lines {
		if !line.Matched || (selected != nil && !selected(line.Name)) {
			continue
		}

		raw, changed := f.matcher.Toggle(line.Raw, dir)
		if !changed {
			continue
		}

		f.lines[i], _ = f.matcher.Match(raw)
		changes = append(changes, Change{Name: line.Name, Enabled: f.lines[i].Enabled})
	}
	return changes
}

func (f *File) Serialize(pruneBlank bool) []byte {
	return Serialize(f.lines, pruneBlank)
}

// Save writes the file atomically.
func (f *File) Save(pruneBlank bool) error {
	if err := storage.WriteFileAtomic(f.path, f.Serialize(pruneBlank), storage.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save %s: %w", f.path, err)
	}
	return nil
}

// Serialize joins lines with a newline after each one. Whitespace-only lines
// are dropped when pruneBlank is set.
func Serialize(lines []Line, pruneBlank bool) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		if pruneBlank && strings.TrimSpace(line.Raw) == "" {
			continue
		}
		buf.WriteString(line.Raw)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// HasAnyDisabled reports whether the file at path contains at least one
// disabled variable line. Unreadable files report false.
func HasAnyDisabled(path string, matcher *Matcher) bool {
	f, err := Load(path, matcher)
	if err != nil {
		return false
	}
	return f.HasDisabled()
}

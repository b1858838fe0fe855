// Package kvconf edits linux-tkg's customization.cfg style files: shell
// variable assignments (_key="value") interleaved with comments. Edits are
// format-preserving — untouched lines survive a load/save round trip
// byte-for-byte.
package kvconf

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var assignRe = regexp.MustCompile(`^(_\w+)\s*=\s*["']?([^"'#\n]*)["']?`)

type lineKind int

const (
	kindVerbatim lineKind = iota // comments, blanks, anything unparsed
	kindAssign
)

type line struct {
	kind  lineKind
	key   string
	value string
	raw   string
}

// File is one loaded key/value config file.
type File struct {
	lines []line
	path  string
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	f := &File{path: path}
	for _, raw := range strings.Split(strings.TrimSuffix(string(content), "\n"), "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			f.lines = append(f.lines, line{kind: kindVerbatim, raw: raw})
			continue
		}
		if m := assignRe.FindStringSubmatch(raw); m != nil {
			f.lines = append(f.lines, line{
				kind:  kindAssign,
				key:   m[1],
				value: strings.TrimSpace(m[2]),
				raw:   raw,
			})
			continue
		}
		f.lines = append(f.lines, line{kind: kindVerbatim, raw: raw})
	}

	return f, nil
}

// Get returns the value of key, or ok=false if the key is absent.
func (f *File) Get(key string) (string, bool) {
	for _, l := range f.lines {
		if l.kind == kindAssign && l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// Set updates the value of key in place, appending a new assignment if the
// key does not exist yet.
func (f *File) Set(key, value string) {
	for i, l := range f.lines {
		if l.kind == kindAssign && l.key == key {
			f.lines[i].value = value
			f.lines[i].raw = fmt.Sprintf("%s=%q", key, value)
			return
		}
	}
	f.lines = append(f.lines, line{
		kind:  kindAssign,
		key:   key,
		value: value,
		raw:   fmt.Sprintf("%s=%q", key, value),
	})
}

// All returns every assignment as a map.
func (f *File) All() map[string]string {
	out := make(map[string]string)
	for _, l := range f.lines {
		if l.kind == kindAssign {
			out[l.key] = l.value
		}
	}
	return out
}

// Save writes the file back to its original path.
func (f *File) Save() error {
	var sb strings.Builder
	for _, l := range f.lines {
		sb.WriteString(l.raw)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(f.path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

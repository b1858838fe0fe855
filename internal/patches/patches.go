// Package patches manages linux-tkg userpatches: the on-disk patch files for
// a kernel series, the freshness metadata recorded for each downloaded patch,
// and the prober that detects when a patch's upstream source has changed.
package patches

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// disabledSuffix marks a patch that linux-tkg should skip.
const disabledSuffix = ".disabled"

// Entry is one patch file in the series userpatch directory.
type Entry struct {
	Name    string
	Enabled bool
	Path    string
}

// Dir returns the userpatch directory for a kernel series inside a linux-tkg
// checkout, e.g. linux6.13-tkg-userpatches.
func Dir(linuxTKGPath, series string) string {
	return filepath.Join(linuxTKGPath, fmt.Sprintf("linux%s-tkg-userpatches", series))
}

// List returns the patches in dir, sorted by name. Both enabled
// (.patch/.mypatch) and disabled (*.disabled) files are included.
func List(dir string) []Entry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var patches []Entry
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".patch") || strings.HasSuffix(name, ".mypatch"):
			patches = append(patches, Entry{Name: name, Enabled: true, Path: filepath.Join(dir, name)})
		case strings.HasSuffix(name, ".patch"+disabledSuffix) || strings.HasSuffix(name, ".mypatch"+disabledSuffix):
			patches = append(patches, Entry{Name: name, Enabled: false, Path: filepath.Join(dir, name)})
		}
	}

	sort.Slice(patches, func(i, j int) bool { return patches[i].Name < patches[j].Name })
	return patches
}

// Toggle flips a patch between enabled and disabled by renaming it.
func Toggle(p *Entry) error {
	var newPath string
	if p.Enabled {
		newPath = p.Path + disabledSuffix
	} else {
		newPath = strings.TrimSuffix(p.Path, disabledSuffix)
	}

	if err := os.Rename(p.Path, newPath); err != nil {
		return fmt.Errorf("failed to rename patch: %w", err)
	}
	p.Path = newPath
	p.Name = filepath.Base(newPath)
	p.Enabled = !p.Enabled
	return nil
}

// Delete removes the patch file.
func Delete(p Entry) error {
	return os.Remove(p.Path)
}

// FilenameFromURL extracts the trailing path component of a patch URL.
func FilenameFromURL(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 && i < len(url)-1 {
		return url[i+1:]
	}
	return "patch.patch"
}

// Status classifies a patch's freshness relative to its source URL.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusUpToDate   Status = "up-to-date"
	StatusStale      Status = "stale"
	StatusCheckError Status = "check-error"
	StatusNoURL      Status = "no-url"
)

// Meta is the persisted freshness record for one downloaded patch, keyed by
// kernel series and filename.
type Meta struct {
	Filename     string
	Series       string
	SourceURL    string
	CatalogID    string
	SHA256       string
	DownloadedAt time.Time
	ETag         string
	LastModified string
	Status       Status
}

// Key is the registry key, "<series>/<filename>".
func (m Meta) Key() string {
	return m.Series + "/" + m.Filename
}

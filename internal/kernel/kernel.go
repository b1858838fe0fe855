// Package kernel discovers stable kernel releases from the kernel.org cgit
// listings and knows where the source tarball for a release lives. Fetched
// snapshots carry no state; a refetch replaces the previous set wholesale.
package kernel

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	tagsURL = "https://git.kernel.org/pub/scm/linux/kernel/git/stable/linux.git/refs/tags"
	baseURL = "https://git.kernel.org/pub/scm/linux/kernel/git/stable/linux.git"
)

var versionRe = regexp.MustCompile(`^v\d+\.\d+(\.\d+)?$`)

// Version is one release tag scraped from the cgit refs listing.
type Version struct {
	Version string
	Date    string
}

// Commit is one entry from a cgit shortlog between two tags.
type Commit struct {
	Hash    string
	Subject string
	Author  string
}

// FetchVersions scrapes the stable tree's tag listing, newest first.
func FetchVersions() ([]Version, error) {
	resp, err := http.Get(tagsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tag listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch tag listing: status %s", resp.Status)
	}
	return parseVersions(resp.Body)
}

// FetchShortlog scrapes the commit summaries between two release tags.
func FetchShortlog(from, to string) ([]Commit, error) {
	url := fmt.Sprintf("%s/log/?id=%s&id2=%s", baseURL, to, from)
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shortlog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch shortlog: status %s", resp.Status)
	}
	return parseShortlog(resp.Body)
}

// DownloadURL returns the cdn.kernel.org tarball URL for a release,
// e.g. "6.13.2" -> .../v6.x/linux-6.13.2.tar.xz.
func DownloadURL(version string) string {
	version = strings.TrimPrefix(version, "v")
	major := "6"
	if i := strings.Index(version, "."); i > 0 {
		major = version[:i]
	}
	return fmt.Sprintf("https://cdn.kernel.org/pub/linux/kernel/v%s.x/linux-%s.tar.xz", major, version)
}

// SourceDirName returns the directory name a release tarball unpacks to.
func SourceDirName(version string) string {
	return "linux-" + strings.TrimPrefix(version, "v")
}

// Series returns the major.minor series of a release, e.g. "v6.13.2" ->
// "6.13".
func Series(version string) string {
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) < 2 {
		return strings.TrimPrefix(version, "v")
	}
	return parts[0] + "." + parts[1]
}

// PreviousVersion returns the release preceding version within the same
// series, falling back to the series base tag (e.g. v6.13.1 -> v6.13).
// versions must be sorted newest first. Empty when nothing precedes it.
func PreviousVersion(version string, versions []Version) string {
	idx := -1
	for i, v := range versions {
		if v.Version == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	series := Series(version)
	for _, v := range versions[idx+1:] {
		if Series(v.Version) == series {
			return v.Version
		}
	}

	// No earlier point release; the series base tag itself may exist.
	base := "v" + series
	if base != version {
		for _, v := range versions {
			if v.Version == base {
				return base
			}
		}
	}
	return ""
}

func sortVersions(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i].Version, versions[j].Version) > 0
	})
}

func compareVersions(a, b string) int {
	pa := parseParts(a)
	pb := parseParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		va, vb := 0, 0
		if i < len(pa) {
			va = pa[i]
		}
		if i < len(pb) {
			vb = pb[i]
		}
		if va != vb {
			return va - vb
		}
	}
	return 0
}

func parseParts(v string) []int {
	var parts []int
	for _, p := range strings.Split(strings.TrimPrefix(v, "v"), ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		parts = append(parts, n)
	}
	return parts
}

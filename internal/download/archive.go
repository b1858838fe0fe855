package download

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tkgforge/tkgforge/internal/task"
	"github.com/ulikunitz/xz"
)

// FetchArchive downloads a .tar.xz source archive into destDir, unpacks it,
// removes the compressed intermediate, and resolves the extracted top-level
// directory. wantDir is the expected directory name (e.g. "linux-6.13.2");
// when it is absent after unpacking, any directory sharing its name prefix
// up to the first dash is accepted instead. The reported sha256 covers the
// decompressed tar stream.
func FetchArchive(url, destDir, wantDir string) *task.Handle[Msg] {
	sender, handle := task.New[Msg]()
	go func() {
		defer sender.Close()
		fetchArchive(sender, url, destDir, wantDir)
	}()
	return handle
}

func fetchArchive(sender *task.Sender[Msg], url, destDir, wantDir string) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to create destination directory: %v", err)})
		return
	}

	resp, err := http.Get(url)
	if err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to download: %v", err)})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to download: status %s", resp.Status)})
		return
	}

	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")
	sender.Send(Started{Total: contentLength(resp)})

	tarballPath := filepath.Join(destDir, path.Base(url))
	tarball, err := os.Create(tarballPath)
	if err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to create file: %v", err)})
		return
	}
	if err := copyWithProgress(sender, tarball, resp.Body); err != nil {
		tarball.Close()
		sender.Send(Failed{Reason: fmt.Sprintf("failed to read: %v", err)})
		return
	}
	if err := tarball.Close(); err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to write: %v", err)})
		return
	}

	sender.Send(Extracting{})

	sum, err := unpackTarXZ(tarballPath, destDir)
	if err != nil {
		sender.Send(Failed{Reason: err.Error()})
		return
	}
	os.Remove(tarballPath)

	extracted, err := resolveExtractedDir(destDir, wantDir)
	if err != nil {
		sender.Send(Failed{Reason: err.Error()})
		return
	}

	sender.Send(Complete{Result: Result{
		Path:         extracted,
		SHA256:       sum,
		ETag:         etag,
		LastModified: lastModified,
	}})
}

// unpackTarXZ decompresses and unpacks the archive into destDir, returning
// the hex sha256 of the decompressed tar stream.
func unpackTarXZ(tarballPath, destDir string) (string, error) {
	f, err := os.Open(tarballPath)
	if err != nil {
		return "", fmt.Errorf("failed to open tarball: %w", err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("xz decompression failed: %w", err)
	}

	hasher := sha256.New()
	tr := tar.NewReader(io.TeeReader(xzr, hasher))

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to extract tarball: %w", err)
		}
		if err := writeEntry(destDir, hdr, tr); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func writeEntry(destDir string, hdr *tar.Header, r io.Reader) error {
	target := filepath.Join(destDir, filepath.Clean(hdr.Name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		// Entry escaping the destination tree; skip it.
		return nil
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, os.FileMode(hdr.Mode)|0700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract tarball: %w", err)
		}
		return out.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Link(filepath.Join(destDir, filepath.Clean(hdr.Linkname)), target)
	default:
		// Character devices and the like never appear in source tarballs.
		return nil
	}
}

// resolveExtractedDir finds the unpacked top-level directory: the expected
// name if present, otherwise the first directory sharing its prefix.
func resolveExtractedDir(destDir, wantDir string) (string, error) {
	exact := filepath.Join(destDir, wantDir)
	if info, err := os.Stat(exact); err == nil && info.IsDir() {
		return exact, nil
	}

	prefix := wantDir
	if i := strings.Index(wantDir, "-"); i >= 0 {
		prefix = wantDir[:i+1]
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(destDir, entry.Name()), nil
		}
	}
	return "", errors.New("could not find extracted source directory")
}

// Package download fetches remote artifacts with byte-level progress
// reporting. Plain fetches optionally decompress xz or gz payloads based on
// the destination suffix and always report a sha256 over the final bytes;
// the archive variant additionally unpacks a kernel source tarball and
// resolves the extracted directory.
package download

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tkgforge/tkgforge/internal/task"
	"github.com/ulikunitz/xz"
)

// chunkSize is the read granularity for progress reporting.
const chunkSize = 8192

// Msg is the closed set of messages a download reports.
type Msg interface{ downloadMsg() }

// Started is sent once after the response headers arrive. Total is nil when
// the server did not report a Content-Length.
type Started struct {
	Total *int64
}

// Progress reports cumulative bytes fetched so far, one message per chunk.
type Progress struct {
	Bytes int64
}

// Extracting is sent when the payload is about to be decompressed/unpacked.
type Extracting struct{}

// Complete is the terminal message of a successful download.
type Complete struct {
	Result Result
}

// Failed is the terminal message for any transport, filesystem or
// decompression failure.
type Failed struct {
	Reason string
}

func (Started) downloadMsg()    {}
func (Progress) downloadMsg()   {}
func (Extracting) downloadMsg() {}
func (Complete) downloadMsg()   {}
func (Failed) downloadMsg()     {}

// Result describes a finished download. SHA256 is computed over the
// decompressed bytes when decompression occurred.
type Result struct {
	Path         string
	SHA256       string
	ETag         string
	LastModified string
}

// Fetch downloads url to dest on a background worker. A trailing .xz or .gz
// on dest selects decompression; the final artifact is written with the
// compression suffix stripped.
func Fetch(url, dest string) *task.Handle[Msg] {
	sender, handle := task.New[Msg]()
	go func() {
		defer sender.Close()
		fetch(sender, url, dest)
	}()
	return handle
}

func fetch(sender *task.Sender[Msg], url, dest string) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to create directory: %v", err)})
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

	var buf bytes.Buffer
	if err := copyWithProgress(sender, &buf, resp.Body); err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to read: %v", err)})
		return
	}

	finalPath, content, err := maybeDecompress(sender, dest, buf.Bytes())
	if err != nil {
		sender.Send(Failed{Reason: err.Error()})
		return
	}

	sum := sha256.Sum256(content)

	if err := os.WriteFile(finalPath, content, 0644); err != nil {
		sender.Send(Failed{Reason: fmt.Sprintf("failed to write: %v", err)})
		return
	}

	sender.Send(Complete{Result: Result{
		Path:         finalPath,
		SHA256:       hex.EncodeToString(sum[:]),
		ETag:         etag,
		LastModified: lastModified,
	}})
}

// maybeDecompress picks a decompression step from the destination suffix.
// The returned path has the compression suffix stripped.
func maybeDecompress(sender *task.Sender[Msg], dest string, raw []byte) (string, []byte, error) {
	switch {
	case strings.HasSuffix(dest, ".xz"):
		sender.Send(Extracting{})
		r, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", nil, fmt.Errorf("xz decompression failed: %w", err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", nil, fmt.Errorf("xz decompression failed: %w", err)
		}
		return strings.TrimSuffix(dest, ".xz"), content, nil

	case strings.HasSuffix(dest, ".gz"):
		sender.Send(Extracting{})
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", nil, fmt.Errorf("gz decompression failed: %w", err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", nil, fmt.Errorf("gz decompression failed: %w", err)
		}
		return strings.TrimSuffix(dest, ".gz"), content, nil

	default:
		return dest, raw, nil
	}
}

// copyWithProgress copies in fixed-size chunks, reporting the running byte
// count after each one. Counts are monotonically non-decreasing.
func copyWithProgress(sender *task.Sender[Msg], w io.Writer, r io.Reader) error {
	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			written += int64(n)
			sender.Send(Progress{Bytes: written})
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func contentLength(resp *http.Response) *int64 {
	if resp.ContentLength < 0 {
		return nil
	}
	n := resp.ContentLength
	return &n
}

// Probe issues a metadata-only request: is the resource there, and how big
// is it. Size is -1 when the server does not say.
func Probe(url string) (available bool, size int64, err error) {
	resp, err := http.Head(url)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, resp.ContentLength, nil
}

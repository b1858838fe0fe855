package patches

import (
	"net/http"

	"github.com/tkgforge/tkgforge/internal/task"
)

// CheckResult is the single message a staleness probe produces.
type CheckResult struct {
	Key    string
	Status Status
	Reason string
}

// CheckAll probes every record concurrently, all writing into one shared
// channel. Each probe is independent; results arrive in any order. The
// channel closes after all probes have reported.
func CheckAll(metas []Meta) *task.Handle[CheckResult] {
	sender, handle := task.New[CheckResult]()
	go func() {
		defer sender.Close()
		done := make(chan struct{})
		for _, meta := range metas {
			go func(m Meta) {
				sender.Send(check(m))
				done <- struct{}{}
			}(meta)
		}
		for range metas {
			<-done
		}
	}()
	return handle
}

// CheckOne probes a single record on a background worker.
func CheckOne(meta Meta) *task.Handle[CheckResult] {
	sender, handle := task.New[CheckResult]()
	go func() {
		defer sender.Close()
		sender.Send(check(meta))
	}()
	return handle
}

// check issues a metadata-only request and compares the returned freshness
// markers against the remembered ones. A change in either marker, or a
// marker appearing where none was recorded, means the source has moved on.
func check(meta Meta) CheckResult {
	if meta.SourceURL == "" {
		return CheckResult{Key: meta.Key(), Status: StatusNoURL}
	}

	resp, err := http.Head(meta.SourceURL)
	if err != nil {
		return CheckResult{Key: meta.Key(), Status: StatusCheckError, Reason: err.Error()}
	}
	resp.Body.Close()

	if markerChanged(meta.ETag, resp.Header.Get("ETag")) ||
		markerChanged(meta.LastModified, resp.Header.Get("Last-Modified")) {
		return CheckResult{Key: meta.Key(), Status: StatusStale}
	}
	return CheckResult{Key: meta.Key(), Status: StatusUpToDate}
}

func markerChanged(recorded, current string) bool {
	if current == "" {
		return false
	}
	return recorded != current
}

package patches

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headServer(t *testing.T, etag, lastModified string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		if lastModified != "" {
			w.Header().Set("Last-Modified", lastModified)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func recvOne(t *testing.T, meta Meta) CheckResult {
	t.Helper()
	h := CheckOne(meta)
	res, ok := h.Recv()
	require.True(t, ok)
	_, more := h.Recv()
	require.False(t, more, "probe must produce exactly one message")
	return res
}

func TestCheckNoURL(t *testing.T) {
	res := recvOne(t, Meta{Series: "6.13", Filename: "a.patch"})
	assert.Equal(t, StatusNoURL, res.Status)
	assert.Equal(t, "6.13/a.patch", res.Key)
}

func TestCheckUpToDateIdempotent(t *testing.T) {
	srv := headServer(t, `"abc"`, "Mon, 02 Jan 2006 15:04:05 GMT")
	meta := Meta{
		Series:       "6.13",
		Filename:     "a.patch",
		SourceURL:    srv.URL,
		ETag:         `"abc"`,
		LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
	}

	// Unchanged markers classify up-to-date, on every probe.
	assert.Equal(t, StatusUpToDate, recvOne(t, meta).Status)
	assert.Equal(t, StatusUpToDate, recvOne(t, meta).Status)
}

func TestCheckStaleOnETagChange(t *testing.T) {
	srv := headServer(t, `"new"`, "")
	meta := Meta{Series: "6.13", Filename: "a.patch", SourceURL: srv.URL, ETag: `"old"`}

	assert.Equal(t, StatusStale, recvOne(t, meta).Status)
}

func TestCheckStaleOnLastModifiedChange(t *testing.T) {
	srv := headServer(t, "", "Tue, 03 Jan 2006 15:04:05 GMT")
	meta := Meta{
		Series:       "6.13",
		Filename:     "a.patch",
		SourceURL:    srv.URL,
		LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
	}

	assert.Equal(t, StatusStale, recvOne(t, meta).Status)
}

func TestCheckStaleOnNewlyPresentMarker(t *testing.T) {
	srv := headServer(t, `"appeared"`, "")
	meta := Meta{Series: "6.13", Filename: "a.patch", SourceURL: srv.URL}

	assert.Equal(t, StatusStale, recvOne(t, meta).Status)
}

func TestCheckBothMarkersAbsent(t *testing.T) {
	srv := headServer(t, "", "")
	meta := Meta{Series: "6.13", Filename: "a.patch", SourceURL: srv.URL}

	assert.Equal(t, StatusUpToDate, recvOne(t, meta).Status)
}

func TestCheckTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // probe hits a dead server

	meta := Meta{Series: "6.13", Filename: "a.patch", SourceURL: srv.URL}
	res := recvOne(t, meta)
	assert.Equal(t, StatusCheckError, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestCheckAllBatch(t *testing.T) {
	okSrv := headServer(t, `"same"`, "")
	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadSrv.Close()

	metas := []Meta{
		{Series: "6.13", Filename: "nourl.patch"},
		{Series: "6.13", Filename: "fresh.patch", SourceURL: okSrv.URL, ETag: `"same"`},
		{Series: "6.13", Filename: "broken.patch", SourceURL: deadSrv.URL},
	}

	h := CheckAll(metas)
	got := map[string]Status{}
	for {
		res, ok := h.Recv()
		if !ok {
			break
		}
		got[res.Key] = res.Status
	}

	// One result per resource, independent of each other, any order.
	require.Len(t, got, 3)
	assert.Equal(t, StatusNoURL, got["6.13/nourl.patch"])
	assert.Equal(t, StatusUpToDate, got["6.13/fresh.patch"])
	assert.Equal(t, StatusCheckError, got["6.13/broken.patch"])
}

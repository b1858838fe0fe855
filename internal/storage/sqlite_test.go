package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkgforge/tkgforge/internal/patches"
)

func open(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMeta(series, filename string) patches.Meta {
	return patches.Meta{
		Series:       series,
		Filename:     filename,
		SourceURL:    "https://example.com/" + filename,
		CatalogID:    "bbr3",
		SHA256:       "deadbeef",
		DownloadedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ETag:         `"tag"`,
		LastModified: "Mon, 02 Jun 2025 00:00:00 GMT",
		Status:       patches.StatusUnknown,
	}
}

func TestRecordAndGet(t *testing.T) {
	s := open(t)
	meta := sampleMeta("6.13", "bbr3-6.13.patch")
	require.NoError(t, s.RecordDownload(meta))

	got, err := s.Get("6.13", "bbr3-6.13.patch")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, meta.SourceURL, got.SourceURL)
	assert.Equal(t, meta.SHA256, got.SHA256)
	assert.Equal(t, meta.ETag, got.ETag)
	assert.Equal(t, patches.StatusUnknown, got.Status)
}

func TestGetMissing(t *testing.T) {
	s := open(t)
	got, err := s.Get("6.13", "absent.patch")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordReplacesExisting(t *testing.T) {
	s := open(t)
	meta := sampleMeta("6.13", "bbr3-6.13.patch")
	require.NoError(t, s.RecordDownload(meta))

	meta.SHA256 = "cafebabe"
	meta.ETag = `"tag2"`
	require.NoError(t, s.RecordDownload(meta))

	got, err := s.Get("6.13", "bbr3-6.13.patch")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cafebabe", got.SHA256)
	assert.Equal(t, `"tag2"`, got.ETag)
}

func TestAllForSeries(t *testing.T) {
	s := open(t)
	require.NoError(t, s.RecordDownload(sampleMeta("6.12", "old.patch")))
	require.NoError(t, s.RecordDownload(sampleMeta("6.13", "b.patch")))
	require.NoError(t, s.RecordDownload(sampleMeta("6.13", "a.patch")))

	got, err := s.AllForSeries("6.13")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.patch", got[0].Filename)
	assert.Equal(t, "b.patch", got[1].Filename)

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateStatusPersists(t *testing.T) {
	s := open(t)
	require.NoError(t, s.RecordDownload(sampleMeta("6.13", "a.patch")))
	require.NoError(t, s.UpdateStatus("6.13", "a.patch", patches.StatusStale))

	got, err := s.Get("6.13", "a.patch")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, patches.StatusStale, got.Status)
}

func TestRemove(t *testing.T) {
	s := open(t)
	require.NoError(t, s.RecordDownload(sampleMeta("6.13", "a.patch")))
	require.NoError(t, s.Remove("6.13", "a.patch"))

	got, err := s.Get("6.13", "a.patch")
	require.NoError(t, err)
	assert.Nil(t, got)
}

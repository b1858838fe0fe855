package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestFireCallsHandler(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "notify.lua", `
function on_build_complete(e)
	log("build " .. e.kind .. " exited " .. e.exit_code)
end
`)

	r := NewRuntime(dir)
	err := r.Fire(EventBuildComplete, map[string]any{
		"kind":      "linux-tkg",
		"exit_code": 0,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"build linux-tkg exited 0"}, r.Logs())
}

func TestFireSkipsUnhandledEvents(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "notify.lua", `
function on_download_complete(e)
	log("got " .. e.filename)
end
`)

	r := NewRuntime(dir)
	require.NoError(t, r.Fire(EventBuildComplete, map[string]any{"kind": "linux-tkg"}))
	assert.Empty(t, r.Logs())

	require.NoError(t, r.Fire(EventDownloadComplete, map[string]any{"filename": "bbr3.patch"}))
	assert.Equal(t, []string{"got bbr3.patch"}, r.Logs())
}

func TestFireRunsScriptsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "10-first.lua", `function on_build_complete(e) log("first") end`)
	writeHook(t, dir, "20-second.lua", `function on_build_complete(e) log("second") end`)

	r := NewRuntime(dir)
	require.NoError(t, r.Fire(EventBuildComplete, map[string]any{}))
	assert.Equal(t, []string{"first", "second"}, r.Logs())
}

func TestFireReportsScriptErrors(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "bad.lua", `function on_build_complete(e) error("boom") end`)

	r := NewRuntime(dir)
	err := r.Fire(EventBuildComplete, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.lua")
}

func TestSandboxBlocksIO(t *testing.T) {
	dir := t.TempDir()
	// os and io libraries are never opened; touching them is an error.
	writeHook(t, dir, "evil.lua", `function on_build_complete(e) os.execute("true") end`)

	r := NewRuntime(dir)
	assert.Error(t, r.Fire(EventBuildComplete, map[string]any{}))
}

func TestMissingHooksDirIsFine(t *testing.T) {
	r := NewRuntime(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, r.Fire(EventBuildComplete, map[string]any{}))
}

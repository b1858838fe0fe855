package kvconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCfg = `# linux-tkg config file
#### MISC OPTIONS ####

# Compiler to use
_compiler="gcc"

_cpusched="pds"
_sched_yield_type="0"

# unquoted value
_timer_freq=500

#_commented_out="not an assignment"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customization.cfg")
	require.NoError(t, os.WriteFile(path, []byte(sampleCfg), 0644))
	return path
}

func TestLoadGet(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	v, ok := f.Get("_compiler")
	require.True(t, ok)
	assert.Equal(t, "gcc", v)

	v, ok = f.Get("_timer_freq")
	require.True(t, ok)
	assert.Equal(t, "500", v)

	// Commented-out assignments are not keys.
	_, ok = f.Get("_commented_out")
	assert.False(t, ok)
}

func TestRoundTripPreservesFormat(t *testing.T) {
	path := writeSample(t)
	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, f.Save())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCfg, string(got))
}

func TestSetExisting(t *testing.T) {
	path := writeSample(t)
	f, err := Load(path)
	require.NoError(t, err)

	f.Set("_cpusched", "bore")
	require.NoError(t, f.Save())

	f2, err := Load(path)
	require.NoError(t, err)
	v, ok := f2.Get("_cpusched")
	require.True(t, ok)
	assert.Equal(t, "bore", v)

	// Comments and untouched lines survive the edit.
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "# Compiler to use\n_compiler=\"gcc\"")
	assert.Contains(t, string(got), "#### MISC OPTIONS ####")
}

func TestSetAppendsMissing(t *testing.T) {
	path := writeSample(t)
	f, err := Load(path)
	require.NoError(t, err)

	f.Set("_menunconfig", "false")
	require.NoError(t, f.Save())

	f2, err := Load(path)
	require.NoError(t, err)
	v, ok := f2.Get("_menunconfig")
	require.True(t, ok)
	assert.Equal(t, "false", v)
}

func TestAll(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	all := f.All()
	assert.Equal(t, "pds", all["_cpusched"])
	assert.Equal(t, "0", all["_sched_yield_type"])
	assert.Len(t, all, 4)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cfg"))
	assert.Error(t, err)
}

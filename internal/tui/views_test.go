package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, classStage, classify("==> Making package: linux-tkg"))
	assert.Equal(t, classStage, classify("  ==> Starting build()..."))
	assert.Equal(t, classWarning, classify("==> WARNING: A package has already been built."))
	assert.Equal(t, classError, classify("==> ERROR: A failure occurred in build()."))
	assert.Equal(t, classError, classify("make: *** [Makefile:1234] Error 2 failed"))
	assert.Equal(t, classError, classify("fatal: not a git repository"))
	assert.Equal(t, classWarning, classify("cc1: warning: unrecognized command line option"))
	assert.Equal(t, classPlain, classify("  CC      kernel/sched/core.o"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(3*1024*1024/2))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
}

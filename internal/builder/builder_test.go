package builder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkgforge/tkgforge/internal/task"
)

// drain collects every message until the channel closes.
func drain(t *testing.T, h *task.Handle[Msg]) []Msg {
	t.Helper()
	var msgs []Msg
	for {
		msg, ok := h.Recv()
		if !ok {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

func TestStartStreamsLinesAndExit(t *testing.T) {
	handle, _ := Start(t.TempDir(), "sh", "-c", "echo one; echo two 1>&2; echo three")

	msgs := drain(t, handle)
	require.NotEmpty(t, msgs)

	// Exactly one terminal message, and it is last.
	last := msgs[len(msgs)-1]
	exit, ok := last.(Exit)
	require.True(t, ok, "last message should be Exit, got %T", last)
	assert.Equal(t, 0, exit.Code)

	var lines []string
	for _, m := range msgs[:len(msgs)-1] {
		line, ok := m.(Line)
		require.True(t, ok, "non-terminal message should be Line, got %T", m)
		lines = append(lines, line.Text)
	}
	assert.ElementsMatch(t, []string{"one", "two", "three"}, lines)
}

func TestStdoutOrderPreserved(t *testing.T) {
	handle, _ := Start(t.TempDir(), "sh", "-c", "for i in 1 2 3 4 5; do echo line$i; done")

	msgs := drain(t, handle)
	require.GreaterOrEqual(t, len(msgs), 6)

	for i := 0; i < 5; i++ {
		line, ok := msgs[i].(Line)
		require.True(t, ok)
		assert.Equal(t, "line"+string(rune('1'+i)), line.Text)
	}
}

func TestNonZeroExitCode(t *testing.T) {
	handle, _ := Start(t.TempDir(), "sh", "-c", "exit 3")

	msgs := drain(t, handle)
	require.Len(t, msgs, 1)
	exit, ok := msgs[0].(Exit)
	require.True(t, ok)
	assert.Equal(t, 3, exit.Code)
}

func TestSpawnErrorForMissingExecutable(t *testing.T) {
	handle, input := Start(t.TempDir(), "definitely-not-a-real-executable-xyz")

	msgs := drain(t, handle)
	require.Len(t, msgs, 1, "spawn failure must produce exactly one message")
	_, ok := msgs[0].(SpawnError)
	assert.True(t, ok, "expected SpawnError, got %T", msgs[0])

	assert.ErrorIs(t, input.Send("anything"), ErrInputNotAvailable)
}

func TestInteractiveInputRoundTrip(t *testing.T) {
	handle, input := Start(t.TempDir(), "sh", "-c", "read x; echo got:$x")

	// The handle becomes usable once the process spawns.
	waitFor(t, input.Available)
	require.NoError(t, input.Send("hello"))

	msgs := drain(t, handle)
	require.Len(t, msgs, 2)
	assert.Equal(t, Line{Text: "got:hello"}, msgs[0])
	assert.Equal(t, Exit{Code: 0}, msgs[1])
}

func TestInputRevokedAfterOutputCloses(t *testing.T) {
	// The child closes its own stdout/stderr, then lingers. Input must
	// become unavailable before Exit is observed, and sending must fail
	// cleanly rather than hang.
	handle, input := Start(t.TempDir(), "sh", "-c", "exec >/dev/null 2>&1; sleep 1")

	waitFor(t, func() bool { return !input.Available() })

	err := input.Send("too late")
	assert.ErrorIs(t, err, ErrInputNotAvailable)

	msgs := drain(t, handle)
	require.Len(t, msgs, 1)
	assert.Equal(t, Exit{Code: 0}, msgs[0])
}

func TestCommandSelection(t *testing.T) {
	name, args := Command(true)
	assert.Equal(t, "makepkg", name)
	assert.Equal(t, []string{"-si"}, args)

	name, args = Command(false)
	assert.Equal(t, "./install.sh", name)
	assert.Equal(t, []string{"install"}, args)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

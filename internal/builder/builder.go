// Package builder supervises an interactive external build process (makepkg
// or linux-tkg's install.sh). The process runs on its own goroutine, stdout
// and stderr are streamed line-by-line through a task channel, and operator
// input is forwarded to the process's stdin through an InputHandle for as
// long as the process is producing output.
package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/tkgforge/tkgforge/internal/task"
)

// Msg is the closed set of messages a supervised process reports.
type Msg interface{ buildMsg() }

// Line is one line of process output (stdout or stderr).
type Line struct {
	Text string
}

// Exit is the terminal message for a process that spawned successfully.
// Code is -1 when the exit status could not be determined.
type Exit struct {
	Code int
}

// SpawnError is the terminal message for a process that never started or
// could not be waited on. No Line or Exit follows it.
type SpawnError struct {
	Reason string
}

func (Line) buildMsg()       {}
func (Exit) buildMsg()       {}
func (SpawnError) buildMsg() {}

// ErrInputNotAvailable is returned by InputHandle.Send when the process has
// not spawned yet, or has already closed its output streams. It is
// recoverable: the task itself keeps running.
var ErrInputNotAvailable = errors.New("process stdin not available")

// InputHandle forwards operator text to the running process's stdin. It is
// shared between the UI (sending) and the supervisor worker (populating on
// spawn, revoking once both output streams close).
type InputHandle struct {
	mu    sync.Mutex
	stdin io.WriteCloser
}

// Send writes input plus a trailing newline to the process's stdin.
func (h *InputHandle) Send(input string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin == nil {
		return ErrInputNotAvailable
	}
	if _, err := fmt.Fprintln(h.stdin, input); err != nil {
		return fmt.Errorf("failed to write to process stdin: %w", err)
	}
	return nil
}

// Available reports whether input would currently reach the process.
func (h *InputHandle) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdin != nil
}

func (h *InputHandle) set(w io.WriteCloser) {
	h.mu.Lock()
	h.stdin = w
	h.mu.Unlock()
}

func (h *InputHandle) revoke() {
	h.mu.Lock()
	if h.stdin != nil {
		h.stdin.Close()
		h.stdin = nil
	}
	h.mu.Unlock()
}

// Command returns the build command for the configured distro: makepkg on
// Arch-based systems, linux-tkg's install script everywhere else.
func Command(useMakepkg bool) (name string, args []string) {
	if useMakepkg {
		return "makepkg", []string{"-si"}
	}
	return "./install.sh", []string{"install"}
}

// Start spawns the executable in dir and supervises it. The returned handle
// receives zero or more Line messages followed by exactly one Exit or
// SpawnError. Dropping the handle stops observation but not the process.
func Start(dir, name string, args ...string) (*task.Handle[Msg], *InputHandle) {
	sender, handle := task.New[Msg]()
	input := &InputHandle{}

	go supervise(sender, input, dir, name, args)

	return handle, input
}

func supervise(sender *task.Sender[Msg], input *InputHandle, dir, name string, args []string) {
	defer sender.Close()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		sender.Send(SpawnError{Reason: err.Error()})
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sender.Send(SpawnError{Reason: err.Error()})
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		sender.Send(SpawnError{Reason: err.Error()})
		return
	}

	if err := cmd.Start(); err != nil {
		sender.Send(SpawnError{Reason: err.Error()})
		return
	}

	input.set(stdin)

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(sender, stdout, &wg)
	go streamLines(sender, stderr, &wg)
	wg.Wait()

	// Both output streams are closed; the process is about to exit and
	// input would no longer reach anything useful.
	input.revoke()

	err = cmd.Wait()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			sender.Send(SpawnError{Reason: err.Error()})
			return
		}
	}
	sender.Send(Exit{Code: code})
}

// streamLines forwards newline-delimited text from one output stream. Each
// stream has its own goroutine; per-stream order is preserved by the channel.
func streamLines(sender *task.Sender[Msg], r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sender.Send(Line{Text: scanner.Text()})
	}
}

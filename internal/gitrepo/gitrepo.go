// Package gitrepo supervises fire-and-forget fetch commands: shallow git
// clones of the tkg repositories and recursive directory copies. Same
// line-streaming and exit-code contract as the build supervisor, but with no
// interactive input surface.
package gitrepo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/tkgforge/tkgforge/internal/task"
)

const (
	// LinuxTKGURL is the upstream linux-tkg repository.
	LinuxTKGURL = "https://github.com/Frogging-Family/linux-tkg"
	// WineTKGURL is the upstream wine-tkg-git repository.
	WineTKGURL = "https://github.com/Frogging-Family/wine-tkg-git"
)

// Msg is the closed set of messages a clone or copy reports.
type Msg interface{ cloneMsg() }

// Line is one line of command output.
type Line struct {
	Text string
}

// Exit is the terminal message carrying the command's exit status.
type Exit struct {
	Code int
}

// SpawnError is the terminal message when the command never started; this
// includes failing to create the destination's parent directory.
type SpawnError struct {
	Reason string
}

func (Line) cloneMsg()       {}
func (Exit) cloneMsg()       {}
func (SpawnError) cloneMsg() {}

// CloneLinuxTKG clones linux-tkg into dest.
func CloneLinuxTKG(dest string) *task.Handle[Msg] {
	return Clone(LinuxTKGURL, dest)
}

// CloneWineTKG clones wine-tkg-git into dest.
func CloneWineTKG(dest string) *task.Handle[Msg] {
	return Clone(WineTKGURL, dest)
}

// Clone runs a shallow git clone of url into dest, streaming output.
func Clone(url, dest string) *task.Handle[Msg] {
	sender, handle := task.New[Msg]()
	go func() {
		defer sender.Close()
		if !ensureParent(sender, dest) {
			return
		}
		run(sender, exec.Command("git", "clone", "--depth=1", url, dest))
	}()
	return handle
}

// CopyDir duplicates a local directory tree into dest.
func CopyDir(src, dest string) *task.Handle[Msg] {
	sender, handle := task.New[Msg]()
	go func() {
		defer sender.Close()
		if !ensureParent(sender, dest) {
			return
		}
		run(sender, exec.Command("cp", "-a", src, dest))
	}()
	return handle
}

func ensureParent(sender *task.Sender[Msg], dest string) bool {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		sender.Send(SpawnError{Reason: fmt.Sprintf("failed to create directory %s: %v", parent, err)})
		return false
	}
	return true
}

func run(sender *task.Sender[Msg], cmd *exec.Cmd) {
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
		sender.Send(SpawnError{Reason: fmt.Sprintf("failed to spawn %s: %v", cmd.Path, err)})
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(sender, stdout, &wg)
	go streamLines(sender, stderr, &wg)
	wg.Wait()

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

func streamLines(sender *task.Sender[Msg], r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sender.Send(Line{Text: scanner.Text()})
	}
}

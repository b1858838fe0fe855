// Package hooks runs user-provided Lua scripts at lifecycle points: after a
// build finishes or a download completes. Scripts live in the hooks/
// directory under the data dir and are executed in a sandboxed interpreter
// with no file or process access.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// Event names scripts can handle.
const (
	EventBuildComplete    = "build_complete"
	EventDownloadComplete = "download_complete"
)

// Runtime loads and executes hook scripts.
type Runtime struct {
	dir  string
	logs []string
}

// NewRuntime creates a runtime reading scripts from dir.
func NewRuntime(dir string) *Runtime {
	return &Runtime{dir: dir, logs: make([]string, 0)}
}

// Fire runs every hook script against the named event. Each script that
// defines a function matching the event name gets called with the payload
// as a table. A failing script aborts the remaining ones.
func (r *Runtime) Fire(event string, payload map[string]any) error {
	scripts, err := r.scripts()
	if err != nil {
		return err
	}

	for _, script := range scripts {
		if err := r.runScript(script, event, payload); err != nil {
			return fmt.Errorf("hook %s: %w", filepath.Base(script), err)
		}
	}
	return nil
}

// Logs returns messages scripts emitted via log().
func (r *Runtime) Logs() []string {
	return r.logs
}

func (r *Runtime) scripts() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks dir: %w", err)
	}

	var scripts []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		scripts = append(scripts, filepath.Join(r.dir, e.Name()))
	}
	sort.Strings(scripts)
	return scripts, nil
}

func (r *Runtime) runScript(path, event string, payload map[string]any) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()

	r.openSafeLibs(L)
	L.SetGlobal("log", L.NewFunction(r.luaLog))

	if err := L.DoString(string(script)); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	handler := L.GetGlobal("on_" + event)
	if handler == lua.LNil {
		return nil
	}

	L.Push(handler)
	L.Push(mapToTable(L, payload))
	if err := L.PCall(1, 0, nil); err != nil {
		return fmt.Errorf("handler failed: %w", err)
	}
	return nil
}

// openSafeLibs loads only the libraries a hook can't abuse.
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.logs = append(r.logs, message)
	return 0
}

func mapToTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, goToLua(L, v))
	}
	return tbl
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), goToLua(L, item))
		}
		return tbl
	case map[string]any:
		return mapToTable(L, val)
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

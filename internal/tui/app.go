package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tkgforge/tkgforge/internal/builder"
	"github.com/tkgforge/tkgforge/internal/catalog"
	"github.com/tkgforge/tkgforge/internal/download"
	"github.com/tkgforge/tkgforge/internal/gitrepo"
	"github.com/tkgforge/tkgforge/internal/hooks"
	"github.com/tkgforge/tkgforge/internal/kernel"
	"github.com/tkgforge/tkgforge/internal/kvconf"
	"github.com/tkgforge/tkgforge/internal/patches"
	"github.com/tkgforge/tkgforge/internal/settings"
	"github.com/tkgforge/tkgforge/internal/storage"
	"github.com/tkgforge/tkgforge/internal/task"
	"github.com/tkgforge/tkgforge/internal/workdir"
)

type Tab int

const (
	TabKernel Tab = iota
	TabConfig
	TabPatches
	TabBuild
	TabSettings
)

var tabNames = []string{"Kernel", "Config", "Patches", "Build", "Settings"}

// tickInterval is how often the UI drains pending task messages. Background
// workers never touch the model directly; everything arrives through channel
// polls on this tick.
const tickInterval = 100 * time.Millisecond

type App struct {
	cfg      *settings.Config
	settings *settings.Settings
	store    *storage.Storage
	hooks    *hooks.Runtime

	tab Tab

	// Kernel tab
	versions        []kernel.Version
	versionIdx      int
	loadingVersions bool
	shortlog        []kernel.Commit
	showShortlog    bool

	// Config tab
	configFile *kvconf.File
	configKeys []string
	keyIdx     int
	editing    bool
	editInput  textinput.Model

	// Patches tab
	entries        []patches.Entry
	patchIdx       int
	catalogMode    bool
	catalogEntries []catalog.Entry
	catalogIdx     int
	statuses       map[string]patches.Status
	checkHandle    *task.Handle[patches.CheckResult]
	checkPending   int

	// Active download (kernel tarball or catalog patch)
	downloadHandle *task.Handle[download.Msg]
	downloadName   string
	downloadMeta   patches.Meta
	downloadTotal  *int64
	downloadBytes  int64
	extracting     bool
	bar            progress.Model

	// Build tab
	buildHandle *task.Handle[builder.Msg]
	buildInput  *builder.InputHandle
	buildKind   string
	buildLines  []logLine
	buildExit   *int
	inputMode   bool
	inputField  textinput.Model
	wd          *workdir.WorkDir

	// Repo clone / build-tree copy
	cloneHandle *task.Handle[gitrepo.Msg]
	cloneKind   string
	cloneLines  []logLine

	spin   spinner.Model
	width  int
	height int
	status string
	err    error
}

func NewApp(cfg *settings.Config, st *settings.Settings, store *storage.Storage, hk *hooks.Runtime) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	input := textinput.New()
	input.Placeholder = "input for build process"
	input.CharLimit = 256

	edit := textinput.New()
	edit.CharLimit = 256

	return &App{
		cfg:        cfg,
		settings:   st,
		store:      store,
		hooks:      hk,
		statuses:   make(map[string]patches.Status),
		bar:        progress.New(progress.WithDefaultGradient()),
		spin:       sp,
		inputField: input,
		editInput:  edit,
	}
}

func (a *App) Init() tea.Cmd {
	a.loadingVersions = true
	return tea.Batch(a.loadVersions, a.spin.Tick, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = min(msg.Width-8, 50)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tickMsg:
		a.drainTasks()
		return a, a.tickCmd()

	case versionsLoadedMsg:
		a.loadingVersions = false
		a.versions = msg.versions
		a.err = msg.err
		if a.versionIdx >= len(a.versions) {
			a.versionIdx = 0
		}
		return a, nil

	case shortlogLoadedMsg:
		a.err = msg.err
		if msg.err == nil {
			a.shortlog = msg.commits
			a.showShortlog = true
		}
		return a, nil
	}

	return a, nil
}

// drainTasks pulls every queued message off the active task handles. A
// terminal message drops the handle; the associated worker is already gone
// or on its way out.
func (a *App) drainTasks() {
	for a.buildHandle != nil {
		msg, ok := a.buildHandle.TryRecv()
		if !ok {
			break
		}
		a.handleBuildMsg(msg)
	}

	for a.cloneHandle != nil {
		msg, ok := a.cloneHandle.TryRecv()
		if !ok {
			break
		}
		a.handleCloneMsg(msg)
	}

	for a.downloadHandle != nil {
		msg, ok := a.downloadHandle.TryRecv()
		if !ok {
			break
		}
		a.handleDownloadMsg(msg)
	}

	for a.checkHandle != nil {
		msg, ok := a.checkHandle.TryRecv()
		if !ok {
			break
		}
		a.handleCheckResult(msg)
	}
}

func (a *App) handleBuildMsg(msg builder.Msg) {
	switch m := msg.(type) {
	case builder.Line:
		a.buildLines = append(a.buildLines, logLine{text: m.Text, class: classify(m.Text)})

	case builder.Exit:
		code := m.Code
		a.buildExit = &code
		a.buildHandle = nil
		a.buildInput = nil
		a.inputMode = false
		if code == 0 {
			a.status = fmt.Sprintf("%s build finished", a.buildKind)
		} else {
			a.status = fmt.Sprintf("%s build failed (exit %d)", a.buildKind, code)
		}
		if err := a.hooks.Fire(hooks.EventBuildComplete, map[string]any{
			"kind":      a.buildKind,
			"exit_code": code,
		}); err != nil {
			a.err = err
		}
		a.cleanupWorkDir()

	case builder.SpawnError:
		a.buildLines = append(a.buildLines, logLine{text: m.Reason, class: classError})
		a.buildHandle = nil
		a.buildInput = nil
		a.status = "build failed to start"
		a.cleanupWorkDir()
	}
}

func (a *App) handleCloneMsg(msg gitrepo.Msg) {
	switch m := msg.(type) {
	case gitrepo.Line:
		a.cloneLines = append(a.cloneLines, logLine{text: m.Text, class: classify(m.Text)})

	case gitrepo.Exit:
		kind := a.cloneKind
		a.cloneHandle = nil
		a.cloneKind = ""
		if m.Code != 0 {
			a.status = fmt.Sprintf("%s failed (exit %d)", kind, m.Code)
			if kind == "prepare" {
				a.cleanupWorkDir()
			}
			return
		}
		if kind == "prepare" {
			a.launchBuild()
			return
		}
		a.status = kind + " done"

	case gitrepo.SpawnError:
		a.cloneLines = append(a.cloneLines, logLine{text: m.Reason, class: classError})
		a.cloneHandle = nil
		a.cloneKind = ""
		a.status = "git operation failed to start"
	}
}

func (a *App) handleDownloadMsg(msg download.Msg) {
	switch m := msg.(type) {
	case download.Started:
		a.downloadTotal = m.Total
		a.downloadBytes = 0
		a.extracting = false

	case download.Progress:
		a.downloadBytes = m.Bytes

	case download.Extracting:
		a.extracting = true

	case download.Complete:
		a.downloadHandle = nil
		a.extracting = false
		a.status = "downloaded " + a.downloadName
		if a.downloadMeta.Filename != "" {
			meta := a.downloadMeta
			meta.SHA256 = m.Result.SHA256
			meta.ETag = m.Result.ETag
			meta.LastModified = m.Result.LastModified
			meta.DownloadedAt = time.Now()
			meta.Status = patches.StatusUpToDate
			if err := a.store.RecordDownload(meta); err != nil {
				a.err = err
			}
			a.statuses[meta.Key()] = meta.Status
			a.downloadMeta = patches.Meta{}
			a.reloadPatches()
		}
		if err := a.hooks.Fire(hooks.EventDownloadComplete, map[string]any{
			"filename": a.downloadName,
			"path":     m.Result.Path,
			"sha256":   m.Result.SHA256,
		}); err != nil {
			a.err = err
		}

	case download.Failed:
		a.downloadHandle = nil
		a.extracting = false
		a.downloadMeta = patches.Meta{}
		a.status = "download failed: " + m.Reason
	}
}

func (a *App) handleCheckResult(res patches.CheckResult) {
	a.statuses[res.Key] = res.Status
	if meta, err := a.store.Get(a.series(), filepath.Base(res.Key)); err == nil && meta != nil {
		if err := a.store.UpdateStatus(meta.Series, meta.Filename, res.Status); err != nil {
			a.err = err
		}
	}
	a.checkPending--
	if a.checkPending <= 0 {
		a.checkHandle = nil
		a.status = "staleness check finished"
	}
}

// Keys

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text entry modes capture everything except escape.
	if a.inputMode {
		return a.handleInputModeKey(msg)
	}
	if a.editing {
		return a.handleEditKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit
	case "tab":
		a.switchTab(Tab((int(a.tab) + 1) % len(tabNames)))
		return a, nil
	case "shift+tab":
		a.switchTab(Tab((int(a.tab) + len(tabNames) - 1) % len(tabNames)))
		return a, nil
	case "1", "2", "3", "4", "5":
		a.switchTab(Tab(int(msg.String()[0] - '1')))
		return a, nil
	}

	switch a.tab {
	case TabKernel:
		return a.handleKernelKey(msg)
	case TabConfig:
		return a.handleConfigKey(msg)
	case TabPatches:
		return a.handlePatchesKey(msg)
	case TabBuild:
		return a.handleBuildKey(msg)
	case TabSettings:
		return a.handleSettingsKey(msg)
	}
	return a, nil
}

func (a *App) switchTab(tab Tab) {
	a.tab = tab
	a.showShortlog = false
	a.catalogMode = false
	switch tab {
	case TabConfig:
		if a.configFile == nil {
			a.loadConfig()
		}
	case TabPatches:
		a.reloadPatches()
	}
}

func (a *App) handleKernelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.showShortlog {
		if msg.String() == "esc" {
			a.showShortlog = false
		}
		return a, nil
	}

	switch msg.String() {
	case "up", "k":
		if a.versionIdx > 0 {
			a.versionIdx--
		}
	case "down", "j":
		if a.versionIdx < len(a.versions)-1 {
			a.versionIdx++
		}
	case "r":
		a.loadingVersions = true
		return a, a.loadVersions
	case "enter":
		if v, ok := a.selectedVersion(); ok {
			prev := kernel.PreviousVersion(v.Version, a.versions)
			if prev == "" {
				a.status = "no earlier release to diff against"
				return a, nil
			}
			return a, a.loadShortlog(prev, v.Version)
		}
	case "d":
		if v, ok := a.selectedVersion(); ok && a.downloadHandle == nil {
			a.settings.LastVersion = v.Version
			a.saveSettings()
			a.downloadName = kernel.SourceDirName(v.Version)
			a.downloadHandle = download.FetchArchive(
				kernel.DownloadURL(v.Version),
				a.settings.SourcesDir,
				kernel.SourceDirName(v.Version),
			)
			a.status = "downloading " + a.downloadName
		}
	}
	return a, nil
}

func (a *App) handleConfigKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if a.keyIdx > 0 {
			a.keyIdx--
		}
	case "down", "j":
		if a.keyIdx < len(a.configKeys)-1 {
			a.keyIdx++
		}
	case "r":
		a.loadConfig()
	case "enter":
		if a.configFile != nil && a.keyIdx < len(a.configKeys) {
			key := a.configKeys[a.keyIdx]
			value, _ := a.configFile.Get(key)
			a.editInput.SetValue(value)
			a.editInput.Focus()
			a.editing = true
		}
	}
	return a, nil
}

func (a *App) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.editing = false
		a.editInput.Blur()
		return a, nil
	case "enter":
		key := a.configKeys[a.keyIdx]
		a.configFile.Set(key, a.editInput.Value())
		if err := a.configFile.Save(); err != nil {
			a.err = err
		} else {
			a.status = "saved " + key
		}
		a.editing = false
		a.editInput.Blur()
		return a, nil
	}

	var cmd tea.Cmd
	a.editInput, cmd = a.editInput.Update(msg)
	return a, cmd
}

func (a *App) handlePatchesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.catalogMode {
		return a.handleCatalogKey(msg)
	}

	switch msg.String() {
	case "up", "k":
		if a.patchIdx > 0 {
			a.patchIdx--
		}
	case "down", "j":
		if a.patchIdx < len(a.entries)-1 {
			a.patchIdx++
		}
	case "r":
		a.reloadPatches()
	case "t", " ":
		if a.patchIdx < len(a.entries) {
			if err := patches.Toggle(&a.entries[a.patchIdx]); err != nil {
				a.err = err
			}
		}
	case "x":
		if a.patchIdx < len(a.entries) {
			entry := a.entries[a.patchIdx]
			if err := patches.Delete(entry); err != nil {
				a.err = err
				return a, nil
			}
			if err := a.store.Remove(a.series(), entry.Name); err != nil {
				a.err = err
			}
			a.reloadPatches()
		}
	case "c":
		a.catalogEntries = catalog.ForSeries(a.series())
		a.catalogIdx = 0
		a.catalogMode = true
	case "u":
		if a.checkHandle == nil {
			metas, err := a.store.AllForSeries(a.series())
			if err != nil {
				a.err = err
				return a, nil
			}
			if len(metas) == 0 {
				a.status = "no tracked patches to check"
				return a, nil
			}
			a.checkPending = len(metas)
			a.checkHandle = patches.CheckAll(metas)
			a.status = "checking upstream patches"
		}
	}
	return a, nil
}

func (a *App) handleCatalogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.catalogMode = false
	case "up", "k":
		if a.catalogIdx > 0 {
			a.catalogIdx--
		}
	case "down", "j":
		if a.catalogIdx < len(a.catalogEntries)-1 {
			a.catalogIdx++
		}
	case "enter":
		if a.catalogIdx < len(a.catalogEntries) && a.downloadHandle == nil {
			entry := a.catalogEntries[a.catalogIdx]
			series := a.series()
			filename := entry.FilenameForSeries(series)
			url := entry.URLForSeries(series)
			dest := filepath.Join(patches.Dir(a.settings.LinuxTKGPath, series), filename)

			a.downloadName = filename
			a.downloadMeta = patches.Meta{
				Filename:  filename,
				Series:    series,
				SourceURL: url,
				CatalogID: entry.ID,
			}
			a.downloadHandle = download.Fetch(url, dest)
			a.status = "downloading " + filename
			a.catalogMode = false
		}
	}
	return a, nil
}

func (a *App) handleBuildKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s":
		a.startBuild("linux-tkg", a.settings.LinuxTKGPath)
	case "w":
		a.startBuild("wine-tkg-git", a.settings.WineTKGPath)
	case "i":
		if a.buildInput != nil && a.buildInput.Available() {
			a.inputField.SetValue("")
			a.inputField.Focus()
			a.inputMode = true
		} else {
			a.status = "build is not accepting input"
		}
	case "esc":
		// Stop watching. The process keeps running to completion; we
		// just lose the stream.
		if a.buildHandle != nil {
			a.buildHandle = nil
			a.buildInput = nil
			a.status = "detached from build output"
		}
	}
	return a, nil
}

func (a *App) handleInputModeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.inputMode = false
		a.inputField.Blur()
		return a, nil
	case "enter":
		text := a.inputField.Value()
		a.inputMode = false
		a.inputField.Blur()
		if a.buildInput == nil {
			a.status = "build is not accepting input"
			return a, nil
		}
		if err := a.buildInput.Send(text); err != nil {
			a.status = "input rejected: " + err.Error()
		} else {
			a.buildLines = append(a.buildLines, logLine{text: "> " + text, class: classStage})
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.inputField, cmd = a.inputField.Update(msg)
	return a, cmd
}

func (a *App) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "l":
		if a.cloneHandle == nil && !settings.IsCloned(a.settings.LinuxTKGPath) {
			a.cloneKind = "linux-tkg clone"
			a.cloneLines = nil
			a.cloneHandle = gitrepo.CloneLinuxTKG(a.settings.LinuxTKGPath)
			a.status = "cloning linux-tkg"
		}
	case "w":
		if a.cloneHandle == nil && !settings.IsCloned(a.settings.WineTKGPath) {
			a.cloneKind = "wine-tkg clone"
			a.cloneLines = nil
			a.cloneHandle = gitrepo.CloneWineTKG(a.settings.WineTKGPath)
			a.status = "cloning wine-tkg"
		}
	case "m":
		a.settings.UseMakepkg = !a.settings.UseMakepkg
		a.saveSettings()
	case "k":
		a.settings.KeepWorkDir = !a.settings.KeepWorkDir
		a.saveSettings()
	}
	return a, nil
}

// Actions

// startBuild copies the checkout into a fresh scratch tree, then launches
// the build there once the copy's exit message arrives.
func (a *App) startBuild(kind, srcPath string) {
	if a.buildHandle != nil || a.cloneHandle != nil {
		a.status = "a build is already running"
		return
	}
	if !settings.IsCloned(srcPath) {
		a.status = kind + " is not cloned yet (see Settings)"
		return
	}

	wd, err := workdir.Create(a.settings.KeepWorkDir)
	if err != nil {
		a.err = err
		return
	}

	a.wd = wd
	a.buildKind = kind
	a.buildLines = nil
	a.buildExit = nil
	a.cloneKind = "prepare"
	a.cloneHandle = gitrepo.CopyDir(srcPath, a.buildDir())
	a.status = "preparing build tree"
}

func (a *App) launchBuild() {
	name, args := builder.Command(a.settings.UseMakepkg)
	a.buildHandle, a.buildInput = builder.Start(a.buildDir(), name, args...)
	a.status = "building " + a.buildKind
}

func (a *App) cleanupWorkDir() {
	if a.wd == nil {
		return
	}
	if err := a.wd.Cleanup(); err != nil {
		a.err = err
	}
	a.wd = nil
}

func (a *App) buildDir() string {
	if a.buildKind == "wine-tkg-git" {
		return a.wd.WineTKG()
	}
	return a.wd.LinuxTKG()
}

func (a *App) loadConfig() {
	path := filepath.Join(a.settings.LinuxTKGPath, "customization.cfg")
	file, err := kvconf.Load(path)
	if err != nil {
		a.err = err
		return
	}
	a.configFile = file

	keys := make([]string, 0)
	for k := range file.All() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	a.configKeys = keys
	if a.keyIdx >= len(keys) {
		a.keyIdx = 0
	}
}

func (a *App) reloadPatches() {
	a.entries = patches.List(patches.Dir(a.settings.LinuxTKGPath, a.series()))
	if a.patchIdx >= len(a.entries) {
		a.patchIdx = 0
	}
	if metas, err := a.store.AllForSeries(a.series()); err == nil {
		for _, m := range metas {
			if _, seen := a.statuses[m.Key()]; !seen {
				a.statuses[m.Key()] = m.Status
			}
		}
	}
}

// series is the kernel series patches apply to: the selected version if one
// is highlighted, else whatever was last downloaded.
func (a *App) series() string {
	if v, ok := a.selectedVersion(); ok {
		return kernel.Series(v.Version)
	}
	if a.settings.LastVersion != "" {
		return kernel.Series(a.settings.LastVersion)
	}
	return ""
}

func (a *App) selectedVersion() (kernel.Version, bool) {
	if len(a.versions) == 0 || a.versionIdx >= len(a.versions) {
		return kernel.Version{}, false
	}
	return a.versions[a.versionIdx], true
}

func (a *App) saveSettings() {
	if err := a.cfg.Save(a.settings); err != nil {
		a.err = err
	}
}

// Messages and commands

type versionsLoadedMsg struct {
	versions []kernel.Version
	err      error
}

type shortlogLoadedMsg struct {
	commits []kernel.Commit
	err     error
}

func (a *App) loadVersions() tea.Msg {
	versions, err := kernel.FetchVersions()
	return versionsLoadedMsg{versions: versions, err: err}
}

func (a *App) loadShortlog(from, to string) tea.Cmd {
	return func() tea.Msg {
		commits, err := kernel.FetchShortlog(from, to)
		return shortlogLoadedMsg{commits: commits, err: err}
	}
}

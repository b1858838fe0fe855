package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tkgforge/tkgforge/internal/patches"
	"github.com/tkgforge/tkgforge/internal/settings"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	statusUpToDate = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusStale    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusErr      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

type lineClass int

const (
	classPlain lineClass = iota
	classStage
	classWarning
	classError
)

type logLine struct {
	text  string
	class lineClass
}

// classify picks a display class from the line's content. "==>" is makepkg's
// stage marker; linux-tkg's own scripts use it too.
func classify(text string) lineClass {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(trimmed, "==>"):
		if strings.Contains(lower, "error") {
			return classError
		}
		if strings.Contains(lower, "warning") {
			return classWarning
		}
		return classStage
	case strings.Contains(lower, "error:"), strings.HasPrefix(lower, "error"),
		strings.Contains(lower, "failed"), strings.Contains(lower, "fatal:"):
		return classError
	case strings.Contains(lower, "warning"):
		return classWarning
	default:
		return classPlain
	}
}

func renderLine(l logLine) string {
	switch l.class {
	case classStage:
		return stageStyle.Render(l.text)
	case classWarning:
		return warningStyle.Render(l.text)
	case classError:
		return errorStyle.Render(l.text)
	default:
		return l.text
	}
}

func (a *App) View() string {
	s := a.viewHeader()

	switch a.tab {
	case TabKernel:
		s += a.viewKernel()
	case TabConfig:
		s += a.viewConfig()
	case TabPatches:
		s += a.viewPatches()
	case TabBuild:
		s += a.viewBuild()
	case TabSettings:
		s += a.viewSettings()
	}

	s += a.viewFooter()
	return s
}

func (a *App) viewHeader() string {
	var tabs []string
	for i, name := range tabNames {
		style := tabStyle
		if Tab(i) == a.tab {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("%d:%s", i+1, name)))
	}
	return titleStyle.Render("tkgforge") + "  " + strings.Join(tabs, " ") + "\n\n"
}

func (a *App) viewFooter() string {
	s := "\n"

	if a.downloadHandle != nil {
		s += a.viewDownloadProgress() + "\n"
	}
	if a.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}
	if a.status != "" {
		s += dimStyle.Render(a.status) + "\n"
	}

	s += helpStyle.Render(a.helpLine())
	return s
}

func (a *App) viewDownloadProgress() string {
	if a.extracting {
		return a.spin.View() + " extracting " + a.downloadName
	}
	if a.downloadTotal != nil && *a.downloadTotal > 0 {
		pct := float64(a.downloadBytes) / float64(*a.downloadTotal)
		return fmt.Sprintf("%s %s %s", a.downloadName, a.bar.ViewAs(pct), formatBytes(a.downloadBytes))
	}
	return fmt.Sprintf("%s %s %s", a.spin.View(), a.downloadName, formatBytes(a.downloadBytes))
}

func (a *App) helpLine() string {
	if a.inputMode {
		return "[enter] send  [esc] cancel"
	}
	if a.editing {
		return "[enter] save  [esc] cancel"
	}
	switch a.tab {
	case TabKernel:
		if a.showShortlog {
			return "[esc] back"
		}
		return "[↑/↓] select  [enter] changelog  [d] download  [r] refresh  [tab] next  [q] quit"
	case TabConfig:
		return "[↑/↓] select  [enter] edit  [r] reload  [tab] next  [q] quit"
	case TabPatches:
		if a.catalogMode {
			return "[↑/↓] select  [enter] download  [esc] back"
		}
		return "[t] toggle  [x] delete  [c] catalog  [u] check upstream  [r] refresh  [q] quit"
	case TabBuild:
		return "[s] build linux-tkg  [w] build wine-tkg  [i] input  [esc] detach  [q] quit"
	case TabSettings:
		return "[l] clone linux-tkg  [w] clone wine-tkg  [m] makepkg  [k] keep workdir  [q] quit"
	}
	return ""
}

func (a *App) viewKernel() string {
	if a.showShortlog {
		return a.viewShortlog()
	}

	s := "Kernel Releases\n───────────────\n"

	if a.loadingVersions {
		return s + a.spin.View() + " fetching release tags...\n"
	}
	if len(a.versions) == 0 {
		return s + "(no releases; press 'r' to retry)\n"
	}

	limit := len(a.versions)
	if a.height > 0 && limit > a.height-8 {
		limit = a.height - 8
	}
	for i := 0; i < limit; i++ {
		v := a.versions[i]
		line := fmt.Sprintf("%-12s %s", v.Version, dimStyle.Render(v.Date))
		if i == a.versionIdx {
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}
	return s
}

func (a *App) viewShortlog() string {
	s := titleStyle.Render("Changes") + "\n\n"
	if len(a.shortlog) == 0 {
		return s + "(no commits)\n"
	}
	for _, c := range a.shortlog {
		s += fmt.Sprintf("%s %s %s\n",
			dimStyle.Render(c.Hash),
			c.Subject,
			labelStyle.Render("("+c.Author+")"))
	}
	return s
}

func (a *App) viewConfig() string {
	s := "customization.cfg\n─────────────────\n"

	if a.configFile == nil {
		return s + "(not loaded; clone linux-tkg first, then press 'r')\n"
	}

	for i, key := range a.configKeys {
		value, _ := a.configFile.Get(key)
		line := fmt.Sprintf("%-28s %s", key, value)
		if i == a.keyIdx {
			if a.editing {
				line = fmt.Sprintf("%-28s %s", key, a.editInput.View())
			}
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}
	return s
}

func (a *App) viewPatches() string {
	if a.catalogMode {
		return a.viewCatalog()
	}

	series := a.series()
	s := fmt.Sprintf("Userpatches (series %s)\n───────────────────────\n", series)

	if series == "" {
		return s + "(select a kernel version first)\n"
	}
	if len(a.entries) == 0 {
		return s + "(no patches; press 'c' to browse the catalog)\n"
	}

	for i, p := range a.entries {
		marker := dimStyle.Render("○ off")
		if p.Enabled {
			marker = okStyle.Render("● on ")
		}
		line := fmt.Sprintf("%s  %-40s %s", marker, p.Name, a.renderPatchStatus(series, p.Name))
		if i == a.patchIdx {
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}
	return s
}

func (a *App) renderPatchStatus(series, filename string) string {
	status, ok := a.statuses[series+"/"+filename]
	if !ok {
		return ""
	}
	switch status {
	case patches.StatusUpToDate:
		return statusUpToDate.Render("up to date")
	case patches.StatusStale:
		return statusStale.Render("update available")
	case patches.StatusCheckError:
		return statusErr.Render("check failed")
	case patches.StatusNoURL:
		return dimStyle.Render("local")
	default:
		return dimStyle.Render("unchecked")
	}
}

func (a *App) viewCatalog() string {
	s := titleStyle.Render("Patch Catalog") + "  " + dimStyle.Render("series "+a.series()) + "\n\n"

	if len(a.catalogEntries) == 0 {
		return s + "(nothing in the catalog supports this series)\n"
	}

	for i, e := range a.catalogEntries {
		line := fmt.Sprintf("%-28s %s", e.Name, dimStyle.Render(e.Description))
		if i == a.catalogIdx {
			line = selectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}
	return s
}

func (a *App) viewBuild() string {
	s := "Build\n─────\n"

	switch {
	case a.cloneKind == "prepare":
		s += a.spin.View() + " preparing build tree for " + a.buildKind + "\n\n"
	case a.buildHandle != nil:
		input := ""
		if a.buildInput != nil && a.buildInput.Available() {
			input = okStyle.Render(" [input open]")
		}
		s += a.spin.View() + " building " + a.buildKind + input + "\n\n"
	case a.buildExit != nil:
		if *a.buildExit == 0 {
			s += okStyle.Render("✓ "+a.buildKind+" build succeeded") + "\n\n"
		} else {
			s += errorStyle.Render(fmt.Sprintf("✗ %s build failed (exit %d)", a.buildKind, *a.buildExit)) + "\n\n"
		}
	default:
		s += "No build running. Press 's' for linux-tkg or 'w' for wine-tkg.\n\n"
	}

	visible := a.buildLines
	max := 20
	if a.height > 0 {
		max = a.height - 10
	}
	if max > 0 && len(visible) > max {
		visible = visible[len(visible)-max:]
	}
	for _, l := range visible {
		s += renderLine(l) + "\n"
	}

	if a.inputMode {
		s += "\n" + a.inputField.View() + "\n"
	}
	return s
}

func (a *App) viewSettings() string {
	s := "Settings\n────────\n"

	check := func(b bool) string {
		if b {
			return okStyle.Render("yes")
		}
		return dimStyle.Render("no")
	}

	s += labelStyle.Render("linux-tkg:    ") + a.settings.LinuxTKGPath +
		"  cloned: " + check(settings.IsCloned(a.settings.LinuxTKGPath)) + "\n"
	s += labelStyle.Render("wine-tkg:     ") + a.settings.WineTKGPath +
		"  cloned: " + check(settings.IsCloned(a.settings.WineTKGPath)) + "\n"
	s += labelStyle.Render("sources dir:  ") + a.settings.SourcesDir + "\n"
	s += labelStyle.Render("use makepkg:  ") + check(a.settings.UseMakepkg) + "\n"
	s += labelStyle.Render("keep workdir: ") + check(a.settings.KeepWorkDir) + "\n"

	if len(a.cloneLines) > 0 {
		s += "\n"
		visible := a.cloneLines
		if len(visible) > 10 {
			visible = visible[len(visible)-10:]
		}
		for _, l := range visible {
			s += renderLine(l) + "\n"
		}
	}
	return s
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

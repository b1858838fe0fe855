package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tkgforge/tkgforge/internal/builder"
	"github.com/tkgforge/tkgforge/internal/catalog"
	"github.com/tkgforge/tkgforge/internal/download"
	"github.com/tkgforge/tkgforge/internal/gitrepo"
	"github.com/tkgforge/tkgforge/internal/hooks"
	"github.com/tkgforge/tkgforge/internal/kernel"
	"github.com/tkgforge/tkgforge/internal/patches"
	"github.com/tkgforge/tkgforge/internal/settings"
	"github.com/tkgforge/tkgforge/internal/storage"
	"github.com/tkgforge/tkgforge/internal/task"
	"github.com/tkgforge/tkgforge/internal/tui"
	"github.com/tkgforge/tkgforge/internal/workdir"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tkgforge",
		Short: "Build manager for linux-tkg and wine-tkg",
		Long:  "tkgforge drives linux-tkg and wine-tkg builds: kernel discovery, patch management, and supervised builds.",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(newVersionsCommand())
	rootCmd.AddCommand(newDownloadCommand())
	rootCmd.AddCommand(newCloneCommand())
	rootCmd.AddCommand(newPatchesCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newBuildCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEnv loads config, settings, and the patch database. Every command
// starts here.
func openEnv() (*settings.Config, *settings.Settings, *storage.Storage, error) {
	cfg, err := settings.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := cfg.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return cfg, st, store, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, st, store, err := openEnv()
	if err != nil {
		return err
	}
	defer store.Close()

	hk := hooks.NewRuntime(filepath.Join(cfg.DataDir, "hooks"))

	app := tui.NewApp(cfg, st, store, hk)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func newVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List recent stable kernel releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := kernel.FetchVersions()
			if err != nil {
				return err
			}

			limit := 15
			if len(versions) < limit {
				limit = len(versions)
			}
			for _, v := range versions[:limit] {
				fmt.Printf("%-12s %s\n", v.Version, v.Date)
			}
			return nil
		},
	}
}

func newDownloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <version>",
		Short: "Download and unpack a kernel source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := args[0]

			cfg, st, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			st.LastVersion = version
			if err := cfg.Save(st); err != nil {
				return err
			}

			handle := download.FetchArchive(
				kernel.DownloadURL(version),
				st.SourcesDir,
				kernel.SourceDirName(version),
			)

			for {
				msg, ok := handle.Recv()
				if !ok {
					return nil
				}
				switch m := msg.(type) {
				case download.Started:
					if m.Total != nil {
						fmt.Printf("downloading %d bytes\n", *m.Total)
					} else {
						fmt.Println("downloading (size unknown)")
					}
				case download.Progress:
					fmt.Printf("\r%d bytes", m.Bytes)
				case download.Extracting:
					fmt.Println("\nextracting...")
				case download.Complete:
					fmt.Printf("unpacked to %s\n", m.Result.Path)
				case download.Failed:
					return fmt.Errorf("download failed: %s", m.Reason)
				}
			}
		},
	}
}

func newCloneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <linux|wine>",
		Short: "Clone the linux-tkg or wine-tkg repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			var handle *task.Handle[gitrepo.Msg]
			switch args[0] {
			case "linux":
				handle = gitrepo.CloneLinuxTKG(st.LinuxTKGPath)
			case "wine":
				handle = gitrepo.CloneWineTKG(st.WineTKGPath)
			default:
				return fmt.Errorf("unknown repository %q (want linux or wine)", args[0])
			}

			return drainGit(handle)
		},
	}
}

func newPatchesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "patches <series>",
		Short: "List userpatches for a kernel series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series := args[0]

			_, st, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			entries := patches.List(patches.Dir(st.LinuxTKGPath, series))
			if len(entries) == 0 {
				fmt.Println("No patches found.")
				return nil
			}

			for _, p := range entries {
				state := "off"
				if p.Enabled {
					state = "on"
				}
				status := ""
				if meta, err := store.Get(series, p.Name); err == nil && meta != nil {
					status = string(meta.Status)
				}
				fmt.Printf("%-3s %-45s %s\n", state, p.Name, status)
			}
			return nil
		},
	}
}

func newFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <catalog-id|url> <series>",
		Short: "Download a catalog patch (or a raw patch URL) into the userpatches directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, series := args[0], args[1]

			var url, filename, catalogID string
			if strings.Contains(id, "://") {
				url = id
				filename = patches.FilenameFromURL(url)
			} else {
				entry, ok := catalog.ByID(id)
				if !ok {
					return fmt.Errorf("unknown catalog entry %q", id)
				}
				if !entry.SupportsSeries(series) {
					return fmt.Errorf("%s does not support series %s", id, series)
				}
				url = entry.URLForSeries(series)
				filename = entry.FilenameForSeries(series)
				catalogID = entry.ID
			}

			cfg, st, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			dest := filepath.Join(patches.Dir(st.LinuxTKGPath, series), filename)

			handle := download.Fetch(url, dest)
			for {
				msg, ok := handle.Recv()
				if !ok {
					return nil
				}
				switch m := msg.(type) {
				case download.Complete:
					meta := patches.Meta{
						Filename:     filename,
						Series:       series,
						SourceURL:    url,
						CatalogID:    catalogID,
						SHA256:       m.Result.SHA256,
						DownloadedAt: time.Now(),
						ETag:         m.Result.ETag,
						LastModified: m.Result.LastModified,
						Status:       patches.StatusUpToDate,
					}
					if err := store.RecordDownload(meta); err != nil {
						return err
					}
					fmt.Printf("fetched %s\n", dest)

					hk := hooks.NewRuntime(filepath.Join(cfg.DataDir, "hooks"))
					if err := hk.Fire(hooks.EventDownloadComplete, map[string]any{
						"filename": filename,
						"path":     m.Result.Path,
						"sha256":   m.Result.SHA256,
					}); err != nil {
						return err
					}
				case download.Failed:
					return fmt.Errorf("download failed: %s", m.Reason)
				}
			}
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <series>",
		Short: "Check tracked patches for upstream updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series := args[0]

			_, _, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			metas, err := store.AllForSeries(series)
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Println("No tracked patches.")
				return nil
			}

			handle := patches.CheckAll(metas)
			for range metas {
				res, ok := handle.Recv()
				if !ok {
					break
				}
				if err := store.UpdateStatus(series, filepath.Base(res.Key), res.Status); err != nil {
					return err
				}
				line := fmt.Sprintf("%-50s %s", res.Key, res.Status)
				if res.Reason != "" {
					line += " (" + res.Reason + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <linux|wine>",
		Short: "Run a build in a scratch work tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetBool("keep")

			cfg, st, store, err := openEnv()
			if err != nil {
				return err
			}
			defer store.Close()

			var srcPath string
			switch args[0] {
			case "linux":
				srcPath = st.LinuxTKGPath
			case "wine":
				srcPath = st.WineTKGPath
			default:
				return fmt.Errorf("unknown build target %q (want linux or wine)", args[0])
			}

			if !settings.IsCloned(srcPath) {
				return fmt.Errorf("%s is not cloned (run 'tkgforge clone %s' first)", srcPath, args[0])
			}

			wd, err := workdir.Create(keep || st.KeepWorkDir)
			if err != nil {
				return err
			}
			defer wd.Cleanup()

			buildDir := wd.LinuxTKG()
			if args[0] == "wine" {
				buildDir = wd.WineTKG()
			}

			if err := drainGit(gitrepo.CopyDir(srcPath, buildDir)); err != nil {
				return err
			}

			name, cmdArgs := builder.Command(st.UseMakepkg)
			handle, input := builder.Start(buildDir, name, cmdArgs...)

			// Forward our stdin to the build so prompts can be answered.
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					if err := input.Send(scanner.Text()); err != nil {
						return
					}
				}
			}()

			exitCode := 0
			for {
				msg, ok := handle.Recv()
				if !ok {
					break
				}
				switch m := msg.(type) {
				case builder.Line:
					fmt.Println(m.Text)
				case builder.Exit:
					exitCode = m.Code
				case builder.SpawnError:
					return fmt.Errorf("failed to start build: %s", m.Reason)
				}
			}

			hk := hooks.NewRuntime(filepath.Join(cfg.DataDir, "hooks"))
			if err := hk.Fire(hooks.EventBuildComplete, map[string]any{
				"kind":      args[0] + "-tkg",
				"exit_code": exitCode,
			}); err != nil {
				return err
			}

			if exitCode != 0 {
				return fmt.Errorf("build failed with exit code %d", exitCode)
			}
			fmt.Println("build succeeded")
			return nil
		},
	}

	cmd.Flags().Bool("keep", false, "Keep the scratch work tree after the build")
	return cmd
}

// drainGit streams a git task's output to stdout and turns a non-zero exit
// into an error.
func drainGit(handle *task.Handle[gitrepo.Msg]) error {
	for {
		msg, ok := handle.Recv()
		if !ok {
			return nil
		}
		switch m := msg.(type) {
		case gitrepo.Line:
			fmt.Println(m.Text)
		case gitrepo.Exit:
			if m.Code != 0 {
				return fmt.Errorf("git operation failed with exit code %d", m.Code)
			}
		case gitrepo.SpawnError:
			return fmt.Errorf("failed to start git: %s", m.Reason)
		}
	}
}

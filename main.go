package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/attach"
	"github.com/lotas/tabgroupsync/internal/export"
	"github.com/lotas/tabgroupsync/internal/firefox"
	"github.com/lotas/tabgroupsync/internal/pagetitle"
	"github.com/lotas/tabgroupsync/internal/server"
	"github.com/lotas/tabgroupsync/internal/storage"
	"github.com/lotas/tabgroupsync/internal/syncbridge"
	"github.com/lotas/tabgroupsync/internal/tui"
	"github.com/lotas/tabgroupsync/internal/types"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config
	root := &cobra.Command{
		Use:           "tabgroupsync",
		Short:         "Keep saved tab groups in sync with the browser tab strip",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadConfig()
			if err != nil {
				return err
			}
			overrideFromFlags(cmd, &env, &cfg)
			if err := env.fillDefaults(); err != nil {
				return err
			}
			cfg = env
			if err := applog.Init(cfg.LogDir); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not open log file: %v\n", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { applog.Close() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DataDir, "data-dir", "", "data directory (env "+envPrefix+"_DATA_DIR)")
	flags.StringVar(&cfg.DB, "db", "", "sqlite database path (env "+envPrefix+"_DB)")
	flags.StringVar(&cfg.MappingDSN, "mapping-dsn", "", "local group mapping store: sqlite:, memory:, file:///prefs.json, postgres://...")
	flags.StringVar(&cfg.SyncDir, "sync-dir", "", "shared directory to sync saved groups through")

	root.AddCommand(
		newServeCmd(&cfg),
		newListCmd(&cfg),
		newExportCmd(&cfg),
		newImportCmd(&cfg),
		newProfilesCmd(),
	)
	return root
}

// overrideFromFlags copies explicitly set flags over env values.
func overrideFromFlags(cmd *cobra.Command, env, flags *Config) {
	set := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if set("data-dir") {
		env.DataDir = flags.DataDir
	}
	if set("db") {
		env.DB = flags.DB
	}
	if set("mapping-dsn") {
		env.MappingDSN = flags.MappingDSN
	}
	if set("sync-dir") {
		env.SyncDir = flags.SyncDir
	}
	if set("port") {
		env.Port = flags.Port
	}
}

func newServeCmd(cfg *Config) *cobra.Command {
	var withTUI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service and the browser extension bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*cfg, withTUI)
		},
	}
	cmd.Flags().IntVar(&cfg.Port, "port", 19191, "WebSocket port for the browser extension (env "+envPrefix+"_PORT)")
	cmd.Flags().BoolVar(&withTUI, "tui", false, "browse saved groups in a terminal UI while serving")
	return cmd
}

func runServe(cfg Config, withTUI bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Port)
	mirror := server.NewMirror(srv)
	st, err := openStack(cfg, mirror.HasGroup)
	if err != nil {
		return err
	}
	defer st.Close()

	delegate := attach.NewDelegate(st.svc, mirror)
	defer delegate.Close()

	// The model loads once the extension has reported its tab strip, so open
	// groups can be re-attached, or after a timeout without one.
	router := server.NewRouter(st.seq, mirror, delegate, srv.Send)
	router.OnSnapshot(st.load)
	cancelLoad := st.seq.PostDelayed(cfg.LoadTimeout, func() {
		if !st.loaded {
			applog.Warn("serve.load.timeout", "after", cfg.LoadTimeout)
		}
		st.load()
	})
	defer cancelLoad()

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			applog.Error("serve.listen", err, "port", cfg.Port)
			stop()
		}
	}()
	go router.Run(ctx, srv.Messages())

	if st.transport != nil {
		go func() {
			err := st.transport.Watch(ctx, func(recs []syncbridge.Record) {
				st.seq.Post(func() { st.applyRemote(recs) })
			})
			if err != nil {
				applog.Error("serve.sync.watch", err, "dir", cfg.SyncDir)
			}
		}()
	}

	applog.Info("serve.start", "port", cfg.Port, "sync_dir", cfg.SyncDir, "tui", withTUI)
	if !withTUI {
		fmt.Fprintf(os.Stderr, "Waiting for the browser extension on :%d (Ctrl-C to stop)\n", cfg.Port)
		return ignoreCanceled(st.seq.Run(ctx))
	}

	done := make(chan error, 1)
	go func() { done <- st.seq.Run(ctx) }()
	backend := tui.NewSequenceBackend(st.seq, st.svc, delegate)
	p := tea.NewProgram(tui.NewModel(backend, fmt.Sprintf("tabgroupsync :%d", cfg.Port)), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()
	stop()
	runErr := ignoreCanceled(<-done)
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", uiErr)
	}
	return runErr
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadStored reads saved groups straight from the database.
func loadStored(cfg Config) ([]types.SavedTabGroup, string, error) {
	db, err := storage.OpenDB(cfg.DB)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()
	guid, err := storage.LocalCacheGUID(db)
	if err != nil {
		return nil, "", err
	}
	groups, err := storage.LoadGroups(db)
	if err != nil {
		return nil, "", err
	}
	return groups, guid, nil
}

func newListCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved tab groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, _, err := loadStored(*cfg)
			if err != nil {
				return err
			}
			printGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
}

func printGroups(w io.Writer, groups []types.SavedTabGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No saved groups.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GUID\tTITLE\tCOLOR\tTABS\tSTATE")
	for _, g := range groups {
		state := "saved"
		if g.IsOpen() {
			state = "open"
		}
		if g.Pinned {
			state += ",pinned"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.GUID, g.Title, g.Color, len(g.Tabs), state)
	}
	tw.Flush()
}

func newExportCmd(cfg *Config) *cobra.Command {
	var format, outFile string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved tab groups as markdown, JSON or an lz4 bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, device, err := loadStored(*cfg)
			if err != nil {
				return err
			}
			var out []byte
			switch format {
			case "markdown", "md":
				out = []byte(export.Markdown(groups))
			case "json":
				doc, err := export.JSON(device, groups)
				if err != nil {
					return fmt.Errorf("generate JSON: %w", err)
				}
				out = []byte(doc)
			case "lz4":
				if outFile == "" {
					return errors.New("lz4 bundles need --out")
				}
				if out, err = export.Bundle(device, groups); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if outFile == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(outFile, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			applog.Info("export.done", "format", format, "groups", len(groups), "out", outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown, json or lz4")
	cmd.Flags().StringVar(&outFile, "out", "", "output file path (default: stdout)")
	return cmd
}

func newImportCmd(cfg *Config) *cobra.Command {
	var fromFirefox, fetchTitles bool
	var profileName string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import saved tab groups from an export file or Firefox",
		Long: `Import saved tab groups from a JSON export, an lz4 bundle, or the tab
groups of a Firefox profile. Groups whose GUID is already saved and groups
without tabs are skipped.
Run it while serve is stopped; the service picks the groups up on start.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var groups []types.SavedTabGroup
			var err error
			switch {
			case fromFirefox:
				groups, err = readFirefoxGroups(profileName)
			case len(args) == 1:
				var data []byte
				if data, err = os.ReadFile(args[0]); err == nil {
					groups, err = export.Parse(data)
				}
			default:
				return errors.New("give a file to import or --firefox")
			}
			if err != nil {
				return err
			}
			if fetchTitles {
				found := pagetitle.New().FillTitles(cmd.Context(), groups)
				applog.Info("import.titles", "found", found)
			}
			added, skipped, err := importGroups(*cfg, groups)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d groups (%d skipped).\n", added, skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromFirefox, "firefox", false, "import the tab groups of a Firefox profile")
	cmd.Flags().StringVar(&profileName, "profile", "", "Firefox profile name (env "+firefox.ProfileEnv+")")
	cmd.Flags().BoolVar(&fetchTitles, "fetch-titles", false, "fetch page titles for tabs that have none")
	return cmd
}

func readFirefoxGroups(profileName string) ([]types.SavedTabGroup, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	profile, err := firefox.FindProfile(profiles, profileName)
	if err != nil {
		return nil, err
	}
	groups, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	applog.Info("import.firefox", "profile", profile.Name, "groups", len(groups))
	return groups, nil
}

// importGroups adds groups through the service so they are attributed,
// stored and published to the sync dir like any local change.
func importGroups(cfg Config, groups []types.SavedTabGroup) (added, skipped int, err error) {
	st, err := openStack(cfg, nil)
	if err != nil {
		return 0, 0, err
	}
	defer st.Close()

	st.seq.Post(func() {
		st.load()
		for _, g := range groups {
			if st.model.Contains(g.GUID) || len(g.Tabs) == 0 {
				skipped++
				continue
			}
			g.LocalGroupID = ""
			g.ClearLocalTabIDs()
			st.svc.AddGroup(g)
			added++
		}
	})
	st.seq.RunUntilIdle()
	return added, skipped, nil
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List Firefox profiles that can be imported from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return fmt.Errorf("discover Firefox profiles: %w", err)
			}
			if len(profiles) == 0 {
				return errors.New("no Firefox profiles found")
			}
			for _, p := range profiles {
				suffix := ""
				if p.IsDefault {
					suffix = " [default]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)%s\n", p.Name, p.Path, suffix)
			}
			return nil
		},
	}
}

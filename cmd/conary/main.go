package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ConaryLabs/Conary-sub004/pkg/cas"
	"github.com/ConaryLabs/Conary-sub004/pkg/config"
	"github.com/ConaryLabs/Conary-sub004/pkg/engine"
	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/lock"
	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/scriptlet"
	"github.com/ConaryLabs/Conary-sub004/pkg/state"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:     "conary",
	Short:   "Conary - atomic-transaction package manager",
	Long:    `Conary installs, removes, and rolls back packages as atomic transactions over a content-addressable store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("conary version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime))

	if err := config.BindFlags(rootCmd, v); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(casCmd)

	installCmd.Flags().Bool("no-deps", false, "skip dependency resolution")
	installCmd.Flags().Bool("no-scripts", false, "skip scriptlet execution")
	installCmd.Flags().Bool("allow-downgrade", false, "permit installing an older version over a newer one")
	installCmd.Flags().Bool("dry-run", false, "plan the install without mutating anything")

	removeCmd.Flags().String("version", "", "restrict removal to this installed version")
	removeCmd.Flags().String("architecture", "", "restrict removal to this architecture")
	removeCmd.Flags().Bool("force", false, "remove despite pin or reverse-dependency blockers")
	removeCmd.Flags().Bool("no-scripts", false, "skip scriptlet execution")

	upgradeCmd.Flags().Bool("no-deps", false, "skip dependency resolution")
	upgradeCmd.Flags().Bool("no-scripts", false, "skip scriptlet execution")

	stateListCmd.Flags().Int("keep", 10, "states to keep when combined with --prune")
	stateListCmd.Flags().Bool("prune", false, "delete old inactive states beyond --keep")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateRestoreCmd)

	casEvictCmd.Flags().Int64("target", 0, "low-water size in bytes to evict down to (0 uses configured low-water)")
	casCmd.AddCommand(casEvictCmd)
}

func initLogging() {
	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	level := log.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: cfg.LogJSON})
}

// openEngine wires the metadata store, the CAS, the scriptlet host, and
// the state engine together from the resolved configuration, acquiring
// the process-wide exclusive lock for the duration of the caller's
// operation (§4.3.7). The returned closer releases the lock and closes
// the metadata store.
func openEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	l := lock.New(cfg.LockPath)
	if err := l.TryAcquire(); err != nil {
		if err == lock.ErrBusy {
			pid, _ := lock.HolderPID(cfg.LockPath)
			return nil, nil, fmt.Errorf("conary: another process (pid %d) holds the lock at %s", pid, cfg.LockPath)
		}
		return nil, nil, err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		l.Release()
		return nil, nil, fmt.Errorf("conary: open metadata store: %w", err)
	}

	algo := hash.SHA256
	if cfg.HashAlgorithm == "xxh128" {
		algo = hash.XXH128
	}
	c, err := cas.Open(cas.Options{
		Root:               cfg.CASRoot,
		DB:                 db,
		Algorithm:          algo,
		HighWaterBytes:     cfg.CASHighWaterBytes,
		LowWaterBytes:      cfg.CASLowWaterBytes,
		BloomFalsePositive: cfg.BloomFalsePositiveRate,
	})
	if err != nil {
		db.Close()
		l.Release()
		return nil, nil, fmt.Errorf("conary: open content-addressable store: %w", err)
	}

	host := scriptlet.New(cfg.InstallRoot, scriptlet.SandboxMode(cfg.SandboxMode))
	e := engine.New(db, c, host, cfg.InstallRoot)

	closer := func() {
		db.Close()
		l.Release()
	}
	return e, closer, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(v)
}

func loadPackage(path string) (*pkgfmt.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conary: read %s: %w", path, err)
	}
	format, err := pkgfmt.DetectFormat(path, data)
	if err != nil {
		return nil, fmt.Errorf("conary: detect package format: %w", err)
	}
	if format != pkgfmt.FormatNative {
		return nil, fmt.Errorf("conary: %s is a %s package; convert it to the native manifest format first", path, format)
	}
	return pkgfmt.ParseManifest(data)
}

var installCmd = &cobra.Command{
	Use:   "install MANIFEST",
	Short: "Install a package from a native manifest file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pkg, err := loadPackage(args[0])
		if err != nil {
			return err
		}

		e, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		noDeps, _ := cmd.Flags().GetBool("no-deps")
		noScripts, _ := cmd.Flags().GetBool("no-scripts")
		allowDowngrade, _ := cmd.Flags().GetBool("allow-downgrade")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		flags := engine.Flags{NoDeps: noDeps, NoScripts: noScripts, AllowDowngrade: allowDowngrade, DryRun: dryRun}
		result, err := e.Install(context.Background(), pkg, flags)
		if err != nil {
			return fmt.Errorf("install %s %s: %w", pkg.Name, pkg.Version, err)
		}
		if dryRun {
			fmt.Printf("dry run: %s %s would install cleanly\n", pkg.Name, pkg.Version)
			return nil
		}
		fmt.Printf("installed %s %s (changeset #%d, state #%d)\n", pkg.Name, pkg.Version, result.ChangesetID, result.StateNumber)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove an installed package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		e, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		version, _ := cmd.Flags().GetString("version")
		architecture, _ := cmd.Flags().GetString("architecture")
		force, _ := cmd.Flags().GetBool("force")
		noScripts, _ := cmd.Flags().GetBool("no-scripts")

		result, err := e.Remove(context.Background(), args[0], version, architecture, engine.Flags{Force: force, NoScripts: noScripts})
		if err != nil {
			return fmt.Errorf("remove %s: %w", args[0], err)
		}
		fmt.Printf("removed %s (changeset #%d, state #%d)\n", args[0], result.ChangesetID, result.StateNumber)
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade MANIFEST",
	Short: "Upgrade an installed package from a native manifest file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pkg, err := loadPackage(args[0])
		if err != nil {
			return err
		}
		e, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		noDeps, _ := cmd.Flags().GetBool("no-deps")
		noScripts, _ := cmd.Flags().GetBool("no-scripts")

		result, err := e.Upgrade(context.Background(), pkg, engine.Flags{NoDeps: noDeps, NoScripts: noScripts})
		if err != nil {
			return fmt.Errorf("upgrade %s %s: %w", pkg.Name, pkg.Version, err)
		}
		fmt.Printf("upgraded to %s %s (changeset #%d, state #%d)\n", pkg.Name, pkg.Version, result.ChangesetID, result.StateNumber)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback CHANGESET",
	Short: "Reverse a completed changeset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var changesetID int64
		if _, err := fmt.Sscanf(args[0], "%d", &changesetID); err != nil {
			return fmt.Errorf("conary: invalid changeset id %q", args[0])
		}

		e, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		result, err := e.Rollback(context.Background(), changesetID)
		if err != nil {
			return fmt.Errorf("rollback changeset #%d: %w", changesetID, err)
		}
		fmt.Printf("rolled back changeset #%d via reversal changeset #%d (state #%d)\n", changesetID, result.ReversalChangesetID, result.StateNumber)
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and manage system states",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded system states",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("conary: open metadata store: %w", err)
		}
		defer db.Close()

		ctx := context.Background()
		states, err := store.ListStates(ctx, db.DB())
		if err != nil {
			return fmt.Errorf("conary: list states: %w", err)
		}
		for _, s := range states {
			marker := "  "
			if s.IsActive {
				marker = "* "
			}
			fmt.Printf("%s#%d  %-30s  %d packages\n", marker, s.StateNumber, s.Summary, s.PackageCount)
		}

		prune, _ := cmd.Flags().GetBool("prune")
		if prune {
			keep, _ := cmd.Flags().GetInt("keep")
			eng := state.New(db)
			deleted, err := eng.Prune(ctx, keep)
			if err != nil {
				return fmt.Errorf("conary: prune states: %w", err)
			}
			fmt.Printf("pruned %d old state(s)\n", deleted)
		}
		return nil
	},
}

var stateRestoreCmd = &cobra.Command{
	Use:   "restore TARGET",
	Short: "Print the operations that would restore the system to TARGET state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var target int64
		if _, err := fmt.Sscanf(args[0], "%d", &target); err != nil {
			return fmt.Errorf("conary: invalid state number %q", args[0])
		}

		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("conary: open metadata store: %w", err)
		}
		defer db.Close()

		eng := state.New(db)
		plan, err := eng.PlanRestore(context.Background(), target)
		if err != nil {
			return fmt.Errorf("conary: plan restore to state #%d: %w", target, err)
		}
		for _, op := range plan.Operations {
			switch op.Kind {
			case "remove":
				fmt.Printf("remove  %s %s\n", op.Name, op.FromVersion)
			case "upgrade":
				fmt.Printf("upgrade %s %s -> %s\n", op.Name, op.FromVersion, op.ToVersion)
			default:
				fmt.Printf("install %s %s\n", op.Name, op.ToVersion)
			}
		}
		fmt.Println("this command does not execute the plan; rerun with a future 'conary state apply' once written")
		return nil
	},
}

var casCmd = &cobra.Command{
	Use:   "cas",
	Short: "Inspect and maintain the content-addressable store",
}

var casEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Run an eviction sweep against the configured low-water mark",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		e, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		target, _ := cmd.Flags().GetInt64("target")
		if target == 0 {
			target = cfg.CASLowWaterBytes
		}
		if err := e.CAS.Evict(context.Background(), target); err != nil {
			return fmt.Errorf("conary: evict: %w", err)
		}
		fmt.Printf("evicted down toward %d bytes\n", target)
		return nil
	},
}

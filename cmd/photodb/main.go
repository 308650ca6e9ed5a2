package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"photodb/internal/app"
	"photodb/internal/config"
	"photodb/internal/photodb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// errIncomplete makes the process exit non-zero after a run that reported
// per-file failures. Its details were already printed.
var errIncomplete = errors.New("completed with errors")

// newApp reads the config and creates a PhotoApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "import", "sync").
func newApp(cmd *cobra.Command, operation string) (*app.PhotoApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	opts := app.Options{Verbose: verbose}
	if f := cmd.Flags().Lookup("workers"); f != nil {
		opts.Workers, _ = cmd.Flags().GetInt("workers")
	}

	a, err := app.NewPhotoApp(cmd.Context(), cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and folds its error into err.
func closeApp(a *app.PhotoApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:          "photodb",
	Short:        "Content-addressed archive for RAW photos",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if cfg.Backup.S3SecretAccessKey != "" {
			cfg.Backup.S3SecretAccessKey = "********"
		}

		fmt.Printf("# Configuration from %s\n\n", defaults.ConfigPath)
		return cfg.Encode(os.Stdout)
	},
}

// ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage archive ledgers",
}

var ledgerCreateCmd = &cobra.Command{
	Use:   "create ROOT",
	Short: "Create the ledger of an archive root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ledger create")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		created, err := a.CreateLedger(args[0])
		if err != nil {
			return fmt.Errorf("creating ledger: %w", err)
		}
		if created {
			fmt.Printf("Created ledger in %s\n", args[0])
		} else {
			fmt.Printf("Ledger already exists in %s\n", args[0])
		}
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import SOURCE_DIR",
	Short: "Import RAW files into an archive",
	Long: `Import discovers RAW files under SOURCE_DIR, fingerprints their sensor data
and places new ones at ROOT/<year>/<month>/<model>/<name>.

Without --move and --insert nothing is written; every file is reported as it
would be imported.

--insert without --move records each photo at its archive path without
copying it there. verify reports such rows as missing until the files are
placed, for example by a later run with --move.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		root, _ := cmd.Flags().GetString("root")
		move, _ := cmd.Flags().GetBool("move")
		insert, _ := cmd.Flags().GetBool("insert")

		a, err := newApp(cmd, "import")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Import(cmd.Context(), args[0], root, photodb.ImportOptions{Move: move, Insert: insert})
		if res != nil {
			for _, o := range res.Outcomes {
				fmt.Println(o.Line())
			}
			fmt.Println(res.Summary())
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		if res.Failed > 0 || res.Partial > 0 {
			return errIncomplete
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify ROOT",
	Short: "Re-fingerprint every archived file and compare with the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		untracked, _ := cmd.Flags().GetBool("untracked")

		a, err := newApp(cmd, "verify")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Verify(cmd.Context(), args[0])
		if res != nil {
			for _, o := range res.Outcomes {
				fmt.Println(o.Line())
			}
		}
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}

		if untracked {
			paths, err := a.FindUntracked(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("finding untracked files: %w", err)
			}
			for _, p := range paths {
				fmt.Printf("untracked %s\n", p)
			}
			fmt.Printf("untracked=%d\n", len(paths))
		}

		fmt.Println(res.Summary())
		if !res.OK() {
			return errIncomplete
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync SOURCE_ROOT TARGET_ROOT",
	Short: "Copy photos missing from TARGET_ROOT out of SOURCE_ROOT",
	Long: `Sync compares the two ledgers by fingerprint and copies every photo the
target lacks to its canonical path under TARGET_ROOT. The source archive is
never modified. Without --apply nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		apply, _ := cmd.Flags().GetBool("apply")

		a, err := newApp(cmd, "sync")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Sync(cmd.Context(), args[0], args[1], photodb.SyncOptions{Apply: apply})
		if res != nil {
			for _, o := range res.Outcomes {
				fmt.Println(o.Line())
			}
			fmt.Println(res.Summary())
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		if res.Failed > 0 {
			return errIncomplete
		}
		return nil
	},
}

// clean command
var cleanCmd = &cobra.Command{
	Use:   "clean ROOT PREFIX",
	Short: "Remove source copies of archived photos",
	Long: `Clean looks up every photo in the ledger of ROOT whose original path starts
with PREFIX and removes that original once its archive copy exists.
Without --delete the files that would be removed are only listed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		del, _ := cmd.Flags().GetBool("delete")
		yes, _ := cmd.Flags().GetBool("yes")

		if del && !yes && term.IsTerminal(int(os.Stdin.Fd())) {
			ok, err := confirm(fmt.Sprintf("Delete source copies under %s? [y/N] ", args[1]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd, "clean")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Clean(cmd.Context(), args[0], args[1], del)
		if res != nil {
			for _, o := range res.Outcomes {
				fmt.Println(o.Line())
			}
			fmt.Println(res.Summary())
		}
		if err != nil {
			return fmt.Errorf("clean failed: %w", err)
		}
		if res.Failed > 0 {
			return errIncomplete
		}
		return nil
	},
}

func confirm(prompt string) (bool, error) {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// exif command
var exifCmd = &cobra.Command{
	Use:   "exif PATH",
	Short: "Print the EXIF tags of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dates, _ := cmd.Flags().GetBool("dates")

		a, err := newApp(cmd, "exif")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if !dates {
			fmt.Println(args[0])
		}
		return a.DumpEXIF(os.Stdout, args[0], dates)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history ROOT",
	Short: "View the operations recorded in an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.GetHistory(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Also write the log to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// ledger subcommands
	ledgerCmd.AddCommand(ledgerCreateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(ledgerCmd)

	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("root", "", "Archive root to import into")
	importCmd.Flags().Bool("move", false, "Write files to their archive path")
	importCmd.Flags().Bool("insert", false, "Record files in the ledger")
	importCmd.Flags().Int("workers", 0, "Parallel workers (default: config, then number of CPUs)")
	_ = importCmd.MarkFlagRequired("root")

	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("untracked", false, "Also list RAW files under ROOT that the ledger does not reference")
	verifyCmd.Flags().Int("workers", 0, "Parallel workers (default: config, then number of CPUs)")

	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("apply", false, "Copy files and write the target ledger")
	syncCmd.Flags().Int("workers", 0, "Parallel workers (default: config, then number of CPUs)")

	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Bool("delete", false, "Actually remove the source copies")
	cleanCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(exifCmd)
	exifCmd.Flags().Bool("dates", false, "Only print date values")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}

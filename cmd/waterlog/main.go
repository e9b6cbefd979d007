package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"waterlog/internal/app"
	"waterlog/internal/config"
	"waterlog/internal/display"
	"waterlog/internal/encryption"
	"waterlog/internal/export"
	"waterlog/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a WaterApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddWater", "Serve").
func newApp(operation string) (*app.WaterApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewWaterApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func formatterFor(a *app.WaterApp) *display.Formatter {
	return display.NewFormatter(a.Config().Language(), a.Tracker().Location())
}

var rootCmd = &cobra.Command{
	Use:          "waterlog",
	Short:        "Track daily water intake",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if encrypt {
			cfg.Backup.Encrypt = true
			passphrase, err := readNewPassphrase()
			if err != nil {
				return err
			}
			enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
			if err != nil {
				return err
			}
			if err := enc.Setup(passphrase); err != nil {
				return fmt.Errorf("generating encryption keys: %w", err)
			}
			fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PrivateKeyPath)
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		vault := "(disabled)"
		if cfg.BackupEnabled() {
			vault = cfg.Backup.Vault.Type
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:      %s\n", cfg.HostID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Default Goal: %d ml\n", cfg.DefaultGoal)
		fmt.Printf("Timezone:     %s\n", cfg.Timezone)
		fmt.Printf("Locale:       %s\n", cfg.Language())
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Vault:        %s\n", vault)
		fmt.Printf("Encrypted:    %t\n", cfg.Backup.Encrypt)
		fmt.Printf("Server Addr:  %s\n", cfg.Server.Addr)
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add AMOUNT",
	Short: "Record water intake in millilitres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("amount must be a whole number of millilitres: %q", args[0])
		}

		a, err := newApp("AddWater")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.AddWater(amount); err != nil {
			return err
		}

		f := formatterFor(a)
		p := a.Progress()
		fmt.Printf("Added %s. Today: %s\n", f.Amount(amount), f.Progress(p.TodayTotal, p.DailyGoal, p.CompletionPercentage))
		return nil
	},
}

// today command
var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's progress and entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Today")
		if err != nil {
			return err
		}
		defer a.Close()

		f := formatterFor(a)
		p := a.Progress()
		fmt.Printf("Goal:     %s\n", f.Amount(p.DailyGoal))
		fmt.Printf("Total:    %s\n", f.Amount(p.TodayTotal))
		fmt.Printf("Progress: %s\n", f.Percent(p.CompletionPercentage))

		if len(p.TodayEntries) == 0 {
			fmt.Println("\nNo entries today.")
			return nil
		}
		fmt.Println()
		for _, e := range p.TodayEntries {
			fmt.Printf("#%-5d %s  %10s  %s\n", e.ID, f.Date(e.Timestamp), f.Time(e.Timestamp), f.Amount(e.Amount))
		}
		return nil
	},
}

// reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove today's entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ResetToday")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ResetToday()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d entr%s.\n", n, plural(n, "y", "ies"))
		return nil
	},
}

// goal command
var goalCmd = &cobra.Command{
	Use:   "goal [ML]",
	Short: "Show or set the daily goal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			a, err := newApp("Goal")
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("Daily goal: %s\n", formatterFor(a).Amount(a.DailyGoal()))
			return nil
		}

		goal, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("goal must be a whole number of millilitres: %q", args[0])
		}

		a, err := newApp("SetDailyGoal")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetDailyGoal(goal); err != nil {
			return err
		}
		fmt.Printf("Daily goal set to %s\n", formatterFor(a).Amount(goal))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show daily totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		f := formatterFor(a)
		for _, d := range a.History(days) {
			fmt.Printf("%s  %10s  %8s\n", f.Date(d.Date), f.Amount(d.Total), f.Percent(d.CompletionPercentage))
		}
		return nil
	},
}

// ops command
var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "View the operation journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("Ops")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-13s  %-6s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.Parameters,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Push a database snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Backup()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Snapshot pushed at version %d\n", version)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local database with the vault's latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if cfg.Backup.Encrypt {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		if err := app.RestoreDatabase(cfg, passphrase); err != nil {
			return err
		}
		fmt.Println("Database restored.")
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE.xlsx",
	Short: "Export entries and daily totals to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.RecentEntries(days)
		if err != nil {
			return err
		}

		out, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		defer out.Close()

		if err := export.WriteWorkbook(out, entries, a.History(days), a.Tracker().Location()); err != nil {
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", args[0], err)
		}

		fmt.Printf("Exported %d entr%s to %s\n", len(entries), plural(len(entries), "y", "ies"), args[0])
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.Config().Server.Addr
		}

		gin.SetMode(gin.ReleaseMode)
		router := httpapi.NewRouter(a, httpapi.Options{
			AllowedOrigins: a.Config().Server.AllowedOrigins,
			Logger:         a.Logger(),
		})
		defer router.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Listening on http://%s\n", addr)
		return httpapi.Serve(ctx, addr, router, a.Logger())
	},
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Generate an age key pair and encrypt backups")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("days", "d", 7, "Number of days to show, ending today")
	rootCmd.AddCommand(opsCmd)
	opsCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().IntP("days", "d", 30, "Number of days to export, ending today")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

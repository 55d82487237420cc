package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/internal/interfaces/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	terminalID string
	tenantID   string
	offline    bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "scanterm",
	Short: "Terminal scan console for barcode wedge scanners",
	Long: `scanterm reads keystrokes from the terminal and tells barcode scanner bursts
apart from human typing. Scanned codes are resolved against the product catalog.

A scan that lands in the entry field clears it; typing a code by hand and pressing
Enter looks it up as a manual entry.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.Flags().StringVar(&terminalID, "terminal", "", "terminal id (uuid); generated when empty")
	rootCmd.Flags().StringVar(&tenantID, "tenant", "00000000-0000-0000-0000-000000000001", "tenant whose catalog resolves codes")
	rootCmd.Flags().BoolVar(&offline, "offline", false, "run without a database; codes are logged but not resolved")
	rootCmd.Flags().StringVar(&logFile, "log-file", "scanterm.log", "log destination; the terminal itself is the UI")
}

func run() error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}

	// stdout belongs to the UI, so logs always go to a file
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "json",
		Output:     logFile,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	terminal := uuid.New()
	if terminalID != "" {
		if terminal, err = uuid.Parse(terminalID); err != nil {
			return fmt.Errorf("invalid --terminal: %w", err)
		}
	}
	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}

	opts := []tui.ModelOption{
		tui.WithTerminalID(terminal),
		tui.WithModelLogger(logger.Named(log, "scanterm")),
		tui.WithScannerEnabled(cfg.Scanner.Enabled),
	}

	if !offline {
		db, err := persistence.NewDatabase(&cfg.Database, logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
		if err != nil {
			return fmt.Errorf("catalog unavailable (use --offline to run without it): %w", err)
		}
		defer func() {
			_ = db.Close()
		}()
		opts = append(opts, tui.WithLookup(persistence.NewGormProductRepository(db.DB), tenant))
	}

	log.Info("scanterm starting",
		zap.String("terminal_id", terminal.String()),
		zap.Bool("offline", offline),
	)

	p := tea.NewProgram(tui.NewModel(cfg.Scanner.Classifier(), opts...), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console exited with error: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

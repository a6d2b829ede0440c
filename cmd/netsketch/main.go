package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netsketch/internal/adapter"
	"netsketch/internal/config"
	"netsketch/internal/logging"
	"netsketch/internal/repository/sqlite"
	"netsketch/internal/service"
)

var (
	// Global flags
	configPath string
	verbose    bool
	offline    bool

	// Resolved in PersistentPreRunE
	cfg     *config.Config
	cfgFrom string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "netsketch",
	Short: "Sketch LAN topologies from probes, imports and pasted text",
	Long: `netsketch builds a single-rooted device tree for a local network.

Devices come from a concurrent HTTP sweep of a /24, from JSON, YAML or
Ansible inventory files, from pasted ARP tables, or from a Gemini model.
Every result is sanitized into one tree before it is stored or printed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, cfgFrom, err = config.LoadFromPath(configPath)
		} else {
			cfg, cfgFrom, err = config.Load()
		}
		if err != nil {
			return err
		}
		if offline {
			cfg.AI.Offline = true
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfgFrom != "" {
			logger.Debug("config loaded", zap.String("path", cfgFrom))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search "+config.EnvConfigPath+" and standard paths)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "never call the remote model")

	rootCmd.AddCommand(serveCmd, scanCmd, importCmd, parseCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newService wires a discovery service over the database at dbPath
func newService(ctx context.Context, dbPath string, bus *service.EventBus) (*service.DiscoveryService, func(), error) {
	repo, err := sqlite.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	assistant, err := adapter.NewAssistant(ctx, cfg.AssistantConfig(), logger)
	if err != nil {
		logger.Warn("assistant unavailable, continuing offline", zap.Error(err))
		assistant = adapter.NewOfflineAssistant()
	}

	prober := adapter.NewProber(cfg.EffectiveProbe(), nil, logger)
	svc := service.NewDiscoveryService(repo, prober, assistant, bus, logger)
	return svc, func() { repo.Close() }, nil
}

// printTree writes the nested tree of a stored scan as indented JSON
func printTree(ctx context.Context, svc *service.DiscoveryService, scanID string, w io.Writer) error {
	tree, err := svc.Tree(ctx, scanID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}

// Package cli implements the ioguard command line interface.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/ioguard/pkg/config"
)

const (
	// Version is the current version of ioguard
	Version = "1.0.0"
)

// Config holds the global configuration for the ioguard CLI
type Config struct {
	ConfigPath string
	BasePath   string
	Debug      bool
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

// NewRootCommand creates the root cobra command for ioguard
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ioguard",
		Short: "ioguard - Input validation and sanitization gate",
		Long: `ioguard validates untrusted input before it reaches file, network,
audio, or MIDI handling code. It checks paths for traversal, endpoints for
unsupported protocols and sensitive targets, serialized payloads for
injection patterns and entity declarations, and enforces size and
concurrency limits throughout.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if GlobalConfig.Debug {
				log.SetOutput(os.Stderr)
				log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
			} else {
				log.SetOutput(io.Discard)
			}
			return nil
		},
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&GlobalConfig.ConfigPath, "config", "", "Configuration file (default: built-in limits)")
	cmd.PersistentFlags().StringVar(&GlobalConfig.BasePath, "base", "", "Base directory paths are confined to (default: current directory)")

	cmd.AddCommand(NewCheckPathCommand())
	cmd.AddCommand(NewCheckEndpointCommand())
	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewAuditCommand())

	return cmd
}

// loadGateConfig resolves the effective configuration: the --config file if
// given, otherwise defaults confined to --base (or the current directory).
func loadGateConfig() (*config.GateConfig, error) {
	if GlobalConfig.ConfigPath != "" {
		cfg, err := config.Load(GlobalConfig.ConfigPath)
		if err != nil {
			return nil, err
		}
		if GlobalConfig.BasePath != "" {
			cfg.File.BasePath = GlobalConfig.BasePath
		}
		cfg.ApplyDefaults()
		return cfg, nil
	}

	base := GlobalConfig.BasePath
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		base = wd
	}
	cfg := config.Default(base)
	return &cfg, nil
}

// DefaultDatabasePath returns the default verdict database location,
// ~/.ioguard/ioguard.db.
func DefaultDatabasePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ioguard", "ioguard.db")
	}
	return filepath.Join(homeDir, ".ioguard", "ioguard.db")
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ioguard/pkg/validation"
)

// NewCheckPathCommand creates the check-path command
func NewCheckPathCommand() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "check-path <path>...",
		Short: "Validate file paths against the confinement rules",
		Long: `Validate one or more file paths.

Read checks reject traversal sequences (including URL-encoded and UNC
forms), absolute paths outside the base directory, oversized files, and
files carrying embedded null bytes. Write checks additionally reject
control characters, reserved device names, and dangerous extensions.

Examples:
  ioguard check-path uploads/report.pdf
  ioguard check-path --write out/result.csv
  ioguard check-path --base /srv/data ../etc/passwd`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGateConfig()
			if err != nil {
				return err
			}

			v, err := validation.NewPathValidatorWithLimits(cfg.File.BasePath, cfg.File.MaxFileSize, cfg.File.MaxPathLength)
			if err != nil {
				return fmt.Errorf("failed to build path validator: %w", err)
			}
			if len(cfg.File.BlockedExtensions) > 0 {
				v.SetBlockedExtensions(cfg.File.BlockedExtensions)
			}

			failed := 0
			for _, path := range args {
				var result validation.Result
				if write {
					result = v.ValidateWritePath(path)
				} else {
					result = v.ValidateReadPath(path)
				}
				if result.Valid {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
				} else {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n  %s\n", path, result.Message)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d paths rejected", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Validate as a write target instead of a read source")

	return cmd
}

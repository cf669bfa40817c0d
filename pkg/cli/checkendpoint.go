package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ioguard/pkg/network"
)

// NewCheckEndpointCommand creates the check-endpoint command
func NewCheckEndpointCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-endpoint <endpoint>...",
		Short: "Validate network endpoints",
		Long: `Validate one or more network endpoints.

Only http and https are supported. Unsupported protocols (ftp, file,
data, javascript) are reported separately from structurally invalid
endpoints. Sensitive ports and cloud metadata hosts are blocked.

Examples:
  ioguard check-endpoint https://api.example.com/v1/data
  ioguard check-endpoint ftp://files.example.com http://10.0.0.1:22/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGateConfig()
			if err != nil {
				return err
			}

			v, err := network.NewEndpointValidatorWithLimits(
				int64(cfg.Network.MaxPayloadSize),
				cfg.Network.BlockedPorts,
				cfg.Network.BlockedHosts,
			)
			if err != nil {
				return fmt.Errorf("failed to build endpoint validator: %w", err)
			}

			failed := 0
			for _, endpoint := range args {
				err := v.ValidateEndpoint(endpoint)
				switch {
				case err == nil:
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", endpoint)
				case errors.Is(err, network.ErrProtocolNotSupported):
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n  not supported: %v\n", endpoint, err)
				default:
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n  invalid: %v\n", endpoint, err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d endpoints rejected", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}

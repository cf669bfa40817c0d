package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/ioguard/pkg/serialization"
)

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	var schemaPath string
	var asXML bool

	cmd := &cobra.Command{
		Use:   "scan <file>...",
		Short: "Scan serialized payloads for hostile content",
		Long: `Scan one or more payload files before deserialization.

Checks the size limit, injection patterns (script tags, template
expressions, JNDI lookups, traversal sequences), and for XML documents,
entity declarations of any kind.

Examples:
  ioguard scan payload.json
  ioguard scan --schema schema.json payload.json
  ioguard scan --xml settings.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGateConfig()
			if err != nil {
				return err
			}

			guard, err := serialization.NewGuardWithLimit(int64(cfg.Serialization.MaxSize))
			if err != nil {
				return fmt.Errorf("failed to build serialization guard: %w", err)
			}

			var schema []byte
			if schemaPath != "" {
				schema, err = os.ReadFile(schemaPath)
				if err != nil {
					return fmt.Errorf("failed to read schema: %w", err)
				}
			}

			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}

				if asXML {
					err = scanXML(guard, data)
				} else {
					err = guard.ValidateJSON(data, schema)
				}
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n  %v\n", path, err)
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d payloads rejected", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON Schema file to validate against")
	cmd.Flags().BoolVar(&asXML, "xml", false, "Treat payloads as XML instead of JSON")

	return cmd
}

func scanXML(guard *serialization.Guard, data []byte) error {
	if err := guard.CheckSize(data); err != nil {
		return err
	}
	if err := guard.ScanContent(data); err != nil {
		return err
	}
	return guard.ValidateXML(data)
}

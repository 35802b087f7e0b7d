package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trafficctl/control-plane/internal/config"
)

// config.go holds the "config" subcommand family, adapted from
// cmd/pulse/config.go's info/export/import shape. There is no encrypted
// config store in this repo (the surface is one plaintext YAML file, per
// internal/config), so export/import work directly against that file
// instead of an encrypted blob and a passphrase prompt.
var (
	configExportFile string
	configImportFile string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Inspect, export, and import trafficctl's YAML configuration.`,
}

var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration information",
	Long:  `Display the resolved configuration (file + .env + TRAFFICCTL_* overrides).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("trafficctl Configuration")
		fmt.Println("========================")
		fmt.Println()
		if configPath != "" {
			fmt.Printf("Source file     : %s\n", configPath)
		} else {
			fmt.Println("Source file     : (none — defaults + environment only)")
		}
		fmt.Printf("Data dir        : %s\n", cfg.DataDir)
		fmt.Printf("Metrics addr    : %s\n", cfg.MetricsAddr)
		fmt.Printf("Agent strategy  : %s\n", cfg.Agent.Strategy)
		fmt.Printf("Prediction algo : %s\n", cfg.Prediction.Algorithm)
		fmt.Printf("Failsafe pattern: %s\n", cfg.Safety.FailsafePattern)
		fmt.Printf("Junctions       : %d\n", len(cfg.Network.Junctions))
		fmt.Printf("Roads           : %d\n", len(cfg.Network.Roads))
		fmt.Println()
		fmt.Println("Overrides are read from TRAFFICCTL_* environment variables and an")
		fmt.Println("optional .env file in the working directory; see internal/config.")
		return nil
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the resolved configuration as YAML",
	Long:  `Resolve configuration (file + .env + TRAFFICCTL_* overrides) and print it as YAML.`,
	Example: `  # Export to stdout
  trafficctl config export

  # Export to a file
  trafficctl config export -o trafficctl.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}

		if configExportFile != "" {
			if err := os.WriteFile(configExportFile, data, 0600); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			fmt.Printf("Configuration exported to %s\n", configExportFile)
			return nil
		}

		fmt.Print(string(data))
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Validate and install a YAML configuration file",
	Long:  `Parse a YAML configuration file and, if it is valid, copy it to the path named by --config.`,
	Example: `  # Validate and install a new config
  trafficctl config import -i new-trafficctl.yaml --config /etc/trafficctl/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configImportFile == "" {
			return fmt.Errorf("import file is required (use -i flag)")
		}
		if configPath == "" {
			return fmt.Errorf("--config must name the destination path to import into")
		}

		data, err := os.ReadFile(configImportFile)
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		var cfg config.Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("import file is not valid configuration YAML: %w", err)
		}

		if err := os.WriteFile(configPath, data, 0600); err != nil {
			return fmt.Errorf("failed to install configuration: %w", err)
		}

		fmt.Printf("Configuration imported to %s\n", configPath)
		fmt.Println("Restart trafficctl for the change to take effect.")
		return nil
	},
}

func init() {
	configExportCmd.Flags().StringVarP(&configExportFile, "output", "o", "", "write exported YAML to this file instead of stdout")
	configImportCmd.Flags().StringVarP(&configImportFile, "input", "i", "", "YAML file to import")

	configCmd.AddCommand(configInfoCmd)
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		shown.Anthropic.APIKey = config.MaskAPIKey(cfg.Anthropic.APIKey)
		return writeYAML(os.Stdout, shown)
	},
}

var configInitProject bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to the user config path, or with
--project to .hollon.yaml in the current directory. Existing files are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if configInitProject {
			path = ".hollon.yaml"
		}
		if flagConfigPath != "" {
			path = flagConfigPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return err
		}
		printStatus("✓", "wrote "+path, color.FgGreen)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write .hollon.yaml in the current directory")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}

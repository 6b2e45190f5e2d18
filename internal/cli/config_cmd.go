package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage owl configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration the daemon would run with: defaults layered
under the config file, layered under OWL_* environment overrides.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f := formatter()
			if f.IsJSON() {
				return f.JSON(cfg)
			}
			f.Muted("# effective config (file: %s)", configPath())
			return toml.NewEncoder(f.Writer()).Encode(cfg)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			f := formatter()

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating config: %w", err)
			}
			defer file.Close()
			if err := config.WriteSample(file); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			if f.IsJSON() {
				return f.JSON(map[string]any{"written": true, "path": path})
			}
			f.Success("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter()
			if _, err := config.Load(configPath()); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			if f.IsJSON() {
				return f.JSON(map[string]any{"valid": true, "path": configPath()})
			}
			f.Success("%s is valid", configPath())
			return nil
		},
	}
}

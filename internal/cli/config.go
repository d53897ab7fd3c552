// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of a coomerdl config file, loadable
// as JSON, YAML, or TOML by extension.
type fileConfig struct {
	DataDir       string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	DownloadDir   string `json:"download_dir" yaml:"download_dir" toml:"download_dir"`
	MaxConcurrent int64  `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	Strict        bool   `json:"strict" yaml:"strict" toml:"strict"`
	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// DefaultFileConfig returns the default configuration.
func DefaultFileConfig() fileConfig {
	return fileConfig{
		DataDir:       "./data",
		DownloadDir:   "./downloads",
		MaxConcurrent: 3,
		Strict:        false,
		LogLevel:      "info",
	}
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "coomerdl.toml"), nil
}

// loadFileConfig reads a coomerdl config file, dispatching on its
// extension (.json, .yaml/.yml, .toml). An unset path is not an error:
// it returns the zero-value fileConfig for the caller to fall back to
// DefaultFileConfig.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		_, err = toml.Decode(string(b), &cfg)
	}
	return cfg, err
}

// applyFileConfig loads the config file named by --config (or the
// default path when --config is unset) and fills in any flag the user
// left untouched; flags always win over file values.
func applyFileConfig(cmd *cobra.Command, ro *RootOpts, dataDir, downloadDir *string, maxConcurrent *int64, strict *bool) error {
	path := ro.Config
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil
		}
		path = p
	}
	cfg, err := loadFileConfig(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	flags := cmd.Flags()
	if cfg.DataDir != "" && dataDir != nil && !flags.Changed("data-dir") {
		*dataDir = cfg.DataDir
	}
	if cfg.DownloadDir != "" && downloadDir != nil && !flags.Changed("download-dir") {
		*downloadDir = cfg.DownloadDir
	}
	if cfg.MaxConcurrent > 0 && maxConcurrent != nil && !flags.Changed("max-concurrent") {
		*maxConcurrent = cfg.MaxConcurrent
	}
	if cfg.Strict && strict != nil && !flags.Changed("strict") {
		*strict = true
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the coomerdl configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/coomerdl.toml
(or .json/.yaml with --format).

CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := defaultConfigPath()
			if err != nil {
				return err
			}
			ext := "." + format
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ext

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultFileConfig()
			var data []byte
			switch format {
			case "yaml":
				data, err = yaml.Marshal(cfg)
			case "json":
				data, err = json.MarshalIndent(cfg, "", "  ")
			default:
				var buf strings.Builder
				err = toml.NewEncoder(&buf).Encode(cfg)
				data = []byte(buf.String())
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}
			fmt.Printf("created config file: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&format, "format", "toml", "Config format: toml, json, or yaml")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := defaultConfigPath()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no config file found.")
					fmt.Printf("run 'coomerdl config init' to create one at:\n  %s\n", path)
					return nil
				}
				return err
			}
			fmt.Printf("config file: %s\n\n", path)
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := defaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cephview/cephview/internal/config"
	"github.com/cephview/cephview/internal/errors"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(configShowCmd(), configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	var (
		path   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, CEPHVIEW_* environment
variables and validation have been applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(serveOptions{configPath: path}, os.Getenv)
			if err != nil {
				return err
			}
			// Never echo secrets.
			if cfg.Upload.S3.SecretAccessKey != "" {
				cfg.Upload.S3.SecretAccessKey = "********"
			}

			var data []byte
			switch format {
			case "json":
				data, err = json.MarshalIndent(cfg, "", "  ")
				data = append(data, '\n')
			case "yaml":
				data, err = yaml.Marshal(cfg)
			default:
				return errors.New("E150").WithDetail("--format must be json or yaml, got " + format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "Config file (default: cephview.json or cephview.yaml in the working directory)")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: json or yaml")
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default values.

The format follows the extension: .yaml/.yml for YAML, anything else JSON.

Examples:
  cephview config init
  cephview config init deploy/cephview.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "cephview.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.New("E150").
					WithDetail(path + " already exists").
					WithSuggestion("Pass --force to overwrite it")
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return errors.New("E120").Wrap(err)
				}
			}

			cfg := config.New()
			cfg.Static.Dir = config.DefaultStaticDir
			if err := cfg.SaveTo(path); err != nil {
				return err
			}

			success("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

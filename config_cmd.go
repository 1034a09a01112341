package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/slingr-stack/google-drive-endpoint/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigCheckCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Prints the fully resolved configuration as TOML, with secrets redacted.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, cfgPath, err := resolveConfig()
			if err != nil {
				return err
			}

			fmt.Printf("# effective configuration (from %s)\n", cfgPath)

			return toml.NewEncoder(os.Stdout).Encode(redacted(cfg))
		},
	}
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, cfgPath, err := resolveConfig()
			if err != nil {
				return err
			}

			fmt.Printf("%s: OK\n", cfgPath)

			return nil
		},
	}
}

// redacted returns a copy of the config with secret material masked so
// the output is safe to paste into bug reports.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg

	if out.OAuth.ClientSecret != "" {
		out.OAuth.ClientSecret = "<redacted>"
	}

	if out.Platform.Token != "" {
		out.Platform.Token = "<redacted>"
	}

	return &out
}

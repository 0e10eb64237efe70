package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hopewell-clinic/hopewell-desktop/internal/config"
	"github.com/hopewell-clinic/hopewell-desktop/internal/desktop"
	"github.com/hopewell-clinic/hopewell-desktop/internal/protocol"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Dev        bool
}

// NewRootCommand creates the root command. Bare invocation, with or without
// a deep link argument, starts the shell.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hopewell-desktop [deep-link-url...]",
		Short: "Hopewell Clinic desktop shell",
		Args:  cobra.ArbitraryArgs,
		// OS launchers append flags of their own (e.g. -psn_* on macOS).
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, args)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "path to config.toml")
	cmd.PersistentFlags().BoolVar(&opts.Dev, "dev", false, "development mode (debug logging, inspector)")

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newRegisterProtocolCommand(opts))

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shell version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), desktop.Version)
		},
	}
}

func newRegisterProtocolCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register-protocol",
		Short: "Register this executable as the handler of the auth callback scheme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}
			if err := protocol.Register(cfg.Scheme, exe); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s:// -> %s\n", cfg.Scheme, exe)
			return nil
		},
	}
}

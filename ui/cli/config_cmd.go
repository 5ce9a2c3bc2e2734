// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/keyguard/internal/config"
	"github.com/toeirei/keyguard/internal/i18n"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var system bool
	write := &cobra.Command{
		Use:   "write",
		Short: "Write the effective configuration to the config path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := appConfig
			c.Storage.Password = nil
			path, err := config.WriteConfigFile(&c, system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", "Path", path))
			return nil
		},
	}
	write.Flags().BoolVar(&system, "system", false, "Write the system-wide file instead of the user file")

	cmd.AddCommand(write)
	return cmd
}

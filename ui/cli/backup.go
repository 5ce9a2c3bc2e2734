// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/toeirei/keyguard/internal/backup"
	"github.com/toeirei/keyguard/internal/i18n"
	"github.com/toeirei/keyguard/internal/keystore"
	"github.com/toeirei/keyguard/internal/logging"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup FILE",
		Short: "Write a compressed snapshot of the storage image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				snap := backup.Capture(s.drv, s.store)
				if err := writeCompressedBackup(args[0], snap); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("backup.written", "Count", snap.Count, "Path", args[0]))
				return nil
			})
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace the storage image with a snapshot",
		Long: `Overwrites the whole storage region with the image from FILE. The
snapshot must have been taken with the same layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readCompressedBackup(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				l := s.store.Layout()
				if snap.Guard != string(l.Guard) || snap.KeySize != l.KeySize || snap.AdminCount != l.AdminCount {
					return fmt.Errorf("snapshot layout (guard %q, %d-byte keys, %d admins) does not match configuration",
						snap.Guard, snap.KeySize, snap.AdminCount)
				}
				if err := backup.Restore(s.drv, snap); err != nil {
					return err
				}
				st, err := keystore.Open(s.drv, l, appConfig.AdminKeys)
				if err != nil {
					return err
				}
				s.store = st
				logging.Infof("restored snapshot taken %s", snap.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("restore.done", "Count", st.Count(), "Path", args[0]))
				return nil
			})
		},
	}
}

func readCompressedBackup(filename string) (backup.Snapshot, error) {
	f, err := os.Open(filename)
	if err != nil {
		return backup.Snapshot{}, fmt.Errorf("could not open backup file: %w", err)
	}
	defer f.Close()
	return backup.Read(f)
}

func writeCompressedBackup(filename string, snap backup.Snapshot) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("could not create backup file: %w", err)
	}
	if err := backup.Write(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

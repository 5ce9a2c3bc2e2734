// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/toeirei/keyguard/internal/db"
	"github.com/toeirei/keyguard/internal/i18n"
	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/keystore"
	"gopkg.in/yaml.v3"
)

// clipboardWrite is swapped out by tests.
var clipboardWrite = clipboard.WriteAll

// withSession opens the configured store for the duration of fn.
func withSession(cmd *cobra.Command, fn func(*session) error) error {
	sess, err := openSession(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

// parseKey parses a hex key and checks it against the configured width.
func parseKey(s string, l keystore.Layout) (keyid.KeyID, error) {
	k, err := keyid.Parse(s)
	if err != nil {
		return k, err
	}
	if k.Len() != l.KeySize {
		return k, fmt.Errorf("%w: got %d bytes, want %d", keystore.ErrKeyWidth, k.Len(), l.KeySize)
	}
	return k, nil
}

func printStatus(out io.Writer, sess *session) error {
	st := sess.store
	l := st.Layout()
	admins := min(l.AdminCount, st.Count())
	fmt.Fprintln(out, i18n.T("status.title"))
	fmt.Fprintln(out, i18n.T("status.storage", "Type", appConfig.Storage.Type))
	fmt.Fprintln(out, i18n.T("status.layout", "Guard", string(l.Guard), "KeySize", l.KeySize, "Capacity", l.Capacity))
	fmt.Fprintln(out, i18n.T("status.count", "Count", st.Count(), "Admins", admins))
	fmt.Fprintln(out, i18n.T("status.remaining", "Remaining", st.Remaining()))
	if st.Seeded() {
		fmt.Fprintln(out, i18n.T("status.seeded"))
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show layout and fill level of the key store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return printStatus(cmd.OutOrStdout(), s)
			})
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check KEY",
		Short: "Check whether a key would be granted access",
		Long: `Presents KEY (hex, separators allowed) to the store. Exits 0 when the key
is trusted and 2 when it is not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				k, err := parseKey(args[0], s.store.Layout())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !s.store.IsAuthorized(k) {
					fmt.Fprintln(out, i18n.T("check.denied", "Key", k.String()))
					return &ExitError{Code: 2}
				}
				fmt.Fprintln(out, i18n.T("check.granted", "Key", k.String()))
				if s.store.IsAdmin(k) {
					fmt.Fprintln(out, i18n.T("check.admin", "Key", k.String()))
				}
				return nil
			})
		},
	}
}

func newAddCmd() *cobra.Command {
	var adminHex string
	var force bool
	cmd := &cobra.Command{
		Use:   "add KEY",
		Short: "Enroll a key",
		Long: `Appends KEY to the trusted list. The enrollment must be authorized by an
admin key given with --admin, the way a reader enrolls a card after an admin
card was presented. --force skips the admin check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if adminHex == "" && !force {
				return errors.New(i18n.T("add.force_needed"))
			}
			return withSession(cmd, func(s *session) error {
				l := s.store.Layout()
				k, err := parseKey(args[0], l)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if s.store.IsAuthorized(k) {
					fmt.Fprintln(out, i18n.T("add.exists", "Key", k.String()))
					return nil
				}

				if adminHex != "" {
					admin, perr := parseKey(adminHex, l)
					if perr != nil {
						return perr
					}
					err = s.store.Enroll(admin, k)
				} else {
					err = s.store.Add(k)
				}
				switch {
				case err == nil:
					fmt.Fprintln(out, i18n.T("add.added", "Key", k.String()))
					return nil
				case errors.Is(err, keystore.ErrNotAdmin):
					return errors.New(i18n.T("add.not_admin", "Key", adminHex))
				case errors.Is(err, keystore.ErrCapacityExhausted):
					return fmt.Errorf("%s: %w", i18n.T("add.full", "Key", k.String()), err)
				case errors.Is(err, keystore.ErrCommitFailed):
					return fmt.Errorf("%s: %w", i18n.T("add.commit_failed", "Key", k.String()), err)
				default:
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&adminHex, "admin", "", "Admin key authorizing the enrollment")
	cmd.Flags().BoolVar(&force, "force", false, "Add without an admin key")
	return cmd
}

// listEntry is one row of `keyguard list`.
type listEntry struct {
	Index int    `json:"index" yaml:"index"`
	Role  string `json:"role" yaml:"role"`
	Key   string `json:"key" yaml:"key"`
}

func listEntries(st *keystore.Store) []listEntry {
	keys := st.Keys()
	out := make([]listEntry, 0, len(keys))
	for i, k := range keys {
		role := "user"
		if i < st.Layout().AdminCount {
			role = "admin"
		}
		out = append(out, listEntry{Index: i, Role: role, Key: k.String()})
	}
	return out
}

func newListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trusted keys in record order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				entries := listEntries(s.store)
				out := cmd.OutOrStdout()
				switch strings.ToLower(format) {
				case "json":
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				case "yaml":
					enc := yaml.NewEncoder(out)
					defer enc.Close()
					return enc.Encode(entries)
				case "", "text":
					fmt.Fprintln(out, i18n.T("list.header"))
					for _, e := range entries {
						fmt.Fprintf(out, "%-2d %-6s %s\n", e.Index, i18n.T("list.role_"+e.Role), e.Key)
					}
					return nil
				default:
					return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random key of the configured width",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := keyid.Random(appConfig.Layout.KeySize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, i18n.T("keygen.generated", "Key", k.String()))
			if copyOut {
				if err := clipboardWrite(k.String()); err != nil {
					return fmt.Errorf("could not copy to clipboard: %w", err)
				}
				fmt.Fprintln(out, i18n.T("keygen.copied"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&copyOut, "copy", "c", false, "Copy the key to the clipboard")
	return cmd
}

// listImages is swapped out by tests.
var listImages = func(ctx context.Context, dbType, dsn, name string) ([]string, error) {
	m, err := db.OpenImageMedium(ctx, dbType, dsn, name)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.Names(ctx)
}

func newImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List image names stored in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := appConfig.Storage
			t := strings.ToLower(s.Type)
			if t != "sqlite" && t != "postgres" && t != "mysql" {
				return fmt.Errorf("images requires database storage, configured type is %q", s.Type)
			}
			names, err := listImages(cmd.Context(), t, s.DSN, s.Name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, i18n.T("images.none"))
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

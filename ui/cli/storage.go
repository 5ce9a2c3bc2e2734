// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/toeirei/keyguard/internal/config"
	"github.com/toeirei/keyguard/internal/db"
	"github.com/toeirei/keyguard/internal/deploy"
	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keystore"
	"github.com/toeirei/keyguard/internal/logging"
	"github.com/toeirei/keyguard/internal/security"
	"golang.org/x/term"
)

// storageFlags returns the flags that override the storage section. Flag
// names equal the config keys so viper can bind them directly.
func storageFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("storage", pflag.ContinueOnError)
	fs.String("storage.type", "", "Storage type (memory, file, sqlite, postgres, mysql, sftp)")
	fs.String("storage.path", "", "Image file, or remote path for sftp")
	fs.String("storage.dsn", "", "Database connection string (DSN)")
	fs.String("storage.name", "", "Image name inside the database")
	fs.String("storage.host", "", "SFTP host[:port]")
	fs.String("storage.user", "", "SFTP user")
	fs.String("storage.identity", "", "SSH private key file for sftp")
	fs.String("storage.known_hosts", "", "known_hosts file for sftp")
	fs.Duration("storage.timeout", 0, "Bound for each image load or flush (0s disables)")
	return fs
}

// openMedium builds the backing medium selected by c.Storage.
var openMedium = func(ctx context.Context, c config.Config) (eeprom.Medium, error) {
	s := c.Storage
	switch strings.ToLower(s.Type) {
	case "memory":
		return eeprom.NewMemory(), nil
	case "file":
		return eeprom.NewFile(s.Path), nil
	case "sqlite", "postgres", "mysql":
		return db.OpenImageMedium(ctx, strings.ToLower(s.Type), s.DSN, s.Name)
	case "sftp":
		rc := deploy.RemoteConfig{
			Host:       s.Host,
			User:       s.User,
			Path:       s.Path,
			Password:   s.Password,
			KnownHosts: s.KnownHosts,
		}
		if s.Identity != "" {
			pem, err := os.ReadFile(s.Identity)
			if err != nil {
				return nil, fmt.Errorf("could not read identity %s: %w", s.Identity, err)
			}
			rc.PrivateKey = security.FromBytes(pem)
		} else if rc.Password.IsEmpty() && os.Getenv("SSH_AUTH_SOCK") == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Password for %s@%s: ", s.User, s.Host)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, fmt.Errorf("could not read password: %w", err)
			}
			rc.Password = security.FromBytes(pw)
		}
		return deploy.NewRemoteMedium(rc)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", s.Type)
	}
}

// session is an open store together with the driver that must be closed.
type session struct {
	drv   *eeprom.Buffered
	store *keystore.Store
}

func (s *session) Close() error {
	return s.drv.Close()
}

// openSession attaches the configured medium and opens the key store,
// seeding it with the configured admin keys on first start.
func openSession(ctx context.Context, c config.Config) (*session, error) {
	layout, err := c.StoreLayout()
	if err != nil {
		return nil, err
	}
	medium, err := openMedium(ctx, c)
	if err != nil {
		return nil, err
	}
	drv := eeprom.NewBuffered(medium, eeprom.WithIOTimeout(c.Storage.Timeout))
	st, err := keystore.Open(drv, layout, c.AdminKeys)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	if st.Seeded() {
		logging.Infof("initialized %s storage with %d admin keys", c.Storage.Type, len(c.AdminKeys))
	}
	return &session{drv: drv, store: st}, nil
}

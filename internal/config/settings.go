// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/keystore"
	"github.com/toeirei/keyguard/internal/security"
)

// Config is the full Keyguard configuration.
type Config struct {
	Storage   Storage       `mapstructure:"storage" yaml:"storage"`
	Layout    Layout        `mapstructure:"layout" yaml:"layout"`
	AdminKeys []keyid.KeyID `mapstructure:"admin_keys" yaml:"admin_keys"`
	Language  string        `mapstructure:"language" yaml:"language"`
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
}

// Storage selects and addresses the medium holding the image.
type Storage struct {
	// Type is one of memory, file, sqlite, postgres, mysql, sftp.
	Type string `mapstructure:"type" yaml:"type"`
	// Path is the image file for "file" and the remote path for "sftp".
	Path string `mapstructure:"path" yaml:"path"`
	// DSN is the connection string for the database types.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// Name is the image row for the database types.
	Name       string          `mapstructure:"name" yaml:"name"`
	Host       string          `mapstructure:"host" yaml:"host"`
	User       string          `mapstructure:"user" yaml:"user"`
	Identity   string          `mapstructure:"identity" yaml:"identity"`
	KnownHosts string          `mapstructure:"known_hosts" yaml:"known_hosts"`
	Password   security.Secret `mapstructure:"password" yaml:"-"`
	// Timeout bounds each load or flush of the image. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Layout mirrors keystore.Layout with a printable guard.
type Layout struct {
	Guard      string `mapstructure:"guard" yaml:"guard"`
	KeySize    int    `mapstructure:"key_size" yaml:"key_size"`
	AdminCount int    `mapstructure:"admin_count" yaml:"admin_count"`
	Capacity   int    `mapstructure:"capacity" yaml:"capacity"`
}

// PlaceholderAdminKeys are the seed keys of the reference firmware. They must
// be replaced with provisioned cards before deployment.
var PlaceholderAdminKeys = []keyid.KeyID{
	keyid.Repeat(0xFF, keyid.Size),
	keyid.Repeat(0xCC, keyid.Size),
}

// Defaults returns the viper default values keyed by setting name.
func Defaults() map[string]any {
	l := keystore.DefaultLayout()
	admins := make([]string, 0, len(PlaceholderAdminKeys))
	for _, k := range PlaceholderAdminKeys {
		admins = append(admins, k.String())
	}
	return map[string]any{
		"storage.type":        "file",
		"storage.path":        "./keyguard.eeprom",
		"storage.dsn":         "./keyguard.db",
		"storage.name":        "default",
		"storage.host":        "",
		"storage.user":        "",
		"storage.identity":    "",
		"storage.known_hosts": "",
		"storage.password":    "",
		"storage.timeout":     eeprom.DefaultIOTimeout,
		"layout.guard":        string(l.Guard),
		"layout.key_size":     l.KeySize,
		"layout.admin_count":  l.AdminCount,
		"layout.capacity":     l.Capacity,
		"admin_keys":          admins,
		"language":            "en",
		"log_level":           "info",
	}
}

// StoreLayout converts and validates the layout section.
func (c Config) StoreLayout() (keystore.Layout, error) {
	l := keystore.Layout{
		Guard:      []byte(c.Layout.Guard),
		KeySize:    c.Layout.KeySize,
		AdminCount: c.Layout.AdminCount,
		Capacity:   c.Layout.Capacity,
	}
	if err := l.Validate(); err != nil {
		return l, err
	}
	return l, nil
}

// UsesPlaceholderAdmins reports whether any configured admin key is one of
// the reference placeholders.
func (c Config) UsesPlaceholderAdmins() bool {
	for _, k := range c.AdminKeys {
		for _, p := range PlaceholderAdminKeys {
			if k.Equal(p) {
				return true
			}
		}
	}
	return false
}

// Validate checks settings that LoadConfig cannot type-check.
func (c Config) Validate() error {
	if _, err := c.StoreLayout(); err != nil {
		return err
	}
	if len(c.AdminKeys) != c.Layout.AdminCount {
		return fmt.Errorf("config: %d admin_keys configured, layout.admin_count is %d", len(c.AdminKeys), c.Layout.AdminCount)
	}
	if c.Storage.Timeout < 0 {
		return fmt.Errorf("config: storage.timeout must not be negative, got %s", c.Storage.Timeout)
	}
	switch strings.ToLower(c.Storage.Type) {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for file storage")
		}
	case "sqlite", "postgres", "mysql":
		if c.Storage.DSN == "" || c.Storage.Name == "" {
			return fmt.Errorf("config: storage.dsn and storage.name are required for %s storage", c.Storage.Type)
		}
	case "sftp":
		if c.Storage.Host == "" || c.Storage.User == "" || c.Storage.Path == "" {
			return fmt.Errorf("config: storage.host, storage.user and storage.path are required for sftp storage")
		}
	default:
		return fmt.Errorf("config: unsupported storage.type %q", c.Storage.Type)
	}
	return nil
}

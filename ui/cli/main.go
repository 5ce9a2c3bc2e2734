// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Keyguard using Cobra. It
// defines the root command, the shared configuration loading and the
// version plumbing.

package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/keyguard/buildvars"
	"github.com/toeirei/keyguard/internal/config"
	"github.com/toeirei/keyguard/internal/db"
	"github.com/toeirei/keyguard/internal/i18n"
	"github.com/toeirei/keyguard/internal/logging"
	"github.com/toeirei/keyguard/internal/tui"
	"golang.org/x/term"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var cfgFile string
var verbose bool

var appConfig config.Config

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// loadAppConfig reads configuration for cmd into appConfig and applies the
// language and log level. A missing config file is not an error.
func loadAppConfig(cmd *cobra.Command, _ []string) error {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		logging.Debugf("%s", i18n.T("config.not_found"))
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if appConfig.Language == "" {
		appConfig.Language = "en"
	}
	i18n.Init(appConfig.Language)

	level := appConfig.LogLevel
	if verbose {
		level = "debug"
		db.SetDebug(true)
	}
	if err := logging.SetLevel(level); err != nil {
		return err
	}

	if err := appConfig.Validate(); err != nil {
		return err
	}
	if appConfig.UsesPlaceholderAdmins() {
		logging.Warnf("%s", i18n.T("status.placeholder_admins"))
	}
	return nil
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// Execute runs the CLI entrypoint. The cmd/keyguard main package should
// call this function and handle process exit via ExitCode.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates and configures a new root cobra command. Tests use it
// to get fresh, isolated command trees.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyguard",
		Short: "Keyguard keeps the trusted key list of a door reader.",
		Long: `Keyguard stores the access keys of a card or token reader in a small
byte-addressed region (an EEPROM image) behind a guard marker. The first
records are administrator keys; administrators can enroll further keys.

The image can live in a local file, in a SQL database or on a remote
host over SFTP. Running without a subcommand on a terminal launches the
interactive reader simulator.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadAppConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer sess.Close()
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return printStatus(cmd.OutOrStdout(), sess)
			}
			return tui.Run(sess.store)
		},
	}

	v, c, d := resolveBuildVersion(nil)
	compositeVersion := v
	if c != "" && c != "dev" {
		compositeVersion = compositeVersion + " (" + c + ")"
	}
	if d != "" {
		compositeVersion = compositeVersion + " built: " + d
	}
	cmd.Version = compositeVersion

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging (including SQL)")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "", `Output language ("en", "de")`)
	cmd.PersistentFlags().String("log_level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().AddFlagSet(storageFlags())

	versionCmd := &cobra.Command{
		Use:               "version",
		Short:             "Print version",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}

	cmd.AddCommand(
		newStatusCmd(),
		newCheckCmd(),
		newAddCmd(),
		newListCmd(),
		newKeygenCmd(),
		newImagesCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newConfigCmd(),
		versionCmd,
	)
	return cmd
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If `info` is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	var ok bool
	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
			ok = true
		}
	} else {
		ok = true
	}

	if ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/keyguard" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Command keyguard manages the trusted key list of a door reader.
//
// Usage:
//
//	go run ./cmd/keyguard [flags]
//	./keyguard [command] [flags]
//
// See --help for the available commands.
package main

import (
	"errors"
	"os"

	"github.com/toeirei/keyguard/internal/logging"
	"github.com/toeirei/keyguard/ui/cli"
)

func main() {
	err := cli.Execute()
	var ee *cli.ExitError
	if err != nil && !(errors.As(err, &ee) && ee.Err == nil) {
		logging.Errorf("%v", err)
	}
	os.Exit(cli.ExitCode(err))
}

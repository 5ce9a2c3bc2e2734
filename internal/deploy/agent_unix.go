//go:build !windows
// +build !windows

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// package deploy reaches device images stored on remote hosts over SSH. This
// file contains the Unix-specific implementation for locating the SSH agent.
package deploy // import "github.com/toeirei/keyguard/internal/deploy"

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent connects to the agent named by SSH_AUTH_SOCK, if any.
func getSSHAgent() agent.Agent {
	if sshAgentSocket := os.Getenv("SSH_AUTH_SOCK"); sshAgentSocket != "" {
		if conn, err := net.Dial("unix", sshAgentSocket); err == nil {
			return agent.NewClient(conn)
		}
	}
	return nil
}

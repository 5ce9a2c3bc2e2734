// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/keyguard/internal/keystore"
)

// Run starts the reader simulator over st and blocks until the user quits.
func Run(st *keystore.Store) error {
	_, err := tea.NewProgram(
		newReaderModel(st),
		tea.WithAltScreen(),
	).Run()
	return err
}

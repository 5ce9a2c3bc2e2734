// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/toeirei/keyguard/internal/i18n"
)

type keyMap struct {
	Present key.Binding
	Admin   key.Binding
	Enroll  key.Binding
	Random  key.Binding
	Quit    key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Present, km.Admin, km.Enroll, km.Random, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{km.Present, km.Admin, km.Enroll}, {km.Random, km.Quit}}
}

var _ help.KeyMap = keyMap{}

// newKeyMap builds the bindings with help text in the active language.
func newKeyMap() keyMap {
	return keyMap{
		Present: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", i18n.T("tui.help.present")),
		),
		Admin: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("ctrl+a", i18n.T("tui.help.admin")),
		),
		Enroll: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", i18n.T("tui.help.enroll")),
		),
		Random: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", i18n.T("tui.help.random")),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", i18n.T("tui.help.quit")),
		),
	}
}

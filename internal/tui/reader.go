// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keyguard/internal/i18n"
	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/keystore"
)

// historySize bounds the number of remembered presentations.
const historySize = 8

type verdict int

const (
	verdictDenied verdict = iota
	verdictGranted
	verdictAdmin
	verdictEnrolled
)

// event is one presentation shown in the history pane.
type event struct {
	key     keyid.KeyID
	verdict verdict
}

// readerModel simulates a door reader in front of a key store. Enter
// presents the typed key, ctrl+a presents it as an admin card and ctrl+e
// enrolls the typed key on behalf of the last accepted admin.
type readerModel struct {
	store   *keystore.Store
	input   textinput.Model
	help    help.Model
	keys    keyMap
	admin   keyid.KeyID
	history []event
	status  string
	err     error
	width   int
}

func newReaderModel(st *keystore.Store) readerModel {
	ti := textinput.New()
	ti.Prompt = i18n.T("tui.prompt") + ": "
	ti.Placeholder = i18n.T("tui.placeholder")
	ti.CharLimit = 3 * keystore.MaxRecords
	ti.Focus()
	return readerModel{
		store: st,
		input: ti,
		help:  help.New(),
		keys:  newKeyMap(),
		width: 80,
	}
}

func (m readerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m readerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Present):
			m.present()
			return m, nil
		case key.Matches(msg, m.keys.Admin):
			m.presentAdmin()
			return m, nil
		case key.Matches(msg, m.keys.Enroll):
			m.enroll()
			return m, nil
		case key.Matches(msg, m.keys.Random):
			k, err := keyid.Random(m.store.Layout().KeySize)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.input.SetValue(k.String())
			m.input.CursorEnd()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// parseInput reads and clears the input field.
func (m *readerModel) parseInput() (keyid.KeyID, bool) {
	raw := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	m.status = ""
	m.err = nil
	k, err := keyid.Parse(raw)
	if err == nil && k.Len() != m.store.Layout().KeySize {
		err = keystore.ErrKeyWidth
	}
	if err != nil {
		m.err = err
		return keyid.KeyID{}, false
	}
	return k, true
}

func (m *readerModel) record(k keyid.KeyID, v verdict) {
	m.history = append(m.history, event{key: k, verdict: v})
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

func (m *readerModel) present() {
	k, ok := m.parseInput()
	if !ok {
		return
	}
	if m.store.IsAuthorized(k) {
		m.record(k, verdictGranted)
		return
	}
	m.record(k, verdictDenied)
}

func (m *readerModel) presentAdmin() {
	k, ok := m.parseInput()
	if !ok {
		return
	}
	if !m.store.IsAdmin(k) {
		m.admin = keyid.KeyID{}
		m.record(k, verdictDenied)
		m.status = i18n.T("add.not_admin", "Key", k.String())
		return
	}
	m.admin = k
	m.record(k, verdictAdmin)
	m.status = i18n.T("tui.admin_ready", "Key", k.String())
}

func (m *readerModel) enroll() {
	if m.admin.IsZero() {
		m.status = i18n.T("tui.need_admin")
		return
	}
	k, ok := m.parseInput()
	if !ok {
		return
	}
	admin := m.admin
	m.admin = keyid.KeyID{}

	err := m.store.Enroll(admin, k)
	switch {
	case err == nil:
		m.record(k, verdictEnrolled)
		m.status = i18n.T("tui.enrolled", "Key", k.String())
	case errors.Is(err, keystore.ErrCapacityExhausted):
		m.status = i18n.T("add.full", "Key", k.String())
	case errors.Is(err, keystore.ErrCommitFailed):
		m.status = i18n.T("add.commit_failed", "Key", k.String())
	default:
		m.err = err
	}
}

func (m readerModel) View() string {
	title := titleStyle.Render(i18n.T("tui.title"))
	stats := helpStyle.Render(i18n.T("tui.stats", "Count", m.store.Count(), "Remaining", m.store.Remaining()))
	header := AlignFooter(title, stats, m.width-4)

	var banner string
	if n := len(m.history); n > 0 {
		last := m.history[n-1]
		switch last.verdict {
		case verdictDenied:
			banner = deniedStyle.Render(i18n.T("tui.denied"))
		default:
			banner = grantedStyle.Render(i18n.T("tui.granted"))
		}
	}

	lines := make([]string, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		lines = append(lines, renderEvent(m.history[i]))
	}
	var history string
	if len(lines) > 0 {
		history = historyStyle.Render(strings.Join(lines, "\n"))
	}

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(i18n.T("tui.invalid", "Error", m.err.Error()))
	case m.status != "":
		status = statusMessageStyle.Render(m.status)
	}
	if !m.admin.IsZero() {
		status = lipgloss.JoinVertical(lipgloss.Left, status, specialStyle.Render("admin "+m.admin.String()))
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header, "", m.input.View(), "", banner, history, status, "", m.help.View(m.keys)))
}

func renderEvent(e event) string {
	switch e.verdict {
	case verdictGranted:
		return successStyle.Render(fmt.Sprintf("+ %s", e.key))
	case verdictAdmin:
		return specialStyle.Render(fmt.Sprintf("A %s", e.key))
	case verdictEnrolled:
		return successStyle.Render(fmt.Sprintf("* %s", e.key))
	default:
		return errorStyle.Render(fmt.Sprintf("- %s", e.key))
	}
}

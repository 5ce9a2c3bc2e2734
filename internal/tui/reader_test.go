// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/keyguard/internal/i18n"
	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/keystore"
	"github.com/toeirei/keyguard/internal/testutil"
)

func newTestModel(t *testing.T) (readerModel, *testutil.RecordingDriver) {
	t.Helper()
	i18n.Init("en")
	drv := testutil.NewRecordingDriver()
	st, err := keystore.Open(drv, keystore.DefaultLayout(), testutil.SeedAdmins())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return newReaderModel(st), drv
}

func typeKey(m readerModel, k keyid.KeyID, msgType tea.KeyType) readerModel {
	m.input.SetValue(k.String())
	next, _ := m.Update(tea.KeyMsg{Type: msgType})
	return next.(readerModel)
}

func TestReader_PresentGrantedAndDenied(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeKey(m, testutil.Key(0xFF), tea.KeyEnter)
	if got := m.history[len(m.history)-1].verdict; got != verdictGranted {
		t.Fatalf("admin key verdict = %v, want granted", got)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared")
	}

	m = typeKey(m, testutil.Key(0x01), tea.KeyEnter)
	if got := m.history[len(m.history)-1].verdict; got != verdictDenied {
		t.Fatalf("unknown key verdict = %v, want denied", got)
	}
	if !strings.Contains(m.View(), "DENIED") {
		t.Fatalf("view missing denied banner:\n%s", m.View())
	}
}

func TestReader_InvalidInput(t *testing.T) {
	m, _ := newTestModel(t)
	m.input.SetValue("xyz")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(readerModel)
	if m.err == nil || len(m.history) != 0 {
		t.Fatalf("expected parse error and no event, err=%v history=%d", m.err, len(m.history))
	}

	m = typeKey(m, keyid.Repeat(0x01, 4), tea.KeyEnter)
	if m.err != keystore.ErrKeyWidth {
		t.Fatalf("err = %v, want ErrKeyWidth", m.err)
	}
}

func TestReader_EnrollRequiresAdmin(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeKey(m, testutil.Key(0x02), tea.KeyCtrlE)
	if m.status != i18n.T("tui.need_admin") || m.store.Count() != 2 {
		t.Fatalf("enroll without admin: status=%q count=%d", m.status, m.store.Count())
	}

	m = typeKey(m, testutil.Key(0x02), tea.KeyCtrlA)
	if !m.admin.IsZero() {
		t.Fatalf("non-admin accepted as admin")
	}
}

func TestReader_AdminThenEnroll(t *testing.T) {
	m, drv := newTestModel(t)
	commits := drv.Commits

	m = typeKey(m, testutil.Key(0xCC), tea.KeyCtrlA)
	if !m.admin.Equal(testutil.Key(0xCC)) {
		t.Fatalf("admin not armed")
	}
	m = typeKey(m, testutil.Key(0x07), tea.KeyCtrlE)
	if !m.store.IsAuthorized(testutil.Key(0x07)) || m.store.Count() != 3 {
		t.Fatalf("key not enrolled, count=%d", m.store.Count())
	}
	if drv.Commits != commits+1 {
		t.Fatalf("commits = %d, want %d", drv.Commits, commits+1)
	}
	if !m.admin.IsZero() {
		t.Fatalf("admin stays armed after enrollment")
	}
	if got := m.history[len(m.history)-1].verdict; got != verdictEnrolled {
		t.Fatalf("verdict = %v, want enrolled", got)
	}
}

func TestReader_EnrollCommitFailure(t *testing.T) {
	m, drv := newTestModel(t)
	m = typeKey(m, testutil.Key(0xFF), tea.KeyCtrlA)
	drv.FailCommits(1)
	m = typeKey(m, testutil.Key(0x09), tea.KeyCtrlE)
	if m.store.IsAuthorized(testutil.Key(0x09)) {
		t.Fatalf("key trusted after failed commit")
	}
	if !strings.Contains(m.status, "did not accept") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestReader_RandomFillsInput(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = next.(readerModel)
	k, err := keyid.Parse(m.input.Value())
	if err != nil || k.Len() != keystore.DefaultLayout().KeySize {
		t.Fatalf("random input %q: %v", m.input.Value(), err)
	}
}

func TestReader_HistoryBounded(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < historySize+3; i++ {
		m = typeKey(m, testutil.Key(byte(i)), tea.KeyEnter)
	}
	if len(m.history) != historySize {
		t.Fatalf("history = %d, want %d", len(m.history), historySize)
	}
}

func TestReader_Quit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestAlignFooter(t *testing.T) {
	if got := AlignFooter("a", "b", 5); got != "a   b" {
		t.Fatalf("got %q", got)
	}
	if got := AlignFooter("left", "right", 3); got != "left right" {
		t.Fatalf("got %q", got)
	}
	styled := "\x1b[1mab\x1b[0m"
	if got := AlignFooter(styled, "c", 5); got != styled+"  c" {
		t.Fatalf("styled: got %q", got)
	}
}

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds doubles shared by package tests: key builders, a
// recording storage driver and an in-memory remote filesystem.
package testutil

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keyid"
)

// ErrCommit is returned by RecordingDriver.Commit while failures are armed.
var ErrCommit = errors.New("testutil: commit failed")

// Key returns a reference-width key filled with v.
func Key(v byte) keyid.KeyID { return keyid.Repeat(v, keyid.Size) }

// SeedAdmins returns the two placeholder admin keys of the reference device
// (all 0xFF and all 0xCC).
func SeedAdmins() []keyid.KeyID {
	return []keyid.KeyID{Key(0xFF), Key(0xCC)}
}

// RecordingDriver wraps a driver, counting mutations and commits, and can be
// armed to fail commits without reaching the wrapped driver.
type RecordingDriver struct {
	eeprom.Driver
	Writes      int
	Commits     int
	failCommits int
}

// NewRecordingDriver wraps a fresh in-memory buffered driver.
func NewRecordingDriver() *RecordingDriver {
	return &RecordingDriver{Driver: eeprom.NewBuffered(eeprom.NewMemory())}
}


// FailCommits makes the next n commits fail.
func (r *RecordingDriver) FailCommits(n int) { r.failCommits = n }

func (r *RecordingDriver) Write(addr int, b byte) {
	r.Writes++
	r.Driver.Write(addr, b)
}

func (r *RecordingDriver) WriteBlock(addr int, p []byte) {
	r.Writes++
	r.Driver.WriteBlock(addr, p)
}

func (r *RecordingDriver) Commit() error {
	r.Commits++
	if r.failCommits > 0 {
		r.failCommits--
		return ErrCommit
	}
	return r.Driver.Commit()
}

// FakeRemoteFS is an in-memory stand-in for an SFTP session.
type FakeRemoteFS struct {
	Files     map[string][]byte
	Modes     map[string]os.FileMode
	Dirs      map[string]bool
	FailWrite error
	Closed    int
}

// NewFakeRemoteFS returns an empty remote filesystem.
func NewFakeRemoteFS() *FakeRemoteFS {
	return &FakeRemoteFS{
		Files: map[string][]byte{},
		Modes: map[string]os.FileMode{},
		Dirs:  map[string]bool{},
	}
}

func (f *FakeRemoteFS) Open(name string) (io.ReadCloser, error) {
	data, ok := f.Files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FakeRemoteFS) Create(name string) (io.WriteCloser, error) {
	f.Files[name] = nil
	return &fakeRemoteFile{fs: f, name: name}, nil
}

func (f *FakeRemoteFS) MkdirAll(dir string) error {
	f.Dirs[dir] = true
	return nil
}

func (f *FakeRemoteFS) Chmod(name string, mode os.FileMode) error {
	if _, ok := f.Files[name]; !ok {
		return fs.ErrNotExist
	}
	f.Modes[name] = mode
	return nil
}

func (f *FakeRemoteFS) Rename(oldname, newname string) error {
	data, ok := f.Files[oldname]
	if !ok {
		return fs.ErrNotExist
	}
	f.Files[newname] = data
	f.Modes[newname] = f.Modes[oldname]
	delete(f.Files, oldname)
	delete(f.Modes, oldname)
	return nil
}

func (f *FakeRemoteFS) Remove(name string) error {
	if _, ok := f.Files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(f.Files, name)
	delete(f.Modes, name)
	return nil
}

func (f *FakeRemoteFS) Close() error {
	f.Closed++
	return nil
}

type fakeRemoteFile struct {
	fs   *FakeRemoteFS
	name string
}

func (w *fakeRemoteFile) Write(p []byte) (int, error) {
	if w.fs.FailWrite != nil {
		return 0, w.fs.FailWrite
	}
	w.fs.Files[w.name] = append(w.fs.Files[w.name], p...)
	return len(p), nil
}

func (w *fakeRemoteFile) Close() error { return nil }

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"bytes"
	"errors"
	"testing"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keystore"
	"github.com/toeirei/keyguard/internal/testutil"
)

func seededStore(t *testing.T) (*eeprom.Buffered, *keystore.Store) {
	t.Helper()
	drv := eeprom.NewBuffered(eeprom.NewMemory())
	st, err := keystore.Open(drv, keystore.DefaultLayout(), testutil.SeedAdmins())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Add(testutil.Key(0x01)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return drv, st
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	drv, st := seededStore(t)
	snap := Capture(drv, st)
	if snap.Count != 3 || len(snap.Keys) != 3 || snap.Keys[2] != testutil.Key(0x01).String() {
		t.Fatalf("unexpected snapshot listing: %+v", snap.Keys)
	}

	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got.Image, snap.Image) || got.Guard != "key" || got.Capacity != 512 {
		t.Fatalf("snapshot changed in transit: %+v", got)
	}

	// Restore onto fresh storage and open a store over it.
	mem := eeprom.NewMemory()
	target := eeprom.NewBuffered(mem)
	if err := target.Begin(got.Capacity); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := Restore(target, got); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := keystore.Open(eeprom.NewBuffered(mem), keystore.DefaultLayout(), testutil.SeedAdmins())
	if err != nil {
		t.Fatalf("Open restored: %v", err)
	}
	if restored.Seeded() || restored.Count() != 3 || !restored.IsAuthorized(testutil.Key(0x01)) {
		t.Fatalf("restored store mismatch: seeded=%v count=%d", restored.Seeded(), restored.Count())
	}
}

func TestReadRejectsTamperedImage(t *testing.T) {
	drv, st := seededStore(t)
	snap := Capture(drv, st)
	snap.Image[5] ^= 0xFF

	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := Read(&buf); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("got %v, want ErrDigestMismatch", err)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not zstd"))); err == nil {
		t.Fatalf("expected error for non-zstd input")
	}
}

func TestRestoreCapacityMismatch(t *testing.T) {
	drv, st := seededStore(t)
	snap := Capture(drv, st)

	small := eeprom.NewBuffered(eeprom.NewMemory())
	if err := small.Begin(64); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := Restore(small, snap); !errors.Is(err, ErrCapacityMismatch) {
		t.Fatalf("got %v, want ErrCapacityMismatch", err)
	}
}

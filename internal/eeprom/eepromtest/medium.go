// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package eepromtest holds a conformance suite every eeprom.Medium
// implementation must pass.
package eepromtest

import (
	"bytes"
	"context"
	"testing"

	"github.com/toeirei/keyguard/internal/eeprom"
)

// NewMedium constructs a fresh, never-flushed medium for a test.
// The returned medium MUST be isolated from other tests.
type NewMedium func(t *testing.T) eeprom.Medium

// RunMediumConformance exercises newMedium against the Medium contract.
func RunMediumConformance(t *testing.T, newMedium NewMedium) {
	t.Helper()
	ctx := context.Background()

	t.Run("FreshIsErased", func(t *testing.T) {
		m := newMedium(t)
		got, err := m.Load(ctx, 32)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		for i, b := range got {
			if b != eeprom.Erased {
				t.Fatalf("fresh medium byte %d = %#x, want erased", i, b)
			}
		}
	})

	t.Run("FlushLoadRoundTrip", func(t *testing.T) {
		m := newMedium(t)
		want := []byte("key\x01\x0a\x0b\x0c\x0d")
		if err := m.Flush(ctx, want); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		got, err := m.Load(ctx, len(want))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Load = % X, want % X", got, want)
		}
	})

	t.Run("FlushReplacesWholeImage", func(t *testing.T) {
		m := newMedium(t)
		if err := m.Flush(ctx, bytes.Repeat([]byte{0xAA}, 16)); err != nil {
			t.Fatalf("Flush(1) failed: %v", err)
		}
		want := []byte{1, 2, 3}
		if err := m.Flush(ctx, want); err != nil {
			t.Fatalf("Flush(2) failed: %v", err)
		}
		got, err := m.Load(ctx, 16)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Load = % X, want % X", got, want)
		}
	})

	t.Run("NoAliasing", func(t *testing.T) {
		m := newMedium(t)
		image := []byte{1, 2, 3, 4}
		if err := m.Flush(ctx, image); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		image[0] = 0xEE
		got, err := m.Load(ctx, 4)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got[0] != 1 {
			t.Fatalf("medium aliases the flushed slice")
		}
		got[1] = 0xEE
		again, err := m.Load(ctx, 4)
		if err != nil {
			t.Fatalf("Load(2) failed: %v", err)
		}
		if again[1] != 2 {
			t.Fatalf("medium aliases the loaded slice")
		}
	})

	t.Run("DurableBehindBuffered", func(t *testing.T) {
		m := newMedium(t)
		drv := eeprom.NewBuffered(m)
		if err := drv.Begin(16); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		drv.WriteBlock(0, []byte("key"))
		drv.Write(3, 7)
		if err := drv.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		reopened := eeprom.NewBuffered(m)
		if err := reopened.Begin(16); err != nil {
			t.Fatalf("Begin(reopen) failed: %v", err)
		}
		if got := reopened.ReadBlock(0, 4); !bytes.Equal(got, []byte("key\x07")) {
			t.Fatalf("reopened image = % X", got)
		}
		if got := reopened.Read(15); got != eeprom.Erased {
			t.Fatalf("untouched byte = %#x, want erased", got)
		}
	})
}

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package eeprom_test

import (
	"path/filepath"
	"testing"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/eeprom/eepromtest"
)

func TestMemoryConformance(t *testing.T) {
	eepromtest.RunMediumConformance(t, func(t *testing.T) eeprom.Medium {
		return eeprom.NewMemory()
	})
}

func TestFileConformance(t *testing.T) {
	eepromtest.RunMediumConformance(t, func(t *testing.T) eeprom.Medium {
		return eeprom.NewFile(filepath.Join(t.TempDir(), "sub", "image.bin"))
	})
}

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package eeprom

import (
	"context"
	"errors"
	"sync"
)

// ErrInjectedFlush is returned by Memory.Flush while injected failures remain.
var ErrInjectedFlush = errors.New("eeprom: injected flush failure")

// Memory is an in-process medium. The image lives as long as the value, so
// several drivers opened over the same Memory see each other's commits,
// which is how a power cycle is simulated.
type Memory struct {
	mu       sync.Mutex
	image    []byte
	failures int
	flushes  int
}

// NewMemory returns an empty (erased) medium.
func NewMemory() *Memory { return &Memory{} }

// NewMemoryFrom returns a medium preloaded with a copy of image.
func NewMemoryFrom(image []byte) *Memory {
	return &Memory{image: append([]byte(nil), image...)}
}

// Load implements Medium.
func (m *Memory) Load(_ context.Context, _ int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.image == nil {
		return nil, nil
	}
	return append([]byte(nil), m.image...), nil
}

// Flush implements Medium.
func (m *Memory) Flush(_ context.Context, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return ErrInjectedFlush
	}
	m.image = append(m.image[:0], image...)
	m.flushes++
	return nil
}

// FailFlushes makes the next n calls to Flush fail without storing anything.
func (m *Memory) FailFlushes(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

// Flushes returns the number of successful flushes.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Snapshot returns a copy of the durable image (nil if never flushed).
func (m *Memory) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.image == nil {
		return nil
	}
	return append([]byte(nil), m.image...)
}

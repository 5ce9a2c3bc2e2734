// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package eeprom

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/keyguard/internal/logging"
)

// DefaultIOTimeout bounds a single Load or Flush against the medium.
const DefaultIOTimeout = 30 * time.Second

// Buffered is a Driver that keeps the whole region in RAM and writes it to
// its Medium on Commit. It is not safe for concurrent use.
type Buffered struct {
	medium  Medium
	timeout time.Duration
	image   []byte
	begun   bool
	dirty   bool
}

// Option configures a Buffered driver.
type Option func(*Buffered)

// WithIOTimeout overrides DefaultIOTimeout. Zero disables the timeout.
func WithIOTimeout(d time.Duration) Option {
	return func(b *Buffered) { b.timeout = d }
}

// NewBuffered returns a driver over m. Call Begin before use.
func NewBuffered(m Medium, opts ...Option) *Buffered {
	b := &Buffered{medium: m, timeout: DefaultIOTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IOTimeout returns the bound applied to each Load and Flush.
func (b *Buffered) IOTimeout() time.Duration { return b.timeout }

func (b *Buffered) ioContext() (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), b.timeout)
}

// Begin loads the durable image into RAM. Cells the medium does not cover
// read as Erased. Calling Begin again with the same capacity reloads the
// image from the medium, discarding writes that were never committed.
func (b *Buffered) Begin(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	if b.begun && capacity != len(b.image) {
		return fmt.Errorf("%w: attached %d bytes, requested %d", ErrCapacityMismatch, len(b.image), capacity)
	}
	if b.dirty {
		logging.Debugf("eeprom: discarding uncommitted writes on reattach")
	}

	ctx, cancel := b.ioContext()
	defer cancel()
	stored, err := b.medium.Load(ctx, capacity)
	if err != nil {
		return fmt.Errorf("eeprom: load image: %w", err)
	}

	b.image = make([]byte, capacity)
	n := copy(b.image, stored)
	for i := n; i < capacity; i++ {
		b.image[i] = Erased
	}
	if len(stored) > capacity {
		logging.Warnf("eeprom: stored image is %d bytes, truncating to %d", len(stored), capacity)
	}
	b.begun = true
	b.dirty = false
	logging.Debugf("eeprom: attached %d bytes (%d loaded from medium)", capacity, n)
	return nil
}

// Length returns the attached capacity, or 0 before Begin.
func (b *Buffered) Length() int { return len(b.image) }

func (b *Buffered) inRange(addr, n int) bool {
	return addr >= 0 && n >= 0 && addr+n <= len(b.image)
}

// Read returns the byte at addr, or Erased when addr is out of range.
func (b *Buffered) Read(addr int) byte {
	if !b.inRange(addr, 1) {
		return Erased
	}
	return b.image[addr]
}

// Write sets the byte at addr. Out of range writes are dropped.
func (b *Buffered) Write(addr int, v byte) {
	if !b.inRange(addr, 1) {
		logging.Warnf("eeprom: dropped write at %d (capacity %d)", addr, len(b.image))
		return
	}
	if b.image[addr] != v {
		b.image[addr] = v
		b.dirty = true
	}
}

// ReadBlock returns a copy of n bytes starting at addr. Cells outside the
// region read as Erased.
func (b *Buffered) ReadBlock(addr, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = b.Read(addr + i)
	}
	return out
}

// WriteBlock copies p to addr. A block that does not fit is dropped whole.
func (b *Buffered) WriteBlock(addr int, p []byte) {
	if !b.inRange(addr, len(p)) {
		logging.Warnf("eeprom: dropped %d-byte write at %d (capacity %d)", len(p), addr, len(b.image))
		return
	}
	for i, v := range p {
		if b.image[addr+i] != v {
			b.image[addr+i] = v
			b.dirty = true
		}
	}
}

// Dirty reports whether there are writes not yet committed.
func (b *Buffered) Dirty() bool { return b.dirty }

// Commit flushes the image when it has uncommitted writes. On failure the
// image stays dirty and the next Commit retries the full image.
func (b *Buffered) Commit() error {
	if !b.begun {
		return ErrNotBegun
	}
	if !b.dirty {
		return nil
	}
	ctx, cancel := b.ioContext()
	defer cancel()
	if err := b.medium.Flush(ctx, b.image); err != nil {
		return fmt.Errorf("eeprom: flush image: %w", err)
	}
	b.dirty = false
	return nil
}

// Close releases the medium if it holds resources.
func (b *Buffered) Close() error {
	if c, ok := b.medium.(Closer); ok {
		return c.Close()
	}
	return nil
}

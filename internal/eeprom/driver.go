// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package eeprom defines the byte-addressable storage contract the key store
// runs on, and a RAM-mirrored implementation of it over pluggable media.
//
// The contract mirrors the EEPROM emulation found on small microcontrollers:
// Begin attaches a region of fixed capacity, reads and writes touch single
// bytes or blocks, and nothing is durable until Commit succeeds.
package eeprom // import "github.com/toeirei/keyguard/internal/eeprom"

import (
	"context"
	"errors"
)

// Erased is the value an unwritten cell reads as.
const Erased byte = 0xFF

var (
	// ErrNotBegun is returned by Commit when Begin has not attached a region.
	ErrNotBegun = errors.New("eeprom: begin has not been called")
	// ErrCapacityMismatch is returned when Begin is called again with a
	// different capacity.
	ErrCapacityMismatch = errors.New("eeprom: capacity mismatch")
	// ErrInvalidCapacity is returned for a non-positive capacity.
	ErrInvalidCapacity = errors.New("eeprom: capacity must be positive")
)

// Driver is logical byte-addressable storage of a fixed capacity. Addresses
// are in [0, Length()). Commit must be called after every mutating sequence
// before the change is considered durable.
type Driver interface {
	Begin(capacity int) error
	Length() int
	Read(addr int) byte
	Write(addr int, b byte)
	ReadBlock(addr, n int) []byte
	WriteBlock(addr int, p []byte)
	Commit() error
}

// Medium is where a Buffered driver keeps its durable image.
//
// Load returns the stored image, or nil if nothing has been stored yet. The
// returned slice may be shorter or longer than capacity. Flush replaces the
// stored image with image; it must not retain the slice.
type Medium interface {
	Load(ctx context.Context, capacity int) ([]byte, error)
	Flush(ctx context.Context, image []byte) error
}

// Closer is implemented by media holding connections or handles.
type Closer interface {
	Close() error
}

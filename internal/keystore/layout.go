// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package keystore

import (
	"errors"
	"fmt"

	"github.com/toeirei/keyguard/internal/keyid"
)

// MaxRecords is the largest count the one-byte count field can hold.
const MaxRecords = 255

// DefaultGuard is the signature written at address 0.
const DefaultGuard = "key"

// ErrInvalidLayout is wrapped by Layout.Validate failures.
var ErrInvalidLayout = errors.New("keystore: invalid layout")

// Layout fixes the on-storage format. Every field is part of the durable
// contract: changing any of them against existing storage either fails the
// guard check (and reinitializes) or misreads records.
//
//	[0, G)            guard signature
//	[G]               record count
//	[G+1, G+1+n*N)    records, N bytes each, in insertion order
//	[G+1+n*N, C)      free
type Layout struct {
	Guard      []byte
	KeySize    int
	AdminCount int
	Capacity   int
}

// DefaultLayout returns the reference layout: guard "key", 12-byte keys,
// two admin keys and a 512-byte region.
func DefaultLayout() Layout {
	return Layout{
		Guard:      []byte(DefaultGuard),
		KeySize:    keyid.Size,
		AdminCount: 2,
		Capacity:   512,
	}
}

// CountAddr is the address of the record count byte.
func (l Layout) CountAddr() int { return len(l.Guard) }

// RecordsAddr is the address of the first record.
func (l Layout) RecordsAddr() int { return len(l.Guard) + 1 }

// RecordAddr is the address of record i (zero based).
func (l Layout) RecordAddr(i int) int { return l.RecordsAddr() + i*l.KeySize }

// UsedBytes is the number of bytes occupied by the header and count records.
func (l Layout) UsedBytes(count int) int { return l.RecordAddr(count) }

// MaxCount is the number of records the region can ever hold, bounded by
// both the capacity and the width of the count byte.
func (l Layout) MaxCount() int {
	if l.KeySize <= 0 {
		return 0
	}
	n := (l.Capacity - l.RecordsAddr()) / l.KeySize
	if n < 0 {
		return 0
	}
	if n > MaxRecords {
		return MaxRecords
	}
	return n
}

// Validate checks that the layout is self-consistent and that the region can
// hold the header plus all admin records.
func (l Layout) Validate() error {
	switch {
	case len(l.Guard) == 0:
		return fmt.Errorf("%w: guard must not be empty", ErrInvalidLayout)
	case l.KeySize < 1:
		return fmt.Errorf("%w: key size %d", ErrInvalidLayout, l.KeySize)
	case l.AdminCount < 0 || l.AdminCount > MaxRecords:
		return fmt.Errorf("%w: admin count %d", ErrInvalidLayout, l.AdminCount)
	case l.Capacity < l.UsedBytes(l.AdminCount):
		return fmt.Errorf("%w: capacity %d cannot hold guard, count and %d admin keys (%d bytes)",
			ErrInvalidLayout, l.Capacity, l.AdminCount, l.UsedBytes(l.AdminCount))
	}
	return nil
}

// CapacityFor returns the smallest capacity that holds exactly n records.
func (l Layout) CapacityFor(n int) int { return l.UsedBytes(n) }

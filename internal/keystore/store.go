// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keystore persists a list of fixed-width key identifiers in
// byte-addressable storage and answers "is this key authorized?" and "is this
// key an administrator?".
//
// The first time a store is opened over storage without a matching guard it
// writes the guard, a zero count and the seed administrator keys. Later opens
// trust the stored count. Appends are bounds-checked and only become visible
// to queries once the driver commit succeeds.
package keystore // import "github.com/toeirei/keyguard/internal/keystore"

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/logging"
)

var (
	// ErrCapacityExhausted means another record does not fit. Nothing was written.
	ErrCapacityExhausted = errors.New("keystore: capacity exhausted")
	// ErrCommitFailed means the record was written but the commit failed; the
	// key is not counted.
	ErrCommitFailed = errors.New("keystore: commit failed")
	// ErrKeyWidth means the key does not match the layout's key size.
	ErrKeyWidth = errors.New("keystore: key width does not match layout")
	// ErrSeedCount means the seed list length differs from the admin count.
	ErrSeedCount = errors.New("keystore: seed key count does not match admin count")
)

// Store is a durable, fixed-capacity membership list whose first
// Layout.AdminCount records are administrators. It assumes exclusive access
// to its driver and is not safe for concurrent use.
type Store struct {
	drv    eeprom.Driver
	layout Layout
	count  int
	seeded bool
}

// Open attaches the driver and either recovers the stored list or, when the
// guard does not match, initializes storage and appends seeds in order.
// seeds must contain exactly layout.AdminCount keys of layout.KeySize bytes.
//
// Open fails only for an invalid layout or seed list, or when the driver
// cannot attach its region. A seed whose commit fails is logged and left
// uncounted.
func Open(drv eeprom.Driver, layout Layout, seeds []keyid.KeyID) (*Store, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(seeds) != layout.AdminCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSeedCount, len(seeds), layout.AdminCount)
	}
	for i, k := range seeds {
		if k.Len() != layout.KeySize {
			return nil, fmt.Errorf("%w: seed %d is %d bytes, want %d", ErrKeyWidth, i, k.Len(), layout.KeySize)
		}
	}
	if err := drv.Begin(layout.Capacity); err != nil {
		return nil, fmt.Errorf("keystore: attach storage: %w", err)
	}

	s := &Store{drv: drv, layout: layout}
	if s.guardMatches() {
		s.recover()
	} else {
		s.initialize(seeds)
	}
	return s, nil
}

func (s *Store) guardMatches() bool {
	stored := s.drv.ReadBlock(0, len(s.layout.Guard))
	return bytes.Equal(stored, s.layout.Guard)
}

func (s *Store) recover() {
	stored := int(s.drv.Read(s.layout.CountAddr()))
	if limit := s.layout.MaxCount(); stored > limit {
		logging.Warnf("keystore: stored count %d exceeds capacity for %d records, clamping", stored, limit)
		stored = limit
	}
	s.count = stored
	logging.Debugf("keystore: recovered %d records", s.count)
}

// initialize rewrites the header and seeds the admin keys. Anything stored
// past the new count is logically discarded.
func (s *Store) initialize(seeds []keyid.KeyID) {
	logging.Infof("keystore: guard mismatch, initializing storage (%d bytes)", s.layout.Capacity)
	s.seeded = true
	s.count = 0
	s.drv.WriteBlock(0, s.layout.Guard)
	s.drv.Write(s.layout.CountAddr(), 0)

	if len(seeds) == 0 {
		if err := s.drv.Commit(); err != nil {
			logging.Warnf("keystore: commit of empty layout failed: %v", err)
		}
		return
	}
	for i, k := range seeds {
		if err := s.Add(k); err != nil {
			logging.Warnf("keystore: seeding admin key %d failed: %v", i, err)
		}
	}
}

// Layout returns the layout the store was opened with.
func (s *Store) Layout() Layout { return s.layout }

// Count returns the number of trusted records.
func (s *Store) Count() int { return s.count }

// Seeded reports whether this instance initialized storage when opened.
func (s *Store) Seeded() bool { return s.seeded }

// Remaining returns how many more records fit.
func (s *Store) Remaining() int { return s.layout.MaxCount() - s.count }

// IsAuthorized reports whether key matches any of the trusted records.
func (s *Store) IsAuthorized(key keyid.KeyID) bool {
	return s.existsInFirst(key, s.count)
}

// IsAdmin reports whether key matches one of the leading admin records.
func (s *Store) IsAdmin(key keyid.KeyID) bool {
	return s.existsInFirst(key, min(s.layout.AdminCount, s.count))
}

func (s *Store) existsInFirst(key keyid.KeyID, n int) bool {
	if key.Len() != s.layout.KeySize {
		return false
	}
	addr := s.layout.RecordsAddr()
	for i := 0; i < n; i++ {
		if keyid.New(s.drv.ReadBlock(addr, s.layout.KeySize)).Equal(key) {
			return true
		}
		addr += s.layout.KeySize
	}
	return false
}

// Keys returns the trusted records in insertion order.
func (s *Store) Keys() []keyid.KeyID {
	keys := make([]keyid.KeyID, 0, s.count)
	for i := 0; i < s.count; i++ {
		keys = append(keys, keyid.New(s.drv.ReadBlock(s.layout.RecordAddr(i), s.layout.KeySize)))
	}
	return keys
}

// AddKey appends key and reports whether it is now durably stored.
func (s *Store) AddKey(key keyid.KeyID) bool {
	return s.Add(key) == nil
}

// Add appends key after the last trusted record, writes the new count and
// commits. The in-memory count only advances when the commit succeeds, so a
// failed commit can hide a written key but never expose an unwritten one.
// Duplicates are not checked.
func (s *Store) Add(key keyid.KeyID) error {
	if key.Len() != s.layout.KeySize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrKeyWidth, key.Len(), s.layout.KeySize)
	}
	used := s.layout.UsedBytes(s.count)
	if s.count >= MaxRecords || s.layout.Capacity-used < s.layout.KeySize {
		return ErrCapacityExhausted
	}

	s.drv.WriteBlock(used, key.Bytes())
	s.drv.Write(s.layout.CountAddr(), byte(s.count+1))
	if err := s.drv.Commit(); err != nil {
		logging.Warnf("keystore: commit after writing record %d failed: %v", s.count, err)
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	s.count++
	logging.Debugf("keystore: stored record %d", s.count-1)
	return nil
}

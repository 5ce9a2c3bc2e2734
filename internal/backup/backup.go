// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// Package backup captures the raw storage image together with a readable
// listing of its keys, and writes it as Zstandard-compressed JSON. A
// BLAKE2b digest over the image guards against restoring a damaged file.
package backup // import "github.com/toeirei/keyguard/internal/backup"

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/keystore"
	"golang.org/x/crypto/blake2b"
)

// FormatVersion is bumped when the snapshot document changes shape.
const FormatVersion = 1

var (
	// ErrDigestMismatch means the image does not match its recorded digest.
	ErrDigestMismatch = errors.New("backup: image digest mismatch")
	// ErrCapacityMismatch means the snapshot was taken from a region of a
	// different size than the restore target.
	ErrCapacityMismatch = errors.New("backup: capacity mismatch")
	// ErrUnsupportedVersion means the snapshot was written by a newer format.
	ErrUnsupportedVersion = errors.New("backup: unsupported snapshot version")
)

// Snapshot is the document stored in a backup file.
type Snapshot struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Guard      string    `json:"guard"`
	KeySize    int       `json:"key_size"`
	AdminCount int       `json:"admin_count"`
	Capacity   int       `json:"capacity"`
	Count      int       `json:"count"`
	Keys       []string  `json:"keys"`
	Image      []byte    `json:"image"`
	Digest     string    `json:"digest"`
}

// Digest returns the hex BLAKE2b-256 digest of image.
func Digest(image []byte) string {
	sum := blake2b.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Capture copies the whole region behind drv and lists the trusted keys of st.
func Capture(drv eeprom.Driver, st *keystore.Store) Snapshot {
	layout := st.Layout()
	image := drv.ReadBlock(0, drv.Length())
	keys := make([]string, 0, st.Count())
	for _, k := range st.Keys() {
		keys = append(keys, k.String())
	}
	return Snapshot{
		Version:    FormatVersion,
		CreatedAt:  time.Now().UTC(),
		Guard:      string(layout.Guard),
		KeySize:    layout.KeySize,
		AdminCount: layout.AdminCount,
		Capacity:   layout.Capacity,
		Count:      st.Count(),
		Keys:       keys,
		Image:      image,
		Digest:     Digest(image),
	}
}

// Write encodes s as JSON through a zstd encoder.
func Write(w io.Writer, s Snapshot) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(s); err != nil {
		_ = zw.Close()
		return fmt.Errorf("could not encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("could not finish zstd stream: %w", err)
	}
	return nil
}

// Read decodes a snapshot written by Write and verifies its digest.
func Read(r io.Reader) (Snapshot, error) {
	var s Snapshot
	zr, err := zstd.NewReader(r)
	if err != nil {
		return s, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := json.NewDecoder(zr).Decode(&s); err != nil {
		return s, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}
	if s.Version > FormatVersion {
		return s, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if Digest(s.Image) != s.Digest {
		return s, ErrDigestMismatch
	}
	return s, nil
}

// Restore writes the snapshot image over the whole region and commits. The
// driver must already be attached with the snapshot's capacity. Any store
// open on drv is stale afterwards and must be reopened.
func Restore(drv eeprom.Driver, s Snapshot) error {
	if drv.Length() != s.Capacity || len(s.Image) != s.Capacity {
		return fmt.Errorf("%w: snapshot %d bytes, storage %d bytes", ErrCapacityMismatch, s.Capacity, drv.Length())
	}
	drv.WriteBlock(0, s.Image)
	if err := drv.Commit(); err != nil {
		return fmt.Errorf("backup: commit restored image: %w", err)
	}
	return nil
}

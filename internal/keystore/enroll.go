// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package keystore

import (
	"errors"

	"github.com/toeirei/keyguard/internal/keyid"
	"github.com/toeirei/keyguard/internal/logging"
)

// ErrNotAdmin is returned by Enroll when the presenting key is not an admin.
var ErrNotAdmin = errors.New("keystore: presenting key is not an administrator")

// Enroll appends key on behalf of admin, the way a reader enrolls a new card
// after an admin card has been presented.
func (s *Store) Enroll(admin, key keyid.KeyID) error {
	if !s.IsAdmin(admin) {
		logging.Warnf("keystore: enrollment refused for non-admin key %s", admin)
		return ErrNotAdmin
	}
	if err := s.Add(key); err != nil {
		return err
	}
	logging.Infof("keystore: key %s enrolled by admin %s", key, admin)
	return nil
}

// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Keyguard using Cobra.
// It loads configuration, attaches the configured storage medium and opens
// the key store; every command then works on that single store.
package cli

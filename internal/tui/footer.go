// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// AlignFooter returns a single-line string where `right` is right-aligned
// within `width` columns and `left` is at the start. Widths are measured in
// terminal cells, so styled input is fine. If width is too small a single
// space separates the tokens.
func AlignFooter(left, right string, width int) string {
	spaces := width - ansi.StringWidth(left) - ansi.StringWidth(right)
	if spaces < 1 {
		spaces = 1
	}
	return left + strings.Repeat(" ", spaces) + right
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package tui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Theme is the resolved set of terminal styles for the view.
//
// The theme name picks the palette, the scheme name picks the progress bar
// glyphs; unknown names fall back to terminal defaults.
type Theme struct {
	Base  tcell.Style
	Title tcell.Style
	Dim   tcell.Style
	OK    tcell.Style
	Fail  tcell.Style

	BarFilled rune
	BarEmpty  rune
}

// NewTheme resolves theme and scheme names, case-insensitively.
//
// Themes: "dark", "light"; anything else keeps the terminal's own colors.
// Schemes: "block" draws the progress bar with block glyphs, anything else
// with ASCII.
func NewTheme(theme, scheme string) Theme {
	t := Theme{
		Base:      tcell.StyleDefault,
		BarFilled: '#',
		BarEmpty:  '-',
	}

	switch strings.ToLower(theme) {
	case "dark":
		t.Base = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	case "light":
		t.Base = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	}

	t.Title = t.Base.Bold(true)
	t.Dim = t.Base.Dim(true)
	t.OK = t.Title.Foreground(tcell.ColorGreen)
	t.Fail = t.Title.Foreground(tcell.ColorRed)

	if strings.EqualFold(scheme, "block") {
		t.BarFilled, t.BarEmpty = '█', '░'
	}

	return t
}

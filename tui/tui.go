// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package tui is a fullscreen progress observer for format jobs.
//
// It is a pure consumer of the orchestrator's message bus; the only call
// back into the core is Cancel on user request.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/format"
)

const maxStatusLines = 6

// View renders the event stream of one format run.
type View struct {
	screen tcell.Screen
	bus    *format.Bus
	orch   *format.Orchestrator
	logger *zap.Logger
	theme  Theme

	target  string
	jobID   string
	percent float64
	rate    uint64

	statuses []string
	devices  []backend.BlockDevice

	done      bool
	failure   error
	cancelled bool
}

// Option configures the view.
type Option func(*View)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *View) {
		v.logger = logger
	}
}

// WithTheme sets the terminal styles.
func WithTheme(theme Theme) Option {
	return func(v *View) {
		v.theme = theme
	}
}

// New creates a view over the given bus and orchestrator.
func New(bus *format.Bus, orch *format.Orchestrator, target string, opts ...Option) *View {
	v := &View{
		bus:    bus,
		orch:   orch,
		target: target,
		logger: zap.NewNop(),
		theme:  NewTheme("", ""),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Run takes over the terminal and renders bus messages until the job
// completes and the user dismisses the screen, or the user quits.
//
// Quit keys (q, Esc, Ctrl-C) request cancellation of a running job first; a
// second press closes the view without waiting.
func (v *View) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to open terminal screen: %w", err)
	}

	if err = screen.Init(); err != nil {
		return fmt.Errorf("failed to init terminal screen: %w", err)
	}

	defer screen.Fini()

	screen.DisableMouse()
	screen.SetStyle(v.theme.Base)

	v.screen = screen

	keys := make(chan *tcell.EventKey, 8)

	go func() {
		for {
			switch ev := screen.PollEvent().(type) {
			case *tcell.EventKey:
				keys <- ev
			case *tcell.EventResize:
				screen.Sync()
			case nil:
				// screen finalized
				close(keys)

				return
			}
		}
	}()

	v.draw()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-v.bus.Receive():
			if !ok {
				return nil
			}

			v.apply(msg)
			v.draw()
		case key, ok := <-keys:
			if !ok {
				return nil
			}

			if quit := v.handleKey(ctx, key); quit {
				return nil
			}

			v.draw()
		}
	}
}

func (v *View) handleKey(ctx context.Context, key *tcell.EventKey) bool {
	switch {
	case key.Key() == tcell.KeyEscape, key.Key() == tcell.KeyCtrlC,
		key.Rune() == 'q', key.Rune() == 'Q':
	default:
		return false
	}

	if v.done || v.cancelled {
		return true
	}

	v.cancelled = true

	if err := v.orch.Cancel(ctx); err != nil {
		v.logger.Warn("cancel failed", zap.Error(err))
	} else {
		v.status("Cancellation requested, waiting for the job to stop...")
	}

	return false
}

func (v *View) apply(msg format.Msg) {
	switch msg := msg.(type) {
	case format.StatusMsg:
		v.status(string(msg))
	case format.DevicesMsg:
		v.devices = msg
	case format.ClosedMsg:
		v.done = true
	case format.ProgressMsg:
		switch ev := msg.Event.(type) {
		case format.JobStarted:
			v.jobID = string(ev)

			v.status("Job " + v.jobID + " started")
		case format.Percent:
			v.percent = float64(ev)
		case format.Rate:
			v.rate = uint64(ev)
		case format.Message:
			v.status(string(ev))
		case format.Completed:
			v.done = true
			v.failure = ev.Err
		}
	}
}

func (v *View) status(line string) {
	v.statuses = append(v.statuses, line)

	if len(v.statuses) > maxStatusLines {
		v.statuses = v.statuses[len(v.statuses)-maxStatusLines:]
	}
}

func (v *View) draw() {
	if v.screen == nil {
		return
	}

	v.screen.Clear()

	width, _ := v.screen.Size()

	title := v.theme.Title
	plain := v.theme.Base
	dim := v.theme.Dim

	row := 0

	v.drawText(0, row, title, "diskfmt — "+v.target)

	row += 2

	v.drawText(0, row, plain, v.progressBar(width))

	row++

	if v.rate > 0 {
		v.drawText(0, row, dim, fmt.Sprintf("Rate: %s/s", backend.HumanSize(v.rate)))
	}

	row += 2

	for _, line := range v.statuses {
		v.drawText(0, row, plain, line)

		row++
	}

	if v.done {
		row++

		if v.failure != nil {
			v.drawText(0, row, v.theme.Fail, "Error: "+v.failure.Error())
		} else {
			v.drawText(0, row, v.theme.OK, "Completed")
		}

		row++

		v.drawText(0, row, dim, "Press q to close")
	} else {
		row++

		v.drawText(0, row, dim, "Press q to cancel")
	}

	v.screen.Show()
}

func (v *View) progressBar(width int) string {
	barWidth := width - 10
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int(v.percent / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	return fmt.Sprintf("[%s%s] %3.0f%%",
		strings.Repeat(string(v.theme.BarFilled), filled),
		strings.Repeat(string(v.theme.BarEmpty), barWidth-filled),
		v.percent,
	)
}

func (v *View) drawText(x, y int, style tcell.Style, text string) {
	for i, r := range text {
		v.screen.SetContent(x+i, y, r, nil, style)
	}
}

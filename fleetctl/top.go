// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/gdamore/fleetvisor/fleetctl/util"
	"github.com/gdamore/fleetvisor/rest"
)

/*
   Our screen has the following appearance:

    Server: http://127.0.0.1:8080
    Fleet 3f2a9c1e  running  4 roles  0 failed                        fleetctl
   ____________________________________________________________________________
   main              daemon      0:12:10   4121  python -m app -D
   w1                running     0:12:04   4130  python -m worker
   ...
   ____________________________________________________________________________
   [main] last lines of output of the selected role
   ...
   [Q]uit [Up/Down] Select
*/

var (
	styleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	styleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	styleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	styleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
	styleBar = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	styleSelected = styleNormal.Reverse(true)
)

const topLogLines = 8

type topView struct {
	screen tcell.Screen
	client *rest.Client
	server string

	info     *rest.FleetInfo
	err      error
	selected string
	logs     []string
	lock     sync.Mutex
}

// refresh fetches fleet state, plus the tail of the selected role's log.
func (t *topView) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, e := t.client.Status(ctx)
	var logs []string
	t.lock.Lock()
	sel := t.selected
	if sel == "" && info != nil && len(info.Roles) > 0 {
		sel = info.Roles[0].Name
		t.selected = sel
	}
	t.lock.Unlock()

	if e == nil && sel != "" {
		if li, le := t.client.Log(ctx, sel, 0, 0); le == nil {
			for _, r := range li.Records {
				logs = append(logs, r.Text)
			}
			if len(logs) > topLogLines {
				logs = logs[len(logs)-topLogLines:]
			}
		}
	}

	t.lock.Lock()
	t.err = e
	if info != nil {
		util.SortRoles(info.Roles)
		t.info = info
	}
	t.logs = logs
	t.lock.Unlock()
}

func (t *topView) move(delta int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.info == nil || len(t.info.Roles) == 0 {
		return
	}
	idx := 0
	for i, r := range t.info.Roles {
		if r.Name == t.selected {
			idx = i
		}
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.info.Roles) {
		idx = len(t.info.Roles) - 1
	}
	t.selected = t.info.Roles[idx].Name
	t.logs = nil
}

func (t *topView) puts(x, y int, style tcell.Style, s string) {
	w, _ := t.screen.Size()
	for _, r := range s {
		if x >= w {
			break
		}
		t.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (t *topView) fill(y int, style tcell.Style) {
	w, _ := t.screen.Size()
	for x := 0; x < w; x++ {
		t.screen.SetContent(x, y, ' ', nil, style)
	}
}

func roleStyle(r *rest.RoleInfo) tcell.Style {
	switch util.Status(r) {
	case "failed":
		return styleError
	case "running", "daemon":
		return styleGood
	}
	return styleWarn
}

func (t *topView) draw() {
	t.lock.Lock()
	defer t.lock.Unlock()

	s := t.screen
	s.Clear()
	_, h := s.Size()

	t.puts(1, 0, styleNormal, "Server: "+t.server)
	y := 1
	switch {
	case t.info == nil && t.err != nil:
		t.puts(1, y, styleError, "Error: "+t.err.Error())
	case t.info == nil:
		t.puts(1, y, styleWarn, "Loading...")
	default:
		nfailed := 0
		for i := range t.info.Roles {
			if util.Failed(&t.info.Roles[i]) {
				nfailed++
			}
		}
		run := t.info.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		style := styleGood
		if !t.info.Healthy {
			style = styleWarn
		}
		if t.err != nil {
			style = styleError
		}
		t.puts(1, y, style, fmt.Sprintf("Fleet %s  %s  %d roles  %d failed",
			run, t.info.Phase, len(t.info.Roles), nfailed))
	}
	y += 2

	now := time.Now()
	if t.info != nil {
		for i := range t.info.Roles {
			if y >= h-topLogLines-2 {
				break
			}
			r := &t.info.Roles[i]
			style := roleStyle(r)
			if r.Name == t.selected {
				style = styleSelected
				t.fill(y, style)
			}
			t.puts(1, y, style, fmt.Sprintf("%-16s %10s %10s %6d  %s",
				r.Name, util.Status(r),
				util.FormatDuration(util.Uptime(r, now)), r.Pid,
				strings.Join(r.Command, " ")))
			y++
		}
	}

	y = h - topLogLines - 2
	t.fill(y, styleBar)
	t.puts(1, y, styleBar, "Output: "+t.selected)
	y++
	for _, l := range t.logs {
		t.puts(1, y, styleNormal, l)
		y++
	}

	t.fill(h-1, styleBar)
	t.puts(1, h-1, styleBar, "[Q]uit [Up/Down] Select")
	s.Show()
}

func doTop(client *rest.Client, server string) error {
	screen, e := tcell.NewScreen()
	if e != nil {
		return e
	}
	if e = screen.Init(); e != nil {
		return e
	}
	defer screen.Fini()
	screen.SetStyle(styleNormal)

	t := &topView{screen: screen, client: client, server: server}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// periodic updates please
	kick := make(chan struct{}, 1)
	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			t.refresh(ctx)
			// If the queue is full, the next tick redraws.
			screen.PostEvent(tcell.NewEventInterrupt(nil))
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			case <-kick:
			}
		}
	}()

	t.draw()
	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			screen.Sync()
			t.draw()
		case *tcell.EventInterrupt:
			t.draw()
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return nil
			case tcell.KeyUp:
				t.move(-1)
			case tcell.KeyDown:
				t.move(1)
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'q', 'Q':
					return nil
				case 'k':
					t.move(-1)
				case 'j':
					t.move(1)
				}
			}
			select {
			case kick <- struct{}{}:
			default:
			}
			t.draw()
		}
	}
}

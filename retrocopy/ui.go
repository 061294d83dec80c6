// Package retrocopy renders a full-screen terminal view of a running block
// copy: a block-state map, phase checkmarks and status lines, styled after
// old DOS disk tools. It only displays what the caller feeds it; it knows
// nothing about the copy itself.
package retrocopy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ErrInterrupted names a user request to leave the screen. No function in
// this package returns it; stop requests are reported through IsStopped.
var ErrInterrupted = errors.New("interrupted")

// Copy phases shown with checkmarks.
const (
	PhasePreflight = "Preflight"
	PhaseCopy      = "Copy"
	PhaseFlush     = "Flush"
)

// UI is a tcell screen with a fixed layout: title, summary, legend, block
// map, phase line, status block. Not safe for concurrent drawing; call it
// from one goroutine.
type UI struct {
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once

	title        string
	phases       []string
	phaseDoneMap map[string]bool
	summaryLines []string
	legendLines  []string
	statusLines  []string
	mapLines     []string
}

// NewUI initializes the terminal screen and starts the key event loop.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:            s,
		stopChan:     make(chan struct{}),
		phases:       []string{PhasePreflight, PhaseCopy, PhaseFlush},
		phaseDoneMap: make(map[string]bool),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal.
func (u *UI) Close() {
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
	fmt.Print("\033[?1049l\033[?25h")
}

// RequestStop signals that the user wants to leave the screen. Safe to call
// multiple times.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
		u.s.PostEvent(tcell.NewEventInterrupt(nil))
	})
}

// IsStopped reports whether a stop was requested.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Size returns the screen dimensions.
func (u *UI) Size() (width, height int) {
	if u.s == nil {
		return 0, 0
	}
	return u.s.Size()
}

// SetTitle sets the centered top line.
func (u *UI) SetTitle(t string) { u.title = t }

// SetSummaryLines sets the info lines under the title.
func (u *UI) SetSummaryLines(lines []string) {
	u.summaryLines = append([]string(nil), lines...)
}

// SetLegend sets the legend lines under the summary.
func (u *UI) SetLegend(lines []string) {
	u.legendLines = append([]string(nil), lines...)
}

// SetStatusLines sets the status block at the bottom.
func (u *UI) SetStatusLines(lines []string) {
	u.statusLines = append([]string(nil), lines...)
}

// SetBlockMap sets the rendered block-map rows. Each string is one row of
// glyphs; the UI truncates to the screen, nothing more.
func (u *UI) SetBlockMap(lines []string) {
	u.mapLines = append([]string(nil), lines...)
}

// SetPhaseDone checks off a phase. Names are case-insensitive.
func (u *UI) SetPhaseDone(p string) {
	u.phaseDoneMap[strings.ToLower(p)] = true
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, tcell.StyleDefault)
	}
}

// LayoutAndDraw redraws the whole screen from current state.
func (u *UI) LayoutAndDraw() {
	if u.s == nil {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()

	y := 0
	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w))
		putStr(u.s, (w-len(u.title))/2, y, u.title)
		y++
	}
	for _, line := range u.summaryLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}
	for _, line := range u.legendLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}

	if len(u.mapLines) > 0 {
		avail := h - y - 7
		if avail < 1 {
			avail = 1
		}
		rows := avail
		if rows > len(u.mapLines) {
			rows = len(u.mapLines)
		}
		for i := 0; i < rows && y < h; i++ {
			runes := []rune(u.mapLines[i])
			if len(runes) > w {
				runes = runes[:w]
			}
			putStr(u.s, 0, y, string(runes))
			y++
		}
	}

	if len(u.phases) > 0 && y < h {
		putStr(u.s, 0, y, strings.Repeat("─", w))
		putStr(u.s, 2, y, " Phase ")
		y++
		b := strings.Builder{}
		for i, p := range u.phases {
			if i > 0 {
				b.WriteByte(' ')
			}
			mark := ' '
			if u.phaseDoneMap[strings.ToLower(p)] {
				mark = '✓'
			}
			b.WriteString(fmt.Sprintf("[%c]%s", mark, p))
		}
		putStr(u.s, 0, y, b.String())
		y++
	}

	if len(u.statusLines) > 0 && y < h {
		putStr(u.s, 0, y, strings.Repeat("─", w))
		putStr(u.s, 2, y, " Status ")
		y++
		for _, line := range u.statusLines {
			if y >= h {
				break
			}
			putStr(u.s, 0, y, line)
			y++
		}
	}

	u.s.Show()
}

func (u *UI) eventLoop() {
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}
		ev := u.s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			case ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			}
		case *tcell.EventResize:
			u.s.Sync()
		case *tcell.EventInterrupt:
			return
		case nil:
			return
		}
	}
}

// BlockMap renders the per-block copy state into rows of glyphs for
// SetBlockMap. written and read are byte counts, total the source length and
// blockSize the stride; rows/width bound the drawing area. When there are
// more blocks than cells, each cell aggregates a run of blocks.
func BlockMap(written, read, total, blockSize int64, width, rows int) []string {
	if total <= 0 || blockSize <= 0 || width <= 0 || rows <= 0 {
		return nil
	}
	blocks := (total + blockSize - 1) / blockSize
	cells := int64(width * rows)
	perCell := int64(1)
	if blocks > cells {
		perCell = (blocks + cells - 1) / cells
	}
	shown := (blocks + perCell - 1) / perCell

	writtenBlocks := written / blockSize
	readBlocks := read / blockSize
	if written > 0 && written >= total {
		writtenBlocks = blocks
	}
	if read > 0 && read >= total {
		readBlocks = blocks
	}

	lines := make([]string, 0, rows)
	var b strings.Builder
	col := 0
	for i := int64(0); i < shown; i++ {
		first := i * perCell
		switch {
		case first+perCell <= writtenBlocks:
			b.WriteRune('█')
		case first < readBlocks:
			b.WriteRune('▒')
		default:
			b.WriteRune('░')
		}
		col++
		if col >= width || i == shown-1 {
			lines = append(lines, b.String())
			b.Reset()
			col = 0
			if len(lines) == rows {
				break
			}
		}
	}
	return lines
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders a profile's download progress as an adaptive,
// colorful terminal table, driven by periodic catalog.Catalog snapshots
// rather than a push-event stream.
package tui

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

// LiveRenderer renders the live progress table for one profile. Render
// is called on a timer by the caller (fetch) with the
// latest catalog snapshot; LiveRenderer itself holds no goroutine.
type LiveRenderer struct {
	mu       sync.Mutex
	start    time.Time
	hideCur  bool
	supports bool // ANSI + interactive
	noColor  bool
}

// NewLiveRenderer creates a renderer and, if the output is an
// interactive ANSI terminal, hides the cursor until Close.
func NewLiveRenderer() *LiveRenderer {
	lr := &LiveRenderer{
		start:   time.Now(),
		noColor: os.Getenv("NO_COLOR") != "",
	}
	lr.supports = isInteractive() && ansiOkay()
	if lr.supports && !lr.noColor {
		fmt.Fprint(os.Stdout, "\x1b[?25l")
		lr.hideCur = true
	}
	return lr
}

// Close restores the terminal cursor.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.hideCur {
		fmt.Fprint(os.Stdout, "\x1b[?25h")
		lr.hideCur = false
	}
	fmt.Fprintln(os.Stdout)
}

// Render draws one frame of cat's current state.
func (lr *LiveRenderer) Render(cat *catalog.Catalog) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	w, h := termSize()
	if w < 70 {
		w = 70
	}
	if h < 12 {
		h = 12
	}

	var active, recent []catalog.Media
	var doneCnt, errCnt, queuedCnt int
	var aggBytes, aggTotal int64
	for _, m := range cat.Medias {
		aggTotal += m.SizeHTTP
		switch m.Status {
		case catalog.StatusDownloading, catalog.StatusRetrying:
			active = append(active, m)
			aggBytes += m.LocalSize
		case catalog.StatusWaiting:
			queuedCnt++
		case catalog.StatusCompleted:
			doneCnt++
			aggBytes += m.SizeHTTP
			recent = append(recent, m)
		case catalog.StatusFailed:
			errCnt++
			recent = append(recent, m)
		}
	}

	if lr.supports {
		fmt.Fprint(os.Stdout, "\x1b[H\x1b[2J")
	}

	header := fmt.Sprintf("Profile: %s", cat.ProfileName)
	fmt.Fprintln(os.Stdout, colorize(bold(header), "fg=cyan", lr))
	statsLine := fmt.Sprintf("Total: %d   Active: %d   Queued: %d   Done: %d   Failed: %d",
		len(cat.Medias), len(active), queuedCnt, doneCnt, errCnt)
	fmt.Fprintln(os.Stdout, dim(statsLine))

	var prog float64
	if aggTotal > 0 {
		prog = clamp01(float64(aggBytes) / float64(aggTotal))
	}
	bar := renderBar(int(float64(w)*0.4), prog, lr)
	fmt.Fprintf(os.Stdout, "%s  %s  %s/%s\n",
		colorize(bar, "fg=green", lr), percent(prog), humanBytes(aggBytes), humanBytes(aggTotal))

	fmt.Fprintln(os.Stdout)
	cols := []string{"Status", "Media", "Progress", "Speed"}
	fmt.Fprintln(os.Stdout, headerRow(cols, w))

	maxRows := h - 8
	if maxRows < 3 {
		maxRows = 3
	}

	sort.Slice(active, func(i, j int) bool { return active[i].LocalSize > active[j].LocalSize })

	shown := 0
	for _, m := range active {
		if shown >= maxRows {
			break
		}
		fmt.Fprintln(os.Stdout, renderMediaRow(m, w, lr))
		shown++
	}
	if shown < maxRows {
		for _, m := range recent {
			if shown >= maxRows {
				break
			}
			fmt.Fprintln(os.Stdout, renderMediaRow(m, w, lr))
			shown++
		}
	}

	if lr.supports {
		fmt.Fprintln(os.Stdout, dim(fmt.Sprintf("Press Ctrl+C to cancel • %s %s", runtime.GOOS, runtime.GOARCH)))
	}
}

func renderMediaRow(m catalog.Media, w int, lr *LiveRenderer) string {
	statusW := 11
	speedW := 10
	remain := w - (statusW + speedW + 6)
	if remain < 20 {
		remain = 20
	}
	nameW := int(float64(remain) * 0.5)
	if nameW < 18 {
		nameW = 18
	}
	progressW := remain - nameW

	var st, col string
	switch m.Status {
	case catalog.StatusDownloading:
		st, col = "▶ downloading", "fg=yellow"
	case catalog.StatusRetrying:
		st, col = "↻ retrying", "fg=magenta"
	case catalog.StatusCompleted:
		st, col = "✓ done", "fg=green"
	case catalog.StatusFailed:
		st, col = "× failed", "fg=red"
	default:
		st, col = "… " + string(m.Status), "fg=blue"
	}
	status := pad(colorize(st, col, lr), statusW)

	name := ellipsizeMiddle(m.Name, nameW)

	p := clamp01(m.Percent / 100)
	bar := renderBar(progressW-16, p, lr)
	progress := bar + fmt.Sprintf(" %s %s", percent(p), humanBytes(m.SizeHTTP))
	if utf8.RuneCountInString(progress) > progressW {
		runes := []rune(progress)
		progress = string(runes[:progressW])
	}

	speed := pad(m.Speed, speedW)

	return fmt.Sprintf("%s  %s  %s  %s", status, pad(name, nameW), progress, speed)
}

func headerRow(cols []string, w int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = bold(c)
	}
	s := strings.Join(parts, "  ")
	if utf8.RuneCountInString(s) > w {
		runes := []rune(s)
		return string(runes[:w])
	}
	return s
}

func ellipsizeMiddle(s string, w int) string {
	if w <= 3 || utf8.RuneCountInString(s) <= w {
		return pad(s, w)
	}
	runes := []rune(s)
	half := (w - 3) / 2
	if 2*half+3 > len(runes) {
		return pad(s, w)
	}
	return pad(string(runes[:half])+"..."+string(runes[len(runes)-half:]), w)
}

func pad(s string, w int) string {
	r := utf8.RuneCountInString(s)
	if r >= w {
		return s
	}
	return s + strings.Repeat(" ", w-r)
}

func renderBar(width int, p float64, lr *LiveRenderer) string {
	if width < 3 {
		width = 3
	}
	filled := int(p * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func percent(p float64) string {
	return fmt.Sprintf("%3.0f%%", p*100)
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 6 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 100, 30
	}
	return w, h
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func ansiOkay() bool {
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}

func colorize(s, style string, lr *LiveRenderer) string {
	if lr.noColor || !lr.supports {
		return s
	}
	switch style {
	case "fg=green":
		return "\x1b[32m" + s + "\x1b[0m"
	case "fg=yellow":
		return "\x1b[33m" + s + "\x1b[0m"
	case "fg=red":
		return "\x1b[31m" + s + "\x1b[0m"
	case "fg=blue":
		return "\x1b[34m" + s + "\x1b[0m"
	case "fg=magenta":
		return "\x1b[35m" + s + "\x1b[0m"
	case "fg=cyan":
		return "\x1b[36m" + s + "\x1b[0m"
	default:
		return s
	}
}

func bold(s string) string { return "\x1b[1m" + s + "\x1b[0m" }
func dim(s string) string  { return "\x1b[2m" + s + "\x1b[0m" }

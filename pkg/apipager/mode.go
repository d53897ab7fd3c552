// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package apipager

import "fmt"

// mode is the pagination strategy the prober settles on after page 1,
// cached on the Pager for the rest of its session.
type mode int

const (
	modeUnset mode = iota
	modeBeforeID
	modeMaxID
	modeBefore
	modePage
	modeOffset
)

func (m mode) String() string {
	switch m {
	case modeBeforeID:
		return "before_id"
	case modeMaxID:
		return "max_id"
	case modeBefore:
		return "before"
	case modePage:
		return "page"
	case modeOffset:
		return "o"
	default:
		return "unset"
	}
}

// candidateParam builds the query parameter for mode m given the
// cursor state accumulated from prior pages.
func candidateParam(m mode, lastID, lastTimestamp string, pageNum, seenCount int) (key, value string) {
	switch m {
	case modeBeforeID:
		return "before_id", lastID
	case modeMaxID:
		return "max_id", lastID
	case modeBefore:
		return "before", lastTimestamp
	case modePage:
		return "page", fmt.Sprintf("%d", pageNum)
	case modeOffset:
		return "o", fmt.Sprintf("%d", seenCount)
	default:
		return "", ""
	}
}

// probeOrder is the fixed sequence of cursor-based candidates tried
// after page 1 before falling back to page= and o=. The
// page and offset candidates are handled separately by detectMode since
// page is tried twice (at indices 2 and 1) before offset is tried at all.
var probeOrder = []mode{modeBeforeID, modeMaxID, modeBefore}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import "github.com/cockroachdb/errors"

// ErrInvalidTransition is returned by Transition when the requested
// move is not in the state machine's edge set. Invalid transitions are
// rejected, never silently applied.
var ErrInvalidTransition = errors.New("catalog: invalid status transition")

// transitions enumerates the edges of the media state machine. The
// map key is the source status; the value set is every status it may
// move to.
var transitions = map[Status]map[Status]bool{
	StatusMissing: {
		StatusWaiting: true,
		StatusIgnored: true,
	},
	StatusWaiting: {
		StatusDownloading: true,
		StatusPaused:      true,
		StatusIgnored:     true,
	},
	StatusDownloading: {
		StatusCompleted: true,
		StatusRetrying:  true,
		StatusFailed:    true,
		StatusPaused:    true,
		StatusIgnored:   true,
	},
	StatusRetrying: {
		StatusDownloading: true,
		StatusFailed:      true,
		StatusPaused:      true,
		StatusIgnored:     true,
	},
	StatusFailed: {
		StatusWaiting: true,
		StatusIgnored: true,
	},
	StatusCompleted: {
		StatusWaiting: true, // force-retry
		StatusIgnored: true,
	},
	StatusPaused: {
		StatusWaiting: true,
		StatusIgnored: true,
	},
	StatusIncomplete: {
		StatusWaiting: true,
		StatusIgnored: true,
	},
	StatusIgnored: {
		StatusMissing:   true, // unignore, nothing on disk
		StatusCompleted: true, // unignore, file present
	},
}

// Transition validates that moving a media from `from` to `to` is a
// sanctioned edge of the state machine and returns an error otherwise.
// It does not mutate anything; callers apply `to` themselves after a
// nil return, keeping this a pure total function over the enum.
func Transition(from, to Status) error {
	if from == to {
		return nil
	}
	edges, ok := transitions[from]
	if !ok || !edges[to] {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	return nil
}

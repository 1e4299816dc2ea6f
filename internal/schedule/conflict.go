// Package schedule holds the booking rules that do not touch storage:
// the time-window sweep, status derivation and last/next selection.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"shareit/internal/models"
)

// Boundary selects how the sweep cursor advances past an active booking.
type Boundary int

const (
	// BoundaryEnd moves the cursor to the end of the booking just passed,
	// so the booking's own span is treated as occupied.
	BoundaryEnd Boundary = iota
	// BoundaryStart moves the cursor to the start of the booking just
	// passed. Kept for compatibility with data accepted by older releases.
	BoundaryStart
)

func ParseBoundary(raw string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", models.ConflictBoundaryEnd:
		return BoundaryEnd, nil
	case models.ConflictBoundaryStart:
		return BoundaryStart, nil
	default:
		return BoundaryEnd, fmt.Errorf("unknown conflict boundary %q", raw)
	}
}

func (b Boundary) String() string {
	if b == BoundaryStart {
		return models.ConflictBoundaryStart
	}
	return models.ConflictBoundaryEnd
}

// IsWindowFree reports whether [start, end) fits into a gap of the item's
// schedule. active must hold the item's active bookings sorted by start
// ascending.
//
// The sweep starts at now. For every active booking the gap
// [cursor, booking.start) is tested. Once the cursor is past the candidate's
// end no later gap can help. After the last booking the open gap
// [cursor, +inf) is tested.
//
// With BoundaryEnd windows are half-open, so a candidate may start exactly
// where a booking ends and end exactly where the next one starts. With
// BoundaryStart the candidate must lie strictly inside the gap.
func IsWindowFree(active []models.Booking, start, end, now time.Time, boundary Boundary) bool {
	if len(active) == 0 {
		return true
	}

	left := now
	for _, b := range active {
		right := b.Start
		if fitsGap(left, right, start, end, boundary) {
			return true
		}
		if left.After(end) {
			return false
		}
		left = advance(left, b, boundary)
	}
	if boundary == BoundaryStart {
		return left.Before(start)
	}
	return !start.Before(left)
}

func fitsGap(left, right, start, end time.Time, boundary Boundary) bool {
	if boundary == BoundaryStart {
		return left.Before(start) && right.After(end)
	}
	return !start.Before(left) && !end.After(right)
}

func advance(left time.Time, b models.Booking, boundary Boundary) time.Time {
	if boundary == BoundaryStart {
		return b.Start
	}
	// Active bookings may overlap each other, so never move the cursor back.
	if b.End.After(left) {
		return b.End
	}
	return left
}

package schedule

import (
	"context"
	"time"

	"shareit/internal/models"
)

// BookingSource is the slice of the booking store the selector reads.
type BookingSource interface {
	GetActiveBookingsByItem(ctx context.Context, itemID int64, now time.Time) ([]models.Booking, error)
	GetLastPastBookingByItem(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error)
}

// SelectLastAndNext picks the booking an item's owner should see as "last"
// and the one to see as "next". Anyone but the owner gets nothing.
func SelectLastAndNext(
	ctx context.Context,
	src BookingSource,
	item models.Item,
	requesterID int64,
	now time.Time,
) (last, next *models.Booking, err error) {
	if requesterID != item.OwnerID {
		return nil, nil, nil
	}

	active, err := src.GetActiveBookingsByItem(ctx, item.ID, now)
	if err != nil {
		return nil, nil, err
	}
	if len(active) == 0 {
		return nil, nil, nil
	}

	first := active[0]
	if first.Start.Before(now) {
		last = &first
		if len(active) > 1 {
			second := active[1]
			next = &second
		}
		return last, next, nil
	}

	next = &first
	last, err = src.GetLastPastBookingByItem(ctx, item.ID, now)
	if err != nil {
		return nil, nil, err
	}
	return last, next, nil
}

package models

import "time"

// Approval is the owner's decision on a booking request.
type Approval int

const (
	ApprovalUnset Approval = iota
	ApprovalApproved
	ApprovalRejected
)

type Booking struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	BookerID  int64     `json:"booker_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Approved  *bool     `json:"approved"` // nil until the owner decides
	CreatedAt time.Time `json:"created_at"`
}

func (b Booking) Approval() Approval {
	switch {
	case b.Approved == nil:
		return ApprovalUnset
	case *b.Approved:
		return ApprovalApproved
	default:
		return ApprovalRejected
	}
}

// IsActiveAt reports whether the booking still blocks its item at now:
// not rejected and not yet finished.
func (b Booking) IsActiveAt(now time.Time) bool {
	return b.Approval() != ApprovalRejected && b.End.After(now)
}

// BookingFilter selects bookings for list views. Zero BookerID/OwnerID means
// "not filtered by this side".
type BookingFilter struct {
	BookerID int64
	OwnerID  int64
	State    string
	Offset   int
	Limit    int
}

// BoolPtr is a helper for building approvals in code and tests.
func BoolPtr(v bool) *bool {
	return &v
}

package models

// Status is the derived classification of a booking. WAITING, APPROVED and
// REJECTED are display statuses; ALL, CURRENT, PAST and FUTURE only exist as
// list filters.
type Status string

const (
	StatusAll      Status = "ALL"
	StatusWaiting  Status = "WAITING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusCurrent  Status = "CURRENT"
	StatusPast     Status = "PAST"
	StatusFuture   Status = "FUTURE"
)

func (s Status) String() string {
	return string(s)
}

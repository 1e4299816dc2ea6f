package schedule

import (
	"strings"

	"shareit/internal/models"
)

// DetermineStatus returns the display status of a single booking.
func DetermineStatus(b models.Booking) models.Status {
	switch b.Approval() {
	case models.ApprovalUnset:
		return models.StatusWaiting
	case models.ApprovalRejected:
		return models.StatusRejected
	default:
		return models.StatusApproved
	}
}

var filterStatuses = map[models.Status]struct{}{
	models.StatusAll:      {},
	models.StatusWaiting:  {},
	models.StatusRejected: {},
	models.StatusCurrent:  {},
	models.StatusPast:     {},
	models.StatusFuture:   {},
}

// ParseStatus converts a list-filter token. An empty token means ALL.
func ParseStatus(token string) (models.Status, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return models.StatusAll, nil
	}
	status := models.Status(token)
	if _, ok := filterStatuses[status]; !ok {
		return "", models.NewError(models.KindIllegalArgument, "Unknown state: UNSUPPORTED_STATUS")
	}
	return status, nil
}
